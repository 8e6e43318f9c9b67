package paymentquery

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/subscription-gateway/internal/http/middlewarectx"
	"github.com/magabrotheeeer/subscription-gateway/internal/http/response"
	"github.com/magabrotheeeer/subscription-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-gateway/internal/models"
	"github.com/magabrotheeeer/subscription-gateway/internal/paymentprovider"
	paymentservice "github.com/magabrotheeeer/subscription-gateway/internal/services/payment"
)

// Service описывает опрос состояния платёжного ордера.
type Service interface {
	PollStatus(ctx context.Context, userUID, orderNo string) (*models.PaymentOrder, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.query"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userUID, _ := r.Context().Value(middlewarectx.UserUID).(string)
	orderNo := chi.URLParam(r, "orderNo")

	order, err := h.service.PollStatus(r.Context(), userUID, orderNo)
	if err != nil {
		switch {
		case errors.Is(err, paymentservice.ErrOrderNotFound):
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.ErrorWithCode("order not found", response.CodeOrderNotFound))
		case errors.Is(err, paymentservice.ErrForbiddenOrder):
			render.Status(r, http.StatusForbidden)
			render.JSON(w, r, response.Error("order belongs to another user"))
		case errors.Is(err, paymentprovider.ErrProviderUnavailable):
			log.Error("payment provider unavailable", sl.Err(err))
			render.Status(r, http.StatusBadGateway)
			render.JSON(w, r, response.ErrorWithCode("payment provider unavailable", response.CodeProviderDown))
		default:
			log.Error("failed to query payment", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to query payment"))
		}
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"order_no": order.OrderNo,
		"provider": order.Provider,
		"state":    order.State,
		"amount":   order.ChargedAmount,
		"currency": order.Currency,
	}))
}
