package paymentrefund

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/subscription-gateway/internal/http/response"
	"github.com/magabrotheeeer/subscription-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-gateway/internal/models"
	"github.com/magabrotheeeer/subscription-gateway/internal/paymentprovider"
	paymentservice "github.com/magabrotheeeer/subscription-gateway/internal/services/payment"
)

// Service описывает операцию возврата средств.
type Service interface {
	Refund(ctx context.Context, orderNo string, amount float64, reason string) error
}

type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.refund"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	if err := h.service.Refund(r.Context(), req.OrderNo, req.Amount, req.Reason); err != nil {
		switch {
		case errors.Is(err, paymentservice.ErrOrderNotFound):
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.ErrorWithCode("order not found", response.CodeOrderNotFound))
		case errors.Is(err, paymentservice.ErrOrderNotPaid):
			render.Status(r, http.StatusConflict)
			render.JSON(w, r, response.Error("order is not paid"))
		case errors.Is(err, paymentprovider.ErrProviderUnavailable):
			log.Error("payment provider unavailable", sl.Err(err))
			render.Status(r, http.StatusBadGateway)
			render.JSON(w, r, response.ErrorWithCode("payment provider unavailable", response.CodeProviderDown))
		default:
			log.Error("failed to refund", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to refund"))
		}
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"message": "refund initiated",
	}))
}
