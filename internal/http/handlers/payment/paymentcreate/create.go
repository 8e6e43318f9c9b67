package paymentcreate

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/subscription-gateway/internal/http/middlewarectx"
	"github.com/magabrotheeeer/subscription-gateway/internal/http/response"
	"github.com/magabrotheeeer/subscription-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-gateway/internal/models"
	"github.com/magabrotheeeer/subscription-gateway/internal/paymentprovider"
	paymentservice "github.com/magabrotheeeer/subscription-gateway/internal/services/payment"
	"github.com/magabrotheeeer/subscription-gateway/internal/storage/repository"
)

// Service описывает создание платежа.
type Service interface {
	Initiate(ctx context.Context, userUID, provider string, planID int64, paymentType string) (*paymentservice.InitiateResult, error)
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
	const op = "handlers.payment.create"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userUID, _ := r.Context().Value(middlewarectx.UserUID).(string)
	provider := chi.URLParam(r, "provider")

	var req models.CreatePaymentRequest
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

	result, err := h.service.Initiate(r.Context(), userUID, provider, int64(req.PlanID), req.PaymentType)
	if err != nil {
		switch {
		case errors.Is(err, paymentservice.ErrUnknownProvider):
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.Error("unknown payment provider"))
		case errors.Is(err, repository.ErrPlanNotFound):
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.Error("plan not found"))
		case errors.Is(err, paymentprovider.ErrProviderUnavailable):
			log.Error("payment provider unavailable", sl.Err(err))
			render.Status(r, http.StatusBadGateway)
			render.JSON(w, r, response.ErrorWithCode("payment provider unavailable", response.CodeProviderDown))
		default:
			log.Error("failed to create payment", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to create payment"))
		}
		return
	}

	render.JSON(w, r, response.StatusOKWithData(result))
}
