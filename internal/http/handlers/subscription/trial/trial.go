// Package trial содержит обработчики пробного периода: активацию и
// проверку права на него.
package trial

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/subscription-gateway/internal/http/middlewarectx"
	"github.com/magabrotheeeer/subscription-gateway/internal/http/response"
	"github.com/magabrotheeeer/subscription-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-gateway/internal/models"
	subservice "github.com/magabrotheeeer/subscription-gateway/internal/services/subscription"
)

// Service описывает операции пробного периода.
type Service interface {
	CreateTrial(ctx context.Context, userUID string) (*models.Subscription, error)
	TrialAvailable(ctx context.Context, userUID string) (bool, error)
}

// CreateHandler активирует пробный период.
type CreateHandler struct {
	log     *slog.Logger
	service Service
}

func NewCreate(log *slog.Logger, service Service) *CreateHandler {
	return &CreateHandler{log: log, service: service}
}

func (h *CreateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.trial.create"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userUID, _ := r.Context().Value(middlewarectx.UserUID).(string)

	sub, err := h.service.CreateTrial(r.Context(), userUID)
	if err != nil {
		switch {
		case errors.Is(err, subservice.ErrTrialAlreadyUsed):
			render.Status(r, http.StatusConflict)
			render.JSON(w, r, response.ErrorWithCode("trial already used", response.CodeTrialAlreadyUsed))
		case errors.Is(err, subservice.ErrAlreadySubscribed):
			render.Status(r, http.StatusConflict)
			render.JSON(w, r, response.ErrorWithCode("active subscription already exists", response.CodeAlreadySubscribed))
		case errors.Is(err, subservice.ErrNoPlanAvailable):
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, response.Error("no trial plan available"))
		default:
			log.Error("failed to create trial", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to create trial"))
		}
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, response.StatusOKWithData(sub))
}

// EligibilityHandler сообщает, доступен ли пробный период.
type EligibilityHandler struct {
	log     *slog.Logger
	service Service
}

func NewEligibility(log *slog.Logger, service Service) *EligibilityHandler {
	return &EligibilityHandler{log: log, service: service}
}

func (h *EligibilityHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.trial.eligibility"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userUID, _ := r.Context().Value(middlewarectx.UserUID).(string)

	available, err := h.service.TrialAvailable(r.Context(), userUID)
	if err != nil {
		log.Error("failed to check trial eligibility", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to check trial eligibility"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"trial_available": available,
	}))
}
