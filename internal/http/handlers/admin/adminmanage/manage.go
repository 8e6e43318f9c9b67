// Package adminmanage содержит обработчики ручного управления подписками
// и учётными записями из админки.
package adminmanage

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/subscription-gateway/internal/http/response"
	"github.com/magabrotheeeer/subscription-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-gateway/internal/models"
	"github.com/magabrotheeeer/subscription-gateway/internal/storage/repository"
)

// Service описывает операции управления пользователями и их подписками.
type Service interface {
	OverrideSubscription(ctx context.Context, uid string, planID int64, endDate time.Time) (*models.Subscription, error)
	CancelSubscriptions(ctx context.Context, uid string) (int64, error)
	DeactivateUser(ctx context.Context, uid string) error
}

// OverrideHandler выдаёт пользователю подписку до указанной даты.
type OverrideHandler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

func NewOverride(log *slog.Logger, service Service) *OverrideHandler {
	return &OverrideHandler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

func (h *OverrideHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.manage.override"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	uid := chi.URLParam(r, "uid")

	var req models.AdminOverrideRequest
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

	sub, err := h.service.OverrideSubscription(r.Context(), uid, int64(req.PlanID), req.EndDate)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrUserNotFound):
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.Error("user not found"))
		case errors.Is(err, repository.ErrPlanNotFound):
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.Error("plan not found"))
		default:
			log.Error("failed to override subscription", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to override subscription"))
		}
		return
	}

	render.JSON(w, r, response.StatusOKWithData(sub))
}

// CancelHandler отменяет все активные подписки пользователя.
type CancelHandler struct {
	log     *slog.Logger
	service Service
}

func NewCancel(log *slog.Logger, service Service) *CancelHandler {
	return &CancelHandler{log: log, service: service}
}

func (h *CancelHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.manage.cancel"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	uid := chi.URLParam(r, "uid")
	n, err := h.service.CancelSubscriptions(r.Context(), uid)
	if err != nil {
		log.Error("failed to cancel subscriptions", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to cancel subscriptions"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"cancelled": n,
	}))
}

// DeleteHandler мягко удаляет пользователя.
type DeleteHandler struct {
	log     *slog.Logger
	service Service
}

func NewDelete(log *slog.Logger, service Service) *DeleteHandler {
	return &DeleteHandler{log: log, service: service}
}

func (h *DeleteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.manage.delete"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	uid := chi.URLParam(r, "uid")
	if err := h.service.DeactivateUser(r.Context(), uid); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.Error("user not found"))
			return
		}
		log.Error("failed to deactivate user", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to deactivate user"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"message": "user deactivated",
	}))
}
