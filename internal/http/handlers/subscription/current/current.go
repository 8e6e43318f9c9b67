package current

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/subscription-gateway/internal/http/middlewarectx"
	"github.com/magabrotheeeer/subscription-gateway/internal/http/response"
	"github.com/magabrotheeeer/subscription-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-gateway/internal/models"
	subservice "github.com/magabrotheeeer/subscription-gateway/internal/services/subscription"
)

// Service описывает получение действующей подписки пользователя.
type Service interface {
	Current(ctx context.Context, userUID string) (*models.SubscriptionDetails, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.current"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userUID, _ := r.Context().Value(middlewarectx.UserUID).(string)

	details, err := h.service.Current(r.Context(), userUID)
	if err != nil {
		if errors.Is(err, subservice.ErrNoActiveFound) {
			render.JSON(w, r, response.StatusOKWithData(map[string]any{
				"has_subscription": false,
			}))
			return
		}
		log.Error("failed to get current subscription", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to get current subscription"))
		return
	}

	now := time.Now().UTC()
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"has_subscription": true,
		"subscription": map[string]any{
			"id":               details.ID,
			"plan_name":        details.PlanName,
			"plan_description": details.PlanDescription,
			"duration_months":  details.DurationMonths,
			"price":            details.Price,
			"start_date":       details.StartDate,
			"end_date":         details.EndDate,
			"status":           details.Status,
			"payment_status":   details.PaymentStatus,
			"is_expiring_soon": details.IsExpiringSoon(now),
		},
	}))
}
