package history

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/subscription-gateway/internal/http/middlewarectx"
	"github.com/magabrotheeeer/subscription-gateway/internal/http/response"
	"github.com/magabrotheeeer/subscription-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-gateway/internal/models"
)

// Service описывает получение истории подписок пользователя.
type Service interface {
	History(ctx context.Context, userUID string) ([]models.SubscriptionDetails, error)
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.subscription.history"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userUID, _ := r.Context().Value(middlewarectx.UserUID).(string)

	history, err := h.service.History(r.Context(), userUID)
	if err != nil {
		log.Error("failed to get subscription history", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to get subscription history"))
		return
	}

	items := make([]map[string]any, 0, len(history))
	for _, d := range history {
		items = append(items, map[string]any{
			"id":              d.ID,
			"plan_name":       d.PlanName,
			"duration_months": d.DurationMonths,
			"price":           d.Price,
			"amount":          d.Amount,
			"start_date":      d.StartDate,
			"end_date":        d.EndDate,
			"status":          d.Status,
			"payment_status":  d.PaymentStatus,
			"created_at":      d.CreatedAt,
		})
	}
	render.JSON(w, r, response.StatusOKWithData(items))
}
