// Package status содержит обработчик проверки права доступа: он же
// используется проксирующим слоем через GET /proxy/check.
package status

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/subscription-gateway/internal/http/middlewarectx"
	"github.com/magabrotheeeer/subscription-gateway/internal/http/response"
	"github.com/magabrotheeeer/subscription-gateway/internal/services/access"
)

// Service описывает вычисление решения о доступе.
type Service interface {
	Check(ctx context.Context, userUID string) access.Decision
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userUID, _ := r.Context().Value(middlewarectx.UserUID).(string)

	decision := h.service.Check(r.Context(), userUID)
	if !decision.Authorized {
		render.Status(r, http.StatusForbidden)
		render.JSON(w, r, response.ErrorWithCode(
			"active subscription required", response.CodeSubscriptionNeeded))
		return
	}
	render.JSON(w, r, response.StatusOKWithData(decision))
}
