package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/subscription-gateway/internal/http/response"
	"github.com/magabrotheeeer/subscription-gateway/internal/services/access"
)

// AccessService описывает интерфейс политики доступа к контенту.
type AccessService interface {
	Check(ctx context.Context, userUID string) access.Decision
}

// RequireSubscriptionMiddleware создает middleware, пропускающий к контенту
// только пользователей с действующей подпиской. Решение каждый раз
// вычисляется заново по реестру подписок.
func RequireSubscriptionMiddleware(log *slog.Logger, accessService AccessService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userUID, ok := r.Context().Value(UserUID).(string)
			if !ok || userUID == "" {
				log.Error("user identification missing")
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("user identification missing"))
				return
			}

			decision := accessService.Check(r.Context(), userUID)
			if !decision.Authorized {
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, response.ErrorWithCode(
					"active subscription required", response.CodeSubscriptionNeeded))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
