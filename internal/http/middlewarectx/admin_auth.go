package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/subscription-gateway/internal/http/response"
	"github.com/magabrotheeeer/subscription-gateway/internal/lib/sl"
)

// AdminService описывает интерфейс проверки токена администратора.
type AdminService interface {
	ValidateToken(ctx context.Context, token string) error
}

// AdminAuthMiddleware создает middleware для маршрутов админки.
// Токен передаётся в заголовке Authorization: Bearer.
func AdminAuthMiddleware(adminService AdminService, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("missing or invalid authorization header"))
				return
			}
			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

			if err := adminService.ValidateToken(r.Context(), tokenStr); err != nil {
				log.Error("admin token rejected", sl.Err(err))
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, response.Error("invalid or expired admin token"))
				return
			}
			ctx := context.WithValue(r.Context(), SessionToken, tokenStr)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
