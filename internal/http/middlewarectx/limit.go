package middlewarectx

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/subscription-gateway/internal/http/response"
)

// RateLimitMiddleware ограничивает частоту запросов к маршруту.
// Применяется к входу, регистрации и входу администратора.
func RateLimitMiddleware(log *slog.Logger, r rate.Limit, burst int) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(r, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !limiter.Allow() {
				log.Error("too many requests")
				render.Status(req, http.StatusTooManyRequests)
				render.JSON(w, req, response.Error("too many requests"))
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}
