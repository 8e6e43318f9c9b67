// Package subscriptiongateway предоставляет маршруты приложения.
package subscriptiongateway

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/time/rate"

	"github.com/magabrotheeeer/subscription-gateway/internal/http/handlers/admin/adminlogin"
	"github.com/magabrotheeeer/subscription-gateway/internal/http/handlers/admin/adminmanage"
	"github.com/magabrotheeeer/subscription-gateway/internal/http/handlers/admin/adminstats"
	"github.com/magabrotheeeer/subscription-gateway/internal/http/handlers/admin/adminusers"
	"github.com/magabrotheeeer/subscription-gateway/internal/http/handlers/auth/login"
	"github.com/magabrotheeeer/subscription-gateway/internal/http/handlers/auth/logout"
	"github.com/magabrotheeeer/subscription-gateway/internal/http/handlers/auth/profile"
	"github.com/magabrotheeeer/subscription-gateway/internal/http/handlers/auth/register"
	"github.com/magabrotheeeer/subscription-gateway/internal/http/handlers/health"
	"github.com/magabrotheeeer/subscription-gateway/internal/http/handlers/payment/paymentcreate"
	"github.com/magabrotheeeer/subscription-gateway/internal/http/handlers/payment/paymentnotify"
	"github.com/magabrotheeeer/subscription-gateway/internal/http/handlers/payment/paymentquery"
	"github.com/magabrotheeeer/subscription-gateway/internal/http/handlers/payment/paymentrefund"
	"github.com/magabrotheeeer/subscription-gateway/internal/http/handlers/payment/paymentreturn"
	"github.com/magabrotheeeer/subscription-gateway/internal/http/handlers/subscription/cancel"
	"github.com/magabrotheeeer/subscription-gateway/internal/http/handlers/subscription/current"
	"github.com/magabrotheeeer/subscription-gateway/internal/http/handlers/subscription/history"
	"github.com/magabrotheeeer/subscription-gateway/internal/http/handlers/subscription/plans"
	"github.com/magabrotheeeer/subscription-gateway/internal/http/handlers/subscription/renew"
	"github.com/magabrotheeeer/subscription-gateway/internal/http/handlers/subscription/status"
	"github.com/magabrotheeeer/subscription-gateway/internal/http/handlers/subscription/subscribe"
	"github.com/magabrotheeeer/subscription-gateway/internal/http/handlers/subscription/trial"
	"github.com/magabrotheeeer/subscription-gateway/internal/http/middlewarectx"
	accessservice "github.com/magabrotheeeer/subscription-gateway/internal/services/access"
	adminservice "github.com/magabrotheeeer/subscription-gateway/internal/services/admin"
	authservice "github.com/magabrotheeeer/subscription-gateway/internal/services/auth"
	paymentservice "github.com/magabrotheeeer/subscription-gateway/internal/services/payment"
	subservice "github.com/magabrotheeeer/subscription-gateway/internal/services/subscription"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger,
	authService *authservice.AuthService,
	subscriptionService *subservice.Service,
	accessService *accessservice.Service,
	paymentService *paymentservice.Service,
	adminService *adminservice.Service,
) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	requireAuth := middlewarectx.AuthMiddleware(authService, logger)
	requireSubscription := middlewarectx.RequireSubscriptionMiddleware(logger, accessService)
	requireAdmin := middlewarectx.AdminAuthMiddleware(adminService, logger)
	loginLimit := middlewarectx.RateLimitMiddleware(logger, rate.Limit(1), 5)

	r.Get("/health", health.New(logger).ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(loginLimit)
				r.Post("/register", register.New(logger, authService).ServeHTTP)
				r.Post("/login", login.New(logger, authService).ServeHTTP)
			})
			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/logout", logout.New(logger, authService).ServeHTTP)
				r.Get("/profile", profile.NewGet(logger, authService).ServeHTTP)
				r.Put("/profile", profile.NewUpdate(logger, authService).ServeHTTP)
			})
		})

		r.Route("/subscription", func(r chi.Router) {
			// Справочник планов открыт без авторизации.
			r.Get("/plans", plans.New(logger, subscriptionService).ServeHTTP)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/subscribe", subscribe.New(logger, subscriptionService).ServeHTTP)
				r.Get("/current", current.New(logger, subscriptionService).ServeHTTP)
				r.Get("/history", history.New(logger, subscriptionService).ServeHTTP)
				r.Post("/renew", renew.New(logger, subscriptionService).ServeHTTP)
				r.Post("/cancel", cancel.New(logger, subscriptionService).ServeHTTP)
				r.Post("/trial", trial.NewCreate(logger, subscriptionService).ServeHTTP)
				r.Get("/trial/eligibility", trial.NewEligibility(logger, subscriptionService).ServeHTTP)
				r.Get("/status", status.New(logger, accessService).ServeHTTP)
			})
		})

		r.Route("/payment", func(r chi.Router) {
			// Уведомления и возвраты провайдеров приходят без сессии.
			r.Post("/alipay/notify", paymentnotify.New(logger, paymentService).ServeHTTP)
			r.Get("/alipay/return", paymentreturn.NewAlipay(logger, paymentService).ServeHTTP)
			r.Get("/paypal/return", paymentreturn.NewPaypalReturn(logger, paymentService).ServeHTTP)
			r.Get("/paypal/cancel", paymentreturn.NewPaypalCancel(logger, paymentService).ServeHTTP)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/{provider}/create", paymentcreate.New(logger, paymentService).ServeHTTP)
				r.Get("/{provider}/query/{orderNo}", paymentquery.New(logger, paymentService).ServeHTTP)
			})

			r.Group(func(r chi.Router) {
				r.Use(requireAdmin)
				r.Post("/refund", paymentrefund.New(logger, paymentService).ServeHTTP)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.With(loginLimit).Post("/login", adminlogin.NewLogin(logger, adminService).ServeHTTP)

			r.Group(func(r chi.Router) {
				r.Use(requireAdmin)
				r.Post("/logout", adminlogin.NewLogout(logger, adminService).ServeHTTP)
				r.Get("/dashboard/stats", adminstats.New(logger, adminService).ServeHTTP)
				r.Get("/users", adminusers.NewList(logger, adminService).ServeHTTP)
				r.Get("/users/{uid}", adminusers.NewDetail(logger, adminService).ServeHTTP)
				r.Put("/users/{uid}/subscription", adminmanage.NewOverride(logger, adminService).ServeHTTP)
				r.Delete("/users/{uid}/subscription", adminmanage.NewCancel(logger, adminService).ServeHTTP)
				r.Delete("/users/{uid}", adminmanage.NewDelete(logger, adminService).ServeHTTP)
			})
		})
	})

	// Проверка права доступа для проксирующего слоя.
	r.Group(func(r chi.Router) {
		r.Use(requireAuth, requireSubscription)
		r.Get("/proxy/check", status.New(logger, accessService).ServeHTTP)
	})

	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
