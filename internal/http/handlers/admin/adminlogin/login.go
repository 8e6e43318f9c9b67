// Package adminlogin содержит обработчики входа и выхода администратора.
package adminlogin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/subscription-gateway/internal/http/middlewarectx"
	"github.com/magabrotheeeer/subscription-gateway/internal/http/response"
	"github.com/magabrotheeeer/subscription-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-gateway/internal/models"
	adminservice "github.com/magabrotheeeer/subscription-gateway/internal/services/admin"
)

// Service описывает вход и выход администратора.
type Service interface {
	Login(ctx context.Context, password string) (string, error)
	Logout(ctx context.Context, token string) error
}

// LoginHandler выдаёт токен администратора по паролю.
type LoginHandler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

func NewLogin(log *slog.Logger, service Service) *LoginHandler {
	return &LoginHandler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.login"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.AdminLoginRequest
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

	token, err := h.service.Login(r.Context(), req.Password)
	if err != nil {
		switch {
		case errors.Is(err, adminservice.ErrWrongPassword):
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, response.ErrorWithCode("wrong password", response.CodeInvalidCredentials))
		case errors.Is(err, adminservice.ErrNotConfigured):
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, response.Error("admin access is not configured"))
		default:
			log.Error("admin login failed", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to login"))
		}
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"token": token,
	}))
}

// LogoutHandler отзывает токен администратора.
type LogoutHandler struct {
	log     *slog.Logger
	service Service
}

func NewLogout(log *slog.Logger, service Service) *LogoutHandler {
	return &LogoutHandler{log: log, service: service}
}

func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.logout"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	tokenStr, ok := r.Context().Value(middlewarectx.SessionToken).(string)
	if !ok || tokenStr == "" {
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, response.Error("missing admin token"))
		return
	}

	if err := h.service.Logout(r.Context(), tokenStr); err != nil {
		log.Error("admin logout failed", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to logout"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"message": "logged out",
	}))
}
