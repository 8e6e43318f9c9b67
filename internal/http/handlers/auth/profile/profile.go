// Package profile содержит обработчики просмотра и изменения профиля.
package profile

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
	authservice "github.com/magabrotheeeer/subscription-gateway/internal/services/auth"
)

// Service описывает операции профиля пользователя.
type Service interface {
	GetProfile(ctx context.Context, uid string) (*models.User, error)
	UpdateProfile(ctx context.Context, uid string, req models.UpdateProfileRequest) (*models.User, error)
}

// GetHandler возвращает профиль текущего пользователя.
type GetHandler struct {
	log     *slog.Logger
	service Service
}

func NewGet(log *slog.Logger, service Service) *GetHandler {
	return &GetHandler{log: log, service: service}
}

func (h *GetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.profile.get"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	uid, _ := r.Context().Value(middlewarectx.UserUID).(string)
	user, err := h.service.GetProfile(r.Context(), uid)
	if err != nil {
		log.Error("failed to get profile", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to get profile"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(user.Safe()))
}

// UpdateHandler изменяет профиль текущего пользователя.
type UpdateHandler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

func NewUpdate(log *slog.Logger, service Service) *UpdateHandler {
	return &UpdateHandler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

func (h *UpdateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.profile.update"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	uid, _ := r.Context().Value(middlewarectx.UserUID).(string)

	var req models.UpdateProfileRequest
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

	user, err := h.service.UpdateProfile(r.Context(), uid, req)
	if err != nil {
		switch {
		case errors.Is(err, authservice.ErrInvalidCredentials):
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, response.ErrorWithCode("current password is wrong", response.CodeInvalidCredentials))
		case errors.Is(err, authservice.ErrUsernameTaken):
			render.Status(r, http.StatusConflict)
			render.JSON(w, r, response.ErrorWithCode("username already taken", response.CodeUsernameTaken))
		case errors.Is(err, authservice.ErrEmailTaken):
			render.Status(r, http.StatusConflict)
			render.JSON(w, r, response.ErrorWithCode("email already registered", response.CodeEmailTaken))
		case errors.Is(err, authservice.ErrWeakPassword):
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ErrorWithCode("password is too weak", response.CodeWeakPassword))
		default:
			log.Error("failed to update profile", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to update profile"))
		}
		return
	}

	render.JSON(w, r, response.StatusOKWithData(user.Safe()))
}
