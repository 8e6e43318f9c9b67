// Package adminusers содержит обработчики списка и карточки пользователя
// в админке.
package adminusers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/subscription-gateway/internal/http/response"
	"github.com/magabrotheeeer/subscription-gateway/internal/lib/sl"
	adminservice "github.com/magabrotheeeer/subscription-gateway/internal/services/admin"
	"github.com/magabrotheeeer/subscription-gateway/internal/storage/repository"
)

// Service описывает операции просмотра пользователей.
type Service interface {
	ListUsers(ctx context.Context, search string, limit, offset int) (*adminservice.UserListPage, error)
	GetUser(ctx context.Context, uid string) (*adminservice.UserDetail, error)
}

// ListHandler возвращает страницу пользователей.
type ListHandler struct {
	log     *slog.Logger
	service Service
}

func NewList(log *slog.Logger, service Service) *ListHandler {
	return &ListHandler{log: log, service: service}
}

func (h *ListHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.users.list"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	page, err := h.service.ListUsers(r.Context(), q.Get("search"), limit, offset)
	if err != nil {
		log.Error("failed to list users", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to list users"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(page))
}

// DetailHandler возвращает пользователя с историей подписок.
type DetailHandler struct {
	log     *slog.Logger
	service Service
}

func NewDetail(log *slog.Logger, service Service) *DetailHandler {
	return &DetailHandler{log: log, service: service}
}

func (h *DetailHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.users.detail"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	uid := chi.URLParam(r, "uid")
	detail, err := h.service.GetUser(r.Context(), uid)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.Error("user not found"))
			return
		}
		log.Error("failed to get user", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to get user"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(detail))
}
