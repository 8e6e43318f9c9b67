// Package paymentnotify обрабатывает асинхронные уведомления Alipay.
// Протокол требует ответа "success" телом в чистом тексте; любой другой
// ответ заставляет Alipay повторять уведомление.
package paymentnotify

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/middleware"

	"github.com/magabrotheeeer/subscription-gateway/internal/lib/sl"
)

// Service описывает обработку уведомления провайдера.
type Service interface {
	HandleNotify(ctx context.Context, provider string, params url.Values) error
}

type Handler struct {
	log     *slog.Logger
	service Service
}

func New(log *slog.Logger, service Service) *Handler {
	return &Handler{log: log, service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.notify"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	if err := r.ParseForm(); err != nil {
		log.Error("failed to parse notify form", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("fail"))
		return
	}

	if err := h.service.HandleNotify(r.Context(), "alipay", r.PostForm); err != nil {
		// Невалидная подпись или сбой сверки: отвечаем fail, Alipay
		// повторит уведомление позже.
		log.Error("notify rejected", sl.Err(err))
		_, _ = w.Write([]byte("fail"))
		return
	}

	_, _ = w.Write([]byte("success"))
}
