// Package paymentreturn обрабатывает синхронные возвраты плательщика
// со страниц провайдеров. Возврат не доказывает оплату: итоговое
// состояние уточняется опросом провайдера или его уведомлением.
package paymentreturn

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/subscription-gateway/internal/http/response"
	"github.com/magabrotheeeer/subscription-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-gateway/internal/models"
	"github.com/magabrotheeeer/subscription-gateway/internal/paymentprovider"
	paymentservice "github.com/magabrotheeeer/subscription-gateway/internal/services/payment"
)

// Service описывает операции завершения платежа после возврата плательщика.
type Service interface {
	PollStatus(ctx context.Context, userUID, orderNo string) (*models.PaymentOrder, error)
	ExecutePayPal(ctx context.Context, paymentID, payerID string) (*models.PaymentOrder, error)
	CancelOrder(ctx context.Context, orderNo string) error
}

// AlipayHandler обрабатывает return_url Alipay: дожимает состояние
// ордера опросом и показывает результат.
type AlipayHandler struct {
	log     *slog.Logger
	service Service
}

func NewAlipay(log *slog.Logger, service Service) *AlipayHandler {
	return &AlipayHandler{log: log, service: service}
}

func (h *AlipayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.return.alipay"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	orderNo := r.URL.Query().Get("out_trade_no")
	if orderNo == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("missing out_trade_no"))
		return
	}

	order, err := h.service.PollStatus(r.Context(), "", orderNo)
	if err != nil {
		if errors.Is(err, paymentservice.ErrOrderNotFound) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, response.ErrorWithCode("order not found", response.CodeOrderNotFound))
			return
		}
		log.Error("failed to finalize alipay return", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to finalize payment"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"order_no": order.OrderNo,
		"state":    order.State,
	}))
}

// PaypalReturnHandler завершает платёж PayPal после одобрения плательщиком.
type PaypalReturnHandler struct {
	log     *slog.Logger
	service Service
}

func NewPaypalReturn(log *slog.Logger, service Service) *PaypalReturnHandler {
	return &PaypalReturnHandler{log: log, service: service}
}

func (h *PaypalReturnHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.return.paypal"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	paymentID := r.URL.Query().Get("paymentId")
	payerID := r.URL.Query().Get("PayerID")
	if paymentID == "" || payerID == "" {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, response.Error("missing paymentId or PayerID"))
		return
	}

	order, err := h.service.ExecutePayPal(r.Context(), paymentID, payerID)
	if err != nil {
		if errors.Is(err, paymentprovider.ErrProviderUnavailable) {
			log.Error("payment provider unavailable", sl.Err(err))
			render.Status(r, http.StatusBadGateway)
			render.JSON(w, r, response.ErrorWithCode("payment provider unavailable", response.CodeProviderDown))
			return
		}
		log.Error("failed to execute paypal payment", sl.Err(err))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, response.Error("failed to execute payment"))
		return
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"order_no": order.OrderNo,
		"state":    order.State,
	}))
}

// PaypalCancelHandler закрывает ордер после отказа плательщика.
type PaypalCancelHandler struct {
	log     *slog.Logger
	service Service
}

func NewPaypalCancel(log *slog.Logger, service Service) *PaypalCancelHandler {
	return &PaypalCancelHandler{log: log, service: service}
}

func (h *PaypalCancelHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.payment.return.paypal_cancel"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	orderNo := r.URL.Query().Get("order_no")
	if orderNo != "" {
		if err := h.service.CancelOrder(r.Context(), orderNo); err != nil {
			log.Error("failed to cancel order", sl.Err(err))
		}
	}

	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"message": "payment cancelled",
	}))
}
