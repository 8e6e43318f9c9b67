package paymentnotify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type ServiceMock struct{ mock.Mock }

func (m *ServiceMock) HandleNotify(ctx context.Context, provider string, params url.Values) error {
	return m.Called(ctx, provider, params).Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestHandler_ServeHTTP(t *testing.T) {
	form := url.Values{}
	form.Set("out_trade_no", "LTV17000000000001234")
	form.Set("trade_status", "TRADE_SUCCESS")
	form.Set("sign", "base64-signature")

	t.Run("accepted notification answers success", func(t *testing.T) {
		service := new(ServiceMock)
		handler := New(newNoopLogger(), service)

		service.On("HandleNotify", mock.Anything, "alipay", mock.MatchedBy(func(p url.Values) bool {
			return p.Get("out_trade_no") == "LTV17000000000001234"
		})).Return(nil).Once()

		req := httptest.NewRequest(http.MethodPost, "/api/payment/alipay/notify",
			strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "success", rec.Body.String())

		service.AssertExpectations(t)
	})

	t.Run("rejected notification answers fail so alipay retries", func(t *testing.T) {
		service := new(ServiceMock)
		handler := New(newNoopLogger(), service)

		service.On("HandleNotify", mock.Anything, "alipay", mock.Anything).
			Return(errors.New("invalid signature")).Once()

		req := httptest.NewRequest(http.MethodPost, "/api/payment/alipay/notify",
			strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "fail", rec.Body.String())

		service.AssertExpectations(t)
	})
}
