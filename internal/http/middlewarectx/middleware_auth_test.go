package middlewarectx

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/magabrotheeeer/subscription-gateway/internal/models"
	"github.com/magabrotheeeer/subscription-gateway/internal/services/access"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type AuthServiceMock struct{ mock.Mock }

func (m *AuthServiceMock) ValidateSession(ctx context.Context, token string) (*models.User, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type AccessServiceMock struct{ mock.Mock }

func (m *AccessServiceMock) Check(ctx context.Context, userUID string) access.Decision {
	args := m.Called(ctx, userUID)
	return args.Get(0).(access.Decision)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestAuthMiddleware(t *testing.T) {
	user := &models.User{UID: "uid-1", Username: "user1", Status: models.UserStatusActive}

	tests := []struct {
		name           string
		authHeader     string
		setupMocks     func(a *AuthServiceMock)
		wantStatusCode int
		wantNextCalled bool
	}{
		{
			name:       "valid token passes and fills context",
			authHeader: "Bearer good-token",
			setupMocks: func(a *AuthServiceMock) {
				a.On("ValidateSession", mock.Anything, "good-token").Return(user, nil).Once()
			},
			wantStatusCode: http.StatusOK,
			wantNextCalled: true,
		},
		{
			name:           "missing header",
			authHeader:     "",
			setupMocks:     func(_ *AuthServiceMock) {},
			wantStatusCode: http.StatusUnauthorized,
		},
		{
			name:           "wrong scheme",
			authHeader:     "Basic dXNlcjpwYXNz",
			setupMocks:     func(_ *AuthServiceMock) {},
			wantStatusCode: http.StatusUnauthorized,
		},
		{
			name:       "revoked session",
			authHeader: "Bearer revoked-token",
			setupMocks: func(a *AuthServiceMock) {
				a.On("ValidateSession", mock.Anything, "revoked-token").
					Return(nil, assert.AnError).Once()
			},
			wantStatusCode: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authService := new(AuthServiceMock)
			tt.setupMocks(authService)

			nextCalled := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				nextCalled = true
				assert.Equal(t, "uid-1", r.Context().Value(UserUID))
				assert.Equal(t, "user1", r.Context().Value(Username))
				assert.Equal(t, "good-token", r.Context().Value(SessionToken))
			})

			handler := AuthMiddleware(authService, newNoopLogger())(next)

			req := httptest.NewRequest(http.MethodGet, "/api/subscription/current", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatusCode, rec.Code)
			assert.Equal(t, tt.wantNextCalled, nextCalled)

			authService.AssertExpectations(t)
		})
	}
}

func TestRequireSubscriptionMiddleware(t *testing.T) {
	endDate := time.Now().UTC().AddDate(0, 1, 0)

	tests := []struct {
		name           string
		ctxUserUID     any
		setupMocks     func(a *AccessServiceMock)
		wantStatusCode int
		wantNextCalled bool
	}{
		{
			name:       "authorized user passes through",
			ctxUserUID: "uid-1",
			setupMocks: func(a *AccessServiceMock) {
				a.On("Check", mock.Anything, "uid-1").
					Return(access.Decision{Authorized: true, EndDate: &endDate}).Once()
			},
			wantStatusCode: http.StatusOK,
			wantNextCalled: true,
		},
		{
			name:       "user without subscription gets 403",
			ctxUserUID: "uid-1",
			setupMocks: func(a *AccessServiceMock) {
				a.On("Check", mock.Anything, "uid-1").
					Return(access.Decision{Authorized: false}).Once()
			},
			wantStatusCode: http.StatusForbidden,
		},
		{
			name:           "missing user identification",
			ctxUserUID:     nil,
			setupMocks:     func(_ *AccessServiceMock) {},
			wantStatusCode: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accessService := new(AccessServiceMock)
			tt.setupMocks(accessService)

			nextCalled := false
			next := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
				nextCalled = true
			})

			handler := RequireSubscriptionMiddleware(newNoopLogger(), accessService)(next)

			req := httptest.NewRequest(http.MethodGet, "/proxy/check", nil)
			if tt.ctxUserUID != nil {
				req = req.WithContext(context.WithValue(req.Context(), UserUID, tt.ctxUserUID))
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatusCode, rec.Code)
			assert.Equal(t, tt.wantNextCalled, nextCalled)

			accessService.AssertExpectations(t)
		})
	}
}
