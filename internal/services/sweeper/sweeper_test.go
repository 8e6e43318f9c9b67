package sweeper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/magabrotheeeer/subscription-gateway/internal/models"
	"github.com/stretchr/testify/mock"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) ExpireSubscriptionsBatch(ctx context.Context, asOf time.Time) ([]models.ExpiredSubscription, error) {
	args := m.Called(ctx, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ExpiredSubscription), args.Error(1)
}

func (m *RepoMock) ListExpiringSubscriptions(ctx context.Context, asOf time.Time, within time.Duration) ([]models.ExpiringSubscription, error) {
	args := m.Called(ctx, asOf, within)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.ExpiringSubscription), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

func TestService_RunOnce(t *testing.T) {
	t.Run("nil channel is tolerated", func(t *testing.T) {
		repo := new(RepoMock)
		repo.On("ExpireSubscriptionsBatch", mock.Anything, mock.Anything).
			Return([]models.ExpiredSubscription{
				{SubscriptionID: 1, UserUID: "user-1"},
				{SubscriptionID: 2, UserUID: "user-2"},
			}, nil).Once()

		svc := New(repo, nil, time.Minute, newNoopLogger())
		svc.RunOnce(context.Background())

		// Без канала предупреждения не рассылаются и база не опрашивается.
		repo.AssertNotCalled(t, "ListExpiringSubscriptions", mock.Anything, mock.Anything, mock.Anything)
		repo.AssertExpectations(t)
	})

	t.Run("repeated pass over the same state finds nothing", func(t *testing.T) {
		repo := new(RepoMock)
		repo.On("ExpireSubscriptionsBatch", mock.Anything, mock.Anything).
			Return([]models.ExpiredSubscription{{SubscriptionID: 1, UserUID: "user-1"}}, nil).Once()
		repo.On("ExpireSubscriptionsBatch", mock.Anything, mock.Anything).
			Return([]models.ExpiredSubscription{}, nil).Once()

		svc := New(repo, nil, time.Minute, newNoopLogger())
		svc.RunOnce(context.Background())
		svc.RunOnce(context.Background())

		repo.AssertExpectations(t)
	})

	t.Run("storage failure does not panic", func(t *testing.T) {
		repo := new(RepoMock)
		repo.On("ExpireSubscriptionsBatch", mock.Anything, mock.Anything).
			Return(nil, errors.New("db down")).Once()

		svc := New(repo, nil, time.Minute, newNoopLogger())
		svc.RunOnce(context.Background())

		repo.AssertExpectations(t)
	})
}

func TestService_Run_StopsOnContextCancel(t *testing.T) {
	repo := new(RepoMock)
	repo.On("ExpireSubscriptionsBatch", mock.Anything, mock.Anything).
		Return([]models.ExpiredSubscription{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	svc := New(repo, nil, 10*time.Millisecond, newNoopLogger())
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after context cancellation")
	}
}
