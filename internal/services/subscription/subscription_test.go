package subscription

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/magabrotheeeer/subscription-gateway/internal/models"
	"github.com/magabrotheeeer/subscription-gateway/internal/storage/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) CreateSubscription(ctx context.Context, sub models.Subscription) (int64, error) {
	args := m.Called(ctx, sub)
	return args.Get(0).(int64), args.Error(1)
}
func (m *RepoMock) FindActiveSubscription(ctx context.Context, userUID string, now time.Time) (*models.Subscription, error) {
	args := m.Called(ctx, userUID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}
func (m *RepoMock) GetSubscriptionDetails(ctx context.Context, userUID string, now time.Time) (*models.SubscriptionDetails, error) {
	args := m.Called(ctx, userUID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SubscriptionDetails), args.Error(1)
}
func (m *RepoMock) ListSubscriptionHistory(ctx context.Context, userUID string) ([]models.SubscriptionDetails, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.SubscriptionDetails), args.Error(1)
}
func (m *RepoMock) RenewSubscription(ctx context.Context, id int64, months int, orderNo string, amount float64) (*models.Subscription, error) {
	args := m.Called(ctx, id, months, orderNo, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}
func (m *RepoMock) CancelSubscription(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}
func (m *RepoMock) ExpireOverdueForUser(ctx context.Context, userUID string, asOf time.Time) error {
	return m.Called(ctx, userUID, asOf).Error(0)
}
func (m *RepoMock) HasUsedTrial(ctx context.Context, userUID string) (bool, error) {
	args := m.Called(ctx, userUID)
	return args.Bool(0), args.Error(1)
}
func (m *RepoMock) ListActivePlans(ctx context.Context) ([]models.SubscriptionPlan, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.SubscriptionPlan), args.Error(1)
}
func (m *RepoMock) GetActivePlan(ctx context.Context, planID int64) (*models.SubscriptionPlan, error) {
	args := m.Called(ctx, planID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SubscriptionPlan), args.Error(1)
}
func (m *RepoMock) ApplyOrderSuccess(ctx context.Context, orderNo, externalID string, now time.Time) (bool, *models.Subscription, error) {
	args := m.Called(ctx, orderNo, externalID, now)
	if args.Get(1) == nil {
		return args.Bool(0), nil, args.Error(2)
	}
	return args.Bool(0), args.Get(1).(*models.Subscription), args.Error(2)
}
func (m *RepoMock) FindTrialPlan(ctx context.Context) (*models.SubscriptionPlan, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SubscriptionPlan), args.Error(1)
}

type CacheMock struct{ mock.Mock }

func (m *CacheMock) Get(key string, result any) (bool, error) {
	args := m.Called(key, result)
	return args.Bool(0), args.Error(1)
}
func (m *CacheMock) Set(key string, value any, expiration time.Duration) error {
	return m.Called(key, value, expiration).Error(0)
}
func (m *CacheMock) Invalidate(key string) error {
	return m.Called(key).Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

var monthlyPlan = models.SubscriptionPlan{
	ID:             1,
	Name:           "月度订阅",
	DurationMonths: 1,
	Price:          9.9,
	IsActive:       true,
}

func TestService_Plans(t *testing.T) {
	plans := []models.SubscriptionPlan{monthlyPlan}

	tests := []struct {
		name       string
		setupMocks func(r *RepoMock, c *CacheMock)
		wantLen    int
		wantErr    bool
	}{
		{
			name: "cache miss reads repo and fills cache",
			setupMocks: func(r *RepoMock, c *CacheMock) {
				c.On("Get", plansCacheKey, mock.Anything).Return(false, nil).Once()
				r.On("ListActivePlans", mock.Anything).Return(plans, nil).Once()
				c.On("Set", plansCacheKey, plans, time.Hour).Return(nil).Once()
			},
			wantLen: 1,
		},
		{
			name: "cache error is tolerated",
			setupMocks: func(r *RepoMock, c *CacheMock) {
				c.On("Get", plansCacheKey, mock.Anything).Return(false, errors.New("redis down")).Once()
				r.On("ListActivePlans", mock.Anything).Return(plans, nil).Once()
				c.On("Set", plansCacheKey, plans, time.Hour).Return(errors.New("redis down")).Once()
			},
			wantLen: 1,
		},
		{
			name: "repo error",
			setupMocks: func(r *RepoMock, c *CacheMock) {
				c.On("Get", plansCacheKey, mock.Anything).Return(false, nil).Once()
				r.On("ListActivePlans", mock.Anything).Return(nil, errors.New("db down")).Once()
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			cache := new(CacheMock)
			svc := New(repo, cache, newNoopLogger())

			tt.setupMocks(repo, cache)

			got, err := svc.Plans(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Len(t, got, tt.wantLen)
			}

			repo.AssertExpectations(t)
			cache.AssertExpectations(t)
		})
	}
}

func TestService_ApplyPaidOrder(t *testing.T) {
	sub := &models.Subscription{
		ID:      10,
		UserUID: "user-1",
		PlanID:  1,
		Status:  models.SubscriptionStatusActive,
	}

	tests := []struct {
		name        string
		setupMocks  func(r *RepoMock)
		wantApplied bool
		wantErr     bool
	}{
		{
			name: "first application wins and returns the subscription",
			setupMocks: func(r *RepoMock) {
				r.On("ApplyOrderSuccess", mock.Anything, "LTV1001", "trade-1", mock.Anything).
					Return(true, sub, nil).Once()
			},
			wantApplied: true,
		},
		{
			name: "repeated order is reported as already applied",
			setupMocks: func(r *RepoMock) {
				r.On("ApplyOrderSuccess", mock.Anything, "LTV1001", "trade-1", mock.Anything).
					Return(false, nil, nil).Once()
			},
		},
		{
			name: "repo error is propagated",
			setupMocks: func(r *RepoMock) {
				r.On("ApplyOrderSuccess", mock.Anything, "LTV1001", "trade-1", mock.Anything).
					Return(false, nil, errors.New("db down")).Once()
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			svc := New(repo, new(CacheMock), newNoopLogger())

			tt.setupMocks(repo)

			applied, got, err := svc.ApplyPaidOrder(context.Background(), "LTV1001", "trade-1")
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.wantApplied, applied)
				if tt.wantApplied {
					assert.Equal(t, sub.ID, got.ID)
				} else {
					assert.Nil(t, got)
				}
			}

			repo.AssertExpectations(t)
		})
	}
}

func TestService_Subscribe(t *testing.T) {
	active := &models.Subscription{ID: 5, UserUID: "user-1", Status: models.SubscriptionStatusActive}

	tests := []struct {
		name       string
		setupMocks func(r *RepoMock)
		wantErr    error
	}{
		{
			name: "success",
			setupMocks: func(r *RepoMock) {
				r.On("GetActivePlan", mock.Anything, int64(1)).Return(&monthlyPlan, nil).Once()
				r.On("FindActiveSubscription", mock.Anything, "user-1", mock.Anything).
					Return(nil, repository.ErrSubscriptionNotFound).Once()
				r.On("ExpireOverdueForUser", mock.Anything, "user-1", mock.Anything).Return(nil).Once()
				r.On("CreateSubscription", mock.Anything, mock.Anything).Return(int64(7), nil).Once()
			},
		},
		{
			name: "conflict with active subscription",
			setupMocks: func(r *RepoMock) {
				r.On("GetActivePlan", mock.Anything, int64(1)).Return(&monthlyPlan, nil).Once()
				r.On("FindActiveSubscription", mock.Anything, "user-1", mock.Anything).Return(active, nil).Once()
			},
			wantErr: ErrAlreadySubscribed,
		},
		{
			name: "unique index race maps to conflict",
			setupMocks: func(r *RepoMock) {
				r.On("GetActivePlan", mock.Anything, int64(1)).Return(&monthlyPlan, nil).Once()
				r.On("FindActiveSubscription", mock.Anything, "user-1", mock.Anything).
					Return(nil, repository.ErrSubscriptionNotFound).Once()
				r.On("ExpireOverdueForUser", mock.Anything, "user-1", mock.Anything).Return(nil).Once()
				r.On("CreateSubscription", mock.Anything, mock.Anything).
					Return(int64(0), repository.ErrActiveSubscriptionExists).Once()
			},
			wantErr: ErrAlreadySubscribed,
		},
		{
			name: "unknown plan",
			setupMocks: func(r *RepoMock) {
				r.On("GetActivePlan", mock.Anything, int64(1)).Return(nil, repository.ErrPlanNotFound).Once()
			},
			wantErr: ErrNoPlanAvailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			svc := New(repo, new(CacheMock), newNoopLogger())

			tt.setupMocks(repo)

			_, err := svc.Subscribe(context.Background(), "user-1", 1)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}

			repo.AssertExpectations(t)
		})
	}
}

func TestService_CreateTrial(t *testing.T) {
	active := &models.Subscription{ID: 5, UserUID: "user-1", Status: models.SubscriptionStatusActive}

	tests := []struct {
		name       string
		setupMocks func(r *RepoMock)
		wantErr    error
	}{
		{
			name: "success",
			setupMocks: func(r *RepoMock) {
				r.On("HasUsedTrial", mock.Anything, "user-1").Return(false, nil).Once()
				r.On("FindActiveSubscription", mock.Anything, "user-1", mock.Anything).
					Return(nil, repository.ErrSubscriptionNotFound).Once()
				r.On("FindTrialPlan", mock.Anything).Return(&monthlyPlan, nil).Once()
				r.On("ExpireOverdueForUser", mock.Anything, "user-1", mock.Anything).Return(nil).Once()
				r.On("CreateSubscription", mock.Anything, mock.MatchedBy(func(sub models.Subscription) bool {
					return sub.PaymentStatus == models.PaymentStatusTrial &&
						sub.OrderNo == "" &&
						sub.EndDate.Sub(sub.StartDate) == models.TrialDuration
				})).Return(int64(8), nil).Once()
			},
		},
		{
			name: "trial already used",
			setupMocks: func(r *RepoMock) {
				r.On("HasUsedTrial", mock.Anything, "user-1").Return(true, nil).Once()
			},
			wantErr: ErrTrialAlreadyUsed,
		},
		{
			name: "blocked by active subscription",
			setupMocks: func(r *RepoMock) {
				r.On("HasUsedTrial", mock.Anything, "user-1").Return(false, nil).Once()
				r.On("FindActiveSubscription", mock.Anything, "user-1", mock.Anything).Return(active, nil).Once()
			},
			wantErr: ErrAlreadySubscribed,
		},
		{
			name: "no monthly plan configured",
			setupMocks: func(r *RepoMock) {
				r.On("HasUsedTrial", mock.Anything, "user-1").Return(false, nil).Once()
				r.On("FindActiveSubscription", mock.Anything, "user-1", mock.Anything).
					Return(nil, repository.ErrSubscriptionNotFound).Once()
				r.On("FindTrialPlan", mock.Anything).Return(nil, repository.ErrPlanNotFound).Once()
			},
			wantErr: ErrNoPlanAvailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			svc := New(repo, new(CacheMock), newNoopLogger())

			tt.setupMocks(repo)

			_, err := svc.CreateTrial(context.Background(), "user-1")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}

			repo.AssertExpectations(t)
		})
	}
}

func TestService_Cancel(t *testing.T) {
	active := &models.Subscription{ID: 5, UserUID: "user-1", Status: models.SubscriptionStatusActive}

	tests := []struct {
		name       string
		setupMocks func(r *RepoMock)
		wantErr    error
	}{
		{
			name: "success",
			setupMocks: func(r *RepoMock) {
				r.On("FindActiveSubscription", mock.Anything, "user-1", mock.Anything).Return(active, nil).Once()
				r.On("CancelSubscription", mock.Anything, int64(5)).Return(nil).Once()
			},
		},
		{
			name: "nothing to cancel",
			setupMocks: func(r *RepoMock) {
				r.On("FindActiveSubscription", mock.Anything, "user-1", mock.Anything).
					Return(nil, repository.ErrSubscriptionNotFound).Once()
			},
			wantErr: ErrNoActiveFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			svc := New(repo, new(CacheMock), newNoopLogger())

			tt.setupMocks(repo)

			err := svc.Cancel(context.Background(), "user-1")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}

			repo.AssertExpectations(t)
		})
	}
}
