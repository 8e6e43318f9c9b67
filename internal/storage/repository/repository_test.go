package repository

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/subscription-gateway/internal/migrations"
	"github.com/magabrotheeeer/subscription-gateway/internal/models"
)

// newTestStorage поднимает PostgreSQL в контейнере, прогоняет миграции
// и наполняет справочник планов.
func newTestStorage(t *testing.T) (*Storage, func()) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second),
		),
	)
	require.NoError(t, err)

	dsn, err := pgContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := sql.Open("pgx", dsn)
	require.NoError(t, err)

	projectRoot, err := filepath.Abs("../../..")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(db, filepath.Join(projectRoot, "migrations")))

	st := &Storage{DB: db}
	require.NoError(t, st.EnsureDefaultPlans(ctx))

	cleanup := func() {
		db.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}
	return st, cleanup
}

func createTestUser(t *testing.T, st *Storage, name string) string {
	uid, err := st.CreateUser(context.Background(), models.User{
		Username:     name,
		Email:        name + "@example.com",
		PasswordHash: "x",
	})
	require.NoError(t, err)
	return uid
}

func monthlyPlanID(t *testing.T, st *Storage) int {
	plans, err := st.ListActivePlans(context.Background())
	require.NoError(t, err)
	for _, p := range plans {
		if p.DurationMonths == 1 {
			return p.ID
		}
	}
	t.Fatal("monthly plan is not seeded")
	return 0
}

func TestStorage_RenewSubscription_StacksFromPriorEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	st, cleanup := newTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	uid := createTestUser(t, st, "renewer")
	planID := monthlyPlanID(t, st)

	start := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	end := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	id, err := st.CreateSubscription(ctx, models.Subscription{
		UserUID:       uid,
		PlanID:        planID,
		StartDate:     start,
		EndDate:       end,
		Status:        models.SubscriptionStatusActive,
		PaymentStatus: models.PaymentStatusPaid,
		OrderNo:       "LTV1001",
		Amount:        9.9,
	})
	require.NoError(t, err)

	renewed, err := st.RenewSubscription(ctx, id, 1, "LTV1002", 9.9)
	require.NoError(t, err)

	// Продление отсчитывается от прежней даты окончания, не от текущего момента.
	require.WithinDuration(t, end.AddDate(0, 1, 0), renewed.EndDate, time.Second)
	require.Equal(t, "LTV1002", renewed.OrderNo)
	require.Equal(t, models.SubscriptionStatusActive, renewed.Status)
}

func TestStorage_RenewSubscription_ReactivatesSweptRow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	st, cleanup := newTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	uid := createTestUser(t, st, "swept")
	planID := monthlyPlanID(t, st)

	now := time.Now().UTC()
	id, err := st.CreateSubscription(ctx, models.Subscription{
		UserUID:       uid,
		PlanID:        planID,
		StartDate:     now.AddDate(0, -2, 0),
		EndDate:       now.Add(-time.Hour),
		Status:        models.SubscriptionStatusActive,
		PaymentStatus: models.PaymentStatusPaid,
		OrderNo:       "LTV2001",
		Amount:        9.9,
	})
	require.NoError(t, err)

	expired, err := st.ExpireSubscriptionsBatch(ctx, now)
	require.NoError(t, err)
	require.Len(t, expired, 1)

	// Свипер успел пометить строку истёкшей, оплата всё равно применяется.
	renewed, err := st.RenewSubscription(ctx, id, 1, "LTV2002", 9.9)
	require.NoError(t, err)
	require.Equal(t, models.SubscriptionStatusActive, renewed.Status)
	require.True(t, renewed.EndDate.After(now))
}

func TestStorage_ExpireSubscriptionsBatch_Idempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	st, cleanup := newTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	uid := createTestUser(t, st, "expired")
	planID := monthlyPlanID(t, st)

	now := time.Now().UTC()
	_, err := st.CreateSubscription(ctx, models.Subscription{
		UserUID:       uid,
		PlanID:        planID,
		StartDate:     now.AddDate(0, -1, 0),
		EndDate:       now.Add(-time.Minute),
		Status:        models.SubscriptionStatusActive,
		PaymentStatus: models.PaymentStatusPaid,
	})
	require.NoError(t, err)

	expired, err := st.ExpireSubscriptionsBatch(ctx, now)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	require.Equal(t, uid, expired[0].UserUID)

	expired, err = st.ExpireSubscriptionsBatch(ctx, now)
	require.NoError(t, err)
	require.Empty(t, expired)
}

func TestStorage_CreateSubscription_ActiveConflict(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	st, cleanup := newTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	uid := createTestUser(t, st, "conflicted")
	planID := monthlyPlanID(t, st)

	now := time.Now().UTC()
	sub := models.Subscription{
		UserUID:       uid,
		PlanID:        planID,
		StartDate:     now,
		EndDate:       now.AddDate(0, 1, 0),
		Status:        models.SubscriptionStatusActive,
		PaymentStatus: models.PaymentStatusPaid,
	}
	_, err := st.CreateSubscription(ctx, sub)
	require.NoError(t, err)

	_, err = st.CreateSubscription(ctx, sub)
	require.ErrorIs(t, err, ErrActiveSubscriptionExists)
}

func TestStorage_ApplyOrderSuccess(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	st, cleanup := newTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	uid := createTestUser(t, st, "payer")
	planID := monthlyPlanID(t, st)
	now := time.Now().UTC()

	newOrder := func(orderNo string) {
		_, err := st.CreatePaymentOrder(ctx, models.PaymentOrder{
			OrderNo:       orderNo,
			UserUID:       uid,
			PlanID:        planID,
			Provider:      models.ProviderAlipay,
			Amount:        9.9,
			ChargedAmount: 9.9,
			Currency:      "CNY",
			State:         models.OrderStatePending,
		})
		require.NoError(t, err)
	}

	newOrder("LTV3001")
	applied, sub, err := st.ApplyOrderSuccess(ctx, "LTV3001", "trade-1", now)
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, models.SubscriptionStatusActive, sub.Status)
	require.Equal(t, models.PaymentStatusPaid, sub.PaymentStatus)
	require.Equal(t, "LTV3001", sub.OrderNo)
	require.WithinDuration(t, now.AddDate(0, 1, 0), sub.EndDate, time.Second)

	order, err := st.GetPaymentOrder(ctx, "LTV3001")
	require.NoError(t, err)
	require.Equal(t, models.OrderStateSucceeded, order.State)
	require.Equal(t, "trade-1", order.ExternalID)

	// Повторное применение того же ордера — no-op.
	applied, dup, err := st.ApplyOrderSuccess(ctx, "LTV3001", "trade-1", now)
	require.NoError(t, err)
	require.False(t, applied)
	require.Nil(t, dup)

	// Второй оплаченный ордер продлевает подписку от прежней даты окончания.
	newOrder("LTV3002")
	applied, renewed, err := st.ApplyOrderSuccess(ctx, "LTV3002", "trade-2", now)
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, sub.ID, renewed.ID)
	require.WithinDuration(t, sub.EndDate.AddDate(0, 1, 0), renewed.EndDate, time.Second)
	require.Equal(t, "LTV3002", renewed.OrderNo)
}

func TestStorage_ApplyOrderSuccess_UnknownOrder(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	st, cleanup := newTestStorage(t)
	defer cleanup()

	applied, sub, err := st.ApplyOrderSuccess(context.Background(), "missing", "trade-1", time.Now().UTC())
	require.NoError(t, err)
	require.False(t, applied)
	require.Nil(t, sub)
}

func TestStorage_ListExpiringSubscriptions(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	st, cleanup := newTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	planID := monthlyPlanID(t, st)
	now := time.Now().UTC()

	mkSub := func(name string, end time.Time) string {
		uid := createTestUser(t, st, name)
		_, err := st.CreateSubscription(ctx, models.Subscription{
			UserUID:       uid,
			PlanID:        planID,
			StartDate:     now.AddDate(0, -1, 0),
			EndDate:       end,
			Status:        models.SubscriptionStatusActive,
			PaymentStatus: models.PaymentStatusPaid,
		})
		require.NoError(t, err)
		return uid
	}

	soonUID := mkSub("soon", now.Add(3*24*time.Hour))
	mkSub("later", now.Add(30*24*time.Hour))

	expiring, err := st.ListExpiringSubscriptions(ctx, now, models.ExpiringSoonWindow)
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	require.Equal(t, soonUID, expiring[0].UserUID)
}

// Нарушение ссылочной целостности внутри транзакции применения ордера
// откатывает и переход состояния: заказ остаётся pending и применяется
// повторно после устранения причины.
func TestStorage_ApplyOrderSuccess_RollbackKeepsOrderPending(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	st, cleanup := newTestStorage(t)
	defer cleanup()
	ctx := context.Background()

	uid := createTestUser(t, st, "rollback")
	planID := monthlyPlanID(t, st)
	now := time.Now().UTC()

	_, err := st.CreatePaymentOrder(ctx, models.PaymentOrder{
		OrderNo:       "LTV4001",
		UserUID:       uid,
		PlanID:        planID,
		Provider:      models.ProviderAlipay,
		Amount:        9.9,
		ChargedAmount: 9.9,
		Currency:      "CNY",
		State:         models.OrderStatePending,
	})
	require.NoError(t, err)

	// Ломаем чтение плана внутри транзакции.
	_, err = st.DB.ExecContext(ctx, `ALTER TABLE subscription_plans RENAME TO subscription_plans_hidden`)
	require.NoError(t, err)
	_, err = st.DB.ExecContext(ctx, fmt.Sprintf(
		`CREATE VIEW subscription_plans AS
		 SELECT id, name, description, duration_months, price, is_active, created_at
		 FROM subscription_plans_hidden WHERE id <> %d`, planID))
	require.NoError(t, err)

	applied, _, err := st.ApplyOrderSuccess(ctx, "LTV4001", "trade-1", now)
	require.Error(t, err)
	require.False(t, applied)

	order, err := st.GetPaymentOrder(ctx, "LTV4001")
	require.NoError(t, err)
	require.Equal(t, models.OrderStatePending, order.State)

	// После восстановления справочника повторное уведомление применяется.
	_, err = st.DB.ExecContext(ctx, `DROP VIEW subscription_plans`)
	require.NoError(t, err)
	_, err = st.DB.ExecContext(ctx, `ALTER TABLE subscription_plans_hidden RENAME TO subscription_plans`)
	require.NoError(t, err)

	applied, sub, err := st.ApplyOrderSuccess(ctx, "LTV4001", "trade-1", now)
	require.NoError(t, err)
	require.True(t, applied)
	require.Equal(t, models.SubscriptionStatusActive, sub.Status)
}
