package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/magabrotheeeer/subscription-gateway/internal/models"
)

// CollectDashboardStats собирает сводку для админки одним запросом.
func (s *Storage) CollectDashboardStats(ctx context.Context, now time.Time) (*models.DashboardStats, error) {
	const op = "storage.CollectDashboardStats"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT
			  (SELECT COUNT(*) FROM users),
			  (SELECT COUNT(*) FROM users WHERE status = 'active'),
			  (SELECT COUNT(*) FROM users WHERE created_at >= date_trunc('day', $1::timestamptz)),
			  (SELECT COUNT(*) FROM user_subscriptions WHERE status = 'active' AND end_date > $1),
			  (SELECT COUNT(*) FROM user_subscriptions WHERE status = 'active' AND end_date <= $1),
			  (SELECT COUNT(*) FROM user_subscriptions WHERE payment_status = 'trial' AND status = 'active' AND end_date > $1),
			  (SELECT COALESCE(SUM(amount), 0) FROM payment_orders WHERE state = 'succeeded'),
			  (SELECT COALESCE(SUM(amount), 0) FROM payment_orders
			          WHERE state = 'succeeded' AND created_at >= date_trunc('month', $1::timestamptz)),
			  (SELECT COUNT(*) FROM payment_orders WHERE state = 'succeeded'),
			  (SELECT COUNT(*) FROM payment_orders WHERE state = 'pending')`
	st := &models.DashboardStats{}
	if err := s.DB.QueryRowContext(ctx, query, now).Scan(
		&st.TotalUsers, &st.ActiveUsers, &st.NewUsersToday,
		&st.ActiveSubscriptions, &st.OverdueSubscriptions, &st.TrialSubscriptions,
		&st.RevenueTotal, &st.RevenueThisMonth,
		&st.SucceededOrdersTotal, &st.PendingOrders); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return st, nil
}

// ListUsersWithSubscription возвращает страницу пользователей вместе с их
// последней подпиской. Поиск идёт по подстроке имени или почты.
func (s *Storage) ListUsersWithSubscription(ctx context.Context, search string, limit, offset int) ([]models.AdminUserRow, error) {
	const op = "storage.ListUsersWithSubscription"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT u.uid, u.username, u.email, u.status, u.created_at,
			         us.end_date, us.status, us.payment_status, p.name
			  FROM users u
			  LEFT JOIN LATERAL (
			      SELECT plan_id, end_date, status, payment_status
			      FROM user_subscriptions
			      WHERE user_uid = u.uid
			      ORDER BY end_date DESC
			      LIMIT 1
			  ) us ON TRUE
			  LEFT JOIN subscription_plans p ON p.id = us.plan_id
			  WHERE ($1 = '' OR u.username ILIKE '%' || $1 || '%' OR u.email ILIKE '%' || $1 || '%')
			  ORDER BY u.created_at DESC
			  LIMIT $2 OFFSET $3`
	rows, err := s.DB.QueryContext(ctx, query, search, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var result []models.AdminUserRow
	for rows.Next() {
		var r models.AdminUserRow
		if err := rows.Scan(&r.UID, &r.Username, &r.Email, &r.Status, &r.CreatedAt,
			&r.SubscriptionEnd, &r.SubscriptionStat, &r.PaymentStatus, &r.PlanName); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// CountUsers возвращает общее число пользователей, подходящих под поиск.
func (s *Storage) CountUsers(ctx context.Context, search string) (int, error) {
	const op = "storage.CountUsers"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var count int
	query := `SELECT COUNT(*) FROM users
			  WHERE ($1 = '' OR username ILIKE '%' || $1 || '%' OR email ILIKE '%' || $1 || '%')`
	if err := s.DB.QueryRowContext(ctx, query, search).Scan(&count); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return count, nil
}
