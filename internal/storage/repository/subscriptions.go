package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/magabrotheeeer/subscription-gateway/internal/models"
)

// CreateSubscription создаёт запись подписки. Для активной подписки
// срабатывает частичный уникальный индекс: второй активной подписки
// у пользователя быть не может.
func (s *Storage) CreateSubscription(ctx context.Context, sub models.Subscription) (int64, error) {
	const op = "storage.CreateSubscription"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO user_subscriptions
			  (user_uid, plan_id, start_date, end_date, status, payment_status, order_no, amount)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			  RETURNING id`
	var id int64
	err := s.DB.QueryRowContext(ctx, query,
		sub.UserUID, sub.PlanID, sub.StartDate, sub.EndDate,
		sub.Status, sub.PaymentStatus, sub.OrderNo, sub.Amount).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%s: %w", op, ErrActiveSubscriptionExists)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

// FindActiveSubscription возвращает действующую подписку пользователя.
// Просроченная, но ещё не обработанная уборщиком строка не считается действующей.
func (s *Storage) FindActiveSubscription(ctx context.Context, userUID string, now time.Time) (*models.Subscription, error) {
	const op = "storage.FindActiveSubscription"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_uid, plan_id, start_date, end_date, status, payment_status,
			         order_no, amount, created_at, updated_at
			  FROM user_subscriptions
			  WHERE user_uid = $1 AND status = 'active' AND end_date > $2
			        AND payment_status IN ('paid', 'trial')
			  ORDER BY end_date DESC
			  LIMIT 1`
	sub := &models.Subscription{}
	row := s.DB.QueryRowContext(ctx, query, userUID, now)
	if err := scanSubscription(row, sub); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrSubscriptionNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// GetSubscriptionDetails возвращает действующую подписку вместе с данными плана.
func (s *Storage) GetSubscriptionDetails(ctx context.Context, userUID string, now time.Time) (*models.SubscriptionDetails, error) {
	const op = "storage.GetSubscriptionDetails"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT us.id, us.user_uid, us.plan_id, us.start_date, us.end_date, us.status,
			         us.payment_status, us.order_no, us.amount, us.created_at, us.updated_at,
			         p.name, p.description, p.duration_months, p.price
			  FROM user_subscriptions us
			  JOIN subscription_plans p ON us.plan_id = p.id
			  WHERE us.user_uid = $1 AND us.status = 'active' AND us.end_date > $2
			        AND us.payment_status IN ('paid', 'trial')
			  ORDER BY us.end_date DESC
			  LIMIT 1`
	d := &models.SubscriptionDetails{}
	row := s.DB.QueryRowContext(ctx, query, userUID, now)
	if err := row.Scan(&d.ID, &d.UserUID, &d.PlanID, &d.StartDate, &d.EndDate, &d.Status,
		&d.PaymentStatus, &d.OrderNo, &d.Amount, &d.CreatedAt, &d.UpdatedAt,
		&d.PlanName, &d.PlanDescription, &d.DurationMonths, &d.Price); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrSubscriptionNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return d, nil
}

// ListSubscriptionHistory возвращает все подписки пользователя, новые сверху.
func (s *Storage) ListSubscriptionHistory(ctx context.Context, userUID string) ([]models.SubscriptionDetails, error) {
	const op = "storage.ListSubscriptionHistory"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT us.id, us.user_uid, us.plan_id, us.start_date, us.end_date, us.status,
			         us.payment_status, us.order_no, us.amount, us.created_at, us.updated_at,
			         p.name, p.description, p.duration_months, p.price
			  FROM user_subscriptions us
			  JOIN subscription_plans p ON us.plan_id = p.id
			  WHERE us.user_uid = $1
			  ORDER BY us.created_at DESC`
	rows, err := s.DB.QueryContext(ctx, query, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var result []models.SubscriptionDetails
	for rows.Next() {
		var d models.SubscriptionDetails
		if err := rows.Scan(&d.ID, &d.UserUID, &d.PlanID, &d.StartDate, &d.EndDate, &d.Status,
			&d.PaymentStatus, &d.OrderNo, &d.Amount, &d.CreatedAt, &d.UpdatedAt,
			&d.PlanName, &d.PlanDescription, &d.DurationMonths, &d.Price); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// RenewSubscription продлевает подписку: новый срок отсчитывается от
// прежней даты окончания, а не от момента оплаты. Статус возвращается
// в active безусловно: свипер мог пометить строку истёкшей между
// проверкой подписки и продлением, оплата всё равно применяется.
func (s *Storage) RenewSubscription(ctx context.Context, id int64, months int, orderNo string, amount float64) (*models.Subscription, error) {
	const op = "storage.RenewSubscription"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE user_subscriptions
			  SET end_date = end_date + make_interval(months => $2),
			      status = 'active',
			      payment_status = 'paid',
			      order_no = $3,
			      amount = $4,
			      updated_at = now()
			  WHERE id = $1
			  RETURNING id, user_uid, plan_id, start_date, end_date, status, payment_status,
			            order_no, amount, created_at, updated_at`
	sub := &models.Subscription{}
	row := s.DB.QueryRowContext(ctx, query, id, months, orderNo, amount)
	if err := scanSubscription(row, sub); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrSubscriptionNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// CancelSubscription отменяет подписку по идентификатору. Повторная отмена
// уже неактивной подписки не ошибка.
func (s *Storage) CancelSubscription(ctx context.Context, id int64) error {
	const op = "storage.CancelSubscription"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE user_subscriptions
			  SET status = 'cancelled', updated_at = now()
			  WHERE id = $1 AND status = 'active'`
	if _, err := s.DB.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// CancelActiveSubscriptions отменяет все активные подписки пользователя.
// Используется административной панелью.
func (s *Storage) CancelActiveSubscriptions(ctx context.Context, userUID string) (int64, error) {
	const op = "storage.CancelActiveSubscriptions"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE user_subscriptions
			  SET status = 'cancelled', updated_at = now()
			  WHERE user_uid = $1 AND status = 'active'`
	res, err := s.DB.ExecContext(ctx, query, userUID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// ExpireSubscriptionsBatch помечает просроченные активные подписки как
// истёкшие и возвращает владельцев затронутых строк. Операция идемпотентна.
func (s *Storage) ExpireSubscriptionsBatch(ctx context.Context, asOf time.Time) ([]models.ExpiredSubscription, error) {
	const op = "storage.ExpireSubscriptionsBatch"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE user_subscriptions
			  SET status = 'expired', updated_at = now()
			  WHERE status = 'active' AND end_date <= $1
			  RETURNING id, user_uid`
	rows, err := s.DB.QueryContext(ctx, query, asOf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var expired []models.ExpiredSubscription
	for rows.Next() {
		var e models.ExpiredSubscription
		if err := rows.Scan(&e.SubscriptionID, &e.UserUID); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		expired = append(expired, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return expired, nil
}

// ListExpiringSubscriptions возвращает действующие подписки, срок которых
// заканчивается в окне (asOf, asOf+within]. Строки не меняются: выборка
// нужна свиперу для рассылки предупреждений об истечении.
func (s *Storage) ListExpiringSubscriptions(ctx context.Context, asOf time.Time, within time.Duration) ([]models.ExpiringSubscription, error) {
	const op = "storage.ListExpiringSubscriptions"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, user_uid, end_date
			  FROM user_subscriptions
			  WHERE status = 'active'
			    AND payment_status IN ('paid', 'trial')
			    AND end_date > $1 AND end_date <= $2`
	rows, err := s.DB.QueryContext(ctx, query, asOf, asOf.Add(within))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var expiring []models.ExpiringSubscription
	for rows.Next() {
		var e models.ExpiringSubscription
		if err := rows.Scan(&e.SubscriptionID, &e.UserUID, &e.EndDate); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		expiring = append(expiring, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return expiring, nil
}

// ExpireOverdueForUser точечно закрывает просроченную активную подписку
// пользователя. Вызывается перед оформлением новой, чтобы зависшая строка
// не блокировала вставку.
func (s *Storage) ExpireOverdueForUser(ctx context.Context, userUID string, asOf time.Time) error {
	const op = "storage.ExpireOverdueForUser"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE user_subscriptions
			  SET status = 'expired', updated_at = now()
			  WHERE user_uid = $1 AND status = 'active' AND end_date <= $2`
	if _, err := s.DB.ExecContext(ctx, query, userUID, asOf); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// HasUsedTrial сообщает, пользовался ли пользователь пробным периодом.
// Учитываются подписки в любом статусе: право на пробный период даётся один раз.
func (s *Storage) HasUsedTrial(ctx context.Context, userUID string) (bool, error) {
	const op = "storage.HasUsedTrial"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var used bool
	query := `SELECT EXISTS (
			      SELECT 1 FROM user_subscriptions
			      WHERE user_uid = $1 AND payment_status = 'trial')`
	if err := s.DB.QueryRowContext(ctx, query, userUID).Scan(&used); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return used, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner, sub *models.Subscription) error {
	return row.Scan(&sub.ID, &sub.UserUID, &sub.PlanID, &sub.StartDate, &sub.EndDate,
		&sub.Status, &sub.PaymentStatus, &sub.OrderNo, &sub.Amount,
		&sub.CreatedAt, &sub.UpdatedAt)
}
