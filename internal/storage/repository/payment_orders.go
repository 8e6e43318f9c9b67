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

// CreatePaymentOrder сохраняет заказ до обращения к платёжному провайдеру.
// Если заказ не дошёл до провайдера, строка остаётся в состоянии pending
// и закрывается при следующем опросе.
func (s *Storage) CreatePaymentOrder(ctx context.Context, order models.PaymentOrder) (int64, error) {
	const op = "storage.CreatePaymentOrder"
	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO payment_orders
			  (order_no, user_uid, plan_id, provider, amount, charged_amount, currency, is_renewal, state)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			  RETURNING id`
	var id int64
	err := s.DB.QueryRowContext(ctx, query,
		order.OrderNo, order.UserUID, order.PlanID, order.Provider,
		order.Amount, order.ChargedAmount, order.Currency, order.IsRenewal, order.State).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, fmt.Errorf("%s: %w", op, ErrDuplicateOrder)
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

// GetPaymentOrder возвращает заказ по его номеру.
func (s *Storage) GetPaymentOrder(ctx context.Context, orderNo string) (*models.PaymentOrder, error) {
	const op = "storage.GetPaymentOrder"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, order_no, user_uid, plan_id, provider, amount, charged_amount,
			         currency, is_renewal, state, external_id, created_at, updated_at
			  FROM payment_orders
			  WHERE order_no = $1`
	o := &models.PaymentOrder{}
	row := s.DB.QueryRowContext(ctx, query, orderNo)
	if err := row.Scan(&o.ID, &o.OrderNo, &o.UserUID, &o.PlanID, &o.Provider,
		&o.Amount, &o.ChargedAmount, &o.Currency, &o.IsRenewal, &o.State,
		&o.ExternalID, &o.CreatedAt, &o.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrOrderNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return o, nil
}

// SetOrderExternalID привязывает идентификатор провайдера к заказу.
func (s *Storage) SetOrderExternalID(ctx context.Context, orderNo, externalID string) error {
	const op = "storage.SetOrderExternalID"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE payment_orders
			  SET external_id = $2, updated_at = now()
			  WHERE order_no = $1`
	if _, err := s.DB.ExecContext(ctx, query, orderNo, externalID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ApplyOrderSuccess в одной транзакции переводит заказ pending -> succeeded
// и применяет платёж к реестру подписок: продлевает действующую подписку
// либо создаёт новую. Возвращает false, если переход уже произошёл ранее,
// тогда реестр не трогается. Ошибка откатывает и переход заказа: заказ
// остаётся pending, его применит следующее уведомление или опрос статуса.
func (s *Storage) ApplyOrderSuccess(ctx context.Context, orderNo, externalID string, now time.Time) (bool, *models.Subscription, error) {
	const op = "storage.ApplyOrderSuccess"
	select {
	case <-ctx.Done():
		return false, nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var (
		userUID string
		planID  int64
		amount  float64
	)
	query := `UPDATE payment_orders
			  SET state = 'succeeded', external_id = $2, updated_at = now()
			  WHERE order_no = $1 AND state = 'pending'
			  RETURNING user_uid, plan_id, amount`
	if err := tx.QueryRowContext(ctx, query, orderNo, externalID).Scan(&userUID, &planID, &amount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil, nil
		}
		return false, nil, fmt.Errorf("%s: %w", op, err)
	}

	// План читается без фильтра по is_active: план мог стать неактивным
	// между оплатой и сверкой, оплаченный заказ всё равно применяется.
	var months int
	if err := tx.QueryRowContext(ctx,
		`SELECT duration_months FROM subscription_plans WHERE id = $1`, planID).Scan(&months); err != nil {
		return false, nil, fmt.Errorf("%s: %w", op, err)
	}

	sub := &models.Subscription{}
	var currentID int64
	findQuery := `SELECT id FROM user_subscriptions
			  WHERE user_uid = $1 AND status = 'active' AND end_date > $2
			        AND payment_status IN ('paid', 'trial')
			  ORDER BY end_date DESC
			  LIMIT 1
			  FOR UPDATE`
	err = tx.QueryRowContext(ctx, findQuery, userUID, now).Scan(&currentID)
	switch {
	case err == nil:
		// Продление отсчитывается от прежней даты окончания.
		renewQuery := `UPDATE user_subscriptions
			  SET end_date = end_date + make_interval(months => $2),
			      status = 'active',
			      payment_status = 'paid',
			      order_no = $3,
			      amount = $4,
			      updated_at = now()
			  WHERE id = $1
			  RETURNING id, user_uid, plan_id, start_date, end_date, status, payment_status,
			            order_no, amount, created_at, updated_at`
		row := tx.QueryRowContext(ctx, renewQuery, currentID, months, orderNo, amount)
		if err := scanSubscription(row, sub); err != nil {
			return false, nil, fmt.Errorf("%s: %w", op, err)
		}
	case errors.Is(err, sql.ErrNoRows):
		// Зависшая просроченная строка снимается до вставки, иначе
		// сработает уникальный индекс активной подписки.
		expireQuery := `UPDATE user_subscriptions
			  SET status = 'expired', updated_at = now()
			  WHERE user_uid = $1 AND status = 'active' AND end_date <= $2`
		if _, err := tx.ExecContext(ctx, expireQuery, userUID, now); err != nil {
			return false, nil, fmt.Errorf("%s: %w", op, err)
		}
		insertQuery := `INSERT INTO user_subscriptions
			  (user_uid, plan_id, start_date, end_date, status, payment_status, order_no, amount)
			  VALUES ($1, $2, $3, $3 + make_interval(months => $4), 'active', 'paid', $5, $6)
			  RETURNING id, user_uid, plan_id, start_date, end_date, status, payment_status,
			            order_no, amount, created_at, updated_at`
		row := tx.QueryRowContext(ctx, insertQuery, userUID, planID, now, months, orderNo, amount)
		if err := scanSubscription(row, sub); err != nil {
			return false, nil, fmt.Errorf("%s: %w", op, err)
		}
	default:
		return false, nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return false, nil, fmt.Errorf("%s: %w", op, err)
	}
	return true, sub, nil
}

// MarkOrderClosed переводит необработанный заказ в конечное состояние
// failed или cancelled. Заказ, уже покинувший pending, не трогается.
func (s *Storage) MarkOrderClosed(ctx context.Context, orderNo, state string) (bool, error) {
	const op = "storage.MarkOrderClosed"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE payment_orders
			  SET state = $2, updated_at = now()
			  WHERE order_no = $1 AND state = 'pending'`
	res, err := s.DB.ExecContext(ctx, query, orderNo, state)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n == 1, nil
}

// MarkOrderRefunded переводит заказ succeeded -> refunded.
func (s *Storage) MarkOrderRefunded(ctx context.Context, orderNo string) (bool, error) {
	const op = "storage.MarkOrderRefunded"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE payment_orders
			  SET state = 'refunded', updated_at = now()
			  WHERE order_no = $1 AND state = 'succeeded'`
	res, err := s.DB.ExecContext(ctx, query, orderNo)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n == 1, nil
}
