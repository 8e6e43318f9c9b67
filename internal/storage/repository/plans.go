package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/subscription-gateway/internal/models"
)

// ListActivePlans возвращает активные тарифные планы, отсортированные по цене.
func (s *Storage) ListActivePlans(ctx context.Context) ([]models.SubscriptionPlan, error) {
	const op = "storage.ListActivePlans"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, name, description, duration_months, price, is_active, created_at
			  FROM subscription_plans
			  WHERE is_active = TRUE
			  ORDER BY price ASC`
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var plans []models.SubscriptionPlan
	for rows.Next() {
		var p models.SubscriptionPlan
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.DurationMonths,
			&p.Price, &p.IsActive, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return plans, nil
}

// GetActivePlan возвращает активный план по идентификатору.
// Неактивный план для покупки недоступен и считается ненайденным.
func (s *Storage) GetActivePlan(ctx context.Context, planID int64) (*models.SubscriptionPlan, error) {
	const op = "storage.GetActivePlan"
	return s.getPlan(ctx, op, `id = $1 AND is_active = TRUE`, planID)
}

// GetPlan возвращает план по идентификатору независимо от активности.
func (s *Storage) GetPlan(ctx context.Context, planID int64) (*models.SubscriptionPlan, error) {
	const op = "storage.GetPlan"
	return s.getPlan(ctx, op, `id = $1`, planID)
}

func (s *Storage) getPlan(ctx context.Context, op, where string, arg any) (*models.SubscriptionPlan, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := fmt.Sprintf(`SELECT id, name, description, duration_months, price, is_active, created_at
			  FROM subscription_plans WHERE %s`, where)
	p := &models.SubscriptionPlan{}
	row := s.DB.QueryRowContext(ctx, query, arg)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.DurationMonths,
		&p.Price, &p.IsActive, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrPlanNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// FindTrialPlan возвращает самый дешёвый активный месячный план —
// на его основе рассчитывается пробный период.
func (s *Storage) FindTrialPlan(ctx context.Context) (*models.SubscriptionPlan, error) {
	const op = "storage.FindTrialPlan"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT id, name, description, duration_months, price, is_active, created_at
			  FROM subscription_plans
			  WHERE duration_months = 1 AND is_active = TRUE
			  ORDER BY price ASC
			  LIMIT 1`
	p := &models.SubscriptionPlan{}
	row := s.DB.QueryRowContext(ctx, query)
	if err := row.Scan(&p.ID, &p.Name, &p.Description, &p.DurationMonths,
		&p.Price, &p.IsActive, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrPlanNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// EnsureDefaultPlans создаёт стандартные планы, если таблица пуста.
// Вызывается при старте приложения после миграций.
func (s *Storage) EnsureDefaultPlans(ctx context.Context) error {
	const op = "storage.EnsureDefaultPlans"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var count int
	if err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subscription_plans`).Scan(&count); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if count > 0 {
		return nil
	}

	query := `INSERT INTO subscription_plans (name, description, duration_months, price, is_active)
			  VALUES
			  ('月度订阅', '月度订阅，享受所有高级功能', 1, 9.90, TRUE),
			  ('年度订阅', '年度订阅，享受所有高级功能，更优惠', 12, 99.90, TRUE)`
	if _, err := s.DB.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
