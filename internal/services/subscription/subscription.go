// Package subscription содержит бизнес-логику реестра подписок:
// оформление, продление, отмену, пробный период и справочник планов.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/subscription-gateway/internal/models"
	"github.com/magabrotheeeer/subscription-gateway/internal/storage/repository"
)

// Ошибки бизнес-уровня.
var (
	ErrTrialAlreadyUsed  = errors.New("trial already used")
	ErrAlreadySubscribed = errors.New("active subscription already exists")
	ErrNoPlanAvailable   = errors.New("no suitable plan available")
	ErrNoActiveFound     = errors.New("no active subscription")
)

const plansCacheKey = "subscription:plans"

// Repository описывает методы хранилища, нужные реестру подписок.
type Repository interface {
	CreateSubscription(ctx context.Context, sub models.Subscription) (int64, error)
	FindActiveSubscription(ctx context.Context, userUID string, now time.Time) (*models.Subscription, error)
	GetSubscriptionDetails(ctx context.Context, userUID string, now time.Time) (*models.SubscriptionDetails, error)
	ListSubscriptionHistory(ctx context.Context, userUID string) ([]models.SubscriptionDetails, error)
	RenewSubscription(ctx context.Context, id int64, months int, orderNo string, amount float64) (*models.Subscription, error)
	CancelSubscription(ctx context.Context, id int64) error
	ExpireOverdueForUser(ctx context.Context, userUID string, asOf time.Time) error
	HasUsedTrial(ctx context.Context, userUID string) (bool, error)
	ApplyOrderSuccess(ctx context.Context, orderNo, externalID string, now time.Time) (bool, *models.Subscription, error)
	ListActivePlans(ctx context.Context) ([]models.SubscriptionPlan, error)
	GetActivePlan(ctx context.Context, planID int64) (*models.SubscriptionPlan, error)
	FindTrialPlan(ctx context.Context) (*models.SubscriptionPlan, error)
}

// Cache описывает методы кэширования справочных данных.
type Cache interface {
	Get(key string, result any) (bool, error)
	Set(key string, value any, expiration time.Duration) error
	Invalidate(key string) error
}

// Service реализует операции реестра подписок.
type Service struct {
	repo  Repository
	cache Cache
	log   *slog.Logger
}

// New создает новый экземпляр Service.
func New(repo Repository, cache Cache, log *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, log: log}
}

// Plans возвращает активные тарифные планы. Справочник меняется редко,
// поэтому кэшируется.
func (s *Service) Plans(ctx context.Context) ([]models.SubscriptionPlan, error) {
	var plans []models.SubscriptionPlan
	found, err := s.cache.Get(plansCacheKey, &plans)
	if err != nil {
		s.log.Warn("failed to read plans from cache", slog.Any("err", err))
	}
	if found {
		return plans, nil
	}

	plans, err = s.repo.ListActivePlans(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(plansCacheKey, plans, time.Hour); err != nil {
		s.log.Warn("failed to cache plans", slog.Any("err", err))
	}
	return plans, nil
}

// Current возвращает действующую подписку пользователя с данными плана.
func (s *Service) Current(ctx context.Context, userUID string) (*models.SubscriptionDetails, error) {
	details, err := s.repo.GetSubscriptionDetails(ctx, userUID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			return nil, ErrNoActiveFound
		}
		return nil, err
	}
	return details, nil
}

// History возвращает все подписки пользователя, включая завершённые.
func (s *Service) History(ctx context.Context, userUID string) ([]models.SubscriptionDetails, error) {
	return s.repo.ListSubscriptionHistory(ctx, userUID)
}

// ApplyPaidOrder применяет оплаченный ордер к реестру: продлевает
// действующую подписку или создаёт новую. Переход ордера pending ->
// succeeded и мутация реестра выполняются одной транзакцией хранилища,
// поэтому сбой мутации не оставляет оплаченный заказ без подписки.
// Повторный вызов по тому же ордеру возвращает false и реестр не меняет.
func (s *Service) ApplyPaidOrder(ctx context.Context, orderNo, externalID string) (bool, *models.Subscription, error) {
	const op = "services.subscription.ApplyPaidOrder"

	applied, sub, err := s.repo.ApplyOrderSuccess(ctx, orderNo, externalID, time.Now().UTC())
	if err != nil {
		return false, nil, fmt.Errorf("%s: %w", op, err)
	}
	if applied {
		s.log.Info("applied paid order",
			slog.String("order_no", orderNo),
			slog.Int("id", sub.ID), slog.String("user_uid", sub.UserUID))
	}
	return applied, sub, nil
}

// Subscribe оформляет подписку напрямую, без платёжного провайдера.
// При действующей подписке возвращает ErrAlreadySubscribed: для
// продления предназначена операция Renew.
func (s *Service) Subscribe(ctx context.Context, userUID string, planID int64) (*models.Subscription, error) {
	const op = "services.subscription.Subscribe"

	plan, err := s.repo.GetActivePlan(ctx, planID)
	if err != nil {
		if errors.Is(err, repository.ErrPlanNotFound) {
			return nil, ErrNoPlanAvailable
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now().UTC()
	if _, err := s.repo.FindActiveSubscription(ctx, userUID, now); err == nil {
		return nil, ErrAlreadySubscribed
	} else if !errors.Is(err, repository.ErrSubscriptionNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.repo.ExpireOverdueForUser(ctx, userUID, now); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sub := models.Subscription{
		UserUID:       userUID,
		PlanID:        plan.ID,
		StartDate:     now,
		EndDate:       now.AddDate(0, plan.DurationMonths, 0),
		Status:        models.SubscriptionStatusActive,
		PaymentStatus: models.PaymentStatusPaid,
		Amount:        plan.Price,
	}
	id, err := s.repo.CreateSubscription(ctx, sub)
	if err != nil {
		if errors.Is(err, repository.ErrActiveSubscriptionExists) {
			return nil, ErrAlreadySubscribed
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	sub.ID = int(id)

	s.log.Info("created subscription",
		slog.Int64("id", id), slog.String("user_uid", userUID))
	return &sub, nil
}

// Renew продлевает действующую подписку на срок выбранного плана.
// Новый срок отсчитывается от прежней даты окончания.
func (s *Service) Renew(ctx context.Context, userUID string, planID int64) (*models.Subscription, error) {
	const op = "services.subscription.Renew"

	plan, err := s.repo.GetActivePlan(ctx, planID)
	if err != nil {
		if errors.Is(err, repository.ErrPlanNotFound) {
			return nil, ErrNoPlanAvailable
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	current, err := s.repo.FindActiveSubscription(ctx, userUID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			return nil, ErrNoActiveFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	renewed, err := s.repo.RenewSubscription(ctx, int64(current.ID), plan.DurationMonths, current.OrderNo, plan.Price)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("renewed subscription",
		slog.Int("id", renewed.ID), slog.String("user_uid", userUID))
	return renewed, nil
}

// CreateTrial выдаёт трёхдневный пробный доступ. Право даётся один раз
// за всю жизнь учётной записи и недоступно при действующей подписке.
func (s *Service) CreateTrial(ctx context.Context, userUID string) (*models.Subscription, error) {
	const op = "services.subscription.CreateTrial"

	used, err := s.repo.HasUsedTrial(ctx, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if used {
		return nil, ErrTrialAlreadyUsed
	}

	now := time.Now().UTC()
	if _, err := s.repo.FindActiveSubscription(ctx, userUID, now); err == nil {
		return nil, ErrAlreadySubscribed
	} else if !errors.Is(err, repository.ErrSubscriptionNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	plan, err := s.repo.FindTrialPlan(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrPlanNotFound) {
			return nil, ErrNoPlanAvailable
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.repo.ExpireOverdueForUser(ctx, userUID, now); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sub := models.Subscription{
		UserUID:       userUID,
		PlanID:        plan.ID,
		StartDate:     now,
		EndDate:       now.Add(models.TrialDuration),
		Status:        models.SubscriptionStatusActive,
		PaymentStatus: models.PaymentStatusTrial,
	}
	id, err := s.repo.CreateSubscription(ctx, sub)
	if err != nil {
		if errors.Is(err, repository.ErrActiveSubscriptionExists) {
			return nil, ErrAlreadySubscribed
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	sub.ID = int(id)

	s.log.Info("created trial subscription",
		slog.Int64("id", id), slog.String("user_uid", userUID))
	return &sub, nil
}

// TrialAvailable сообщает, доступен ли пользователю пробный период.
func (s *Service) TrialAvailable(ctx context.Context, userUID string) (bool, error) {
	used, err := s.repo.HasUsedTrial(ctx, userUID)
	if err != nil {
		return false, err
	}
	return !used, nil
}

// Cancel отменяет действующую подписку пользователя. Доступ прекращается
// сразу, оплаченный остаток не возвращается.
func (s *Service) Cancel(ctx context.Context, userUID string) error {
	const op = "services.subscription.Cancel"

	current, err := s.repo.FindActiveSubscription(ctx, userUID, time.Now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			return ErrNoActiveFound
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.repo.CancelSubscription(ctx, int64(current.ID)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("cancelled subscription",
		slog.Int("id", current.ID), slog.String("user_uid", userUID))
	return nil
}
