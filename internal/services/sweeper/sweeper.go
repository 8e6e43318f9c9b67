// Package sweeper содержит фоновый процесс, переводящий просроченные
// активные подписки в статус expired. Политика доступа не полагается
// на свипер: он лишь приводит колонку status в соответствие датам и
// рассылает события об истечении.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/subscription-gateway/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/subscription-gateway/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-gateway/internal/models"
)

var (
	sweepRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sweeper_runs_total",
		Help: "Number of sweeper passes executed.",
	})
	sweepExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sweeper_expired_subscriptions_total",
		Help: "Number of subscriptions marked expired by the sweeper.",
	})
	sweepErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sweeper_errors_total",
		Help: "Number of failed sweeper passes.",
	})
	sweepExpiring = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sweeper_expiring_notifications_total",
		Help: "Number of expiring-soon events published by the sweeper.",
	})
)

// Repository описывает пакетное закрытие просроченных подписок и выборку
// подписок с подходящим к концу сроком.
type Repository interface {
	ExpireSubscriptionsBatch(ctx context.Context, asOf time.Time) ([]models.ExpiredSubscription, error)
	ListExpiringSubscriptions(ctx context.Context, asOf time.Time, within time.Duration) ([]models.ExpiringSubscription, error)
}

// ExpiredEvent — сообщение о переводе подписки в expired.
type ExpiredEvent struct {
	SubscriptionID int64     `json:"subscription_id"`
	UserUID        string    `json:"user_uid"`
	ExpiredAt      time.Time `json:"expired_at"`
}

// ExpiringEvent — предупреждение о скором истечении действующей подписки.
type ExpiringEvent struct {
	SubscriptionID int64     `json:"subscription_id"`
	UserUID        string    `json:"user_uid"`
	EndDate        time.Time `json:"end_date"`
}

// Service — фоновый свипер просроченных подписок.
type Service struct {
	repo     Repository
	channel  *amqp.Channel
	interval time.Duration
	log      *slog.Logger
}

// New создает новый экземпляр Service. Канал RabbitMQ может быть nil —
// тогда события не публикуются, но подписки всё равно закрываются.
func New(repo Repository, channel *amqp.Channel, interval time.Duration, log *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		channel:  channel,
		interval: interval,
		log:      log,
	}
}

// Run выполняет проход сразу при старте и далее по тикеру до отмены
// контекста.
func (s *Service) Run(ctx context.Context) {
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-ctx.Done():
			s.log.Info("sweeper stopped")
			return
		}
	}
}

// RunOnce выполняет один проход свипера. Проход идемпотентен: повторный
// запуск над тем же состоянием базы не находит строк.
func (s *Service) RunOnce(ctx context.Context) {
	sweepRuns.Inc()
	now := time.Now().UTC()

	expired, err := s.repo.ExpireSubscriptionsBatch(ctx, now)
	if err != nil {
		sweepErrors.Inc()
		s.log.Error("sweeper pass failed", sl.Err(err))
		return
	}
	if len(expired) > 0 {
		sweepExpired.Add(float64(len(expired)))
		s.log.Info("expired overdue subscriptions", slog.Int("count", len(expired)))
	}

	if s.channel == nil {
		return
	}
	for _, e := range expired {
		event := ExpiredEvent{
			SubscriptionID: e.SubscriptionID,
			UserUID:        e.UserUID,
			ExpiredAt:      now,
		}
		if err := rabbitmq.PublishMessage(s.channel, "notifications", "expired", event); err != nil {
			s.log.Error("failed to publish expired event", sl.Err(err))
		}
	}

	s.notifyExpiring(ctx, now)
}

// notifyExpiring публикует предупреждения по подпискам, истекающим в
// ближайшее окно. Дедупликацию повторных предупреждений выполняет
// потребитель очереди.
func (s *Service) notifyExpiring(ctx context.Context, now time.Time) {
	expiring, err := s.repo.ListExpiringSubscriptions(ctx, now, models.ExpiringSoonWindow)
	if err != nil {
		sweepErrors.Inc()
		s.log.Error("failed to list expiring subscriptions", sl.Err(err))
		return
	}
	for _, e := range expiring {
		event := ExpiringEvent{
			SubscriptionID: e.SubscriptionID,
			UserUID:        e.UserUID,
			EndDate:        e.EndDate,
		}
		if err := rabbitmq.PublishMessage(s.channel, "notifications", "expiring", event); err != nil {
			s.log.Error("failed to publish expiring event", sl.Err(err))
			continue
		}
		sweepExpiring.Inc()
	}
}
