// Package access реализует политику доступа к защищённому контенту.
// Ответ всегда вычисляется заново по текущему состоянию реестра:
// кэшировать решение нельзя, иначе истёкшая подписка продолжит
// открывать контент.
package access

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/subscription-gateway/internal/models"
	"github.com/magabrotheeeer/subscription-gateway/internal/storage/repository"
)

// Repository описывает метод поиска действующей подписки.
type Repository interface {
	FindActiveSubscription(ctx context.Context, userUID string, now time.Time) (*models.Subscription, error)
}

// Decision — результат проверки доступа.
type Decision struct {
	Authorized   bool       `json:"authorized"`
	ExpiringSoon bool       `json:"expiring_soon"`
	EndDate      *time.Time `json:"end_date,omitempty"`
}

// Service вычисляет решения о доступе.
type Service struct {
	repo Repository
	log  *slog.Logger
}

// New создает новый экземпляр Service.
func New(repo Repository, log *slog.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// Check возвращает решение о доступе пользователя к контенту.
// Любая ошибка хранилища трактуется как отказ: предпочитаем ложный
// отказ ложному допуску.
func (s *Service) Check(ctx context.Context, userUID string) Decision {
	now := time.Now().UTC()
	sub, err := s.repo.FindActiveSubscription(ctx, userUID, now)
	if err != nil {
		if !errors.Is(err, repository.ErrSubscriptionNotFound) {
			s.log.Error("access check failed, denying",
				slog.String("user_uid", userUID), slog.Any("err", err))
		}
		return Decision{Authorized: false}
	}
	if !sub.IsValidAt(now) {
		return Decision{Authorized: false}
	}
	return Decision{
		Authorized:   true,
		ExpiringSoon: sub.IsExpiringSoon(now),
		EndDate:      &sub.EndDate,
	}
}
