// Package admin реализует операции административной панели: вход по
// общему паролю, сводную статистику, управление пользователями и их
// подписками.
package admin

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/subscription-gateway/internal/models"
	"github.com/magabrotheeeer/subscription-gateway/internal/storage/repository"
)

// Ошибки бизнес-уровня.
var (
	ErrWrongPassword = errors.New("wrong admin password")
	ErrNotConfigured = errors.New("admin password is not configured")
	ErrInvalidToken  = errors.New("invalid or expired admin token")
)

// Repository описывает методы хранилища, нужные админке.
type Repository interface {
	SaveAdminSession(ctx context.Context, tokenHash string, expiresAt time.Time) error
	CheckAdminSession(ctx context.Context, tokenHash string, now time.Time) (bool, error)
	DeleteAdminSession(ctx context.Context, tokenHash string) error
	CollectDashboardStats(ctx context.Context, now time.Time) (*models.DashboardStats, error)
	ListUsersWithSubscription(ctx context.Context, search string, limit, offset int) ([]models.AdminUserRow, error)
	CountUsers(ctx context.Context, search string) (int, error)
	GetUserByUID(ctx context.Context, uid string) (*models.User, error)
	ListSubscriptionHistory(ctx context.Context, userUID string) ([]models.SubscriptionDetails, error)
	GetPlan(ctx context.Context, planID int64) (*models.SubscriptionPlan, error)
	CancelActiveSubscriptions(ctx context.Context, userUID string) (int64, error)
	CreateSubscription(ctx context.Context, sub models.Subscription) (int64, error)
	DeactivateUser(ctx context.Context, uid string) error
}

// Service реализует операции админки.
type Service struct {
	repo       Repository
	password   string
	sessionTTL time.Duration
	log        *slog.Logger
}

// New создает новый экземпляр Service.
func New(repo Repository, password string, sessionTTL time.Duration, log *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		password:   password,
		sessionTTL: sessionTTL,
		log:        log,
	}
}

// Login проверяет пароль администратора и выдаёт случайный токен.
// В базе хранится только SHA-256 хэш токена.
func (s *Service) Login(ctx context.Context, rawPassword string) (string, error) {
	const op = "services.admin.Login"

	if s.password == "" {
		return "", ErrNotConfigured
	}
	if subtle.ConstantTimeCompare([]byte(s.password), []byte(rawPassword)) != 1 {
		return "", ErrWrongPassword
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	tokenStr := hex.EncodeToString(raw)

	expiresAt := time.Now().UTC().Add(s.sessionTTL)
	if err := s.repo.SaveAdminSession(ctx, hashToken(tokenStr), expiresAt); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("admin logged in")
	return tokenStr, nil
}

// Logout отзывает токен администратора.
func (s *Service) Logout(ctx context.Context, tokenStr string) error {
	const op = "services.admin.Logout"
	if err := s.repo.DeleteAdminSession(ctx, hashToken(tokenStr)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ValidateToken проверяет токен администратора.
func (s *Service) ValidateToken(ctx context.Context, tokenStr string) error {
	const op = "services.admin.ValidateToken"
	ok, err := s.repo.CheckAdminSession(ctx, hashToken(tokenStr), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return ErrInvalidToken
	}
	return nil
}

// Stats возвращает сводку для главной страницы админки.
func (s *Service) Stats(ctx context.Context) (*models.DashboardStats, error) {
	return s.repo.CollectDashboardStats(ctx, time.Now().UTC())
}

// UserListPage — страница списка пользователей.
type UserListPage struct {
	Users []models.AdminUserRow `json:"users"`
	Total int                   `json:"total"`
}

// ListUsers возвращает страницу пользователей с поиском по имени и почте.
func (s *Service) ListUsers(ctx context.Context, search string, limit, offset int) (*UserListPage, error) {
	const op = "services.admin.ListUsers"

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	users, err := s.repo.ListUsersWithSubscription(ctx, search, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	total, err := s.repo.CountUsers(ctx, search)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &UserListPage{Users: users, Total: total}, nil
}

// UserDetail — данные пользователя со всей историей подписок.
type UserDetail struct {
	User          models.SafeUser              `json:"user"`
	Subscriptions []models.SubscriptionDetails `json:"subscriptions"`
}

// GetUser возвращает пользователя и его историю подписок.
func (s *Service) GetUser(ctx context.Context, uid string) (*UserDetail, error) {
	const op = "services.admin.GetUser"

	user, err := s.repo.GetUserByUID(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	history, err := s.repo.ListSubscriptionHistory(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &UserDetail{User: user.Safe(), Subscriptions: history}, nil
}

// OverrideSubscription выдаёт пользователю подписку вручную до указанной
// даты. Существующие активные подписки отменяются: активная подписка
// у пользователя всегда одна.
func (s *Service) OverrideSubscription(ctx context.Context, uid string, planID int64, endDate time.Time) (*models.Subscription, error) {
	const op = "services.admin.OverrideSubscription"

	now := time.Now().UTC()
	if !endDate.After(now) {
		return nil, fmt.Errorf("%s: end date must be in the future", op)
	}

	if _, err := s.repo.GetUserByUID(ctx, uid); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	plan, err := s.repo.GetPlan(ctx, planID)
	if err != nil {
		if errors.Is(err, repository.ErrPlanNotFound) {
			return nil, fmt.Errorf("%s: %w", op, repository.ErrPlanNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := s.repo.CancelActiveSubscriptions(ctx, uid); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	sub := models.Subscription{
		UserUID:       uid,
		PlanID:        plan.ID,
		StartDate:     now,
		EndDate:       endDate,
		Status:        models.SubscriptionStatusActive,
		PaymentStatus: models.PaymentStatusPaid,
	}
	id, err := s.repo.CreateSubscription(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	sub.ID = int(id)

	s.log.Info("admin override subscription",
		slog.String("user_uid", uid), slog.Int64("id", id))
	return &sub, nil
}

// CancelSubscriptions отменяет все активные подписки пользователя.
func (s *Service) CancelSubscriptions(ctx context.Context, uid string) (int64, error) {
	const op = "services.admin.CancelSubscriptions"
	n, err := s.repo.CancelActiveSubscriptions(ctx, uid)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("admin cancelled subscriptions",
		slog.String("user_uid", uid), slog.Int64("count", n))
	return n, nil
}

// DeactivateUser мягко удаляет пользователя и отменяет его подписки.
// Все сессии пользователя перестают проходить проверку сразу же.
func (s *Service) DeactivateUser(ctx context.Context, uid string) error {
	const op = "services.admin.DeactivateUser"

	if _, err := s.repo.GetUserByUID(ctx, uid); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := s.repo.CancelActiveSubscriptions(ctx, uid); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.repo.DeactivateUser(ctx, uid); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("admin deactivated user", slog.String("user_uid", uid))
	return nil
}

func hashToken(tokenStr string) string {
	sum := sha256.Sum256([]byte(tokenStr))
	return hex.EncodeToString(sum[:])
}
