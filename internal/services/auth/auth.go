// Package auth содержит логику бизнес-уровня для работы с пользователями и сессиями.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/subscription-gateway/internal/lib/password"
	"github.com/magabrotheeeer/subscription-gateway/internal/lib/token"
	"github.com/magabrotheeeer/subscription-gateway/internal/models"
	"github.com/magabrotheeeer/subscription-gateway/internal/storage/repository"
)

// Ошибки бизнес-уровня, по которым хендлеры выбирают код ответа.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrEmailTaken         = errors.New("email already registered")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrWeakPassword       = errors.New("password does not meet strength requirements")
)

// UserRepository описывает контракт для работы с пользователями и сессиями.
type UserRepository interface {
	CreateUser(ctx context.Context, user models.User) (string, error)
	GetUserByUID(ctx context.Context, uid string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUserProfile(ctx context.Context, uid string, username, email, passwordHash *string) error
	CreateSession(ctx context.Context, session models.Session) error
	DeleteSession(ctx context.Context, tokenHash string) error
	GetUserBySessionHash(ctx context.Context, tokenHash string, now time.Time) (*models.User, error)
}

// AuthService отвечает за регистрацию, вход, выход и проверку сессий.
// Токен — JWT, но решение о валидности принимает таблица сессий: выход
// или деактивация пользователя немедленно отзывает токен.
type AuthService struct {
	users      UserRepository
	tokenMaker token.Maker
	tokenTTL   time.Duration
	log        *slog.Logger
}

// New создает новый экземпляр AuthService.
func New(users UserRepository, tokenMaker token.Maker, tokenTTL time.Duration, log *slog.Logger) *AuthService {
	return &AuthService{
		users:      users,
		tokenMaker: tokenMaker,
		tokenTTL:   tokenTTL,
		log:        log,
	}
}

// Register создает нового пользователя. Имя и почта должны быть свободны,
// пароль — проходить проверку сложности.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	const op = "services.auth.Register"

	if err := password.ValidateStrength(req.Password); err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	if _, err := s.users.GetUserByUsername(ctx, req.Username); err == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrUsernameTaken)
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if _, err := s.users.GetUserByEmail(ctx, req.Email); err == nil {
		return nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	hashed, err := password.GetHash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user := models.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hashed,
		Status:       models.UserStatusActive,
	}
	uid, err := s.users.CreateUser(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	user.UID = uid

	s.log.Info("registered new user", slog.String("uid", uid))
	return &user, nil
}

// Login проверяет пароль, выпускает токен и сохраняет его хэш как сессию.
// Идентификатором входа служит имя пользователя или почта.
func (s *AuthService) Login(ctx context.Context, identifier, rawPassword string) (string, *models.User, error) {
	const op = "services.auth.Login"

	user, err := s.users.GetUserByUsername(ctx, identifier)
	if errors.Is(err, repository.ErrUserNotFound) {
		user, err = s.users.GetUserByEmail(ctx, identifier)
	}
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := password.CompareHash(user.PasswordHash, rawPassword); err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	tokenStr, err := s.tokenMaker.GenerateToken(user.UID, user.Username)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}

	session := models.Session{
		TokenHash: token.Hash(tokenStr),
		UserUID:   user.UID,
		ExpiresAt: time.Now().UTC().Add(s.tokenTTL),
	}
	if err := s.users.CreateSession(ctx, session); err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}

	return tokenStr, user, nil
}

// Logout отзывает токен, удаляя его сессию.
func (s *AuthService) Logout(ctx context.Context, tokenStr string) error {
	const op = "services.auth.Logout"
	if err := s.users.DeleteSession(ctx, token.Hash(tokenStr)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ValidateSession проверяет токен и наличие живой сессии. Любая ошибка
// означает отказ в доступе: подпись, срок, отозванная сессия или
// деактивированный пользователь.
func (s *AuthService) ValidateSession(ctx context.Context, tokenStr string) (*models.User, error) {
	const op = "services.auth.ValidateSession"

	if _, err := s.tokenMaker.ParseToken(tokenStr); err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
	}

	user, err := s.users.GetUserBySessionHash(ctx, token.Hash(tokenStr), time.Now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidToken)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

// GetProfile возвращает пользователя по UID.
func (s *AuthService) GetProfile(ctx context.Context, uid string) (*models.User, error) {
	const op = "services.auth.GetProfile"
	user, err := s.users.GetUserByUID(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

// UpdateProfile меняет имя, почту или пароль. Любое изменение требует
// подтверждения текущим паролем.
func (s *AuthService) UpdateProfile(ctx context.Context, uid string, req models.UpdateProfileRequest) (*models.User, error) {
	const op = "services.auth.UpdateProfile"

	user, err := s.users.GetUserByUID(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := password.CompareHash(user.PasswordHash, req.CurrentPassword); err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	var username, email, passwordHash *string
	if req.Username != "" && req.Username != user.Username {
		if _, err := s.users.GetUserByUsername(ctx, req.Username); err == nil {
			return nil, fmt.Errorf("%s: %w", op, ErrUsernameTaken)
		} else if !errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		username = &req.Username
	}
	if req.Email != "" && req.Email != user.Email {
		if _, err := s.users.GetUserByEmail(ctx, req.Email); err == nil {
			return nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
		} else if !errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		email = &req.Email
	}
	if req.NewPassword != "" {
		if err := password.ValidateStrength(req.NewPassword); err != nil {
			return nil, fmt.Errorf("%s: %w", op, ErrWeakPassword)
		}
		hashed, err := password.GetHash(req.NewPassword)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		passwordHash = &hashed
	}

	if username == nil && email == nil && passwordHash == nil {
		return user, nil
	}

	if err := s.users.UpdateUserProfile(ctx, uid, username, email, passwordHash); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s.users.GetUserByUID(ctx, uid)
}
