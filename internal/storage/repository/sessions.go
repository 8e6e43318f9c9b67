package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/subscription-gateway/internal/models"
)

// CreateSession сохраняет хэш выданного токена.
func (s *Storage) CreateSession(ctx context.Context, session models.Session) error {
	const op = "storage.CreateSession"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO user_sessions (token_hash, user_uid, expires_at)
			  VALUES ($1, $2, $3)`
	if _, err := s.DB.ExecContext(ctx, query,
		session.TokenHash, session.UserUID, session.ExpiresAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// DeleteSession удаляет сессию по хэшу токена (logout). Отсутствие строки не ошибка.
func (s *Storage) DeleteSession(ctx context.Context, tokenHash string) error {
	const op = "storage.DeleteSession"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `DELETE FROM user_sessions WHERE token_hash = $1`
	if _, err := s.DB.ExecContext(ctx, query, tokenHash); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// GetUserBySessionHash возвращает активного пользователя по живой сессии.
// Просроченные сессии отфильтровываются сравнением с now — отдельная
// чистка таблицы не требуется для корректности.
func (s *Storage) GetUserBySessionHash(ctx context.Context, tokenHash string, now time.Time) (*models.User, error) {
	const op = "storage.GetUserBySessionHash"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `SELECT u.uid, u.username, u.email, u.password_hash, u.status, u.created_at, u.updated_at
			  FROM user_sessions us
			  JOIN users u ON us.user_uid = u.uid
			  WHERE us.token_hash = $1 AND us.expires_at > $2 AND u.status = 'active'`
	u := &models.User{}
	row := s.DB.QueryRowContext(ctx, query, tokenHash, now)
	if err := row.Scan(&u.UID, &u.Username, &u.Email, &u.PasswordHash,
		&u.Status, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, ErrSessionNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

// SaveAdminSession сохраняет (или заменяет) сессию администратора.
func (s *Storage) SaveAdminSession(ctx context.Context, tokenHash string, expiresAt time.Time) error {
	const op = "storage.SaveAdminSession"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO admin_sessions (admin_id, token_hash, expires_at)
			  VALUES ('admin', $1, $2)
			  ON CONFLICT (admin_id) DO UPDATE
			  SET token_hash = EXCLUDED.token_hash, expires_at = EXCLUDED.expires_at`
	if _, err := s.DB.ExecContext(ctx, query, tokenHash, expiresAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// CheckAdminSession проверяет, существует ли живая сессия администратора.
func (s *Storage) CheckAdminSession(ctx context.Context, tokenHash string, now time.Time) (bool, error) {
	const op = "storage.CheckAdminSession"
	select {
	case <-ctx.Done():
		return false, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	var exists bool
	query := `SELECT EXISTS (
			      SELECT 1 FROM admin_sessions
			      WHERE token_hash = $1 AND expires_at > $2)`
	if err := s.DB.QueryRowContext(ctx, query, tokenHash, now).Scan(&exists); err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return exists, nil
}

// DeleteAdminSession удаляет сессию администратора по хэшу токена.
func (s *Storage) DeleteAdminSession(ctx context.Context, tokenHash string) error {
	const op = "storage.DeleteAdminSession"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `DELETE FROM admin_sessions WHERE token_hash = $1`
	if _, err := s.DB.ExecContext(ctx, query, tokenHash); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
