// Package models содержит доменные структуры сервиса: пользователей,
// сессии, тарифные планы, подписки и платёжные ордера.
package models

import "time"

// Статусы учётной записи пользователя.
const (
	UserStatusActive   = "active"
	UserStatusInactive = "inactive"
)

// User представляет зарегистрированного пользователя системы.
type User struct {
	UID          string    // Уникальный идентификатор пользователя
	Username     string    // Имя пользователя (уникальное)
	Email        string    // Электронная почта (уникальная)
	PasswordHash string    // bcrypt-хэш пароля
	Status       string    // active или inactive (мягкое удаление)
	CreatedAt    time.Time // Дата регистрации
	UpdatedAt    time.Time // Дата последнего изменения
}

// Session представляет выданную пользователю сессию.
// В базе хранится только SHA-256 хэш токена, сам токен никогда не сохраняется.
type Session struct {
	TokenHash string    // Хэш bearer-токена
	UserUID   string    // Владелец сессии
	ExpiresAt time.Time // Момент истечения сессии
}

// IsExpired сообщает, истекла ли сессия к моменту now.
func (s *Session) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// RegisterRequest используется для приёма данных регистрации из JSON-запроса.
type RegisterRequest struct {
	Username        string `json:"username" validate:"required,alphanum,min=3,max=20"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
}

// LoginRequest используется для приёма данных входа: логином может быть
// как имя пользователя, так и почта.
type LoginRequest struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// UpdateProfileRequest описывает частичное обновление профиля.
// Любое изменение требует подтверждения текущим паролем.
type UpdateProfileRequest struct {
	Username        string `json:"username,omitempty" validate:"omitempty,alphanum,min=3,max=20"`
	Email           string `json:"email,omitempty" validate:"omitempty,email"`
	CurrentPassword string `json:"current_password,omitempty"`
	NewPassword     string `json:"new_password,omitempty" validate:"omitempty,min=8"`
}

// SafeUser — представление пользователя без чувствительных полей,
// возвращаемое наружу в JSON-ответах.
type SafeUser struct {
	UID       string    `json:"uid"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Safe возвращает представление пользователя без хэша пароля.
func (u *User) Safe() SafeUser {
	return SafeUser{
		UID:       u.UID,
		Username:  u.Username,
		Email:     u.Email,
		Status:    u.Status,
		CreatedAt: u.CreatedAt,
	}
}
