package models

import "time"

// DashboardStats — сводка для главной страницы админки.
type DashboardStats struct {
	TotalUsers             int     `json:"total_users"`
	ActiveUsers            int     `json:"active_users"`
	NewUsersToday          int     `json:"new_users_today"`
	ActiveSubscriptions    int     `json:"active_subscriptions"`
	OverdueSubscriptions   int     `json:"overdue_subscriptions"`
	TrialSubscriptions     int     `json:"trial_subscriptions"`
	RevenueTotal           float64 `json:"revenue_total"`
	RevenueThisMonth       float64 `json:"revenue_this_month"`
	SucceededOrdersTotal   int     `json:"succeeded_orders_total"`
	PendingOrders          int     `json:"pending_orders"`
}

// AdminUserRow — строка списка пользователей в админке: пользователь плюс
// сведения о его последней подписке, если она есть.
type AdminUserRow struct {
	UID              string     `json:"uid"`
	Username         string     `json:"username"`
	Email            string     `json:"email"`
	Status           string     `json:"status"`
	CreatedAt        time.Time  `json:"created_at"`
	SubscriptionEnd  *time.Time `json:"subscription_end,omitempty"`
	SubscriptionStat *string    `json:"subscription_status,omitempty"`
	PaymentStatus    *string    `json:"payment_status,omitempty"`
	PlanName         *string    `json:"plan_name,omitempty"`
}

// AdminLoginRequest используется для входа в админку.
type AdminLoginRequest struct {
	Password string `json:"password" validate:"required"`
}

// AdminOverrideRequest используется для ручной выдачи подписки из админки.
type AdminOverrideRequest struct {
	PlanID  int       `json:"plan_id" validate:"required,gt=0"`
	EndDate time.Time `json:"end_date" validate:"required"`
}
