package models

import "time"

// Статусы подписки. Отменённая или истёкшая подписка никогда не
// активируется повторно — вместо этого создаётся новая запись.
const (
	SubscriptionStatusActive    = "active"
	SubscriptionStatusCancelled = "cancelled"
	SubscriptionStatusExpired   = "expired"
)

// Статусы оплаты подписки.
const (
	PaymentStatusPaid  = "paid"
	PaymentStatusTrial = "trial"
)

// Длительность пробного периода.
const TrialDuration = 3 * 24 * time.Hour

// Окно предупреждения об истечении подписки.
const ExpiringSoonWindow = 7 * 24 * time.Hour

// SubscriptionPlan представляет тарифный план. Планы, на которые уже
// ссылаются подписки, не изменяются: смена цены — это новая строка плана.
type SubscriptionPlan struct {
	ID             int       `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	DurationMonths int       `json:"duration_months"`
	Price          float64   `json:"price"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
}

// Subscription — запись о праве доступа пользователя, центральная сущность
// сервиса. Строки никогда не удаляются: история нужна аудиту и админке.
type Subscription struct {
	ID            int       // Идентификатор записи
	UserUID       string    // Владелец
	PlanID        int       // Тарифный план
	StartDate     time.Time // Начало действия
	EndDate       time.Time // Окончание действия
	Status        string    // active, cancelled или expired
	PaymentStatus string    // paid или trial
	OrderNo       string    // Номер оплатившего заказа; пуст для пробного периода
	Amount        float64   // Фактически уплаченная сумма
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ExpiredSubscription — результат пакетного закрытия просроченных подписок.
type ExpiredSubscription struct {
	SubscriptionID int64
	UserUID        string
}

// ExpiringSubscription — действующая подписка, истекающая в ближайшее окно.
type ExpiringSubscription struct {
	SubscriptionID int64
	UserUID        string
	EndDate        time.Time
}

// IsValidAt сообщает, даёт ли подписка право доступа в момент now.
// Истина выводится из сравнения дат, а не из колонки status: статус
// может отставать до очередного прохода свипера.
func (s *Subscription) IsValidAt(now time.Time) bool {
	if s.Status != SubscriptionStatusActive {
		return false
	}
	if !s.EndDate.After(now) {
		return false
	}
	return s.PaymentStatus == PaymentStatusPaid || s.PaymentStatus == PaymentStatusTrial
}

// IsValid — IsValidAt от текущего времени.
func (s *Subscription) IsValid() bool {
	return s.IsValidAt(time.Now().UTC())
}

// IsExpiringSoon сообщает, истекает ли действующая подписка в ближайшие 7 дней.
func (s *Subscription) IsExpiringSoon(now time.Time) bool {
	return s.IsValidAt(now) && !s.EndDate.After(now.Add(ExpiringSoonWindow))
}

// SubscriptionDetails — подписка вместе с данными плана (join для ответов API).
type SubscriptionDetails struct {
	Subscription
	PlanName        string
	PlanDescription string
	DurationMonths  int
	Price           float64
}

// SubscribeRequest используется для приёма запроса на оформление или
// продление подписки.
type SubscribeRequest struct {
	PlanID int `json:"plan_id" validate:"required,gt=0"`
}
