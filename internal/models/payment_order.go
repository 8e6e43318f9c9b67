package models

import "time"

// Поддерживаемые платёжные провайдеры.
const (
	ProviderAlipay = "alipay"
	ProviderPaypal = "paypal"
)

// Состояния платёжного ордера. Переход pending -> succeeded выполняется
// атомарно ровно один раз, остальные состояния терминальны.
const (
	OrderStatePending   = "pending"
	OrderStateSucceeded = "succeeded"
	OrderStateFailed    = "failed"
	OrderStateCancelled = "cancelled"
	OrderStateRefunded  = "refunded"
)

// PaymentOrder связывает внешнюю транзакцию провайдера с отложенным
// созданием или продлением подписки. Номер ордера — ключ идемпотентности
// для сверки: повторные уведомления провайдера не приводят к повторным
// мутациям реестра подписок.
type PaymentOrder struct {
	ID            int       // Идентификатор записи
	OrderNo       string    // Внутренний номер ордера (уникальный)
	UserUID       string    // Плательщик
	PlanID        int       // Оплачиваемый план
	Provider      string    // alipay или paypal
	Amount        float64   // Цена плана в CNY
	ChargedAmount float64   // Сумма к списанию в валюте провайдера
	Currency      string    // Валюта списания (CNY или USD)
	IsRenewal     bool      // Продление существующей подписки, а не новая
	State         string    // Текущее состояние ордера
	ExternalID    string    // Идентификатор транзакции на стороне провайдера
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CreatePaymentRequest используется для приёма запроса на создание платежа.
type CreatePaymentRequest struct {
	PlanID      int    `json:"plan_id" validate:"required,gt=0"`
	PaymentType string `json:"payment_type,omitempty" validate:"omitempty,oneof=web wap"`
}

// RefundRequest используется для приёма запроса на возврат средств.
type RefundRequest struct {
	OrderNo string  `json:"order_no" validate:"required"`
	Amount  float64 `json:"amount" validate:"required,gt=0"`
	Reason  string  `json:"reason,omitempty"`
}
