// Package paymentprovider содержит клиентов платёжных провайдеров,
// скрытых за общим интерфейсом Provider. Бизнес-логика сверки платежей
// работает только с этим интерфейсом и не знает деталей протоколов.
package paymentprovider

import (
	"context"
	"errors"
	"net/url"
)

// ErrProviderUnavailable возвращается при сетевых и серверных сбоях
// провайдера. Такой сбой временный: ордер остаётся в pending и
// закрывается позднее опросом статуса.
var ErrProviderUnavailable = errors.New("payment provider unavailable")

// ProviderState — нормализованное состояние платежа на стороне провайдера.
type ProviderState string

const (
	StatePending   ProviderState = "pending"
	StateSucceeded ProviderState = "succeeded"
	StateFailed    ProviderState = "failed"
	StateClosed    ProviderState = "closed"
)

// OrderSpec описывает создаваемый на стороне провайдера платёж.
type OrderSpec struct {
	OrderNo     string  // Внутренний номер ордера
	Subject     string  // Название оплачиваемого товара
	Amount      float64 // Сумма в валюте провайдера
	Currency    string  // CNY или USD
	PaymentType string  // web или wap (только Alipay)
}

// CreateOrderResult — результат создания платежа у провайдера.
type CreateOrderResult struct {
	PayURL     string // URL для перенаправления плательщика
	ExternalID string // Идентификатор платежа у провайдера, если он уже известен
}

// QueryResult — результат опроса статуса платежа.
type QueryResult struct {
	State      ProviderState
	ExternalID string
}

// Provider — общий интерфейс платёжного провайдера.
type Provider interface {
	// Name возвращает идентификатор провайдера (alipay или paypal).
	Name() string
	// CreateOrder создаёт платёж и возвращает URL для оплаты.
	CreateOrder(ctx context.Context, spec OrderSpec) (*CreateOrderResult, error)
	// QueryStatus опрашивает провайдера о состоянии платежа.
	QueryStatus(ctx context.Context, orderNo, externalID string) (*QueryResult, error)
	// VerifyCallback проверяет подпись асинхронного уведомления и
	// возвращает номер ордера, внешний идентификатор и состояние.
	VerifyCallback(params url.Values) (orderNo, externalID string, state ProviderState, err error)
	// Refund инициирует возврат средств по завершённому платежу.
	Refund(ctx context.Context, orderNo, externalID string, amount float64, reason string) error
}
