// Package payment реализует сверку платежей: создание ордеров,
// обработку уведомлений провайдеров и возвраты. Гарантия пакета —
// каждый оплаченный ордер применяется к реестру подписок ровно один раз.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net/url"
	"time"

	"github.com/magabrotheeeer/subscription-gateway/internal/models"
	"github.com/magabrotheeeer/subscription-gateway/internal/paymentprovider"
	"github.com/magabrotheeeer/subscription-gateway/internal/storage/repository"
)

// Ошибки бизнес-уровня.
var (
	ErrUnknownProvider = errors.New("unknown payment provider")
	ErrOrderNotFound   = errors.New("payment order not found")
	ErrOrderNotPaid    = errors.New("order is not paid")
	ErrForbiddenOrder  = errors.New("order belongs to another user")
)

// Repository описывает методы хранилища, нужные сверке платежей.
type Repository interface {
	GetActivePlan(ctx context.Context, planID int64) (*models.SubscriptionPlan, error)
	FindActiveSubscription(ctx context.Context, userUID string, now time.Time) (*models.Subscription, error)
	CreatePaymentOrder(ctx context.Context, order models.PaymentOrder) (int64, error)
	GetPaymentOrder(ctx context.Context, orderNo string) (*models.PaymentOrder, error)
	SetOrderExternalID(ctx context.Context, orderNo, externalID string) error
	MarkOrderClosed(ctx context.Context, orderNo, state string) (bool, error)
	MarkOrderRefunded(ctx context.Context, orderNo string) (bool, error)
}

// Ledger описывает операцию применения оплаченного ордера к реестру подписок.
// Переход ордера pending -> succeeded и мутация реестра выполняются одной
// транзакцией: сбой мутации откатывает и переход, заказ не теряется.
type Ledger interface {
	ApplyPaidOrder(ctx context.Context, orderNo, externalID string) (bool, *models.Subscription, error)
}

// Service связывает платёжных провайдеров, таблицу ордеров и реестр подписок.
type Service struct {
	repo         Repository
	ledger       Ledger
	providers    map[string]paymentprovider.Provider
	cnyToUSDRate float64
	log          *slog.Logger
}

// New создает новый экземпляр Service.
func New(repo Repository, ledger Ledger, providers map[string]paymentprovider.Provider,
	cnyToUSDRate float64, log *slog.Logger) *Service {
	return &Service{
		repo:         repo,
		ledger:       ledger,
		providers:    providers,
		cnyToUSDRate: cnyToUSDRate,
		log:          log,
	}
}

// InitiateResult — результат создания платежа.
type InitiateResult struct {
	OrderNo string  `json:"order_no"`
	PayURL  string  `json:"pay_url"`
	Amount  float64 `json:"amount"`
}

// Initiate создаёт платёжный ордер и платёж у провайдера. Ордер
// сохраняется до обращения к провайдеру: упавший запрос оставляет
// pending-строку, которую закроет последующий опрос статуса.
func (s *Service) Initiate(ctx context.Context, userUID, providerName string, planID int64, paymentType string) (*InitiateResult, error) {
	const op = "services.payment.Initiate"

	provider, ok := s.providers[providerName]
	if !ok {
		return nil, ErrUnknownProvider
	}

	plan, err := s.repo.GetActivePlan(ctx, planID)
	if err != nil {
		if errors.Is(err, repository.ErrPlanNotFound) {
			return nil, fmt.Errorf("%s: %w", op, repository.ErrPlanNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now().UTC()
	isRenewal := false
	if _, err := s.repo.FindActiveSubscription(ctx, userUID, now); err == nil {
		isRenewal = true
	} else if !errors.Is(err, repository.ErrSubscriptionNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	charged := plan.Price
	currency := "CNY"
	if providerName == models.ProviderPaypal {
		charged = math.Round(plan.Price*s.cnyToUSDRate*100) / 100
		currency = "USD"
	}

	order := models.PaymentOrder{
		OrderNo:       s.generateOrderNo(providerName),
		UserUID:       userUID,
		PlanID:        plan.ID,
		Provider:      providerName,
		Amount:        plan.Price,
		ChargedAmount: charged,
		Currency:      currency,
		IsRenewal:     isRenewal,
		State:         models.OrderStatePending,
	}
	if _, err := s.repo.CreatePaymentOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result, err := provider.CreateOrder(ctx, paymentprovider.OrderSpec{
		OrderNo:     order.OrderNo,
		Subject:     plan.Name,
		Amount:      charged,
		Currency:    currency,
		PaymentType: paymentType,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if result.ExternalID != "" {
		if err := s.repo.SetOrderExternalID(ctx, order.OrderNo, result.ExternalID); err != nil {
			s.log.Warn("failed to save external id",
				slog.String("order_no", order.OrderNo), slog.Any("err", err))
		}
	}

	s.log.Info("payment initiated",
		slog.String("order_no", order.OrderNo),
		slog.String("provider", providerName),
		slog.Bool("is_renewal", isRenewal))

	return &InitiateResult{
		OrderNo: order.OrderNo,
		PayURL:  result.PayURL,
		Amount:  charged,
	}, nil
}

// HandleNotify обрабатывает асинхронное уведомление провайдера.
// Подпись проверяется до любых мутаций; невалидное уведомление
// отвергается целиком.
func (s *Service) HandleNotify(ctx context.Context, providerName string, params url.Values) error {
	const op = "services.payment.HandleNotify"

	provider, ok := s.providers[providerName]
	if !ok {
		return ErrUnknownProvider
	}

	orderNo, externalID, state, err := provider.VerifyCallback(params)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return s.applyProviderState(ctx, orderNo, externalID, state)
}

// PollStatus опрашивает провайдера о состоянии ордера и применяет
// результат тем же путём, что и уведомление. Используется страницей
// возврата и фоновым дожимом зависших заказов.
func (s *Service) PollStatus(ctx context.Context, userUID, orderNo string) (*models.PaymentOrder, error) {
	const op = "services.payment.PollStatus"

	order, err := s.repo.GetPaymentOrder(ctx, orderNo)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if userUID != "" && order.UserUID != userUID {
		return nil, ErrForbiddenOrder
	}

	if order.State != models.OrderStatePending {
		return order, nil
	}

	provider, ok := s.providers[order.Provider]
	if !ok {
		return nil, ErrUnknownProvider
	}
	result, err := provider.QueryStatus(ctx, order.OrderNo, order.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.applyProviderState(ctx, order.OrderNo, result.ExternalID, result.State); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s.repo.GetPaymentOrder(ctx, orderNo)
}

// ExecutePayPal завершает платёж PayPal после возврата плательщика
// с одобрением и применяет результат к реестру.
func (s *Service) ExecutePayPal(ctx context.Context, paymentID, payerID string) (*models.PaymentOrder, error) {
	const op = "services.payment.ExecutePayPal"

	provider, ok := s.providers[models.ProviderPaypal]
	if !ok {
		return nil, ErrUnknownProvider
	}
	paypal, ok := provider.(*paymentprovider.PaypalClient)
	if !ok {
		return nil, ErrUnknownProvider
	}

	orderNo, result, err := paypal.ExecutePayment(ctx, paymentID, payerID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.applyProviderState(ctx, orderNo, result.ExternalID, result.State); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s.repo.GetPaymentOrder(ctx, orderNo)
}

// CancelOrder закрывает неоплаченный ордер после отказа плательщика.
func (s *Service) CancelOrder(ctx context.Context, orderNo string) error {
	const op = "services.payment.CancelOrder"
	if _, err := s.repo.MarkOrderClosed(ctx, orderNo, models.OrderStateCancelled); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Refund инициирует возврат средств по оплаченному ордеру. Возврат
// не отменяет подписку: решение о доступе принимает администратор
// отдельной операцией.
func (s *Service) Refund(ctx context.Context, orderNo string, amount float64, reason string) error {
	const op = "services.payment.Refund"

	order, err := s.repo.GetPaymentOrder(ctx, orderNo)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return ErrOrderNotFound
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	if order.State != models.OrderStateSucceeded {
		return ErrOrderNotPaid
	}

	provider, ok := s.providers[order.Provider]
	if !ok {
		return ErrUnknownProvider
	}
	if err := provider.Refund(ctx, order.OrderNo, order.ExternalID, amount, reason); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if _, err := s.repo.MarkOrderRefunded(ctx, orderNo); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("order refunded",
		slog.String("order_no", orderNo), slog.Float64("amount", amount))
	return nil
}

// applyProviderState — единая точка применения состояния провайдера к
// ордеру. Переход pending -> succeeded и мутация реестра подписок идут
// одной транзакцией реестра; проигравший гонку вызов получает applied=false
// и ничего не меняет.
func (s *Service) applyProviderState(ctx context.Context, orderNo, externalID string, state paymentprovider.ProviderState) error {
	const op = "services.payment.applyProviderState"

	switch state {
	case paymentprovider.StateSucceeded:
		applied, sub, err := s.ledger.ApplyPaidOrder(ctx, orderNo, externalID)
		if err != nil {
			// Заказ остался pending, провайдер повторит уведомление.
			return fmt.Errorf("%s: %w", op, err)
		}
		if !applied {
			s.log.Info("duplicate payment notification ignored",
				slog.String("order_no", orderNo))
			return nil
		}
		s.log.Info("payment reconciled",
			slog.String("order_no", orderNo), slog.String("user_uid", sub.UserUID))
		return nil
	case paymentprovider.StateFailed:
		if _, err := s.repo.MarkOrderClosed(ctx, orderNo, models.OrderStateFailed); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	case paymentprovider.StateClosed:
		if _, err := s.repo.MarkOrderClosed(ctx, orderNo, models.OrderStateCancelled); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	default:
		return nil
	}
}

// generateOrderNo собирает номер ордера: префикс провайдера, миллисекунды
// и четыре случайные цифры.
func (s *Service) generateOrderNo(providerName string) string {
	prefix := "LTV"
	if providerName == models.ProviderPaypal {
		prefix = "PP"
	}
	return fmt.Sprintf("%s%d%04d", prefix, time.Now().UnixMilli(), rand.Intn(10000))
}
