package paymentprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/magabrotheeeer/subscription-gateway/internal/config"
)

const (
	paypalSandboxAPI = "https://api.sandbox.paypal.com"
	paypalLiveAPI    = "https://api.paypal.com"
)

// PaypalClient — клиент REST API PayPal Payments v1. Авторизуется по
// OAuth2 client credentials, токен кэшируется до истечения.
type PaypalClient struct {
	clientID     string
	clientSecret string
	baseURL      string
	returnURL    string
	cancelURL    string
	client       *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewPaypal создаёт клиента PayPal из конфигурации приложения.
func NewPaypal(cfg config.Paypal) *PaypalClient {
	baseURL := paypalSandboxAPI
	if cfg.PaypalMode == "live" {
		baseURL = paypalLiveAPI
	}
	return &PaypalClient{
		clientID:     cfg.PaypalClientID,
		clientSecret: cfg.PaypalClientSecret,
		baseURL:      baseURL,
		returnURL:    cfg.PaypalReturnURL,
		cancelURL:    cfg.PaypalCancelURL,
		client:       &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *PaypalClient) Name() string { return "paypal" }

type paypalPayment struct {
	ID           string `json:"id"`
	State        string `json:"state"`
	Transactions []struct {
		InvoiceNumber    string `json:"invoice_number"`
		RelatedResources []struct {
			Sale struct {
				ID    string `json:"id"`
				State string `json:"state"`
			} `json:"sale"`
		} `json:"related_resources"`
	} `json:"transactions"`
	Links []struct {
		Href string `json:"href"`
		Rel  string `json:"rel"`
	} `json:"links"`
}

// CreateOrder создаёт платёж PayPal и возвращает approval_url для
// перенаправления плательщика.
func (c *PaypalClient) CreateOrder(ctx context.Context, spec OrderSpec) (*CreateOrderResult, error) {
	const op = "paymentprovider.PaypalClient.CreateOrder"

	body := map[string]any{
		"intent": "sale",
		"payer":  map[string]string{"payment_method": "paypal"},
		"transactions": []map[string]any{{
			"amount": map[string]string{
				"total":    fmt.Sprintf("%.2f", spec.Amount),
				"currency": spec.Currency,
			},
			"description":    spec.Subject,
			"invoice_number": spec.OrderNo,
		}},
		"redirect_urls": map[string]string{
			"return_url": c.returnURL,
			"cancel_url": c.cancelURL,
		},
	}

	var payment paypalPayment
	if err := c.call(ctx, http.MethodPost, "/v1/payments/payment", body, &payment); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for _, link := range payment.Links {
		if link.Rel == "approval_url" {
			return &CreateOrderResult{PayURL: link.Href, ExternalID: payment.ID}, nil
		}
	}
	return nil, fmt.Errorf("%s: no approval_url in response", op)
}

// QueryStatus запрашивает текущее состояние платежа PayPal.
func (c *PaypalClient) QueryStatus(ctx context.Context, _, externalID string) (*QueryResult, error) {
	const op = "paymentprovider.PaypalClient.QueryStatus"

	if externalID == "" {
		return &QueryResult{State: StatePending}, nil
	}

	var payment paypalPayment
	if err := c.call(ctx, http.MethodGet, "/v1/payments/payment/"+externalID, nil, &payment); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &QueryResult{State: mapPaypalState(payment.State), ExternalID: payment.ID}, nil
}

// VerifyCallback не используется: PayPal подтверждает платёж синхронным
// вызовом ExecutePayment после возврата плательщика.
func (c *PaypalClient) VerifyCallback(url.Values) (string, string, ProviderState, error) {
	return "", "", "", fmt.Errorf("paymentprovider.PaypalClient.VerifyCallback: not supported, use ExecutePayment")
}

// ExecutePayment завершает платёж после одобрения плательщиком.
// Возвращает внутренний номер ордера из invoice_number и итоговое состояние.
func (c *PaypalClient) ExecutePayment(ctx context.Context, paymentID, payerID string) (string, *QueryResult, error) {
	const op = "paymentprovider.PaypalClient.ExecutePayment"

	body := map[string]string{"payer_id": payerID}
	var payment paypalPayment
	if err := c.call(ctx, http.MethodPost,
		"/v1/payments/payment/"+paymentID+"/execute", body, &payment); err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}

	if len(payment.Transactions) == 0 || payment.Transactions[0].InvoiceNumber == "" {
		return "", nil, fmt.Errorf("%s: no invoice_number in response", op)
	}
	return payment.Transactions[0].InvoiceNumber,
		&QueryResult{State: mapPaypalState(payment.State), ExternalID: payment.ID}, nil
}

// Refund возвращает средства по завершённому платежу через его sale.
func (c *PaypalClient) Refund(ctx context.Context, _, externalID string, amount float64, _ string) error {
	const op = "paymentprovider.PaypalClient.Refund"

	var payment paypalPayment
	if err := c.call(ctx, http.MethodGet, "/v1/payments/payment/"+externalID, nil, &payment); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	saleID := ""
	for _, tx := range payment.Transactions {
		for _, rr := range tx.RelatedResources {
			if rr.Sale.ID != "" {
				saleID = rr.Sale.ID
			}
		}
	}
	if saleID == "" {
		return fmt.Errorf("%s: no sale in payment %s", op, externalID)
	}

	body := map[string]any{
		"amount": map[string]string{
			"total":    fmt.Sprintf("%.2f", amount),
			"currency": "USD",
		},
	}
	var refund struct {
		State string `json:"state"`
	}
	if err := c.call(ctx, http.MethodPost, "/v1/payments/sale/"+saleID+"/refund", body, &refund); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if refund.State != "completed" && refund.State != "pending" {
		return fmt.Errorf("%s: refund state %q", op, refund.State)
	}
	return nil
}

func (c *PaypalClient) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/oauth2/token", strings.NewReader("grant_type=client_credentials"))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token status %d", ErrProviderUnavailable, resp.StatusCode)
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", err
	}

	c.accessToken = tok.AccessToken
	// Обновляем токен с запасом до фактического истечения.
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn-60) * time.Second)
	return c.accessToken, nil
}

func (c *PaypalClient) call(ctx context.Context, method, path string, body, out any) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("paypal status %d: %s", resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func mapPaypalState(state string) ProviderState {
	switch state {
	case "approved", "completed":
		return StateSucceeded
	case "created":
		return StatePending
	case "failed":
		return StateFailed
	default:
		return StatePending
	}
}
