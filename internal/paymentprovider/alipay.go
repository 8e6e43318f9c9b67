package paymentprovider

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/subscription-gateway/internal/config"
)

// AlipayClient — клиент открытого API Alipay. Запросы подписываются
// алгоритмом RSA2 (SHA256withRSA), ответы и уведомления проверяются
// публичным ключом Alipay.
type AlipayClient struct {
	appID        string
	privateKey   *rsa.PrivateKey
	alipayPubKey *rsa.PublicKey
	gateway      string
	notifyURL    string
	returnURL    string
	client       *http.Client
}

// NewAlipay создаёт клиента Alipay из конфигурации приложения.
func NewAlipay(cfg config.Alipay) (*AlipayClient, error) {
	const op = "paymentprovider.NewAlipay"

	priv, err := parsePrivateKey(cfg.AlipayPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	pub, err := parsePublicKey(cfg.AlipayPublicKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &AlipayClient{
		appID:        cfg.AlipayAppID,
		privateKey:   priv,
		alipayPubKey: pub,
		gateway:      cfg.AlipayGateway,
		notifyURL:    cfg.AlipayNotifyURL,
		returnURL:    cfg.AlipayReturnURL,
		client:       &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (c *AlipayClient) Name() string { return "alipay" }

// CreateOrder формирует подписанный URL страницы оплаты. Сам платёж
// на стороне Alipay появится после перехода плательщика по ссылке.
func (c *AlipayClient) CreateOrder(ctx context.Context, spec OrderSpec) (*CreateOrderResult, error) {
	const op = "paymentprovider.AlipayClient.CreateOrder"

	method := "alipay.trade.page.pay"
	productCode := "FAST_INSTANT_TRADE_PAY"
	if spec.PaymentType == "wap" {
		method = "alipay.trade.wap.pay"
		productCode = "QUICK_WAP_WAY"
	}

	bizContent, err := json.Marshal(map[string]string{
		"out_trade_no": spec.OrderNo,
		"total_amount": fmt.Sprintf("%.2f", spec.Amount),
		"subject":      spec.Subject,
		"product_code": productCode,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	params := c.commonParams(method, string(bizContent))
	params.Set("return_url", c.returnURL)
	if err := c.sign(params); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &CreateOrderResult{
		PayURL: c.gateway + "?" + params.Encode(),
	}, nil
}

// QueryStatus опрашивает Alipay о состоянии платежа (alipay.trade.query).
func (c *AlipayClient) QueryStatus(ctx context.Context, orderNo, _ string) (*QueryResult, error) {
	const op = "paymentprovider.AlipayClient.QueryStatus"

	bizContent, err := json.Marshal(map[string]string{"out_trade_no": orderNo})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var response struct {
		Resp struct {
			Code        string `json:"code"`
			SubCode     string `json:"sub_code"`
			TradeNo     string `json:"trade_no"`
			TradeStatus string `json:"trade_status"`
		} `json:"alipay_trade_query_response"`
	}
	if err := c.execute(ctx, "alipay.trade.query", string(bizContent), &response); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	r := response.Resp
	if r.Code != "10000" {
		// Пока плательщик не открыл страницу оплаты, Alipay отвечает,
		// что сделки не существует. Это не ошибка, платёж ещё ожидается.
		if r.SubCode == "ACQ.TRADE_NOT_EXIST" {
			return &QueryResult{State: StatePending}, nil
		}
		return nil, fmt.Errorf("%s: alipay code %s (%s)", op, r.Code, r.SubCode)
	}

	return &QueryResult{
		State:      mapAlipayTradeStatus(r.TradeStatus),
		ExternalID: r.TradeNo,
	}, nil
}

// VerifyCallback проверяет подпись асинхронного уведомления Alipay.
// Уведомление с невалидной подписью отвергается целиком.
func (c *AlipayClient) VerifyCallback(params url.Values) (string, string, ProviderState, error) {
	const op = "paymentprovider.AlipayClient.VerifyCallback"

	sign := params.Get("sign")
	if sign == "" {
		return "", "", "", fmt.Errorf("%s: missing sign", op)
	}

	content := signContent(params, "sign", "sign_type")
	signature, err := base64.StdEncoding.DecodeString(sign)
	if err != nil {
		return "", "", "", fmt.Errorf("%s: %w", op, err)
	}
	digest := sha256.Sum256([]byte(content))
	if err := rsa.VerifyPKCS1v15(c.alipayPubKey, crypto.SHA256, digest[:], signature); err != nil {
		return "", "", "", fmt.Errorf("%s: invalid signature: %w", op, err)
	}

	orderNo := params.Get("out_trade_no")
	if orderNo == "" {
		return "", "", "", fmt.Errorf("%s: missing out_trade_no", op)
	}

	return orderNo, params.Get("trade_no"), mapAlipayTradeStatus(params.Get("trade_status")), nil
}

// Refund инициирует возврат средств (alipay.trade.refund).
func (c *AlipayClient) Refund(ctx context.Context, orderNo, _ string, amount float64, reason string) error {
	const op = "paymentprovider.AlipayClient.Refund"

	bizContent, err := json.Marshal(map[string]string{
		"out_trade_no":   orderNo,
		"refund_amount":  fmt.Sprintf("%.2f", amount),
		"refund_reason":  reason,
		"out_request_no": uuid.NewString(),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	var response struct {
		Resp struct {
			Code    string `json:"code"`
			SubCode string `json:"sub_code"`
			Msg     string `json:"msg"`
		} `json:"alipay_trade_refund_response"`
	}
	if err := c.execute(ctx, "alipay.trade.refund", string(bizContent), &response); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if response.Resp.Code != "10000" {
		return fmt.Errorf("%s: alipay code %s (%s): %s",
			op, response.Resp.Code, response.Resp.SubCode, response.Resp.Msg)
	}
	return nil
}

func (c *AlipayClient) commonParams(method, bizContent string) url.Values {
	params := url.Values{}
	params.Set("app_id", c.appID)
	params.Set("method", method)
	params.Set("format", "JSON")
	params.Set("charset", "utf-8")
	params.Set("sign_type", "RSA2")
	params.Set("timestamp", time.Now().Format("2006-01-02 15:04:05"))
	params.Set("version", "1.0")
	params.Set("notify_url", c.notifyURL)
	params.Set("biz_content", bizContent)
	return params
}

func (c *AlipayClient) sign(params url.Values) error {
	content := signContent(params, "sign")
	digest := sha256.Sum256([]byte(content))
	signature, err := rsa.SignPKCS1v15(rand.Reader, c.privateKey, crypto.SHA256, digest[:])
	if err != nil {
		return err
	}
	params.Set("sign", base64.StdEncoding.EncodeToString(signature))
	return nil
}

func (c *AlipayClient) execute(ctx context.Context, method, bizContent string, out any) error {
	params := c.commonParams(method, bizContent)
	if err := c.sign(params); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gateway,
		strings.NewReader(params.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=utf-8")

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

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	return json.Unmarshal(body, out)
}

// signContent собирает строку для подписи: параметры сортируются по
// имени, пустые значения и перечисленные ключи пропускаются.
func signContent(params url.Values, skip ...string) string {
	skipped := make(map[string]bool, len(skip))
	for _, k := range skip {
		skipped[k] = true
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		if skipped[k] || params.Get(k) == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params.Get(k))
	}
	return strings.Join(pairs, "&")
}

func mapAlipayTradeStatus(status string) ProviderState {
	switch status {
	case "TRADE_SUCCESS", "TRADE_FINISHED":
		return StateSucceeded
	case "WAIT_BUYER_PAY":
		return StatePending
	case "TRADE_CLOSED":
		return StateClosed
	default:
		return StatePending
	}
}

func parsePrivateKey(pemData string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("no PEM block in private key")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is not RSA")
	}
	return key, nil
}

func parsePublicKey(pemData string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("no PEM block in public key")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not RSA")
	}
	return key, nil
}
