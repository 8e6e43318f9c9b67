package paymentprovider

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"net/url"
	"strings"
	"testing"

	"github.com/magabrotheeeer/subscription-gateway/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAlipay(t *testing.T) (*AlipayClient, *rsa.PrivateKey) {
	t.Helper()

	appKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	alipayKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(appKey),
	})
	pubDER, err := x509.MarshalPKIXPublicKey(&alipayKey.PublicKey)
	require.NoError(t, err)
	pubPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubDER,
	})

	client, err := NewAlipay(config.Alipay{
		AlipayAppID:      "2021000000000000",
		AlipayPrivateKey: string(privPEM),
		AlipayPublicKey:  string(pubPEM),
		AlipayGateway:    "https://openapi.alipay.com/gateway.do",
		AlipayNotifyURL:  "https://example.com/api/payment/alipay/notify",
		AlipayReturnURL:  "https://example.com/api/payment/alipay/return",
	})
	require.NoError(t, err)
	return client, alipayKey
}

// signAsAlipay подписывает параметры уведомления так, как это делает
// сторона Alipay своим приватным ключом.
func signAsAlipay(t *testing.T, key *rsa.PrivateKey, params url.Values) {
	t.Helper()
	digest := sha256.Sum256([]byte(signContent(params, "sign", "sign_type")))
	signature, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	require.NoError(t, err)
	params.Set("sign_type", "RSA2")
	params.Set("sign", base64.StdEncoding.EncodeToString(signature))
}

func TestSignContent(t *testing.T) {
	params := url.Values{}
	params.Set("b_key", "2")
	params.Set("a_key", "1")
	params.Set("c_key", "")
	params.Set("sign", "should-be-skipped")
	params.Set("sign_type", "RSA2")

	got := signContent(params, "sign", "sign_type")

	assert.Equal(t, "a_key=1&b_key=2", got)
}

func TestAlipayClient_CreateOrder(t *testing.T) {
	client, _ := newTestAlipay(t)

	tests := []struct {
		name        string
		paymentType string
		wantMethod  string
	}{
		{name: "web payment", paymentType: "web", wantMethod: "alipay.trade.page.pay"},
		{name: "wap payment", paymentType: "wap", wantMethod: "alipay.trade.wap.pay"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := client.CreateOrder(context.Background(), OrderSpec{
				OrderNo:     "LTV17000000000001234",
				Subject:     "月度订阅",
				Amount:      9.9,
				Currency:    "CNY",
				PaymentType: tt.paymentType,
			})
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(got.PayURL, "https://openapi.alipay.com/gateway.do?"))

			u, err := url.Parse(got.PayURL)
			require.NoError(t, err)
			q := u.Query()
			assert.Equal(t, tt.wantMethod, q.Get("method"))
			assert.Equal(t, "RSA2", q.Get("sign_type"))
			assert.NotEmpty(t, q.Get("sign"))
			assert.Contains(t, q.Get("biz_content"), `"total_amount":"9.90"`)
		})
	}
}

func TestAlipayClient_VerifyCallback(t *testing.T) {
	client, alipayKey := newTestAlipay(t)

	makeNotify := func() url.Values {
		params := url.Values{}
		params.Set("out_trade_no", "LTV17000000000001234")
		params.Set("trade_no", "2026082822001400001234")
		params.Set("trade_status", "TRADE_SUCCESS")
		params.Set("total_amount", "9.90")
		return params
	}

	t.Run("valid notification", func(t *testing.T) {
		params := makeNotify()
		signAsAlipay(t, alipayKey, params)

		orderNo, externalID, state, err := client.VerifyCallback(params)
		require.NoError(t, err)
		assert.Equal(t, "LTV17000000000001234", orderNo)
		assert.Equal(t, "2026082822001400001234", externalID)
		assert.Equal(t, StateSucceeded, state)
	})

	t.Run("tampered amount breaks the signature", func(t *testing.T) {
		params := makeNotify()
		signAsAlipay(t, alipayKey, params)
		params.Set("total_amount", "0.01")

		_, _, _, err := client.VerifyCallback(params)
		assert.Error(t, err)
	})

	t.Run("signature from a foreign key is rejected", func(t *testing.T) {
		foreign, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)

		params := makeNotify()
		signAsAlipay(t, foreign, params)

		_, _, _, err = client.VerifyCallback(params)
		assert.Error(t, err)
	})

	t.Run("missing sign", func(t *testing.T) {
		_, _, _, err := client.VerifyCallback(makeNotify())
		assert.Error(t, err)
	})

	t.Run("closed trade maps to closed state", func(t *testing.T) {
		params := makeNotify()
		params.Set("trade_status", "TRADE_CLOSED")
		signAsAlipay(t, alipayKey, params)

		_, _, state, err := client.VerifyCallback(params)
		require.NoError(t, err)
		assert.Equal(t, StateClosed, state)
	})
}

func TestMapAlipayTradeStatus(t *testing.T) {
	assert.Equal(t, StateSucceeded, mapAlipayTradeStatus("TRADE_SUCCESS"))
	assert.Equal(t, StateSucceeded, mapAlipayTradeStatus("TRADE_FINISHED"))
	assert.Equal(t, StatePending, mapAlipayTradeStatus("WAIT_BUYER_PAY"))
	assert.Equal(t, StateClosed, mapAlipayTradeStatus("TRADE_CLOSED"))
	assert.Equal(t, StatePending, mapAlipayTradeStatus("SOMETHING_ELSE"))
}

func TestParsePrivateKey_PKCS8(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pemData := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	parsed, err := parsePrivateKey(string(pemData))
	require.NoError(t, err)
	assert.True(t, key.Equal(parsed))
}
