package billing

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Published ECPay sandbox test credentials.
var testECPayConfig = ECPayConfig{
	MerchantID: "2000132",
	HashKey:    "5294y06JbISpM5x9",
	HashIV:     "v77hoKGq4kWxNNIS",
	Sandbox:    true,
}

func TestECPayCreateOrder(t *testing.T) {
	svc := NewECPayService(testECPayConfig)

	endpoint, fields, err := svc.CreateOrder(ECPayOrderParams{
		MerchantTradeNo: "KW1756000000ABCD",
		TradeDate:       time.Date(2026, 3, 15, 10, 30, 0, 0, time.FixedZone("CST", 8*3600)),
		TotalAmount:     899,
		ItemName:        "Kaiwa Pro (monthly)",
		TradeDesc:       "Kaiwa subscription",
		ReturnURL:       "https://kaiwa.app/webhooks/ecpay",
		ClientBackURL:   "https://kaiwa.app/settings/billing",
		CustomField1:    "user-id-here",
	})
	require.NoError(t, err)

	assert.Equal(t, ecpaySandboxURL, endpoint)
	assert.Equal(t, "2000132", fields["MerchantID"])
	assert.Equal(t, "2026/03/15 10:30:00", fields["MerchantTradeDate"])
	assert.Equal(t, "899", fields["TotalAmount"])
	assert.Equal(t, "aio", fields["PaymentType"])
	assert.Equal(t, "1", fields["EncryptType"])
	assert.NotEmpty(t, fields["CheckMacValue"])
	assert.Len(t, fields["CheckMacValue"], 64) // SHA-256 hex
}

func TestECPayCreateOrder_Period(t *testing.T) {
	svc := NewECPayService(testECPayConfig)

	_, fields, err := svc.CreateOrder(ECPayOrderParams{
		MerchantTradeNo: "KW1756000000ABCD",
		TradeDate:       time.Date(2026, 3, 15, 10, 30, 0, 0, time.FixedZone("CST", 8*3600)),
		TotalAmount:     899,
		ItemName:        "Kaiwa Pro (monthly)",
		TradeDesc:       "Kaiwa subscription",
		ReturnURL:       "https://kaiwa.app/webhooks/ecpay",
		Period: &ECPayPeriodParams{
			PeriodAmount:    899,
			PeriodType:      "M",
			Frequency:       1,
			ExecTimes:       99,
			PeriodReturnURL: "https://kaiwa.app/webhooks/ecpay",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "899", fields["PeriodAmount"])
	assert.Equal(t, "M", fields["PeriodType"])
	assert.Equal(t, "1", fields["Frequency"])
	assert.Equal(t, "99", fields["ExecTimes"])
	assert.Equal(t, "https://kaiwa.app/webhooks/ecpay", fields["PeriodReturnURL"])
}

func TestECPayCreateOrder_PeriodValidation(t *testing.T) {
	svc := NewECPayService(testECPayConfig)

	_, _, err := svc.CreateOrder(ECPayOrderParams{
		MerchantTradeNo: "KW1",
		TotalAmount:     899,
		Period:          &ECPayPeriodParams{PeriodAmount: 899, PeriodType: "W", Frequency: 1, ExecTimes: 99},
	})
	assert.Error(t, err)

	_, _, err = svc.CreateOrder(ECPayOrderParams{
		MerchantTradeNo: "KW1",
		TotalAmount:     899,
		Period:          &ECPayPeriodParams{PeriodAmount: 0, PeriodType: "M", Frequency: 1, ExecTimes: 99},
	})
	assert.Error(t, err)
}

func TestECPayCreateOrder_Validation(t *testing.T) {
	svc := NewECPayService(testECPayConfig)

	tests := []struct {
		name   string
		params ECPayOrderParams
	}{
		{"empty trade no", ECPayOrderParams{TotalAmount: 100}},
		{"trade no too long", ECPayOrderParams{MerchantTradeNo: "THIS-TRADE-NO-IS-WAY-TOO-LONG", TotalAmount: 100}},
		{"zero amount", ECPayOrderParams{MerchantTradeNo: "KW1", TotalAmount: 0}},
		{"negative amount", ECPayOrderParams{MerchantTradeNo: "KW1", TotalAmount: -5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.CreateOrder(tt.params)
			assert.Error(t, err)
		})
	}
}

func TestECPayCreateOrder_NotConfigured(t *testing.T) {
	svc := NewECPayService(ECPayConfig{})
	assert.False(t, svc.Enabled())

	_, _, err := svc.CreateOrder(ECPayOrderParams{MerchantTradeNo: "KW1", TotalAmount: 100})
	assert.Error(t, err)
}

func TestECPayVerifyCallback_RoundTrip(t *testing.T) {
	inner := &ecpayService{cfg: testECPayConfig}

	fields := map[string]string{
		"MerchantID":      "2000132",
		"MerchantTradeNo": "KW1756000000ABCD",
		"TradeNo":         "2403151030123456",
		"RtnCode":         "1",
		"RtnMsg":          "交易成功",
		"TradeAmt":        "899",
		"PaymentDate":     "2026/03/15 10:31:22",
		"PaymentType":     "Credit_CreditCard",
		"CustomField1":    "user-id-here",
	}

	form := url.Values{}
	for key, value := range fields {
		form.Set(key, value)
	}
	form.Set("CheckMacValue", inner.checkMacValue(fields))

	result, err := inner.VerifyCallback(form)
	require.NoError(t, err)
	assert.True(t, result.Paid())
	assert.Equal(t, "KW1756000000ABCD", result.MerchantTradeNo)
	assert.Equal(t, "2403151030123456", result.TradeNo)
	assert.Equal(t, 899, result.TradeAmt)
	assert.Equal(t, "user-id-here", result.CustomField1)
}

func TestECPayVerifyCallback_Tampered(t *testing.T) {
	inner := &ecpayService{cfg: testECPayConfig}

	fields := map[string]string{
		"MerchantTradeNo": "KW1756000000ABCD",
		"RtnCode":         "1",
		"TradeAmt":        "899",
	}
	form := url.Values{}
	for key, value := range fields {
		form.Set(key, value)
	}
	form.Set("CheckMacValue", inner.checkMacValue(fields))

	// Flip the amount after signing.
	form.Set("TradeAmt", "1")

	_, err := inner.VerifyCallback(form)
	assert.Error(t, err)
}

func TestECPayVerifyCallback_MissingMac(t *testing.T) {
	svc := NewECPayService(testECPayConfig)

	form := url.Values{}
	form.Set("MerchantTradeNo", "KW1")

	_, err := svc.VerifyCallback(form)
	assert.Error(t, err)
}

func TestECPayCallbackResult_Paid(t *testing.T) {
	assert.True(t, (&ECPayCallbackResult{RtnCode: 1}).Paid())
	assert.False(t, (&ECPayCallbackResult{RtnCode: 10200095}).Paid())
}
