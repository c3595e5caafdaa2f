package billing

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// ECPay endpoints. The sandbox accepts the published test merchant
// credentials; production requires real merchant credentials.
const (
	ecpayProductionURL = "https://payment.ecpay.com.tw/Cashier/AioCheckOut/V5"
	ecpaySandboxURL    = "https://payment-stage.ecpay.com.tw/Cashier/AioCheckOut/V5"

	// ECPayCallbackSuccessReply is the exact body ECPay expects from a
	// payment notification endpoint. Anything else triggers redelivery.
	ECPayCallbackSuccessReply = "1|OK"
)

// ECPayService defines the interface for ECPay (綠界) payment operations.
// ECPay has no hosted subscription portal: subscriptions are period
// (recurring) credit orders confirmed through the server callback.
type ECPayService interface {
	// CreateOrder builds the checkout form for an order. Returns the
	// gateway URL to POST to and the signed form fields.
	CreateOrder(params ECPayOrderParams) (string, map[string]string, error)

	// VerifyCallback validates the CheckMacValue on a payment notification
	// and returns the parsed result. Returns an error if the signature
	// doesn't match.
	VerifyCallback(form url.Values) (*ECPayCallbackResult, error)

	// Enabled reports whether ECPay credentials are configured.
	Enabled() bool
}

// ECPayOrderParams describes a payment order. Set Period to make the
// order recurring: ECPay then charges the card again on the configured
// cadence and posts each charge to PeriodReturnURL.
type ECPayOrderParams struct {
	MerchantTradeNo string    // Unique order number, max 20 alphanumeric chars
	TradeDate       time.Time // Order creation time (merchant local time)
	TotalAmount     int       // Amount in TWD, no decimals
	ItemName        string    // Display name on the checkout page
	TradeDesc       string    // Order description
	ReturnURL       string    // Server-to-server payment notification URL
	ClientBackURL   string    // Browser redirect after payment
	CustomField1    string    // Carried through to the callback unchanged
	CustomField2    string
	Period          *ECPayPeriodParams
}

// ECPayPeriodParams configures a recurring credit-card order.
type ECPayPeriodParams struct {
	PeriodAmount    int    // Amount charged each period, TWD
	PeriodType      string // "D", "M" or "Y"
	Frequency       int    // Charge every N periods
	ExecTimes       int    // Total number of charges (ECPay max: 999 for M)
	PeriodReturnURL string // Notification URL for the recurring charges
}

// ECPayCallbackResult is the parsed payment notification.
type ECPayCallbackResult struct {
	MerchantTradeNo string
	TradeNo         string // ECPay's own transaction number
	RtnCode         int    // 1 = paid
	RtnMsg          string
	TradeAmt        int
	PaymentDate     string
	PaymentType     string
	CustomField1    string
	CustomField2    string
}

// Paid reports whether the notification indicates a successful payment.
func (r *ECPayCallbackResult) Paid() bool {
	return r.RtnCode == 1
}

// ECPayConfig holds merchant credentials for ECPay.
type ECPayConfig struct {
	MerchantID string
	HashKey    string
	HashIV     string
	Sandbox    bool
}

type ecpayService struct {
	cfg ECPayConfig
}

// NewECPayService creates a new ECPay payment service.
func NewECPayService(cfg ECPayConfig) ECPayService {
	return &ecpayService{cfg: cfg}
}

func (s *ecpayService) Enabled() bool {
	return s.cfg.MerchantID != "" && s.cfg.HashKey != "" && s.cfg.HashIV != ""
}

func (s *ecpayService) CreateOrder(params ECPayOrderParams) (string, map[string]string, error) {
	if !s.Enabled() {
		return "", nil, fmt.Errorf("ecpay is not configured")
	}
	if params.MerchantTradeNo == "" || len(params.MerchantTradeNo) > 20 {
		return "", nil, fmt.Errorf("ecpay merchant trade no must be 1-20 characters, got %q", params.MerchantTradeNo)
	}
	if params.TotalAmount <= 0 {
		return "", nil, fmt.Errorf("ecpay total amount must be positive, got %d", params.TotalAmount)
	}

	fields := map[string]string{
		"MerchantID":        s.cfg.MerchantID,
		"MerchantTradeNo":   params.MerchantTradeNo,
		"MerchantTradeDate": params.TradeDate.Format("2006/01/02 15:04:05"),
		"PaymentType":       "aio",
		"TotalAmount":       fmt.Sprintf("%d", params.TotalAmount),
		"TradeDesc":         params.TradeDesc,
		"ItemName":          params.ItemName,
		"ReturnURL":         params.ReturnURL,
		"ChoosePayment":     "Credit",
		"EncryptType":       "1", // SHA-256
	}
	if params.ClientBackURL != "" {
		fields["ClientBackURL"] = params.ClientBackURL
	}
	if params.CustomField1 != "" {
		fields["CustomField1"] = params.CustomField1
	}
	if params.CustomField2 != "" {
		fields["CustomField2"] = params.CustomField2
	}
	if p := params.Period; p != nil {
		if p.PeriodAmount <= 0 || p.Frequency <= 0 || p.ExecTimes <= 0 {
			return "", nil, fmt.Errorf("ecpay period order requires positive amount, frequency and exec times")
		}
		switch p.PeriodType {
		case "D", "M", "Y":
		default:
			return "", nil, fmt.Errorf("ecpay period type must be D, M or Y, got %q", p.PeriodType)
		}
		fields["PeriodAmount"] = fmt.Sprintf("%d", p.PeriodAmount)
		fields["PeriodType"] = p.PeriodType
		fields["Frequency"] = fmt.Sprintf("%d", p.Frequency)
		fields["ExecTimes"] = fmt.Sprintf("%d", p.ExecTimes)
		if p.PeriodReturnURL != "" {
			fields["PeriodReturnURL"] = p.PeriodReturnURL
		}
	}

	fields["CheckMacValue"] = s.checkMacValue(fields)

	endpoint := ecpayProductionURL
	if s.cfg.Sandbox {
		endpoint = ecpaySandboxURL
	}
	return endpoint, fields, nil
}

func (s *ecpayService) VerifyCallback(form url.Values) (*ECPayCallbackResult, error) {
	if !s.Enabled() {
		return nil, fmt.Errorf("ecpay is not configured")
	}

	received := form.Get("CheckMacValue")
	if received == "" {
		return nil, fmt.Errorf("ecpay callback missing CheckMacValue")
	}

	fields := make(map[string]string, len(form))
	for key := range form {
		if key == "CheckMacValue" {
			continue
		}
		fields[key] = form.Get(key)
	}

	expected := s.checkMacValue(fields)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToUpper(received))) != 1 {
		return nil, fmt.Errorf("ecpay callback signature mismatch")
	}

	result := &ECPayCallbackResult{
		MerchantTradeNo: form.Get("MerchantTradeNo"),
		TradeNo:         form.Get("TradeNo"),
		RtnMsg:          form.Get("RtnMsg"),
		PaymentDate:     form.Get("PaymentDate"),
		PaymentType:     form.Get("PaymentType"),
		CustomField1:    form.Get("CustomField1"),
		CustomField2:    form.Get("CustomField2"),
	}
	fmt.Sscanf(form.Get("RtnCode"), "%d", &result.RtnCode)
	fmt.Sscanf(form.Get("TradeAmt"), "%d", &result.TradeAmt)
	return result, nil
}

// checkMacValue computes the SHA-256 CheckMacValue over the form fields:
// sort keys alphabetically, join as a query string bracketed by HashKey
// and HashIV, URL-encode the whole string using ECPay's .NET-compatible
// escaping, lowercase, hash, then uppercase the hex digest.
func (s *ecpayService) checkMacValue(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("HashKey=" + s.cfg.HashKey)
	for _, key := range keys {
		b.WriteString("&" + key + "=" + fields[key])
	}
	b.WriteString("&HashIV=" + s.cfg.HashIV)

	encoded := strings.ToLower(ecpayURLEncode(b.String()))
	sum := sha256.Sum256([]byte(encoded))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// ecpayURLEncode mimics .NET's HttpUtility.UrlEncode, which ECPay's
// signature scheme depends on: spaces become '+', and the characters
// - _ . ! * ( ) stay literal while '~' is escaped.
func ecpayURLEncode(s string) string {
	encoded := url.QueryEscape(s)
	replacer := strings.NewReplacer(
		"%21", "!",
		"%28", "(",
		"%29", ")",
		"%2A", "*",
		"%2a", "*",
		"~", "%7e",
	)
	return replacer.Replace(encoded)
}
