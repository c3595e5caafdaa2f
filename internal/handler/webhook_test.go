package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaiwahq/kaiwa/internal/billing"
	"github.com/kaiwahq/kaiwa/internal/domain"
	"github.com/kaiwahq/kaiwa/internal/repository"
)

// =============================================================================
// Fakes
// =============================================================================

// fakeEventRecorder stores event IDs in memory to exercise the
// idempotency path without a database.
type fakeEventRecorder struct {
	seen    map[string]bool
	failing bool
}

func newFakeEventRecorder() *fakeEventRecorder {
	return &fakeEventRecorder{seen: make(map[string]bool)}
}

func (f *fakeEventRecorder) InsertPaymentEvent(ctx context.Context, arg repository.InsertPaymentEventParams) (bool, error) {
	if f.failing {
		return false, errors.New("database is down")
	}
	key := arg.Provider + ":" + arg.ProviderEventID
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

// fakeECPayService verifies nothing; it returns a canned result so the
// handler's processing logic can be tested in isolation.
type fakeECPayService struct {
	result    *billing.ECPayCallbackResult
	verifyErr error
}

func (f *fakeECPayService) CreateOrder(params billing.ECPayOrderParams) (string, map[string]string, error) {
	return "", nil, errNotImplemented
}

func (f *fakeECPayService) VerifyCallback(form url.Values) (*billing.ECPayCallbackResult, error) {
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return f.result, nil
}

func (f *fakeECPayService) Enabled() bool { return true }

func newTestWebhookHandler(ecpay billing.ECPayService, users *mockUserService, events PaymentEventRecorder) *WebhookHandler {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewWebhookHandler(nil, ecpay, users, &mockEmailService{}, events, logger)
}

func ecpayCallbackRequest() *http.Request {
	form := url.Values{}
	form.Set("MerchantTradeNo", "KW202608241200001234")
	form.Set("RtnCode", "1")
	req := httptest.NewRequest("POST", "/webhooks/ecpay", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// =============================================================================
// ECPay Callback
// =============================================================================

func TestECPayCallback_PaidActivatesSubscription(t *testing.T) {
	userID := uuid.New()
	user := &domain.User{ID: userID, Email: "coach@example.com", SubscriptionTier: domain.PlanTierFree}

	var updated domain.SubscriptionUpdateParams
	users := &mockUserService{
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*domain.User, error) {
			require.Equal(t, userID, id)
			return user, nil
		},
		updateSubscriptionFunc: func(ctx context.Context, params domain.SubscriptionUpdateParams) error {
			updated = params
			return nil
		},
	}
	ecpay := &fakeECPayService{result: &billing.ECPayCallbackResult{
		MerchantTradeNo: "KW202608241200001234",
		TradeNo:         "EC99887766",
		RtnCode:         1,
		TradeAmt:        600,
		CustomField1:    userID.String(),
		CustomField2:    "pro",
	}}
	h := newTestWebhookHandler(ecpay, users, newFakeEventRecorder())

	rec := httptest.NewRecorder()
	h.HandleECPayCallback(rec, ecpayCallbackRequest())

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, billing.ECPayCallbackSuccessReply, rec.Body.String())

	assert.Equal(t, userID, updated.UserID)
	assert.Equal(t, domain.PaymentProviderECPay, updated.Provider)
	assert.Equal(t, domain.SubscriptionStatusActive, updated.Status)
	assert.Equal(t, domain.PlanTierPro, updated.Tier)
	assert.Equal(t, "EC99887766", updated.SubscriptionID)
}

func TestECPayCallback_DuplicateAcknowledgedWithoutUpdate(t *testing.T) {
	userID := uuid.New()
	updates := 0
	users := &mockUserService{
		getByIDFunc: func(ctx context.Context, id uuid.UUID) (*domain.User, error) {
			return &domain.User{ID: userID}, nil
		},
		updateSubscriptionFunc: func(ctx context.Context, params domain.SubscriptionUpdateParams) error {
			updates++
			return nil
		},
	}
	ecpay := &fakeECPayService{result: &billing.ECPayCallbackResult{
		MerchantTradeNo: "KW202608241200001234",
		TradeNo:         "EC99887766",
		RtnCode:         1,
		CustomField1:    userID.String(),
		CustomField2:    "pro",
	}}
	events := newFakeEventRecorder()
	h := newTestWebhookHandler(ecpay, users, events)

	first := httptest.NewRecorder()
	h.HandleECPayCallback(first, ecpayCallbackRequest())
	second := httptest.NewRecorder()
	h.HandleECPayCallback(second, ecpayCallbackRequest())

	// Both deliveries must be acknowledged or ECPay keeps retrying.
	assert.Equal(t, billing.ECPayCallbackSuccessReply, first.Body.String())
	assert.Equal(t, billing.ECPayCallbackSuccessReply, second.Body.String())
	assert.Equal(t, 1, updates, "duplicate delivery must not reprocess")
}

func TestECPayCallback_BadSignatureRejected(t *testing.T) {
	ecpay := &fakeECPayService{verifyErr: errors.New("CheckMacValue mismatch")}
	h := newTestWebhookHandler(ecpay, &mockUserService{}, newFakeEventRecorder())

	rec := httptest.NewRecorder()
	h.HandleECPayCallback(rec, ecpayCallbackRequest())

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotContains(t, rec.Body.String(), billing.ECPayCallbackSuccessReply)
}

func TestECPayCallback_FailedPaymentAcknowledgedNoUpdate(t *testing.T) {
	updates := 0
	users := &mockUserService{
		updateSubscriptionFunc: func(ctx context.Context, params domain.SubscriptionUpdateParams) error {
			updates++
			return nil
		},
	}
	ecpay := &fakeECPayService{result: &billing.ECPayCallbackResult{
		MerchantTradeNo: "KW202608241200001234",
		TradeNo:         "EC99887766",
		RtnCode:         10200095, // user abandoned payment
		RtnMsg:          "Pay Fail",
	}}
	h := newTestWebhookHandler(ecpay, users, newFakeEventRecorder())

	rec := httptest.NewRecorder()
	h.HandleECPayCallback(rec, ecpayCallbackRequest())

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, billing.ECPayCallbackSuccessReply, rec.Body.String())
	assert.Equal(t, 0, updates)
}

func TestECPayCallback_TradeNoFallbackLookup(t *testing.T) {
	userID := uuid.New()
	var lookedUp string
	users := &mockUserService{
		getByECPayTradeNoFunc: func(ctx context.Context, tradeNo string) (*domain.User, error) {
			lookedUp = tradeNo
			return &domain.User{ID: userID}, nil
		},
	}
	// No CustomField1: the handler must fall back to the saved trade number.
	ecpay := &fakeECPayService{result: &billing.ECPayCallbackResult{
		MerchantTradeNo: "KW202608241200001234",
		TradeNo:         "EC99887766",
		RtnCode:         1,
		CustomField2:    "business",
	}}
	h := newTestWebhookHandler(ecpay, users, newFakeEventRecorder())

	rec := httptest.NewRecorder()
	h.HandleECPayCallback(rec, ecpayCallbackRequest())

	assert.Equal(t, billing.ECPayCallbackSuccessReply, rec.Body.String())
	assert.Equal(t, "KW202608241200001234", lookedUp)
}

func TestECPayCallback_RecorderFailureReturns500(t *testing.T) {
	ecpay := &fakeECPayService{result: &billing.ECPayCallbackResult{
		MerchantTradeNo: "KW202608241200001234",
		RtnCode:         1,
	}}
	events := newFakeEventRecorder()
	events.failing = true
	h := newTestWebhookHandler(ecpay, &mockUserService{}, events)

	rec := httptest.NewRecorder()
	h.HandleECPayCallback(rec, ecpayCallbackRequest())

	// 500 (not "1|OK") so ECPay redelivers once the database recovers.
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// =============================================================================
// Stripe
// =============================================================================

func TestStripeWebhook_NotConfiguredStillAcknowledges(t *testing.T) {
	h := newTestWebhookHandler(&fakeECPayService{}, &mockUserService{}, newFakeEventRecorder())

	req := httptest.NewRequest("POST", "/webhooks/stripe", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	h.HandleStripeWebhook(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
