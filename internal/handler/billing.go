// Package handler contains the HTTP handlers for the Kaiwa API.
//
// This file implements billing endpoints. Two payment paths exist:
//
//   - Stripe: hosted Checkout plus the Customer Portal for ongoing
//     subscription management.
//   - ECPay (綠界): Taiwan card payments. No hosted portal exists, so
//     each renewal is a one-time order; the client POSTs the signed
//     form fields we return to the ECPay gateway.
package handler

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kaiwahq/kaiwa/internal/auth"
	"github.com/kaiwahq/kaiwa/internal/billing"
	"github.com/kaiwahq/kaiwa/internal/domain"
	"github.com/kaiwahq/kaiwa/internal/service"
)

// ecpayTierPrices maps plan tiers to the monthly price in TWD charged
// through ECPay.
var ecpayTierPrices = map[domain.PlanTier]int{
	domain.PlanTierPro:      600,
	domain.PlanTierBusiness: 1800,
}

// BillingHandler handles billing and subscription management requests.
type BillingHandler struct {
	stripe      billing.Service
	ecpay       billing.ECPayService
	userService service.UserService
	baseURL     string
	prices      billing.PriceConfig
	logger      *slog.Logger
}

// NewBillingHandler creates a new BillingHandler.
// stripeService may be nil when Stripe is not configured; ecpayService
// reports its own configured state via Enabled.
func NewBillingHandler(
	stripeService billing.Service,
	ecpayService billing.ECPayService,
	userService service.UserService,
	baseURL string,
	prices billing.PriceConfig,
	logger *slog.Logger,
) *BillingHandler {
	return &BillingHandler{
		stripe:      stripeService,
		ecpay:       ecpayService,
		userService: userService,
		baseURL:     baseURL,
		prices:      prices,
		logger:      logger,
	}
}

// RegisterRoutes registers billing routes on the provided mux.
func (h *BillingHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("GET /api/billing", requireUser(http.HandlerFunc(h.Overview)))
	mux.Handle("POST /api/billing/checkout", requireUser(http.HandlerFunc(h.CreateCheckout)))
	mux.Handle("POST /api/billing/portal", requireUser(http.HandlerFunc(h.OpenPortal)))
	mux.Handle("POST /api/billing/cancel", requireUser(http.HandlerFunc(h.CancelSubscription)))
	mux.Handle("POST /api/billing/reactivate", requireUser(http.HandlerFunc(h.ReactivateSubscription)))
	mux.Handle("POST /api/billing/ecpay/order", requireUser(http.HandlerFunc(h.CreateECPayOrder)))
}

// =============================================================================
// GET /api/billing
// =============================================================================

// PlanResponse describes the user's current subscription.
type PlanResponse struct {
	Tier          string `json:"tier"`
	Status        string `json:"status"`
	Provider      string `json:"provider,omitempty"`
	PeriodEnd     string `json:"period_end,omitempty"`
	CancelAtEnd   bool   `json:"cancel_at_period_end"`
	StripeEnabled bool   `json:"stripe_enabled"`
	ECPayEnabled  bool   `json:"ecpay_enabled"`
}

// Overview returns the current subscription, enriched with live Stripe
// data when available.
func (h *BillingHandler) Overview(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	plan := PlanResponse{
		Tier:          string(user.SubscriptionTier),
		Status:        string(user.SubscriptionStatus),
		Provider:      string(user.PaymentProvider),
		StripeEnabled: h.stripe != nil,
		ECPayEnabled:  h.ecpay != nil && h.ecpay.Enabled(),
	}

	if h.stripe != nil && user.PaymentProvider == domain.PaymentProviderStripe && user.SubscriptionID != "" {
		sub, err := h.stripe.GetSubscription(user.SubscriptionID)
		if err != nil {
			h.logger.Warn("failed to fetch stripe subscription", "error", err, "subscription_id", user.SubscriptionID)
		} else {
			plan.PeriodEnd = time.Unix(sub.CurrentPeriodEnd, 0).UTC().Format(time.RFC3339)
			plan.CancelAtEnd = sub.CancelAtPeriodEnd
			plan.Status = string(sub.Status)
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"plan": plan})
}

// =============================================================================
// Stripe
// =============================================================================

type checkoutRequest struct {
	PriceID string `json:"price_id"`
}

// CreateCheckout creates a Stripe Checkout session and returns its URL.
func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}
	if h.stripe == nil {
		ErrorResponse(w, r, h.logger, domain.Errorf(domain.ENOTIMPL, "billing.checkout", "Card payments are not configured"))
		return
	}

	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if req.PriceID == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid("billing.checkout", "price_id is required"))
		return
	}
	if h.stripe.TierForPriceID(req.PriceID) == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid("billing.checkout", "Unknown price_id"))
		return
	}

	customerID := user.StripeCustomerID
	if customerID == "" {
		var err error
		customerID, err = h.stripe.CreateCustomer(user.Email, user.Name)
		if err != nil {
			h.logger.Error("failed to create stripe customer", "error", err, "user_id", user.ID)
			InternalErrorResponse(w, r, h.logger, err)
			return
		}
		if err := h.userService.UpdateStripeCustomer(r.Context(), user.ID, customerID); err != nil {
			h.logger.Error("failed to save stripe customer ID", "error", err, "user_id", user.ID)
		}
	}

	successURL := fmt.Sprintf("%s/settings/billing/success?session_id={CHECKOUT_SESSION_ID}", h.baseURL)
	cancelURL := fmt.Sprintf("%s/settings/billing", h.baseURL)

	checkoutURL, err := h.stripe.CreateCheckoutSession(customerID, req.PriceID, successURL, cancelURL)
	if err != nil {
		h.logger.Error("failed to create checkout session", "error", err, "user_id", user.ID)
		InternalErrorResponse(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"url": checkoutURL})
}

// OpenPortal creates a Stripe Customer Portal session and returns its URL.
func (h *BillingHandler) OpenPortal(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}
	if h.stripe == nil {
		ErrorResponse(w, r, h.logger, domain.Errorf(domain.ENOTIMPL, "billing.portal", "Card payments are not configured"))
		return
	}
	if user.StripeCustomerID == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid("billing.portal", "No billing account exists yet"))
		return
	}

	returnURL := fmt.Sprintf("%s/settings/billing", h.baseURL)
	portalURL, err := h.stripe.CreatePortalSession(user.StripeCustomerID, returnURL)
	if err != nil {
		h.logger.Error("failed to create portal session", "error", err, "user_id", user.ID)
		InternalErrorResponse(w, r, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"url": portalURL})
}

// CancelSubscription sets the Stripe subscription to cancel at period end.
func (h *BillingHandler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}
	if h.stripe == nil || user.SubscriptionID == "" || user.PaymentProvider != domain.PaymentProviderStripe {
		ErrorResponse(w, r, h.logger, domain.Invalid("billing.cancel", "No active card subscription to cancel"))
		return
	}

	if err := h.stripe.CancelSubscription(user.SubscriptionID); err != nil {
		h.logger.Error("failed to cancel subscription", "error", err, "user_id", user.ID)
		InternalErrorResponse(w, r, h.logger, err)
		return
	}

	h.logger.Info("subscription set to cancel at period end", "user_id", user.ID)
	w.WriteHeader(http.StatusNoContent)
}

// ReactivateSubscription removes the cancel-at-period-end flag.
func (h *BillingHandler) ReactivateSubscription(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}
	if h.stripe == nil || user.SubscriptionID == "" || user.PaymentProvider != domain.PaymentProviderStripe {
		ErrorResponse(w, r, h.logger, domain.Invalid("billing.reactivate", "No card subscription to reactivate"))
		return
	}

	if err := h.stripe.ReactivateSubscription(user.SubscriptionID); err != nil {
		h.logger.Error("failed to reactivate subscription", "error", err, "user_id", user.ID)
		InternalErrorResponse(w, r, h.logger, err)
		return
	}

	h.logger.Info("subscription reactivated", "user_id", user.ID)
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// ECPay
// =============================================================================

type ecpayOrderRequest struct {
	Tier string `json:"tier"` // "pro" or "business"
}

// ECPayOrderResponse is the signed checkout form the client POSTs to
// the ECPay gateway.
type ECPayOrderResponse struct {
	GatewayURL string            `json:"gateway_url"`
	Fields     map[string]string `json:"fields"`
}

// CreateECPayOrder builds a recurring monthly ECPay order for the
// requested tier. The server callback at /webhooks/ecpay activates the
// subscription on the first charge and renews it on each period charge.
func (h *BillingHandler) CreateECPayOrder(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}
	if h.ecpay == nil || !h.ecpay.Enabled() {
		ErrorResponse(w, r, h.logger, domain.Errorf(domain.ENOTIMPL, "billing.ecpay_order", "ECPay payments are not configured"))
		return
	}

	var req ecpayOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	tier := domain.PlanTier(strings.ToLower(strings.TrimSpace(req.Tier)))
	amount, ok := ecpayTierPrices[tier]
	if !ok {
		ErrorResponse(w, r, h.logger, domain.Invalid("billing.ecpay_order", "tier must be \"pro\" or \"business\""))
		return
	}

	tradeNo, err := newMerchantTradeNo()
	if err != nil {
		InternalErrorResponse(w, r, h.logger, err)
		return
	}

	gatewayURL, fields, err := h.ecpay.CreateOrder(billing.ECPayOrderParams{
		MerchantTradeNo: tradeNo,
		TradeDate:       time.Now(),
		TotalAmount:     amount,
		ItemName:        fmt.Sprintf("Kaiwa %s plan (monthly)", tier),
		TradeDesc:       "Kaiwa subscription",
		ReturnURL:       h.baseURL + "/webhooks/ecpay",
		ClientBackURL:   h.baseURL + "/settings/billing",
		CustomField1:    user.ID.String(),
		CustomField2:    string(tier),
		Period: &billing.ECPayPeriodParams{
			PeriodAmount:    amount,
			PeriodType:      "M",
			Frequency:       1,
			ExecTimes:       99, // renew until canceled; ECPay needs a finite count
			PeriodReturnURL: h.baseURL + "/webhooks/ecpay",
		},
	})
	if err != nil {
		h.logger.Error("failed to create ecpay order", "error", err, "user_id", user.ID)
		InternalErrorResponse(w, r, h.logger, err)
		return
	}

	// Persist the trade number so the callback can be matched back to
	// this account even if the custom fields are dropped.
	if err := h.userService.UpdateECPayTradeNo(r.Context(), user.ID, tradeNo); err != nil {
		h.logger.Error("failed to save ecpay trade number", "error", err, "user_id", user.ID)
		InternalErrorResponse(w, r, h.logger, err)
		return
	}

	h.logger.Info("ecpay order created", "user_id", user.ID, "trade_no", tradeNo, "tier", tier, "amount_twd", amount)
	respondJSON(w, http.StatusOK, ECPayOrderResponse{GatewayURL: gatewayURL, Fields: fields})
}

// newMerchantTradeNo builds a unique ECPay order number. ECPay requires
// 1-20 alphanumeric characters: "KW" + 14-digit timestamp + 4 hex chars.
func newMerchantTradeNo() (string, error) {
	var suffix [2]byte
	if _, err := rand.Read(suffix[:]); err != nil {
		return "", err
	}
	return fmt.Sprintf("KW%s%s",
		time.Now().UTC().Format("20060102150405"),
		strings.ToUpper(hex.EncodeToString(suffix[:])),
	), nil
}
