// Package handler contains the HTTP handlers for the Kaiwa API.
//
// This file implements the payment webhook handlers.
//
// Routes:
//   - POST /webhooks/stripe -> HandleStripeWebhook
//   - POST /webhooks/ecpay  -> HandleECPayCallback
//
// Both routes are PUBLIC (no auth middleware) because the gateways call
// them directly. Authentication is the Stripe signature header and the
// ECPay CheckMacValue respectively. Every verified event is recorded in
// payment_events first; a duplicate delivery is acknowledged without
// reprocessing.
package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
	"github.com/stripe/stripe-go/v79"

	"github.com/kaiwahq/kaiwa/internal/billing"
	"github.com/kaiwahq/kaiwa/internal/domain"
	"github.com/kaiwahq/kaiwa/internal/email"
	"github.com/kaiwahq/kaiwa/internal/metrics"
	"github.com/kaiwahq/kaiwa/internal/repository"
	"github.com/kaiwahq/kaiwa/internal/service"
)

// maxWebhookBodyBytes caps webhook payloads. Stripe events are a few KB.
const maxWebhookBodyBytes = 1 << 16 // 64 KiB

// PaymentEventRecorder stores webhook events for idempotency.
// *repository.Queries satisfies it.
type PaymentEventRecorder interface {
	InsertPaymentEvent(ctx context.Context, arg repository.InsertPaymentEventParams) (bool, error)
}

// WebhookHandler handles incoming payment gateway webhooks.
type WebhookHandler struct {
	stripe       billing.Service
	ecpay        billing.ECPayService
	userService  service.UserService
	emailService email.EmailService
	events       PaymentEventRecorder
	logger       *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
// stripeService and ecpayService may be nil when not configured.
func NewWebhookHandler(
	stripeService billing.Service,
	ecpayService billing.ECPayService,
	userService service.UserService,
	emailService email.EmailService,
	events PaymentEventRecorder,
	logger *slog.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		stripe:       stripeService,
		ecpay:        ecpayService,
		userService:  userService,
		emailService: emailService,
		events:       events,
		logger:       logger,
	}
}

// RegisterRoutes registers webhook routes on the provided mux.
// These routes are PUBLIC — no auth middleware.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/stripe", h.HandleStripeWebhook)
	mux.HandleFunc("POST /webhooks/ecpay", h.HandleECPayCallback)
}

// =============================================================================
// Stripe
// =============================================================================

// HandleStripeWebhook processes incoming Stripe webhook events.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.stripe == nil {
		h.logger.Warn("stripe webhook received but billing is not configured")
		w.WriteHeader(http.StatusOK)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	event, err := h.stripe.VerifyWebhookSignature(body, signature)
	if err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		metrics.WebhookEventsTotal.WithLabelValues("stripe", "invalid").Inc()
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	fresh, err := h.events.InsertPaymentEvent(r.Context(), repository.InsertPaymentEventParams{
		Provider:        string(domain.PaymentProviderStripe),
		ProviderEventID: event.ID,
		EventType:       string(event.Type),
		Payload:         pqtype.NullRawMessage{RawMessage: body, Valid: true},
	})
	if err != nil {
		h.logger.Error("failed to record webhook event", "error", err, "event_id", event.ID)
		// 500 so Stripe redelivers once the database recovers.
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if !fresh {
		h.logger.Info("duplicate stripe event ignored", "event_id", event.ID, "type", event.Type)
		metrics.WebhookEventsTotal.WithLabelValues("stripe", "duplicate").Inc()
		w.WriteHeader(http.StatusOK)
		return
	}

	h.logger.Info("stripe webhook received", "type", event.Type, "id", event.ID)
	metrics.WebhookEventsTotal.WithLabelValues("stripe", "ok").Inc()

	switch event.Type {
	case "checkout.session.completed":
		h.handleCheckoutCompleted(r.Context(), event)
	case "customer.subscription.created", "customer.subscription.updated":
		h.handleSubscriptionChanged(r.Context(), event)
	case "customer.subscription.deleted":
		h.handleSubscriptionDeleted(r.Context(), event)
	case "invoice.payment_succeeded":
		h.handlePaymentSucceeded(r.Context(), event)
	case "invoice.payment_failed":
		h.handlePaymentFailed(r.Context(), event)
	default:
		h.logger.Debug("unhandled webhook event type", "type", event.Type)
	}

	w.WriteHeader(http.StatusOK)
}

func (h *WebhookHandler) handleCheckoutCompleted(ctx context.Context, event stripe.Event) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		h.logger.Error("failed to parse checkout session", "error", err)
		return
	}

	if session.Customer == nil || session.Subscription == nil {
		h.logger.Warn("checkout session missing customer or subscription", "session_id", session.ID)
		return
	}

	user, err := h.userService.GetByStripeCustomerID(ctx, session.Customer.ID)
	if err != nil {
		// The subscription.created event carries the same information and
		// usually lands after the customer ID has been saved.
		h.logger.Info("user not found by customer ID on checkout",
			"customer_id", session.Customer.ID, "subscription_id", session.Subscription.ID)
		return
	}

	err = h.userService.UpdateSubscription(ctx, domain.SubscriptionUpdateParams{
		UserID:         user.ID,
		Provider:       domain.PaymentProviderStripe,
		Status:         domain.SubscriptionStatusActive,
		Tier:           user.SubscriptionTier,
		SubscriptionID: session.Subscription.ID,
	})
	if err != nil {
		h.logger.Error("failed to update subscription on checkout", "error", err, "user_id", user.ID)
	}
}

func (h *WebhookHandler) handleSubscriptionChanged(ctx context.Context, event stripe.Event) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		h.logger.Error("failed to parse subscription event", "error", err, "type", event.Type)
		return
	}

	if sub.Customer == nil {
		h.logger.Warn("subscription event missing customer", "subscription_id", sub.ID)
		return
	}

	user, err := h.userService.GetByStripeCustomerID(ctx, sub.Customer.ID)
	if err != nil {
		h.logger.Warn("user not found for subscription event",
			"customer_id", sub.Customer.ID, "subscription_id", sub.ID)
		return
	}

	tier := user.SubscriptionTier
	if len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		if name := h.stripe.TierForPriceID(sub.Items.Data[0].Price.ID); name != "" {
			tier = domain.ParseTier(name)
		}
	}

	err = h.userService.UpdateSubscription(ctx, domain.SubscriptionUpdateParams{
		UserID:         user.ID,
		Provider:       domain.PaymentProviderStripe,
		Status:         domain.SubscriptionStatus(sub.Status),
		Tier:           tier,
		SubscriptionID: sub.ID,
	})
	if err != nil {
		h.logger.Error("failed to update subscription", "error", err, "user_id", user.ID)
		return
	}

	h.logger.Info("subscription event processed",
		"user_id", user.ID, "status", sub.Status, "tier", tier)
}

func (h *WebhookHandler) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		h.logger.Error("failed to parse subscription deleted event", "error", err)
		return
	}

	if sub.Customer == nil {
		h.logger.Warn("subscription deleted event missing customer", "subscription_id", sub.ID)
		return
	}

	user, err := h.userService.GetByStripeCustomerID(ctx, sub.Customer.ID)
	if err != nil {
		h.logger.Warn("user not found for subscription deletion", "customer_id", sub.Customer.ID)
		return
	}

	err = h.userService.UpdateSubscription(ctx, domain.SubscriptionUpdateParams{
		UserID:         user.ID,
		Provider:       domain.PaymentProviderStripe,
		Status:         domain.SubscriptionStatusCanceled,
		Tier:           domain.PlanTierFree,
		SubscriptionID: "",
	})
	if err != nil {
		h.logger.Error("failed to deactivate subscription", "error", err, "user_id", user.ID)
		return
	}

	h.logger.Info("subscription deleted", "user_id", user.ID, "subscription_id", sub.ID)
}

func (h *WebhookHandler) handlePaymentSucceeded(ctx context.Context, event stripe.Event) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		h.logger.Error("failed to parse invoice payment succeeded event", "error", err)
		return
	}

	if invoice.Customer == nil {
		return
	}

	user, err := h.userService.GetByStripeCustomerID(ctx, invoice.Customer.ID)
	if err != nil {
		h.logger.Debug("user not found for payment succeeded", "customer_id", invoice.Customer.ID)
		return
	}

	// Recovery from past_due: payment went through, reactivate.
	if user.SubscriptionStatus != domain.SubscriptionStatusActive {
		err := h.userService.UpdateSubscription(ctx, domain.SubscriptionUpdateParams{
			UserID:         user.ID,
			Provider:       domain.PaymentProviderStripe,
			Status:         domain.SubscriptionStatusActive,
			Tier:           user.SubscriptionTier,
			SubscriptionID: user.SubscriptionID,
		})
		if err != nil {
			h.logger.Error("failed to reactivate on payment success", "error", err, "user_id", user.ID)
		}
	}
}

func (h *WebhookHandler) handlePaymentFailed(ctx context.Context, event stripe.Event) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		h.logger.Error("failed to parse invoice payment failed event", "error", err)
		return
	}

	if invoice.Customer == nil {
		return
	}

	user, err := h.userService.GetByStripeCustomerID(ctx, invoice.Customer.ID)
	if err != nil {
		h.logger.Debug("user not found for payment failed", "customer_id", invoice.Customer.ID)
		return
	}

	err = h.userService.UpdateSubscription(ctx, domain.SubscriptionUpdateParams{
		UserID:         user.ID,
		Provider:       domain.PaymentProviderStripe,
		Status:         domain.SubscriptionStatusPastDue,
		Tier:           user.SubscriptionTier,
		SubscriptionID: user.SubscriptionID,
	})
	if err != nil {
		h.logger.Error("failed to set past_due on payment failure", "error", err, "user_id", user.ID)
	}

	h.logger.Warn("payment failed", "user_id", user.ID, "customer_id", invoice.Customer.ID)
	h.notifyPaymentFailed(user)
}

// =============================================================================
// ECPay
// =============================================================================

// HandleECPayCallback processes the server-to-server payment
// notification from ECPay. The body is form-encoded and signed with a
// CheckMacValue. ECPay redelivers until it receives the literal reply
// "1|OK", so every verified notification is acknowledged even when the
// payment itself failed.
func (h *WebhookHandler) HandleECPayCallback(w http.ResponseWriter, r *http.Request) {
	if h.ecpay == nil || !h.ecpay.Enabled() {
		h.logger.Warn("ecpay callback received but ecpay is not configured")
		w.WriteHeader(http.StatusOK)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)
	if err := r.ParseForm(); err != nil {
		h.logger.Error("failed to parse ecpay callback form", "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	result, err := h.ecpay.VerifyCallback(r.PostForm)
	if err != nil {
		h.logger.Warn("ecpay callback verification failed", "error", err)
		metrics.WebhookEventsTotal.WithLabelValues("ecpay", "invalid").Inc()
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	eventID := result.TradeNo
	if eventID == "" {
		eventID = result.MerchantTradeNo
	}
	payload, _ := json.Marshal(result)

	fresh, err := h.events.InsertPaymentEvent(r.Context(), repository.InsertPaymentEventParams{
		Provider:        string(domain.PaymentProviderECPay),
		ProviderEventID: eventID,
		EventType:       "payment_notification",
		Payload:         pqtype.NullRawMessage{RawMessage: payload, Valid: true},
	})
	if err != nil {
		h.logger.Error("failed to record ecpay event", "error", err, "trade_no", result.TradeNo)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if !fresh {
		h.logger.Info("duplicate ecpay notification ignored", "trade_no", result.TradeNo)
		metrics.WebhookEventsTotal.WithLabelValues("ecpay", "duplicate").Inc()
		h.replyECPay(w)
		return
	}

	metrics.WebhookEventsTotal.WithLabelValues("ecpay", "ok").Inc()

	if !result.Paid() {
		h.logger.Warn("ecpay payment not successful",
			"merchant_trade_no", result.MerchantTradeNo, "rtn_code", result.RtnCode, "rtn_msg", result.RtnMsg)
		h.replyECPay(w)
		return
	}

	user, err := h.lookupECPayUser(r.Context(), result)
	if err != nil {
		h.logger.Error("no user matches ecpay notification",
			"error", err, "merchant_trade_no", result.MerchantTradeNo)
		h.replyECPay(w)
		return
	}

	tier := domain.ParseTier(result.CustomField2)
	if tier == domain.PlanTierFree {
		h.logger.Error("ecpay notification carries no valid tier",
			"merchant_trade_no", result.MerchantTradeNo, "custom_field_2", result.CustomField2)
		h.replyECPay(w)
		return
	}

	err = h.userService.UpdateSubscription(r.Context(), domain.SubscriptionUpdateParams{
		UserID:         user.ID,
		Provider:       domain.PaymentProviderECPay,
		Status:         domain.SubscriptionStatusActive,
		Tier:           tier,
		SubscriptionID: result.TradeNo,
	})
	if err != nil {
		h.logger.Error("failed to activate subscription from ecpay", "error", err, "user_id", user.ID)
		// Acknowledge anyway; the event is recorded and can be replayed
		// from payment_events if needed.
	} else {
		h.logger.Info("ecpay payment processed",
			"user_id", user.ID, "tier", tier, "amount_twd", result.TradeAmt, "trade_no", result.TradeNo)
	}

	h.replyECPay(w)
}

// lookupECPayUser resolves the paying user, preferring the user ID
// carried in CustomField1 and falling back to the saved trade number.
func (h *WebhookHandler) lookupECPayUser(ctx context.Context, result *billing.ECPayCallbackResult) (*domain.User, error) {
	if result.CustomField1 != "" {
		if id, err := uuid.Parse(result.CustomField1); err == nil {
			if user, err := h.userService.GetByID(ctx, id); err == nil {
				return user, nil
			}
		}
	}
	return h.userService.GetByECPayTradeNo(ctx, result.MerchantTradeNo)
}

// replyECPay writes the acknowledgement body ECPay requires.
func (h *WebhookHandler) replyECPay(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(billing.ECPayCallbackSuccessReply))
}

// notifyPaymentFailed emails the user about a failed renewal charge.
func (h *WebhookHandler) notifyPaymentFailed(user *domain.User) {
	if h.emailService == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), emailSendTimeout)
		defer cancel()
		if err := h.emailService.SendPaymentFailedEmail(ctx, user.Email, user.DisplayName()); err != nil {
			h.logger.Error("failed to send payment failed email", "error", err, "user_id", user.ID)
		}
	}()
}
