// internal/services/payment_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
	"github.com/stripe/stripe-go/v74/refund"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/civilaviation/fop-backend/internal/config"
	"github.com/civilaviation/fop-backend/internal/permit"
)

// GatewayStatus is the coarse outcome of a payment at the gateway.
type GatewayStatus string

const (
	GatewayPending    GatewayStatus = "pending"
	GatewayProcessing GatewayStatus = "processing"
	GatewaySucceeded  GatewayStatus = "succeeded"
	GatewayFailed     GatewayStatus = "failed"
	GatewayCancelled  GatewayStatus = "cancelled"
)

type IntentRequest struct {
	Amount            permit.Money
	TenantID          string
	ApplicationID     uuid.UUID
	ApplicationNumber string
	PaymentID         uuid.UUID
}

type PaymentIntent struct {
	ID            string        `json:"id"`
	ClientSecret  string        `json:"client_secret,omitempty"`
	Status        GatewayStatus `json:"status"`
	ReceiptNumber string        `json:"receipt_number,omitempty"`
	ReceiptURL    string        `json:"receipt_url,omitempty"`
	FailureReason string        `json:"failure_reason,omitempty"`
	TenantID      string        `json:"-"`
	ApplicationID uuid.UUID     `json:"-"`
}

// PaymentGateway is the card payment provider.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*PaymentIntent, error)
	GetIntent(ctx context.Context, id string) (*PaymentIntent, error)
	CancelIntent(ctx context.Context, id string) error
	// Refund must be idempotent per intent.
	Refund(ctx context.Context, intentID, reason string) (string, error)
}

// PaymentService wraps the Stripe gateway and verifies its webhooks.
type PaymentService struct {
	config *config.Config
}

var _ PaymentGateway = (*PaymentService)(nil)

func NewPaymentService(config *config.Config) *PaymentService {
	// Initialize Stripe
	stripe.Key = config.Payment.StripeSecretKey

	return &PaymentService{
		config: config,
	}
}

// Configured reports whether a Stripe key is present.
func (s *PaymentService) Configured() bool {
	return s.config.Payment.StripeSecretKey != ""
}

// minorUnits converts to the currency's smallest unit. Every currency the
// authority bills in has two decimals.
func minorUnits(m permit.Money) int64 {
	return m.Amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func (s *PaymentService) CreateIntent(ctx context.Context, req IntentRequest) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(minorUnits(req.Amount)),
		Currency:    stripe.String(strings.ToLower(req.Amount.Currency)),
		Description: stripe.String("Foreign operator permit " + req.ApplicationNumber),
	}
	params.Context = ctx
	params.AddMetadata("tenant_id", req.TenantID)
	params.AddMetadata("application_id", req.ApplicationID.String())
	params.AddMetadata("application_number", req.ApplicationNumber)
	params.AddMetadata("payment_id", req.PaymentID.String())

	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create payment intent: %v", ErrGateway, err)
	}
	return fromStripeIntent(pi), nil
}

func (s *PaymentService) GetIntent(ctx context.Context, id string) (*PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("latest_charge")

	pi, err := paymentintent.Get(id, params)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to get payment intent: %v", ErrGateway, err)
	}
	return fromStripeIntent(pi), nil
}

func (s *PaymentService) CancelIntent(ctx context.Context, id string) error {
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonAbandoned)),
	}
	params.Context = ctx

	if _, err := paymentintent.Cancel(id, params); err != nil {
		return fmt.Errorf("%w: failed to cancel payment intent: %v", ErrGateway, err)
	}
	return nil
}

func (s *PaymentService) Refund(ctx context.Context, intentID, reason string) (string, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(intentID),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	params.SetIdempotencyKey("refund-" + intentID)
	params.AddMetadata("reason", reason)

	r, err := refund.New(params)
	if err != nil {
		return "", fmt.Errorf("%w: failed to process refund: %v", ErrGateway, err)
	}
	return r.ID, nil
}

// ParseWebhook verifies a Stripe webhook and returns the payment intent it
// concerns. Events about other objects yield nil.
func (s *PaymentService) ParseWebhook(payload []byte, signature string) (*PaymentIntent, error) {
	event, err := webhook.ConstructEvent(payload, signature, s.config.Payment.StripeWebhookSecret)
	if err != nil {
		return nil, &permit.ArgumentError{Field: "signature", Reason: err.Error()}
	}
	if !strings.HasPrefix(string(event.Type), "payment_intent.") {
		logrus.WithField("type", event.Type).Debug("Ignoring Stripe event")
		return nil, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("failed to decode payment intent: %w", err)
	}
	return fromStripeIntent(&pi), nil
}

func fromStripeIntent(pi *stripe.PaymentIntent) *PaymentIntent {
	out := &PaymentIntent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       gatewayStatus(pi),
		TenantID:     pi.Metadata["tenant_id"],
	}
	if id, err := uuid.Parse(pi.Metadata["application_id"]); err == nil {
		out.ApplicationID = id
	}
	if pi.LatestCharge != nil {
		out.ReceiptNumber = pi.LatestCharge.ReceiptNumber
		out.ReceiptURL = pi.LatestCharge.ReceiptURL
	}
	if pi.LastPaymentError != nil {
		out.FailureReason = pi.LastPaymentError.Msg
	}
	if out.Status == GatewayFailed && out.FailureReason == "" {
		out.FailureReason = "payment declined"
	}
	return out
}

func gatewayStatus(pi *stripe.PaymentIntent) GatewayStatus {
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return GatewaySucceeded
	case stripe.PaymentIntentStatusProcessing, stripe.PaymentIntentStatusRequiresCapture:
		return GatewayProcessing
	case stripe.PaymentIntentStatusCanceled:
		return GatewayCancelled
	case stripe.PaymentIntentStatusRequiresPaymentMethod:
		// A declined attempt returns the intent to requires_payment_method
		// with the error attached; a fresh intent has no error.
		if pi.LastPaymentError != nil {
			return GatewayFailed
		}
		return GatewayPending
	default:
		return GatewayPending
	}
}
