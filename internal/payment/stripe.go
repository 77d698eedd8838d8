package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/zap"
)

// StripeProcessor implements Processor with the Stripe PaymentIntents API
type StripeProcessor struct {
	api     *client.API
	timeout time.Duration
	logger  *zap.Logger
}

// NewProcessor returns a Stripe processor for a usable key and Disabled
// otherwise
func NewProcessor(secretKey string, timeout time.Duration, logger *zap.Logger) Processor {
	if !IsUsableSecretKey(secretKey) {
		logger.Warn("Payment processor disabled: no usable secret key configured")
		return Disabled{}
	}
	return NewStripeProcessor(secretKey, timeout, nil, logger)
}

// NewStripeProcessor creates a processor. backends may be nil to talk to the
// live API.
func NewStripeProcessor(secretKey string, timeout time.Duration, backends *stripe.Backends, logger *zap.Logger) *StripeProcessor {
	if backends == nil {
		backends = stripe.NewBackends(&http.Client{Timeout: timeout})
	}

	api := &client.API{}
	api.Init(secretKey, backends)

	return &StripeProcessor{api: api, timeout: timeout, logger: logger}
}

func (p *StripeProcessor) Configured() bool {
	return true
}

// CreateIntent creates a payment intent with automatic payment methods
func (p *StripeProcessor) CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}

	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return nil, p.translate(ctx, "create payment intent", err)
	}

	p.logger.Info("Payment intent created",
		zap.String("payment_intent_id", pi.ID),
		zap.Int64("amount", pi.Amount),
		zap.String("currency", string(pi.Currency)),
	)

	return toIntent(pi), nil
}

// GetIntent retrieves a payment intent by id
func (p *StripeProcessor) GetIntent(ctx context.Context, id string) (*Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := p.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, p.translate(ctx, "retrieve payment intent", err)
	}

	return toIntent(pi), nil
}

// Refund refunds an intent in full. The idempotency key ties the refund to
// the intent, so Stripe replays the first refund on retries.
func (p *StripeProcessor) Refund(ctx context.Context, intentID string) (*Refund, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	params := &stripe.RefundParams{PaymentIntent: stripe.String(intentID)}
	params.Context = ctx
	params.SetIdempotencyKey("refund-" + intentID)

	re, err := p.api.Refunds.New(params)
	if err != nil {
		return nil, p.translate(ctx, "refund payment intent", err)
	}

	p.logger.Info("Payment refunded",
		zap.String("payment_intent_id", intentID),
		zap.String("refund_id", re.ID),
		zap.Int64("amount", re.Amount),
	)

	return &Refund{ID: re.ID, IntentID: intentID, Amount: re.Amount, Status: string(re.Status)}, nil
}

func toIntent(pi *stripe.PaymentIntent) *Intent {
	return &Intent{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Status:       Status(pi.Status),
		Metadata:     pi.Metadata,
	}
}

// translate maps Stripe and transport failures onto the package sentinels
func (p *StripeProcessor) translate(ctx context.Context, op string, err error) error {
	p.logger.Warn("Payment processor call failed", zap.String("op", op), zap.Error(err))

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s timed out", ErrUnavailable, op)
	}

	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
	}

	switch {
	case stripeErr.HTTPStatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrAuthentication, stripeErr.Msg)
	case stripeErr.HTTPStatusCode == http.StatusNotFound || stripeErr.Code == stripe.ErrorCodeResourceMissing:
		return fmt.Errorf("%w: %s", ErrIntentNotFound, stripeErr.Msg)
	case stripeErr.HTTPStatusCode == http.StatusTooManyRequests || stripeErr.HTTPStatusCode >= 500:
		return fmt.Errorf("%w: %s", ErrUnavailable, stripeErr.Msg)
	default:
		return fmt.Errorf("%w: %s", ErrRejected, stripeErr.Msg)
	}
}
