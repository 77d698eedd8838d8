// Package payment talks to the external payment processor
package payment

import (
	"context"
	"errors"
	"strings"
)

// Status is the processor-side state of a payment intent
type Status string

const (
	StatusRequiresPaymentMethod Status = "requires_payment_method"
	StatusRequiresConfirmation  Status = "requires_confirmation"
	StatusRequiresAction        Status = "requires_action"
	StatusProcessing            Status = "processing"
	StatusRequiresCapture       Status = "requires_capture"
	StatusCanceled              Status = "canceled"
	StatusSucceeded             Status = "succeeded"
)

var (
	ErrNotConfigured  = errors.New("payment processor is not configured")
	ErrAuthentication = errors.New("payment processor rejected the credentials")
	ErrUnavailable    = errors.New("payment processor is unavailable")
	ErrRejected       = errors.New("payment processor rejected the request")
	ErrIntentNotFound = errors.New("payment intent not found")
)

// Intent is one attempted charge
type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"clientSecret"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Status       Status `json:"status"`
	// Metadata is what the intent was created with (cart_id)
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Refund returns the money of a succeeded intent to the customer
type Refund struct {
	ID       string `json:"id"`
	IntentID string `json:"paymentIntentId"`
	Amount   int64  `json:"amount"`
	Status   string `json:"status"`
}

// Processor creates and inspects payment intents
type Processor interface {
	Configured() bool
	CreateIntent(ctx context.Context, amount int64, currency string, metadata map[string]string) (*Intent, error)
	GetIntent(ctx context.Context, id string) (*Intent, error)
	// Refund refunds the full amount of an intent. Repeated calls for the
	// same intent refund once.
	Refund(ctx context.Context, intentID string) (*Refund, error)
}

// IsUsableSecretKey reports whether key looks like a real secret or
// restricted API key rather than an empty or placeholder value
func IsUsableSecretKey(key string) bool {
	key = strings.TrimSpace(key)
	if strings.Contains(strings.ToUpper(key), "VOTRE_CLE") {
		return false
	}
	return len(key) > 3 && (strings.HasPrefix(key, "sk_") || strings.HasPrefix(key, "rk_"))
}

// Disabled is the processor used when no usable key is configured
type Disabled struct{}

func (Disabled) Configured() bool { return false }

func (Disabled) CreateIntent(context.Context, int64, string, map[string]string) (*Intent, error) {
	return nil, ErrNotConfigured
}

func (Disabled) GetIntent(context.Context, string) (*Intent, error) {
	return nil, ErrNotConfigured
}

func (Disabled) Refund(context.Context, string) (*Refund, error) {
	return nil, ErrNotConfigured
}
