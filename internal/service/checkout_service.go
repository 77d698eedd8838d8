package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"omega-store/internal/domain"
	"omega-store/internal/payment"
	"omega-store/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CheckoutSession is what a client needs to render the processor's payment UI
type CheckoutSession struct {
	PaymentIntentID string        `json:"paymentIntentId"`
	ClientSecret    string        `json:"clientSecret"`
	Amount          int64         `json:"amount"`
	Currency        string        `json:"currency"`
	Totals          domain.Totals `json:"totals"`
	ReturnURL       string        `json:"returnUrl,omitempty"`
}

// ConfirmInput identifies the payment a client returned from
type ConfirmInput struct {
	CartID          string
	PaymentIntentID string
	ClientSecret    string
	UserID          *uuid.UUID
}

// ConfirmStatus is the outcome of a confirmation
type ConfirmStatus string

const (
	ConfirmSucceeded ConfirmStatus = "succeeded"
	ConfirmPending   ConfirmStatus = "processing"
	ConfirmFailed    ConfirmStatus = "failed"
)

// ConfirmResult reports the outcome of a confirmation. Created is false when
// the order already existed for this payment.
type ConfirmResult struct {
	Status       ConfirmStatus  `json:"status"`
	IntentStatus payment.Status `json:"intentStatus"`
	Order        *domain.Order  `json:"order,omitempty"`
	Created      bool           `json:"created"`
}

// CheckoutConfig holds the payment settings of the store
type CheckoutConfig struct {
	Currency  string
	ReturnURL string
}

// cartIDKey is the intent metadata entry naming the cart being paid for
const cartIDKey = "cart_id"

// CheckoutService turns a cart into a paid order
type CheckoutService interface {
	SaveShippingAddress(ctx context.Context, cartID string, address domain.Address) error
	ShippingAddress(ctx context.Context, cartID string) (domain.Address, error)
	Begin(ctx context.Context, cartID string) (*CheckoutSession, error)
	Confirm(ctx context.Context, input ConfirmInput) (*ConfirmResult, error)
}

type checkoutService struct {
	store     repository.CartStore
	carts     CartService
	orders    OrderService
	processor payment.Processor
	config    CheckoutConfig
	logger    *zap.Logger
	now       func() time.Time
}

// NewCheckoutService creates a new instance of CheckoutService
func NewCheckoutService(
	store repository.CartStore,
	carts CartService,
	orders OrderService,
	processor payment.Processor,
	config CheckoutConfig,
	logger *zap.Logger,
) CheckoutService {
	if config.Currency == "" {
		config.Currency = "eur"
	}
	return &checkoutService{
		store:     store,
		carts:     carts,
		orders:    orders,
		processor: processor,
		config:    config,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SaveShippingAddress stores the checkout form snapshot next to the cart
func (s *checkoutService) SaveShippingAddress(ctx context.Context, cartID string, address domain.Address) error {
	if err := address.Validate(); err != nil {
		return err
	}
	if err := s.store.SaveShipping(ctx, cartID, address); err != nil {
		return fmt.Errorf("failed to save shipping address: %w", err)
	}
	return nil
}

// ShippingAddress returns the saved snapshot, or an empty address
func (s *checkoutService) ShippingAddress(ctx context.Context, cartID string) (domain.Address, error) {
	address, err := s.store.LoadShipping(ctx, cartID)
	if err != nil {
		return domain.Address{}, fmt.Errorf("failed to load shipping address: %w", err)
	}
	if address == nil {
		return domain.Address{}, nil
	}
	return *address, nil
}

// Begin prices the cart and opens a payment intent for its total
func (s *checkoutService) Begin(ctx context.Context, cartID string) (*CheckoutSession, error) {
	cart, err := s.store.Load(ctx, cartID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	if cart.IsEmpty() {
		return nil, ErrEmptyCart
	}

	if !s.processor.Configured() {
		return nil, ErrPaymentNotConfigured
	}

	totals := domain.ComputeTotals(cart.TotalPrice())
	amount := domain.MinorUnits(totals.Total)

	intent, err := s.processor.CreateIntent(ctx, amount, s.config.Currency, map[string]string{cartIDKey: cartID})
	if err != nil {
		return nil, paymentError(err)
	}

	s.logger.Info("Checkout started",
		zap.String("cart_id", cartID),
		zap.String("payment_intent_id", intent.ID),
		zap.Int64("amount", amount),
	)

	return &CheckoutSession{
		PaymentIntentID: intent.ID,
		ClientSecret:    intent.ClientSecret,
		Amount:          amount,
		Currency:        s.config.Currency,
		Totals:          totals,
		ReturnURL:       s.config.ReturnURL,
	}, nil
}

// Confirm checks the payment intent the client returned with. A succeeded
// payment produces exactly one order no matter how often it is confirmed.
func (s *checkoutService) Confirm(ctx context.Context, input ConfirmInput) (*ConfirmResult, error) {
	if !s.processor.Configured() {
		return nil, ErrPaymentNotConfigured
	}

	intent, err := s.processor.GetIntent(ctx, input.PaymentIntentID)
	if err != nil {
		return nil, paymentError(err)
	}

	if subtle.ConstantTimeCompare([]byte(intent.ClientSecret), []byte(input.ClientSecret)) != 1 {
		return nil, ErrClientSecretMismatch
	}
	if intent.Metadata[cartIDKey] != input.CartID {
		s.logger.Warn("Payment confirmed against another cart",
			zap.String("payment_intent_id", intent.ID),
			zap.String("cart_id", input.CartID),
		)
		return nil, ErrCartMismatch
	}

	switch intent.Status {
	case payment.StatusSucceeded:
		return s.placeOrder(ctx, input, intent)
	case payment.StatusProcessing:
		return &ConfirmResult{Status: ConfirmPending, IntentStatus: intent.Status}, nil
	default:
		s.logger.Info("Payment not completed",
			zap.String("payment_intent_id", intent.ID),
			zap.String("status", string(intent.Status)),
		)
		return &ConfirmResult{Status: ConfirmFailed, IntentStatus: intent.Status}, nil
	}
}

func (s *checkoutService) placeOrder(ctx context.Context, input ConfirmInput, intent *payment.Intent) (*ConfirmResult, error) {
	existing, err := s.orders.Get(ctx, intent.ID)
	if err == nil {
		return &ConfirmResult{Status: ConfirmSucceeded, IntentStatus: intent.Status, Order: existing}, nil
	}
	if !errors.Is(err, repository.ErrOrderNotFound) {
		return nil, fmt.Errorf("failed to look up order: %w", err)
	}

	cart, err := s.store.Load(ctx, input.CartID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	if cart.IsEmpty() {
		return nil, ErrEmptyCart
	}

	address, err := s.ShippingAddress(ctx, input.CartID)
	if err != nil {
		return nil, err
	}

	order := domain.NewOrder(intent.ID, cart.Items, input.UserID, address, s.now())
	if amount := domain.MinorUnits(order.Total); amount != intent.Amount {
		s.logger.Error("Paid amount differs from cart total",
			zap.String("payment_intent_id", intent.ID),
			zap.Int64("paid", intent.Amount),
			zap.Int64("expected", amount),
		)
		return nil, fmt.Errorf("%w: paid %d, cart %d", ErrAmountMismatch, intent.Amount, amount)
	}

	created, err := s.orders.Create(ctx, order)
	if err != nil {
		if errors.Is(err, repository.ErrOrderAlreadyExists) {
			existing, getErr := s.orders.Get(ctx, intent.ID)
			if getErr != nil {
				return nil, fmt.Errorf("failed to look up order: %w", getErr)
			}
			return &ConfirmResult{Status: ConfirmSucceeded, IntentStatus: intent.Status, Order: existing}, nil
		}
		if unfillable(err) {
			return nil, s.refund(ctx, intent, err)
		}
		return nil, err
	}

	if err := s.carts.Clear(ctx, input.CartID); err != nil {
		s.logger.Warn("Failed to clear cart after order", zap.String("cart_id", input.CartID), zap.Error(err))
	}
	if err := s.store.DeleteShipping(ctx, input.CartID); err != nil {
		s.logger.Warn("Failed to clear shipping address after order", zap.String("cart_id", input.CartID), zap.Error(err))
	}

	return &ConfirmResult{Status: ConfirmSucceeded, IntentStatus: intent.Status, Order: created, Created: true}, nil
}

// unfillable reports whether placing the order failed for good. Storage
// failures are not: confirming again may still place the order.
func unfillable(err error) bool {
	return errors.Is(err, repository.ErrInsufficientStock) ||
		errors.Is(err, repository.ErrProductNotFound) ||
		errors.Is(err, domain.ErrInvalidOrder)
}

// refund gives the money of a paid intent back after placement failed with
// cause. The returned error wraps cause.
func (s *checkoutService) refund(ctx context.Context, intent *payment.Intent, cause error) error {
	refund, err := s.processor.Refund(ctx, intent.ID)
	if err != nil {
		s.logger.Error("Refund after failed order placement failed",
			zap.String("payment_intent_id", intent.ID),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
		return fmt.Errorf("%w (refund failed: %v)", cause, err)
	}

	s.logger.Warn("Order could not be placed, payment refunded",
		zap.String("payment_intent_id", intent.ID),
		zap.String("refund_id", refund.ID),
		zap.Error(cause),
	)
	return fmt.Errorf("%w: %w", ErrPaymentRefunded, cause)
}

func paymentError(err error) error {
	if errors.Is(err, payment.ErrNotConfigured) {
		return ErrPaymentNotConfigured
	}
	return fmt.Errorf("%w: %w", ErrPaymentFailed, err)
}
