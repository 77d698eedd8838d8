package service

import "errors"

var (
	ErrInvalidProduct       = errors.New("invalid product")
	ErrUnknownCategory      = errors.New("category does not exist")
	ErrInvalidCategories    = errors.New("invalid category set")
	ErrCategoryNotFound     = errors.New("category not found")
	ErrCategoryExists       = errors.New("category already exists")
	ErrInvalidQuantity      = errors.New("quantity must be at least 1")
	ErrInvalidTransition    = errors.New("invalid order status transition")
	ErrTrackingLinkRequired = errors.New("tracking link is required to ship an order")
	ErrEmptyCart            = errors.New("cart is empty")
	ErrPaymentNotConfigured = errors.New("payment processor is not configured")
	ErrPaymentFailed        = errors.New("payment failed")
	ErrClientSecretMismatch = errors.New("client secret does not match payment intent")
	ErrAmountMismatch       = errors.New("payment amount does not match cart total")
	ErrCartMismatch         = errors.New("payment intent was opened for another cart")
	ErrPaymentRefunded      = errors.New("order could not be placed, payment refunded")
	ErrInvalidDateRange     = errors.New("start date is after end date")
)
