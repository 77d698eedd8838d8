package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus represents the lifecycle state of an order
type OrderStatus string

const (
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// TaxRate is the flat VAT applied to every order
var TaxRate = decimal.RequireFromString("0.20")

var taxMultiplier = decimal.NewFromInt(1).Add(TaxRate)

// ParseOrderStatus converts a raw string into a known status
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch status := OrderStatus(s); status {
	case OrderStatusConfirmed, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return status, nil
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

// IsTerminal reports whether no further transitions are allowed
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransitionTo reports whether next is a legal successor of s.
// Cancelled to cancelled is handled by callers as a no-op, not a transition.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderStatusConfirmed:
		return next == OrderStatusProcessing || next == OrderStatusCancelled
	case OrderStatusProcessing:
		return next == OrderStatusShipped || next == OrderStatusCancelled
	case OrderStatusShipped:
		return next == OrderStatusDelivered || next == OrderStatusCancelled
	default:
		return false
	}
}

// OrderItem is an immutable copy of a cart line taken at purchase time
type OrderItem = CartItem

// OrderItems is stored as a JSON snapshot
type OrderItems []OrderItem

// Value implements driver.Valuer
func (items OrderItems) Value() (driver.Value, error) {
	if items == nil {
		items = OrderItems{}
	}
	return json.Marshal(items)
}

// Scan implements sql.Scanner
func (items *OrderItems) Scan(src any) error {
	return scanJSON(src, items)
}

// Quantity is the number of units across all items
func (items OrderItems) Quantity() int {
	total := 0
	for _, item := range items {
		total += item.Quantity
	}
	return total
}

// Address is the shipping address snapshot entered at checkout
type Address struct {
	Email      string `json:"email" validate:"omitempty,email"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// Validate checks the optional email format
func (a Address) Validate() error {
	return validate.Struct(a)
}

// FullName joins first and last name
func (a Address) FullName() string {
	switch {
	case a.FirstName == "":
		return a.LastName
	case a.LastName == "":
		return a.FirstName
	}
	return a.FirstName + " " + a.LastName
}

// Value implements driver.Valuer
func (a Address) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan implements sql.Scanner
func (a *Address) Scan(src any) error {
	return scanJSON(src, a)
}

// Totals holds the money amounts of an order
type Totals struct {
	SubTotal decimal.Decimal `json:"subTotal"`
	Tax      decimal.Decimal `json:"tax"`
	Total    decimal.Decimal `json:"total"`
}

// ComputeTotals applies the flat tax rate. Total is subTotal x 1.20 rounded
// to cents and tax is whatever makes subTotal + tax equal total.
func ComputeTotals(subTotal decimal.Decimal) Totals {
	subTotal = subTotal.Round(2)
	total := subTotal.Mul(taxMultiplier).Round(2)
	return Totals{
		SubTotal: subTotal,
		Tax:      total.Sub(subTotal),
		Total:    total,
	}
}

// MinorUnits converts an amount to integer cents
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// Order is a placed order, keyed by the payment intent that paid for it
type Order struct {
	ID              string          `json:"id" db:"id"`
	Items           OrderItems      `json:"items" db:"items"`
	SubTotal        decimal.Decimal `json:"subTotal" db:"sub_total"`
	Tax             decimal.Decimal `json:"tax" db:"tax"`
	Total           decimal.Decimal `json:"total" db:"total"`
	Status          OrderStatus     `json:"status" db:"status"`
	Date            time.Time       `json:"date" db:"placed_at"`
	UserID          *uuid.UUID      `json:"userId" db:"user_id"`
	ShippingAddress Address         `json:"shippingAddress" db:"shipping_address"`
	TrackingLink    string          `json:"trackingLink" db:"tracking_link"`
	UpdatedAt       time.Time       `json:"updatedAt" db:"updated_at"`
}

// NewOrder builds a confirmed order from a cart snapshot. The items are
// copied so later cart or catalog changes cannot alter the order.
func NewOrder(id string, items []CartItem, userID *uuid.UUID, address Address, now time.Time) *Order {
	snapshot := make(OrderItems, len(items))
	copy(snapshot, items)

	cart := Cart{Items: snapshot}
	totals := ComputeTotals(cart.TotalPrice())

	return &Order{
		ID:              id,
		Items:           snapshot,
		SubTotal:        totals.SubTotal,
		Tax:             totals.Tax,
		Total:           totals.Total,
		Status:          OrderStatusConfirmed,
		Date:            now,
		UserID:          userID,
		ShippingAddress: address,
		UpdatedAt:       now,
	}
}

// ErrInvalidOrder is returned for orders that fail structural validation
var ErrInvalidOrder = errors.New("invalid order")

// Validate checks the structural invariants of an order
func (o *Order) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidOrder)
	}
	if len(o.Items) == 0 {
		return fmt.Errorf("%w: no items", ErrInvalidOrder)
	}
	for _, item := range o.Items {
		if item.ID == "" {
			return fmt.Errorf("%w: item without product id", ErrInvalidOrder)
		}
		if item.Quantity < 1 {
			return fmt.Errorf("%w: item %s has quantity %d", ErrInvalidOrder, item.ID, item.Quantity)
		}
	}
	if _, err := ParseOrderStatus(string(o.Status)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}
	return nil
}

func scanJSON(src any, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported JSON source type %T", src)
	}
}
