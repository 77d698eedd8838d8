package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductIDPrefix prefixes every generated product identifier
const ProductIDPrefix = "prod_"

var (
	ErrInvalidPrice         = errors.New("price must be greater than zero")
	ErrInvalidOriginalPrice = errors.New("original price must not be lower than price")
	ErrNegativeStock        = errors.New("stock quantity must not be negative")
	ErrPricePrecision       = errors.New("prices must not have more than two decimals")
)

// PriceScale is the number of decimals a stored price keeps
const PriceScale = 2

// Product represents a product in the catalog
type Product struct {
	ID            string              `json:"id" db:"id"`
	Name          string              `json:"name" db:"name" validate:"required,max=255"`
	Description   string              `json:"description" db:"description" validate:"required"`
	Price         decimal.Decimal     `json:"price" db:"price"`
	OriginalPrice decimal.NullDecimal `json:"originalPrice" db:"original_price"`
	Image         string              `json:"image" db:"image" validate:"required,url"`
	Category      string              `json:"category" db:"category" validate:"required,max=100"`
	InStock       bool                `json:"inStock" db:"-"`
	StockQuantity int                 `json:"stockQuantity" db:"stock_quantity"`
	CreatedAt     time.Time           `json:"createdAt" db:"created_at"`
	UpdatedAt     time.Time           `json:"updatedAt" db:"updated_at"`
}

// NewProductID generates a new unique product identifier
func NewProductID() string {
	return ProductIDPrefix + uuid.NewString()
}

// Validate checks the product invariants that do not depend on other records
func (p *Product) Validate() error {
	if err := validate.Struct(p); err != nil {
		return err
	}
	if !p.Price.IsPositive() {
		return ErrInvalidPrice
	}
	if p.OriginalPrice.Valid && p.OriginalPrice.Decimal.LessThan(p.Price) {
		return ErrInvalidOriginalPrice
	}
	if !isCents(p.Price) || (p.OriginalPrice.Valid && !isCents(p.OriginalPrice.Decimal)) {
		return ErrPricePrecision
	}
	if p.StockQuantity < 0 {
		return ErrNegativeStock
	}
	return nil
}

// isCents reports whether d survives storage with PriceScale decimals unchanged.
// Trailing zeros are fine: 10.500 is 10.50.
func isCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(PriceScale))
}

// Normalize trims text fields and refreshes the derived stock flag
func (p *Product) Normalize() {
	p.Name = strings.TrimSpace(p.Name)
	p.Description = strings.TrimSpace(p.Description)
	p.Category = strings.TrimSpace(p.Category)
	p.Image = strings.TrimSpace(p.Image)
	p.RefreshStockFlag()
}

// RefreshStockFlag recomputes InStock from the stock quantity
func (p *Product) RefreshStockFlag() {
	p.InStock = p.StockQuantity > 0
}

// ValidateCategories checks that a category set has no empty or duplicate names
func ValidateCategories(categories []string) error {
	seen := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		name := strings.TrimSpace(c)
		if name == "" {
			return fmt.Errorf("category name must not be empty")
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("duplicate category %q", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}
