package domain

import "github.com/shopspring/decimal"

// CartItem is a product snapshot plus the quantity the shopper wants
type CartItem struct {
	ID            string              `json:"id"`
	Name          string              `json:"name"`
	Description   string              `json:"description,omitempty"`
	Price         decimal.Decimal     `json:"price"`
	OriginalPrice decimal.NullDecimal `json:"originalPrice"`
	Image         string              `json:"image"`
	Category      string              `json:"category"`
	Quantity      int                 `json:"quantity"`
}

// NewCartItem snapshots a product into a cart line
func NewCartItem(p *Product, quantity int) CartItem {
	return CartItem{
		ID:            p.ID,
		Name:          p.Name,
		Description:   p.Description,
		Price:         p.Price,
		OriginalPrice: p.OriginalPrice,
		Image:         p.Image,
		Category:      p.Category,
		Quantity:      quantity,
	}
}

// LineTotal is price times quantity
func (i CartItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart is the list of line items owned by one shopper session
type Cart struct {
	ID    string     `json:"id"`
	Items []CartItem `json:"items"`
}

// TotalItems is the sum of all quantities
func (c *Cart) TotalItems() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

// TotalPrice is the sum of price times quantity using the snapshot prices
func (c *Cart) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// IsEmpty reports whether the cart has no items
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Add merges item into the cart: an existing line for the same product has
// its quantity increased, otherwise the snapshot is appended
func (c *Cart) Add(item CartItem) {
	for i := range c.Items {
		if c.Items[i].ID == item.ID {
			c.Items[i].Quantity += item.Quantity
			return
		}
	}
	c.Items = append(c.Items, item)
}

// SetQuantity sets the quantity of a line. A quantity below 1 removes it.
// It reports whether the product was in the cart.
func (c *Cart) SetQuantity(productID string, quantity int) bool {
	for i := range c.Items {
		if c.Items[i].ID != productID {
			continue
		}
		if quantity < 1 {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
		} else {
			c.Items[i].Quantity = quantity
		}
		return true
	}
	return false
}

// Remove drops the line for productID. It reports whether a line was removed.
func (c *Cart) Remove(productID string) bool {
	return c.SetQuantity(productID, 0)
}

// Clear empties the cart
func (c *Cart) Clear() {
	c.Items = []CartItem{}
}
