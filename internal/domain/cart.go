package domain

import "time"

// Cart is the server-side cart of one owner ("customer:<id>" or "guest:<uuid>").
type Cart struct {
	Owner     string     `json:"owner"`
	Items     []CartItem `json:"items"`
	Currency  string     `json:"currency"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// CartItem is one line of the cart, keyed by variant.
// Stock is the stock ceiling captured when the line was last added.
type CartItem struct {
	VariantID string    `json:"variant_id"`
	ProductID string    `json:"product_id"`
	Title     string    `json:"title"`
	Price     int64     `json:"price"`
	Quantity  int       `json:"quantity"`
	Image     string    `json:"image,omitempty"`
	Stock     int       `json:"stock"`
	AddedAt   time.Time `json:"added_at"`
}

// NewCart returns an empty cart for owner.
func NewCart(owner, currency string) *Cart {
	return &Cart{Owner: owner, Items: []CartItem{}, Currency: currency}
}

// TotalAmount calculates the total price of all items in the cart (in paise).
func (c *Cart) TotalAmount() int64 {
	var total int64
	for _, item := range c.Items {
		total += item.Price * int64(item.Quantity)
	}
	return total
}

// ItemCount returns the total number of units in the cart.
func (c *Cart) ItemCount() int {
	var count int
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}

// FindItem returns the index of the line for variantID, or -1.
func (c *Cart) FindItem(variantID string) int {
	for i := range c.Items {
		if c.Items[i].VariantID == variantID {
			return i
		}
	}
	return -1
}

// RemoveAt drops the line at index i, keeping the order of the rest.
func (c *Cart) RemoveAt(i int) {
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
}

// OrderLines converts the cart into checkout lines.
func (c *Cart) OrderLines() []OrderLine {
	lines := make([]OrderLine, 0, len(c.Items))
	for _, item := range c.Items {
		lines = append(lines, OrderLine{
			VariantID: item.VariantID,
			Title:     item.Title,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}
	return lines
}

// ClampQuantity bounds qty to [0, ceiling].
func ClampQuantity(qty, ceiling int) int {
	if ceiling < 0 {
		ceiling = 0
	}
	switch {
	case qty < 0:
		return 0
	case qty > ceiling:
		return ceiling
	default:
		return qty
	}
}

// CartItemStock pairs a cart line with its live availability.
type CartItemStock struct {
	CartItem
	Available    int  `json:"available"`
	InStock      bool `json:"in_stock"`
	ExceedsStock bool `json:"exceeds_stock"`
}

// CartWithStock is a cart annotated with live stock per line.
type CartWithStock struct {
	Owner    string          `json:"owner"`
	Items    []CartItemStock `json:"items"`
	Currency string          `json:"currency"`
	Total    int64           `json:"total"`
}
