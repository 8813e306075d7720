package domain

import (
	"strings"
	"time"
)

// Order is a platform order as shown on the account and confirmation pages.
type Order struct {
	ID                string      `json:"id"`
	Name              string      `json:"name"`
	OrderNumber       int64       `json:"order_number"`
	Email             string      `json:"email"`
	CreatedAt         time.Time   `json:"created_at"`
	FinancialStatus   string      `json:"financial_status"`
	FulfillmentStatus string      `json:"fulfillment_status"`
	Total             int64       `json:"total"`
	Currency          string      `json:"currency"`
	Lines             []OrderItem `json:"lines"`
	ShippingAddress   *Address    `json:"shipping_address,omitempty"`
}

// OrderItem is one line of a placed order.
type OrderItem struct {
	Title     string `json:"title"`
	VariantID string `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity"`
	Price     int64  `json:"price"`
	Image     string `json:"image,omitempty"`
}

// BelongsTo reports whether the order was placed with email. The comparison
// ignores case and surrounding space.
func (o *Order) BelongsTo(email string) bool {
	email = strings.TrimSpace(email)
	return email != "" && strings.EqualFold(strings.TrimSpace(o.Email), email)
}
