package domain

import "time"

// PaymentOrder is a pending order created on the payment gateway.
type PaymentOrder struct {
	ID       string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
	KeyID    string `json:"key_id"`
}

// PendingPayment is the cart snapshot a gateway order was created for. It
// binds the later checkout to the amount actually charged.
type PendingPayment struct {
	GatewayOrderID string      `json:"gateway_order_id"`
	Owner          string      `json:"owner"`
	Amount         int64       `json:"amount"`
	Currency       string      `json:"currency"`
	Items          []OrderLine `json:"items"`
	CreatedAt      time.Time   `json:"created_at"`
}

// OrderLine is one line of a checkout request.
type OrderLine struct {
	VariantID string `json:"variant_id" validate:"required"`
	Title     string `json:"title,omitempty"`
	Quantity  int    `json:"quantity" validate:"required,gte=1"`
	Price     int64  `json:"price" validate:"gte=0"`
}

// CheckoutOrder is everything needed to create the platform order once the
// payment has been captured.
type CheckoutOrder struct {
	GatewayOrderID  string      `json:"gateway_order_id" validate:"required"`
	PaymentID       string      `json:"payment_id" validate:"required"`
	Signature       string      `json:"signature" validate:"required"`
	Email           string      `json:"email" validate:"required,email"`
	Phone           string      `json:"phone,omitempty" validate:"omitempty,max=20"`
	Items           []OrderLine `json:"items" validate:"required,min=1,dive"`
	ShippingAddress Address     `json:"shipping_address" validate:"required"`
	Currency        string      `json:"currency,omitempty"`
	Owner           string      `json:"owner,omitempty"`
}

// Total returns the sum of price * quantity over all lines.
func (o *CheckoutOrder) Total() int64 {
	return LinesTotal(o.Items)
}

// LinesTotal returns the sum of price * quantity over lines.
func LinesTotal(lines []OrderLine) int64 {
	var total int64
	for _, l := range lines {
		total += l.Price * int64(l.Quantity)
	}
	return total
}

// PlacedOrder is the platform's identity for a created order, returned to
// the client unchanged. OrderNumber is the display name, e.g. "#1042".
type PlacedOrder struct {
	ID          string `json:"order_id"`
	OrderNumber string `json:"order_number"`
}

// Outbox statuses.
const (
	OutboxPending    = "pending"
	OutboxProcessing = "processing"
	OutboxCompleted  = "completed"
	OutboxFailed     = "failed"
	OutboxAbandoned  = "abandoned"
)

// OutboxRecord tracks a captured payment until its platform order exists.
// PaymentID is the primary key.
type OutboxRecord struct {
	PaymentID       string        `json:"payment_id"`
	GatewayOrderID  string        `json:"gateway_order_id"`
	Status          string        `json:"status"`
	Payload         CheckoutOrder `json:"-"`
	PlatformOrderID string        `json:"order_id,omitempty"`
	OrderNumber     string        `json:"order_number,omitempty"`
	Attempts        int           `json:"attempts"`
	LastError       string        `json:"last_error,omitempty"`
	NextAttemptAt   time.Time     `json:"next_attempt_at"`
	LockedUntil     *time.Time    `json:"-"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// NewOutboxRecord creates a pending record for order, due immediately.
func NewOutboxRecord(order CheckoutOrder) *OutboxRecord {
	now := time.Now().UTC()
	return &OutboxRecord{
		PaymentID:      order.PaymentID,
		GatewayOrderID: order.GatewayOrderID,
		Status:         OutboxPending,
		Payload:        order,
		NextAttemptAt:  now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// IsCompleted reports whether the platform order has been created.
func (r *OutboxRecord) IsCompleted() bool {
	return r.Status == OutboxCompleted
}

// IsTerminal reports whether the record needs no further automatic work.
func (r *OutboxRecord) IsTerminal() bool {
	return r.Status == OutboxCompleted || r.Status == OutboxAbandoned
}

// Placed returns the platform order of a completed record.
func (r *OutboxRecord) Placed() PlacedOrder {
	return PlacedOrder{ID: r.PlatformOrderID, OrderNumber: r.OrderNumber}
}

// Backoff returns min(base * 2^attempts, max).
func Backoff(attempts int, base, max time.Duration) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	d := base
	for i := 0; i < attempts; i++ {
		d *= 2
		if d >= max || d <= 0 {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
