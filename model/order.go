package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/billable/billable/datastore"
)

// OrderStatus - the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRefunded  OrderStatus = "refunded"
)

// CanTransition reports whether the order state machine permits moving to
// next. PENDING → {PAID, CANCELLED}; PAID → REFUNDED; everything else is
// terminal.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	switch s {
	case OrderStatusPending:
		return next == OrderStatusPaid || next == OrderStatusCancelled
	case OrderStatusPaid:
		return next == OrderStatusRefunded
	default:
		return false
	}
}

// Order records a user's financial intent to purchase offers.
type Order struct {
	ID            uuid.UUID          `json:"id" db:"id"`
	UserID        uuid.UUID          `json:"user_id" db:"user_id"`
	TotalAmount   decimal.Decimal    `json:"total_amount" db:"total_amount"`
	Currency      string             `json:"currency" db:"currency"`
	Status        OrderStatus        `json:"status" db:"status"`
	PaymentMethod string             `json:"payment_method" db:"payment_method"`
	PaymentID     *string            `json:"payment_id" db:"payment_id"`
	Metadata      datastore.Metadata `json:"metadata" db:"metadata"`
	CreatedAt     time.Time          `json:"created_at" db:"created_at"`
	PaidAt        *time.Time         `json:"paid_at" db:"paid_at"`

	Items []OrderItem `json:"items" db:"-"`
}

// IsPaid reports whether the order has been paid.
func (o *Order) IsPaid() bool {
	return o.Status == OrderStatusPaid
}

// OrderItem is a position in an order, price frozen at creation time.
type OrderItem struct {
	ID       uuid.UUID       `json:"id" db:"id"`
	OrderID  uuid.UUID       `json:"order_id" db:"order_id"`
	OfferID  uuid.UUID       `json:"offer_id" db:"offer_id"`
	SKU      string          `json:"sku" db:"sku"`
	Quantity int64           `json:"quantity" db:"quantity"`
	Price    decimal.Decimal `json:"price" db:"price"`
}

// Subtotal is the line total for the item.
func (oi *OrderItem) Subtotal() decimal.Decimal {
	return oi.Price.Mul(decimal.NewFromInt(oi.Quantity))
}
