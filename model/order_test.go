package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestOrderStatusCanTransition(t *testing.T) {
	assert.True(t, OrderStatusPending.CanTransition(OrderStatusPaid))
	assert.True(t, OrderStatusPending.CanTransition(OrderStatusCancelled))
	assert.False(t, OrderStatusPending.CanTransition(OrderStatusRefunded))

	assert.True(t, OrderStatusPaid.CanTransition(OrderStatusRefunded))
	assert.False(t, OrderStatusPaid.CanTransition(OrderStatusCancelled))

	assert.False(t, OrderStatusCancelled.CanTransition(OrderStatusPaid))
	assert.False(t, OrderStatusRefunded.CanTransition(OrderStatusPending))
}

func TestOrderItemSubtotal(t *testing.T) {
	item := OrderItem{Quantity: 3, Price: decimal.RequireFromString("9.99")}
	assert.True(t, item.Subtotal().Equal(decimal.RequireFromString("29.97")))
}
