// Package domain holds the entities of the fulfillment engine: orders,
// sales, returns, stock variants and client balances. All mutation goes
// through the orchestrator in internal/service; these types carry no
// behavior beyond totals arithmetic and status checks.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus describes the lifecycle of an order.
type OrderStatus string

const (
	// OrderStatusPending is the initial state; the only state in which an
	// order may be edited or transitioned.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusCompleted means the order was fulfilled and a sale exists.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusConvertedToSale is equivalent to completed in effect; kept
	// as a distinct terminal state because callers distinguish the two.
	OrderStatusConvertedToSale OrderStatus = "converted_to_sale"
	// OrderStatusCancelled is terminal; reached from pending or, after
	// fulfillment, by reversing the sale's stock debit.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// IsTerminal reports whether no further transition is permitted.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusConvertedToSale || s == OrderStatusCancelled
}

// IsFulfilled reports whether the order produced a sale.
func (s OrderStatus) IsFulfilled() bool {
	return s == OrderStatusCompleted || s == OrderStatusConvertedToSale
}

// ParseOrderStatus validates a caller-supplied status string.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	switch OrderStatus(raw) {
	case OrderStatusPending, OrderStatusCompleted, OrderStatusConvertedToSale, OrderStatusCancelled:
		return OrderStatus(raw), true
	}
	return "", false
}

// OrderItem is one requested line of an order. SubtotalMinor is always
// Quantity times UnitPriceMinor; it is computed once at creation or edit
// and never mutated afterwards.
type OrderItem struct {
	ProductID      uuid.UUID
	ProductName    string
	Size           string
	Color          string
	Quantity       int32
	UnitPriceMinor int64
	SubtotalMinor  int64
}

// Variant returns the stock cell this line debits.
func (i OrderItem) Variant() VariantKey {
	return VariantKey{ProductID: i.ProductID, Size: i.Size, Color: i.Color}
}

// Order aggregates the requested purchase of a client prior to fulfillment.
type Order struct {
	ID            uuid.UUID
	Number        string
	ClientID      uuid.UUID
	Status        OrderStatus
	Items         []OrderItem
	SubtotalMinor int64
	TaxMinor      int64
	TotalMinor    int64
	SaleID        *uuid.UUID
	OrderedAt     time.Time
	UpdatedAt     time.Time
}

// Totals computes subtotal, tax and total for a set of items. Tax is
// expressed in basis points (1000 = 10%).
func Totals(items []OrderItem, taxRateBps int64) (subtotal, tax, total int64) {
	for _, item := range items {
		subtotal += item.SubtotalMinor
	}
	tax = subtotal * taxRateBps / 10000
	return subtotal, tax, subtotal + tax
}

// CloneItems returns an independent copy of the item list; sales copy the
// order's lines at conversion time.
func CloneItems(items []OrderItem) []OrderItem {
	cloned := make([]OrderItem, len(items))
	copy(cloned, items)
	return cloned
}
