package domain

import (
	"time"

	"github.com/google/uuid"
)

// SaleStatus describes the lifecycle of a sale.
type SaleStatus string

const (
	SaleStatusCompleted SaleStatus = "completed"
	SaleStatusCancelled SaleStatus = "cancelled"
)

// Movements is the idempotency guard of a sale's stock effects.
// Debited is set exactly once, when the order is finalized. Restored may
// flip to true at most once, and only while Debited is true.
type Movements struct {
	Debited  bool
	Restored bool
}

// Sale is the fulfilled, stock-debited realization of exactly one order.
// Items are copied from the order at conversion time.
type Sale struct {
	ID            uuid.UUID
	Number        string
	OrderID       uuid.UUID
	ClientID      uuid.UUID
	Status        SaleStatus
	Items         []OrderItem
	SubtotalMinor int64
	TaxMinor      int64
	TotalMinor    int64
	Movements     Movements
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
