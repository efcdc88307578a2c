package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReturnStatus describes the lifecycle of a return. Returns are approved
// on registration; the status exists so a stricter approval flow can be
// layered on without a schema change.
type ReturnStatus string

const (
	ReturnStatusApproved ReturnStatus = "approved"
)

// ReturnItem is one partially returned line of a sale.
type ReturnItem struct {
	ProductID      uuid.UUID
	ProductName    string
	Size           string
	Color          string
	ReturnQuantity int32
	UnitPriceMinor int64
	RefundMinor    int64
}

// Variant returns the stock cell this line would restock, when restock on
// return is enabled.
func (i ReturnItem) Variant() VariantKey {
	return VariantKey{ProductID: i.ProductID, Size: i.Size, Color: i.Color}
}

// Return is a partial reversal of exactly one sale, producing client
// credit. At most one approved return exists per sale.
type Return struct {
	ID          uuid.UUID
	Number      string
	SaleID      uuid.UUID
	ClientID    uuid.UUID
	Status      ReturnStatus
	Items       []ReturnItem
	RefundMinor int64
	CreatedAt   time.Time
}
