package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// VariantKey identifies one stock-keeping cell: a product in a concrete
// size and color.
type VariantKey struct {
	ProductID uuid.UUID
	Size      string
	Color     string
}

func (k VariantKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.ProductID, k.Size, k.Color)
}

// StockVariant holds the available quantity of one cell.
// Quantity is never negative.
type StockVariant struct {
	Key      VariantKey
	Quantity int32
}

// Shortage reports one cell whose available quantity could not cover the
// aggregate requested quantity.
type Shortage struct {
	Key       VariantKey
	Available int32
	Requested int32
}

func (s Shortage) String() string {
	return fmt.Sprintf("%s: available %d, requested %d", s.Key, s.Available, s.Requested)
}
