// Package errors provides the error kinds of the fulfillment engine.
// Validation kinds are expected and recoverable; ErrInconsistentState
// signals a broken invariant and is never retried.
package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/abgdnv/storefront/internal/domain"
)

var ErrOrderNotFound = errors.New("order not found")
var ErrSaleNotFound = errors.New("sale not found")
var ErrReturnNotFound = errors.New("return not found")

var ErrInvalidTransition = errors.New("invalid order transition")
var ErrOrderLocked = errors.New("order is locked: only pending orders can be edited")
var ErrEmptyOrder = errors.New("order must contain at least one item")

var ErrVariantNotFound = errors.New("stock variant not found")
var ErrInsufficientStock = errors.New("insufficient stock")

var ErrAlreadyRestored = errors.New("sale stock has already been restored")
var ErrInconsistentState = errors.New("inconsistent ledger state")

var ErrDuplicateReturn = errors.New("sale already has an approved return")
var ErrEmptyReturn = errors.New("return must contain at least one unit")
var ErrReturnExceedsSale = errors.New("return quantity exceeds sold quantity")
var ErrItemNotInSale = errors.New("returned item is not part of the sale")
var ErrSaleCancelled = errors.New("sale is cancelled")

var ErrTransactionBegin = errors.New("failed to begin transaction")
var ErrTransactionCommit = errors.New("failed to commit transaction")
var ErrTransactionRollback = errors.New("failed to rollback transaction")

// ShortageError reports every short stock cell of a failed finalize in one
// pass, so the caller can fix the whole order at once. It unwraps to
// ErrInsufficientStock for errors.Is checks.
type ShortageError struct {
	Shortages []domain.Shortage
}

func (e *ShortageError) Error() string {
	parts := make([]string, len(e.Shortages))
	for i, s := range e.Shortages {
		parts[i] = s.String()
	}
	return fmt.Sprintf("insufficient stock: %s", strings.Join(parts, "; "))
}

func (e *ShortageError) Unwrap() error {
	return ErrInsufficientStock
}
