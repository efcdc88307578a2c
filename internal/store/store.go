// Package store defines the persistence contract of the fulfillment
// engine and its two implementations: a mutex-guarded in-memory store and
// a PostgreSQL store. The orchestrator is the only writer; every mutating
// operation runs inside a single all-or-nothing transaction.
package store

import (
	"context"

	"github.com/abgdnv/storefront/internal/domain"
	"github.com/google/uuid"
)

// Sequence names the per-collection counters backing human-readable
// record numbers.
type Sequence string

const (
	SeqOrders  Sequence = "orders"
	SeqSales   Sequence = "sales"
	SeqReturns Sequence = "returns"
)

// SaleFilter narrows FindSales. Nil fields match everything.
type SaleFilter struct {
	ClientID *uuid.UUID
	Status   *domain.SaleStatus
}

// Tx is the view of the ledgers inside one transaction. Writes staged
// through a Tx become visible to readers only after the transaction
// commits; on error nothing is applied.
type Tx interface {
	// Order retrieves an order by ID. Returns ErrOrderNotFound if absent.
	Order(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	// PutOrder inserts or replaces an order and its items.
	PutOrder(ctx context.Context, order *domain.Order) error

	// Sale retrieves a sale by ID. Returns ErrSaleNotFound if absent.
	Sale(ctx context.Context, id uuid.UUID) (*domain.Sale, error)
	// SaleByOrder retrieves the sale produced from the given order.
	// Returns ErrSaleNotFound if the order was never converted.
	SaleByOrder(ctx context.Context, orderID uuid.UUID) (*domain.Sale, error)
	// PutSale inserts or replaces a sale and its items.
	PutSale(ctx context.Context, sale *domain.Sale) error

	// HasApprovedReturn reports whether the sale already has an approved return.
	HasApprovedReturn(ctx context.Context, saleID uuid.UUID) (bool, error)
	// PutReturn inserts a return record.
	PutReturn(ctx context.Context, ret *domain.Return) error

	// StockCell retrieves one stock cell. Returns ErrVariantNotFound if the
	// (product, size, color) cell does not exist.
	StockCell(ctx context.Context, key domain.VariantKey) (*domain.StockVariant, error)
	// PutStockCell inserts or replaces one stock cell.
	PutStockCell(ctx context.Context, cell *domain.StockVariant) error

	// AddClientCredit appends refund credit to a client balance and returns
	// the new accumulated value. Balances are created on first credit.
	AddClientCredit(ctx context.Context, clientID uuid.UUID, amountMinor int64) (int64, error)

	// NextNumber increments and returns the named sequence.
	NextNumber(ctx context.Context, seq Sequence) (int64, error)
}

// Store is the persistence medium required by the orchestrator: atomic
// transactions over the ledgers plus unsynchronized reads for display.
type Store interface {
	// WithinTx runs fn inside one transaction. If fn returns an error the
	// transaction is rolled back and the error is returned unchanged;
	// readers never observe a partially-applied state.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	FindOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	FindOrders(ctx context.Context) ([]domain.Order, error)
	FindSaleByID(ctx context.Context, id uuid.UUID) (*domain.Sale, error)
	FindSales(ctx context.Context, filter SaleFilter) ([]domain.Sale, error)
	FindReturns(ctx context.Context) ([]domain.Return, error)
	ClientBalance(ctx context.Context, clientID uuid.UUID) (int64, error)
	StockLevels(ctx context.Context, productID uuid.UUID) ([]domain.StockVariant, error)
}
