// Package service implements the order fulfillment orchestrator: the only
// component permitted to transition an order, create a sale, debit or
// restore stock, or register a return. Every mutating operation executes
// as one serializable unit; callers observe either the pre-state or the
// fully-committed post-state.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/abgdnv/storefront/internal/domain"
	fulfillerrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/internal/store"
	"github.com/abgdnv/storefront/pkg/messaging"
	"github.com/abgdnv/storefront/pkg/messaging/events"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Orchestrator defines the fulfillment engine's operations. UI-level
// callers never mutate stock or sale/return records directly; they go
// through these methods.
type Orchestrator interface {
	// CreateOrder places a new order in pending state with computed totals.
	CreateOrder(ctx context.Context, order OrderCreateDto) (*OrderDto, error)

	// EditOrderItems replaces the item list of a pending order.
	// Returns ErrOrderLocked if the order has left pending.
	EditOrderItems(ctx context.Context, orderID uuid.UUID, edit OrderEditDto) (*OrderDto, error)

	// RequestTransition moves an order to a terminal state. Completed and
	// converted_to_sale finalize the order (stock debit, sale creation);
	// cancelled reverses the debit when one was made. Any other target
	// fails with ErrInvalidTransition.
	RequestTransition(ctx context.Context, orderID uuid.UUID, target domain.OrderStatus) (*TransitionResultDto, error)

	// RegisterReturn records a partial return of a sale and credits the
	// client balance with the refund.
	RegisterReturn(ctx context.Context, ret ReturnCreateDto) (*ReturnDto, error)

	// SetStockLevel seeds or corrects one stock cell.
	SetStockLevel(ctx context.Context, set StockSetDto) (*StockLevelDto, error)

	FindOrderByID(ctx context.Context, id uuid.UUID) (*OrderDto, error)
	FindOrders(ctx context.Context) ([]OrderDto, error)
	FindSaleByID(ctx context.Context, id uuid.UUID) (*SaleDto, error)
	FindSales(ctx context.Context, clientID *uuid.UUID, status *string) ([]SaleDto, error)
	FindReturns(ctx context.Context) ([]ReturnDto, error)
	ClientBalance(ctx context.Context, clientID uuid.UUID) (*BalanceDto, error)
	StockLevels(ctx context.Context, productID uuid.UUID) ([]StockLevelDto, error)
}

// Config carries the business policy knobs of the engine.
type Config struct {
	// TaxRateBps is the tax rate in basis points (1000 = 10%).
	TaxRateBps int64
	// RestockOnReturn credits returned quantities back to stock inside the
	// same transaction as the refund. Off by default.
	RestockOnReturn bool
}

// Service implements Orchestrator. A service-wide mutex makes every
// mutating operation a serializable unit on top of the store's own
// transaction; reads go to the store unsynchronized.
type Service struct {
	ledger    store.Store
	publisher messaging.Publisher
	logger    *slog.Logger
	cfg       Config

	mu sync.Mutex

	ordersFinalized   metric.Int64Counter
	ordersCancelled   metric.Int64Counter
	returnsRegistered metric.Int64Counter
}

// NewService creates the orchestrator. publisher may be nil; change
// notifications are then skipped.
func NewService(ledger store.Store, publisher messaging.Publisher, logger *slog.Logger, cfg Config) *Service {
	meter := otel.Meter("fulfillment")
	ordersFinalized, err := meter.Int64Counter("orders_finalized",
		metric.WithDescription("Total number of orders converted to sales"))
	if err != nil {
		panic(fmt.Sprintf("failed to create orders_finalized counter: %v", err))
	}
	ordersCancelled, err := meter.Int64Counter("orders_cancelled",
		metric.WithDescription("Total number of cancelled orders"))
	if err != nil {
		panic(fmt.Sprintf("failed to create orders_cancelled counter: %v", err))
	}
	returnsRegistered, err := meter.Int64Counter("returns_registered",
		metric.WithDescription("Total number of registered returns"))
	if err != nil {
		panic(fmt.Sprintf("failed to create returns_registered counter: %v", err))
	}
	return &Service{
		ledger:            ledger,
		publisher:         publisher,
		logger:            logger.With("component", "orchestrator"),
		cfg:               cfg,
		ordersFinalized:   ordersFinalized,
		ordersCancelled:   ordersCancelled,
		returnsRegistered: returnsRegistered,
	}
}

// changeSet accumulates the record ids touched by one committed operation,
// per collection. Published only after commit.
type changeSet map[events.Collection][]string

func (c changeSet) add(col events.Collection, id string) {
	c[col] = append(c[col], id)
}

// publish emits one change notification per affected collection. Publish
// failures are logged and never undo the committed mutation.
func (s *Service) publish(ctx context.Context, changes changeSet) {
	if s.publisher == nil {
		return
	}
	now := time.Now().UTC()
	for col, ids := range changes {
		event := events.CollectionChangedEvent{Collection: col, IDs: ids, OccurredAt: now}
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.ErrorContext(ctx, "Failed to publish change notification",
				"collection", col, "error", err)
		}
	}
}

func (s *Service) CreateOrder(ctx context.Context, dto OrderCreateDto) (*OrderDto, error) {
	if len(dto.Items) == 0 {
		return nil, fulfillerrors.ErrEmptyOrder
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var created *domain.Order
	err := s.ledger.WithinTx(ctx, func(tx store.Tx) error {
		seq, err := tx.NextNumber(ctx, store.SeqOrders)
		if err != nil {
			return err
		}
		items := toDomainItems(dto.Items)
		subtotal, tax, total := domain.Totals(items, s.cfg.TaxRateBps)
		now := time.Now().UTC()
		order := &domain.Order{
			ID:            uuid.New(),
			Number:        fmt.Sprintf("ORD-%06d", seq),
			ClientID:      dto.ClientID,
			Status:        domain.OrderStatusPending,
			Items:         items,
			SubtotalMinor: subtotal,
			TaxMinor:      tax,
			TotalMinor:    total,
			OrderedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.PutOrder(ctx, order); err != nil {
			return err
		}
		created = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	changes := changeSet{}
	changes.add(events.CollectionOrders, created.ID.String())
	s.publish(ctx, changes)

	s.logger.InfoContext(ctx, "Order created", "order_id", created.ID, "number", created.Number)
	return toOrderDto(created), nil
}

func (s *Service) EditOrderItems(ctx context.Context, orderID uuid.UUID, edit OrderEditDto) (*OrderDto, error) {
	if len(edit.Items) == 0 {
		return nil, fulfillerrors.ErrEmptyOrder
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var edited *domain.Order
	err := s.ledger.WithinTx(ctx, func(tx store.Tx) error {
		order, err := tx.Order(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != domain.OrderStatusPending {
			return fulfillerrors.ErrOrderLocked
		}
		order.Items = toDomainItems(edit.Items)
		order.SubtotalMinor, order.TaxMinor, order.TotalMinor = domain.Totals(order.Items, s.cfg.TaxRateBps)
		order.UpdatedAt = time.Now().UTC()
		if err := tx.PutOrder(ctx, order); err != nil {
			return err
		}
		edited = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	changes := changeSet{}
	changes.add(events.CollectionOrders, edited.ID.String())
	s.publish(ctx, changes)

	return toOrderDto(edited), nil
}

func (s *Service) RequestTransition(ctx context.Context, orderID uuid.UUID, target domain.OrderStatus) (*TransitionResultDto, error) {
	switch {
	case target.IsFulfilled():
		return s.finalize(ctx, orderID, target)
	case target == domain.OrderStatusCancelled:
		return s.cancel(ctx, orderID)
	default:
		return nil, fmt.Errorf("target %q: %w", target, fulfillerrors.ErrInvalidTransition)
	}
}

// finalize converts a pending order into a sale: one availability check
// per affected cell over the aggregated requested quantities, then an
// all-or-nothing batch debit, then sale creation and the status flip.
// The order leaves pending only here, which makes re-running finalize for
// the same order impossible.
func (s *Service) finalize(ctx context.Context, orderID uuid.UUID, target domain.OrderStatus) (*TransitionResultDto, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var order *domain.Order
	var sale *domain.Sale
	changes := changeSet{}

	err := s.ledger.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		order, err = tx.Order(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != domain.OrderStatusPending {
			return fmt.Errorf("order %s is %s: %w", order.ID, order.Status, fulfillerrors.ErrInvalidTransition)
		}
		if len(order.Items) == 0 {
			return fulfillerrors.ErrEmptyOrder
		}

		requested := aggregateByCell(order.Items)

		// Check every cell before touching any of them, and report every
		// short cell, not just the first.
		cells := make([]*domain.StockVariant, len(requested))
		var shortages []domain.Shortage
		for i, req := range requested {
			cell, err := tx.StockCell(ctx, req.key)
			if err != nil {
				return fmt.Errorf("cell %s: %w", req.key, err)
			}
			if cell.Quantity < req.qty {
				shortages = append(shortages, domain.Shortage{
					Key:       req.key,
					Available: cell.Quantity,
					Requested: req.qty,
				})
			}
			cells[i] = cell
		}
		if len(shortages) > 0 {
			return &fulfillerrors.ShortageError{Shortages: shortages}
		}

		for i, req := range requested {
			cells[i].Quantity -= req.qty
			if err := tx.PutStockCell(ctx, cells[i]); err != nil {
				return err
			}
			changes.add(events.CollectionStock, req.key.String())
		}

		seq, err := tx.NextNumber(ctx, store.SeqSales)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		sale = &domain.Sale{
			ID:            uuid.New(),
			Number:        fmt.Sprintf("SAL-%06d", seq),
			OrderID:       order.ID,
			ClientID:      order.ClientID,
			Status:        domain.SaleStatusCompleted,
			Items:         domain.CloneItems(order.Items),
			SubtotalMinor: order.SubtotalMinor,
			TaxMinor:      order.TaxMinor,
			TotalMinor:    order.TotalMinor,
			Movements:     domain.Movements{Debited: true, Restored: false},
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.PutSale(ctx, sale); err != nil {
			return err
		}

		order.Status = target
		order.SaleID = &sale.ID
		order.UpdatedAt = now
		return tx.PutOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	changes.add(events.CollectionOrders, order.ID.String())
	changes.add(events.CollectionSales, sale.ID.String())
	s.publish(ctx, changes)

	s.ordersFinalized.Add(ctx, 1)
	s.logger.InfoContext(ctx, "Order finalized",
		"order_id", order.ID, "sale_id", sale.ID, "target", target)
	return &TransitionResultDto{Order: *toOrderDto(order), Sale: toSaleDto(sale)}, nil
}

// cancel moves an order to cancelled. A pending order just flips status;
// a fulfilled one additionally restores the sale's stock debit, guarded
// by the movements flags so a double cancel is rejected.
func (s *Service) cancel(ctx context.Context, orderID uuid.UUID) (*TransitionResultDto, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var order *domain.Order
	var restored []string
	changes := changeSet{}

	err := s.ledger.WithinTx(ctx, func(tx store.Tx) error {
		var err error
		order, err = tx.Order(ctx, orderID)
		if err != nil {
			return err
		}

		switch {
		case order.Status == domain.OrderStatusPending:
			// Nothing was debited; nothing to restore.
			order.Status = domain.OrderStatusCancelled
			order.UpdatedAt = time.Now().UTC()
			return tx.PutOrder(ctx, order)

		case order.Status.IsFulfilled():
			sale, err := tx.SaleByOrder(ctx, order.ID)
			if err != nil {
				s.logger.ErrorContext(ctx, "Fulfilled order has no sale",
					"order_id", order.ID, "error", err)
				return fulfillerrors.ErrInconsistentState
			}
			if sale.Movements.Restored {
				return fulfillerrors.ErrAlreadyRestored
			}
			if !sale.Movements.Debited {
				s.logger.ErrorContext(ctx, "Sale was never debited but restore was requested",
					"sale_id", sale.ID, "order_id", order.ID)
				return fulfillerrors.ErrInconsistentState
			}

			for _, req := range aggregateByCell(sale.Items) {
				cell, err := tx.StockCell(ctx, req.key)
				if err != nil {
					s.logger.ErrorContext(ctx, "Debited stock cell disappeared",
						"cell", req.key.String(), "sale_id", sale.ID)
					return fulfillerrors.ErrInconsistentState
				}
				cell.Quantity += req.qty
				if err := tx.PutStockCell(ctx, cell); err != nil {
					return err
				}
				restored = append(restored, req.key.String())
				changes.add(events.CollectionStock, req.key.String())
			}

			now := time.Now().UTC()
			sale.Movements.Restored = true
			sale.Status = domain.SaleStatusCancelled
			sale.UpdatedAt = now
			if err := tx.PutSale(ctx, sale); err != nil {
				return err
			}
			changes.add(events.CollectionSales, sale.ID.String())

			order.Status = domain.OrderStatusCancelled
			order.UpdatedAt = now
			return tx.PutOrder(ctx, order)

		default:
			// Already cancelled.
			return fmt.Errorf("order %s is %s: %w", order.ID, order.Status, fulfillerrors.ErrInvalidTransition)
		}
	})
	if err != nil {
		return nil, err
	}

	changes.add(events.CollectionOrders, order.ID.String())
	s.publish(ctx, changes)

	s.ordersCancelled.Add(ctx, 1)
	s.logger.InfoContext(ctx, "Order cancelled", "order_id", order.ID, "restored_cells", len(restored))
	return &TransitionResultDto{Order: *toOrderDto(order), RestoredCells: restored}, nil
}

func (s *Service) RegisterReturn(ctx context.Context, dto ReturnCreateDto) (*ReturnDto, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var created *domain.Return
	changes := changeSet{}

	err := s.ledger.WithinTx(ctx, func(tx store.Tx) error {
		sale, err := tx.Sale(ctx, dto.SaleID)
		if err != nil {
			return err
		}
		if sale.Status == domain.SaleStatusCancelled {
			return fulfillerrors.ErrSaleCancelled
		}

		exists, err := tx.HasApprovedReturn(ctx, sale.ID)
		if err != nil {
			return err
		}
		if exists {
			return fulfillerrors.ErrDuplicateReturn
		}

		// Sold quantity per cell; duplicate cells in the sale are summed.
		sold := make(map[domain.VariantKey]*domain.OrderItem)
		for i := range sale.Items {
			key := sale.Items[i].Variant()
			if line, ok := sold[key]; ok {
				line.Quantity += sale.Items[i].Quantity
			} else {
				line := sale.Items[i]
				sold[key] = &line
			}
		}

		var items []domain.ReturnItem
		var refund int64
		requested := make(map[domain.VariantKey]int32)
		for _, item := range dto.Items {
			key := domain.VariantKey{ProductID: item.ProductID, Size: item.Size, Color: item.Color}
			line, ok := sold[key]
			if !ok {
				return fmt.Errorf("cell %s: %w", key, fulfillerrors.ErrItemNotInSale)
			}
			if item.ReturnQuantity < 0 {
				return fmt.Errorf("cell %s: %w", key, fulfillerrors.ErrReturnExceedsSale)
			}
			requested[key] += item.ReturnQuantity
			if requested[key] > line.Quantity {
				return fmt.Errorf("cell %s: sold %d, requested %d: %w",
					key, line.Quantity, requested[key], fulfillerrors.ErrReturnExceedsSale)
			}
			if item.ReturnQuantity == 0 {
				continue
			}
			items = append(items, domain.ReturnItem{
				ProductID:      line.ProductID,
				ProductName:    line.ProductName,
				Size:           line.Size,
				Color:          line.Color,
				ReturnQuantity: item.ReturnQuantity,
				UnitPriceMinor: line.UnitPriceMinor,
				RefundMinor:    int64(item.ReturnQuantity) * line.UnitPriceMinor,
			})
			refund += int64(item.ReturnQuantity) * line.UnitPriceMinor
		}
		if len(items) == 0 {
			return fulfillerrors.ErrEmptyReturn
		}

		seq, err := tx.NextNumber(ctx, store.SeqReturns)
		if err != nil {
			return err
		}
		created = &domain.Return{
			ID:          uuid.New(),
			Number:      fmt.Sprintf("RET-%06d", seq),
			SaleID:      sale.ID,
			ClientID:    sale.ClientID,
			Status:      domain.ReturnStatusApproved,
			Items:       items,
			RefundMinor: refund,
			CreatedAt:   time.Now().UTC(),
		}
		if err := tx.PutReturn(ctx, created); err != nil {
			return err
		}

		if _, err := tx.AddClientCredit(ctx, sale.ClientID, refund); err != nil {
			return err
		}

		if s.cfg.RestockOnReturn {
			for _, item := range items {
				cell, err := tx.StockCell(ctx, item.Variant())
				if err != nil {
					s.logger.ErrorContext(ctx, "Sold stock cell disappeared",
						"cell", item.Variant().String(), "sale_id", sale.ID)
					return fulfillerrors.ErrInconsistentState
				}
				cell.Quantity += item.ReturnQuantity
				if err := tx.PutStockCell(ctx, cell); err != nil {
					return err
				}
				changes.add(events.CollectionStock, item.Variant().String())
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	changes.add(events.CollectionReturns, created.ID.String())
	changes.add(events.CollectionBalances, created.ClientID.String())
	s.publish(ctx, changes)

	s.returnsRegistered.Add(ctx, 1)
	s.logger.InfoContext(ctx, "Return registered",
		"return_id", created.ID, "sale_id", created.SaleID, "refund", created.RefundMinor)
	return toReturnDto(created), nil
}

func (s *Service) SetStockLevel(ctx context.Context, set StockSetDto) (*StockLevelDto, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cell := &domain.StockVariant{
		Key:      domain.VariantKey{ProductID: set.ProductID, Size: set.Size, Color: set.Color},
		Quantity: set.Quantity,
	}
	err := s.ledger.WithinTx(ctx, func(tx store.Tx) error {
		return tx.PutStockCell(ctx, cell)
	})
	if err != nil {
		return nil, err
	}

	changes := changeSet{}
	changes.add(events.CollectionStock, cell.Key.String())
	s.publish(ctx, changes)

	return &StockLevelDto{
		ProductID: cell.Key.ProductID,
		Size:      cell.Key.Size,
		Color:     cell.Key.Color,
		Quantity:  cell.Quantity,
	}, nil
}

func (s *Service) FindOrderByID(ctx context.Context, id uuid.UUID) (*OrderDto, error) {
	order, err := s.ledger.FindOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return toOrderDto(order), nil
}

func (s *Service) FindOrders(ctx context.Context) ([]OrderDto, error) {
	orders, err := s.ledger.FindOrders(ctx)
	if err != nil {
		return nil, err
	}
	list := make([]OrderDto, 0, len(orders))
	for i := range orders {
		list = append(list, *toOrderDto(&orders[i]))
	}
	return list, nil
}

func (s *Service) FindSaleByID(ctx context.Context, id uuid.UUID) (*SaleDto, error) {
	sale, err := s.ledger.FindSaleByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return toSaleDto(sale), nil
}

func (s *Service) FindSales(ctx context.Context, clientID *uuid.UUID, status *string) ([]SaleDto, error) {
	filter := store.SaleFilter{ClientID: clientID}
	if status != nil {
		saleStatus := domain.SaleStatus(*status)
		filter.Status = &saleStatus
	}
	sales, err := s.ledger.FindSales(ctx, filter)
	if err != nil {
		return nil, err
	}
	list := make([]SaleDto, 0, len(sales))
	for i := range sales {
		list = append(list, *toSaleDto(&sales[i]))
	}
	return list, nil
}

func (s *Service) FindReturns(ctx context.Context) ([]ReturnDto, error) {
	returns, err := s.ledger.FindReturns(ctx)
	if err != nil {
		return nil, err
	}
	list := make([]ReturnDto, 0, len(returns))
	for i := range returns {
		list = append(list, *toReturnDto(&returns[i]))
	}
	return list, nil
}

func (s *Service) ClientBalance(ctx context.Context, clientID uuid.UUID) (*BalanceDto, error) {
	balance, err := s.ledger.ClientBalance(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return &BalanceDto{ClientID: clientID, Balance: balance}, nil
}

func (s *Service) StockLevels(ctx context.Context, productID uuid.UUID) ([]StockLevelDto, error) {
	cells, err := s.ledger.StockLevels(ctx, productID)
	if err != nil {
		return nil, err
	}
	list := make([]StockLevelDto, 0, len(cells))
	for _, cell := range cells {
		list = append(list, StockLevelDto{
			ProductID: cell.Key.ProductID,
			Size:      cell.Key.Size,
			Color:     cell.Key.Color,
			Quantity:  cell.Quantity,
		})
	}
	return list, nil
}

// cellRequest is the aggregated requested quantity for one stock cell.
type cellRequest struct {
	key domain.VariantKey
	qty int32
}

// aggregateByCell sums quantities per (product, size, color) cell in
// first-seen order. Duplicate cells within one order should not happen by
// construction but are tolerated: the availability check always runs
// against the aggregate, never per line.
func aggregateByCell(items []domain.OrderItem) []cellRequest {
	var requests []cellRequest
	index := make(map[domain.VariantKey]int)
	for _, item := range items {
		key := item.Variant()
		if i, ok := index[key]; ok {
			requests[i].qty += item.Quantity
		} else {
			index[key] = len(requests)
			requests = append(requests, cellRequest{key: key, qty: item.Quantity})
		}
	}
	return requests
}
