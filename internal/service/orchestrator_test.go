package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/abgdnv/storefront/internal/domain"
	fulfillerrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, cfg Config) *Service {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store.NewMemoryStore(), nil, logger, cfg)
}

func seedStock(t *testing.T, svc *Service, productID uuid.UUID, size, color string, qty int32) {
	t.Helper()
	_, err := svc.SetStockLevel(context.Background(), StockSetDto{
		ProductID: productID, Size: size, Color: color, Quantity: qty,
	})
	require.NoError(t, err)
}

func stockQty(t *testing.T, svc *Service, productID uuid.UUID, size, color string) int32 {
	t.Helper()
	cells, err := svc.StockLevels(context.Background(), productID)
	require.NoError(t, err)
	for _, c := range cells {
		if c.Size == size && c.Color == color {
			return c.Quantity
		}
	}
	t.Fatalf("stock cell %s/%s/%s not found", productID, size, color)
	return 0
}

func TestService_CreateOrder(t *testing.T) {
	t.Parallel()

	clientID := uuid.New()
	productID := uuid.New()

	t.Run("computes totals and assigns a sequential number", func(t *testing.T) {
		t.Parallel()
		// given
		svc := newTestService(t, Config{TaxRateBps: 1000})

		// when
		order, err := svc.CreateOrder(context.Background(), OrderCreateDto{
			ClientID: clientID,
			Items: []OrderItemCreateDto{
				{ProductID: productID, ProductName: "Hoodie", Size: "M", Color: "black", Quantity: 2, UnitPrice: 4500},
				{ProductID: productID, ProductName: "Hoodie", Size: "L", Color: "black", Quantity: 1, UnitPrice: 4500},
			},
		})

		// then
		require.NoError(t, err)
		assert.Equal(t, "ORD-000001", order.Number)
		assert.Equal(t, string(domain.OrderStatusPending), order.Status)
		assert.Equal(t, int64(13500), order.Subtotal)
		assert.Equal(t, int64(1350), order.Tax)
		assert.Equal(t, int64(14850), order.Total)
		assert.Nil(t, order.SaleID)
	})

	t.Run("rejects an order without items", func(t *testing.T) {
		t.Parallel()
		// given
		svc := newTestService(t, Config{TaxRateBps: 1000})

		// when
		_, err := svc.CreateOrder(context.Background(), OrderCreateDto{ClientID: clientID})

		// then
		require.ErrorIs(t, err, fulfillerrors.ErrEmptyOrder)
	})
}

func TestService_EditOrderItems(t *testing.T) {
	t.Parallel()

	clientID := uuid.New()
	productID := uuid.New()

	t.Run("replaces items and recomputes totals while pending", func(t *testing.T) {
		t.Parallel()
		// given
		svc := newTestService(t, Config{TaxRateBps: 1000})
		order, err := svc.CreateOrder(context.Background(), OrderCreateDto{
			ClientID: clientID,
			Items: []OrderItemCreateDto{
				{ProductID: productID, ProductName: "Hoodie", Size: "M", Color: "black", Quantity: 1, UnitPrice: 4500},
			},
		})
		require.NoError(t, err)

		// when
		edited, err := svc.EditOrderItems(context.Background(), order.ID, OrderEditDto{
			Items: []OrderItemCreateDto{
				{ProductID: productID, ProductName: "Hoodie", Size: "S", Color: "red", Quantity: 3, UnitPrice: 2000},
			},
		})

		// then
		require.NoError(t, err)
		require.Len(t, edited.Items, 1)
		assert.Equal(t, "S", edited.Items[0].Size)
		assert.Equal(t, int64(6000), edited.Subtotal)
		assert.Equal(t, int64(600), edited.Tax)
		assert.Equal(t, int64(6600), edited.Total)
	})

	t.Run("rejects edits after the order left pending", func(t *testing.T) {
		t.Parallel()
		// given
		svc := newTestService(t, Config{TaxRateBps: 1000})
		seedStock(t, svc, productID, "M", "black", 5)
		order, err := svc.CreateOrder(context.Background(), OrderCreateDto{
			ClientID: clientID,
			Items: []OrderItemCreateDto{
				{ProductID: productID, ProductName: "Hoodie", Size: "M", Color: "black", Quantity: 1, UnitPrice: 4500},
			},
		})
		require.NoError(t, err)
		_, err = svc.RequestTransition(context.Background(), order.ID, domain.OrderStatusCompleted)
		require.NoError(t, err)

		// when
		_, err = svc.EditOrderItems(context.Background(), order.ID, OrderEditDto{
			Items: []OrderItemCreateDto{
				{ProductID: productID, ProductName: "Hoodie", Size: "M", Color: "black", Quantity: 2, UnitPrice: 4500},
			},
		})

		// then
		require.ErrorIs(t, err, fulfillerrors.ErrOrderLocked)
	})

	t.Run("returns not found for an unknown order", func(t *testing.T) {
		t.Parallel()
		// given
		svc := newTestService(t, Config{TaxRateBps: 1000})

		// when
		_, err := svc.EditOrderItems(context.Background(), uuid.New(), OrderEditDto{
			Items: []OrderItemCreateDto{
				{ProductID: productID, ProductName: "Hoodie", Size: "M", Color: "black", Quantity: 1, UnitPrice: 4500},
			},
		})

		// then
		require.ErrorIs(t, err, fulfillerrors.ErrOrderNotFound)
	})
}

func TestService_Finalize(t *testing.T) {
	t.Parallel()

	clientID := uuid.New()
	productID := uuid.New()

	newOrder := func(t *testing.T, svc *Service, items ...OrderItemCreateDto) *OrderDto {
		t.Helper()
		order, err := svc.CreateOrder(context.Background(), OrderCreateDto{ClientID: clientID, Items: items})
		require.NoError(t, err)
		return order
	}

	t.Run("debits stock and creates a completed sale", func(t *testing.T) {
		t.Parallel()
		// given
		svc := newTestService(t, Config{TaxRateBps: 1000})
		seedStock(t, svc, productID, "M", "black", 10)
		order := newOrder(t, svc,
			OrderItemCreateDto{ProductID: productID, ProductName: "Hoodie", Size: "M", Color: "black", Quantity: 3, UnitPrice: 4500})

		// when
		result, err := svc.RequestTransition(context.Background(), order.ID, domain.OrderStatusConvertedToSale)

		// then
		require.NoError(t, err)
		assert.Equal(t, string(domain.OrderStatusConvertedToSale), result.Order.Status)
		require.NotNil(t, result.Sale)
		assert.Equal(t, "SAL-000001", result.Sale.Number)
		assert.Equal(t, order.ID, result.Sale.OrderID)
		assert.True(t, result.Sale.Movements.Debited)
		assert.False(t, result.Sale.Movements.Restored)
		require.NotNil(t, result.Order.SaleID)
		assert.Equal(t, result.Sale.ID, *result.Order.SaleID)
		assert.Equal(t, int32(7), stockQty(t, svc, productID, "M", "black"))
	})

	t.Run("aggregates duplicate cells before the availability check", func(t *testing.T) {
		t.Parallel()
		// given two lines for the same cell, 2+2 against 3 in stock
		svc := newTestService(t, Config{TaxRateBps: 1000})
		seedStock(t, svc, productID, "M", "black", 3)
		order := newOrder(t, svc,
			OrderItemCreateDto{ProductID: productID, ProductName: "Hoodie", Size: "M", Color: "black", Quantity: 2, UnitPrice: 4500},
			OrderItemCreateDto{ProductID: productID, ProductName: "Hoodie", Size: "M", Color: "black", Quantity: 2, UnitPrice: 4500})

		// when
		_, err := svc.RequestTransition(context.Background(), order.ID, domain.OrderStatusCompleted)

		// then
		require.ErrorIs(t, err, fulfillerrors.ErrInsufficientStock)
		assert.Equal(t, int32(3), stockQty(t, svc, productID, "M", "black"))
	})

	t.Run("reports every short cell and debits nothing", func(t *testing.T) {
		t.Parallel()
		// given one sufficient and two short cells
		svc := newTestService(t, Config{TaxRateBps: 1000})
		seedStock(t, svc, productID, "S", "red", 10)
		seedStock(t, svc, productID, "M", "black", 1)
		seedStock(t, svc, productID, "L", "blue", 0)
		order := newOrder(t, svc,
			OrderItemCreateDto{ProductID: productID, ProductName: "Hoodie", Size: "S", Color: "red", Quantity: 2, UnitPrice: 4500},
			OrderItemCreateDto{ProductID: productID, ProductName: "Hoodie", Size: "M", Color: "black", Quantity: 2, UnitPrice: 4500},
			OrderItemCreateDto{ProductID: productID, ProductName: "Hoodie", Size: "L", Color: "blue", Quantity: 1, UnitPrice: 4500})

		// when
		_, err := svc.RequestTransition(context.Background(), order.ID, domain.OrderStatusCompleted)

		// then
		require.ErrorIs(t, err, fulfillerrors.ErrInsufficientStock)
		var shortageErr *fulfillerrors.ShortageError
		require.ErrorAs(t, err, &shortageErr)
		assert.Len(t, shortageErr.Shortages, 2)
		// nothing was debited, including the sufficient cell
		assert.Equal(t, int32(10), stockQty(t, svc, productID, "S", "red"))
		assert.Equal(t, int32(1), stockQty(t, svc, productID, "M", "black"))
		assert.Equal(t, int32(0), stockQty(t, svc, productID, "L", "blue"))
		// the order stays pending and can be retried
		order2, err := svc.FindOrderByID(context.Background(), order.ID)
		require.NoError(t, err)
		assert.Equal(t, string(domain.OrderStatusPending), order2.Status)
	})

	t.Run("fails on an unknown stock cell", func(t *testing.T) {
		t.Parallel()
		// given no stock seeded at all
		svc := newTestService(t, Config{TaxRateBps: 1000})
		order := newOrder(t, svc,
			OrderItemCreateDto{ProductID: productID, ProductName: "Hoodie", Size: "M", Color: "black", Quantity: 1, UnitPrice: 4500})

		// when
		_, err := svc.RequestTransition(context.Background(), order.ID, domain.OrderStatusCompleted)

		// then
		require.ErrorIs(t, err, fulfillerrors.ErrVariantNotFound)
	})

	t.Run("rejects a second finalize of the same order", func(t *testing.T) {
		t.Parallel()
		// given an already finalized order
		svc := newTestService(t, Config{TaxRateBps: 1000})
		seedStock(t, svc, productID, "M", "black", 10)
		order := newOrder(t, svc,
			OrderItemCreateDto{ProductID: productID, ProductName: "Hoodie", Size: "M", Color: "black", Quantity: 3, UnitPrice: 4500})
		_, err := svc.RequestTransition(context.Background(), order.ID, domain.OrderStatusCompleted)
		require.NoError(t, err)

		// when
		_, err = svc.RequestTransition(context.Background(), order.ID, domain.OrderStatusConvertedToSale)

		// then
		require.ErrorIs(t, err, fulfillerrors.ErrInvalidTransition)
		// the debit happened exactly once
		assert.Equal(t, int32(7), stockQty(t, svc, productID, "M", "black"))
	})

	t.Run("rejects an unknown target status", func(t *testing.T) {
		t.Parallel()
		// given
		svc := newTestService(t, Config{TaxRateBps: 1000})
		order := newOrder(t, svc,
			OrderItemCreateDto{ProductID: productID, ProductName: "Hoodie", Size: "M", Color: "black", Quantity: 1, UnitPrice: 4500})

		// when
		_, err := svc.RequestTransition(context.Background(), order.ID, domain.OrderStatus("shipped"))

		// then
		require.ErrorIs(t, err, fulfillerrors.ErrInvalidTransition)
	})
}

func TestService_Cancel(t *testing.T) {
	t.Parallel()

	clientID := uuid.New()
	productID := uuid.New()

	t.Run("cancels a pending order without touching stock", func(t *testing.T) {
		t.Parallel()
		// given
		svc := newTestService(t, Config{TaxRateBps: 1000})
		seedStock(t, svc, productID, "M", "black", 5)
		order, err := svc.CreateOrder(context.Background(), OrderCreateDto{
			ClientID: clientID,
			Items: []OrderItemCreateDto{
				{ProductID: productID, ProductName: "Hoodie", Size: "M", Color: "black", Quantity: 2, UnitPrice: 4500},
			},
		})
		require.NoError(t, err)

		// when
		result, err := svc.RequestTransition(context.Background(), order.ID, domain.OrderStatusCancelled)

		// then
		require.NoError(t, err)
		assert.Equal(t, string(domain.OrderStatusCancelled), result.Order.Status)
		assert.Nil(t, result.Sale)
		assert.Empty(t, result.RestoredCells)
		assert.Equal(t, int32(5), stockQty(t, svc, productID, "M", "black"))
	})

	t.Run("restores the debit when cancelling a fulfilled order", func(t *testing.T) {
		t.Parallel()
		// given a finalized order that debited two cells
		svc := newTestService(t, Config{TaxRateBps: 1000})
		seedStock(t, svc, productID, "M", "black", 5)
		seedStock(t, svc, productID, "L", "blue", 4)
		order, err := svc.CreateOrder(context.Background(), OrderCreateDto{
			ClientID: clientID,
			Items: []OrderItemCreateDto{
				{ProductID: productID, ProductName: "Hoodie", Size: "M", Color: "black", Quantity: 2, UnitPrice: 4500},
				{ProductID: productID, ProductName: "Hoodie", Size: "L", Color: "blue", Quantity: 3, UnitPrice: 4500},
			},
		})
		require.NoError(t, err)
		finalized, err := svc.RequestTransition(context.Background(), order.ID, domain.OrderStatusCompleted)
		require.NoError(t, err)
		require.Equal(t, int32(3), stockQty(t, svc, productID, "M", "black"))
		require.Equal(t, int32(1), stockQty(t, svc, productID, "L", "blue"))

		// when
		result, err := svc.RequestTransition(context.Background(), order.ID, domain.OrderStatusCancelled)

		// then
		require.NoError(t, err)
		assert.Equal(t, string(domain.OrderStatusCancelled), result.Order.Status)
		assert.Len(t, result.RestoredCells, 2)
		assert.Equal(t, int32(5), stockQty(t, svc, productID, "M", "black"))
		assert.Equal(t, int32(4), stockQty(t, svc, productID, "L", "blue"))
		sale, err := svc.FindSaleByID(context.Background(), finalized.Sale.ID)
		require.NoError(t, err)
		assert.Equal(t, string(domain.SaleStatusCancelled), sale.Status)
		assert.True(t, sale.Movements.Debited)
		assert.True(t, sale.Movements.Restored)
	})

	t.Run("rejects cancelling an already cancelled order", func(t *testing.T) {
		t.Parallel()
		// given a finalized and then cancelled order
		svc := newTestService(t, Config{TaxRateBps: 1000})
		seedStock(t, svc, productID, "M", "black", 5)
		order, err := svc.CreateOrder(context.Background(), OrderCreateDto{
			ClientID: clientID,
			Items: []OrderItemCreateDto{
				{ProductID: productID, ProductName: "Hoodie", Size: "M", Color: "black", Quantity: 2, UnitPrice: 4500},
			},
		})
		require.NoError(t, err)
		_, err = svc.RequestTransition(context.Background(), order.ID, domain.OrderStatusCompleted)
		require.NoError(t, err)
		_, err = svc.RequestTransition(context.Background(), order.ID, domain.OrderStatusCancelled)
		require.NoError(t, err)

		// when
		_, err = svc.RequestTransition(context.Background(), order.ID, domain.OrderStatusCancelled)

		// then: the stock was restored exactly once
		require.ErrorIs(t, err, fulfillerrors.ErrInvalidTransition)
		assert.Equal(t, int32(5), stockQty(t, svc, productID, "M", "black"))
	})
}

func TestService_RegisterReturn(t *testing.T) {
	t.Parallel()

	clientID := uuid.New()
	productID := uuid.New()

	// newSale finalizes an order of 3 M/black at 4500 and 2 L/blue at 3000
	// and returns the resulting sale.
	newSale := func(t *testing.T, svc *Service) *SaleDto {
		t.Helper()
		seedStock(t, svc, productID, "M", "black", 10)
		seedStock(t, svc, productID, "L", "blue", 10)
		order, err := svc.CreateOrder(context.Background(), OrderCreateDto{
			ClientID: clientID,
			Items: []OrderItemCreateDto{
				{ProductID: productID, ProductName: "Hoodie", Size: "M", Color: "black", Quantity: 3, UnitPrice: 4500},
				{ProductID: productID, ProductName: "Hoodie", Size: "L", Color: "blue", Quantity: 2, UnitPrice: 3000},
			},
		})
		require.NoError(t, err)
		result, err := svc.RequestTransition(context.Background(), order.ID, domain.OrderStatusConvertedToSale)
		require.NoError(t, err)
		return result.Sale
	}

	t.Run("credits the client with the refund of the returned units", func(t *testing.T) {
		t.Parallel()
		// given
		svc := newTestService(t, Config{TaxRateBps: 1000})
		sale := newSale(t, svc)

		// when: 2 of 3 M/black come back
		ret, err := svc.RegisterReturn(context.Background(), ReturnCreateDto{
			SaleID: sale.ID,
			Items: []ReturnItemCreateDto{
				{ProductID: productID, Size: "M", Color: "black", ReturnQuantity: 2},
			},
		})

		// then
		require.NoError(t, err)
		assert.Equal(t, "RET-000001", ret.Number)
		assert.Equal(t, clientID, ret.ClientID)
		assert.Equal(t, int64(9000), ret.Refund)
		balance, err := svc.ClientBalance(context.Background(), clientID)
		require.NoError(t, err)
		assert.Equal(t, int64(9000), balance.Balance)
		// restock is off by default; the debit stands
		assert.Equal(t, int32(7), stockQty(t, svc, productID, "M", "black"))
	})

	t.Run("skips zero lines and sums mixed ones", func(t *testing.T) {
		t.Parallel()
		// given
		svc := newTestService(t, Config{TaxRateBps: 1000})
		sale := newSale(t, svc)

		// when
		ret, err := svc.RegisterReturn(context.Background(), ReturnCreateDto{
			SaleID: sale.ID,
			Items: []ReturnItemCreateDto{
				{ProductID: productID, Size: "M", Color: "black", ReturnQuantity: 0},
				{ProductID: productID, Size: "L", Color: "blue", ReturnQuantity: 2},
			},
		})

		// then
		require.NoError(t, err)
		require.Len(t, ret.Items, 1)
		assert.Equal(t, "L", ret.Items[0].Size)
		assert.Equal(t, int64(6000), ret.Refund)
	})

	t.Run("restocks returned units when the flag is on", func(t *testing.T) {
		t.Parallel()
		// given
		svc := newTestService(t, Config{TaxRateBps: 1000, RestockOnReturn: true})
		sale := newSale(t, svc)
		require.Equal(t, int32(7), stockQty(t, svc, productID, "M", "black"))

		// when
		_, err := svc.RegisterReturn(context.Background(), ReturnCreateDto{
			SaleID: sale.ID,
			Items: []ReturnItemCreateDto{
				{ProductID: productID, Size: "M", Color: "black", ReturnQuantity: 2},
			},
		})

		// then
		require.NoError(t, err)
		assert.Equal(t, int32(9), stockQty(t, svc, productID, "M", "black"))
	})

	t.Run("rejects a return exceeding the sold quantity", func(t *testing.T) {
		t.Parallel()
		// given
		svc := newTestService(t, Config{TaxRateBps: 1000})
		sale := newSale(t, svc)

		// when
		_, err := svc.RegisterReturn(context.Background(), ReturnCreateDto{
			SaleID: sale.ID,
			Items: []ReturnItemCreateDto{
				{ProductID: productID, Size: "M", Color: "black", ReturnQuantity: 4},
			},
		})

		// then: nothing was credited
		require.ErrorIs(t, err, fulfillerrors.ErrReturnExceedsSale)
		balance, berr := svc.ClientBalance(context.Background(), clientID)
		require.NoError(t, berr)
		assert.Equal(t, int64(0), balance.Balance)
	})

	t.Run("rejects split lines that together exceed the sold quantity", func(t *testing.T) {
		t.Parallel()
		// given
		svc := newTestService(t, Config{TaxRateBps: 1000})
		sale := newSale(t, svc)

		// when: 2+2 against 3 sold
		_, err := svc.RegisterReturn(context.Background(), ReturnCreateDto{
			SaleID: sale.ID,
			Items: []ReturnItemCreateDto{
				{ProductID: productID, Size: "M", Color: "black", ReturnQuantity: 2},
				{ProductID: productID, Size: "M", Color: "black", ReturnQuantity: 2},
			},
		})

		// then
		require.ErrorIs(t, err, fulfillerrors.ErrReturnExceedsSale)
	})

	t.Run("rejects an item that was never sold", func(t *testing.T) {
		t.Parallel()
		// given
		svc := newTestService(t, Config{TaxRateBps: 1000})
		sale := newSale(t, svc)

		// when
		_, err := svc.RegisterReturn(context.Background(), ReturnCreateDto{
			SaleID: sale.ID,
			Items: []ReturnItemCreateDto{
				{ProductID: uuid.New(), Size: "M", Color: "black", ReturnQuantity: 1},
			},
		})

		// then
		require.ErrorIs(t, err, fulfillerrors.ErrItemNotInSale)
	})

	t.Run("rejects a return where every line is zero", func(t *testing.T) {
		t.Parallel()
		// given
		svc := newTestService(t, Config{TaxRateBps: 1000})
		sale := newSale(t, svc)

		// when
		_, err := svc.RegisterReturn(context.Background(), ReturnCreateDto{
			SaleID: sale.ID,
			Items: []ReturnItemCreateDto{
				{ProductID: productID, Size: "M", Color: "black", ReturnQuantity: 0},
			},
		})

		// then
		require.ErrorIs(t, err, fulfillerrors.ErrEmptyReturn)
	})

	t.Run("rejects a second return for the same sale", func(t *testing.T) {
		t.Parallel()
		// given a sale that already has an approved return
		svc := newTestService(t, Config{TaxRateBps: 1000})
		sale := newSale(t, svc)
		_, err := svc.RegisterReturn(context.Background(), ReturnCreateDto{
			SaleID: sale.ID,
			Items: []ReturnItemCreateDto{
				{ProductID: productID, Size: "M", Color: "black", ReturnQuantity: 1},
			},
		})
		require.NoError(t, err)

		// when
		_, err = svc.RegisterReturn(context.Background(), ReturnCreateDto{
			SaleID: sale.ID,
			Items: []ReturnItemCreateDto{
				{ProductID: productID, Size: "L", Color: "blue", ReturnQuantity: 1},
			},
		})

		// then: the balance holds exactly the first refund
		require.ErrorIs(t, err, fulfillerrors.ErrDuplicateReturn)
		balance, berr := svc.ClientBalance(context.Background(), clientID)
		require.NoError(t, berr)
		assert.Equal(t, int64(4500), balance.Balance)
	})

	t.Run("rejects a return against a cancelled sale", func(t *testing.T) {
		t.Parallel()
		// given a finalized then cancelled order
		svc := newTestService(t, Config{TaxRateBps: 1000})
		sale := newSale(t, svc)
		orderID := sale.OrderID
		_, err := svc.RequestTransition(context.Background(), orderID, domain.OrderStatusCancelled)
		require.NoError(t, err)

		// when
		_, err = svc.RegisterReturn(context.Background(), ReturnCreateDto{
			SaleID: sale.ID,
			Items: []ReturnItemCreateDto{
				{ProductID: productID, Size: "M", Color: "black", ReturnQuantity: 1},
			},
		})

		// then
		require.ErrorIs(t, err, fulfillerrors.ErrSaleCancelled)
	})

	t.Run("returns not found for an unknown sale", func(t *testing.T) {
		t.Parallel()
		// given
		svc := newTestService(t, Config{TaxRateBps: 1000})

		// when
		_, err := svc.RegisterReturn(context.Background(), ReturnCreateDto{
			SaleID: uuid.New(),
			Items: []ReturnItemCreateDto{
				{ProductID: productID, Size: "M", Color: "black", ReturnQuantity: 1},
			},
		})

		// then
		require.ErrorIs(t, err, fulfillerrors.ErrSaleNotFound)
	})
}

func TestService_FindSales(t *testing.T) {
	t.Parallel()

	productID := uuid.New()

	// given two clients with one completed sale each, one of them cancelled
	svc := newTestService(t, Config{TaxRateBps: 1000})
	seedStock(t, svc, productID, "M", "black", 10)

	clientA := uuid.New()
	clientB := uuid.New()
	var orderA uuid.UUID
	for _, clientID := range []uuid.UUID{clientA, clientB} {
		order, err := svc.CreateOrder(context.Background(), OrderCreateDto{
			ClientID: clientID,
			Items: []OrderItemCreateDto{
				{ProductID: productID, ProductName: "Hoodie", Size: "M", Color: "black", Quantity: 1, UnitPrice: 4500},
			},
		})
		require.NoError(t, err)
		_, err = svc.RequestTransition(context.Background(), order.ID, domain.OrderStatusCompleted)
		require.NoError(t, err)
		if clientID == clientA {
			orderA = order.ID
		}
	}
	_, err := svc.RequestTransition(context.Background(), orderA, domain.OrderStatusCancelled)
	require.NoError(t, err)

	t.Run("filters by client", func(t *testing.T) {
		t.Parallel()
		sales, err := svc.FindSales(context.Background(), &clientB, nil)
		require.NoError(t, err)
		require.Len(t, sales, 1)
		assert.Equal(t, clientB, sales[0].ClientID)
	})

	t.Run("filters by status", func(t *testing.T) {
		t.Parallel()
		status := string(domain.SaleStatusCancelled)
		sales, err := svc.FindSales(context.Background(), nil, &status)
		require.NoError(t, err)
		require.Len(t, sales, 1)
		assert.Equal(t, clientA, sales[0].ClientID)
	})

	t.Run("no filter returns everything", func(t *testing.T) {
		t.Parallel()
		sales, err := svc.FindSales(context.Background(), nil, nil)
		require.NoError(t, err)
		assert.Len(t, sales, 2)
	})
}
