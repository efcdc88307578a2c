package store

import (
	"context"
	"sync"

	"github.com/abgdnv/storefront/internal/domain"
	storeerrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/google/uuid"
)

// memState is one consistent snapshot of every ledger.
type memState struct {
	orders        map[uuid.UUID]domain.Order
	sales         map[uuid.UUID]domain.Sale
	salesByOrder  map[uuid.UUID]uuid.UUID
	returns       map[uuid.UUID]domain.Return
	returnsBySale map[uuid.UUID]uuid.UUID
	stock         map[domain.VariantKey]int32
	balances      map[uuid.UUID]int64
	seqs          map[Sequence]int64
}

func newMemState() *memState {
	return &memState{
		orders:        make(map[uuid.UUID]domain.Order),
		sales:         make(map[uuid.UUID]domain.Sale),
		salesByOrder:  make(map[uuid.UUID]uuid.UUID),
		returns:       make(map[uuid.UUID]domain.Return),
		returnsBySale: make(map[uuid.UUID]uuid.UUID),
		stock:         make(map[domain.VariantKey]int32),
		balances:      make(map[uuid.UUID]int64),
		seqs:          make(map[Sequence]int64),
	}
}

// clone deep-copies the state, including item slices, so a discarded
// transaction can never alias committed records.
func (st *memState) clone() *memState {
	next := newMemState()
	for id, o := range st.orders {
		o.Items = domain.CloneItems(o.Items)
		next.orders[id] = o
	}
	for id, s := range st.sales {
		s.Items = domain.CloneItems(s.Items)
		next.sales[id] = s
	}
	for k, v := range st.salesByOrder {
		next.salesByOrder[k] = v
	}
	for id, r := range st.returns {
		items := make([]domain.ReturnItem, len(r.Items))
		copy(items, r.Items)
		r.Items = items
		next.returns[id] = r
	}
	for k, v := range st.returnsBySale {
		next.returnsBySale[k] = v
	}
	for k, v := range st.stock {
		next.stock[k] = v
	}
	for k, v := range st.balances {
		next.balances[k] = v
	}
	for k, v := range st.seqs {
		next.seqs[k] = v
	}
	return next
}

// Memory implements Store with mutex-guarded maps. A transaction runs
// against a cloned snapshot which replaces the committed state only when
// the transaction function succeeds; readers see either the pre-state or
// the fully-committed post-state, never anything in between.
type Memory struct {
	mu    sync.RWMutex
	state *memState
}

// NewMemoryStore creates an empty in-memory ledger store.
func NewMemoryStore() *Memory {
	return &Memory{state: newMemState()}
}

func (m *Memory) WithinTx(_ context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(&memTx{state: work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *Memory) FindOrderByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	order, ok := m.state.orders[id]
	if !ok {
		return nil, storeerrors.ErrOrderNotFound
	}
	order.Items = domain.CloneItems(order.Items)
	return &order, nil
}

func (m *Memory) FindOrders(_ context.Context) ([]domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]domain.Order, 0, len(m.state.orders))
	for _, o := range m.state.orders {
		o.Items = domain.CloneItems(o.Items)
		list = append(list, o)
	}
	return list, nil
}

func (m *Memory) FindSaleByID(_ context.Context, id uuid.UUID) (*domain.Sale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sale, ok := m.state.sales[id]
	if !ok {
		return nil, storeerrors.ErrSaleNotFound
	}
	sale.Items = domain.CloneItems(sale.Items)
	return &sale, nil
}

func (m *Memory) FindSales(_ context.Context, filter SaleFilter) ([]domain.Sale, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]domain.Sale, 0, len(m.state.sales))
	for _, s := range m.state.sales {
		if filter.ClientID != nil && s.ClientID != *filter.ClientID {
			continue
		}
		if filter.Status != nil && s.Status != *filter.Status {
			continue
		}
		s.Items = domain.CloneItems(s.Items)
		list = append(list, s)
	}
	return list, nil
}

func (m *Memory) FindReturns(_ context.Context) ([]domain.Return, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]domain.Return, 0, len(m.state.returns))
	for _, r := range m.state.returns {
		items := make([]domain.ReturnItem, len(r.Items))
		copy(items, r.Items)
		r.Items = items
		list = append(list, r)
	}
	return list, nil
}

func (m *Memory) ClientBalance(_ context.Context, clientID uuid.UUID) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.balances[clientID], nil
}

func (m *Memory) StockLevels(_ context.Context, productID uuid.UUID) ([]domain.StockVariant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]domain.StockVariant, 0)
	for key, qty := range m.state.stock {
		if productID != uuid.Nil && key.ProductID != productID {
			continue
		}
		list = append(list, domain.StockVariant{Key: key, Quantity: qty})
	}
	return list, nil
}

// memTx mutates the working snapshot of a transaction in place.
type memTx struct {
	state *memState
}

func (t *memTx) Order(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	order, ok := t.state.orders[id]
	if !ok {
		return nil, storeerrors.ErrOrderNotFound
	}
	order.Items = domain.CloneItems(order.Items)
	return &order, nil
}

func (t *memTx) PutOrder(_ context.Context, order *domain.Order) error {
	stored := *order
	stored.Items = domain.CloneItems(order.Items)
	t.state.orders[order.ID] = stored
	return nil
}

func (t *memTx) Sale(_ context.Context, id uuid.UUID) (*domain.Sale, error) {
	sale, ok := t.state.sales[id]
	if !ok {
		return nil, storeerrors.ErrSaleNotFound
	}
	sale.Items = domain.CloneItems(sale.Items)
	return &sale, nil
}

func (t *memTx) SaleByOrder(ctx context.Context, orderID uuid.UUID) (*domain.Sale, error) {
	saleID, ok := t.state.salesByOrder[orderID]
	if !ok {
		return nil, storeerrors.ErrSaleNotFound
	}
	return t.Sale(ctx, saleID)
}

func (t *memTx) PutSale(_ context.Context, sale *domain.Sale) error {
	stored := *sale
	stored.Items = domain.CloneItems(sale.Items)
	t.state.sales[sale.ID] = stored
	t.state.salesByOrder[sale.OrderID] = sale.ID
	return nil
}

func (t *memTx) HasApprovedReturn(_ context.Context, saleID uuid.UUID) (bool, error) {
	_, ok := t.state.returnsBySale[saleID]
	return ok, nil
}

func (t *memTx) PutReturn(_ context.Context, ret *domain.Return) error {
	stored := *ret
	items := make([]domain.ReturnItem, len(ret.Items))
	copy(items, ret.Items)
	stored.Items = items
	t.state.returns[ret.ID] = stored
	if ret.Status == domain.ReturnStatusApproved {
		t.state.returnsBySale[ret.SaleID] = ret.ID
	}
	return nil
}

func (t *memTx) StockCell(_ context.Context, key domain.VariantKey) (*domain.StockVariant, error) {
	qty, ok := t.state.stock[key]
	if !ok {
		return nil, storeerrors.ErrVariantNotFound
	}
	return &domain.StockVariant{Key: key, Quantity: qty}, nil
}

func (t *memTx) PutStockCell(_ context.Context, cell *domain.StockVariant) error {
	t.state.stock[cell.Key] = cell.Quantity
	return nil
}

func (t *memTx) AddClientCredit(_ context.Context, clientID uuid.UUID, amountMinor int64) (int64, error) {
	t.state.balances[clientID] += amountMinor
	return t.state.balances[clientID], nil
}

func (t *memTx) NextNumber(_ context.Context, seq Sequence) (int64, error) {
	t.state.seqs[seq]++
	return t.state.seqs[seq], nil
}
