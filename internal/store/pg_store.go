package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/abgdnv/storefront/internal/domain"
	storeerrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// serialization_failure; the transaction is safe to retry.
const pgSerializationFailure = "40001"

// txRetries bounds retry-on-conflict for serializable transactions.
const txRetries = 3

// PgStore implements Store on PostgreSQL. Transactions run at the
// serializable isolation level so concurrent finalize/cancel/return
// operations behave as if executed one at a time.
type PgStore struct {
	db *pgxpool.Pool
}

// NewPgStore creates a ledger store backed by a PostgreSQL connection pool.
func NewPgStore(dbp *pgxpool.Pool) *PgStore {
	return &PgStore{db: dbp}
}

func (p *PgStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	var err error
	for attempt := 0; attempt < txRetries; attempt++ {
		err = p.runTx(ctx, fn)
		if !isSerializationFailure(err) {
			return err
		}
	}
	return err
}

func (p *PgStore) runTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return storeerrors.ErrTransactionBegin
	}

	if err := fn(&pgTx{q: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return storeerrors.ErrTransactionRollback
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if isSerializationFailure(err) {
			return err
		}
		return storeerrors.ErrTransactionCommit
	}
	return nil
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgSerializationFailure
}

// queryer is satisfied by both the pool and a pgx transaction, so read
// helpers serve Store reads and Tx reads alike.
type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (p *PgStore) FindOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return fetchOrder(ctx, p.db, id)
}

func (p *PgStore) FindOrders(ctx context.Context) ([]domain.Order, error) {
	rows, err := p.db.Query(ctx, `
		SELECT id, number, client_id, status, subtotal_minor, tax_minor, total_minor, sale_id, ordered_at, updated_at
		FROM orders ORDER BY ordered_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var list []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range list {
		items, err := fetchOrderItems(ctx, p.db, "order_items", "order_id", list[i].ID)
		if err != nil {
			return nil, err
		}
		list[i].Items = items
	}
	return list, nil
}

func (p *PgStore) FindSaleByID(ctx context.Context, id uuid.UUID) (*domain.Sale, error) {
	return fetchSale(ctx, p.db, "id", id)
}

func (p *PgStore) FindSales(ctx context.Context, filter SaleFilter) ([]domain.Sale, error) {
	query := `
		SELECT id, number, order_id, client_id, status, subtotal_minor, tax_minor, total_minor, debited, restored, created_at, updated_at
		FROM sales WHERE ($1::uuid IS NULL OR client_id = $1) AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at`
	rows, err := p.db.Query(ctx, query, filter.ClientID, (*string)(filter.Status))
	if err != nil {
		return nil, fmt.Errorf("failed to query sales: %w", err)
	}
	defer rows.Close()

	var list []domain.Sale
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range list {
		items, err := fetchOrderItems(ctx, p.db, "sale_items", "sale_id", list[i].ID)
		if err != nil {
			return nil, err
		}
		list[i].Items = items
	}
	return list, nil
}

func (p *PgStore) FindReturns(ctx context.Context) ([]domain.Return, error) {
	rows, err := p.db.Query(ctx, `
		SELECT id, number, sale_id, client_id, status, refund_minor, created_at
		FROM returns ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query returns: %w", err)
	}
	defer rows.Close()

	var list []domain.Return
	for rows.Next() {
		var r domain.Return
		if err := rows.Scan(&r.ID, &r.Number, &r.SaleID, &r.ClientID, &r.Status, &r.RefundMinor, &r.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range list {
		items, err := fetchReturnItems(ctx, p.db, list[i].ID)
		if err != nil {
			return nil, err
		}
		list[i].Items = items
	}
	return list, nil
}

func (p *PgStore) ClientBalance(ctx context.Context, clientID uuid.UUID) (int64, error) {
	var balance int64
	err := p.db.QueryRow(ctx,
		`SELECT balance_minor FROM client_balances WHERE client_id = $1`, clientID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query client balance: %w", err)
	}
	return balance, nil
}

func (p *PgStore) StockLevels(ctx context.Context, productID uuid.UUID) ([]domain.StockVariant, error) {
	rows, err := p.db.Query(ctx, `
		SELECT product_id, size, color, quantity FROM stock_variants
		WHERE $1::uuid = '00000000-0000-0000-0000-000000000000' OR product_id = $1
		ORDER BY product_id, size, color`, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stock: %w", err)
	}
	defer rows.Close()

	var list []domain.StockVariant
	for rows.Next() {
		var cell domain.StockVariant
		if err := rows.Scan(&cell.Key.ProductID, &cell.Key.Size, &cell.Key.Color, &cell.Quantity); err != nil {
			return nil, err
		}
		list = append(list, cell)
	}
	return list, rows.Err()
}

// pgTx implements Tx on top of one pgx transaction.
type pgTx struct {
	q pgx.Tx
}

func (t *pgTx) Order(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return fetchOrder(ctx, t.q, id)
}

func (t *pgTx) PutOrder(ctx context.Context, order *domain.Order) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO orders (id, number, client_id, status, subtotal_minor, tax_minor, total_minor, sale_id, ordered_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status, subtotal_minor = EXCLUDED.subtotal_minor,
			tax_minor = EXCLUDED.tax_minor, total_minor = EXCLUDED.total_minor,
			sale_id = EXCLUDED.sale_id, updated_at = EXCLUDED.updated_at`,
		order.ID, order.Number, order.ClientID, order.Status, order.SubtotalMinor,
		order.TaxMinor, order.TotalMinor, order.SaleID, order.OrderedAt, order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert order: %w", err)
	}
	if _, err := t.q.Exec(ctx, `DELETE FROM order_items WHERE order_id = $1`, order.ID); err != nil {
		return fmt.Errorf("failed to replace order items: %w", err)
	}
	return insertItems(ctx, t.q, "order_items", "order_id", order.ID, order.Items)
}

func (t *pgTx) Sale(ctx context.Context, id uuid.UUID) (*domain.Sale, error) {
	return fetchSale(ctx, t.q, "id", id)
}

func (t *pgTx) SaleByOrder(ctx context.Context, orderID uuid.UUID) (*domain.Sale, error) {
	return fetchSale(ctx, t.q, "order_id", orderID)
}

func (t *pgTx) PutSale(ctx context.Context, sale *domain.Sale) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO sales (id, number, order_id, client_id, status, subtotal_minor, tax_minor, total_minor, debited, restored, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status, debited = EXCLUDED.debited,
			restored = EXCLUDED.restored, updated_at = EXCLUDED.updated_at`,
		sale.ID, sale.Number, sale.OrderID, sale.ClientID, sale.Status, sale.SubtotalMinor,
		sale.TaxMinor, sale.TotalMinor, sale.Movements.Debited, sale.Movements.Restored,
		sale.CreatedAt, sale.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert sale: %w", err)
	}
	if _, err := t.q.Exec(ctx, `DELETE FROM sale_items WHERE sale_id = $1`, sale.ID); err != nil {
		return fmt.Errorf("failed to replace sale items: %w", err)
	}
	return insertItems(ctx, t.q, "sale_items", "sale_id", sale.ID, sale.Items)
}

func (t *pgTx) HasApprovedReturn(ctx context.Context, saleID uuid.UUID) (bool, error) {
	var exists bool
	err := t.q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM returns WHERE sale_id = $1 AND status = 'approved')`, saleID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check existing return: %w", err)
	}
	return exists, nil
}

func (t *pgTx) PutReturn(ctx context.Context, ret *domain.Return) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO returns (id, number, sale_id, client_id, status, refund_minor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ret.ID, ret.Number, ret.SaleID, ret.ClientID, ret.Status, ret.RefundMinor, ret.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert return: %w", err)
	}
	for lineNo, item := range ret.Items {
		_, err := t.q.Exec(ctx, `
			INSERT INTO return_items (return_id, line_no, product_id, product_name, size, color, return_quantity, unit_price_minor, refund_minor)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			ret.ID, lineNo, item.ProductID, item.ProductName, item.Size, item.Color,
			item.ReturnQuantity, item.UnitPriceMinor, item.RefundMinor)
		if err != nil {
			return fmt.Errorf("failed to insert return item: %w", err)
		}
	}
	return nil
}

func (t *pgTx) StockCell(ctx context.Context, key domain.VariantKey) (*domain.StockVariant, error) {
	cell := domain.StockVariant{Key: key}
	err := t.q.QueryRow(ctx, `
		SELECT quantity FROM stock_variants
		WHERE product_id = $1 AND size = $2 AND color = $3 FOR UPDATE`,
		key.ProductID, key.Size, key.Color).Scan(&cell.Quantity)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storeerrors.ErrVariantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query stock cell: %w", err)
	}
	return &cell, nil
}

func (t *pgTx) PutStockCell(ctx context.Context, cell *domain.StockVariant) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO stock_variants (product_id, size, color, quantity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (product_id, size, color) DO UPDATE SET quantity = EXCLUDED.quantity`,
		cell.Key.ProductID, cell.Key.Size, cell.Key.Color, cell.Quantity)
	if err != nil {
		return fmt.Errorf("failed to upsert stock cell: %w", err)
	}
	return nil
}

func (t *pgTx) AddClientCredit(ctx context.Context, clientID uuid.UUID, amountMinor int64) (int64, error) {
	var balance int64
	err := t.q.QueryRow(ctx, `
		INSERT INTO client_balances (client_id, balance_minor)
		VALUES ($1, $2)
		ON CONFLICT (client_id) DO UPDATE SET balance_minor = client_balances.balance_minor + EXCLUDED.balance_minor
		RETURNING balance_minor`, clientID, amountMinor).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("failed to add client credit: %w", err)
	}
	return balance, nil
}

func (t *pgTx) NextNumber(ctx context.Context, seq Sequence) (int64, error) {
	var value int64
	err := t.q.QueryRow(ctx, `
		INSERT INTO sequences (name, value) VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = sequences.value + 1
		RETURNING value`, seq).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("failed to advance sequence %s: %w", seq, err)
	}
	return value, nil
}

// --- shared scan helpers ---

func fetchOrder(ctx context.Context, q queryer, id uuid.UUID) (*domain.Order, error) {
	row := q.QueryRow(ctx, `
		SELECT id, number, client_id, status, subtotal_minor, tax_minor, total_minor, sale_id, ordered_at, updated_at
		FROM orders WHERE id = $1`, id)
	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storeerrors.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query order: %w", err)
	}
	items, err := fetchOrderItems(ctx, q, "order_items", "order_id", id)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

func fetchSale(ctx context.Context, q queryer, column string, id uuid.UUID) (*domain.Sale, error) {
	row := q.QueryRow(ctx, `
		SELECT id, number, order_id, client_id, status, subtotal_minor, tax_minor, total_minor, debited, restored, created_at, updated_at
		FROM sales WHERE `+column+` = $1`, id)
	sale, err := scanSale(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storeerrors.ErrSaleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query sale: %w", err)
	}
	items, err := fetchOrderItems(ctx, q, "sale_items", "sale_id", sale.ID)
	if err != nil {
		return nil, err
	}
	sale.Items = items
	return sale, nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	err := row.Scan(&o.ID, &o.Number, &o.ClientID, &o.Status, &o.SubtotalMinor,
		&o.TaxMinor, &o.TotalMinor, &o.SaleID, &o.OrderedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func scanSale(row pgx.Row) (*domain.Sale, error) {
	var s domain.Sale
	err := row.Scan(&s.ID, &s.Number, &s.OrderID, &s.ClientID, &s.Status, &s.SubtotalMinor,
		&s.TaxMinor, &s.TotalMinor, &s.Movements.Debited, &s.Movements.Restored,
		&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func fetchOrderItems(ctx context.Context, q queryer, table, column string, id uuid.UUID) ([]domain.OrderItem, error) {
	rows, err := q.Query(ctx, `
		SELECT product_id, product_name, size, color, quantity, unit_price_minor, subtotal_minor
		FROM `+table+` WHERE `+column+` = $1 ORDER BY line_no`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.ProductName, &item.Size, &item.Color,
			&item.Quantity, &item.UnitPriceMinor, &item.SubtotalMinor); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func fetchReturnItems(ctx context.Context, q queryer, returnID uuid.UUID) ([]domain.ReturnItem, error) {
	rows, err := q.Query(ctx, `
		SELECT product_id, product_name, size, color, return_quantity, unit_price_minor, refund_minor
		FROM return_items WHERE return_id = $1 ORDER BY line_no`, returnID)
	if err != nil {
		return nil, fmt.Errorf("failed to query return_items: %w", err)
	}
	defer rows.Close()

	var items []domain.ReturnItem
	for rows.Next() {
		var item domain.ReturnItem
		if err := rows.Scan(&item.ProductID, &item.ProductName, &item.Size, &item.Color,
			&item.ReturnQuantity, &item.UnitPriceMinor, &item.RefundMinor); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func insertItems(ctx context.Context, q queryer, table, column string, id uuid.UUID, items []domain.OrderItem) error {
	for lineNo, item := range items {
		_, err := q.Exec(ctx, `
			INSERT INTO `+table+` (`+column+`, line_no, product_id, product_name, size, color, quantity, unit_price_minor, subtotal_minor)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			id, lineNo, item.ProductID, item.ProductName, item.Size, item.Color,
			item.Quantity, item.UnitPriceMinor, item.SubtotalMinor)
		if err != nil {
			return fmt.Errorf("failed to insert into %s: %w", table, err)
		}
	}
	return nil
}
