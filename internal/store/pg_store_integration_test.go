package store

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/abgdnv/storefront/internal/domain"
	storeerrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const skipIntegrationTests = "FULFILLMENT_SKIP_INTEGRATION_TESTS"

// PgStoreSuite is a test suite for the PostgreSQL ledger store.
type PgStoreSuite struct {
	suite.Suite
	pgContainer *postgres.PostgresContainer
	dbPool      *pgxpool.Pool
	store       *PgStore
	logger      *slog.Logger
	ctx         context.Context
}

// SetupSuite starts a PostgreSQL container and applies the migrations.
func (s *PgStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	var err error
	s.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	dbName := "storefront_db"
	dbUser := "user"
	dbPassword := "password"

	s.pgContainer, err = postgres.Run(s.ctx,
		"postgres:17.5-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Minute),
		),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("5432/tcp"),
		),
	)
	require.NoError(s.T(), err, "Failed to run PostgreSQL container")

	connStr, err := s.pgContainer.ConnectionString(s.ctx, "sslmode=disable")
	require.NoError(s.T(), err, "Failed to get connection string from container")

	s.dbPool, err = pgxpool.New(s.ctx, connStr)
	require.NoError(s.T(), err, "Failed to create pgxpool")

	for i := range 10 {
		s.logger.Info("Pinging PostgreSQL database", "attempt", i+1)
		err = s.dbPool.Ping(s.ctx)
		if err == nil {
			break
		}
		time.Sleep(time.Second * 2)
	}
	require.NoError(s.T(), err, "Failed to connect to PostgreSQL after retries")

	wd, _ := os.Getwd()
	migrationsPath := filepath.Join(wd, "../../migrations")
	m, err := migrate.New("file://"+migrationsPath, connStr)
	require.NoError(s.T(), err, "Failed to create migrate instance")
	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		_, _ = m.Close()
		require.NoError(s.T(), err, "Failed to apply migrations")
	}
	s.logger.Info("Migrations applied for integration tests")

	s.store = NewPgStore(s.dbPool)
	s.logger.Info("Initialization complete for PgStoreSuite")
}

// TearDownSuite cleans up resources after all tests in the suite have run.
func (s *PgStoreSuite) TearDownSuite() {
	s.logger.Info("Tearing down suite...")
	if s.dbPool != nil {
		s.dbPool.Close()
		s.logger.Info("DB pool closed.")
	}
	if s.pgContainer != nil {
		s.logger.Info("Terminating PostgreSQL container...")
		err := s.pgContainer.Terminate(s.ctx)
		if err != nil {
			s.logger.Warn("failed to terminate PostgreSQL container", "error", err)
		} else {
			s.logger.Info("PostgreSQL container terminated.")
		}
	}
}

// SetupTest resets every ledger table before each test.
func (s *PgStoreSuite) SetupTest() {
	_, err := s.dbPool.Exec(s.ctx, `
		TRUNCATE TABLE return_items, returns, sale_items, sales, order_items, orders,
		stock_variants, client_balances, sequences CASCADE`)
	require.NoError(s.T(), err, "Failed to truncate ledger tables")
}

// TestPgStoreIntegration runs the PostgreSQL store integration tests.
func TestPgStoreIntegration(t *testing.T) {
	if os.Getenv(skipIntegrationTests) == "1" {
		t.Skip("Skipping integration tests based on " + skipIntegrationTests + " env var")
	}
	suite.Run(t, new(PgStoreSuite))
}

// putTestOrder is a helper that writes an order inside one transaction.
func (s *PgStoreSuite) putTestOrder(order *domain.Order) {
	s.T().Helper()
	err := s.store.WithinTx(s.ctx, func(tx Tx) error {
		return tx.PutOrder(s.ctx, order)
	})
	require.NoError(s.T(), err, "putTestOrder helper failed")
}

func (s *PgStoreSuite) TestPutAndFindOrder() {
	s.SetupTest()
	// given
	order := testOrder(uuid.New())

	// when
	s.putTestOrder(order)
	fetched, err := s.store.FindOrderByID(s.ctx, order.ID)

	// then
	require.NoError(s.T(), err, "FindOrderByID should not return an error")
	require.Equal(s.T(), order.ID, fetched.ID)
	require.Equal(s.T(), order.Number, fetched.Number)
	require.Equal(s.T(), order.Status, fetched.Status)
	require.Equal(s.T(), order.TotalMinor, fetched.TotalMinor)
	require.Len(s.T(), fetched.Items, 1)
	require.Equal(s.T(), order.Items[0].Quantity, fetched.Items[0].Quantity)
	require.WithinDuration(s.T(), order.OrderedAt, fetched.OrderedAt, time.Second)
}

func (s *PgStoreSuite) TestFindOrder_NotFound() {
	s.SetupTest()
	// given (no orders created)

	// when
	_, err := s.store.FindOrderByID(s.ctx, uuid.New())

	// then
	require.ErrorIs(s.T(), err, storeerrors.ErrOrderNotFound)
}

func (s *PgStoreSuite) TestRollbackOnError() {
	s.SetupTest()
	// given
	order := testOrder(uuid.New())
	boom := errors.New("boom")

	// when: the transaction fails after staging writes
	err := s.store.WithinTx(s.ctx, func(tx Tx) error {
		if err := tx.PutOrder(s.ctx, order); err != nil {
			return err
		}
		if err := tx.PutStockCell(s.ctx, &domain.StockVariant{Key: order.Items[0].Variant(), Quantity: 5}); err != nil {
			return err
		}
		return boom
	})

	// then: nothing is visible
	require.ErrorIs(s.T(), err, boom)
	_, err = s.store.FindOrderByID(s.ctx, order.ID)
	require.ErrorIs(s.T(), err, storeerrors.ErrOrderNotFound)
	cells, err := s.store.StockLevels(s.ctx, uuid.Nil)
	require.NoError(s.T(), err)
	require.Empty(s.T(), cells)
}

func (s *PgStoreSuite) TestStockCellRoundTrip() {
	s.SetupTest()
	// given
	key := domain.VariantKey{ProductID: uuid.New(), Size: "M", Color: "black"}

	// when: upsert then read-modify-write inside one transaction
	err := s.store.WithinTx(s.ctx, func(tx Tx) error {
		if err := tx.PutStockCell(s.ctx, &domain.StockVariant{Key: key, Quantity: 5}); err != nil {
			return err
		}
		cell, err := tx.StockCell(s.ctx, key)
		if err != nil {
			return err
		}
		cell.Quantity -= 2
		return tx.PutStockCell(s.ctx, cell)
	})

	// then
	require.NoError(s.T(), err)
	cells, err := s.store.StockLevels(s.ctx, key.ProductID)
	require.NoError(s.T(), err)
	require.Len(s.T(), cells, 1)
	assert.Equal(s.T(), int32(3), cells[0].Quantity)

	// a missing cell maps to ErrVariantNotFound
	err = s.store.WithinTx(s.ctx, func(tx Tx) error {
		_, err := tx.StockCell(s.ctx, domain.VariantKey{ProductID: uuid.New(), Size: "S", Color: "white"})
		return err
	})
	require.ErrorIs(s.T(), err, storeerrors.ErrVariantNotFound)
}

func (s *PgStoreSuite) TestSaleLifecycleAndReturns() {
	s.SetupTest()
	// given an order and its sale
	order := testOrder(uuid.New())
	s.putTestOrder(order)
	sale := &domain.Sale{
		ID:            uuid.New(),
		Number:        "SAL-000001",
		OrderID:       order.ID,
		ClientID:      order.ClientID,
		Status:        domain.SaleStatusCompleted,
		Items:         domain.CloneItems(order.Items),
		SubtotalMinor: order.SubtotalMinor,
		TaxMinor:      order.TaxMinor,
		TotalMinor:    order.TotalMinor,
		Movements:     domain.Movements{Debited: true},
		CreatedAt:     time.Now().UTC(),
		UpdatedAt:     time.Now().UTC(),
	}
	err := s.store.WithinTx(s.ctx, func(tx Tx) error {
		return tx.PutSale(s.ctx, sale)
	})
	require.NoError(s.T(), err)

	// when: sale reachable by order, return registered, movements updated
	err = s.store.WithinTx(s.ctx, func(tx Tx) error {
		found, err := tx.SaleByOrder(s.ctx, order.ID)
		if err != nil {
			return err
		}
		require.Equal(s.T(), sale.ID, found.ID)
		require.True(s.T(), found.Movements.Debited)
		require.False(s.T(), found.Movements.Restored)

		exists, err := tx.HasApprovedReturn(s.ctx, sale.ID)
		if err != nil {
			return err
		}
		require.False(s.T(), exists)

		ret := &domain.Return{
			ID:       uuid.New(),
			Number:   "RET-000001",
			SaleID:   sale.ID,
			ClientID: sale.ClientID,
			Status:   domain.ReturnStatusApproved,
			Items: []domain.ReturnItem{{
				ProductID: sale.Items[0].ProductID, ProductName: "Hoodie", Size: "M", Color: "black",
				ReturnQuantity: 1, UnitPriceMinor: 4500, RefundMinor: 4500,
			}},
			RefundMinor: 4500,
			CreatedAt:   time.Now().UTC(),
		}
		if err := tx.PutReturn(s.ctx, ret); err != nil {
			return err
		}
		if _, err := tx.AddClientCredit(s.ctx, sale.ClientID, ret.RefundMinor); err != nil {
			return err
		}

		found.Movements.Restored = true
		found.Status = domain.SaleStatusCancelled
		return tx.PutSale(s.ctx, found)
	})
	require.NoError(s.T(), err)

	// then
	fetched, err := s.store.FindSaleByID(s.ctx, sale.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), domain.SaleStatusCancelled, fetched.Status)
	assert.True(s.T(), fetched.Movements.Restored)

	returns, err := s.store.FindReturns(s.ctx)
	require.NoError(s.T(), err)
	require.Len(s.T(), returns, 1)
	require.Len(s.T(), returns[0].Items, 1)

	balance, err := s.store.ClientBalance(s.ctx, sale.ClientID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(4500), balance)
}

func (s *PgStoreSuite) TestFindSalesFilter() {
	s.SetupTest()
	// given two sales for different clients
	clientA := uuid.New()
	clientB := uuid.New()
	for i, clientID := range []uuid.UUID{clientA, clientB} {
		order := testOrder(clientID)
		s.putTestOrder(order)
		sale := &domain.Sale{
			ID:        uuid.New(),
			Number:    "SAL-00000" + string(rune('1'+i)),
			OrderID:   order.ID,
			ClientID:  clientID,
			Status:    domain.SaleStatusCompleted,
			Items:     domain.CloneItems(order.Items),
			Movements: domain.Movements{Debited: true},
			CreatedAt: time.Now().UTC(),
			UpdatedAt: time.Now().UTC(),
		}
		err := s.store.WithinTx(s.ctx, func(tx Tx) error {
			return tx.PutSale(s.ctx, sale)
		})
		require.NoError(s.T(), err)
	}

	// when/then
	sales, err := s.store.FindSales(s.ctx, SaleFilter{ClientID: &clientA})
	require.NoError(s.T(), err)
	require.Len(s.T(), sales, 1)
	assert.Equal(s.T(), clientA, sales[0].ClientID)

	status := domain.SaleStatusCompleted
	sales, err = s.store.FindSales(s.ctx, SaleFilter{Status: &status})
	require.NoError(s.T(), err)
	assert.Len(s.T(), sales, 2)

	sales, err = s.store.FindSales(s.ctx, SaleFilter{})
	require.NoError(s.T(), err)
	assert.Len(s.T(), sales, 2)
}

func (s *PgStoreSuite) TestSequences() {
	s.SetupTest()
	// given/when
	var first, second, other int64
	err := s.store.WithinTx(s.ctx, func(tx Tx) error {
		var err error
		if first, err = tx.NextNumber(s.ctx, SeqOrders); err != nil {
			return err
		}
		if second, err = tx.NextNumber(s.ctx, SeqOrders); err != nil {
			return err
		}
		other, err = tx.NextNumber(s.ctx, SeqReturns)
		return err
	})

	// then
	require.NoError(s.T(), err)
	assert.Equal(s.T(), int64(1), first)
	assert.Equal(s.T(), int64(2), second)
	assert.Equal(s.T(), int64(1), other)
}
