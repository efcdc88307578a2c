// Package app contains the application setup for the fulfillment service.
package app

import (
	"log/slog"
	"net/http"

	"github.com/abgdnv/storefront/internal/config"
	"github.com/abgdnv/storefront/internal/service"
	"github.com/abgdnv/storefront/internal/store"
	"github.com/abgdnv/storefront/internal/transport/rest"
	"github.com/abgdnv/storefront/pkg/messaging"
	"github.com/abgdnv/storefront/pkg/server"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Dependencies struct {
	Orchestrator service.Orchestrator
	Logger       *slog.Logger
}

// SetupDependencies wires the orchestrator over the configured store.
// dbPool may be nil; the in-memory store is used then. publisher may be
// nil; change notifications are skipped then.
func SetupDependencies(dbPool *pgxpool.Pool, publisher messaging.Publisher, logger *slog.Logger, cfg *config.Config) *Dependencies {
	var ledger store.Store
	if dbPool != nil {
		ledger = store.NewPgStore(dbPool)
	} else {
		ledger = store.NewMemoryStore()
	}

	orchestrator := service.NewService(ledger, publisher, logger, service.Config{
		TaxRateBps:      cfg.Fulfillment.TaxRateBps,
		RestockOnReturn: cfg.Fulfillment.RestockOnReturn,
	})

	return &Dependencies{
		Orchestrator: orchestrator,
		Logger:       logger,
	}
}

// SetupHttpHandler initializes the HTTP routes of the fulfillment service.
// Used by E2E tests to set up the HTTP server with the necessary routes and middleware.
func SetupHttpHandler(deps *Dependencies) http.Handler {
	mux := server.NewChiRouter(deps.Logger)
	wireRoutes(mux, deps)
	return mux
}

// wireRoutes sets up the HTTP routes for the fulfillment service.
func wireRoutes(mux *chi.Mux, deps *Dependencies) {
	handler := rest.NewHandler(deps.Orchestrator, deps.Logger)
	handler.RegisterRoutes(mux)
}

// SetupHttpServer creates and configures an HTTP server for the fulfillment service.
func SetupHttpServer(deps *Dependencies, cfg *config.Config) *http.Server {
	mux := SetupHttpHandler(deps)

	httpCfg := server.HTTPConfig{
		Port:           cfg.HTTPServer.Port,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		ReadTimeout:    cfg.HTTPServer.Timeout.Read,
		WriteTimeout:   cfg.HTTPServer.Timeout.Write,
		IdleTimeout:    cfg.HTTPServer.Timeout.Idle,
		ReadHeader:     cfg.HTTPServer.Timeout.ReadHeader,
	}

	return server.NewHTTPServer(httpCfg, mux)
}
