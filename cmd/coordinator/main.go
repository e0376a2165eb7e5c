package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	daprclient "github.com/dapr/go-sdk/client"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"

	"github.com/alpespartners/saga-choreography/internal/bus"
	"github.com/alpespartners/saga-choreography/internal/config"
	"github.com/alpespartners/saga-choreography/internal/coordinator"
	"github.com/alpespartners/saga-choreography/internal/sagalog"
	"github.com/alpespartners/saga-choreography/internal/shared/dapr"
	"github.com/alpespartners/saga-choreography/internal/shared/resilience"
)

// CoordinatorApplication wires the bus adapter, the saga log store, the
// coordinator and the health surface together into a running process.
type CoordinatorApplication struct {
	cfg        config.Config
	daprClient *dapr.Client
	busAdapter bus.Adapter
	db         *sql.DB
	store      sagalog.Store
	coord      *coordinator.Coordinator
	server     *http.Server
	logger     *slog.Logger
}

func main() {
	app, err := NewCoordinatorApplication()
	if err != nil {
		log.Fatalf("failed to create saga coordinator application: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleShutdownSignals(cancel)

	if err := app.Start(ctx); err != nil {
		log.Fatalf("saga coordinator application failed: %v", err)
	}
	log.Println("saga coordinator application shutdown complete")
}

// NewCoordinatorApplication constructs every dependency but does not start
// consuming yet.
func NewCoordinatorApplication() (*CoordinatorApplication, error) {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	daprC, err := dapr.NewClient()
	if err != nil {
		return nil, fmt.Errorf("failed to create Dapr client: %w", err)
	}

	var busAdapter bus.Adapter
	var sdkClient daprclient.Client = daprC.GetClient()
	busAdapter = bus.NewDaprAdapter(sdkClient, cfg.PubsubName, cfg.AppID, cfg.ListenAddress, resilience.Config{
		FailureThreshold: cfg.CircuitBreakerFailureThreshold,
		MinRequests:      cfg.CircuitBreakerMinRequests,
		ResetTimeout:     cfg.CircuitBreakerResetTimeout,
	}, logger)

	var store sagalog.Store
	var db *sql.DB
	if cfg.UseMemoryStore {
		store = sagalog.NewMemoryStore()
	} else {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open saga log database: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := sagalog.Bootstrap(ctx, db); err != nil {
			return nil, fmt.Errorf("failed to bootstrap saga log schema: %w", err)
		}
		store = sagalog.NewPostgresStore(db)
	}

	coord := coordinator.New(busAdapter, store, logger, logger.Handler(), coordinator.Config{
		MaxAttempts:       cfg.MaxAttempts,
		ReprocessInterval: cfg.ReprocessInterval,
		ReprocessRate:     cfg.ReprocessRate,
	})

	app := &CoordinatorApplication{
		cfg:        cfg,
		daprClient: daprC,
		busAdapter: busAdapter,
		db:         db,
		store:      store,
		coord:      coord,
		logger:     logger,
	}
	app.server = &http.Server{
		Addr:         healthAddress(),
		Handler:      app.createRouter(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return app, nil
}

// Start runs the coordinator's event loop and the operational health
// surface, blocking until ctx is cancelled.
func (app *CoordinatorApplication) Start(ctx context.Context) error {
	app.logger.Info("starting saga coordinator",
		"app_id", app.cfg.AppID, "pubsub", app.cfg.PubsubName, "environment", app.cfg.Environment)

	if !app.daprClient.IsHealthy(ctx) {
		app.logger.Warn("dapr sidecar not yet healthy; proceeding, publishes go through the adapter's circuit breaker")
	}

	go func() {
		app.logger.Info("health surface listening", "addr", app.server.Addr)
		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.logger.Error("health server error", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- app.coord.Start(ctx) }()

	select {
	case <-ctx.Done():
		return app.Shutdown()
	case err := <-errCh:
		shutdownErr := app.Shutdown()
		if err != nil {
			return err
		}
		return shutdownErr
	}
}

// Shutdown releases every held resource. Safe to call once.
func (app *CoordinatorApplication) Shutdown() error {
	app.logger.Info("shutting down saga coordinator")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := app.server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("health server shutdown error", "error", err)
	}

	if err := app.busAdapter.Close(); err != nil {
		app.logger.Error("bus adapter close error", "error", err)
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("database close error", "error", err)
		}
	}

	if err := app.daprClient.Close(); err != nil {
		app.logger.Error("dapr client close error", "error", err)
	}

	app.logger.Info("saga coordinator shut down successfully")
	return nil
}

func (app *CoordinatorApplication) createRouter() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/health", app.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/ready", app.handleReady).Methods(http.MethodGet)
	return router
}

func (app *CoordinatorApplication) handleHealth(w http.ResponseWriter, r *http.Request) {
	busConnected := app.busAdapter.Healthy(r.Context())
	storeConnected := true
	if app.db != nil {
		storeConnected = app.db.PingContext(r.Context()) == nil
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, `{"status":"ok","bus_connected":%t,"store_connected":%t}`, busConnected, storeConnected)
}

func (app *CoordinatorApplication) handleReady(w http.ResponseWriter, r *http.Request) {
	if !app.busAdapter.Healthy(r.Context()) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"bus unavailable"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}

func handleShutdownSignals(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Printf("received shutdown signal: %v", sig)
	cancel()
}

// healthAddress is the operational health surface's listen address, kept
// off cfg.ListenAddress so it never collides with the Dapr callback server.
func healthAddress() string {
	if addr := os.Getenv("HEALTH_ADDRESS"); addr != "" {
		return addr
	}
	return ":8086"
}
