package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-limiter/memorystore"

	"github.com/smallyunet/userop-validator/api"
	"github.com/smallyunet/userop-validator/config"
	"github.com/smallyunet/userop-validator/emulator"
	"github.com/smallyunet/userop-validator/metrics"
	"github.com/smallyunet/userop-validator/services/reputation"
	"github.com/smallyunet/userop-validator/services/validator"
	"github.com/smallyunet/userop-validator/storage/pebble"
)

// Validator bundles the wired-up components of one validator instance.
type Validator struct {
	Config      config.Config
	Environment *emulator.SimulationEnvironment
	Reputations reputation.Store
	Driver      *validator.Driver
	API         *api.UserOpAPI

	storage *pebble.Storage
	logger  zerolog.Logger
}

// New wires the validator components: the embedded EVM, the reputation
// store (pebble-backed when a database directory is configured), the
// simulation driver and the RPC API.
func New(cfg config.Config, logger zerolog.Logger, collector metrics.Collector) (*Validator, error) {
	cfg.SetDefaults()

	env, err := emulator.NewSimulationEnvironment(logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create simulation environment: %w", err)
	}

	var (
		reputations reputation.Store
		store       *pebble.Storage
	)
	if cfg.DatabaseDir != "" {
		store, err = pebble.New(cfg.DatabaseDir, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open reputation database: %w", err)
		}
		reputations, err = reputation.NewPersistentStore(
			pebble.NewReputations(store),
			cfg.ThrottleThreshold,
			cfg.BanThreshold,
			logger,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to load reputation store: %w", err)
		}
	} else {
		reputations = reputation.NewInMemoryStore(cfg.ThrottleThreshold, cfg.BanThreshold, logger)
	}

	driver := validator.NewDriver(env, reputations, cfg.EntryPointAddress, collector, logger)

	limiterStore, err := memorystore.New(&memorystore.Config{
		Tokens:   cfg.RateLimit,
		Interval: time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limiter: %w", err)
	}

	userOpAPI := api.NewUserOpAPI(
		logger,
		cfg,
		driver,
		reputations,
		api.NewValidatedOpCache(cfg.UserOpCacheTTL),
		api.NewRateLimiter(limiterStore, logger),
		collector,
	)

	return &Validator{
		Config:      cfg,
		Environment: env,
		Reputations: reputations,
		Driver:      driver,
		API:         userOpAPI,
		storage:     store,
		logger:      logger.With().Str("component", "bootstrap").Logger(),
	}, nil
}

// Run serves the JSON-RPC API (and the metrics handler if configured) until
// the context is cancelled.
func (v *Validator) Run(ctx context.Context, ready func()) error {
	rpcServer, err := api.NewRPCServer(v.logger, v.API)
	if err != nil {
		return err
	}
	defer rpcServer.Stop()

	httpServer := api.NewHTTPServer(v.logger, rpcServer, v.Config.RPCHost, v.Config.RPCPort)

	var metricsServer *http.Server
	if v.Config.MetricsPort != 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:              fmt.Sprintf("%s:%d", v.Config.RPCHost, v.Config.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				v.logger.Err(err).Msg("metrics server failure")
			}
		}()
	}

	errChan := make(chan error, 1)
	go func() {
		v.logger.Info().
			Str("address", httpServer.Addr).
			Str("entryPoint", v.Config.EntryPointAddress.Hex()).
			Msg("JSON-RPC server started")
		ready()
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-errChan:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}

	return err
}

// Close releases the persistent storage, if any.
func (v *Validator) Close() {
	if v.storage != nil {
		if err := v.storage.Close(); err != nil {
			v.logger.Err(err).Msg("failed to close storage")
		}
	}
}
