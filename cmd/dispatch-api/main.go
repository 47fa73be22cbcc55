// README: Entry point; loads config, wires the mapper, ledger, notifier and engines, serves HTTP until signalled.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	firebase "firebase.google.com/go/v4"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"smartdispatch/internal/config"
	httptransport "smartdispatch/internal/http"
	"smartdispatch/internal/infra"
	"smartdispatch/internal/maps"
	"smartdispatch/internal/modules/antispam"
	"smartdispatch/internal/modules/detour"
	"smartdispatch/internal/modules/dispatch"
	"smartdispatch/internal/modules/notify"
	"smartdispatch/internal/modules/routing"
	"smartdispatch/internal/platform/logging"
	"smartdispatch/internal/platform/metrics"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logCfg := logging.DefaultConfig("dispatch-api")
	logCfg.Level = cfg.Log.Level
	logger := logging.New(logCfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("dispatch-api stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	m := metrics.New("smartdispatch")

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		client, err := infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			return err
		}
		defer client.Close()
		rdb = client
	}

	var settings dispatch.SettingsStore
	if cfg.DB.DSN != "" {
		pool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		store := dispatch.NewPGSettingsStore(pool)
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		settings = store
	}

	mapper, err := newMapper(cfg.Maps, rdb, m, logger)
	if err != nil {
		return err
	}

	var app *firebase.App
	if cfg.Firebase.ProjectID != "" || cfg.Firebase.CredentialsFile != "" {
		app, err = infra.NewFirebaseApp(ctx, cfg.Firebase)
		if err != nil {
			return err
		}
	}
	notifier, err := newNotifier(ctx, cfg.Firebase, app, logger)
	if err != nil {
		return err
	}
	var verifier infra.TokenVerifier
	if cfg.HTTP.AuthEnabled {
		verifier, err = infra.NewFirebaseVerifier(ctx, app)
		if err != nil {
			return err
		}
	}

	solver := routing.NewInsertionSolver(routing.Options{
		MaxIterations: cfg.Dispatch.SolverIter,
		TimeBudget:    cfg.Dispatch.SolverBudget,
		Observe:       m.ObserveSolve,
	})
	evaluator := detour.NewEvaluator(mapper, solver, maps.Tactics(cfg.Dispatch.Tactics))
	ledgerCfg := antispam.Config{Cooldown: cfg.Dispatch.Cooldown, ResponseTimeout: cfg.Dispatch.ResponseTimeout}
	defaultMode, err := dispatch.ParseMode(cfg.Dispatch.DefaultMode)
	if err != nil {
		return err
	}
	modeCfg := dispatch.ModeConfig{
		Mode2DetourMax:           cfg.Dispatch.DetourMax,
		Mode2EasyDetour:          cfg.Dispatch.EasyDetour,
		Mode2HighProfitThreshold: cfg.Dispatch.HighProfitThreshold,
		Mode3RadiusMinutes:       cfg.Dispatch.RadiusMinutes,
		Mode3DetourMax:           cfg.Dispatch.LocalityDetourMax,
	}

	registry := dispatch.NewRegistry(func(driverID string) *dispatch.Engine {
		var store antispam.Store = antispam.NewMemoryStore()
		if rdb != nil {
			store = antispam.NewRedisStore(rdb, driverID, cfg.Dispatch.LedgerRetention)
		}
		return dispatch.NewEngine(dispatch.Options{
			DriverID:    driverID,
			Ledger:      antispam.NewLedger(store, ledgerCfg, logger),
			Evaluator:   evaluator,
			Notifier:    notifier,
			Settings:    settings,
			Metrics:     m,
			Logger:      logger,
			PushTimeout: cfg.Dispatch.PushTimeout,
			Mode:        defaultMode,
			Config:      modeCfg,
		})
	})
	defer registry.Close()
	// Restore the default driver up front so a bad snapshot shows in the startup logs.
	if _, err := registry.Get(ctx, cfg.Dispatch.DriverID); err != nil {
		logger.Warn("default driver settings not restored; retrying on first request", "error", err)
	}

	handler := httptransport.NewServer(httptransport.ServerDeps{
		Registry:        registry,
		Mapper:          mapper,
		DefaultDriverID: cfg.Dispatch.DriverID,
		Metrics:         m,
		Verifier:        verifier,
		Logger:          logger,
	})
	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler.Routes()}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTP.Addr, "redis", rdb != nil, "postgres", settings != nil)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// newMapper prefers Google Maps when a key is configured, with geocodes
// cached in Redis when available. Otherwise stops must be "lat,lng" pairs
// and drive times are estimated.
func newMapper(cfg config.MapsConfig, rdb *redis.Client, m *metrics.Metrics, logger *slog.Logger) (maps.Mapper, error) {
	if cfg.APIKey == "" {
		logger.Warn("no maps api key, estimating drive times from coordinates", "speed_kmh", cfg.EstimateKmh)
		return maps.NewEstimateMapper(nil, cfg.EstimateKmh), nil
	}
	var cache maps.GeocodeCache
	if rdb != nil {
		cache = maps.NewRedisGeocodeCache(rdb, cfg.GeocodeCacheTTL)
	}
	return maps.NewGoogleMapper(maps.GoogleConfig{
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
		Language: cfg.Language,
		Region:   cfg.Region,
		Timeout:  cfg.Timeout,
		Retries:  cfg.Retries,
	}, cache, m, logger)
}

func newNotifier(ctx context.Context, cfg config.FirebaseConfig, app *firebase.App, logger *slog.Logger) (notify.Notifier, error) {
	if app == nil || (cfg.DeviceToken == "" && !cfg.Feed) {
		return notify.NewLogNotifier(logger), nil
	}
	return notify.NewFirebaseNotifier(ctx, app, cfg.DeviceToken, cfg.Sound, cfg.Feed, logger)
}
