package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/Tanner253/ClubPengu-sub005/internal/adapter"
	"github.com/Tanner253/ClubPengu-sub005/internal/config"
	"github.com/Tanner253/ClubPengu-sub005/internal/gateway"
	"github.com/Tanner253/ClubPengu-sub005/internal/identity"
	"github.com/Tanner253/ClubPengu-sub005/internal/layout"
	"github.com/Tanner253/ClubPengu-sub005/internal/logger"
	"github.com/Tanner253/ClubPengu-sub005/internal/messaging"
	"github.com/Tanner253/ClubPengu-sub005/internal/payment"
	"github.com/Tanner253/ClubPengu-sub005/internal/presence"
	"github.com/Tanner253/ClubPengu-sub005/internal/ratelimit"
	"github.com/Tanner253/ClubPengu-sub005/internal/rental"
	"github.com/Tanner253/ClubPengu-sub005/internal/router"
	"github.com/Tanner253/ClubPengu-sub005/internal/server"
	"github.com/Tanner253/ClubPengu-sub005/internal/store"
	"github.com/Tanner253/ClubPengu-sub005/internal/sweeper"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
	memStore   = flag.Bool("memory", false, "Use the in-memory store instead of Postgres (development only)")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadServerConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:     cfg.Debug,
		SentryDSN: cfg.SentryDSN,
		Tags: map[string]string{
			"service": "spaced",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting spaced server")

	// Initialize store
	var dataStore store.Store
	if *memStore {
		logger.WarnCtx(ctx, "Using in-memory store, rentals will not survive a restart")
		dataStore = store.NewMemoryStore()
	} else {
		db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
		if err != nil {
			logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err))
		}
		if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
			logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
		}
		logger.InfoCtx(ctx, "Connected to database",
			zap.Int("max_open_conns", cfg.Database.MaxOpenConns),
			zap.Int("max_idle_conns", cfg.Database.MaxIdleConns),
		)
		dataStore = store.NewPGStore(db)
	}

	// Seed the world layout; existing rentals are left untouched
	if err := dataStore.UpsertSpaces(ctx, layout.Spaces()); err != nil {
		logger.FatalCtx(ctx, "Failed to seed space layout", zap.Error(err))
	}

	clock := adapter.NewClock()

	// Connect to the payment chain
	ethClient, err := adapter.DialEthClient(ctx, cfg.Chain.RPCURL)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to chain RPC", zap.Error(err), zap.String("rpc_url", cfg.Chain.RPCURL))
	}
	defer ethClient.Close()
	verifier := payment.NewEthVerifier(ethClient, payment.Config{
		VerifyTimeout:       cfg.Chain.VerifyTimeout,
		ReceiptPollInterval: cfg.Chain.ReceiptPollInterval,
	})

	// Connect to NATS for the cross-instance fan-out
	bus, err := messaging.Connect(cfg.NATS)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to NATS", zap.Error(err), zap.String("url", cfg.NATS.URL))
	}
	defer bus.Close()
	logger.InfoCtx(ctx, "Connected to NATS", zap.String("url", cfg.NATS.URL))

	// Session registry and fan-out hub
	registry := presence.NewRegistry()
	hub := gateway.NewHub(registry)

	// Rental service
	rentalService := rental.NewService(dataStore, verifier, clock, bus, registry, rental.Config{
		DailyRent:             cfg.Rental.DailyRent,
		RentCollectionAddress: cfg.Rental.RentCollectionAddress,
		StakeTokenAddress:     cfg.Rental.StakeTokenAddress,
		MinimumStakeBalance:   cfg.Rental.MinimumStakeBalance,
		MaxRentals:            cfg.Rental.MaxRentals,
		RentPeriod:            cfg.Rental.RentPeriod,
	})

	// Message router and WebSocket gateway
	limiter := ratelimit.NewPerWallet(ratelimit.Config{
		ChecksPerSecond: cfg.RateLimit.ChecksPerSecond,
		Burst:           cfg.RateLimit.Burst,
	}, clock)
	msgRouter := router.NewRouter(rentalService, dataStore, limiter, registry)

	idVerifier, err := identity.NewJWTVerifier(cfg.Auth.JWTPublicKey)
	if err != nil {
		logger.FatalCtx(ctx, "Failed to parse JWT public key", zap.Error(err))
	}
	gw := gateway.NewServer(hub, msgRouter, idVerifier)

	// Deliver published events to local sessions
	if err := bus.Subscribe(ctx, hub); err != nil {
		logger.FatalCtx(ctx, "Failed to subscribe to space events", zap.Error(err))
	}

	// Background sweepers
	rentSweeper := sweeper.NewRentSweeper(&sweeper.RentSweeperConfig{
		SweepInterval:  cfg.Scheduler.SweepInterval,
		GracePeriod:    cfg.Scheduler.GracePeriod,
		WorkerPoolSize: cfg.Scheduler.WorkerPoolSize,
	}, dataStore, bus, clock)
	eligibilitySweeper := sweeper.NewEligibilitySweeper(&sweeper.EligibilitySweeperConfig{
		CheckInterval: cfg.Scheduler.EligibilityInterval,
	}, rentalService, registry, bus, clock)

	sweepers := []sweeper.Sweeper{rentSweeper, eligibilitySweeper}

	errCh := make(chan error, len(sweepers)+1)
	for _, sw := range sweepers {
		go func(sw sweeper.Sweeper) {
			logger.InfoCtx(ctx, "Starting sweeper", zap.String("sweeper", sw.Name()))
			if err := sw.Start(ctx); err != nil {
				errCh <- fmt.Errorf("%s: %w", sw.Name(), err)
			}
		}(sw)
	}

	// HTTP server hosting /ws and /healthz
	srv := server.New(server.Config{
		Debug:        cfg.Debug,
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}, gw, hub)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- fmt.Errorf("server: %w", err)
		}
	}()

	// Wait for interrupt signal to gracefully shut down
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	case err := <-errCh:
		logger.ErrorCtx(ctx, err, zap.String("component", "spaced"))
		cancel()
	}

	// Create shutdown context with timeout (don't use canceled ctx)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	logger.InfoCtx(shutdownCtx, "Shutting down...")

	for _, sw := range sweepers {
		if err := sw.Stop(shutdownCtx); err != nil {
			logger.ErrorCtx(shutdownCtx, err, zap.String("sweeper", sw.Name()))
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.FatalCtx(shutdownCtx, "Server forced to shutdown", zap.Error(err))
	}

	// Use non-context logger for final message since original ctx is canceled
	logger.Info("spaced server stopped")
}
