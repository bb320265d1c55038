package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crypto-payment-gateway/config"
	httpHandler "crypto-payment-gateway/internal/adapter/http/handler"
	pgStorage "crypto-payment-gateway/internal/adapter/storage/postgres"
	redisStorage "crypto-payment-gateway/internal/adapter/storage/redis"
	"crypto-payment-gateway/internal/core/ports"
	"crypto-payment-gateway/internal/service"
	"crypto-payment-gateway/pkg/logger"

	"github.com/shopspring/decimal"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting Crypto Payment Gateway")

	ctx := context.Background()

	// Initialize PostgreSQL pool and apply migrations
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	if err := pgStorage.RunMigrations(cfg.Database, log); err != nil {
		log.Fatal().Err(err).Msg("Failed to apply database migrations")
	}

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize repositories
	walletRepo := pgStorage.NewWalletRepo(pool)
	addressRepo := pgStorage.NewAddressRepo(pool)
	invoiceRepo := pgStorage.NewInvoiceRepo(pool)
	balanceRepo := pgStorage.NewBalanceRepo(pool)
	eventRepo := pgStorage.NewEventRepo(pool)
	outboxRepo := pgStorage.NewOutboxRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize Redis stores
	eventCache := redisStorage.NewEventCache(rdb)
	nonceStore := redisStorage.NewNonceStore(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Initialize core services
	sigSvc := service.NewHMACSignatureService()
	policies := settlementPolicies(cfg)

	// Initialize business services
	walletSvc := service.NewWalletService(walletRepo, log)
	addressSvc := service.NewAddressService(walletRepo, addressRepo, log)
	invoiceSvc := service.NewInvoiceService(invoiceRepo, addressRepo, outboxRepo, transactor, policies, log)
	paymentSvc := service.NewPaymentService(
		addressRepo,
		invoiceRepo,
		balanceRepo,
		eventRepo,
		outboxRepo,
		eventCache,
		transactor,
		policies,
		log,
	)
	balanceSvc := service.NewBalanceService(balanceRepo)

	// Background workers share a cancellable context so shutdown stops
	// their loops before the HTTP listener closes.
	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	if cfg.Webhook.SinkURL != "" {
		dispatcher := service.NewWebhookDispatcher(
			outboxRepo,
			sigSvc,
			&http.Client{Timeout: cfg.Webhook.RequestTimeout},
			service.WebhookDispatcherConfig{
				SinkURL:       cfg.Webhook.SinkURL,
				Secret:        cfg.Webhook.Secret,
				PollInterval:  cfg.Webhook.PollInterval,
				BatchSize:     cfg.Webhook.BatchSize,
				MaxAttempts:   cfg.Webhook.MaxAttempts,
				LeaseDuration: cfg.Webhook.LeaseDuration,
			},
			log,
		)
		go dispatcher.Run(workerCtx)
	} else {
		log.Warn().Msg("webhook.sink_url not set, outbox dispatcher disabled")
	}

	sweeper := service.NewExpirySweeper(invoiceSvc, cfg.Sweeper.Interval, cfg.Sweeper.BatchSize, log)
	go sweeper.Run(workerCtx)

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Load OpenAPI spec for Swagger UI
	if specBytes, err := os.ReadFile("docs/api/openapi.yaml"); err == nil {
		httpHandler.SetSwaggerSpec(specBytes)
		log.Info().Msg("OpenAPI spec loaded for Swagger UI at /swagger")
	} else {
		log.Warn().Err(err).Msg("OpenAPI spec not found, Swagger UI will be unavailable")
	}

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		WalletSvc:      walletSvc,
		AddressSvc:     addressSvc,
		InvoiceSvc:     invoiceSvc,
		PaymentSvc:     paymentSvc,
		BalanceSvc:     balanceSvc,
		SigSvc:         sigSvc,
		NonceStore:     nonceStore,
		MonitorSecret:  cfg.Monitor.Secret,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	stopWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// settlementPolicies translates the config tree into the service-level
// policy table, converting float tolerances to exact decimals once.
func settlementPolicies(cfg *config.Config) service.SettlementPolicies {
	chains := make(map[string]service.ChainPolicy, len(cfg.Chains))
	for name, p := range cfg.Chains {
		chains[name] = service.ChainPolicy{
			Tolerance:             decimal.NewFromFloat(p.Tolerance),
			RequiredConfirmations: p.RequiredConfirmations,
		}
	}
	return service.SettlementPolicies{
		DefaultTolerance:     decimal.NewFromFloat(cfg.Settlement.DefaultTolerance),
		DefaultConfirmations: cfg.Settlement.DefaultConfirmations,
		ReopenExpired:        cfg.Settlement.ReopenExpired,
		Chains:               chains,
	}
}
