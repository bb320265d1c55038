package handler

import (
	"crypto-payment-gateway/internal/adapter/http/middleware"
	redisStore "crypto-payment-gateway/internal/adapter/storage/redis"
	"crypto-payment-gateway/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// monitorScope namespaces the chain monitor's nonces in Redis.
const monitorScope = "chain-monitor"

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	WalletSvc      ports.WalletService
	AddressSvc     ports.AddressService
	InvoiceSvc     ports.InvoiceService
	PaymentSvc     ports.PaymentService
	BalanceSvc     ports.BalanceService
	SigSvc         ports.SignatureService
	NonceStore     ports.NonceStore
	MonitorSecret  string
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Deep health check: pings every registered dependency.
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// Swagger documentation
	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

	// Rate limit rules
	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	// API v1 routes
	v1 := r.Group("/api/v1")

	// --- Operator routes ---
	walletHandler := NewWalletHandler(deps.WalletSvc)
	wallets := v1.Group("/wallets")
	{
		wallets.POST("", rl("wallets"), walletHandler.RegisterWallet)
		wallets.GET("/:id", rl("reads"), walletHandler.GetWallet)
	}

	addressHandler := NewAddressHandler(deps.AddressSvc)
	v1.POST("/addresses", rl("addresses"), addressHandler.IssueAddress)

	invoiceHandler := NewInvoiceHandler(deps.InvoiceSvc)
	invoices := v1.Group("/invoices")
	{
		invoices.POST("", rl("invoices"), invoiceHandler.CreateInvoice)
		invoices.GET("/:id", rl("reads"), invoiceHandler.GetInvoice)
		invoices.POST("/:id/cancel", rl("invoices"), invoiceHandler.CancelInvoice)
	}

	balanceHandler := NewBalanceHandler(deps.BalanceSvc)
	v1.GET("/merchants/:id/balances", rl("reads"), balanceHandler.ListBalances)

	// --- Chain monitor callback (HMAC source auth) ---
	sourceAuth := middleware.SourceAuth(deps.MonitorSecret, monitorScope, deps.SigSvc, deps.NonceStore, deps.Logger)
	eventHandler := NewEventHandler(deps.PaymentSvc)
	v1.POST("/events", sourceAuth, rl("events"), eventHandler.HandleEvent)

	return r
}
