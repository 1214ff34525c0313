package main

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"rentledger/internal/allocator"
	"rentledger/internal/config"
	"rentledger/internal/events"
	"rentledger/internal/handler"
	"rentledger/internal/matcher"
	"rentledger/internal/middleware"
	"rentledger/internal/provider"
	"rentledger/internal/repository"
	"rentledger/internal/service"
	"rentledger/internal/webhook"
	"rentledger/pkg/logger"
)

// @title Rent Ledger API
// @version 1.0
// @description API for rent invoicing, payment collection and reconciliation
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email support@rentledger.io

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Init(cfg.App.LogLevel)
	logger.GetLogger().Info("Starting Rent Ledger Service")

	// Connect to database
	db, err := connectDB(cfg.Database)
	if err != nil {
		logger.GetLogger().WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	logger.GetLogger().Info("Database connection established")

	// Initialize repositories
	invoiceRepo := repository.NewInvoiceRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	allocationRepo := repository.NewAllocationRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	mandateRepo := repository.NewMandateRepository(db)
	bankRepo := repository.NewBankTransactionRepository(db)
	webhookRepo := repository.NewWebhookLogRepository(db)
	tenancyRepo := repository.NewTenancyRepository(db)

	// Initialize provider adapters
	providers := map[string]provider.Provider{
		provider.DirectDebitName: provider.NewDirectDebitProvider(cfg.Providers.DirectDebit),
		provider.CardName:        provider.NewCardProvider(cfg.Providers.Card),
	}
	secrets := map[string]string{
		provider.DirectDebitName: cfg.Providers.DirectDebit.WebhookSecret,
		provider.CardName:        cfg.Providers.Card.WebhookSecret,
	}

	// Initialize services
	publisher := events.NewLogPublisher()
	engine := allocator.NewEngine(db, invoiceRepo, allocationRepo, paymentRepo)
	invoiceService := service.NewInvoiceService(db, invoiceRepo, allocationRepo, ledgerRepo, tenancyRepo, publisher)
	paymentService := service.NewPaymentService(db, paymentRepo, invoiceRepo, allocationRepo, ledgerRepo, engine, publisher)
	mandateService := service.NewMandateService(mandateRepo, providers)
	bankService := service.NewBankTransactionService(bankRepo)
	ledgerService := service.NewLedgerService(ledgerRepo)

	tolerance, err := decimal.NewFromString(cfg.Matcher.AmountTolerance)
	if err != nil {
		logger.GetLogger().WithError(err).Fatal("Invalid amount tolerance")
	}
	match := matcher.NewMatcher(bankRepo, invoiceRepo, cfg.Matcher.DateWindowDays, tolerance, cfg.Matcher.AutoConfirmThreshold)

	dispatcher := webhook.NewDispatcher(providers, secrets, paymentRepo, mandateRepo, invoiceRepo, webhookRepo, publisher)

	// Initialize handlers
	invoiceHandler := handler.NewInvoiceHandler(invoiceService)
	paymentHandler := handler.NewPaymentHandler(paymentService, engine)
	mandateHandler := handler.NewMandateHandler(mandateService)
	ledgerHandler := handler.NewLedgerHandler(ledgerService)
	reconHandler := handler.NewReconciliationHandler(bankService, match)
	webhookHandler := handler.NewWebhookHandler(dispatcher)

	// Setup router
	router := setupRouter(invoiceHandler, paymentHandler, mandateHandler, ledgerHandler, reconHandler, webhookHandler)

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	logger.GetLogger().WithField("address", addr).Info("Server starting")

	if err := router.Run(addr); err != nil {
		logger.GetLogger().WithError(err).Fatal("Failed to start server")
	}
}

func connectDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.ConnectionString())
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return db, nil
}

func setupRouter(
	invoiceHandler *handler.InvoiceHandler,
	paymentHandler *handler.PaymentHandler,
	mandateHandler *handler.MandateHandler,
	ledgerHandler *handler.LedgerHandler,
	reconHandler *handler.ReconciliationHandler,
	webhookHandler *handler.WebhookHandler,
) *gin.Engine {
	router := gin.New()

	// Global middleware
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.Metrics())
	router.Use(middleware.ErrorHandler())
	router.Use(gin.Recovery())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "healthy"})
	})

	// Metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Swagger documentation
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Provider webhooks stay outside the API group; they carry their own
	// signature-based authentication.
	router.POST("/webhooks/:provider", webhookHandler.HandleWebhook)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Invoice routes
		invoices := v1.Group("/invoices")
		{
			invoices.POST("", invoiceHandler.CreateInvoice)
			invoices.GET("", invoiceHandler.ListInvoices)
			invoices.GET("/:invoice_id", invoiceHandler.GetInvoice)
			invoices.POST("/:invoice_id/void", invoiceHandler.VoidInvoice)
			invoices.POST("/:invoice_id/recompute", invoiceHandler.RecomputeInvoiceStatus)
			invoices.GET("/:invoice_id/payments", paymentHandler.ListInvoicePayments)
		}

		// Payment routes
		payments := v1.Group("/payments")
		{
			payments.POST("", paymentHandler.RecordPayment)
			payments.GET("/:payment_id", paymentHandler.GetPayment)
			payments.POST("/:payment_id/allocations", paymentHandler.AllocatePayment)
			payments.POST("/:payment_id/allocations/auto", paymentHandler.AutoAllocatePayment)
		}

		// Mandate routes
		mandates := v1.Group("/mandates")
		{
			mandates.POST("", mandateHandler.CreateMandate)
			mandates.GET("/:mandate_id", mandateHandler.GetMandate)
			mandates.POST("/:mandate_id/cancel", mandateHandler.CancelMandate)
		}

		// Ledger routes
		v1.GET("/ledger", ledgerHandler.ListLedgerEntries)

		// Webhook audit trail
		v1.GET("/webhook-logs/:provider", webhookHandler.ListWebhookLogs)

		// Reconciliation routes
		bank := v1.Group("/bank-transactions")
		{
			bank.POST("", reconHandler.CreateBankTransaction)
			bank.POST("/import", reconHandler.ImportBankTransactions)
			bank.GET("", reconHandler.ListUnmatched)
			bank.GET("/:transaction_id", reconHandler.GetBankTransaction)
			bank.GET("/:transaction_id/suggestions", reconHandler.SuggestMatches)
			bank.POST("/:transaction_id/match", reconHandler.ConfirmMatch)
			bank.POST("/:transaction_id/match/auto", reconHandler.AutoMatch)
		}
	}

	return router
}
