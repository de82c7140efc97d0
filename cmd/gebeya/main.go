package main

import (
	"context"
	"log"
	"net/http"

	"github.com/abenezerw/gebeya/config"
	"github.com/abenezerw/gebeya/internal/auth"
	"github.com/abenezerw/gebeya/internal/chapa"
	handler "github.com/abenezerw/gebeya/internal/handler/http"
	"github.com/abenezerw/gebeya/internal/middleware"
	"github.com/abenezerw/gebeya/internal/repository"
	"github.com/abenezerw/gebeya/internal/repository/postgres"
	"github.com/abenezerw/gebeya/internal/service"
	"github.com/abenezerw/gebeya/internal/worker"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// newLogger creates logger with log level
func newLogger(level string) (*zap.Logger, error) {

	loggerLvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	loggerCfg := zap.NewProductionConfig()
	loggerCfg.Level = loggerLvl

	return loggerCfg.Build()
}

func main() {

	// create new config
	cfg, err := config.New()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	// initialize logger
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Error initializing logger: %v", err)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}
	if cfg.SkipSignatureCheck {
		logger.Warn("Webhook signature verification is DISABLED", zap.String("app_env", cfg.AppEnv))
	}

	// create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// initialize database
	db, err := postgres.New(ctx, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("Error initializing database", zap.Error(err))
	}
	defer db.Close()

	// migrate database
	err = db.Migrate()
	if err != nil {
		logger.Fatal("Error migrating database", zap.Error(err))
	}

	token := auth.NewAuthToken([]byte(cfg.AuthTokenKey))

	gateway := chapa.NewClient(cfg.ChapaBaseURL, cfg.ChapaSecretKey, cfg.CallbackBaseURL, cfg.Currency)

	// dependency injection
	orderRepo := repository.NewOrderRepository(db)
	cartRepo := repository.NewCartRepository(db)
	userRepo := repository.NewUserRepository(db)

	orderService := service.NewOrderService(orderRepo, cartRepo, userRepo, gateway, cfg.Currency, logger)
	orderHandler := handler.NewOrderHandler(orderService)

	paymentService := service.NewPaymentService(orderRepo, gateway, !cfg.IsProduction(), logger)
	paymentHandler := handler.NewPaymentHandler(paymentService, cfg.WebhookSecret, cfg.SkipSignatureCheck, logger)

	// reconcile stale pending orders in the background
	processor := worker.NewOrderProcessor(orderService, paymentService, cfg.ReconcileInterval, logger)
	go processor.ProcessOrders(ctx)

	router := chi.NewRouter()

	router.Use(middleware.Logging(logger))

	router.Post("/api/payments/webhook/chapa", paymentHandler.ChapaWebhook())

	// routes that require authentication
	router.Group(func(group chi.Router) {
		group.Use(middleware.Auth(token))
		group.Post("/api/orders/checkout", orderHandler.Checkout())
		group.Get("/api/orders", orderHandler.ListMyOrders())
		group.Post("/api/orders/{orderID}/retry-payment", orderHandler.RetryPayment())
		group.Get("/api/payments/verify/{orderID}", paymentHandler.VerifyPayment())
	})

	logger.Info("Running server", zap.String("addr", cfg.ServerAddr))

	if err := http.ListenAndServe(cfg.ServerAddr, router); err != nil {
		logger.Fatal("Error starting server", zap.Error(err))
	}
}
