package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-pos/meridian-pos/internal/app"
	"github.com/meridian-pos/meridian-pos/internal/auth"
	"github.com/meridian-pos/meridian-pos/internal/catalog/categories"
	"github.com/meridian-pos/meridian-pos/internal/catalog/products"
	"github.com/meridian-pos/meridian-pos/internal/catalog/warehouses"
	"github.com/meridian-pos/meridian-pos/internal/expenses"
	"github.com/meridian-pos/meridian-pos/internal/ledger"
	"github.com/meridian-pos/meridian-pos/internal/observability"
	"github.com/meridian-pos/meridian-pos/internal/platform/cache"
	"github.com/meridian-pos/meridian-pos/internal/platform/db"
	"github.com/meridian-pos/meridian-pos/internal/purchases"
	"github.com/meridian-pos/meridian-pos/internal/rbac"
	"github.com/meridian-pos/meridian-pos/internal/reports"
	"github.com/meridian-pos/meridian-pos/internal/sales"
	"github.com/meridian-pos/meridian-pos/internal/shared"
	"github.com/meridian-pos/meridian-pos/internal/stockaudit"
	"github.com/meridian-pos/meridian-pos/internal/users"
	"github.com/meridian-pos/meridian-pos/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "meridian_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	auditLogger := shared.NewAuditLogger(dbpool)
	approvalRecorder := shared.NewApprovalRecorder(dbpool, logger)
	idempotencyStore := shared.NewIdempotencyStore(dbpool)

	metrics := observability.NewMetrics()

	rbacService := rbac.NewService(dbpool)
	if err := rbacService.Seed(ctx); err != nil {
		logger.Warn("seed roles", slog.Any("error", err))
	}
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(authRepo)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager)

	ledgerRepo := ledger.NewRepository(dbpool)
	ledgerService := ledger.NewService(ledgerRepo, auditLogger, idempotencyStore)
	ledgerService.SetAnomalyRecorder(metrics.RecordStockAnomaly)
	ledgerHandler := ledger.NewHandler(logger, ledgerService, rbacMiddleware)

	auditRepo := stockaudit.NewRepository(dbpool)
	auditService := stockaudit.NewService(auditRepo, approvalRecorder, auditLogger, idempotencyStore)
	auditHandler := stockaudit.NewHandler(logger, auditService, rbacMiddleware)

	purchasesRepo := purchases.NewRepository(dbpool)
	purchasesService := purchases.NewService(purchasesRepo, auditLogger, idempotencyStore)
	purchasesHandler := purchases.NewHandler(logger, purchasesService, rbacMiddleware)

	salesRepo := sales.NewRepository(dbpool)
	salesService := sales.NewService(salesRepo, auditLogger)
	salesHandler := sales.NewHandler(logger, salesService, rbacMiddleware)

	expensesRepo := expenses.NewRepository(dbpool)
	expensesService := expenses.NewService(expensesRepo, auditLogger)
	expensesHandler := expenses.NewHandler(logger, expensesService, rbacMiddleware)

	productsHandler := products.NewHandler(logger, products.NewService(products.NewRepository(dbpool)), rbacMiddleware)
	warehousesHandler := warehouses.NewHandler(logger, warehouses.NewService(warehouses.NewRepository(dbpool)), rbacMiddleware)
	categoriesHandler := categories.NewHandler(logger, categories.NewService(categories.NewRepository(dbpool)), rbacMiddleware)

	moneyFormatter, err := reports.NewMoneyFormatter(cfg.Locale, cfg.Currency)
	if err != nil {
		logger.Error("configure money formatting", slog.Any("error", err))
		os.Exit(1)
	}
	reportsCache := reports.NewCache(redisClient, cfg.ReportCacheTTL)
	reportsService := reports.NewService(reports.NewRepository(dbpool), reportsCache, moneyFormatter)
	reportsHandler := reports.NewHandler(logger, reportsService, rbacMiddleware)

	rolesHandler := rbac.NewHandler(logger, rbacService, rbacMiddleware)

	usersRepo := users.NewRepository(dbpool)
	usersService := users.NewService(usersRepo)
	usersHandler := users.NewHandler(logger, usersService, rbacService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, jobsClient, rbacMiddleware, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		SessionManager:    sessionManager,
		CSRFManager:       csrfManager,
		AuthHandler:       authHandler,
		LedgerHandler:     ledgerHandler,
		AuditHandler:      auditHandler,
		PurchasesHandler:  purchasesHandler,
		SalesHandler:      salesHandler,
		ExpensesHandler:   expensesHandler,
		ProductsHandler:   productsHandler,
		WarehousesHandler: warehousesHandler,
		CategoriesHandler: categoriesHandler,
		ReportsHandler:    reportsHandler,
		RolesHandler:      rolesHandler,
		UsersHandler:      usersHandler,
		JobsHandler:       jobsHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
