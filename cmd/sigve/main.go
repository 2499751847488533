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
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/app"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/audit"
	audithttp "github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/audit/http"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/auth"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/gate"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/identity"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/inventory"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/observability"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/orders"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/platform/cache"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/platform/db"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/profiles"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/shared"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/view"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/jobs"
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

	var (
		dbpool      *pgxpool.Pool
		redisClient *redis.Client
	)
	startup, startupCtx := errgroup.WithContext(ctx)
	startup.Go(func() error {
		pool, err := db.New(startupCtx, cfg.PGDSN)
		dbpool = pool
		return err
	})
	startup.Go(func() error {
		client, err := cache.New(startupCtx, cache.Options{Addr: cfg.RedisAddr})
		redisClient = client
		return err
	})
	if err := startup.Wait(); err != nil {
		logger.Error("startup dependencies", slog.Any("error", err))
		if dbpool != nil {
			dbpool.Close()
		}
		if redisClient != nil {
			_ = redisClient.Close()
		}
		os.Exit(1)
	}
	defer dbpool.Close()
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "sigve_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	auditLogger := shared.NewAuditLogger(dbpool)

	identityClient := identity.NewClient(cfg.SupabaseURL, cfg.SupabaseAnonKey, &http.Client{Timeout: cfg.SupabaseTimeout})
	if cfg.SupabaseServiceKey != "" {
		identityClient = identityClient.WithServiceKey(cfg.SupabaseServiceKey)
	} else {
		logger.Warn("SUPABASE_SERVICE_KEY not set, profile provisioning disabled")
	}

	profileRepo := profiles.NewRepository(dbpool)
	profileService := profiles.NewService(profileRepo, identityClient, auditLogger, logger)
	profilesHandler := profiles.NewHandler(logger, profileService, templates, csrfManager)

	authGate := gate.New(identityClient, profileService, logger, metrics, gate.Config{
		LoginPath:        cfg.LoginPath,
		UnauthorizedPath: cfg.UnauthorizedPath,
	})

	authRepo := auth.NewRepository(dbpool)
	authService := auth.NewService(identityClient, profileService, authRepo, logger)
	authHandler := auth.NewHandler(logger, authService, templates, sessionManager, csrfManager)

	inventoryRepo := inventory.NewRepository(dbpool)
	inventoryService := inventory.NewService(inventoryRepo, auditLogger, logger)
	inventoryHandler := inventory.NewHandler(logger, inventoryService, templates, csrfManager, authGate, cfg.LowStockThreshold)

	ordersRepo := orders.NewRepository(dbpool)
	ordersService := orders.NewService(ordersRepo, auditLogger, logger)
	ordersHandler := orders.NewHandler(logger, ordersService, inventoryService, templates, csrfManager)

	auditService := audit.NewService(audit.NewRepository(dbpool))
	auditHandler := audithttp.NewHandler(logger, auditService, templates, csrfManager)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, jobClient, cfg.LowStockThreshold, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		Templates:        templates,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		Gate:             authGate,
		AuthHandler:      authHandler,
		ProfilesHandler:  profilesHandler,
		InventoryHandler: inventoryHandler,
		OrdersHandler:    ordersHandler,
		AuditHandler:     auditHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
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
