package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ms-marketplace/internal/analytics"
	analytics_api "ms-marketplace/internal/analytics/api"
	"ms-marketplace/internal/auth"
	"ms-marketplace/internal/booking"
	"ms-marketplace/internal/booking/booking_api"
	booking_db "ms-marketplace/internal/booking/db"
	"ms-marketplace/internal/config"
	"ms-marketplace/internal/database"
	"ms-marketplace/internal/directory"
	inventory_db "ms-marketplace/internal/inventory/db"
	"ms-marketplace/internal/inventory/inventory_api"
	inventory "ms-marketplace/internal/inventory/service"
	"ms-marketplace/internal/kafka"
	"ms-marketplace/internal/ledger"
	ledger_db "ms-marketplace/internal/ledger/db"
	"ms-marketplace/internal/ledger/ledger_api"
	ledger_redis "ms-marketplace/internal/ledger/redis"
	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/metrics"
	"ms-marketplace/internal/models"
	"ms-marketplace/internal/reconcile"
	"ms-marketplace/internal/reconcile/reconcile_api"
	"ms-marketplace/internal/reservation"
	"ms-marketplace/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun"
)

// publisher is what the services need from the event bus.
type publisher interface {
	booking.EventPublisher
	ledger.EventPublisher
	Close() error
}

func setupPublisher(ctx context.Context, cfg config.KafkaConfig, log *logger.Logger) publisher {
	if !cfg.Enabled {
		log.Warn("KAFKA", "Kafka disabled, domain events will be dropped")
		return kafka.NopPublisher{Logger: log}
	}
	log.Info("KAFKA", fmt.Sprintf("Using Kafka brokers %v", cfg.Brokers))
	if cfg.EnsureTopics {
		if err := kafka.EnsureTopicsExist(ctx, cfg.Brokers, models.AllTopics, log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		} else {
			log.Info("KAFKA", "Required topics ensured successfully")
		}
	}
	return kafka.NewProducer(cfg.Brokers, log)
}

func setupVerifier(ctx context.Context, cfg config.AuthConfig, log *logger.Logger) auth.Verifier {
	if cfg.JWTSecret != "" {
		log.Info("AUTH", "Verifying bearer tokens with the shared HMAC secret")
		return auth.HMACVerifier{Secret: []byte(cfg.JWTSecret)}
	}
	if cfg.OIDCIssuer == "" {
		log.Fatal("CONFIG", "Either JWT_SECRET or OIDC_ISSUER must be set")
	}
	v, err := auth.NewOIDCVerifier(ctx, cfg.OIDCIssuer)
	if err != nil {
		log.Fatal("AUTH", fmt.Sprintf("OIDC setup failed: %v", err))
	}
	log.Info("AUTH", fmt.Sprintf("Verifying bearer tokens against %s", cfg.OIDCIssuer))
	return v
}

// setupDirectory returns nil when no directory is configured, in which case
// counterparties show as Unknown.
func setupDirectory(cfg config.DirectoryConfig, rdb *redis.Client, log *logger.Logger) booking.AgencyDirectory {
	if cfg.BaseURL == "" {
		log.Warn("DIRECTORY", "DIRECTORY_URL not set, agency names will show as Unknown")
		return nil
	}
	var tokens directory.TokenSource
	if cfg.TokenURL != "" {
		src := &auth.M2MTokenSource{
			HTTP:         &http.Client{Timeout: cfg.Timeout},
			TokenURL:     cfg.TokenURL,
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Logger:       log,
		}
		if rdb != nil {
			src.Cache = auth.NewRedisTokenCache(rdb)
		}
		tokens = src
	}
	return directory.NewClient(cfg.BaseURL, cfg.Timeout, tokens, log)
}

func health(db *bun.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			utils.WriteJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse("database unreachable", err.Error()))
			return
		}
		utils.WriteSuccess(w, http.StatusOK, "ok", nil)
	}
}

func main() {
	logger := logger.NewLogger("marketplace")
	defer logger.Close()

	logger.Info("APP", "Starting Marketplace Service initialization")

	if err := godotenv.Load(); err != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		logger.Info("CONFIG", "Loaded environment variables from .env file")
	}
	cfg := config.Load()
	ctx := context.Background()

	bunDB, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Prepare(ctx, bunDB, logger); err != nil {
			logger.Fatal("DATABASE", fmt.Sprintf("Schema setup failed: %v", err))
		}
	}

	redisClient, err := auth.InitializeRedis(cfg.Redis, logger)
	if err != nil {
		logger.Warn("REDIS", "Continuing without Redis: ledger locks and token caching disabled")
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	events := setupPublisher(ctx, cfg.Kafka, logger)
	defer events.Close()

	engine := reservation.NewEngine(bunDB, logger, cfg.Reservation.MaxSeatsPerBooking)
	inventoryStore := &inventory_db.DB{Bun: bunDB}
	bookingStore := &booking_db.DB{Bun: bunDB}

	inventoryService := inventory.NewInventoryService(inventoryStore, logger)
	bookingService := booking.NewBookingService(bookingStore, engine, bunDB, events, setupDirectory(cfg.Directory, redisClient, logger), logger)

	var locks ledger.CustomerLocker
	if redisClient != nil {
		locks = ledger_redis.NewCustomerLock(redisClient, logger, cfg.Ledger.LockTTL, cfg.Ledger.LockWait)
	}
	ledgerService := ledger.NewLedgerService(&ledger_db.DB{Bun: bunDB}, bunDB, locks, events, logger, cfg.Ledger.MaxRetries)
	reconciler := reconcile.NewReconciler(inventoryStore, bookingStore, engine, logger, cfg.Reconcile.Settle)

	authn := auth.NewAuthenticator(setupVerifier(ctx, cfg.Auth, logger), cfg.Auth.AgencyClaim, cfg.Auth.RoleClaim, logger)
	inventoryHandler := inventory_api.NewHandler(inventoryService, logger)
	bookingHandler := booking_api.NewHandler(bookingService, logger)
	ledgerHandler := ledger_api.NewHandler(ledgerService, logger)
	reconcileHandler := reconcile_api.NewHandler(reconciler, logger)
	analyticsHandler := analytics_api.NewHandler(analytics.NewService(&analytics.DB{Bun: bunDB}), logger)

	logger.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(metrics.Middleware)
	r.Use(metrics.AccessLog(logger))

	r.Get("/health", health(bunDB))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		// --- Public Routes ---
		r.Group(func(r chi.Router) {
			r.Use(authn.Optional())
			inventoryHandler.PublicRoutes(r)
		})
		logger.Info("ROUTER", "Public marketplace routes registered under /api/ticket-groups")

		// --- Protected Routes ---
		r.Group(func(r chi.Router) {
			r.Use(authn.Required())
			inventoryHandler.Routes(r)
			bookingHandler.Routes(r)
			ledgerHandler.Routes(r)
			reconcileHandler.Routes(r)
			analyticsHandler.RegisterRoutes(r)
		})
		logger.Info("ROUTER", "Protected inventory, booking, ledger, report and admin routes registered")
	})

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("HTTP", fmt.Sprintf("Marketplace Service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	logger.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-stop

	logger.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	} else {
		logger.Info("HTTP", "Marketplace Service shutdown complete")
	}
}
