package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/event-seat-inventory/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/event-seat-inventory/internal/adapters/mongo"
	redisadapter "github.com/robertarktes/event-seat-inventory/internal/adapters/redis"
	"github.com/robertarktes/event-seat-inventory/internal/config"
	"github.com/robertarktes/event-seat-inventory/internal/floorplan"
	httphandler "github.com/robertarktes/event-seat-inventory/internal/http"
	"github.com/robertarktes/event-seat-inventory/internal/idempotency"
	"github.com/robertarktes/event-seat-inventory/internal/observability"
	"github.com/robertarktes/event-seat-inventory/internal/rateLimit"
	"github.com/robertarktes/event-seat-inventory/internal/regeneration"
	"github.com/robertarktes/event-seat-inventory/internal/reservation"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger(cfg.LogLevel)

	densities, err := floorplan.ParseDensities(cfg.RowDensity, cfg.DefaultSeatsPerRow)
	if err != nil {
		log.Fatalf("invalid ROW_DENSITY: %v", err)
	}

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	crdbRepo := crdb.NewRepository(pool)

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), time.Minute)
	err = crdbRepo.Migrate(migrateCtx)
	cancelMigrate()
	if err != nil {
		log.Fatalf("failed to migrate schema: %v", err)
	}

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	mongoDB := mongoClient.Database(cfg.MongoDB)
	mongoCatalog := mongoadapter.NewCatalogRepository(mongoDB, logger)
	if err := mongoCatalog.EnsureIndexes(context.Background()); err != nil {
		log.Fatalf("failed to create catalog indexes: %v", err)
	}
	auditLog := mongoadapter.NewAuditLogger(mongoDB, logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	redisCache := redisadapter.NewCache(redisClient)
	idemp := idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), cfg.IdempotencyTTL)
	rl := rateLimit.NewRateLimiter(redisCache)

	engine := reservation.NewEngine(crdbRepo, auditLog, logger, reservation.Options{
		DefaultTTL: cfg.HoldTTL,
		MaxTTL:     cfg.MaxHoldTTL,
		Currency:   cfg.Currency,
	})
	coordinator := regeneration.NewCoordinator(crdbRepo, mongoCatalog, auditLog, densities, logger, time.Now).
		WithMaxCapacity(cfg.MaxCapacity)

	tenant, err := httphandler.NewTenantMiddleware(cfg.JWTPublicKey)
	if err != nil {
		log.Fatalf("failed to setup auth: %v", err)
	}
	if cfg.JWTPublicKey == "" {
		logger.Warn("JWT_PUBLIC_KEY not set, tenant is taken from the X-Tenant-ID header")
	}

	handlers := httphandler.NewHandlers(engine, coordinator, crdbRepo, mongoCatalog, map[string]httphandler.Pinger{
		"crdb":  crdbRepo,
		"mongo": mongoCatalog,
		"redis": redisCache,
	})

	r := httphandler.SetupRouter(handlers, logger, httphandler.RouterConfig{
		Tenant:       tenant,
		RateLimiter:  rl,
		RatePerMin:   cfg.RateLimit,
		Idempotency:  idemp,
		MaxBodyBytes: int64(cfg.MaxBodyBytes),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
