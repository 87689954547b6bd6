package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-co-op/gocron/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/event-seat-inventory/internal/adapters/crdb"
	"github.com/robertarktes/event-seat-inventory/internal/config"
	"github.com/robertarktes/event-seat-inventory/internal/expiry"
	"github.com/robertarktes/event-seat-inventory/internal/observability"
	"github.com/robertarktes/event-seat-inventory/internal/reservation"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger(cfg.LogLevel)

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	// Sweeps only write inventory and outbox rows; audit entries are for
	// confirmations and releases made by clients.
	engine := reservation.NewEngine(repo, nil, logger, reservation.Options{
		DefaultTTL: cfg.HoldTTL,
		MaxTTL:     cfg.MaxHoldTTL,
		Currency:   cfg.Currency,
	})
	sweeper := expiry.NewSweeper(repo, engine, cfg.SweepParallel, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Fatalf("failed to create scheduler: %v", err)
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(cfg.SweepInterval),
		gocron.NewTask(func() {
			n, err := sweeper.RunOnce(ctx)
			if err != nil && ctx.Err() == nil {
				logger.Error("expiry sweep failed: ", err)
				return
			}
			logger.WithField("units", n).Debug("expiry sweep done")
		}),
		gocron.WithName("expiry-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.Fatalf("failed to schedule sweep: %v", err)
	}
	scheduler.Start()
	logger.WithField("interval", cfg.SweepInterval.String()).Info("expiry worker started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown expiry worker")

	cancel()
	if err := scheduler.Shutdown(); err != nil {
		logger.Error("scheduler shutdown: ", err)
	}
}
