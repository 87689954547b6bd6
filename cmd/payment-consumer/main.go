package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/event-seat-inventory/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/event-seat-inventory/internal/adapters/mongo"
	"github.com/robertarktes/event-seat-inventory/internal/adapters/rabbit"
	"github.com/robertarktes/event-seat-inventory/internal/config"
	"github.com/robertarktes/event-seat-inventory/internal/observability"
	"github.com/robertarktes/event-seat-inventory/internal/payments"
	"github.com/robertarktes/event-seat-inventory/internal/reservation"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
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

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	auditLog := mongoadapter.NewAuditLogger(mongoClient.Database(cfg.MongoDB), logger)

	engine := reservation.NewEngine(repo, auditLog, logger, reservation.Options{
		DefaultTTL: cfg.HoldTTL,
		MaxTTL:     cfg.MaxHoldTTL,
		Currency:   cfg.Currency,
	})

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	consumer, err := rabbit.NewConsumer(conn, cfg.PaymentQueue, rabbit.PaymentRoutingKeys)
	if err != nil {
		log.Fatalf("failed to create consumer: %v", err)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deliveries, err := consumer.Consume(ctx)
	if err != nil {
		log.Fatalf("failed to consume %s: %v", cfg.PaymentQueue, err)
	}

	handler := payments.NewHandler(engine, logger)
	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.Run(ctx, deliveries)
	}()
	logger.WithField("queue", cfg.PaymentQueue).Info("payment consumer started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-done:
		logger.Warn("delivery channel closed")
	}
	logger.Info("Shutdown payment consumer")
	cancel()
	<-done
}
