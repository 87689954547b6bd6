// Package outbox relays committed outbox records to the message broker.
package outbox

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/event-seat-inventory/internal/adapters/crdb"
	"github.com/robertarktes/event-seat-inventory/internal/observability"
)

type Repository interface {
	ClaimOutbox(ctx context.Context, limit int, publish func(crdb.OutboxRecord) error) (int, error)
	OldestUnpublished(ctx context.Context) (*time.Time, error)
}

type Broker interface {
	Publish(ctx context.Context, key string, msg amqp.Publishing) error
}

type Publisher struct {
	repo      Repository
	rabbitPub Broker
	logger    observability.Logger
	batch     int
}

func NewPublisher(repo Repository, rabbitPub Broker, logger observability.Logger) *Publisher {
	return &Publisher{repo: repo, rabbitPub: rabbitPub, logger: logger, batch: 100}
}

func (p *Publisher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Drain(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("outbox relay failed: ", err)
			}
		}
	}
}

// Drain publishes batches until the outbox is empty or a publish fails, and
// returns how many records went out.
func (p *Publisher) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := p.repo.ClaimOutbox(ctx, p.batch, func(rec crdb.OutboxRecord) error {
			err := p.rabbitPub.Publish(ctx, rec.EventType, amqp.Publishing{
				MessageId:   rec.DedupeKey,
				ContentType: "application/json",
				Type:        rec.EventType,
				Timestamp:   rec.CreatedAt,
				Body:        rec.Payload,
			})
			if err != nil {
				observability.RabbitPublishRetries.Inc()
				p.logger.WithField("outbox_id", rec.ID).Warn("publish failed: ", err)
			}
			return err
		})
		total += n
		if err != nil {
			return total, err
		}
		if n < p.batch {
			break
		}
	}
	p.recordLag(ctx)
	return total, nil
}

func (p *Publisher) recordLag(ctx context.Context) {
	oldest, err := p.repo.OldestUnpublished(ctx)
	if err != nil {
		p.logger.Warn("outbox lag unknown: ", err)
		return
	}
	if oldest == nil {
		observability.OutboxLag.Set(0)
		return
	}
	observability.OutboxLag.Set(time.Since(*oldest).Seconds())
}
