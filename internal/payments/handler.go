// Package payments applies payment results from the payment subsystem to holds.
package payments

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/event-seat-inventory/internal/domain"
	"github.com/robertarktes/event-seat-inventory/internal/observability"
	"github.com/robertarktes/event-seat-inventory/internal/reservation"
)

type Applier interface {
	ApplyPayment(ctx context.Context, p reservation.PaymentResult) (domain.Hold, error)
}

type Handler struct {
	engine Applier
	logger observability.Logger
}

func NewHandler(engine Applier, logger observability.Logger) *Handler {
	return &Handler{engine: engine, logger: logger}
}

// Run handles deliveries until the channel closes or ctx ends.
func (h *Handler) Run(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			h.Handle(ctx, d)
		}
	}
}

// Handle applies one delivery. Messages that can never succeed (malformed,
// unknown hold, hold in a final state) are acked and dropped; anything else
// is requeued.
func (h *Handler) Handle(ctx context.Context, d amqp.Delivery) {
	log := h.logger.WithField("message_id", d.MessageId).WithField("routing_key", d.RoutingKey)

	result, err := decode(d)
	if err == nil {
		var hold domain.Hold
		hold, err = h.engine.ApplyPayment(ctx, result)
		if err == nil {
			log.WithField("hold_id", hold.ID).Info("payment applied, hold ", hold.Status)
		}
	}

	switch {
	case err == nil:
		_ = d.Ack(false)
	case permanent(err):
		log.Warn("payment result dropped: ", err)
		_ = d.Ack(false)
	default:
		log.Error("payment result requeued: ", err)
		_ = d.Nack(false, true)
	}
}

func decode(d amqp.Delivery) (reservation.PaymentResult, error) {
	var p reservation.PaymentResult
	if err := json.Unmarshal(d.Body, &p); err != nil {
		return p, domain.Validationf("malformed payment result: %v", err)
	}
	if p.Status == "" {
		p.Status = reservation.PaymentStatus(strings.TrimPrefix(d.RoutingKey, "payment."))
	}
	if err := domain.ValidateStruct(p); err != nil {
		return p, err
	}
	return p, nil
}

func permanent(err error) bool {
	return errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrNotFound) ||
		(errors.Is(err, domain.ErrConflict) && !errors.Is(err, domain.ErrSerializationFailure))
}
