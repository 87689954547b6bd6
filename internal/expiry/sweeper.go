// Package expiry returns lapsed holds to inventory in the background. Reads
// already treat lapsed holds as free; the sweep makes that durable and emits
// the holds.expired events.
package expiry

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/event-seat-inventory/internal/domain"
	"github.com/robertarktes/event-seat-inventory/internal/observability"
	"golang.org/x/sync/errgroup"
)

const batchSize = 500

type EventLister interface {
	ListEventsWithExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.EventRef, error)
}

type Engine interface {
	SweepExpired(ctx context.Context, tenantID, eventID uuid.UUID) (int, error)
}

type Sweeper struct {
	events   EventLister
	engine   Engine
	parallel int
	logger   observability.Logger
	now      func() time.Time
}

func NewSweeper(events EventLister, engine Engine, parallel int, logger observability.Logger) *Sweeper {
	if parallel < 1 {
		parallel = 1
	}
	return &Sweeper{events: events, engine: engine, parallel: parallel, logger: logger, now: time.Now}
}

// RunOnce sweeps every event that has lapsed holds, at most parallel events
// at a time. A failing event is logged and does not stop the others.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	refs, err := s.events.ListEventsWithExpiredHolds(ctx, s.now(), batchSize)
	if err != nil {
		return 0, err
	}

	freed := make([]int, len(refs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallel)
	for i, ref := range refs {
		g.Go(func() error {
			n, err := s.engine.SweepExpired(gctx, ref.TenantID, ref.EventID)
			if err != nil {
				s.logger.WithField("tenant_id", ref.TenantID).
					WithField("event_id", ref.EventID).
					Error("sweep failed: ", err)
				return nil
			}
			freed[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	total := 0
	for _, n := range freed {
		total += n
	}
	return total, ctx.Err()
}
