package reservation

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/event-seat-inventory/internal/domain"
	"github.com/robertarktes/event-seat-inventory/internal/pricing"
)

// Settings loads the event's persisted settings, or the engine defaults when
// the event has none.
func (e *Engine) Settings(ctx context.Context, tenantID, eventID uuid.UUID) (domain.EventSettings, error) {
	s, err := e.store.GetEventSettings(ctx, tenantID, eventID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.EventSettings{
			TenantID: tenantID,
			EventID:  eventID,
			HoldTTL:  e.opts.DefaultTTL,
			Currency: e.opts.Currency,
		}, nil
	}
	if err != nil {
		return domain.EventSettings{}, err
	}
	if s.HoldTTL <= 0 {
		s.HoldTTL = e.opts.DefaultTTL
	}
	if s.Currency == "" {
		s.Currency = e.opts.Currency
	}
	return s, nil
}

func (e *Engine) UpdateSettings(ctx context.Context, s domain.EventSettings) (domain.EventSettings, error) {
	if err := pricing.ValidateTaxRate(s.TaxRate); err != nil {
		return domain.EventSettings{}, err
	}
	if s.HoldTTL < 0 || s.HoldTTL > e.opts.MaxTTL {
		return domain.EventSettings{}, domain.Validationf("hold ttl must be within 0..%s", e.opts.MaxTTL)
	}
	s.HoldTTL = s.HoldTTL.Truncate(time.Second)
	s.UpdatedAt = e.opts.Now()
	if err := e.store.UpsertEventSettings(ctx, s); err != nil {
		return domain.EventSettings{}, err
	}
	return s, nil
}
