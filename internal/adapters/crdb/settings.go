package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/event-seat-inventory/internal/domain"
	"github.com/shopspring/decimal"
)

func (r *Repository) GetEventSettings(ctx context.Context, tenantID, eventID uuid.UUID) (domain.EventSettings, error) {
	s := domain.EventSettings{TenantID: tenantID, EventID: eventID}
	var rate string
	var ttlSeconds int
	err := r.pool.QueryRow(ctx, `
		SELECT tax_rate, hold_ttl_seconds, currency, updated_at
		FROM event_settings WHERE tenant_id = $1 AND event_id = $2
	`, tenantID, eventID).Scan(&rate, &ttlSeconds, &s.Currency, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.EventSettings{}, domain.NotFoundf("no settings for event %s", eventID)
	}
	if err != nil {
		return domain.EventSettings{}, err
	}
	if s.TaxRate, err = decimal.NewFromString(rate); err != nil {
		return domain.EventSettings{}, errors.Wrapf(err, "event %s: tax rate", eventID)
	}
	s.HoldTTL = time.Duration(ttlSeconds) * time.Second
	return s, nil
}

func (r *Repository) UpsertEventSettings(ctx context.Context, s domain.EventSettings) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_settings (tenant_id, event_id, tax_rate, hold_ttl_seconds, currency, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, event_id) DO UPDATE SET
			tax_rate = excluded.tax_rate,
			hold_ttl_seconds = excluded.hold_ttl_seconds,
			currency = excluded.currency,
			updated_at = excluded.updated_at
	`, s.TenantID, s.EventID, s.TaxRate.String(), int(s.HoldTTL/time.Second), s.Currency, s.UpdatedAt)
	return err
}
