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

const holdColumns = `id, tenant_id, event_id, kind, seat_id, COALESCE(ticket_class, ''), quantity, holder_ref,
	unit_price_minor, status, COALESCE(release_reason, ''), created_at, expires_at, confirmed_at,
	subtotal_minor, tax_minor, total_minor, tax_rate, currency`

func scanHold(row rowScanner) (domain.Hold, error) {
	var (
		h                    domain.Hold
		subtotal, tax, total *int64
		taxRate, currency    *string
	)
	err := row.Scan(&h.ID, &h.TenantID, &h.EventID, &h.Kind, &h.SeatID, &h.TicketClass, &h.Quantity, &h.HolderRef,
		&h.UnitPriceMinor, &h.Status, &h.ReleaseReason, &h.CreatedAt, &h.ExpiresAt, &h.ConfirmedAt,
		&subtotal, &tax, &total, &taxRate, &currency)
	if err != nil {
		return h, err
	}
	if subtotal != nil && tax != nil && total != nil {
		p := &domain.PriceBreakdown{SubtotalMinor: *subtotal, TaxMinor: *tax, TotalMinor: *total}
		if taxRate != nil {
			if p.TaxRate, err = decimal.NewFromString(*taxRate); err != nil {
				return h, errors.Wrapf(err, "hold %s: tax rate", h.ID)
			}
		}
		if currency != nil {
			p.Currency = *currency
		}
		h.Price = p
	}
	return h, nil
}

func insertHold(ctx context.Context, tx pgx.Tx, h domain.Hold) error {
	var ticketClass *string
	if h.TicketClass != "" {
		ticketClass = &h.TicketClass
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO holds (id, tenant_id, event_id, kind, seat_id, ticket_class, quantity, holder_ref,
			unit_price_minor, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'HELD', $10, $11)
	`, h.ID, h.TenantID, h.EventID, string(h.Kind), h.SeatID, ticketClass, h.Quantity, h.HolderRef,
		h.UnitPriceMinor, h.CreatedAt, h.ExpiresAt)
	return err
}

// holdPayload is the outbox body of hold lifecycle events.
type holdPayload struct {
	TenantID uuid.UUID `json:"tenant_id"`
	domain.Hold
}

func holdEvent(h domain.Hold) holdPayload {
	return holdPayload{TenantID: h.TenantID, Hold: h}
}

func (r *Repository) GetHold(ctx context.Context, tenantID, holdID uuid.UUID) (domain.Hold, error) {
	h, err := scanHold(r.pool.QueryRow(ctx, `
		SELECT `+holdColumns+` FROM holds WHERE id = $1 AND tenant_id = $2
	`, holdID, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Hold{}, domain.NotFoundf("hold %s not found", holdID)
	}
	return h, err
}

// ConfirmHold moves a live hold to CONFIRMED and stores its price. The hold
// row, and for seat holds the seat row, must still be HELD by this hold and
// unexpired at now; otherwise the confirmation is a conflict.
func (r *Repository) ConfirmHold(ctx context.Context, hold domain.Hold, price domain.PriceBreakdown, now time.Time) (domain.Hold, error) {
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE holds SET status = 'CONFIRMED', confirmed_at = $4,
				subtotal_minor = $5, tax_minor = $6, total_minor = $7, tax_rate = $8, currency = $9
			WHERE id = $1 AND tenant_id = $2 AND holder_ref = $3 AND status = 'HELD' AND expires_at >= $4
		`, hold.ID, hold.TenantID, hold.HolderRef, now,
			price.SubtotalMinor, price.TaxMinor, price.TotalMinor, price.TaxRate.String(), price.Currency)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.Conflictf("hold %s is no longer held", hold.ID)
		}

		switch hold.Kind {
		case domain.UnitSeat:
			tag, err = tx.Exec(ctx, `
				UPDATE seats SET status = 'CONFIRMED', hold_expiry = NULL
				WHERE id = $1 AND tenant_id = $2 AND hold_id = $3 AND status = 'HELD'
			`, hold.SeatID, hold.TenantID, hold.ID)
		case domain.UnitTicketClass:
			tag, err = tx.Exec(ctx, `
				UPDATE ticket_classes SET held = held - $4
				WHERE tenant_id = $1 AND event_id = $2 AND name = $3 AND held >= $4
			`, hold.TenantID, hold.EventID, hold.TicketClass, hold.Quantity)
		default:
			return domain.Validationf("hold %s has unknown kind %q", hold.ID, hold.Kind)
		}
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.Conflictf("inventory for hold %s no longer belongs to it", hold.ID)
		}

		hold.Status = domain.HoldConfirmed
		hold.ConfirmedAt = &now
		hold.Price = &price
		return r.insertEvent(ctx, tx, "hold", hold.ID, EventHoldConfirmed, holdEvent(hold))
	})
	if err != nil {
		return domain.Hold{}, err
	}
	return hold, nil
}

// ReleaseHold gives a HELD hold's units back. A hold that is no longer HELD
// is reported as a conflict so the caller can re-read and decide.
func (r *Repository) ReleaseHold(ctx context.Context, hold domain.Hold, reason string) (domain.Hold, error) {
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE holds SET status = 'RELEASED', release_reason = $3
			WHERE id = $1 AND tenant_id = $2 AND status = 'HELD'
		`, hold.ID, hold.TenantID, reason)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.Conflictf("hold %s is no longer held", hold.ID)
		}

		switch hold.Kind {
		case domain.UnitSeat:
			// The seat may already belong to someone else after a lapse.
			_, err = tx.Exec(ctx, `
				UPDATE seats SET status = 'AVAILABLE', hold_id = NULL, holder_ref = NULL, hold_expiry = NULL
				WHERE id = $1 AND tenant_id = $2 AND hold_id = $3 AND status = 'HELD'
			`, hold.SeatID, hold.TenantID, hold.ID)
		case domain.UnitTicketClass:
			tag, err = tx.Exec(ctx, `
				UPDATE ticket_classes SET sold = sold - $4, held = held - $4
				WHERE tenant_id = $1 AND event_id = $2 AND name = $3 AND held >= $4
			`, hold.TenantID, hold.EventID, hold.TicketClass, hold.Quantity)
			if err == nil && tag.RowsAffected() == 0 {
				return domain.Conflictf("ticket class %q holds fewer than %d units for hold %s", hold.TicketClass, hold.Quantity, hold.ID)
			}
		}
		if err != nil {
			return err
		}

		hold.Status = domain.HoldReleased
		hold.ReleaseReason = reason
		return r.insertEvent(ctx, tx, "hold", hold.ID, EventHoldReleased, holdEvent(hold))
	})
	if err != nil {
		return domain.Hold{}, err
	}
	return hold, nil
}

// SweepExpired frees every unit of the event whose hold lapsed before now and
// marks those holds EXPIRED. It returns the number of units freed.
func (r *Repository) SweepExpired(ctx context.Context, tenantID, eventID uuid.UUID, now time.Time) (int, error) {
	freed := 0
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		freed = 0
		tag, err := tx.Exec(ctx, `
			UPDATE seats SET status = 'AVAILABLE', hold_id = NULL, holder_ref = NULL, hold_expiry = NULL
			WHERE tenant_id = $1 AND event_id = $2 AND status = 'HELD' AND hold_expiry < $3
		`, tenantID, eventID, now)
		if err != nil {
			return err
		}
		freed += int(tag.RowsAffected())

		if _, err := tx.Exec(ctx, `
			UPDATE holds SET status = 'EXPIRED'
			WHERE tenant_id = $1 AND event_id = $2 AND kind = 'seat' AND status = 'HELD' AND expires_at < $3
		`, tenantID, eventID, now); err != nil {
			return err
		}

		units, err := reclaimExpiredClassHolds(ctx, tx, tenantID, eventID, "", now)
		if err != nil {
			return err
		}
		freed += units

		if freed == 0 {
			return nil
		}
		return r.insertEvent(ctx, tx, "event", eventID, EventHoldsExpired, map[string]interface{}{
			"tenant_id": tenantID,
			"event_id":  eventID,
			"freed":     freed,
			"swept_at":  now,
		})
	})
	return freed, err
}

// ListEventsWithExpiredHolds finds events that still have lapsed HELD holds.
func (r *Repository) ListEventsWithExpiredHolds(ctx context.Context, now time.Time, limit int) ([]domain.EventRef, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT tenant_id, event_id FROM holds
		WHERE status = 'HELD' AND expires_at < $1
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.EventRef, error) {
		var ref domain.EventRef
		err := row.Scan(&ref.TenantID, &ref.EventID)
		return ref, err
	})
}
