package crdb

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/event-seat-inventory/internal/domain"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const seatColumns = "id, tenant_id, event_id, section, row_no, seat_number, tier, price_minor, status, hold_id, holder_ref, hold_expiry"

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSeat(row rowScanner) (domain.Seat, error) {
	var s domain.Seat
	err := row.Scan(&s.ID, &s.TenantID, &s.EventID, &s.Section, &s.Row, &s.Number, &s.Tier, &s.PriceMinor, &s.Status, &s.HoldID, &s.HolderRef, &s.HoldExpiry)
	return s, err
}

// ReserveSeat takes the seat for hold in a single conditional update: the
// seat must be AVAILABLE or carry a hold that lapsed before now. The hold is
// returned with the seat's price filled in.
func (r *Repository) ReserveSeat(ctx context.Context, hold domain.Hold, now time.Time) (domain.Hold, error) {
	if hold.SeatID == nil {
		return domain.Hold{}, domain.Validationf("seat hold without seat id")
	}
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		taken, err := takeSeat(ctx, tx, &hold, now)
		if err != nil {
			return err
		}
		if !taken {
			exists, err := seatExists(ctx, tx, hold.TenantID, hold.EventID, *hold.SeatID)
			if err != nil {
				return err
			}
			if !exists {
				return domain.NotFoundf("seat %s not found", hold.SeatID)
			}
			return domain.Conflictf("seat %s is not available", hold.SeatID)
		}
		return r.recordSeatHold(ctx, tx, hold, now)
	})
	if err != nil {
		return domain.Hold{}, err
	}
	return hold, nil
}

// ReserveSeats takes every seat of holds in one transaction. When any seat is
// missing or taken nothing is held and the error lists each such seat.
func (r *Repository) ReserveSeats(ctx context.Context, holds []domain.Hold, now time.Time) ([]domain.Hold, error) {
	out := make([]domain.Hold, len(holds))
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		var unavailable []domain.UnavailableSeat
		for i, hold := range holds {
			if hold.SeatID == nil {
				return domain.Validationf("seat hold without seat id")
			}
			taken, err := takeSeat(ctx, tx, &hold, now)
			if err != nil {
				return err
			}
			if !taken {
				reason := domain.SeatReasonUnavailable
				exists, err := seatExists(ctx, tx, hold.TenantID, hold.EventID, *hold.SeatID)
				if err != nil {
					return err
				}
				if !exists {
					reason = domain.SeatReasonNotFound
				}
				unavailable = append(unavailable, domain.UnavailableSeat{SeatID: *hold.SeatID, Reason: reason})
				continue
			}
			out[i] = hold
		}
		if len(unavailable) > 0 {
			return &domain.SeatsUnavailableError{Seats: unavailable}
		}
		for _, hold := range out {
			if err := r.recordSeatHold(ctx, tx, hold, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// takeSeat points the seat at hold when it is free and fills in its price.
// It reports false when no row matched.
func takeSeat(ctx context.Context, tx pgx.Tx, hold *domain.Hold, now time.Time) (bool, error) {
	err := tx.QueryRow(ctx, `
		UPDATE seats SET status = 'HELD', hold_id = $4, holder_ref = $5, hold_expiry = $6
		WHERE id = $1 AND tenant_id = $2 AND event_id = $3
		  AND (status = 'AVAILABLE' OR (status = 'HELD' AND hold_expiry < $7))
		RETURNING price_minor
	`, *hold.SeatID, hold.TenantID, hold.EventID, hold.ID, hold.HolderRef, hold.ExpiresAt, now).Scan(&hold.UnitPriceMinor)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (r *Repository) recordSeatHold(ctx context.Context, tx pgx.Tx, hold domain.Hold, now time.Time) error {
	// The previous holder of a lapsed seat loses it here, not at sweep time.
	if _, err := tx.Exec(ctx, `
		UPDATE holds SET status = 'EXPIRED'
		WHERE tenant_id = $1 AND seat_id = $2 AND status = 'HELD' AND expires_at < $3
	`, hold.TenantID, *hold.SeatID, now); err != nil {
		return err
	}
	if err := insertHold(ctx, tx, hold); err != nil {
		return err
	}
	return r.insertEvent(ctx, tx, "hold", hold.ID, EventHoldCreated, holdEvent(hold))
}

func seatExists(ctx context.Context, q pgx.Tx, tenantID, eventID, seatID uuid.UUID) (bool, error) {
	var exists bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM seats WHERE id = $1 AND tenant_id = $2 AND event_id = $3)
	`, seatID, tenantID, eventID).Scan(&exists)
	return exists, err
}

func (r *Repository) GetSeat(ctx context.Context, tenantID, eventID, seatID uuid.UUID) (domain.Seat, error) {
	seat, err := scanSeat(r.pool.QueryRow(ctx, `
		SELECT `+seatColumns+` FROM seats WHERE id = $1 AND tenant_id = $2 AND event_id = $3
	`, seatID, tenantID, eventID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Seat{}, domain.NotFoundf("seat %s not found", seatID)
	}
	return seat, err
}

// BlockSeat withdraws a free seat from sale. Lapsed holds count as free.
func (r *Repository) BlockSeat(ctx context.Context, tenantID, eventID, seatID uuid.UUID, now time.Time) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE seats SET status = 'BLOCKED', hold_id = NULL, holder_ref = NULL, hold_expiry = NULL
			WHERE id = $1 AND tenant_id = $2 AND event_id = $3
			  AND (status = 'AVAILABLE' OR (status = 'HELD' AND hold_expiry < $4))
		`, seatID, tenantID, eventID, now)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return seatTransitionError(ctx, tx, tenantID, eventID, seatID, "blocked")
		}
		return nil
	})
}

func (r *Repository) UnblockSeat(ctx context.Context, tenantID, eventID, seatID uuid.UUID) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE seats SET status = 'AVAILABLE'
			WHERE id = $1 AND tenant_id = $2 AND event_id = $3 AND status = 'BLOCKED'
		`, seatID, tenantID, eventID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return seatTransitionError(ctx, tx, tenantID, eventID, seatID, "unblocked")
		}
		return nil
	})
}

func seatTransitionError(ctx context.Context, tx pgx.Tx, tenantID, eventID, seatID uuid.UUID, verb string) error {
	exists, err := seatExists(ctx, tx, tenantID, eventID, seatID)
	if err != nil {
		return err
	}
	if !exists {
		return domain.NotFoundf("seat %s not found", seatID)
	}
	return domain.Conflictf("seat %s cannot be %s in its current state", seatID, verb)
}

type SeatFilter struct {
	TenantID uuid.UUID
	EventID  uuid.UUID
	Section  string
	Tier     string
	Status   domain.SeatStatus
	Limit    uint64
	Offset   uint64
}

// statusPredicate matches seats by the status a reader would see at now.
func statusPredicate(status domain.SeatStatus, now time.Time) sq.Sqlizer {
	switch status {
	case domain.SeatAvailable:
		return sq.Or{
			sq.Eq{"status": string(domain.SeatAvailable)},
			sq.And{sq.Eq{"status": string(domain.SeatHeld)}, sq.Lt{"hold_expiry": now}},
		}
	case domain.SeatHeld:
		return sq.And{sq.Eq{"status": string(domain.SeatHeld)}, sq.GtOrEq{"hold_expiry": now}}
	default:
		return sq.Eq{"status": string(status)}
	}
}

func (f SeatFilter) where(now time.Time) sq.And {
	where := sq.And{sq.Eq{"tenant_id": f.TenantID.String(), "event_id": f.EventID.String()}}
	if f.Section != "" {
		where = append(where, sq.Eq{"section": f.Section})
	}
	if f.Tier != "" {
		where = append(where, sq.Eq{"tier": f.Tier})
	}
	if f.Status != "" {
		where = append(where, statusPredicate(f.Status, now))
	}
	return where
}

// ListSeats pages through an event's seats in layout order. Seats whose hold
// lapsed are reported AVAILABLE. The second result is the unpaged match count.
func (r *Repository) ListSeats(ctx context.Context, f SeatFilter, now time.Time) ([]domain.Seat, int, error) {
	where := f.where(now)

	countSQL, countArgs, err := psql.Select("count(*)").From("seats").Where(where).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.pool.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := psql.Select(seatColumns).From("seats").Where(where).OrderBy("section", "row_no", "seat_number")
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	seats, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Seat, error) {
		s, err := scanSeat(row)
		if err != nil {
			return s, err
		}
		if eff := s.EffectiveStatus(now); eff != s.Status {
			s.Status, s.HoldID, s.HolderRef, s.HoldExpiry = eff, nil, nil, nil
		}
		return s, nil
	})
	return seats, total, err
}

// SeatSummary counts an event's seats by the status a reader would see at now.
func (r *Repository) SeatSummary(ctx context.Context, tenantID, eventID uuid.UUID, now time.Time) (map[domain.SeatStatus]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT CASE WHEN status = 'HELD' AND hold_expiry < $3 THEN 'AVAILABLE' ELSE status END AS effective, count(*)
		FROM seats WHERE tenant_id = $1 AND event_id = $2
		GROUP BY effective
	`, tenantID, eventID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summary := map[domain.SeatStatus]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		summary[domain.SeatStatus(status)] = n
	}
	return summary, rows.Err()
}
