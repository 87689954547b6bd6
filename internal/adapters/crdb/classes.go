package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/event-seat-inventory/internal/domain"
)

const classColumns = `id, tenant_id, event_id, name, quantity, sold, held, price_minor,
	min_per_order, max_per_order, sales_start_at, sales_end_at, created_at`

func scanTicketClass(row rowScanner) (domain.TicketClass, error) {
	var c domain.TicketClass
	err := row.Scan(&c.ID, &c.TenantID, &c.EventID, &c.Name, &c.Quantity, &c.Sold, &c.Held, &c.PriceMinor,
		&c.MinPerOrder, &c.MaxPerOrder, &c.SalesStartAt, &c.SalesEndAt, &c.CreatedAt)
	return c, err
}

func (r *Repository) CreateTicketClass(ctx context.Context, c domain.TicketClass) (domain.TicketClass, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.Sold, c.Held = 0, 0
	_, err := r.pool.Exec(ctx, `
		INSERT INTO ticket_classes (id, tenant_id, event_id, name, quantity, price_minor,
			min_per_order, max_per_order, sales_start_at, sales_end_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, c.ID, c.TenantID, c.EventID, c.Name, c.Quantity, c.PriceMinor,
		c.MinPerOrder, c.MaxPerOrder, c.SalesStartAt, c.SalesEndAt, c.CreatedAt)
	if isUniqueViolation(err) {
		return domain.TicketClass{}, domain.Conflictf("ticket class %q already exists", c.Name)
	}
	if err != nil {
		return domain.TicketClass{}, err
	}
	return c, nil
}

func (r *Repository) ListTicketClasses(ctx context.Context, tenantID, eventID uuid.UUID) ([]domain.TicketClass, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+classColumns+` FROM ticket_classes
		WHERE tenant_id = $1 AND event_id = $2 ORDER BY created_at, name
	`, tenantID, eventID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.TicketClass, error) {
		return scanTicketClass(row)
	})
}

// ReserveTicketClass claims hold.Quantity units of the named class. Lapsed
// holds on the class are reclaimed first; the increment itself only applies
// while sold + quantity stays within the class quantity.
func (r *Repository) ReserveTicketClass(ctx context.Context, hold domain.Hold, now time.Time) (domain.Hold, error) {
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		class, err := scanTicketClass(tx.QueryRow(ctx, `
			SELECT `+classColumns+` FROM ticket_classes
			WHERE tenant_id = $1 AND event_id = $2 AND name = $3
		`, hold.TenantID, hold.EventID, hold.TicketClass))
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.NotFoundf("ticket class %q not found", hold.TicketClass)
		}
		if err != nil {
			return err
		}
		if err := class.CheckOrder(hold.Quantity, now); err != nil {
			return err
		}

		if _, err := reclaimExpiredClassHolds(ctx, tx, hold.TenantID, hold.EventID, hold.TicketClass, now); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
			UPDATE ticket_classes SET sold = sold + $4, held = held + $4
			WHERE tenant_id = $1 AND event_id = $2 AND name = $3 AND sold + $4 <= quantity
		`, hold.TenantID, hold.EventID, hold.TicketClass, hold.Quantity)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.CapacityExceededf("ticket class %q cannot fit %d more", hold.TicketClass, hold.Quantity)
		}

		hold.UnitPriceMinor = class.PriceMinor
		if err := insertHold(ctx, tx, hold); err != nil {
			return err
		}
		return r.insertEvent(ctx, tx, "hold", hold.ID, EventHoldCreated, holdEvent(hold))
	})
	if err != nil {
		return domain.Hold{}, err
	}
	return hold, nil
}

// reclaimExpiredClassHolds expires lapsed ticket-class holds of the event
// (only of className when set) and returns their units to the counters.
func reclaimExpiredClassHolds(ctx context.Context, tx pgx.Tx, tenantID, eventID uuid.UUID, className string, now time.Time) (int, error) {
	rows, err := tx.Query(ctx, `
		UPDATE holds SET status = 'EXPIRED'
		WHERE tenant_id = $1 AND event_id = $2 AND kind = 'ticket_class' AND status = 'HELD'
		  AND expires_at < $3 AND ($4::TEXT = '' OR ticket_class = $4::TEXT)
		RETURNING ticket_class, quantity
	`, tenantID, eventID, now, className)
	if err != nil {
		return 0, err
	}
	type lapsed struct {
		class    string
		quantity int
	}
	expired, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (lapsed, error) {
		var l lapsed
		err := row.Scan(&l.class, &l.quantity)
		return l, err
	})
	if err != nil {
		return 0, err
	}

	perClass := map[string]int{}
	total := 0
	for _, l := range expired {
		perClass[l.class] += l.quantity
		total += l.quantity
	}
	for name, n := range perClass {
		tag, err := tx.Exec(ctx, `
			UPDATE ticket_classes SET sold = sold - $4, held = held - $4
			WHERE tenant_id = $1 AND event_id = $2 AND name = $3 AND held >= $4
		`, tenantID, eventID, name, n)
		if err != nil {
			return 0, err
		}
		if tag.RowsAffected() == 0 {
			return 0, errors.Newf("ticket class %q: held counter below %d lapsed units", name, n)
		}
	}
	return total, nil
}
