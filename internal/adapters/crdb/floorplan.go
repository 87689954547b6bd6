package crdb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/event-seat-inventory/internal/domain"
)

const (
	seatInsertChunk   = 500
	ReasonRegenerated = "regenerated"
)

// ReplaceFloorPlan swaps an event's seats and floor-plan config for cfg and
// seats in one transaction. The event's seat rows are locked first. Live seat
// holds (CONFIRMED, or HELD and unexpired at now) make the call fail with a
// destructive-operation error unless force is set, in which case they are
// released with reason "regenerated". It returns how many live holds were
// released.
func (r *Repository) ReplaceFloorPlan(ctx context.Context, cfg domain.FloorPlanConfig, seats []domain.Seat, force bool, now time.Time) (int, error) {
	definition, err := json.Marshal(cfg.Definition)
	if err != nil {
		return 0, errors.Wrap(err, "encode floor plan definition")
	}
	tierCounts, err := json.Marshal(cfg.TierCounts)
	if err != nil {
		return 0, errors.Wrap(err, "encode tier counts")
	}

	invalidated := 0
	err = r.WithTx(ctx, func(tx pgx.Tx) error {
		invalidated = 0
		rows, err := tx.Query(ctx, `
			SELECT id FROM seats WHERE tenant_id = $1 AND event_id = $2 FOR UPDATE
		`, cfg.TenantID, cfg.EventID)
		if err != nil {
			return err
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		var live int
		if err := tx.QueryRow(ctx, `
			SELECT count(*) FROM holds
			WHERE tenant_id = $1 AND event_id = $2 AND kind = 'seat'
			  AND (status = 'CONFIRMED' OR (status = 'HELD' AND expires_at >= $3))
		`, cfg.TenantID, cfg.EventID, now).Scan(&live); err != nil {
			return err
		}
		if live > 0 && !force {
			return domain.DestructiveOperationf("event %s has %d live seat holds", cfg.EventID, live)
		}

		if live > 0 {
			tag, err := tx.Exec(ctx, `
				UPDATE holds SET status = 'RELEASED', release_reason = $4
				WHERE tenant_id = $1 AND event_id = $2 AND kind = 'seat'
				  AND (status = 'CONFIRMED' OR (status = 'HELD' AND expires_at >= $3))
			`, cfg.TenantID, cfg.EventID, now, ReasonRegenerated)
			if err != nil {
				return err
			}
			invalidated = int(tag.RowsAffected())
		}
		if _, err := tx.Exec(ctx, `
			UPDATE holds SET status = 'EXPIRED'
			WHERE tenant_id = $1 AND event_id = $2 AND kind = 'seat' AND status = 'HELD'
		`, cfg.TenantID, cfg.EventID); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM seats WHERE tenant_id = $1 AND event_id = $2`, cfg.TenantID, cfg.EventID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM floor_plan_configs WHERE tenant_id = $1 AND event_id = $2`, cfg.TenantID, cfg.EventID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO floor_plan_configs (tenant_id, event_id, definition, tier_counts, total_seats, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, cfg.TenantID, cfg.EventID, definition, tierCounts, cfg.TotalSeats, cfg.CreatedAt); err != nil {
			return err
		}
		if err := insertSeats(ctx, tx, seats); err != nil {
			return err
		}

		return r.insertEvent(ctx, tx, "event", cfg.EventID, EventSeatsRegenerated, map[string]interface{}{
			"tenant_id":         cfg.TenantID,
			"event_id":          cfg.EventID,
			"tier_counts":       cfg.TierCounts,
			"total_seats":       cfg.TotalSeats,
			"invalidated_holds": invalidated,
		})
	})
	return invalidated, err
}

// insertSeats writes seats with multi-row inserts of at most seatInsertChunk rows.
func insertSeats(ctx context.Context, tx pgx.Tx, seats []domain.Seat) error {
	for start := 0; start < len(seats); start += seatInsertChunk {
		end := start + seatInsertChunk
		if end > len(seats) {
			end = len(seats)
		}
		q := psql.Insert("seats").Columns("id", "tenant_id", "event_id", "section", "row_no", "seat_number", "tier", "price_minor", "status")
		for _, s := range seats[start:end] {
			q = q.Values(s.ID, s.TenantID, s.EventID, s.Section, s.Row, s.Number, s.Tier, s.PriceMinor, string(s.Status))
		}
		query, args, err := q.ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return errors.Wrapf(err, "insert seats %d..%d", start, end)
		}
	}
	return nil
}

func (r *Repository) GetFloorPlanConfig(ctx context.Context, tenantID, eventID uuid.UUID) (domain.FloorPlanConfig, error) {
	cfg := domain.FloorPlanConfig{TenantID: tenantID, EventID: eventID}
	var definition, tierCounts []byte
	err := r.pool.QueryRow(ctx, `
		SELECT definition, tier_counts, total_seats, created_at
		FROM floor_plan_configs WHERE tenant_id = $1 AND event_id = $2
	`, tenantID, eventID).Scan(&definition, &tierCounts, &cfg.TotalSeats, &cfg.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.FloorPlanConfig{}, domain.NotFoundf("event %s has no floor plan", eventID)
	}
	if err != nil {
		return domain.FloorPlanConfig{}, err
	}
	if err := json.Unmarshal(definition, &cfg.Definition); err != nil {
		return domain.FloorPlanConfig{}, errors.Wrap(err, "decode floor plan definition")
	}
	if err := json.Unmarshal(tierCounts, &cfg.TierCounts); err != nil {
		return domain.FloorPlanConfig{}, errors.Wrap(err, "decode tier counts")
	}
	cfg.Definition.TenantID = tenantID
	cfg.Definition.EventID = eventID
	return cfg, nil
}
