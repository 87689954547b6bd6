// Package regeneration replaces an event's seat inventory with the seats of a
// new floor-plan definition.
package regeneration

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/event-seat-inventory/internal/domain"
	"github.com/robertarktes/event-seat-inventory/internal/floorplan"
	"github.com/robertarktes/event-seat-inventory/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Store interface {
	ReplaceFloorPlan(ctx context.Context, cfg domain.FloorPlanConfig, seats []domain.Seat, force bool, now time.Time) (int, error)
	GetFloorPlanConfig(ctx context.Context, tenantID, eventID uuid.UUID) (domain.FloorPlanConfig, error)
}

// Catalog is the event directory that decides which tenant owns an event.
type Catalog interface {
	EventExists(ctx context.Context, tenantID, eventID uuid.UUID) (bool, error)
	UpdateSeatSummary(ctx context.Context, tenantID, eventID uuid.UUID, counts []domain.TierCount, total int) error
}

type AuditLog interface {
	LogRegeneration(ctx context.Context, cfg domain.FloorPlanConfig, invalidated int, force bool) error
}

type Result struct {
	TierCounts       []domain.TierCount `json:"tier_counts"`
	TotalSeats       int                `json:"total_seats"`
	InvalidatedHolds int                `json:"invalidated_holds"`
	Seats            []domain.Seat      `json:"-"`
}

type Coordinator struct {
	store     Store
	catalog   Catalog
	audit     AuditLog
	densities floorplan.Densities
	maxSeats  int
	logger    observability.Logger
	now       func() time.Time
	tracer    trace.Tracer
}

func NewCoordinator(store Store, catalog Catalog, audit AuditLog, densities floorplan.Densities, logger observability.Logger, now func() time.Time) *Coordinator {
	if now == nil {
		now = time.Now
	}
	return &Coordinator{
		store:     store,
		catalog:   catalog,
		audit:     audit,
		densities: densities,
		maxSeats:  domain.MaxCapacity,
		logger:    logger,
		now:       now,
		tracer:    otel.Tracer("regeneration"),
	}
}

// WithMaxCapacity lowers the largest capacity Regenerate accepts. Values
// outside 1..domain.MaxCapacity are ignored.
func (c *Coordinator) WithMaxCapacity(n int) *Coordinator {
	if n > 0 && n <= domain.MaxCapacity {
		c.maxSeats = n
	}
	return c
}

// Regenerate validates def, generates its seats and swaps them in for the
// event's current seats. Live holds block the swap unless force is set.
// Either the whole new layout is stored or nothing changes.
func (c *Coordinator) Regenerate(ctx context.Context, def domain.FloorPlanDefinition, force bool) (res Result, err error) {
	ctx, span := c.tracer.Start(ctx, "Coordinator.Regenerate", trace.WithAttributes(
		attribute.String("tenant_id", def.TenantID.String()),
		attribute.String("event_id", def.EventID.String()),
		attribute.Bool("force", force),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if def.Capacity > c.maxSeats {
		return Result{}, domain.Validationf("capacity %d exceeds the limit of %d seats", def.Capacity, c.maxSeats)
	}
	layout, err := floorplan.Plan(def, c.densities)
	if err != nil {
		return Result{}, err
	}

	if c.catalog != nil {
		ok, err := c.catalog.EventExists(ctx, def.TenantID, def.EventID)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			return Result{}, domain.NotFoundf("event %s not found", def.EventID)
		}
	}

	now := c.now()
	cfg := domain.FloorPlanConfig{
		TenantID:   def.TenantID,
		EventID:    def.EventID,
		Definition: def,
		TierCounts: layout.TierCounts,
		TotalSeats: len(layout.Seats),
		CreatedAt:  now,
	}
	invalidated, err := c.store.ReplaceFloorPlan(ctx, cfg, layout.Seats, force, now)
	if err != nil {
		return Result{}, err
	}
	observability.SeatsGenerated.Add(float64(len(layout.Seats)))

	log := c.logger.WithField("event_id", def.EventID).WithField("total_seats", cfg.TotalSeats)
	if invalidated > 0 {
		log = log.WithField("invalidated_holds", invalidated)
	}
	log.Info("floor plan regenerated")

	if c.catalog != nil {
		if err := c.catalog.UpdateSeatSummary(ctx, def.TenantID, def.EventID, cfg.TierCounts, cfg.TotalSeats); err != nil {
			log.Warn("catalog seat summary not updated: ", err)
		}
	}
	if c.audit != nil {
		if err := c.audit.LogRegeneration(ctx, cfg, invalidated, force); err != nil {
			log.Warn("audit log failed: ", err)
		}
	}

	return Result{
		TierCounts:       cfg.TierCounts,
		TotalSeats:       cfg.TotalSeats,
		InvalidatedHolds: invalidated,
		Seats:            layout.Seats,
	}, nil
}

func (c *Coordinator) Current(ctx context.Context, tenantID, eventID uuid.UUID) (domain.FloorPlanConfig, error) {
	return c.store.GetFloorPlanConfig(ctx, tenantID, eventID)
}
