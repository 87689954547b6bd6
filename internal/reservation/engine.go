// Package reservation owns the hold lifecycle: reserve, confirm, release and
// expiry. It never locks anything itself; every transition is a conditional
// update in the Store and the Store's answer is final.
package reservation

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/event-seat-inventory/internal/domain"
	"github.com/robertarktes/event-seat-inventory/internal/observability"
	"github.com/robertarktes/event-seat-inventory/internal/pricing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	ReasonCancelled     = "cancelled"
	ReasonPaymentFailed = "payment_failed"
)

type Store interface {
	ReserveSeat(ctx context.Context, hold domain.Hold, now time.Time) (domain.Hold, error)
	ReserveSeats(ctx context.Context, holds []domain.Hold, now time.Time) ([]domain.Hold, error)
	ReserveTicketClass(ctx context.Context, hold domain.Hold, now time.Time) (domain.Hold, error)
	GetHold(ctx context.Context, tenantID, holdID uuid.UUID) (domain.Hold, error)
	ConfirmHold(ctx context.Context, hold domain.Hold, price domain.PriceBreakdown, now time.Time) (domain.Hold, error)
	ReleaseHold(ctx context.Context, hold domain.Hold, reason string) (domain.Hold, error)
	SweepExpired(ctx context.Context, tenantID, eventID uuid.UUID, now time.Time) (int, error)
	GetEventSettings(ctx context.Context, tenantID, eventID uuid.UUID) (domain.EventSettings, error)
	UpsertEventSettings(ctx context.Context, s domain.EventSettings) error
}

// AuditLog records confirmed and released holds outside the inventory store.
type AuditLog interface {
	LogHold(ctx context.Context, action string, hold domain.Hold) error
}

type Options struct {
	DefaultTTL time.Duration
	MaxTTL     time.Duration
	Currency   string
	Now        func() time.Time
}

type Engine struct {
	store  Store
	audit  AuditLog
	logger observability.Logger
	opts   Options
	tracer trace.Tracer
}

func NewEngine(store Store, audit AuditLog, logger observability.Logger, opts Options) *Engine {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = 5 * time.Minute
	}
	if opts.MaxTTL < opts.DefaultTTL {
		opts.MaxTTL = opts.DefaultTTL
	}
	return &Engine{
		store:  store,
		audit:  audit,
		logger: logger,
		opts:   opts,
		tracer: otel.Tracer("reservation"),
	}
}

type ReserveRequest struct {
	TenantID  uuid.UUID
	EventID   uuid.UUID
	Selector  domain.UnitSelector
	HolderRef string
	// TTL overrides the event's hold TTL when positive.
	TTL time.Duration
}

// Reserve places a hold on one seat or on a quantity of a ticket class.
// Losing a race is reported as a conflict (seat) or capacity exceeded
// (ticket class) and is never retried here.
func (e *Engine) Reserve(ctx context.Context, req ReserveRequest) (hold domain.Hold, err error) {
	kind := req.Selector.Kind()
	ctx, span := e.tracer.Start(ctx, "Engine.Reserve", trace.WithAttributes(
		attribute.String("tenant_id", req.TenantID.String()),
		attribute.String("event_id", req.EventID.String()),
		attribute.String("unit_kind", string(kind)),
	))
	defer func() {
		observability.ReserveOutcomes.WithLabelValues(string(kind), outcome(err)).Inc()
		endSpan(span, err)
	}()

	if req.HolderRef == "" {
		return domain.Hold{}, domain.Validationf("holder_ref is required")
	}
	if err := req.Selector.Validate(); err != nil {
		return domain.Hold{}, err
	}
	settings, err := e.Settings(ctx, req.TenantID, req.EventID)
	if err != nil {
		return domain.Hold{}, err
	}
	ttl, err := e.holdTTL(req.TTL, settings)
	if err != nil {
		return domain.Hold{}, err
	}

	now := e.opts.Now()
	if kind == domain.UnitSeat {
		hold = domain.NewSeatHold(req.TenantID, req.EventID, *req.Selector.SeatID, req.HolderRef, now, ttl)
		hold, err = e.store.ReserveSeat(ctx, hold, now)
	} else {
		hold = domain.NewTicketClassHold(req.TenantID, req.EventID, req.Selector.TicketClass, req.Selector.Quantity, req.HolderRef, now, ttl)
		hold, err = e.store.ReserveTicketClass(ctx, hold, now)
	}
	if err != nil {
		return domain.Hold{}, err
	}

	e.logger.WithField("hold_id", hold.ID).WithField("event_id", hold.EventID).Debug("hold created")
	return hold, nil
}

type ReserveSeatsRequest struct {
	TenantID  uuid.UUID
	EventID   uuid.UUID
	SeatIDs   domain.SeatSelection
	HolderRef string
	TTL       time.Duration
}

// ReserveSeats holds every listed seat for one holder with a shared expiry.
// Either all seats are held or none is, and a *domain.SeatsUnavailableError
// names the seats that blocked the request.
func (e *Engine) ReserveSeats(ctx context.Context, req ReserveSeatsRequest) (holds []domain.Hold, err error) {
	ctx, span := e.tracer.Start(ctx, "Engine.ReserveSeats", trace.WithAttributes(
		attribute.String("tenant_id", req.TenantID.String()),
		attribute.String("event_id", req.EventID.String()),
		attribute.Int("seats", len(req.SeatIDs)),
	))
	defer func() {
		observability.ReserveOutcomes.WithLabelValues(string(domain.UnitSeat), outcome(err)).Inc()
		endSpan(span, err)
	}()

	if req.HolderRef == "" {
		return nil, domain.Validationf("holder_ref is required")
	}
	if err := req.SeatIDs.Validate(); err != nil {
		return nil, err
	}
	settings, err := e.Settings(ctx, req.TenantID, req.EventID)
	if err != nil {
		return nil, err
	}
	ttl, err := e.holdTTL(req.TTL, settings)
	if err != nil {
		return nil, err
	}

	now := e.opts.Now()
	holds = make([]domain.Hold, len(req.SeatIDs))
	for i, seatID := range req.SeatIDs {
		holds[i] = domain.NewSeatHold(req.TenantID, req.EventID, seatID, req.HolderRef, now, ttl)
	}
	holds, err = e.store.ReserveSeats(ctx, holds, now)
	if err != nil {
		return nil, err
	}

	e.logger.WithField("event_id", req.EventID).WithField("seats", len(holds)).Debug("seat holds created")
	return holds, nil
}

func (e *Engine) holdTTL(requested time.Duration, settings domain.EventSettings) (time.Duration, error) {
	ttl := e.opts.DefaultTTL
	if settings.HoldTTL > 0 {
		ttl = settings.HoldTTL
	}
	if requested < 0 {
		return 0, domain.Validationf("ttl must not be negative")
	}
	if requested > 0 {
		ttl = requested
	}
	if ttl > e.opts.MaxTTL {
		return 0, domain.Validationf("ttl %s exceeds the maximum of %s", ttl, e.opts.MaxTTL)
	}
	return ttl, nil
}

// Confirm turns a live hold into a sale and stores its price breakdown.
// Confirming a hold that the same holder already confirmed returns it
// unchanged, so payment callbacks can be retried.
func (e *Engine) Confirm(ctx context.Context, tenantID, holdID uuid.UUID, holderRef string) (hold domain.Hold, err error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Confirm", trace.WithAttributes(attribute.String("hold_id", holdID.String())))
	defer func() {
		observability.HoldTransitions.WithLabelValues("confirm", outcome(err)).Inc()
		endSpan(span, err)
	}()

	hold, err = e.store.GetHold(ctx, tenantID, holdID)
	if err != nil {
		return domain.Hold{}, err
	}
	if hold.HolderRef != holderRef {
		return domain.Hold{}, domain.Conflictf("hold %s belongs to another holder", holdID)
	}

	now := e.opts.Now()
	switch hold.EffectiveStatus(now) {
	case domain.HoldConfirmed:
		return hold, nil
	case domain.HoldHeld:
	default:
		return domain.Hold{}, domain.Conflictf("hold %s is %s", holdID, hold.EffectiveStatus(now))
	}

	settings, err := e.Settings(ctx, tenantID, hold.EventID)
	if err != nil {
		return domain.Hold{}, err
	}
	price, err := pricing.Quote(hold.UnitPriceMinor, hold.Quantity, settings.TaxRate, settings.Currency)
	if err != nil {
		return domain.Hold{}, err
	}

	confirmed, err := e.store.ConfirmHold(ctx, hold, price, now)
	if errors.Is(err, domain.ErrConflict) {
		// A concurrent confirmation by the same holder wins the update; report its result.
		if current, gerr := e.store.GetHold(ctx, tenantID, holdID); gerr == nil && current.Status == domain.HoldConfirmed {
			return current, nil
		}
	}
	if err != nil {
		return domain.Hold{}, err
	}

	e.auditHold(ctx, "hold.confirmed", confirmed)
	return confirmed, nil
}

// Release gives a HELD hold's units back. Unknown holds and holds of another
// holder are not found; holds that already ended are left as they are.
func (e *Engine) Release(ctx context.Context, tenantID, holdID uuid.UUID, holderRef string) (domain.Hold, error) {
	return e.release(ctx, tenantID, holdID, holderRef, ReasonCancelled)
}

func (e *Engine) release(ctx context.Context, tenantID, holdID uuid.UUID, holderRef, reason string) (hold domain.Hold, err error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Release", trace.WithAttributes(attribute.String("hold_id", holdID.String())))
	defer func() {
		observability.HoldTransitions.WithLabelValues("release", outcome(err)).Inc()
		endSpan(span, err)
	}()

	for attempt := 0; attempt < 2; attempt++ {
		hold, err = e.store.GetHold(ctx, tenantID, holdID)
		if err != nil {
			return domain.Hold{}, err
		}
		if hold.HolderRef != holderRef {
			return domain.Hold{}, domain.NotFoundf("hold %s not found", holdID)
		}

		switch status := hold.EffectiveStatus(e.opts.Now()); status {
		case domain.HoldConfirmed:
			return domain.Hold{}, domain.Conflictf("hold %s is confirmed", holdID)
		case domain.HoldReleased, domain.HoldExpired:
			hold.Status = status
			return hold, nil
		}

		released, err := e.store.ReleaseHold(ctx, hold, reason)
		if errors.Is(err, domain.ErrConflict) {
			// The hold changed under us; decide again from its new state.
			continue
		}
		if err != nil {
			return domain.Hold{}, err
		}
		e.auditHold(ctx, "hold.released", released)
		return released, nil
	}
	return domain.Hold{}, domain.Conflictf("hold %s is changing concurrently", holdID)
}

// SweepExpired frees the event's lapsed holds and reports how many units came back.
func (e *Engine) SweepExpired(ctx context.Context, tenantID, eventID uuid.UUID) (n int, err error) {
	ctx, span := e.tracer.Start(ctx, "Engine.SweepExpired", trace.WithAttributes(attribute.String("event_id", eventID.String())))
	defer func() { endSpan(span, err) }()

	n, err = e.store.SweepExpired(ctx, tenantID, eventID, e.opts.Now())
	if err != nil {
		return 0, err
	}
	observability.UnitsSwept.Add(float64(n))
	if n > 0 {
		e.logger.WithField("event_id", eventID).WithField("units", n).Info("expired holds swept")
	}
	return n, nil
}

// GetHold reads a hold; a lapsed HELD hold reads as EXPIRED.
func (e *Engine) GetHold(ctx context.Context, tenantID, holdID uuid.UUID) (domain.Hold, error) {
	hold, err := e.store.GetHold(ctx, tenantID, holdID)
	if err != nil {
		return domain.Hold{}, err
	}
	hold.Status = hold.EffectiveStatus(e.opts.Now())
	return hold, nil
}

type PaymentStatus string

const (
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
)

type PaymentResult struct {
	TenantID  uuid.UUID     `json:"tenant_id" validate:"required"`
	HoldID    uuid.UUID     `json:"hold_id" validate:"required"`
	HolderRef string        `json:"holder_ref" validate:"required"`
	Status    PaymentStatus `json:"status" validate:"required,oneof=succeeded failed"`
}

// ApplyPayment confirms the hold on a successful payment and releases it on
// a failed one.
func (e *Engine) ApplyPayment(ctx context.Context, p PaymentResult) (domain.Hold, error) {
	switch p.Status {
	case PaymentSucceeded:
		return e.Confirm(ctx, p.TenantID, p.HoldID, p.HolderRef)
	case PaymentFailed:
		return e.release(ctx, p.TenantID, p.HoldID, p.HolderRef, ReasonPaymentFailed)
	default:
		return domain.Hold{}, domain.Validationf("unknown payment status %q", p.Status)
	}
}

func (e *Engine) auditHold(ctx context.Context, action string, hold domain.Hold) {
	if e.audit == nil {
		return
	}
	if err := e.audit.LogHold(ctx, action, hold); err != nil {
		e.logger.WithField("hold_id", hold.ID).Warn("audit log failed: ", err)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrCapacityExceeded):
		return "sold_out"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
