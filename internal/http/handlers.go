package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/robertarktes/event-seat-inventory/internal/adapters/crdb"
	"github.com/robertarktes/event-seat-inventory/internal/domain"
	"github.com/robertarktes/event-seat-inventory/internal/regeneration"
	"github.com/robertarktes/event-seat-inventory/internal/reservation"
	"github.com/shopspring/decimal"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

type Reservations interface {
	Reserve(ctx context.Context, req reservation.ReserveRequest) (domain.Hold, error)
	ReserveSeats(ctx context.Context, req reservation.ReserveSeatsRequest) ([]domain.Hold, error)
	GetHold(ctx context.Context, tenantID, holdID uuid.UUID) (domain.Hold, error)
	Confirm(ctx context.Context, tenantID, holdID uuid.UUID, holderRef string) (domain.Hold, error)
	Release(ctx context.Context, tenantID, holdID uuid.UUID, holderRef string) (domain.Hold, error)
	SweepExpired(ctx context.Context, tenantID, eventID uuid.UUID) (int, error)
	ApplyPayment(ctx context.Context, p reservation.PaymentResult) (domain.Hold, error)
	Settings(ctx context.Context, tenantID, eventID uuid.UUID) (domain.EventSettings, error)
	UpdateSettings(ctx context.Context, s domain.EventSettings) (domain.EventSettings, error)
}

type FloorPlans interface {
	Regenerate(ctx context.Context, def domain.FloorPlanDefinition, force bool) (regeneration.Result, error)
	Current(ctx context.Context, tenantID, eventID uuid.UUID) (domain.FloorPlanConfig, error)
}

type Inventory interface {
	ListSeats(ctx context.Context, f crdb.SeatFilter, now time.Time) ([]domain.Seat, int, error)
	SeatSummary(ctx context.Context, tenantID, eventID uuid.UUID, now time.Time) (map[domain.SeatStatus]int, error)
	BlockSeat(ctx context.Context, tenantID, eventID, seatID uuid.UUID, now time.Time) error
	UnblockSeat(ctx context.Context, tenantID, eventID, seatID uuid.UUID) error
	CreateTicketClass(ctx context.Context, c domain.TicketClass) (domain.TicketClass, error)
	ListTicketClasses(ctx context.Context, tenantID, eventID uuid.UUID) ([]domain.TicketClass, error)
}

// Pinger is a dependency checked by the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	reservations Reservations
	floorPlans   FloorPlans
	inventory    Inventory
	catalog      Catalog
	checks       map[string]Pinger
	now          func() time.Time
}

func NewHandlers(reservations Reservations, floorPlans FloorPlans, inventory Inventory, catalog Catalog, checks map[string]Pinger) *Handlers {
	return &Handlers{
		reservations: reservations,
		floorPlans:   floorPlans,
		inventory:    inventory,
		catalog:      catalog,
		checks:       checks,
		now:          time.Now,
	}
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, domain.Validationf("invalid %s", name)
	}
	return id, nil
}

// scope returns the tenant of the request and the event named in the path.
func scope(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	tenantID, ok := TenantFrom(r.Context())
	if !ok {
		return uuid.Nil, uuid.Nil, domain.Validationf("tenant is required")
	}
	eventID, err := pathUUID(r, "eventID")
	return tenantID, eventID, err
}

type regenerateRequest struct {
	domain.FloorPlanDefinition
	Force bool `json:"force"`
}

func (h *Handlers) RegenerateFloorPlan(w http.ResponseWriter, r *http.Request) {
	tenantID, eventID, err := scope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req regenerateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.TenantID, req.EventID = tenantID, eventID

	res, err := h.floorPlans.Regenerate(r.Context(), req.FloorPlanDefinition, req.Force)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) GetFloorPlan(w http.ResponseWriter, r *http.Request) {
	tenantID, eventID, err := scope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	cfg, err := h.floorPlans.Current(r.Context(), tenantID, eventID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

type seatPage struct {
	Seats   []domain.Seat             `json:"seats"`
	Total   int                       `json:"total"`
	Limit   uint64                    `json:"limit"`
	Offset  uint64                    `json:"offset"`
	Summary map[domain.SeatStatus]int `json:"summary"`
}

func queryUint(r *http.Request, name string, def uint64) (uint64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, domain.Validationf("invalid %s %q", name, raw)
	}
	return v, nil
}

func (h *Handlers) ListSeats(w http.ResponseWriter, r *http.Request) {
	tenantID, eventID, err := scope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	f := crdb.SeatFilter{
		TenantID: tenantID,
		EventID:  eventID,
		Section:  q.Get("section"),
		Tier:     q.Get("tier"),
		Status:   domain.SeatStatus(q.Get("status")),
	}
	if f.Status != "" && !f.Status.Valid() {
		writeError(w, r, domain.Validationf("unknown seat status %q", f.Status))
		return
	}
	if f.Limit, err = queryUint(r, "limit", defaultPageSize); err != nil {
		writeError(w, r, err)
		return
	}
	if f.Limit == 0 || f.Limit > maxPageSize {
		writeError(w, r, domain.Validationf("limit must be within 1..%d", maxPageSize))
		return
	}
	if f.Offset, err = queryUint(r, "offset", 0); err != nil {
		writeError(w, r, err)
		return
	}

	now := h.now()
	seats, total, err := h.inventory.ListSeats(r.Context(), f, now)
	if err != nil {
		writeError(w, r, err)
		return
	}
	summary, err := h.inventory.SeatSummary(r.Context(), tenantID, eventID, now)
	if err != nil {
		writeError(w, r, err)
		return
	}
	for i := range seats {
		seats[i].Status = seats[i].EffectiveStatus(now)
	}
	if seats == nil {
		seats = []domain.Seat{}
	}
	writeJSON(w, http.StatusOK, seatPage{Seats: seats, Total: total, Limit: f.Limit, Offset: f.Offset, Summary: summary})
}

func (h *Handlers) BlockSeat(w http.ResponseWriter, r *http.Request) {
	h.seatTransition(w, r, func(ctx context.Context, tenantID, eventID, seatID uuid.UUID) error {
		return h.inventory.BlockSeat(ctx, tenantID, eventID, seatID, h.now())
	})
}

func (h *Handlers) UnblockSeat(w http.ResponseWriter, r *http.Request) {
	h.seatTransition(w, r, h.inventory.UnblockSeat)
}

func (h *Handlers) seatTransition(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, tenantID, eventID, seatID uuid.UUID) error) {
	tenantID, eventID, err := scope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	seatID, err := pathUUID(r, "seatID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := apply(r.Context(), tenantID, eventID, seatID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type ticketClassRequest struct {
	Name         string     `json:"name" validate:"required,max=100"`
	Quantity     int        `json:"quantity" validate:"gt=0"`
	PriceMinor   int64      `json:"price" validate:"gte=0"`
	MinPerOrder  int        `json:"min_per_order" validate:"gte=0"`
	MaxPerOrder  int        `json:"max_per_order" validate:"gte=0"`
	SalesStartAt *time.Time `json:"sales_start_at"`
	SalesEndAt   *time.Time `json:"sales_end_at"`
}

func (req ticketClassRequest) validate() error {
	if req.MaxPerOrder > 0 && req.MinPerOrder > req.MaxPerOrder {
		return domain.Validationf("min_per_order exceeds max_per_order")
	}
	if req.SalesStartAt != nil && req.SalesEndAt != nil && !req.SalesEndAt.After(*req.SalesStartAt) {
		return domain.Validationf("sales_end_at must be after sales_start_at")
	}
	return nil
}

func (h *Handlers) CreateTicketClass(w http.ResponseWriter, r *http.Request) {
	tenantID, eventID, err := scope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req ticketClassRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, r, err)
		return
	}
	class, err := h.inventory.CreateTicketClass(r.Context(), domain.TicketClass{
		TenantID:     tenantID,
		EventID:      eventID,
		Name:         req.Name,
		Quantity:     req.Quantity,
		PriceMinor:   req.PriceMinor,
		MinPerOrder:  req.MinPerOrder,
		MaxPerOrder:  req.MaxPerOrder,
		SalesStartAt: req.SalesStartAt,
		SalesEndAt:   req.SalesEndAt,
		CreatedAt:    h.now(),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, class)
}

func (h *Handlers) ListTicketClasses(w http.ResponseWriter, r *http.Request) {
	tenantID, eventID, err := scope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	classes, err := h.inventory.ListTicketClasses(r.Context(), tenantID, eventID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if classes == nil {
		classes = []domain.TicketClass{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ticket_classes": classes})
}

type settingsRequest struct {
	TaxRate        decimal.Decimal `json:"tax_rate"`
	HoldTTLSeconds int             `json:"hold_ttl_seconds" validate:"gte=0"`
	Currency       string          `json:"currency" validate:"omitempty,len=3,uppercase"`
}

type settingsResponse struct {
	domain.EventSettings
	HoldTTLSeconds int `json:"hold_ttl_seconds"`
}

func newSettingsResponse(s domain.EventSettings) settingsResponse {
	return settingsResponse{EventSettings: s, HoldTTLSeconds: int(s.HoldTTL / time.Second)}
}

func (h *Handlers) PutSettings(w http.ResponseWriter, r *http.Request) {
	tenantID, eventID, err := scope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req settingsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s, err := h.reservations.UpdateSettings(r.Context(), domain.EventSettings{
		TenantID: tenantID,
		EventID:  eventID,
		TaxRate:  req.TaxRate,
		HoldTTL:  time.Duration(req.HoldTTLSeconds) * time.Second,
		Currency: req.Currency,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSettingsResponse(s))
}

func (h *Handlers) GetSettings(w http.ResponseWriter, r *http.Request) {
	tenantID, eventID, err := scope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s, err := h.reservations.Settings(r.Context(), tenantID, eventID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSettingsResponse(s))
}

type reserveRequest struct {
	domain.UnitSelector
	HolderRef  string `json:"holder_ref" validate:"required,max=200"`
	TTLSeconds int    `json:"ttl_seconds" validate:"gte=0"`
}

func (h *Handlers) Reserve(w http.ResponseWriter, r *http.Request) {
	tenantID, eventID, err := scope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req reserveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	hold, err := h.reservations.Reserve(r.Context(), reservation.ReserveRequest{
		TenantID:  tenantID,
		EventID:   eventID,
		Selector:  req.UnitSelector,
		HolderRef: req.HolderRef,
		TTL:       time.Duration(req.TTLSeconds) * time.Second,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, hold)
}

type reserveSeatsRequest struct {
	SeatIDs    []uuid.UUID `json:"seat_ids" validate:"required,min=1"`
	HolderRef  string      `json:"holder_ref" validate:"required,max=200"`
	TTLSeconds int         `json:"ttl_seconds" validate:"gte=0"`
}

type seatHoldsResponse struct {
	Holds      []domain.Hold `json:"holds"`
	TotalPrice int64         `json:"total_price"`
	ExpiresAt  time.Time     `json:"expires_at"`
}

// ReserveSeats holds several seats at once; a 409 lists every seat that was
// missing or taken and nothing is held.
func (h *Handlers) ReserveSeats(w http.ResponseWriter, r *http.Request) {
	tenantID, eventID, err := scope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req reserveSeatsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	holds, err := h.reservations.ReserveSeats(r.Context(), reservation.ReserveSeatsRequest{
		TenantID:  tenantID,
		EventID:   eventID,
		SeatIDs:   req.SeatIDs,
		HolderRef: req.HolderRef,
		TTL:       time.Duration(req.TTLSeconds) * time.Second,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := seatHoldsResponse{Holds: holds}
	for _, hold := range holds {
		resp.TotalPrice += hold.UnitPriceMinor
		resp.ExpiresAt = hold.ExpiresAt
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handlers) GetHold(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := TenantFrom(r.Context())
	holdID, err := pathUUID(r, "holdID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	hold, err := h.reservations.GetHold(r.Context(), tenantID, holdID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hold)
}

type holderRequest struct {
	HolderRef string `json:"holder_ref" validate:"required"`
}

func (h *Handlers) ConfirmHold(w http.ResponseWriter, r *http.Request) {
	h.holdTransition(w, r, h.reservations.Confirm)
}

func (h *Handlers) ReleaseHold(w http.ResponseWriter, r *http.Request) {
	h.holdTransition(w, r, h.reservations.Release)
}

func (h *Handlers) holdTransition(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, tenantID, holdID uuid.UUID, holderRef string) (domain.Hold, error)) {
	tenantID, _ := TenantFrom(r.Context())
	holdID, err := pathUUID(r, "holdID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req holderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	hold, err := apply(r.Context(), tenantID, holdID, req.HolderRef)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hold)
}

func (h *Handlers) SweepHolds(w http.ResponseWriter, r *http.Request) {
	tenantID, eventID, err := scope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	n, err := h.reservations.SweepExpired(r.Context(), tenantID, eventID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"expired": n})
}

// PaymentCallback applies a payment outcome pushed by the payment subsystem.
// The tenant travels in the body since the caller is not a tenant client.
// PaymentCallback applies a payment result for the caller's tenant. A
// tenant_id in the body naming another tenant is treated as an unknown hold.
func (h *Handlers) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := TenantFrom(r.Context())
	var req reservation.PaymentResult
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.TenantID != uuid.Nil && req.TenantID != tenantID {
		writeError(w, r, domain.NotFoundf("hold %s not found", req.HoldID))
		return
	}
	req.TenantID = tenantID
	if err := domain.ValidateStruct(req); err != nil {
		writeError(w, r, err)
		return
	}
	hold, err := h.reservations.ApplyPayment(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hold)
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := map[string]string{}
	for name, c := range h.checks {
		if err := c.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		LoggerFrom(r.Context()).WithField("failed", failed).Warn("not ready")
		writeJSON(w, http.StatusServiceUnavailable, failed)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Ready"))
}
