package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type SeatStatus string

const (
	SeatAvailable SeatStatus = "AVAILABLE"
	SeatHeld      SeatStatus = "HELD"
	SeatConfirmed SeatStatus = "CONFIRMED"
	SeatBlocked   SeatStatus = "BLOCKED"
)

func (s SeatStatus) Valid() bool {
	switch s {
	case SeatAvailable, SeatHeld, SeatConfirmed, SeatBlocked:
		return true
	}
	return false
}

type HoldStatus string

const (
	HoldHeld      HoldStatus = "HELD"
	HoldConfirmed HoldStatus = "CONFIRMED"
	HoldReleased  HoldStatus = "RELEASED"
	HoldExpired   HoldStatus = "EXPIRED"
)

// UnitKind tells which inventory model a hold draws from.
type UnitKind string

const (
	UnitSeat        UnitKind = "seat"
	UnitTicketClass UnitKind = "ticket_class"
)

// Seat is one addressable unit of a generated floor plan. Status, HoldID,
// HolderRef and HoldExpiry always change together.
type Seat struct {
	ID         uuid.UUID  `json:"id"`
	TenantID   uuid.UUID  `json:"-"`
	EventID    uuid.UUID  `json:"event_id"`
	Section    string     `json:"section"`
	Row        int        `json:"row"`
	Number     int        `json:"seat_number"`
	Tier       string     `json:"tier"`
	PriceMinor int64      `json:"price"`
	Status     SeatStatus `json:"status"`
	HoldID     *uuid.UUID `json:"hold_id,omitempty"`
	HolderRef  *string    `json:"-"`
	HoldExpiry *time.Time `json:"hold_expiry,omitempty"`
}

// EffectiveStatus reports a HELD seat whose hold has lapsed as AVAILABLE.
func (s Seat) EffectiveStatus(now time.Time) SeatStatus {
	if s.Status == SeatHeld && s.HoldExpiry != nil && s.HoldExpiry.Before(now) {
		return SeatAvailable
	}
	return s.Status
}

// TicketClass is aggregate inventory for events without a seat map. Sold
// counts held and confirmed units; Held is the unconfirmed part of Sold.
type TicketClass struct {
	ID           uuid.UUID  `json:"id"`
	TenantID     uuid.UUID  `json:"-"`
	EventID      uuid.UUID  `json:"event_id"`
	Name         string     `json:"name"`
	Quantity     int        `json:"quantity"`
	Sold         int        `json:"sold"`
	Held         int        `json:"held"`
	PriceMinor   int64      `json:"price"`
	MinPerOrder  int        `json:"min_per_order"`
	MaxPerOrder  int        `json:"max_per_order"`
	SalesStartAt *time.Time `json:"sales_start_at,omitempty"`
	SalesEndAt   *time.Time `json:"sales_end_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (c TicketClass) Available() int {
	return c.Quantity - c.Sold
}

// CheckOrder validates a requested quantity against the per-order limits and
// the sales window. It says nothing about remaining capacity.
func (c TicketClass) CheckOrder(quantity int, now time.Time) error {
	if quantity < 1 {
		return Validationf("quantity must be at least 1, got %d", quantity)
	}
	if c.MinPerOrder > 0 && quantity < c.MinPerOrder {
		return Validationf("ticket class %q requires at least %d per order", c.Name, c.MinPerOrder)
	}
	if c.MaxPerOrder > 0 && quantity > c.MaxPerOrder {
		return Validationf("ticket class %q allows at most %d per order", c.Name, c.MaxPerOrder)
	}
	if c.SalesStartAt != nil && now.Before(*c.SalesStartAt) {
		return Validationf("sales for ticket class %q have not started", c.Name)
	}
	if c.SalesEndAt != nil && now.After(*c.SalesEndAt) {
		return Validationf("sales for ticket class %q have ended", c.Name)
	}
	return nil
}

// Hold is a time-bounded claim on a seat or on Quantity units of a ticket class.
type Hold struct {
	ID             uuid.UUID       `json:"hold_id"`
	TenantID       uuid.UUID       `json:"-"`
	EventID        uuid.UUID       `json:"event_id"`
	Kind           UnitKind        `json:"kind"`
	SeatID         *uuid.UUID      `json:"seat_id,omitempty"`
	TicketClass    string          `json:"ticket_class,omitempty"`
	Quantity       int             `json:"quantity"`
	HolderRef      string          `json:"holder_ref"`
	UnitPriceMinor int64           `json:"unit_price"`
	Status         HoldStatus      `json:"status"`
	ReleaseReason  string          `json:"release_reason,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	ExpiresAt      time.Time       `json:"expires_at"`
	ConfirmedAt    *time.Time      `json:"confirmed_at,omitempty"`
	Price          *PriceBreakdown `json:"price,omitempty"`
}

// EffectiveStatus reports a HELD hold past its expiry as EXPIRED even when no
// sweep has persisted that yet.
func (h Hold) EffectiveStatus(now time.Time) HoldStatus {
	if h.Status == HoldHeld && h.ExpiresAt.Before(now) {
		return HoldExpired
	}
	return h.Status
}

// PriceBreakdown is embedded in confirmed holds for auditing. Amounts are in
// minor currency units.
type PriceBreakdown struct {
	SubtotalMinor int64           `json:"subtotal"`
	TaxMinor      int64           `json:"tax_amount"`
	TotalMinor    int64           `json:"total"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	Currency      string          `json:"currency,omitempty"`
}

// EventSettings is the persisted per-event configuration loaded on each request.
type EventSettings struct {
	TenantID  uuid.UUID       `json:"-"`
	EventID   uuid.UUID       `json:"event_id"`
	TaxRate   decimal.Decimal `json:"tax_rate"`
	HoldTTL   time.Duration   `json:"-"`
	Currency  string          `json:"currency"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// UnitSelector picks either one seat or a quantity of a ticket class.
type UnitSelector struct {
	SeatID      *uuid.UUID `json:"seat_id,omitempty"`
	TicketClass string     `json:"ticket_class,omitempty"`
	Quantity    int        `json:"quantity,omitempty"`
}

func (u UnitSelector) Kind() UnitKind {
	if u.SeatID != nil {
		return UnitSeat
	}
	return UnitTicketClass
}

func (u UnitSelector) Validate() error {
	switch {
	case u.SeatID != nil && u.TicketClass != "":
		return Validationf("select either a seat or a ticket class, not both")
	case u.SeatID != nil:
		if *u.SeatID == uuid.Nil {
			return Validationf("seat_id is required")
		}
		if u.Quantity > 1 {
			return Validationf("a seat selection holds exactly one unit")
		}
	case u.TicketClass != "":
		if u.Quantity < 1 {
			return Validationf("quantity must be at least 1, got %d", u.Quantity)
		}
	default:
		return Validationf("seat_id or ticket_class is required")
	}
	return nil
}

// MaxSeatsPerOrder bounds a multi-seat reservation.
const MaxSeatsPerOrder = 50

// SeatSelection is the seat list of a multi-seat reservation; all of them are
// held together or none is.
type SeatSelection []uuid.UUID

func (s SeatSelection) Validate() error {
	if len(s) == 0 {
		return Validationf("seat_ids is required")
	}
	if len(s) > MaxSeatsPerOrder {
		return Validationf("at most %d seats per order, got %d", MaxSeatsPerOrder, len(s))
	}
	seen := make(map[uuid.UUID]struct{}, len(s))
	for _, id := range s {
		if id == uuid.Nil {
			return Validationf("seat_ids must not contain empty ids")
		}
		if _, ok := seen[id]; ok {
			return Validationf("seat %s is listed twice", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// EventRef identifies one tenant's event.
type EventRef struct {
	TenantID uuid.UUID
	EventID  uuid.UUID
}
