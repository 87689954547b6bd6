package domain

import (
	"time"

	"github.com/google/uuid"
)

func NewSeatHold(tenantID, eventID, seatID uuid.UUID, holderRef string, now time.Time, ttl time.Duration) Hold {
	return Hold{
		ID:        uuid.New(),
		TenantID:  tenantID,
		EventID:   eventID,
		Kind:      UnitSeat,
		SeatID:    &seatID,
		Quantity:  1,
		HolderRef: holderRef,
		Status:    HoldHeld,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

func NewTicketClassHold(tenantID, eventID uuid.UUID, class string, quantity int, holderRef string, now time.Time, ttl time.Duration) Hold {
	return Hold{
		ID:          uuid.New(),
		TenantID:    tenantID,
		EventID:     eventID,
		Kind:        UnitTicketClass,
		TicketClass: class,
		Quantity:    quantity,
		HolderRef:   holderRef,
		Status:      HoldHeld,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}
