package http

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	mongoadapter "github.com/robertarktes/event-seat-inventory/internal/adapters/mongo"
	"github.com/robertarktes/event-seat-inventory/internal/domain"
)

// Catalog is the tenant's event directory. Floor plans can only be generated
// for events registered here.
type Catalog interface {
	CreateEvent(ctx context.Context, event mongoadapter.EventDoc) error
	GetEvent(ctx context.Context, tenantID, eventID uuid.UUID) (*mongoadapter.EventDoc, error)
}

type createEventRequest struct {
	ID       *uuid.UUID `json:"id"`
	Name     string     `json:"name" validate:"required,max=200"`
	Venue    string     `json:"venue" validate:"max=200"`
	StartsAt time.Time  `json:"starts_at" validate:"required"`
}

func (h *Handlers) CreateEvent(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := TenantFrom(r.Context())
	if !ok {
		writeError(w, r, domain.Validationf("tenant is required"))
		return
	}
	var req createEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	eventID := uuid.New()
	if req.ID != nil && *req.ID != uuid.Nil {
		eventID = *req.ID
	}
	event := mongoadapter.EventDoc{
		ID:       eventID.String(),
		TenantID: tenantID.String(),
		Name:     req.Name,
		Venue:    req.Venue,
		StartsAt: req.StartsAt,
	}
	if err := h.catalog.CreateEvent(r.Context(), event); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := h.catalog.GetEvent(r.Context(), tenantID, eventID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handlers) GetEvent(w http.ResponseWriter, r *http.Request) {
	tenantID, eventID, err := scope(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	event, err := h.catalog.GetEvent(r.Context(), tenantID, eventID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}
