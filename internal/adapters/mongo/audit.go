package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/event-seat-inventory/internal/domain"
	"github.com/robertarktes/event-seat-inventory/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type AuditLog struct {
	ID        string    `bson:"_id"`
	Action    string    `bson:"action"`
	TenantID  string    `bson:"tenant_id"`
	EventID   string    `bson:"event_id"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

func (a *AuditLogger) LogEvent(ctx context.Context, action string, tenantID, eventID uuid.UUID, data map[string]interface{}) error {
	log := AuditLog{
		ID:        uuid.NewString(),
		Action:    action,
		TenantID:  tenantID.String(),
		EventID:   eventID.String(),
		Timestamp: time.Now(),
		Data:      bson.M(data),
	}
	_, err := a.coll.InsertOne(ctx, log)
	if err != nil {
		a.logger.Error("failed to insert audit log", err)
		return err
	}
	return nil
}

func (a *AuditLogger) LogHold(ctx context.Context, action string, hold domain.Hold) error {
	data := map[string]interface{}{
		"hold_id":    hold.ID.String(),
		"kind":       string(hold.Kind),
		"holder_ref": hold.HolderRef,
		"quantity":   hold.Quantity,
		"status":     string(hold.Status),
		"expires_at": hold.ExpiresAt.Format(time.RFC3339),
	}
	if hold.SeatID != nil {
		data["seat_id"] = hold.SeatID.String()
	}
	if hold.TicketClass != "" {
		data["ticket_class"] = hold.TicketClass
	}
	if hold.ReleaseReason != "" {
		data["release_reason"] = hold.ReleaseReason
	}
	if hold.Price != nil {
		data["subtotal"] = hold.Price.SubtotalMinor
		data["tax_amount"] = hold.Price.TaxMinor
		data["total"] = hold.Price.TotalMinor
		data["tax_rate"] = hold.Price.TaxRate.String()
		data["currency"] = hold.Price.Currency
	}
	return a.LogEvent(ctx, action, hold.TenantID, hold.EventID, data)
}

func (a *AuditLogger) LogRegeneration(ctx context.Context, cfg domain.FloorPlanConfig, invalidated int, force bool) error {
	data := map[string]interface{}{
		"capacity":          cfg.Definition.Capacity,
		"total_seats":       cfg.TotalSeats,
		"tier_counts":       cfg.TierCounts,
		"invalidated_holds": invalidated,
		"force":             force,
	}
	return a.LogEvent(ctx, "seats.regenerated", cfg.TenantID, cfg.EventID, data)
}
