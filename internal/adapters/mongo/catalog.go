package mongo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/event-seat-inventory/internal/domain"
	"github.com/robertarktes/event-seat-inventory/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type CatalogRepository struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewCatalogRepository(db *mongo.Database, logger observability.Logger) *CatalogRepository {
	return &CatalogRepository{
		coll:   db.Collection("events"),
		logger: logger,
	}
}

// EventDoc is the catalog entry of an event. Ids are stored as strings.
type EventDoc struct {
	ID          string       `bson:"_id" json:"id"`
	TenantID    string       `bson:"tenant_id" json:"-"`
	Name        string       `bson:"name" json:"name"`
	Venue       string       `bson:"venue" json:"venue"`
	StartsAt    time.Time    `bson:"starts_at" json:"starts_at"`
	SeatSummary *SeatSummary `bson:"seat_summary,omitempty" json:"seat_summary,omitempty"`
	CreatedAt   time.Time    `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time    `bson:"updated_at" json:"updated_at"`
}

type SeatSummary struct {
	TierCounts []domain.TierCount `bson:"tier_counts" json:"tier_counts"`
	TotalSeats int                `bson:"total_seats" json:"total_seats"`
	UpdatedAt  time.Time          `bson:"updated_at" json:"updated_at"`
}

func byTenant(tenantID, eventID uuid.UUID) bson.M {
	return bson.M{"_id": eventID.String(), "tenant_id": tenantID.String()}
}

func (c *CatalogRepository) Ping(ctx context.Context) error {
	return c.coll.Database().Client().Ping(ctx, nil)
}

// EnsureIndexes creates the tenant lookup index.
func (c *CatalogRepository) EnsureIndexes(ctx context.Context) error {
	_, err := c.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "_id", Value: 1}},
	})
	return err
}

func (c *CatalogRepository) GetEvent(ctx context.Context, tenantID, eventID uuid.UUID) (*EventDoc, error) {
	var event EventDoc
	err := c.coll.FindOne(ctx, byTenant(tenantID, eventID)).Decode(&event)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.NotFoundf("event %s not found", eventID)
	}
	if err != nil {
		c.logger.Error("failed to get event", err)
		return nil, err
	}
	return &event, nil
}

func (c *CatalogRepository) EventExists(ctx context.Context, tenantID, eventID uuid.UUID) (bool, error) {
	n, err := c.coll.CountDocuments(ctx, byTenant(tenantID, eventID), options.Count().SetLimit(1))
	if err != nil {
		c.logger.Error("failed to look up event", err)
		return false, err
	}
	return n > 0, nil
}

func (c *CatalogRepository) CreateEvent(ctx context.Context, event EventDoc) error {
	event.CreatedAt = time.Now()
	event.UpdatedAt = event.CreatedAt
	_, err := c.coll.InsertOne(ctx, event)
	if mongo.IsDuplicateKeyError(err) {
		return domain.Conflictf("event %s already exists", event.ID)
	}
	if err != nil {
		c.logger.Error("failed to create event", err)
		return err
	}
	return nil
}

// UpdateSeatSummary records the layout produced by the latest regeneration.
func (c *CatalogRepository) UpdateSeatSummary(ctx context.Context, tenantID, eventID uuid.UUID, counts []domain.TierCount, total int) error {
	now := time.Now()
	res, err := c.coll.UpdateOne(
		ctx,
		byTenant(tenantID, eventID),
		bson.M{"$set": bson.M{
			"seat_summary": SeatSummary{TierCounts: counts, TotalSeats: total, UpdatedAt: now},
			"updated_at":   now,
		}},
	)
	if err != nil {
		c.logger.Error("failed to update seat summary", err)
		return err
	}
	if res.MatchedCount == 0 {
		return domain.NotFoundf("event %s not found", eventID)
	}
	return nil
}
