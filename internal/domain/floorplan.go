package domain

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// MaxCapacity bounds a single floor plan. Deployments may configure a lower
// ceiling on the regeneration coordinator.
const MaxCapacity = 100000

// TierDefinition describes one price band of a floor plan. A tier takes its
// share of capacity from Count when set, else from Percentage; the last tier
// of a plan always receives the remainder. Its price is PriceMinor when set,
// else the plan's base price times PriceMultiplier.
type TierDefinition struct {
	Name            string           `json:"name" bson:"name" validate:"required,max=50"`
	Percentage      *decimal.Decimal `json:"percentage,omitempty" bson:"percentage,omitempty"`
	Count           *int             `json:"count,omitempty" bson:"count,omitempty" validate:"omitempty,gte=0"`
	PriceMinor      *int64           `json:"price,omitempty" bson:"price,omitempty" validate:"omitempty,gte=0"`
	PriceMultiplier *decimal.Decimal `json:"price_multiplier,omitempty" bson:"price_multiplier,omitempty"`
	SeatsPerRow     int              `json:"seats_per_row,omitempty" bson:"seats_per_row,omitempty" validate:"gte=0"`
}

type FloorPlanDefinition struct {
	TenantID       uuid.UUID        `json:"-" bson:"tenant_id"`
	EventID        uuid.UUID        `json:"event_id" bson:"event_id"`
	Capacity       int              `json:"capacity" bson:"capacity" validate:"gt=0,lte=100000"`
	BasePriceMinor int64            `json:"base_price" bson:"base_price" validate:"gte=0"`
	Tiers          []TierDefinition `json:"tiers" bson:"tiers" validate:"required,min=1,dive"`
}

var hundred = decimal.NewFromInt(100)

// Validate rejects malformed definitions before anything is written.
func (d FloorPlanDefinition) Validate() error {
	if err := validate.Struct(d); err != nil {
		return validationError(err)
	}
	seen := make(map[string]struct{}, len(d.Tiers))
	for i, t := range d.Tiers {
		key := strings.ToLower(t.Name)
		if _, ok := seen[key]; ok {
			return Validationf("duplicate tier name %q", t.Name)
		}
		seen[key] = struct{}{}

		if t.Percentage != nil && (t.Percentage.IsNegative() || t.Percentage.GreaterThan(hundred)) {
			return Validationf("tier %q: percentage must be within 0..100", t.Name)
		}
		if i < len(d.Tiers)-1 && t.Percentage == nil && t.Count == nil {
			return Validationf("tier %q: percentage or count is required", t.Name)
		}
		if t.PriceMinor == nil && t.PriceMultiplier == nil {
			return Validationf("tier %q: price or price_multiplier is required", t.Name)
		}
		if t.PriceMultiplier != nil && t.PriceMultiplier.IsNegative() {
			return Validationf("tier %q: price_multiplier must not be negative", t.Name)
		}
	}
	return nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return Validationf("%v", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fe.Namespace()+" failed "+fe.Tag())
	}
	return Validationf("%s", strings.Join(msgs, "; "))
}

// ValidateStruct runs tag validation on a boundary payload and reports
// failures as validation errors.
func ValidateStruct(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		return validationError(err)
	}
	return nil
}

type TierCount struct {
	Tier  string `json:"tier"`
	Count int    `json:"count"`
}

// FloorPlanConfig is the definition an event's current seats were generated from.
type FloorPlanConfig struct {
	TenantID   uuid.UUID           `json:"-"`
	EventID    uuid.UUID           `json:"event_id"`
	Definition FloorPlanDefinition `json:"definition"`
	TierCounts []TierCount         `json:"tier_counts"`
	TotalSeats int                 `json:"total_seats"`
	CreatedAt  time.Time           `json:"created_at"`
}
