// Package floorplan turns a floor-plan definition into concrete seats. Both
// steps are pure: the same definition always yields the same counts and the
// same seat set, ids included.
package floorplan

import (
	"github.com/robertarktes/event-seat-inventory/internal/domain"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// SplitCapacity allocates capacity across tiers. Every tier but the last gets
// its explicit count or floor(capacity × percentage / 100); the last tier
// takes whatever remains, so rounding drift always lands there and the counts
// sum to capacity exactly. Tiers that round to zero seats are allowed.
func SplitCapacity(capacity int, tiers []domain.TierDefinition) ([]int, error) {
	if capacity <= 0 {
		return nil, domain.Validationf("capacity must be positive, got %d", capacity)
	}
	if len(tiers) == 0 {
		return nil, domain.Validationf("at least one tier is required")
	}

	counts := make([]int, len(tiers))
	allocated := 0
	total := decimal.NewFromInt(int64(capacity))
	for i, t := range tiers[:len(tiers)-1] {
		switch {
		case t.Count != nil:
			if *t.Count < 0 {
				return nil, domain.Validationf("tier %q: count must not be negative", t.Name)
			}
			counts[i] = *t.Count
		case t.Percentage != nil:
			if t.Percentage.IsNegative() {
				return nil, domain.Validationf("tier %q: percentage must not be negative", t.Name)
			}
			counts[i] = int(total.Mul(*t.Percentage).Div(hundred).Floor().IntPart())
		default:
			return nil, domain.Validationf("tier %q: percentage or count is required", t.Name)
		}
		allocated += counts[i]
	}

	last := capacity - allocated
	if last < 0 {
		return nil, domain.Validationf("tier allocations (%d) exceed capacity %d", allocated, capacity)
	}
	counts[len(counts)-1] = last
	return counts, nil
}
