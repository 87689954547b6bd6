package floorplan

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/event-seat-inventory/internal/domain"
	"github.com/robertarktes/event-seat-inventory/internal/pricing"
)

// seatNamespace seeds the name-based seat ids.
var seatNamespace = uuid.MustParse("6f1c2a4e-3b7d-4e9a-8c41-2d0f9b7e6a53")

// Densities holds seats-per-row used for row labeling when a tier does not
// declare its own.
type Densities struct {
	ByTier   map[string]int
	Fallback int
}

func DefaultDensities() Densities {
	return Densities{
		ByTier:   map[string]int{"vip": 5, "premium": 8, "general": 10},
		Fallback: 10,
	}
}

// ParseDensities reads "VIP=5,Premium=8,General=10". An empty list yields the
// defaults with the given fallback.
func ParseDensities(list string, fallback int) (Densities, error) {
	d := DefaultDensities()
	if fallback > 0 {
		d.Fallback = fallback
	}
	list = strings.TrimSpace(list)
	if list == "" {
		return d, nil
	}
	d.ByTier = map[string]int{}
	for _, part := range strings.Split(list, ",") {
		name, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return Densities{}, errors.Newf("row density %q: want NAME=SEATS", part)
		}
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil || n < 1 {
			return Densities{}, errors.Newf("row density %q: seats per row must be a positive integer", part)
		}
		d.ByTier[strings.ToLower(strings.TrimSpace(name))] = n
	}
	return d, nil
}

func (d Densities) For(tier domain.TierDefinition) int {
	if tier.SeatsPerRow > 0 {
		return tier.SeatsPerRow
	}
	if n, ok := d.ByTier[strings.ToLower(tier.Name)]; ok && n > 0 {
		return n
	}
	if d.Fallback > 0 {
		return d.Fallback
	}
	return 1
}

// SeatID is stable for a given tenant, event and seat position.
func SeatID(tenantID, eventID uuid.UUID, section string, row, number int) uuid.UUID {
	name := fmt.Sprintf("%s/%s/%s/%d/%d", tenantID, eventID, section, row, number)
	return uuid.NewSHA1(seatNamespace, []byte(name))
}

// GenerateSeats lays out counts[t] seats for each tier t. Numbering restarts
// at 1 in every tier; seat i sits in row ceil(i / seatsPerRow).
func GenerateSeats(def domain.FloorPlanDefinition, counts []int, densities Densities) ([]domain.Seat, error) {
	if len(counts) != len(def.Tiers) {
		return nil, domain.Validationf("got %d tier counts for %d tiers", len(counts), len(def.Tiers))
	}

	total := 0
	for _, c := range counts {
		total += c
	}
	seats := make([]domain.Seat, 0, total)

	for t, tier := range def.Tiers {
		price, err := pricing.TierPrice(def.BasePriceMinor, tier)
		if err != nil {
			return nil, err
		}
		perRow := densities.For(tier)
		for i := 1; i <= counts[t]; i++ {
			row := (i + perRow - 1) / perRow
			seats = append(seats, domain.Seat{
				ID:         SeatID(def.TenantID, def.EventID, tier.Name, row, i),
				TenantID:   def.TenantID,
				EventID:    def.EventID,
				Section:    tier.Name,
				Row:        row,
				Number:     i,
				Tier:       tier.Name,
				PriceMinor: price,
				Status:     domain.SeatAvailable,
			})
		}
	}
	return seats, nil
}

// Layout is a validated definition together with its seats.
type Layout struct {
	TierCounts []domain.TierCount
	Seats      []domain.Seat
}

// Plan validates def, splits its capacity and generates the seats.
func Plan(def domain.FloorPlanDefinition, densities Densities) (Layout, error) {
	if err := def.Validate(); err != nil {
		return Layout{}, err
	}
	counts, err := SplitCapacity(def.Capacity, def.Tiers)
	if err != nil {
		return Layout{}, err
	}
	seats, err := GenerateSeats(def, counts, densities)
	if err != nil {
		return Layout{}, err
	}
	tc := make([]domain.TierCount, len(counts))
	for i, c := range counts {
		tc[i] = domain.TierCount{Tier: def.Tiers[i].Name, Count: c}
	}
	return Layout{TierCounts: tc, Seats: seats}, nil
}
