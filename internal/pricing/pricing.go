// Package pricing turns tier and unit prices into the amounts stored on
// confirmed holds. All amounts are minor currency units and rounding is
// half-up to the nearest unit.
package pricing

import (
	"github.com/robertarktes/event-seat-inventory/internal/domain"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// TierPrice resolves the absolute price of a tier: its explicit price when
// set, otherwise basePrice scaled by the tier multiplier.
func TierPrice(basePriceMinor int64, tier domain.TierDefinition) (int64, error) {
	if tier.PriceMinor != nil {
		if *tier.PriceMinor < 0 {
			return 0, domain.Validationf("tier %q: price must not be negative", tier.Name)
		}
		return *tier.PriceMinor, nil
	}
	if tier.PriceMultiplier == nil {
		return 0, domain.Validationf("tier %q: price or price_multiplier is required", tier.Name)
	}
	if basePriceMinor < 0 || tier.PriceMultiplier.IsNegative() {
		return 0, domain.Validationf("tier %q: negative base price or multiplier", tier.Name)
	}
	return roundHalfUp(decimal.NewFromInt(basePriceMinor).Mul(*tier.PriceMultiplier)), nil
}

// Quote prices quantity units at unitPriceMinor and applies taxRate, a
// percentage in 0..100.
func Quote(unitPriceMinor int64, quantity int, taxRate decimal.Decimal, currency string) (domain.PriceBreakdown, error) {
	if unitPriceMinor < 0 {
		return domain.PriceBreakdown{}, domain.Validationf("unit price must not be negative")
	}
	if quantity < 1 {
		return domain.PriceBreakdown{}, domain.Validationf("quantity must be at least 1, got %d", quantity)
	}
	if err := ValidateTaxRate(taxRate); err != nil {
		return domain.PriceBreakdown{}, err
	}
	subtotal := unitPriceMinor * int64(quantity)
	tax := TaxAmount(subtotal, taxRate)
	return domain.PriceBreakdown{
		SubtotalMinor: subtotal,
		TaxMinor:      tax,
		TotalMinor:    subtotal + tax,
		TaxRate:       taxRate,
		Currency:      currency,
	}, nil
}

// TaxAmount is round-half-up(subtotal × rate / 100).
func TaxAmount(subtotalMinor int64, taxRate decimal.Decimal) int64 {
	return roundHalfUp(decimal.NewFromInt(subtotalMinor).Mul(taxRate).Div(hundred))
}

func ValidateTaxRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(hundred) {
		return domain.Validationf("tax rate must be within 0..100, got %s", rate.String())
	}
	return nil
}

// roundHalfUp rounds half away from zero; every amount here is non-negative,
// so that is half-up.
func roundHalfUp(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}
