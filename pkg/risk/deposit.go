package risk

import (
	"fmt"
	"math"
)

// DepositQuote is the ephemeral result of sizing a guarantee deposit. It is
// never persisted: the tier is resolved fresh for every booking.
type DepositQuote struct {
	BaseCents        int64
	Tier             Tier
	DiscountFraction float64
	AdjustedCents    int64
	SavingsCents     int64
}

// DepositDiscount returns the waived fraction of the base deposit for a tier.
func DepositDiscount(tier Tier) float64 {
	switch tier {
	case TierElite:
		return 1.0
	case TierTrusted:
		return 0.5
	default:
		return 0.0
	}
}

// ComputeDeposit sizes the risk-adjusted deposit for a tier. A non-positive
// base amount is a caller contract violation, not something to clamp.
func ComputeDeposit(baseCents int64, tier Tier) (DepositQuote, error) {
	if baseCents <= 0 {
		return DepositQuote{}, fmt.Errorf("%w: base deposit %d", ErrInvalidBaseAmount, baseCents)
	}
	if _, err := ParseTier(tier.String()); err != nil {
		return DepositQuote{}, err
	}
	fraction := DepositDiscount(tier)
	savings := int64(math.Round(float64(baseCents) * fraction))
	return DepositQuote{
		BaseCents:        baseCents,
		Tier:             tier,
		DiscountFraction: fraction,
		AdjustedCents:    baseCents - savings,
		SavingsCents:     savings,
	}, nil
}

// MonetaryImpact describes how the factor shifts a price.
type MonetaryImpact struct {
	AdjustedPriceCents int64
	DifferenceCents    int64
	PercentageChange   float64
}

// ApplyFactor applies the signed factor to a price: a -0.05 factor on 10000
// cents yields 9500 adjusted and -500 difference.
func ApplyFactor(basePriceCents int64, factor float64) MonetaryImpact {
	adjusted := int64(math.Round(float64(basePriceCents) * (1 + factor)))
	return MonetaryImpact{
		AdjustedPriceCents: adjusted,
		DifferenceCents:    adjusted - basePriceCents,
		PercentageChange:   math.Round(factor*1000) / 10,
	}
}
