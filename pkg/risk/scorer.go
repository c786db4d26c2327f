package risk

// Factor components in basis points of 1.0 (10000 bps = factor 1.0). Summing
// integers keeps tier boundary comparisons exact; the float factor is derived
// once at the end.
const (
	bpsRatingExcellent = -300 // rating >= 4.8
	bpsRatingGreat     = -200 // rating >= 4.5
	bpsRatingGood      = -100 // rating >= 4.0
	bpsRatingPoor      = +200 // 0 < rating < 4.0
	bpsExperienceHigh  = -200 // completed >= 20
	bpsExperienceSome  = -100 // completed >= 10
	bpsVerified        = -300
	bpsCancellationBad = +500 // cancellation > 0.10
	bpsCancellationMid = +200 // cancellation > 0.05

	factorFloorBps   = -1000
	factorCeilingBps = +1500
)

// Tier boundaries over the signed factor.
const (
	eliteFactorCeiling   = -0.05
	trustedFactorCeiling = 0.0
)

// Score maps a metrics snapshot to the signed bonus-malus factor
// (negative = discount, positive = surcharge). Pure and total: absent metrics
// contribute nothing, so a brand-new user scores neutral on every axis except
// verification.
func Score(metrics Metrics) float64 {
	bps := 0

	switch {
	case metrics.AverageRating >= 4.8:
		bps += bpsRatingExcellent
	case metrics.AverageRating >= 4.5:
		bps += bpsRatingGreat
	case metrics.AverageRating >= 4.0:
		bps += bpsRatingGood
	case metrics.AverageRating > 0:
		bps += bpsRatingPoor
	}

	switch {
	case metrics.CompletedRentals >= 20:
		bps += bpsExperienceHigh
	case metrics.CompletedRentals >= 10:
		bps += bpsExperienceSome
	}

	if metrics.IsVerified {
		bps += bpsVerified
	}

	switch {
	case metrics.CancellationRate > 0.10:
		bps += bpsCancellationBad
	case metrics.CancellationRate > 0.05:
		bps += bpsCancellationMid
	}

	if bps < factorFloorBps {
		bps = factorFloorBps
	}
	if bps > factorCeilingBps {
		bps = factorCeilingBps
	}
	return float64(bps) / 10000.0
}

// ResolveTier derives the tier from verification status and factor. Evaluated
// elite-first so a verified user sitting exactly on the elite boundary is
// elite, not trusted.
func ResolveTier(isVerified bool, factor float64) Tier {
	if isVerified && factor <= eliteFactorCeiling {
		return TierElite
	}
	if isVerified && factor <= trustedFactorCeiling {
		return TierTrusted
	}
	return TierStandard
}
