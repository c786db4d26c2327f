package risk

import (
	"context"
	"fmt"
	"time"
)

// Metrics is a point-in-time snapshot of a user's rolling risk inputs.
// A zero AverageRating means "no ratings yet", not a bad rating.
type Metrics struct {
	AverageRating    float64
	CancellationRate float64
	CompletedRentals int
	IsVerified       bool
}

// Tier is the discrete trust classification derived from the factor.
type Tier string

const (
	TierStandard Tier = "standard"
	TierTrusted  Tier = "trusted"
	TierElite    Tier = "elite"
)

// ParseTier validates a stored tier value.
func ParseTier(raw string) (Tier, error) {
	switch Tier(raw) {
	case TierStandard, TierTrusted, TierElite:
		return Tier(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidTier, raw)
}

// String returns the stored tier value.
func (tier Tier) String() string {
	return string(tier)
}

// BonusMalus is the persisted per-user record. It is overwritten wholesale on
// each recalculation and never mutated in place.
type BonusMalus struct {
	UserID              string
	TotalFactor         float64
	Tier                Tier
	Metrics             Metrics
	NextRecalculationAt time.Time
}

// Stats aggregates the factor distribution across all users.
type Stats struct {
	TotalUsers     int
	UsersWithBonus int
	UsersWithMalus int
	UsersNeutral   int
	AverageFactor  float64
}

// Store persists bonus-malus records.
type Store interface {
	GetBonusMalus(ctx context.Context, userID string) (BonusMalus, error)
	UpsertBonusMalus(ctx context.Context, record BonusMalus) error
	ListFactors(ctx context.Context) ([]float64, error)
	ListDueUserIDs(ctx context.Context, at time.Time) ([]string, error)
}

// MetricsSource loads the current rolling metrics for a user.
type MetricsSource interface {
	LoadMetrics(ctx context.Context, userID string) (Metrics, error)
}
