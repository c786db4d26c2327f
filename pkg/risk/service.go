package risk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const defaultRecalcInterval = 7 * 24 * time.Hour

// Service manages bonus-malus records over a Store and a MetricsSource.
type Service struct {
	store          Store
	metrics        MetricsSource
	nowFn          func() time.Time
	recalcInterval time.Duration
}

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// WithRecalcInterval overrides how long a computed record stays fresh.
func WithRecalcInterval(interval time.Duration) ServiceOption {
	return func(service *Service) {
		if interval > 0 {
			service.recalcInterval = interval
		}
	}
}

// NewService wires a Service.
func NewService(store Store, metrics MetricsSource, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if metrics == nil {
		return nil, fmt.Errorf("%w: metrics source dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		store:          store,
		metrics:        metrics,
		nowFn:          now,
		recalcInterval: defaultRecalcInterval,
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// BonusMalus returns the user's record, computing it lazily on first query.
func (service *Service) BonusMalus(ctx context.Context, userID string) (BonusMalus, error) {
	if strings.TrimSpace(userID) == "" {
		return BonusMalus{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	record, err := service.store.GetBonusMalus(ctx, userID)
	if errors.Is(err, ErrNoRecord) {
		return service.Recalculate(ctx, userID)
	}
	if err != nil {
		return BonusMalus{}, err
	}
	return record, nil
}

// Recalculate produces and stores a fresh snapshot for the user, overwriting
// any previous record wholesale.
func (service *Service) Recalculate(ctx context.Context, userID string) (BonusMalus, error) {
	if strings.TrimSpace(userID) == "" {
		return BonusMalus{}, fmt.Errorf("%w: empty value", ErrInvalidUserID)
	}
	metrics, err := service.metrics.LoadMetrics(ctx, userID)
	if err != nil {
		return BonusMalus{}, err
	}
	factor := Score(metrics)
	record := BonusMalus{
		UserID:              userID,
		TotalFactor:         factor,
		Tier:                ResolveTier(metrics.IsVerified, factor),
		Metrics:             metrics,
		NextRecalculationAt: service.nowFn().Add(service.recalcInterval),
	}
	if err := service.store.UpsertBonusMalus(ctx, record); err != nil {
		return BonusMalus{}, err
	}
	return record, nil
}

// RecalculateAll refreshes every user whose record is due and reports how many
// were recalculated. Invoked explicitly by an administrator, never on a loop.
func (service *Service) RecalculateAll(ctx context.Context) (int, error) {
	userIDs, err := service.store.ListDueUserIDs(ctx, service.nowFn())
	if err != nil {
		return 0, err
	}
	count := 0
	for _, userID := range userIDs {
		if _, err := service.Recalculate(ctx, userID); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// NeedsRecalculation reports whether the user's record is stale or absent.
func (service *Service) NeedsRecalculation(ctx context.Context, userID string) (bool, error) {
	record, err := service.store.GetBonusMalus(ctx, userID)
	if errors.Is(err, ErrNoRecord) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return record.NextRecalculationAt.Before(service.nowFn()), nil
}

// Factor returns the user's current signed factor.
func (service *Service) Factor(ctx context.Context, userID string) (float64, error) {
	record, err := service.BonusMalus(ctx, userID)
	if err != nil {
		return 0, err
	}
	return record.TotalFactor, nil
}

// Tier returns the user's current tier, resolving it from the stored factor
// when the record predates tiering.
func (service *Service) Tier(ctx context.Context, userID string) (Tier, error) {
	record, err := service.BonusMalus(ctx, userID)
	if err != nil {
		return "", err
	}
	if record.Tier == "" {
		return ResolveTier(record.Metrics.IsVerified, record.TotalFactor), nil
	}
	return record.Tier, nil
}

// DepositDiscountFor returns the waived deposit fraction for the user's tier.
func (service *Service) DepositDiscountFor(ctx context.Context, userID string) (float64, error) {
	tier, err := service.Tier(ctx, userID)
	if err != nil {
		return 0, err
	}
	return DepositDiscount(tier), nil
}

// ApplyToDeposit sizes the risk-adjusted deposit for a booking. The tier is
// resolved fresh on every call so a tier change between bookings takes effect
// immediately.
func (service *Service) ApplyToDeposit(ctx context.Context, userID string, baseCents int64) (DepositQuote, error) {
	if baseCents <= 0 {
		return DepositQuote{}, fmt.Errorf("%w: base deposit %d", ErrInvalidBaseAmount, baseCents)
	}
	tier, err := service.Tier(ctx, userID)
	if err != nil {
		return DepositQuote{}, err
	}
	return ComputeDeposit(baseCents, tier)
}

// Display renders the user's factor for the UI.
func (service *Service) Display(ctx context.Context, userID string) (Display, error) {
	factor, err := service.Factor(ctx, userID)
	if err != nil {
		return Display{}, err
	}
	return FormatDisplay(factor), nil
}

// Tips returns the user's personalized improvement guidance.
func (service *Service) Tips(ctx context.Context, userID string) ([]string, error) {
	record, err := service.BonusMalus(ctx, userID)
	if err != nil {
		return nil, err
	}
	return ImprovementTips(record.Metrics), nil
}

// Stats aggregates the factor distribution across all users.
func (service *Service) Stats(ctx context.Context) (Stats, error) {
	factors, err := service.store.ListFactors(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats := Stats{TotalUsers: len(factors)}
	if len(factors) == 0 {
		return stats, nil
	}
	var sum float64
	for _, factor := range factors {
		sum += factor
		switch {
		case factor < 0:
			stats.UsersWithBonus++
		case factor > 0:
			stats.UsersWithMalus++
		default:
			stats.UsersNeutral++
		}
	}
	stats.AverageFactor = sum / float64(len(factors))
	return stats, nil
}
