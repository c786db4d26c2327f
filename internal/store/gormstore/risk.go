package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/drivana/settlement/pkg/risk"
)

// GetBonusMalus implements risk.Store.
func (store *Store) GetBonusMalus(ctx context.Context, userID string) (risk.BonusMalus, error) {
	var row BonusMalusRecord
	err := store.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return risk.BonusMalus{}, fmt.Errorf("%w: user %s", risk.ErrNoRecord, userID)
	}
	if err != nil {
		return risk.BonusMalus{}, fmt.Errorf("get bonus-malus record: %w", err)
	}
	tier, err := risk.ParseTier(row.Tier)
	if err != nil {
		return risk.BonusMalus{}, err
	}
	return risk.BonusMalus{
		UserID:      row.UserID,
		TotalFactor: row.TotalFactor,
		Tier:        tier,
		Metrics: risk.Metrics{
			AverageRating:    row.AverageRating,
			CancellationRate: row.CancellationRate,
			CompletedRentals: row.CompletedRentals,
			IsVerified:       row.IsVerified,
		},
		NextRecalculationAt: row.NextRecalculationAt,
	}, nil
}

// UpsertBonusMalus implements risk.Store: the record is replaced wholesale.
func (store *Store) UpsertBonusMalus(ctx context.Context, record risk.BonusMalus) error {
	row := BonusMalusRecord{
		UserID:              record.UserID,
		TotalFactor:         record.TotalFactor,
		Tier:                record.Tier.String(),
		AverageRating:       record.Metrics.AverageRating,
		CancellationRate:    record.Metrics.CancellationRate,
		CompletedRentals:    record.Metrics.CompletedRentals,
		IsVerified:          record.Metrics.IsVerified,
		NextRecalculationAt: record.NextRecalculationAt.UTC(),
		UpdatedAt:           time.Now().UTC(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			UpdateAll: true,
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert bonus-malus record: %w", err)
	}
	return nil
}

// ListFactors implements risk.Store.
func (store *Store) ListFactors(ctx context.Context) ([]float64, error) {
	var factors []float64
	err := store.db.WithContext(ctx).
		Model(&BonusMalusRecord{}).
		Pluck("total_factor", &factors).Error
	if err != nil {
		return nil, fmt.Errorf("list bonus-malus factors: %w", err)
	}
	return factors, nil
}

// LoadMetrics implements risk.MetricsSource. Users without a metrics row get
// zero metrics: no history, no adjustment.
func (store *Store) LoadMetrics(ctx context.Context, userID string) (risk.Metrics, error) {
	var row RenterMetrics
	err := store.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return risk.Metrics{}, nil
	}
	if err != nil {
		return risk.Metrics{}, fmt.Errorf("load renter metrics: %w", err)
	}
	return risk.Metrics{
		AverageRating:    row.AverageRating,
		CancellationRate: row.CancellationRate,
		CompletedRentals: row.CompletedRentals,
		IsVerified:       row.IsVerified,
	}, nil
}

// UpsertMetrics stores the rolling marketplace statistics for a user.
func (store *Store) UpsertMetrics(ctx context.Context, userID string, metrics risk.Metrics) error {
	row := RenterMetrics{
		UserID:           userID,
		AverageRating:    metrics.AverageRating,
		CancellationRate: metrics.CancellationRate,
		CompletedRentals: metrics.CompletedRentals,
		IsVerified:       metrics.IsVerified,
		UpdatedAt:        time.Now().UTC(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			UpdateAll: true,
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert renter metrics: %w", err)
	}
	return nil
}

// ListDueUserIDs implements risk.Store.
func (store *Store) ListDueUserIDs(ctx context.Context, at time.Time) ([]string, error) {
	var userIDs []string
	err := store.db.WithContext(ctx).
		Model(&BonusMalusRecord{}).
		Where("next_recalculation_at < ?", at.UTC()).
		Pluck("user_id", &userIDs).Error
	if err != nil {
		return nil, fmt.Errorf("list due bonus-malus users: %w", err)
	}
	return userIDs, nil
}
