package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/drivana/settlement/pkg/preauth"
)

// GetGatewayCustomerID implements preauth.CardStore.
func (store *Store) GetGatewayCustomerID(ctx context.Context, userID string) (string, error) {
	var row GatewayCustomer
	err := store.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("%w: user %s", preauth.ErrCustomerNotFound, userID)
	}
	if err != nil {
		return "", fmt.Errorf("get gateway customer: %w", err)
	}
	return row.CustomerID, nil
}

// SaveGatewayCustomerID implements preauth.CardStore.
func (store *Store) SaveGatewayCustomerID(ctx context.Context, userID, customerID string) error {
	row := GatewayCustomer{
		UserID:     userID,
		CustomerID: customerID,
		CreatedAt:  time.Now().UTC(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			UpdateAll: true,
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("save gateway customer: %w", err)
	}
	return nil
}

// UpsertPaymentMethod implements preauth.CardStore.
func (store *Store) UpsertPaymentMethod(ctx context.Context, method preauth.SavedPaymentMethod) error {
	row := StoredPaymentMethod{
		UserID:            method.UserID,
		GatewayCardID:     method.GatewayCardID,
		GatewayCustomerID: method.GatewayCustomerID,
		LastFour:          method.LastFour,
		Brand:             method.Brand,
		ExpMonth:          method.ExpMonth,
		ExpYear:           method.ExpYear,
		CardholderName:    method.CardholderName,
		IsDefault:         method.IsDefault,
		CreatedAt:         time.Now().UTC(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "gateway_card_id"}},
			UpdateAll: true,
		}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("upsert payment method: %w", err)
	}
	return nil
}

// ListPaymentMethods implements preauth.CardStore.
func (store *Store) ListPaymentMethods(ctx context.Context, userID string) ([]preauth.SavedPaymentMethod, error) {
	var rows []StoredPaymentMethod
	err := store.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list payment methods: %w", err)
	}
	methods := make([]preauth.SavedPaymentMethod, 0, len(rows))
	for _, row := range rows {
		methods = append(methods, preauth.SavedPaymentMethod{
			UserID:            row.UserID,
			GatewayCustomerID: row.GatewayCustomerID,
			GatewayCardID:     row.GatewayCardID,
			LastFour:          row.LastFour,
			Brand:             row.Brand,
			ExpMonth:          row.ExpMonth,
			ExpYear:           row.ExpYear,
			CardholderName:    row.CardholderName,
			IsDefault:         row.IsDefault,
		})
	}
	return methods, nil
}
