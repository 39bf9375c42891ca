// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the per-user
// balance row.
//
// The balance row is the only resource requiring per-user serialization.
// Callers must load and update it inside the same transaction as the ledger
// append; these helpers take whatever handle (plain or transaction-bound)
// the caller provides.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-reading-backend/internal/domain"
)

// GetBalance returns the balance row for userID, or ErrNotFound when the
// user has no balance row yet.
func GetBalance(ctx context.Context, db *gorm.DB, userID string) (*domain.UserBalance, error) {
	var b domain.UserBalance
	if err := db.WithContext(ctx).Where("user_id = ?", userID).First(&b).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// EnsureBalance returns the balance row for userID, creating a zero row when
// none exists.
func EnsureBalance(ctx context.Context, db *gorm.DB, userID string) (*domain.UserBalance, error) {
	b, err := GetBalance(ctx, db, userID)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	nb := &domain.UserBalance{
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(nb).Error; err != nil {
		return nil, err
	}
	return nb, nil
}

// UpdateBalance writes new promo/paid values for userID. Returns ErrNotFound
// when the row is missing.
func UpdateBalance(ctx context.Context, db *gorm.DB, userID string, promo, paid int) error {
	res := db.WithContext(ctx).
		Model(&domain.UserBalance{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			"promo_credits": promo,
			"paid_credits":  paid,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
