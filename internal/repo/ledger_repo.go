// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the append-only
// credit ledger.
//
// Entry identity is deterministic: LedgerEntryID derives a UUIDv5 from the
// (reading id, event type) pair, so the primary key itself enforces
// exactly-once deduction and at-most-once refund per reading regardless of
// wall-clock time or retry timing.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-reading-backend/internal/domain"
)

// ErrDuplicateEntry indicates that a ledger entry with the same deterministic
// identity (or the same RefundOf reference) already exists.
var ErrDuplicateEntry = errors.New("duplicate ledger entry")

// ledgerNamespace seeds UUIDv5 derivation for ledger entry IDs.
var ledgerNamespace = uuid.MustParse("8f3c1a6e-24d1-4a7b-9f0d-3de3b5a41c77")

// LedgerEntryID returns the deterministic entry ID for (readingID, eventType).
// The same pair always yields the same UUID.
func LedgerEntryID(readingID, eventType string) string {
	return uuid.NewSHA1(ledgerNamespace, []byte(eventType+":"+readingID)).String()
}

// AppendLedgerEntry inserts an immutable ledger entry. Grants without a
// reading reference get a random ID; reading-scoped entries use the
// deterministic ID. A primary-key or RefundOf collision is reported as
// ErrDuplicateEntry so callers can treat the write as already done.
func AppendLedgerEntry(ctx context.Context, db *gorm.DB, e *domain.LedgerEntry) error {
	if e.ID == "" {
		if e.ReadingID != "" {
			e.ID = LedgerEntryID(e.ReadingID, e.EventType)
		} else {
			e.ID = uuid.NewString()
		}
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if err := db.WithContext(ctx).Create(e).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEntry
		}
		return err
	}
	return nil
}

// GetDeduction returns the deduction entry for (userID, readingID), or
// ErrNotFound when the reading was never charged.
func GetDeduction(ctx context.Context, db *gorm.DB, userID, readingID string) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	err := db.WithContext(ctx).
		Where("user_id = ? AND reading_id = ? AND event_type = ?",
			userID, readingID, domain.EntryDeduction).
		Order("created_at desc").
		First(&e).Error
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// RefundExists reports whether a refund entry already references the given
// deduction entry ID.
func RefundExists(ctx context.Context, db *gorm.DB, deductionID string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.LedgerEntry{}).
		Where("event_type = ? AND refund_of = ?", domain.EntryRefund, deductionID).
		Count(&n).Error
	return n > 0, err
}

// ListLedgerEntries returns the newest entries for a user, bounded by limit.
func ListLedgerEntries(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.LedgerEntry, error) {
	var out []domain.LedgerEntry
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// isUniqueViolation matches driver-specific unique constraint errors.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}
