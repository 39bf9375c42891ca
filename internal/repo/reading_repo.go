// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Reading
// model and its state machine.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and the conditional updates that enforce the lifecycle.
//
// State machine:
//
//	pending → processing → {completed, failed}
//
// ClaimReading is the single serialization point for the pipeline. It is a
// conditional UPDATE (status predicate in the WHERE clause), never a
// read-then-write, so two workers racing on the same reading cannot both win.
// CompleteReading and FailReading are conditional on status=processing, which
// makes terminal writes idempotent: a second call matches zero rows.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-reading-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrAlreadyClaimed is returned by ClaimReading when the reading is no longer
// pending. It is an expected outcome (another worker owns the job), not a
// failure.
var ErrAlreadyClaimed = errors.New("reading already claimed")

// ReadingStats holds per-status row counts.
type ReadingStats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}

// CreateReading inserts a new pending Reading row for userID. The reading ID
// is a randomly generated UUID (string), and CreatedAt is set to UTC.
func CreateReading(ctx context.Context, db *gorm.DB, userID, question, readingType, locale string) (*domain.Reading, error) {
	r := &domain.Reading{
		ID:        uuid.NewString(),
		UserID:    userID,
		Question:  question,
		Type:      readingType,
		Status:    domain.StatusPending,
		Locale:    locale,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, err
	}
	return r, nil
}

// ClaimReading transitions a reading from pending to processing and stamps
// ProcessingStartedAt. The transition is a single atomic conditional update;
// when the predicate matches zero rows the reading was already claimed (or is
// terminal) and ErrAlreadyClaimed is returned.
func ClaimReading(ctx context.Context, db *gorm.DB, id string) (*domain.Reading, error) {
	now := time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.Reading{}).
		Where("id = ? AND status = ?", id, domain.StatusPending).
		Updates(map[string]any{
			"status":                domain.StatusProcessing,
			"processing_started_at": now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrAlreadyClaimed
	}
	return GetReading(ctx, db, id)
}

// CompleteReading marks the reading completed, stores the answer, stamps
// ProcessingCompletedAt, and clears any error message. The update is
// conditional on status=processing so repeated terminal writes are no-ops.
// It returns the number of rows affected (0 or 1).
func CompleteReading(ctx context.Context, db *gorm.DB, id string, answer *domain.ReadingAnswer) (int64, error) {
	now := time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.Reading{}).
		Where("id = ? AND status = ?", id, domain.StatusProcessing).
		Updates(map[string]any{
			"status":                  domain.StatusCompleted,
			"answer":                  answer,
			"error_message":           nil,
			"processing_completed_at": now,
		})
	return res.RowsAffected, res.Error
}

// FailReading marks the reading failed with a user-facing message and stamps
// ProcessingCompletedAt. Like CompleteReading, it only matches processing
// rows, so terminal states are never overwritten.
func FailReading(ctx context.Context, db *gorm.DB, id, message string) (int64, error) {
	now := time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.Reading{}).
		Where("id = ? AND status = ?", id, domain.StatusProcessing).
		Updates(map[string]any{
			"status":                  domain.StatusFailed,
			"error_message":           message,
			"processing_completed_at": now,
		})
	return res.RowsAffected, res.Error
}

// ListPendingReadings returns pending readings in FIFO order (createdAt
// ascending), bounded by limit.
func ListPendingReadings(ctx context.Context, db *gorm.DB, limit int) ([]domain.Reading, error) {
	var out []domain.Reading
	err := db.WithContext(ctx).
		Where("status = ?", domain.StatusPending).
		Order("created_at asc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountPendingReadings returns the current queue depth (pending rows).
func CountPendingReadings(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.Reading{}).
		Where("status = ?", domain.StatusPending).
		Count(&n).Error
	return n, err
}

// ResetStalledReadings moves processing readings whose ProcessingStartedAt is
// older than the cutoff back to pending, incrementing their retry count. Only
// rows still under maxRetries are reset; exhausted rows are left for
// ListExhaustedReadings. Returns the number of rows redelivered.
func ResetStalledReadings(ctx context.Context, db *gorm.DB, cutoff time.Time, maxRetries int) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Reading{}).
		Where("status = ? AND processing_started_at < ? AND retry_count < ?",
			domain.StatusProcessing, cutoff, maxRetries).
		Updates(map[string]any{
			"status":      domain.StatusPending,
			"retry_count": gorm.Expr("retry_count + 1"),
		})
	return res.RowsAffected, res.Error
}

// ListStalledReadings returns processing readings that stalled past the
// cutoff and still have retry budget. The caller resets and redelivers them.
func ListStalledReadings(ctx context.Context, db *gorm.DB, cutoff time.Time, maxRetries int) ([]domain.Reading, error) {
	var out []domain.Reading
	err := db.WithContext(ctx).
		Where("status = ? AND processing_started_at < ? AND retry_count < ?",
			domain.StatusProcessing, cutoff, maxRetries).
		Find(&out).Error
	return out, err
}

// ListExhaustedReadings returns processing readings that stalled past the
// cutoff and have no retry budget left. The caller is expected to fail and
// refund them.
func ListExhaustedReadings(ctx context.Context, db *gorm.DB, cutoff time.Time, maxRetries int) ([]domain.Reading, error) {
	var out []domain.Reading
	err := db.WithContext(ctx).
		Where("status = ? AND processing_started_at < ? AND retry_count >= ?",
			domain.StatusProcessing, cutoff, maxRetries).
		Find(&out).Error
	return out, err
}

// GetReading fetches a single reading by ID. If the record does not exist,
// it returns ErrNotFound.
func GetReading(ctx context.Context, db *gorm.DB, id string) (*domain.Reading, error) {
	var r domain.Reading
	if err := db.WithContext(ctx).Where("id = ?", id).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// GetUserReading fetches a reading by ID scoped to its owner. A reading that
// exists but belongs to another user is reported as ErrNotFound, never as a
// permission error, to avoid leaking reading IDs.
func GetUserReading(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Reading, error) {
	var r domain.Reading
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CountReadings returns the total number of readings owned by userID.
func CountReadings(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Reading{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// ListReadingsPage returns a paginated slice of readings for userID, ordered
// by creation time descending. Use CountReadings to obtain the total for
// pagination metadata.
func ListReadingsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Reading, error) {
	var out []domain.Reading
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// SoftDeleteReading soft-deletes a reading owned by userID. Returns
// ErrNotFound when no row matched (missing or not owned).
func SoftDeleteReading(ctx context.Context, db *gorm.DB, id, userID string) error {
	res := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Delete(&domain.Reading{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountReadingsByStatus returns per-status counts across all readings.
func CountReadingsByStatus(ctx context.Context, db *gorm.DB) (ReadingStats, error) {
	var rows []struct {
		Status string
		N      int64
	}
	err := db.WithContext(ctx).
		Model(&domain.Reading{}).
		Select("status, count(*) as n").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return ReadingStats{}, err
	}
	var s ReadingStats
	for _, row := range rows {
		switch row.Status {
		case domain.StatusPending:
			s.Pending = row.N
		case domain.StatusProcessing:
			s.Processing = row.N
		case domain.StatusCompleted:
			s.Completed = row.N
		case domain.StatusFailed:
			s.Failed = row.N
		}
	}
	return s, nil
}

// ReadingsListStats returns aggregate metadata for a user's readings: the
// total number of rows and the maximum UpdatedAt timestamp among those rows.
// Used for ETag generation on the list endpoint. When the user has no
// readings, the returned count is 0 and maxUpdatedAt is nil.
func ReadingsListStats(ctx context.Context, db *gorm.DB, userID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Reading{}).Where("user_id = ?", userID)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
