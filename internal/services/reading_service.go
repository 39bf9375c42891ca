// Package services – ReadingService
//
// This file implements the submission and status surface of the pipeline:
// charging the user, creating the pending reading, handing the job to the
// queue, and answering pull-mode status queries with a queue-depth-based
// time estimate. Workers own all subsequent mutations of the reading row.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-reading-backend/internal/domain"
	"github.com/tbourn/go-reading-backend/internal/repo"
	"github.com/tbourn/go-reading-backend/internal/rewards"
)

// Job is the queue envelope handed to the worker pool. The reading row is the
// durable source of truth; the envelope only saves the worker a lookup.
type Job struct {
	ReadingID string `json:"reading_id"`
	UserID    string `json:"user_id"`
	Question  string `json:"question"`
	SessionID string `json:"session_id"`
}

// Enqueuer hands jobs to the worker pool. Enqueue is best-effort: a false
// return means the queue is full and the pending row will be picked up by the
// periodic driver instead.
type Enqueuer interface {
	Enqueue(job Job) bool
}

// ReadingService coordinates submission and status reads.
type ReadingService struct {
	DB      *gorm.DB
	Ledger  *LedgerService
	Rewards rewards.Config
	Queue   Enqueuer

	// Estimate parameters for the advisory time hint. Never enforced as a
	// deadline.
	BaseProcessingSeconds int
	PerJobDelaySeconds    int

	// IdempotencyTTL bounds how long a stored Idempotency-Key replays a prior
	// submission. Zero disables the stored-record path.
	IdempotencyTTL time.Duration
}

// NewReadingService constructs a ReadingService with default estimate
// parameters.
func NewReadingService(db *gorm.DB, ledger *LedgerService, cfg rewards.Config, queue Enqueuer) *ReadingService {
	return &ReadingService{
		DB:                    db,
		Ledger:                ledger,
		Rewards:               cfg,
		Queue:                 queue,
		BaseProcessingSeconds: 20,
		PerJobDelaySeconds:    15,
	}
}

// SubmitResult is returned to the caller immediately after submission.
type SubmitResult struct {
	Reading          *domain.Reading
	EstimatedSeconds int
}

// Submit validates the question, charges the user, creates the pending
// reading, and enqueues the job.
//
// The reading insert and the deduction commit in one transaction: the row is
// inserted first so the deduction can derive its deterministic ledger
// identity from the reading ID, and any deduction failure (or a crash in
// between) rolls the row back with it, so a reading can never reach the queue
// unpaid. Validation errors and ErrInsufficientCredits are returned
// synchronously and never enter the queue.
func (s *ReadingService) Submit(ctx context.Context, userID, question, readingType, locale, sessionID string) (SubmitResult, error) {
	tr := otel.Tracer("services/ReadingService")
	ctx, span := tr.Start(ctx, "Submit",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("reading.type", readingType),
		),
	)
	defer span.End()

	q, err := ValidateQuestion(question)
	if err != nil {
		return SubmitResult{}, err
	}
	switch readingType {
	case domain.ReadingTypeGeneral, domain.ReadingTypeLove, domain.ReadingTypeCareer, domain.ReadingTypeFinance:
	case "":
		readingType = domain.ReadingTypeGeneral
	default:
		return SubmitResult{}, ErrInvalidQuestion
	}

	cost, err := s.Rewards.CreditsFor(ctx, rewards.EventReadingSubmission)
	if err != nil {
		return SubmitResult{}, err
	}

	var reading *domain.Reading
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := repo.CreateReading(ctx, tx, userID, q, readingType, locale)
		if err != nil {
			return err
		}
		if _, err := s.Ledger.deductTx(ctx, tx, userID, r.ID, cost.Total()); err != nil {
			return err
		}
		reading = r
		return nil
	})
	if err != nil {
		return SubmitResult{}, err
	}

	if s.Queue != nil {
		if !s.Queue.Enqueue(Job{
			ReadingID: reading.ID,
			UserID:    userID,
			Question:  q,
			SessionID: sessionID,
		}) {
			// Queue full: the pending row stays and the periodic driver will
			// deliver it.
			log.Warn().Str("reading_id", reading.ID).Msg("queue full, deferring to driver")
		}
	}

	est, err := s.EstimateSeconds(ctx)
	if err != nil {
		est = s.BaseProcessingSeconds
	}
	return SubmitResult{Reading: reading, EstimatedSeconds: est}, nil
}

// StatusReport is the pull-mode status payload.
type StatusReport struct {
	ReadingID             string                `json:"reading_id"`
	Status                string                `json:"status"`
	ProcessingStartedAt   any                   `json:"processing_started_at,omitempty"`
	ProcessingCompletedAt any                   `json:"processing_completed_at,omitempty"`
	ErrorMessage          *string               `json:"error_message,omitempty"`
	Answer                *domain.ReadingAnswer `json:"answer,omitempty"`
	EstimatedSeconds      *int                  `json:"estimated_seconds_remaining,omitempty"`
}

// Status reports the current state of a reading owned by userID. For
// non-terminal readings it includes the advisory time estimate.
func (s *ReadingService) Status(ctx context.Context, userID, readingID string) (StatusReport, error) {
	r, err := repo.GetUserReading(ctx, s.DB, readingID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return StatusReport{}, ErrReadingNotFound
		}
		return StatusReport{}, err
	}

	rep := StatusReport{
		ReadingID:    r.ID,
		Status:       r.Status,
		ErrorMessage: r.ErrorMessage,
		Answer:       r.Answer,
	}
	if r.ProcessingStartedAt != nil {
		rep.ProcessingStartedAt = r.ProcessingStartedAt
	}
	if r.ProcessingCompletedAt != nil {
		rep.ProcessingCompletedAt = r.ProcessingCompletedAt
	}
	if !r.Terminal() {
		if est, err := s.EstimateSeconds(ctx); err == nil {
			rep.EstimatedSeconds = &est
		}
	}
	return rep, nil
}

// EstimateSeconds computes the advisory completion estimate:
// base processing time plus the pending queue depth times the per-job delay.
func (s *ReadingService) EstimateSeconds(ctx context.Context) (int, error) {
	depth, err := repo.CountPendingReadings(ctx, s.DB)
	if err != nil {
		return 0, err
	}
	return s.BaseProcessingSeconds + int(depth)*s.PerJobDelaySeconds, nil
}

// Get fetches one reading scoped to its owner.
func (s *ReadingService) Get(ctx context.Context, userID, readingID string) (*domain.Reading, error) {
	r, err := repo.GetUserReading(ctx, s.DB, readingID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReadingNotFound
		}
		return nil, err
	}
	return r, nil
}

// ListPage returns a page of the user's readings, newest first, with the
// total count for pagination metadata.
func (s *ReadingService) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Reading, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountReadings(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Reading{}, 0, nil
	}
	items, err := repo.ListReadingsPage(ctx, s.DB, userID, offset, pageSize)
	return items, total, err
}

// Delete soft-deletes a reading owned by userID. Rows are never physically
// removed for users.
func (s *ReadingService) Delete(ctx context.Context, userID, readingID string) error {
	err := repo.SoftDeleteReading(ctx, s.DB, readingID, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrReadingNotFound
	}
	return err
}

// Stats returns per-status reading counts.
func (s *ReadingService) Stats(ctx context.Context) (repo.ReadingStats, error) {
	return repo.CountReadingsByStatus(ctx, s.DB)
}
