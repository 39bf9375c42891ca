// Package domain defines the persistence models for readings, the credit
// ledger, user balances, and the card catalog. These types are mapped with
// GORM and form the core data layer of the reading-generation backend.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Reading lifecycle states. Transitions are monotonic:
// pending → processing → {completed, failed}. The only exception is the
// stalled-job recovery path, which may move a processing reading back to
// pending while its retry budget lasts.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Reading types accepted at submission.
const (
	ReadingTypeGeneral = "general"
	ReadingTypeLove    = "love"
	ReadingTypeCareer  = "career"
	ReadingTypeFinance = "finance"
)

// Reading represents one user question and its generated result. A reading is
// created pending by the submission path and mutated only by the worker pool.
//
// Invariants:
//   - Answer is non-nil iff Status == completed.
//   - ErrorMessage is non-nil iff Status == failed.
//   - A reading is owned exclusively by its creating user.
//   - Rows are never physically deleted; users may soft-delete via DeletedAt.
type Reading struct {
	ID       string `json:"id"       gorm:"type:char(36);primaryKey"`
	UserID   string `json:"user_id"  gorm:"type:varchar(64);not null;index:idx_user_readings"`
	Question string `json:"question" gorm:"type:text;not null"`
	Type     string `json:"type"     gorm:"type:varchar(16);not null;default:'general';check:type IN ('general','love','career','finance')"`
	Status   string `json:"status"   gorm:"type:varchar(16);not null;default:'pending';index;check:status IN ('pending','processing','completed','failed')"`

	// Answer holds the structured generated payload. NULL until completed.
	Answer *ReadingAnswer `json:"answer,omitempty" gorm:"type:text"`

	// ErrorMessage holds a localized, non-technical failure description.
	// NULL unless the reading failed.
	ErrorMessage *string `json:"error_message,omitempty" gorm:"type:text"`

	// Locale is the BCP 47 tag captured at submission, used to localize
	// failure messages.
	Locale string `json:"-" gorm:"type:varchar(16);not null;default:'en'"`

	// RetryCount counts stalled-job redeliveries for this reading.
	RetryCount int `json:"-" gorm:"not null;default:0"`

	ProcessingStartedAt   *time.Time `json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time `json:"processing_completed_at,omitempty"`

	CreatedAt time.Time      `json:"created_at" gorm:"index:idx_status_created"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName returns the database table name for Reading.
func (Reading) TableName() string { return "readings" }

// Terminal reports whether the reading reached a terminal state.
func (r *Reading) Terminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}

// Ledger event types. The ledger is append-only: entries are immutable once
// written.
const (
	EntryDeduction = "deduction"
	EntryRefund    = "refund"
	EntryGrant     = "grant"
)

// LedgerEntry is an append-only record of a credit balance change. Entry
// identity is derived deterministically from (reading id, event type), see
// repo.LedgerEntryID, so a retried submission or a repeated refund collides
// on the primary key instead of double-charging.
//
// Invariants:
//   - At most one deduction entry per reading.
//   - At most one refund entry per deduction (RefundOf is unique when set).
type LedgerEntry struct {
	ID     string `json:"id"      gorm:"type:char(36);primaryKey"`
	UserID string `json:"user_id" gorm:"type:varchar(64);not null;index"`

	// EventType is one of deduction, refund, grant.
	EventType string `json:"event_type" gorm:"type:varchar(16);not null;check:event_type IN ('deduction','refund','grant')"`

	// Signed deltas for the two credit kinds. Promotional credits are spent
	// before paid credits.
	DeltaPromo int `json:"delta_promo" gorm:"not null;default:0"`
	DeltaPaid  int `json:"delta_paid"  gorm:"not null;default:0"`

	// ReadingID links the entry to the reading it charged or refunded.
	// Empty for grants that are not reading-related.
	ReadingID string `json:"reading_id,omitempty" gorm:"type:char(36);index"`

	// RefundOf references the original deduction entry. Set only on refund
	// entries; the unique index enforces at-most-once refund per deduction.
	RefundOf *string `json:"refund_of,omitempty" gorm:"type:char(36);uniqueIndex:ux_ledger_refund_of"`

	// Note carries a short human-readable reason (e.g. the failure code).
	Note string `json:"note,omitempty" gorm:"type:varchar(255)"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for LedgerEntry.
func (LedgerEntry) TableName() string { return "ledger_entries" }

// UserBalance is the single mutable row per user holding spendable credits.
// All mutations happen inside a transaction together with the ledger append;
// this row is the only resource requiring per-user serialization.
type UserBalance struct {
	UserID       string    `json:"user_id" gorm:"type:varchar(64);primaryKey"`
	PromoCredits int       `json:"promo_credits" gorm:"not null;default:0;check:promo_credits >= 0"`
	PaidCredits  int       `json:"paid_credits"  gorm:"not null;default:0;check:paid_credits >= 0"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for UserBalance.
func (UserBalance) TableName() string { return "user_balances" }

// Total returns the combined spendable credits.
func (b *UserBalance) Total() int { return b.PromoCredits + b.PaidCredits }

// Card is a static catalog entity. The catalog is read-only for the pipeline;
// it is seeded at migration time when empty.
type Card struct {
	ID          string `json:"id"           gorm:"type:varchar(64);primaryKey"`
	Name        string `json:"name"         gorm:"type:varchar(64);not null;uniqueIndex"`
	DisplayName string `json:"display_name" gorm:"type:varchar(128);not null"`
	Meaning     string `json:"meaning"      gorm:"type:text;not null"`
	// Keywords is a comma-separated keyword set.
	Keywords string `json:"keywords" gorm:"type:varchar(255)"`
	ImageRef string `json:"image_ref" gorm:"type:varchar(255)"`
}

// TableName returns the database table name for Card.
func (Card) TableName() string { return "cards" }
