// Package services – LedgerService
//
// This file implements the credit ledger: atomic deduction and refund of a
// user's spendable balance backed by an append-only transaction log.
// Promotional credits are always spent before paid credits. Every balance
// mutation and its ledger entry are written inside one GORM transaction, so
// concurrent operations on the same user cannot interleave into a lost
// update.
//
// Exactly-once guarantees come from entry identity, not from timing: a
// deduction's ID is derived from the reading ID, and a refund both checks for
// and unique-indexes its reference to the original deduction. Expected
// outcomes (insufficient funds, nothing to refund) are returned as values,
// never panics or control-flow exceptions.
package services

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-reading-backend/internal/domain"
	"github.com/tbourn/go-reading-backend/internal/repo"
)

// DeductResult reports how a successful deduction was split across the two
// credit kinds.
type DeductResult struct {
	SpentPromo int `json:"spent_promo"`
	SpentPaid  int `json:"spent_paid"`
}

// RefundResult reports the outcome of a refund request. Refunded is false for
// the benign no-op cases (no deduction found, already refunded).
type RefundResult struct {
	Refunded      bool   `json:"refunded"`
	ReturnedPromo int    `json:"returned_promo"`
	ReturnedPaid  int    `json:"returned_paid"`
	EntryID       string `json:"entry_id,omitempty"`
}

// LedgerService implements deduct/refund/grant over the balance row and the
// append-only ledger.
type LedgerService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
}

// NewLedgerService constructs a LedgerService.
func NewLedgerService(db *gorm.DB) *LedgerService {
	return &LedgerService{DB: db}
}

// Deduct spends amount credits from userID for readingID, promotional balance
// first. Inside one transaction it reads the balance row, verifies coverage,
// updates the row, and appends the deduction entry whose ID is derived from
// readingID, so a retried submission collides instead of double-deducting.
//
// Returns ErrInsufficientCredits (no writes) when the combined balance cannot
// cover amount, ErrUserNotFound when no balance row exists, and
// ErrAlreadyDeducted when this reading was charged before.
func (s *LedgerService) Deduct(ctx context.Context, userID, readingID string, amount int) (DeductResult, error) {
	tr := otel.Tracer("services/LedgerService")
	ctx, span := tr.Start(ctx, "Deduct",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("reading.id", readingID),
			attribute.Int("amount", amount),
		),
	)
	defer span.End()

	var out DeductResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		out, err = s.deductTx(ctx, tx, userID, readingID, amount)
		return err
	})
	return out, err
}

// deductTx is the transactional body of Deduct. It runs on the caller's
// handle so the submission path can bundle the reading insert and the charge
// into one atomic unit.
func (s *LedgerService) deductTx(ctx context.Context, tx *gorm.DB, userID, readingID string, amount int) (DeductResult, error) {
	if amount <= 0 {
		amount = 1
	}

	bal, err := repo.GetBalance(ctx, tx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return DeductResult{}, ErrUserNotFound
		}
		return DeductResult{}, err
	}
	if bal.Total() < amount {
		return DeductResult{}, ErrInsufficientCredits
	}

	spendPromo := amount
	if spendPromo > bal.PromoCredits {
		spendPromo = bal.PromoCredits
	}
	spendPaid := amount - spendPromo

	entry := &domain.LedgerEntry{
		UserID:     userID,
		EventType:  domain.EntryDeduction,
		DeltaPromo: -spendPromo,
		DeltaPaid:  -spendPaid,
		ReadingID:  readingID,
		Note:       "reading submission",
	}
	if err := repo.AppendLedgerEntry(ctx, tx, entry); err != nil {
		if errors.Is(err, repo.ErrDuplicateEntry) {
			return DeductResult{}, ErrAlreadyDeducted
		}
		return DeductResult{}, err
	}
	if err := repo.UpdateBalance(ctx, tx, userID,
		bal.PromoCredits-spendPromo, bal.PaidCredits-spendPaid); err != nil {
		return DeductResult{}, err
	}
	return DeductResult{SpentPromo: spendPromo, SpentPaid: spendPaid}, nil
}

// Refund returns the exact inverse of the deduction for (userID, readingID).
// Refund is at-most-once per deduction: when no deduction exists, or a refund
// already references it, the call is a logged no-op, not an error. The
// balance update and the refund entry are written in the same transaction.
func (s *LedgerService) Refund(ctx context.Context, userID, readingID, reason string) (RefundResult, error) {
	tr := otel.Tracer("services/LedgerService")
	ctx, span := tr.Start(ctx, "Refund",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("reading.id", readingID),
		),
	)
	defer span.End()

	var out RefundResult
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ded, err := repo.GetDeduction(ctx, tx, userID, readingID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				log.Info().
					Str("user_id", userID).
					Str("reading_id", readingID).
					Msg("refund skipped: no deduction entry")
				return nil
			}
			return err
		}

		done, err := repo.RefundExists(ctx, tx, ded.ID)
		if err != nil {
			return err
		}
		if done {
			log.Info().
				Str("user_id", userID).
				Str("reading_id", readingID).
				Str("deduction_id", ded.ID).
				Msg("refund skipped: already refunded")
			return nil
		}

		bal, err := repo.GetBalance(ctx, tx, userID)
		if err != nil {
			return err
		}

		entry := &domain.LedgerEntry{
			UserID:     userID,
			EventType:  domain.EntryRefund,
			DeltaPromo: -ded.DeltaPromo,
			DeltaPaid:  -ded.DeltaPaid,
			ReadingID:  readingID,
			RefundOf:   &ded.ID,
			Note:       reason,
		}
		if err := repo.AppendLedgerEntry(ctx, tx, entry); err != nil {
			if errors.Is(err, repo.ErrDuplicateEntry) {
				// Lost a race with a concurrent refund of the same deduction.
				return nil
			}
			return err
		}
		if err := repo.UpdateBalance(ctx, tx, userID,
			bal.PromoCredits-ded.DeltaPromo, bal.PaidCredits-ded.DeltaPaid); err != nil {
			return err
		}
		out = RefundResult{
			Refunded:      true,
			ReturnedPromo: -ded.DeltaPromo,
			ReturnedPaid:  -ded.DeltaPaid,
			EntryID:       entry.ID,
		}
		return nil
	})
	return out, err
}

// Grant credits promo/paid amounts to userID, creating the balance row when
// missing. Grant sizes come from the rewards configuration, not from
// hard-coded values.
func (s *LedgerService) Grant(ctx context.Context, userID string, promo, paid int, note string) error {
	if promo < 0 || paid < 0 {
		return errors.New("grant amounts must be non-negative")
	}
	if promo == 0 && paid == 0 {
		return nil
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		bal, err := repo.EnsureBalance(ctx, tx, userID)
		if err != nil {
			return err
		}
		entry := &domain.LedgerEntry{
			UserID:     userID,
			EventType:  domain.EntryGrant,
			DeltaPromo: promo,
			DeltaPaid:  paid,
			Note:       note,
		}
		if err := repo.AppendLedgerEntry(ctx, tx, entry); err != nil {
			return err
		}
		return repo.UpdateBalance(ctx, tx, userID,
			bal.PromoCredits+promo, bal.PaidCredits+paid)
	})
}

// Balance returns the current balance for userID, or ErrUserNotFound.
func (s *LedgerService) Balance(ctx context.Context, userID string) (*domain.UserBalance, error) {
	bal, err := repo.GetBalance(ctx, s.DB, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return bal, nil
}
