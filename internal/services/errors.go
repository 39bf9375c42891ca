// Package services defines the business logic for credit accounting, reading
// submission, and the generation pipeline. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes is performed at the
// handler layer, and translation into terminal reading failures at the worker.
package services

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidQuestion is returned when a submitted question is empty,
	// multi-part, or contains disallowed content. Fatal, never retried; when
	// caught pre-submission no deduction has happened so nothing is refunded.
	ErrInvalidQuestion = errors.New("invalid question")

	// ErrInsufficientCredits is returned by Deduct when the combined
	// promotional and paid balance cannot cover the amount. No writes occur.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrAlreadyDeducted indicates a deduction entry for this reading already
	// exists; the retried submission is charged exactly once.
	ErrAlreadyDeducted = errors.New("reading already deducted")

	// ErrReadingNotFound indicates the requested reading does not exist or is
	// not accessible to the current user.
	ErrReadingNotFound = errors.New("reading not found")

	// ErrUserNotFound indicates the job references a user with no balance
	// row. Fatal for the job, never retried.
	ErrUserNotFound = errors.New("user not found")

	// ErrAnswerUnparsable is returned after the bounded generate/parse retry
	// loop still failed to produce a valid payload.
	ErrAnswerUnparsable = errors.New("generated answer unparsable")

	// ErrReadingNotPending is returned by force-processing paths when the
	// target reading is already claimed or terminal.
	ErrReadingNotPending = errors.New("reading is not pending")
)

// Pipeline failure codes reported by workers. They are stable identifiers,
// safe to expose to clients alongside a localized message.
const (
	CodeValidation   = "validation_error"
	CodeNotFound     = "not_found"
	CodeCatalog      = "insufficient_catalog"
	CodeProvider     = "ai_provider_error"
	CodeParse        = "ai_parsing_error"
	CodeStalled      = "stalled"
	CodePersistence  = "persistence_error"
	CodeInsufficient = "insufficient_credits"
)

// PipelineError is the structured failure a pipeline stage escalates to the
// worker: a stable code, a short operator-facing message, and optional
// details (attempt counts, missing fields). It wraps the underlying sentinel
// so errors.Is keeps working.
type PipelineError struct {
	Code    string
	Message string
	Details string
	Err     error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying sentinel for errors.Is/errors.As.
func (e *PipelineError) Unwrap() error { return e.Err }

// NewPipelineError builds a PipelineError around a sentinel.
func NewPipelineError(code, message, details string, err error) *PipelineError {
	return &PipelineError{Code: code, Message: message, Details: details, Err: err}
}

// AsPipelineError coerces any error into a *PipelineError, defaulting to the
// persistence code for unrecognized failures.
func AsPipelineError(err error) *PipelineError {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe
	}
	return &PipelineError{Code: CodePersistence, Message: "pipeline failure", Err: err}
}
