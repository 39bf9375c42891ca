// Package services – PipelineService
//
// This file implements the ordered generation pipeline that turns a claimed
// reading into a structured answer: question filter → card selection →
// question analysis → provider generation → parse/validate. Any stage failure
// short-circuits with a *PipelineError the worker turns into fail + refund.
//
// The generation/parse pair is the only retried stage: malformed or
// incomplete provider output re-invokes generation up to MaxGenerateAttempts
// before escalating to a fatal parsing error. Progress is reported at fixed
// milestones so the event stream is identical for every reading.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-reading-backend/internal/cards"
	"github.com/tbourn/go-reading-backend/internal/domain"
	"github.com/tbourn/go-reading-backend/internal/genai"
	"github.com/tbourn/go-reading-backend/internal/repo"
)

// Progress milestones emitted by Run, in order, with fixed percentages.
const (
	StepValidating     = "validating"
	StepSelectingCards = "selecting_cards"
	StepAnalyzing      = "analyzing"
	StepGenerating     = "generating"
	StepFinalizing     = "finalizing"
	StepCompleted      = "completed"
)

// milestonePercent maps each step to its fixed progress percentage.
var milestonePercent = map[string]int{
	StepValidating:     20,
	StepSelectingCards: 40,
	StepAnalyzing:      60,
	StepGenerating:     80,
	StepFinalizing:     95,
	StepCompleted:      100,
}

// ProgressFunc receives milestone updates during a pipeline run. A nil
// ProgressFunc is allowed.
type ProgressFunc func(step string, percent int, message string)

// CardSelector is the card-selection contract consumed by the pipeline.
type CardSelector interface {
	Select(catalog []domain.Card) (cards.Selection, error)
}

// PipelineService drives the generation stages for one reading at a time.
// It is stateless between runs and safe for concurrent use.
type PipelineService struct {
	DB       *gorm.DB
	Provider genai.Provider
	Selector CardSelector

	// MaxGenerateAttempts bounds the generate→parse retry loop.
	MaxGenerateAttempts int
}

// NewPipelineService constructs a PipelineService with the default retry
// budget of three generation attempts.
func NewPipelineService(db *gorm.DB, provider genai.Provider, selector CardSelector) *PipelineService {
	return &PipelineService{
		DB:                  db,
		Provider:            provider,
		Selector:            selector,
		MaxGenerateAttempts: 3,
	}
}

// Run executes the full pipeline for a claimed reading and returns the
// structured answer. All failures are *PipelineError values.
func (s *PipelineService) Run(ctx context.Context, reading *domain.Reading, report ProgressFunc) (*domain.ReadingAnswer, error) {
	tr := otel.Tracer("services/PipelineService")
	ctx, span := tr.Start(ctx, "Run",
		trace.WithAttributes(
			attribute.String("reading.id", reading.ID),
			attribute.String("reading.type", reading.Type),
		),
	)
	defer span.End()

	if report == nil {
		report = func(string, int, string) {}
	}
	step := func(name, msg string) { report(name, milestonePercent[name], msg) }

	// 1) Question filter
	step(StepValidating, "checking your question")
	question, err := ValidateQuestion(reading.Question)
	if err != nil {
		return nil, NewPipelineError(CodeValidation, "question rejected", "", err)
	}

	// 2) Card selection
	step(StepSelectingCards, "drawing your cards")
	catalog, err := repo.ListCards(ctx, s.DB)
	if err != nil {
		return nil, NewPipelineError(CodePersistence, "loading card catalog", "", err)
	}
	sel, err := s.Selector.Select(catalog)
	if err != nil {
		return nil, NewPipelineError(CodeCatalog, "card catalog too small", "", err)
	}

	// 3) Question analysis (pure, no side effects)
	step(StepAnalyzing, "reading between the lines")
	tags := AnalyzeQuestion(question, reading.Type)

	// 4+5) Generation with bounded parse/validate retry
	step(StepGenerating, "consulting the cards")
	messages := buildPrompt(question, tags, sel, catalog)

	attempts := s.MaxGenerateAttempts
	if attempts <= 0 {
		attempts = 3
	}
	var gen *genai.GeneratedReading
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		text, err := s.Provider.Invoke(ctx, messages)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, NewPipelineError(CodeProvider, "generation canceled", "", err)
			}
			lastErr = err
			log.Warn().
				Str("reading_id", reading.ID).
				Int("attempt", attempt).
				Err(err).
				Msg("generation call failed")
			continue
		}
		gen, err = genai.ParseAndValidate(text)
		if err == nil {
			break
		}
		lastErr = err
		log.Warn().
			Str("reading_id", reading.ID).
			Int("attempt", attempt).
			Err(err).
			Msg("generation output rejected")
	}
	if gen == nil {
		details := fmt.Sprintf("attempts=%d", attempts)
		var pe *genai.ParseError
		if errors.As(lastErr, &pe) {
			return nil, NewPipelineError(CodeParse, "could not parse generated reading", details, ErrAnswerUnparsable)
		}
		return nil, NewPipelineError(CodeProvider, "generation provider failed", details, lastErr)
	}

	// Assemble the versioned answer.
	step(StepFinalizing, "finishing your reading")
	answer := &domain.ReadingAnswer{
		SchemaVersion: domain.AnswerSchemaVersion,
		Summary:       gen.Summary,
		Advice:        gen.Advice,
		Affirmation:   gen.Affirmation,
		Cards:         sel.Cards,
		Tags:          tags,
	}
	for _, in := range gen.Insights {
		answer.Insights = append(answer.Insights, domain.CardInsight{
			Position:       in.Position,
			CardName:       in.CardName,
			Interpretation: in.Interpretation,
		})
	}
	if err := answer.Validate(); err != nil {
		return nil, NewPipelineError(CodeParse, "assembled answer invalid", err.Error(), ErrAnswerUnparsable)
	}
	return answer, nil
}

// buildPrompt renders the chat messages for the provider: a fixed system
// instruction demanding strict JSON, and a user turn carrying the question,
// the analysis tags, and the drawn cards with their catalog meanings.
func buildPrompt(question string, tags domain.QuestionTags, sel cards.Selection, catalog []domain.Card) []genai.Message {
	meanings := make(map[string]domain.Card, len(catalog))
	for _, c := range catalog {
		meanings[c.ID] = c
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n", question)
	fmt.Fprintf(&b, "Mood: %s; Topic: %s; Period: %s\n", tags.Mood, tags.Topic, tags.Period)
	fmt.Fprintf(&b, "Cards drawn (%d):\n", sel.Count)
	for _, d := range sel.Cards {
		c := meanings[d.CardID]
		fmt.Fprintf(&b, "%d. %s - %s (keywords: %s)\n", d.Position, d.DisplayName, c.Meaning, c.Keywords)
	}

	system := `You are a thoughtful card reader. Respond with a single JSON object and nothing else, using this shape:
{"summary": "...", "insights": [{"position": 1, "card_name": "...", "interpretation": "..."}], "advice": "...", "affirmation": "..."}
Provide one insight per drawn card, in position order. Keep the tone warm and non-deterministic about the future.`

	return []genai.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: b.String()},
	}
}
