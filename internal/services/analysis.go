// Package services – question filtering and analysis.
//
// These are the first two pipeline stages. ValidateQuestion rejects empty,
// multi-part, and disallowed-content questions before any credit or provider
// call is at risk. AnalyzeQuestion derives mood/topic/period tags from the
// question text; it is pure and has no side effects. The tags season the
// generation prompt and are stored on the answer.
package services

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/tbourn/go-reading-backend/internal/domain"
)

// Question limits. Multi-part detection counts question marks and
// enumeration-style connectors rather than attempting full parsing.
const (
	minQuestionRunes = 4
	maxQuestionRunes = 500
)

// wordRE extracts letter/digit tokens for keyword matching.
var wordRE = regexp.MustCompile(`[\p{L}\p{N}]+`)

// disallowedTerms mark questions the pipeline refuses to process. The list is
// deliberately small; upstream moderation owns the broader policy.
var disallowedTerms = map[string]struct{}{
	"suicide": {}, "kill": {}, "overdose": {}, "lottery": {}, "gamble": {},
	"diagnosis": {}, "prescription": {},
}

// multiPartConnectors split a prompt into independently answerable parts.
var multiPartConnectors = []string{"; and ", "? and ", "? also ", " additionally "}

// ValidateQuestion normalizes the question and rejects it when it is empty,
// too short/long, multi-part, or contains disallowed content. It returns the
// trimmed question on success.
func ValidateQuestion(question string) (string, error) {
	q := strings.TrimSpace(question)
	if q == "" {
		return "", ErrInvalidQuestion
	}
	if n := utf8.RuneCountInString(q); n < minQuestionRunes || n > maxQuestionRunes {
		return "", ErrInvalidQuestion
	}

	// Multi-part: more than one question mark with text after the first, or
	// an explicit enumeration connector.
	if i := strings.Index(q, "?"); i >= 0 && i < len(q)-1 {
		rest := strings.TrimSpace(q[i+1:])
		if rest != "" && rest != "?" {
			return "", ErrInvalidQuestion
		}
	}
	lower := strings.ToLower(q)
	for _, c := range multiPartConnectors {
		if strings.Contains(lower, c) {
			return "", ErrInvalidQuestion
		}
	}

	for _, tok := range wordRE.FindAllString(lower, -1) {
		if _, bad := disallowedTerms[tok]; bad {
			return "", ErrInvalidQuestion
		}
	}
	return q, nil
}

// Keyword tables for the analysis stage. Each bucket maps a tag value to the
// tokens that vote for it; the bucket with the most hits wins.
var (
	moodKeywords = map[string][]string{
		"anxious":  {"worried", "afraid", "scared", "anxious", "nervous", "fear", "lost"},
		"hopeful":  {"hope", "wish", "dream", "excited", "looking", "forward", "ready"},
		"confused": {"confused", "unsure", "torn", "stuck", "doubt", "why"},
	}
	topicKeywords = map[string][]string{
		domain.ReadingTypeLove:    {"love", "relationship", "partner", "crush", "marriage", "breakup", "ex", "date"},
		domain.ReadingTypeCareer:  {"job", "career", "work", "promotion", "boss", "interview", "business", "study"},
		domain.ReadingTypeFinance: {"money", "finance", "debt", "salary", "invest", "savings", "rent"},
	}
	periodKeywords = map[string][]string{
		"past":   {"was", "did", "happened", "before", "used", "ago"},
		"future": {"will", "going", "next", "soon", "future", "tomorrow", "someday"},
	}
)

// AnalyzeQuestion classifies the question into mood/topic/period tags. The
// declared reading type wins over keyword votes for the topic; unmatched
// buckets fall back to neutral defaults.
func AnalyzeQuestion(question, readingType string) domain.QuestionTags {
	tokens := map[string]struct{}{}
	for _, t := range wordRE.FindAllString(strings.ToLower(question), -1) {
		tokens[t] = struct{}{}
	}

	pick := func(buckets map[string][]string, def string) string {
		best, bestHits := def, 0
		for tag, words := range buckets {
			hits := 0
			for _, w := range words {
				if _, ok := tokens[w]; ok {
					hits++
				}
			}
			if hits > bestHits {
				best, bestHits = tag, hits
			}
		}
		return best
	}

	topic := readingType
	if topic == "" || topic == domain.ReadingTypeGeneral {
		topic = pick(topicKeywords, domain.ReadingTypeGeneral)
	}

	return domain.QuestionTags{
		Mood:   pick(moodKeywords, "calm"),
		Topic:  topic,
		Period: pick(periodKeywords, "present"),
	}
}
