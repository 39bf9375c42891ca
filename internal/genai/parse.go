// Package genai – response parsing and validation.
//
// The provider returns free-form text that is expected to contain a JSON
// object, possibly wrapped in a Markdown code fence. ParseAndValidate is the
// gate the pipeline uses to decide whether a generation attempt is usable or
// the call should be retried.
package genai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RequiredFields are the payload fields every generated reading must carry.
var RequiredFields = []string{"summary", "insights", "advice", "affirmation"}

// GeneratedReading is the shape the provider is prompted to produce. It is a
// subset of domain.ReadingAnswer: the pipeline adds cards, tags, and the
// schema version after validation.
type GeneratedReading struct {
	Summary     string `json:"summary"`
	Insights    []struct {
		Position       int    `json:"position"`
		CardName       string `json:"card_name"`
		Interpretation string `json:"interpretation"`
	} `json:"insights"`
	Advice      string `json:"advice"`
	Affirmation string `json:"affirmation"`
}

// ParseError describes why a generation attempt was rejected. It names the
// missing or invalid fields so the caller can log a precise reason before
// retrying.
type ParseError struct {
	Reason  string
	Missing []string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	if len(e.Missing) > 0 {
		return fmt.Sprintf("%s: missing fields %s", e.Reason, strings.Join(e.Missing, ", "))
	}
	return e.Reason
}

// StripFence removes an enclosing Markdown code fence (``` or ```json) when
// present. Text without a fence is returned unchanged apart from surrounding
// whitespace, so fenced and bare payloads parse identically.
func StripFence(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	// Drop a language hint on the opening fence line ("json", "JSON", …).
	if i := strings.IndexByte(t, '\n'); i >= 0 {
		first := strings.TrimSpace(t[:i])
		if first == "" || !strings.ContainsAny(first, "{[") {
			t = t[i+1:]
		}
	}
	if i := strings.LastIndex(t, "```"); i >= 0 {
		t = t[:i]
	}
	return strings.TrimSpace(t)
}

// Parse strips an optional code fence and decodes the JSON payload.
func Parse(text string) (*GeneratedReading, error) {
	clean := StripFence(text)
	if clean == "" {
		return nil, &ParseError{Reason: "empty generation output"}
	}
	var g GeneratedReading
	if err := json.Unmarshal([]byte(clean), &g); err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf("malformed JSON: %v", err)}
	}
	return &g, nil
}

// Validate reports which required fields are absent from the payload.
func Validate(g *GeneratedReading) (valid bool, missing []string) {
	if strings.TrimSpace(g.Summary) == "" {
		missing = append(missing, "summary")
	}
	if len(g.Insights) == 0 {
		missing = append(missing, "insights")
	}
	if strings.TrimSpace(g.Advice) == "" {
		missing = append(missing, "advice")
	}
	if strings.TrimSpace(g.Affirmation) == "" {
		missing = append(missing, "affirmation")
	}
	return len(missing) == 0, missing
}

// ParseAndValidate composes Parse and Validate, returning either a usable
// payload or a *ParseError naming what was wrong.
func ParseAndValidate(text string) (*GeneratedReading, error) {
	g, err := Parse(text)
	if err != nil {
		return nil, err
	}
	if ok, missing := Validate(g); !ok {
		return nil, &ParseError{Reason: "incomplete generation output", Missing: missing}
	}
	return g, nil
}
