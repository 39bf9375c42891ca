// Package domain – ReadingAnswer
//
// This file defines the typed, version-marked schema for the generated
// reading payload. The answer is stored as a JSON column but is never treated
// as a loosely-typed bag: it is validated on read (Scan) and carries an
// explicit SchemaVersion so older rows can be recognized.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// AnswerSchemaVersion is the schema version written by this build.
const AnswerSchemaVersion = 1

// DrawnCard is one card drawn for a reading, with its 1-based position in
// shuffle order.
type DrawnCard struct {
	Position    int    `json:"position"`
	CardID      string `json:"card_id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

// CardInsight is the generated interpretation for one drawn card.
type CardInsight struct {
	Position       int    `json:"position"`
	CardName       string `json:"card_name"`
	Interpretation string `json:"interpretation"`
}

// QuestionTags is the side-effect-free classification derived from the
// question text before generation.
type QuestionTags struct {
	Mood   string `json:"mood"`
	Topic  string `json:"topic"`
	Period string `json:"period"`
}

// ReadingAnswer is the structured payload of a completed reading.
//
// Summary, Insights, Advice and Affirmation come from the generation
// provider; Cards and Tags are produced by the pipeline itself.
type ReadingAnswer struct {
	SchemaVersion int           `json:"schema_version"`
	Summary       string        `json:"summary"`
	Insights      []CardInsight `json:"insights"`
	Advice        string        `json:"advice"`
	Affirmation   string        `json:"affirmation"`
	Cards         []DrawnCard   `json:"cards"`
	Tags          QuestionTags  `json:"tags"`
}

// Validate checks the structural invariants of a stored answer.
func (a *ReadingAnswer) Validate() error {
	if a.SchemaVersion < 1 || a.SchemaVersion > AnswerSchemaVersion {
		return fmt.Errorf("unsupported answer schema version %d", a.SchemaVersion)
	}
	if a.Summary == "" {
		return errors.New("answer summary is empty")
	}
	if len(a.Cards) == 0 {
		return errors.New("answer has no drawn cards")
	}
	return nil
}

// Value implements driver.Valuer so GORM can persist the answer as JSON text.
func (a ReadingAnswer) Value() (driver.Value, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner. It decodes the JSON column and validates the
// payload so a corrupted row surfaces as an error instead of a zero struct.
func (a *ReadingAnswer) Scan(src any) error {
	if src == nil {
		return nil
	}
	var b []byte
	switch v := src.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into ReadingAnswer", src)
	}
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, a); err != nil {
		return err
	}
	return a.Validate()
}
