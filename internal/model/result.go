package model

import (
	"github.com/google/uuid"
)

// QuestionResult is one normalized grading outcome emitted to the result sink
// after submission. The sink's table is append-only, keyed by attempt.
type QuestionResult struct {
	AttemptID       uuid.UUID `json:"attempt_id"`
	QuestionID      uuid.UUID `json:"question_id"`
	StudentAnswer   string    `json:"student_answer"`
	CanonicalAnswer string    `json:"canonical_answer"`
	Graded          bool      `json:"graded"`
	Correct         *bool     `json:"correct,omitempty"`
	MarksAwarded    float64   `json:"marks_awarded"`
}

// AttemptResult is the full outcome returned by getResult.
type AttemptResult struct {
	Attempt   Attempt          `json:"attempt"`
	Questions []QuestionResult `json:"questions"`
}
