package model

import (
	"time"

	"github.com/google/uuid"
)

// Answer is one autosaved answer for one question of an attempt.
// Submitted is monotonic: once true it never flips back to false, no matter
// what later autosaves carry. Grading fields are filled once, at submission.
type Answer struct {
	AttemptID    uuid.UUID `json:"attempt_id"`
	QuestionID   uuid.UUID `json:"question_id"`
	Payload      string    `json:"payload"`
	Submitted    bool      `json:"submitted"`
	Correct      *bool     `json:"correct,omitempty"`
	MarksAwarded *float64  `json:"marks_awarded,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Merge applies an incoming autosave onto an existing answer, preserving the
// monotonic submitted flag and the grading fields.
func (a Answer) Merge(payload string, submitted bool, at time.Time) Answer {
	a.Payload = payload
	a.Submitted = a.Submitted || submitted
	a.UpdatedAt = at
	return a
}

// CachedAnswer is the redis-hash form of an autosaved answer, keyed by
// question ID under the attempt's answers hash.
type CachedAnswer struct {
	Payload   string    `json:"payload"`
	Submitted bool      `json:"submitted"`
	SavedAt   time.Time `json:"saved_at"`
}

// SaveAnswerRequest is the autosave payload.
type SaveAnswerRequest struct {
	Payload   string `json:"payload" binding:"max=65536"`
	Submitted bool   `json:"submitted"`
}
