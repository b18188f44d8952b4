package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus enumerates attempt lifecycle states.
// IN_PROGRESS is the only non-terminal state; COMPLETED and DISQUALIFIED
// are absorbing.
type AttemptStatus string

const (
	AttemptStatusInProgress   AttemptStatus = "IN_PROGRESS"
	AttemptStatusCompleted    AttemptStatus = "COMPLETED"
	AttemptStatusDisqualified AttemptStatus = "DISQUALIFIED"
)

// IsTerminal reports whether the status permanently forbids new activity.
func (s AttemptStatus) IsTerminal() bool {
	return s == AttemptStatusCompleted || s == AttemptStatusDisqualified
}

// Attempt is one student's timed engagement with an exam.
// At most one IN_PROGRESS row may exist per (exam_id, student_email); a
// terminal row permanently forbids reattempts for that pair.
type Attempt struct {
	ID               uuid.UUID     `json:"id"`
	ExamID           uuid.UUID     `json:"exam_id"`
	StudentEmail     string        `json:"student_email"`
	Status           AttemptStatus `json:"status"`
	StartedAt        time.Time     `json:"started_at"`
	FinishedAt       *time.Time    `json:"finished_at,omitempty"`
	TimeSpentSeconds *int64        `json:"time_spent_seconds,omitempty"`
	Score            *float64      `json:"score,omitempty"`
	TotalMarks       float64       `json:"total_marks"`
	Percentage       *float64      `json:"percentage,omitempty"`
	ViolationCount   int           `json:"violation_count"`
}
