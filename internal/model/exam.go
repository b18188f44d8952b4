package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the possible states of an exam.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusPublished ExamStatus = "PUBLISHED"
	ExamStatusArchived  ExamStatus = "ARCHIVED"
)

// Exam carries the metadata the engine needs to admit, time, and grade an
// attempt. Authoring of exams happens elsewhere; the engine reads them.
type Exam struct {
	ID                        uuid.UUID      `json:"id"`
	Title                     string         `json:"title"`
	ScheduledStart            *time.Time     `json:"scheduled_start,omitempty"`
	ScheduledEnd              *time.Time     `json:"scheduled_end,omitempty"`
	DurationMinutes           int            `json:"duration_minutes"`
	TotalMarks                float64        `json:"total_marks"`
	NegativeMarking           bool           `json:"negative_marking"`
	NegativeMarks             float64        `json:"negative_marks"`
	DisqualifyOnViolation     bool           `json:"disqualify_on_violation"`
	MaxViolationsBeforeAction int            `json:"max_violations_before_action"`
	CredentialMode            CredentialMode `json:"credential_mode"`
	Status                    ExamStatus     `json:"status"`
	CreatedAt                 time.Time      `json:"created_at"`
	UpdatedAt                 time.Time      `json:"updated_at"`
}
