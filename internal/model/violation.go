package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ViolationSeverity classifies how serious an integrity event is.
type ViolationSeverity string

const (
	SeverityLow    ViolationSeverity = "LOW"
	SeverityMedium ViolationSeverity = "MEDIUM"
	SeverityHigh   ViolationSeverity = "HIGH"
)

// severityTable is the fixed classification of violation types.
var severityTable = map[string]ViolationSeverity{
	"fullscreen_exit": SeverityHigh,
	"tab_switch":      SeverityHigh,
	"window_blur":     SeverityHigh,
	"copy":            SeverityMedium,
	"paste":           SeverityMedium,
	"right_click":     SeverityMedium,
}

// SeverityFor returns the severity for a violation type. Unknown types are LOW.
func SeverityFor(violationType string) ViolationSeverity {
	if s, ok := severityTable[violationType]; ok {
		return s
	}
	return SeverityLow
}

// Violation is one append-only integrity event on an attempt.
// Rows are never mutated or deleted.
type Violation struct {
	ID         uuid.UUID         `json:"id"`
	AttemptID  uuid.UUID         `json:"attempt_id"`
	Type       string            `json:"type"`
	Severity   ViolationSeverity `json:"severity"`
	Detail     json.RawMessage   `json:"detail,omitempty"`
	RecordedAt time.Time         `json:"recorded_at"`
}

// RecordViolationRequest is the integrity-event payload.
type RecordViolationRequest struct {
	Type   string          `json:"type" binding:"required,min=1,max=64"`
	Detail json.RawMessage `json:"detail" binding:"omitempty"`
}
