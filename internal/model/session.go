package model

import (
	"time"

	"github.com/google/uuid"
)

// DeviceSession is the single-device lock for one student on one exam.
// At most one row per (exam_id, student_email) may be active at a time,
// enforced by a partial unique index. Rows are deactivated, never deleted.
type DeviceSession struct {
	ID                 uuid.UUID  `json:"id"` // doubles as the token's JTI
	ExamID             uuid.UUID  `json:"exam_id"`
	StudentEmail       string     `json:"student_email"`
	DeviceFingerprint  string     `json:"device_fingerprint"`
	Active             bool       `json:"active"`
	IssuedAt           time.Time  `json:"issued_at"`
	ExpiresAt          time.Time  `json:"expires_at"`
	LastActivityAt     time.Time  `json:"last_activity_at"`
	BlockReason        *string    `json:"block_reason,omitempty"`
	BlockedFingerprint *string    `json:"blocked_fingerprint,omitempty"`
	BlockedOrigin      *string    `json:"blocked_origin,omitempty"`
	BlockedAt          *time.Time `json:"blocked_at,omitempty"`
}

// SessionBlock is the audit metadata recorded when a second device is refused.
type SessionBlock struct {
	Reason              string    `json:"reason"`
	OffenderFingerprint string    `json:"offender_fingerprint"`
	OffenderOrigin      string    `json:"offender_origin"`
	BlockedAt           time.Time `json:"blocked_at"`
}

// CreateSessionRequest is the admission payload.
type CreateSessionRequest struct {
	StudentEmail      string `json:"student_email" binding:"required,email"`
	Secret            string `json:"secret" binding:"omitempty,max=128"`
	DeviceFingerprint string `json:"device_fingerprint" binding:"required,min=8,max=128"`
}
