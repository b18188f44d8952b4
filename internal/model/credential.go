package model

import (
	"time"

	"github.com/google/uuid"
)

// CredentialMode distinguishes a shared entry secret from per-student secrets.
type CredentialMode string

const (
	CredentialModeShared     CredentialMode = "SHARED"
	CredentialModePerStudent CredentialMode = "PER_STUDENT"
)

// ExamCredential is the published credential record for an exam.
// Immutable once published; the engine only reads it.
type ExamCredential struct {
	ExamID       uuid.UUID      `json:"exam_id"`
	Mode         CredentialMode `json:"mode"`
	SharedSecret string         `json:"-"`
	CreatedAt    time.Time      `json:"created_at"`
}

// StudentCredential is one row of a PER_STUDENT secret table.
// The secret is stored as a bcrypt hash.
type StudentCredential struct {
	ExamID       uuid.UUID `json:"exam_id"`
	StudentEmail string    `json:"student_email"`
	SecretHash   string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
