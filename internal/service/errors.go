package service

import (
	"errors"
	"fmt"

	"github.com/provexam/provex-backend/internal/model"
)

// Sentinel errors shared across services.
var (
	ErrExamNotFound        = errors.New("exam not found")
	ErrExamNotAvailable    = errors.New("exam is not available")
	ErrAttemptNotFound     = errors.New("no attempt exists for this session")
	ErrAttemptNotFinalized = errors.New("attempt is not finalized yet")
	ErrSlotNotFound        = errors.New("upload slot not found")
	ErrSlotForbidden       = errors.New("upload slot belongs to another attempt")
	ErrSlotSpent           = errors.New("upload slot already used")
)

// CredentialReason discriminates credential failures so callers can tell
// "not provisioned" apart from "wrong value".
type CredentialReason string

const (
	CredentialMissing        CredentialReason = "MISSING"
	CredentialIncorrect      CredentialReason = "INCORRECT"
	CredentialNotProvisioned CredentialReason = "NOT_PROVISIONED"
)

// CredentialError reports a rejected exam credential.
type CredentialError struct {
	Reason CredentialReason
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential rejected: %s", e.Reason)
}

// SessionDeniedError reports an admission blocked by the device lock.
// It carries the block metadata written to the legitimate session's row.
type SessionDeniedError struct {
	Block model.SessionBlock
}

func (e *SessionDeniedError) Error() string {
	return "admission denied: another device holds the active session"
}

// SessionInvalidReason discriminates validation failures so callers can
// choose between re-authentication and a hard failure.
type SessionInvalidReason string

const (
	SessionNotFound       SessionInvalidReason = "NOT_FOUND"
	SessionExpired        SessionInvalidReason = "EXPIRED"
	SessionDeviceMismatch SessionInvalidReason = "DEVICE_MISMATCH"
)

// SessionInvalidError reports a session that failed validation.
type SessionInvalidError struct {
	Reason SessionInvalidReason
}

func (e *SessionInvalidError) Error() string {
	return fmt.Sprintf("session invalid: %s", e.Reason)
}

// AttemptFinalizedError reports a start/resume against a terminal attempt.
// No reattempt is ever possible for that (exam, student) pair.
type AttemptFinalizedError struct {
	Status model.AttemptStatus
}

func (e *AttemptFinalizedError) Error() string {
	return fmt.Sprintf("attempt already finalized as %s, no reattempt allowed", e.Status)
}

// StorageError wraps a record-store failure. Every engine operation is safe
// to retry in full after one of these.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}
