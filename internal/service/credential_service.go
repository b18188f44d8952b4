package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/provexam/provex-backend/internal/model"
	"golang.org/x/crypto/bcrypt"
)

// CredentialStore is the read surface of the credential tables.
type CredentialStore interface {
	GetByExam(ctx context.Context, examID uuid.UUID) (*model.ExamCredential, error)
	GetStudentCredential(ctx context.Context, examID uuid.UUID, studentEmail string) (*model.StudentCredential, error)
}

// CredentialService verifies exam credentials. Stateless, no side effects.
type CredentialService struct {
	creds CredentialStore
}

// NewCredentialService creates a new CredentialService.
func NewCredentialService(creds CredentialStore) *CredentialService {
	return &CredentialService{creds: creds}
}

// Verify checks a submitted credential against the exam's published one.
// SHARED mode compares the trimmed values exactly, case-sensitive.
// PER_STUDENT mode distinguishes a missing row (NOT_PROVISIONED) from a
// bcrypt mismatch (INCORRECT).
func (s *CredentialService) Verify(ctx context.Context, examID uuid.UUID, studentEmail, secret string) error {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return &CredentialError{Reason: CredentialMissing}
	}

	cred, err := s.creds.GetByExam(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &CredentialError{Reason: CredentialNotProvisioned}
		}
		return storageErr("get exam credential", err)
	}

	switch cred.Mode {
	case model.CredentialModeShared:
		if secret != strings.TrimSpace(cred.SharedSecret) {
			return &CredentialError{Reason: CredentialIncorrect}
		}
		return nil

	case model.CredentialModePerStudent:
		row, err := s.creds.GetStudentCredential(ctx, examID, studentEmail)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return &CredentialError{Reason: CredentialNotProvisioned}
			}
			return storageErr("get student credential", err)
		}
		if bcrypt.CompareHashAndPassword([]byte(row.SecretHash), []byte(secret)) != nil {
			return &CredentialError{Reason: CredentialIncorrect}
		}
		return nil

	default:
		return &CredentialError{Reason: CredentialNotProvisioned}
	}
}
