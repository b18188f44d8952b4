package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/provexam/provex-backend/internal/model"
)

// CredentialRepository reads published exam credentials. The engine never
// creates or rotates credentials; cmd/provision-credentials does.
type CredentialRepository struct {
	pool *pgxpool.Pool
}

// NewCredentialRepository creates a new CredentialRepository.
func NewCredentialRepository(pool *pgxpool.Pool) *CredentialRepository {
	return &CredentialRepository{pool: pool}
}

// GetByExam retrieves the credential record for an exam.
func (r *CredentialRepository) GetByExam(ctx context.Context, examID uuid.UUID) (*model.ExamCredential, error) {
	c := &model.ExamCredential{}
	var shared *string
	err := r.pool.QueryRow(ctx,
		`SELECT exam_id, mode, shared_secret, created_at
		 FROM exam_credentials WHERE exam_id = $1`, examID,
	).Scan(&c.ExamID, &c.Mode, &shared, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	if shared != nil {
		c.SharedSecret = *shared
	}
	return c, nil
}

// GetStudentCredential retrieves a per-student secret row.
func (r *CredentialRepository) GetStudentCredential(ctx context.Context, examID uuid.UUID, studentEmail string) (*model.StudentCredential, error) {
	c := &model.StudentCredential{}
	err := r.pool.QueryRow(ctx,
		`SELECT exam_id, student_email, secret_hash, created_at
		 FROM exam_student_credentials
		 WHERE exam_id = $1 AND student_email = $2`, examID, studentEmail,
	).Scan(&c.ExamID, &c.StudentEmail, &c.SecretHash, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// UpsertShared publishes a SHARED credential for an exam.
// Used only by the provisioning CLI.
func (r *CredentialRepository) UpsertShared(ctx context.Context, examID uuid.UUID, secret string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO exam_credentials (exam_id, mode, shared_secret)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (exam_id) DO UPDATE
		 SET mode = EXCLUDED.mode, shared_secret = EXCLUDED.shared_secret`,
		examID, model.CredentialModeShared, secret)
	return err
}

// UpsertStudent publishes one PER_STUDENT secret row.
// Used only by the provisioning CLI.
func (r *CredentialRepository) UpsertStudent(ctx context.Context, examID uuid.UUID, studentEmail, secretHash string) error {
	if _, err := r.pool.Exec(ctx,
		`INSERT INTO exam_credentials (exam_id, mode)
		 VALUES ($1, $2)
		 ON CONFLICT (exam_id) DO UPDATE SET mode = EXCLUDED.mode`,
		examID, model.CredentialModePerStudent); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO exam_student_credentials (exam_id, student_email, secret_hash)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (exam_id, student_email) DO UPDATE
		 SET secret_hash = EXCLUDED.secret_hash`,
		examID, studentEmail, secretHash)
	return err
}
