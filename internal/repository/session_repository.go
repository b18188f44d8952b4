package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/provexam/provex-backend/internal/model"
)

const sessionColumns = `id, exam_id, student_email, device_fingerprint, active,
	issued_at, expires_at, last_activity_at,
	block_reason, blocked_fingerprint, blocked_origin, blocked_at`

// SessionRepository handles device session data access.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

func scanSession(row interface{ Scan(...any) error }) (*model.DeviceSession, error) {
	s := &model.DeviceSession{}
	err := row.Scan(&s.ID, &s.ExamID, &s.StudentEmail, &s.DeviceFingerprint, &s.Active,
		&s.IssuedAt, &s.ExpiresAt, &s.LastActivityAt,
		&s.BlockReason, &s.BlockedFingerprint, &s.BlockedOrigin, &s.BlockedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// GetActive retrieves the active session for (exam, student), if any.
func (r *SessionRepository) GetActive(ctx context.Context, examID uuid.UUID, studentEmail string) (*model.DeviceSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+`
		 FROM device_sessions
		 WHERE exam_id = $1 AND student_email = $2 AND active`,
		examID, studentEmail))
}

// GetByID retrieves a session by its token ID.
func (r *SessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.DeviceSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+`
		 FROM device_sessions WHERE id = $1`, id))
}

// Create inserts a new active session. The partial unique index on
// (exam_id, student_email) WHERE active makes two concurrent first admissions
// race safely: the loser gets pgx.ErrNoRows and must refetch the winner's row.
func (r *SessionRepository) Create(ctx context.Context, s *model.DeviceSession) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO device_sessions
		   (id, exam_id, student_email, device_fingerprint, active, expires_at)
		 VALUES ($1, $2, $3, $4, TRUE, $5)
		 ON CONFLICT (exam_id, student_email) WHERE active DO NOTHING
		 RETURNING issued_at, last_activity_at`,
		s.ID, s.ExamID, s.StudentEmail, s.DeviceFingerprint, s.ExpiresAt,
	).Scan(&s.IssuedAt, &s.LastActivityAt)
}

// Touch refreshes the session's last-activity timestamp.
func (r *SessionRepository) Touch(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE device_sessions SET last_activity_at = NOW() WHERE id = $1`, id)
	return err
}

// Deactivate ends a session. Rows stay behind as an audit trail.
func (r *SessionRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE device_sessions SET active = FALSE WHERE id = $1`, id)
	return err
}

// RecordBlock writes block metadata onto the legitimate session's row when a
// second device is refused admission. The session itself stays active.
func (r *SessionRepository) RecordBlock(ctx context.Context, id uuid.UUID, block model.SessionBlock) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE device_sessions
		 SET block_reason = $1, blocked_fingerprint = $2,
		     blocked_origin = $3, blocked_at = $4
		 WHERE id = $5`,
		block.Reason, block.OffenderFingerprint, block.OffenderOrigin, block.BlockedAt, id)
	return err
}

// DeactivateExpired sweeps sessions whose expiry has passed. Returns the
// number of rows deactivated.
func (r *SessionRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE device_sessions SET active = FALSE WHERE active AND expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
