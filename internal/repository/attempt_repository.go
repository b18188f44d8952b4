package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/provexam/provex-backend/internal/model"
)

const attemptColumns = `id, exam_id, student_email, status, started_at, finished_at,
	time_spent_seconds, score, total_marks, percentage, violation_count`

// AttemptRepository handles attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

func scanAttempt(row interface{ Scan(...any) error }) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := row.Scan(&a.ID, &a.ExamID, &a.StudentEmail, &a.Status, &a.StartedAt,
		&a.FinishedAt, &a.TimeSpentSeconds, &a.Score, &a.TotalMarks,
		&a.Percentage, &a.ViolationCount)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetByExamAndStudent retrieves the attempt for an exam-student pair.
func (r *AttemptRepository) GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentEmail string) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM attempts WHERE exam_id = $1 AND student_email = $2`,
		examID, studentEmail))
}

// GetByID retrieves an attempt by its identifier.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE id = $1`, id))
}

// Create inserts a new IN_PROGRESS attempt. A concurrent start for the same
// pair loses the unique constraint and gets pgx.ErrNoRows; the caller refetches.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO attempts (id, exam_id, student_email, status, total_marks)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (exam_id, student_email) DO NOTHING
		 RETURNING started_at`,
		a.ID, a.ExamID, a.StudentEmail, model.AttemptStatusInProgress, a.TotalMarks,
	).Scan(&a.StartedAt)
}

// IncrementViolations bumps the attempt's violation counter and returns the
// new count. The counter is authoritative at submission time.
func (r *AttemptRepository) IncrementViolations(ctx context.Context, id uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`UPDATE attempts SET violation_count = violation_count + 1
		 WHERE id = $1
		 RETURNING violation_count`, id,
	).Scan(&count)
	return count, err
}

// Finalize transitions an IN_PROGRESS attempt to a terminal state exactly once.
// Returns false when the attempt was already terminal, letting the caller
// treat a retried submit as an idempotent no-op.
func (r *AttemptRepository) Finalize(ctx context.Context, id uuid.UUID, status model.AttemptStatus,
	score, percentage float64, timeSpent int64, finishedAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = $1, score = $2, percentage = $3,
		     time_spent_seconds = $4, finished_at = $5
		 WHERE id = $6 AND status = $7`,
		status, score, percentage, timeSpent, finishedAt, id, model.AttemptStatusInProgress)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListByExam retrieves attempt statuses for reporting, newest first.
func (r *AttemptRepository) ListByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]model.Attempt, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempts WHERE exam_id = $1`, examID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+`
		 FROM attempts
		 WHERE exam_id = $1
		 ORDER BY started_at DESC
		 LIMIT $2 OFFSET $3`,
		examID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, 0, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, total, rows.Err()
}
