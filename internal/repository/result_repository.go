package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/provexam/provex-backend/internal/model"
)

// ResultRepository handles the append-only grading output sink.
type ResultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository creates a new ResultRepository.
func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

// BulkAppend writes a batch of question results with COPY.
// Duplicates fail the whole COPY; callers fall back to Append per row.
func (r *ResultRepository) BulkAppend(ctx context.Context, batch []*model.QuestionResult) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, qr := range batch {
		rows = append(rows, []interface{}{
			qr.AttemptID, qr.QuestionID, qr.StudentAnswer, qr.CanonicalAnswer,
			qr.Graded, qr.Correct, qr.MarksAwarded,
		})
	}

	_, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"attempt_results"},
		[]string{"attempt_id", "question_id", "student_answer", "canonical_answer",
			"graded", "correct", "marks_awarded"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// Append inserts one result row, ignoring a duplicate from a retried submit.
func (r *ResultRepository) Append(ctx context.Context, qr *model.QuestionResult) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO attempt_results
		   (attempt_id, question_id, student_answer, canonical_answer, graded, correct, marks_awarded)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (attempt_id, question_id) DO NOTHING`,
		qr.AttemptID, qr.QuestionID, qr.StudentAnswer, qr.CanonicalAnswer,
		qr.Graded, qr.Correct, qr.MarksAwarded)
	return err
}

// ListByAttempt returns the persisted results for an attempt in question order.
func (r *ResultRepository) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.QuestionResult, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT ar.attempt_id, ar.question_id, ar.student_answer, ar.canonical_answer,
		        ar.graded, ar.correct, ar.marks_awarded
		 FROM attempt_results ar
		 LEFT JOIN questions q ON q.id = ar.question_id
		 WHERE ar.attempt_id = $1
		 ORDER BY q.order_num, ar.question_id`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.QuestionResult
	for rows.Next() {
		var qr model.QuestionResult
		if err := rows.Scan(&qr.AttemptID, &qr.QuestionID, &qr.StudentAnswer,
			&qr.CanonicalAnswer, &qr.Graded, &qr.Correct, &qr.MarksAwarded); err != nil {
			return nil, err
		}
		results = append(results, qr)
	}
	return results, rows.Err()
}
