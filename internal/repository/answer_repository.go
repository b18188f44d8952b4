package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/provexam/provex-backend/internal/model"
)

// AnswerRepository handles per-question answer data access.
type AnswerRepository struct {
	pool *pgxpool.Pool
}

// NewAnswerRepository creates a new AnswerRepository.
func NewAnswerRepository(pool *pgxpool.Pool) *AnswerRepository {
	return &AnswerRepository{pool: pool}
}

// Upsert creates or overwrites an answer. The submitted flag is monotonic:
// `submitted OR EXCLUDED.submitted` can flip false→true but never back.
func (r *AnswerRepository) Upsert(ctx context.Context, a *model.Answer) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO student_answers (attempt_id, question_id, payload, submitted)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (attempt_id, question_id) DO UPDATE
		 SET payload = EXCLUDED.payload,
		     submitted = student_answers.submitted OR EXCLUDED.submitted,
		     updated_at = NOW()`,
		a.AttemptID, a.QuestionID, a.Payload, a.Submitted)
	return err
}

// ListByAttempt returns all answers of an attempt in question order.
func (r *AnswerRepository) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.Answer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT sa.attempt_id, sa.question_id, sa.payload, sa.submitted,
		        sa.correct, sa.marks_awarded, sa.updated_at
		 FROM student_answers sa
		 LEFT JOIN questions q ON q.id = sa.question_id
		 WHERE sa.attempt_id = $1
		 ORDER BY q.order_num, sa.question_id`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.Answer
	for rows.Next() {
		var a model.Answer
		if err := rows.Scan(&a.AttemptID, &a.QuestionID, &a.Payload, &a.Submitted,
			&a.Correct, &a.MarksAwarded, &a.UpdatedAt); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// ApplyGrades writes grading outcomes onto the answer rows in one statement.
func (r *AnswerRepository) ApplyGrades(ctx context.Context, attemptID uuid.UUID, results []model.QuestionResult) error {
	if len(results) == 0 {
		return nil
	}

	n := len(results)
	questionIDs := make([]uuid.UUID, 0, n)
	corrects := make([]*bool, 0, n)
	marks := make([]float64, 0, n)
	for _, res := range results {
		questionIDs = append(questionIDs, res.QuestionID)
		corrects = append(corrects, res.Correct)
		marks = append(marks, res.MarksAwarded)
	}

	_, err := r.pool.Exec(ctx,
		`UPDATE student_answers AS sa
		 SET correct = t.correct, marks_awarded = t.marks, updated_at = NOW()
		 FROM (
			SELECT u.question_id, u.correct, u.marks
			FROM UNNEST($2::uuid[], $3::bool[], $4::float8[])
			     AS u (question_id, correct, marks)
		 ) AS t
		 WHERE sa.attempt_id = $1 AND sa.question_id = t.question_id`,
		attemptID, questionIDs, corrects, marks)
	return err
}
