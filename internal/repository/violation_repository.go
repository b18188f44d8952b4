package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/provexam/provex-backend/internal/model"
)

// ViolationRepository handles append-only integrity event storage.
// Rows are never updated or deleted.
type ViolationRepository struct {
	pool *pgxpool.Pool
}

// NewViolationRepository creates a new ViolationRepository.
func NewViolationRepository(pool *pgxpool.Pool) *ViolationRepository {
	return &ViolationRepository{pool: pool}
}

// Append inserts a single violation row.
func (r *ViolationRepository) Append(ctx context.Context, v *model.Violation) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO attempt_violations (id, attempt_id, type, severity, detail, recorded_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		v.ID, v.AttemptID, v.Type, v.Severity, v.Detail, v.RecordedAt)
	return err
}

// BulkAppend inserts a batch of violation rows with COPY.
func (r *ViolationRepository) BulkAppend(ctx context.Context, batch []*model.Violation) error {
	rows := make([][]interface{}, 0, len(batch))
	for _, v := range batch {
		rows = append(rows, []interface{}{
			v.ID, v.AttemptID, v.Type, v.Severity, v.Detail, v.RecordedAt,
		})
	}

	_, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"attempt_violations"},
		[]string{"id", "attempt_id", "type", "severity", "detail", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// ListByAttempt returns an attempt's violations in recording order.
func (r *ViolationRepository) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.Violation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, attempt_id, type, severity, detail, recorded_at
		 FROM attempt_violations
		 WHERE attempt_id = $1
		 ORDER BY recorded_at`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var violations []model.Violation
	for rows.Next() {
		var v model.Violation
		if err := rows.Scan(&v.ID, &v.AttemptID, &v.Type, &v.Severity, &v.Detail, &v.RecordedAt); err != nil {
			return nil, err
		}
		violations = append(violations, v)
	}
	return violations, rows.Err()
}
