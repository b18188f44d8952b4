package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/provexam/provex-backend/internal/model"
)

// SlotRepository handles the upload slot ledger.
type SlotRepository struct {
	pool *pgxpool.Pool
}

// NewSlotRepository creates a new SlotRepository.
func NewSlotRepository(pool *pgxpool.Pool) *SlotRepository {
	return &SlotRepository{pool: pool}
}

// NextGeneration returns the generation number the next batch for
// (attempt, channel) should carry.
func (r *SlotRepository) NextGeneration(ctx context.Context, attemptID uuid.UUID, channel string) (int, error) {
	var gen int
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(MAX(generation), 0) + 1
		 FROM upload_slots
		 WHERE attempt_id = $1 AND channel = $2`, attemptID, channel,
	).Scan(&gen)
	return gen, err
}

// InsertBatch writes a freshly issued slot batch with COPY.
func (r *SlotRepository) InsertBatch(ctx context.Context, slots []model.UploadSlot) error {
	rows := make([][]interface{}, 0, len(slots))
	for _, s := range slots {
		rows = append(rows, []interface{}{
			s.ID, s.AttemptID, s.Channel, s.Generation, s.Destination, s.IssuedAt,
		})
	}

	_, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"upload_slots"},
		[]string{"id", "attempt_id", "channel", "generation", "destination", "issued_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// GetByID retrieves a slot by its handle.
func (r *SlotRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.UploadSlot, error) {
	s := &model.UploadSlot{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, attempt_id, channel, generation, destination, used, used_at, issued_at
		 FROM upload_slots WHERE id = $1`, id,
	).Scan(&s.ID, &s.AttemptID, &s.Channel, &s.Generation, &s.Destination,
		&s.Used, &s.UsedAt, &s.IssuedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Consume marks a slot used. Returns false when the slot was already spent,
// so a handle can never authorize two writes.
func (r *SlotRepository) Consume(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE upload_slots SET used = TRUE, used_at = NOW()
		 WHERE id = $1 AND NOT used`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
