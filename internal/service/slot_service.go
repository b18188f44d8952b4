package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/provexam/provex-backend/internal/config"
	"github.com/provexam/provex-backend/internal/model"
	"github.com/rs/zerolog"
)

// SlotStore is the upload slot ledger surface.
type SlotStore interface {
	NextGeneration(ctx context.Context, attemptID uuid.UUID, channel string) (int, error)
	InsertBatch(ctx context.Context, slots []model.UploadSlot) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.UploadSlot, error)
	Consume(ctx context.Context, id uuid.UUID) (bool, error)
}

// DestinationProvisioner lazily creates durable media destinations.
type DestinationProvisioner interface {
	EnsureDestination(examID uuid.UUID, studentEmail, channel string) (string, error)
}

// SlotService issues batches of pre-authorized single-use upload handles per
// (attempt, channel). Issuance is independent of grading or session state —
// a soon-to-be-disqualified attempt keeps uploading evidence.
type SlotService struct {
	slots SlotStore
	media DestinationProvisioner
	cfg   *config.Config
	log   zerolog.Logger
}

// NewSlotService creates a new SlotService.
func NewSlotService(slots SlotStore, media DestinationProvisioner, cfg *config.Config, log zerolog.Logger) *SlotService {
	return &SlotService{
		slots: slots,
		media: media,
		cfg:   cfg,
		log:   log.With().Str("component", "slot_service").Logger(),
	}
}

// IssueBatch issues the next generation of slots for one channel. Old
// generations are left to expire unused; they are never reissued.
func (s *SlotService) IssueBatch(ctx context.Context, attempt *model.Attempt, channel string, count int) (*model.SlotBatch, error) {
	if count <= 0 {
		count = s.cfg.SlotBatchSize(channel)
	}
	if count > s.cfg.MaxSlotRequest {
		count = s.cfg.MaxSlotRequest
	}

	dest, err := s.media.EnsureDestination(attempt.ExamID, attempt.StudentEmail, channel)
	if err != nil {
		return nil, storageErr("provision media destination", err)
	}

	gen, err := s.slots.NextGeneration(ctx, attempt.ID, channel)
	if err != nil {
		return nil, storageErr("next slot generation", err)
	}

	now := time.Now()
	slots := make([]model.UploadSlot, 0, count)
	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		slots = append(slots, model.UploadSlot{
			ID:          id,
			AttemptID:   attempt.ID,
			Channel:     channel,
			Generation:  gen,
			Destination: dest,
			IssuedAt:    now,
		})
		ids = append(ids, id)
	}
	if err := s.slots.InsertBatch(ctx, slots); err != nil {
		return nil, storageErr("insert slot batch", err)
	}

	return &model.SlotBatch{Channel: channel, Generation: gen, SlotIDs: ids}, nil
}

// IssueDefaultBatches issues one batch per configured proctoring channel,
// sized for the channel's expected cadence.
func (s *SlotService) IssueDefaultBatches(ctx context.Context, attempt *model.Attempt) ([]model.SlotBatch, error) {
	channels := make([]string, 0, len(s.cfg.SlotBatchSizes))
	for ch := range s.cfg.SlotBatchSizes {
		channels = append(channels, ch)
	}
	sort.Strings(channels)

	batches := make([]model.SlotBatch, 0, len(channels))
	for _, ch := range channels {
		batch, err := s.IssueBatch(ctx, attempt, ch, 0)
		if err != nil {
			return nil, err
		}
		batches = append(batches, *batch)
	}
	return batches, nil
}

// RequestMore replenishes an exhausted channel with a new batch under the
// same destination.
func (s *SlotService) RequestMore(ctx context.Context, attempt *model.Attempt, channel string, count int) (*model.SlotBatch, error) {
	return s.IssueBatch(ctx, attempt, channel, count)
}

// Redeem spends one slot on behalf of an attempt. The handle must exist,
// belong to the attempt, and be unused.
func (s *SlotService) Redeem(ctx context.Context, slotID, attemptID uuid.UUID) (*model.UploadSlot, error) {
	slot, err := s.slots.GetByID(ctx, slotID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, storageErr("get slot", err)
	}
	if slot.AttemptID != attemptID {
		return nil, ErrSlotForbidden
	}

	ok, err := s.slots.Consume(ctx, slotID)
	if err != nil {
		return nil, storageErr("consume slot", err)
	}
	if !ok {
		return nil, ErrSlotSpent
	}
	return slot, nil
}
