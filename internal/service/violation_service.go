package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/provexam/provex-backend/internal/config"
	"github.com/provexam/provex-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ViolationStore is the append-only violation collection surface.
type ViolationStore interface {
	Append(ctx context.Context, v *model.Violation) error
	ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.Violation, error)
}

// ViolationCounter bumps the attempt row's authoritative counter.
type ViolationCounter interface {
	IncrementViolations(ctx context.Context, id uuid.UUID) (int, error)
}

// persistViolationPayload mirrors the violation worker's queue item.
type persistViolationPayload struct {
	ID         string          `json:"id"`
	AttemptID  string          `json:"attempt_id"`
	Type       string          `json:"type"`
	Severity   string          `json:"severity"`
	Detail     json.RawMessage `json:"detail,omitempty"`
	RecordedAt int64           `json:"recorded_at"`
}

// monitorEvent is the pubsub message published to the exam's proctor feed.
type monitorEvent struct {
	AttemptID    string `json:"attempt_id"`
	StudentEmail string `json:"student_email"`
	Type         string `json:"type"`
	Severity     string `json:"severity"`
	Count        int    `json:"count"`
	RecordedAt   int64  `json:"recorded_at"`
}

// ViolationService records integrity events. The attempt's violation counter
// is incremented synchronously so the count is authoritative at submission;
// the event detail is persisted in batches by the violation worker.
type ViolationService struct {
	violations ViolationStore
	attempts   ViolationCounter
	rdb        *redis.Client
	log        zerolog.Logger
}

// NewViolationService creates a new ViolationService. rdb may be nil; event
// details are then appended to the store synchronously and no proctor feed
// is published.
func NewViolationService(violations ViolationStore, attempts ViolationCounter, rdb *redis.Client, log zerolog.Logger) *ViolationService {
	return &ViolationService{
		violations: violations,
		attempts:   attempts,
		rdb:        rdb,
		log:        log.With().Str("component", "violation_service").Logger(),
	}
}

// Record appends one violation and returns it with the attempt's new count.
func (s *ViolationService) Record(ctx context.Context, attempt *model.Attempt, req model.RecordViolationRequest) (*model.Violation, int, error) {
	v := &model.Violation{
		ID:         uuid.New(),
		AttemptID:  attempt.ID,
		Type:       req.Type,
		Severity:   model.SeverityFor(req.Type),
		Detail:     req.Detail,
		RecordedAt: time.Now(),
	}

	count, err := s.attempts.IncrementViolations(ctx, attempt.ID)
	if err != nil {
		return nil, 0, storageErr("increment violation count", err)
	}

	if s.rdb == nil {
		if err := s.violations.Append(ctx, v); err != nil {
			return nil, 0, storageErr("append violation", err)
		}
	} else {
		item, err := json.Marshal(persistViolationPayload{
			ID:         v.ID.String(),
			AttemptID:  v.AttemptID.String(),
			Type:       v.Type,
			Severity:   string(v.Severity),
			Detail:     v.Detail,
			RecordedAt: v.RecordedAt.Unix(),
		})
		if err != nil {
			return nil, 0, storageErr("marshal violation", err)
		}
		if err := s.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, item).Err(); err != nil {
			return nil, 0, storageErr("enqueue violation", err)
		}
		s.publishMonitorEvent(ctx, attempt, v, count)
	}

	return v, count, nil
}

// ListByAttempt returns an attempt's recorded violations.
func (s *ViolationService) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.Violation, error) {
	violations, err := s.violations.ListByAttempt(ctx, attemptID)
	if err != nil {
		return nil, storageErr("list violations", err)
	}
	return violations, nil
}

func (s *ViolationService) publishMonitorEvent(ctx context.Context, attempt *model.Attempt, v *model.Violation, count int) {
	event, err := json.Marshal(monitorEvent{
		AttemptID:    attempt.ID.String(),
		StudentEmail: attempt.StudentEmail,
		Type:         v.Type,
		Severity:     string(v.Severity),
		Count:        count,
		RecordedAt:   v.RecordedAt.Unix(),
	})
	if err != nil {
		return
	}
	channel := config.CacheKey.ExamMonitorChannel(attempt.ExamID.String())
	if err := s.rdb.Publish(ctx, channel, event).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Monitor publish failed")
	}
}
