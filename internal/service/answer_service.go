package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/provexam/provex-backend/internal/config"
	"github.com/provexam/provex-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// AnswerStore is the persisted answer collection surface.
type AnswerStore interface {
	Upsert(ctx context.Context, a *model.Answer) error
	ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.Answer, error)
	ApplyGrades(ctx context.Context, attemptID uuid.UUID, results []model.QuestionResult) error
}

// persistAnswerPayload mirrors the autosave worker's queue item.
type persistAnswerPayload struct {
	AttemptID  string `json:"attempt_id"`
	QuestionID string `json:"question_id"`
	Payload    string `json:"payload"`
	Submitted  bool   `json:"submitted"`
}

/// AnswerService fronts the answer store for high-frequency autosave: the hot
// copy lives in a redis hash, persistence happens asynchronously through the
// autosave worker. Reads overlay the hash on the persisted rows so an
// unflushed autosave is never lost on resume.
type AnswerService struct {
	answers AnswerStore
	rdb     *redis.Client
	log     zerolog.Logger
}

// NewAnswerService creates a new AnswerService. rdb may be nil; autosaves are
// then written through to the store synchronously.
func NewAnswerService(answers AnswerStore, rdb *redis.Client, log zerolog.Logger) *AnswerService {
	return &AnswerService{
		answers: answers,
		rdb:     rdb,
		log:     log.With().Str("component", "answer_service").Logger(),
	}
}

// Save records one autosave. The submitted flag is monotonic: an incoming
// false never clears a previously recorded true, in the cache or the store.
func (s *AnswerService) Save(ctx context.Context, attemptID, questionID uuid.UUID, payload string, submitted bool) error {
	if s.rdb == nil {
		if err := s.answers.Upsert(ctx, &model.Answer{
			AttemptID:  attemptID,
			QuestionID: questionID,
			Payload:    payload,
			Submitted:  submitted,
		}); err != nil {
			return storageErr("upsert answer", err)
		}
		return nil
	}

	key := config.CacheKey.AttemptAnswersKey(attemptID.String())
	field := questionID.String()

	if !submitted {
		prev, err := s.previousSubmitted(ctx, key, field, attemptID, questionID)
		if err != nil {
			return err
		}
		submitted = prev
	}

	cached := model.CachedAnswer{Payload: payload, Submitted: submitted, SavedAt: time.Now()}
	raw, err := json.Marshal(cached)
	if err != nil {
		return storageErr("marshal cached answer", err)
	}
	if err := s.rdb.HSet(ctx, key, field, raw).Err(); err != nil {
		return storageErr("cache answer", err)
	}

	item, err := json.Marshal(persistAnswerPayload{
		AttemptID:  attemptID.String(),
		QuestionID: questionID.String(),
		Payload:    payload,
		Submitted:  submitted,
	})
	if err != nil {
		return storageErr("marshal persist payload", err)
	}
	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, item).Err(); err != nil {
		return storageErr("enqueue answer", err)
	}
	return nil
}

// previousSubmitted looks up the prior submitted flag, checking the store when
// the hash has no entry (evicted or cleared cache must not regress the flag).
func (s *AnswerService) previousSubmitted(ctx context.Context, key, field string, attemptID, questionID uuid.UUID) (bool, error) {
	raw, err := s.rdb.HGet(ctx, key, field).Result()
	if err == nil {
		var cached model.CachedAnswer
		if jsonErr := json.Unmarshal([]byte(raw), &cached); jsonErr == nil {
			return cached.Submitted, nil
		}
		return false, nil
	}
	if !errors.Is(err, redis.Nil) {
		return false, storageErr("read cached answer", err)
	}

	rows, err := s.answers.ListByAttempt(ctx, attemptID)
	if err != nil {
		return false, storageErr("list answers", err)
	}
	for _, a := range rows {
		if a.QuestionID == questionID {
			return a.Submitted, nil
		}
	}
	return false, nil
}

// List returns the merged answers of an attempt in question order: persisted
// rows overlaid with any newer cached autosaves, plus cache-only answers.
func (s *AnswerService) List(ctx context.Context, attemptID uuid.UUID) ([]model.Answer, error) {
	rows, err := s.answers.ListByAttempt(ctx, attemptID)
	if err != nil {
		return nil, storageErr("list answers", err)
	}
	if s.rdb == nil {
		return rows, nil
	}

	cached, err := s.rdb.HGetAll(ctx, config.CacheKey.AttemptAnswersKey(attemptID.String())).Result()
	if err != nil {
		s.log.Warn().Err(err).Msg("Answer cache read failed, serving persisted rows only")
		return rows, nil
	}

	merged := make([]model.Answer, 0, len(rows)+len(cached))
	for _, row := range rows {
		if raw, ok := cached[row.QuestionID.String()]; ok {
			var c model.CachedAnswer
			if json.Unmarshal([]byte(raw), &c) == nil {
				row = row.Merge(c.Payload, c.Submitted, c.SavedAt)
			}
			delete(cached, row.QuestionID.String())
		}
		merged = append(merged, row)
	}
	for field, raw := range cached {
		questionID, err := uuid.Parse(field)
		if err != nil {
			continue
		}
		var c model.CachedAnswer
		if json.Unmarshal([]byte(raw), &c) != nil {
			continue
		}
		merged = append(merged, model.Answer{
			AttemptID:  attemptID,
			QuestionID: questionID,
			Payload:    c.Payload,
			Submitted:  c.Submitted,
			UpdatedAt:  c.SavedAt,
		})
	}
	return merged, nil
}

// Snapshot returns the merged answers keyed by question, for grading.
func (s *AnswerService) Snapshot(ctx context.Context, attemptID uuid.UUID) (map[uuid.UUID]model.Answer, error) {
	answers, err := s.List(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	snapshot := make(map[uuid.UUID]model.Answer, len(answers))
	for _, a := range answers {
		snapshot[a.QuestionID] = a
	}
	return snapshot, nil
}

// ApplyGrades writes grading outcomes onto the persisted rows.
func (s *AnswerService) ApplyGrades(ctx context.Context, attemptID uuid.UUID, results []model.QuestionResult) error {
	if err := s.answers.ApplyGrades(ctx, attemptID, results); err != nil {
		return storageErr("apply grades", err)
	}
	return nil
}

// ClearCache drops the attempt's autosave hash after finalization.
func (s *AnswerService) ClearCache(ctx context.Context, attemptID uuid.UUID) {
	if s.rdb == nil {
		return
	}
	_ = s.rdb.Del(ctx, config.CacheKey.AttemptAnswersKey(attemptID.String())).Err()
}
