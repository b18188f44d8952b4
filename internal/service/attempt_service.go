package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/provexam/provex-backend/internal/config"
	"github.com/provexam/provex-backend/internal/grading"
	"github.com/provexam/provex-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// AttemptStore is the attempt lifecycle collection surface.
type AttemptStore interface {
	GetByExamAndStudent(ctx context.Context, examID uuid.UUID, studentEmail string) (*model.Attempt, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	Create(ctx context.Context, a *model.Attempt) error
	Finalize(ctx context.Context, id uuid.UUID, status model.AttemptStatus,
		score, percentage float64, timeSpent int64, finishedAt time.Time) (bool, error)
	ListByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]model.Attempt, int64, error)
}

// QuestionStore serves an exam's question set in display order.
type QuestionStore interface {
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
}

// ResultStore is the append-only grading outcome sink.
type ResultStore interface {
	BulkAppend(ctx context.Context, batch []*model.QuestionResult) error
	ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.QuestionResult, error)
}

// AttemptState is what a student gets back from starting or resuming an
// attempt: the row itself plus everything needed to rebuild the client.
type AttemptState struct {
	Attempt          *model.Attempt    `json:"attempt"`
	Resumed          bool              `json:"resumed"`
	RemainingSeconds int64             `json:"remaining_seconds"`
	Answers          []model.Answer    `json:"answers"`
	SlotBatches      []model.SlotBatch `json:"slot_batches"`
}

// AttemptService drives the attempt lifecycle: one attempt per exam-student
// pair, a hard submission deadline, and a single terminal transition that
// grades, persists, and tears down the session.
type AttemptService struct {
	attempts  AttemptStore
	exams     ExamStore
	questions QuestionStore
	results   ResultStore
	answers   *AnswerService
	slots     *SlotService
	rdb       *redis.Client
	log       zerolog.Logger
}

// NewAttemptService creates a new AttemptService. rdb may be nil; grading
// outcomes are then written to the sink inline instead of queued.
func NewAttemptService(
	attempts AttemptStore,
	exams ExamStore,
	questions QuestionStore,
	results ResultStore,
	answers *AnswerService,
	slots *SlotService,
	rdb *redis.Client,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		attempts:  attempts,
		exams:     exams,
		questions: questions,
		results:   results,
		answers:   answers,
		slots:     slots,
		rdb:       rdb,
		log:       log.With().Str("component", "attempt_service").Logger(),
	}
}

// StartOrResumeAttempt returns the session holder's attempt, creating it on
// first call. An attempt whose deadline has already passed is force-submitted
// before the terminal error is returned.
func (s *AttemptService) StartOrResumeAttempt(ctx context.Context, sess *model.DeviceSession) (*AttemptState, error) {
	exam, err := s.exams.GetByID(ctx, sess.ExamID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, storageErr("get exam", err)
	}

	attempt, err := s.attempts.GetByExamAndStudent(ctx, sess.ExamID, sess.StudentEmail)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, storageErr("get attempt", err)
	}

	if attempt == nil {
		attempt = &model.Attempt{
			ID:           uuid.New(),
			ExamID:       exam.ID,
			StudentEmail: sess.StudentEmail,
			Status:       model.AttemptStatusInProgress,
			TotalMarks:   exam.TotalMarks,
		}
		if err := s.attempts.Create(ctx, attempt); err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return nil, storageErr("create attempt", err)
			}
			// Lost the insert race to a concurrent start for the same pair.
			attempt, err = s.attempts.GetByExamAndStudent(ctx, sess.ExamID, sess.StudentEmail)
			if err != nil {
				return nil, storageErr("refetch attempt after concurrent start", err)
			}
		}
	}

	if attempt.Status.IsTerminal() {
		return nil, &AttemptFinalizedError{Status: attempt.Status}
	}

	now := time.Now()
	remaining := s.remainingSeconds(attempt, exam, now)
	if remaining <= 0 {
		final, err := s.finalize(ctx, attempt, exam, nil)
		if err != nil {
			return nil, err
		}
		return nil, &AttemptFinalizedError{Status: final.Status}
	}

	answers, err := s.answers.List(ctx, attempt.ID)
	if err != nil {
		return nil, err
	}
	batches, err := s.slots.IssueDefaultBatches(ctx, attempt)
	if err != nil {
		return nil, err
	}

	resumed := len(answers) > 0 || now.Sub(attempt.StartedAt) > time.Second
	return &AttemptState{
		Attempt:          attempt,
		Resumed:          resumed,
		RemainingSeconds: remaining,
		Answers:          answers,
		SlotBatches:      batches,
	}, nil
}

// ActiveAttempt resolves the session's attempt for ongoing activity (saves,
// violations, uploads). A terminal or deadline-expired attempt is refused;
// expiry triggers the force-submit on the spot.
func (s *AttemptService) ActiveAttempt(ctx context.Context, sess *model.DeviceSession) (*model.Attempt, error) {
	attempt, err := s.attempts.GetByExamAndStudent(ctx, sess.ExamID, sess.StudentEmail)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, storageErr("get attempt", err)
	}
	if attempt.Status.IsTerminal() {
		return nil, &AttemptFinalizedError{Status: attempt.Status}
	}

	exam, err := s.exams.GetByID(ctx, sess.ExamID)
	if err != nil {
		return nil, storageErr("get exam", err)
	}
	if s.remainingSeconds(attempt, exam, time.Now()) <= 0 {
		final, err := s.finalize(ctx, attempt, exam, nil)
		if err != nil {
			return nil, err
		}
		return nil, &AttemptFinalizedError{Status: final.Status}
	}
	return attempt, nil
}

// SubmitAttempt finalizes the attempt: grade once, persist outcomes, retire
// the session. A repeated submit returns the already-terminal row unchanged.
func (s *AttemptService) SubmitAttempt(ctx context.Context, sess *model.DeviceSession, admission *AdmissionService) (*model.Attempt, error) {
	attempt, err := s.attempts.GetByExamAndStudent(ctx, sess.ExamID, sess.StudentEmail)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, storageErr("get attempt", err)
	}
	if attempt.Status.IsTerminal() {
		return attempt, nil
	}

	exam, err := s.exams.GetByID(ctx, sess.ExamID)
	if err != nil {
		return nil, storageErr("get exam", err)
	}

	final, err := s.finalize(ctx, attempt, exam, sess)
	if err != nil {
		return nil, err
	}
	if admission != nil && sess != nil {
		if err := admission.EndSession(ctx, sess); err != nil {
			s.log.Warn().Err(err).
				Str("attempt_id", attempt.ID.String()).
				Msg("Session teardown after submission failed")
		}
	}
	return final, nil
}

// finalize grades and terminates an IN_PROGRESS attempt exactly once. The
// loser of a concurrent submit race re-reads the winner's row.
func (s *AttemptService) finalize(ctx context.Context, attempt *model.Attempt, exam *model.Exam, sess *model.DeviceSession) (*model.Attempt, error) {
	questions, err := s.questions.ListByExam(ctx, exam.ID)
	if err != nil {
		return nil, storageErr("list questions", err)
	}
	snapshot, err := s.answers.Snapshot(ctx, attempt.ID)
	if err != nil {
		return nil, err
	}

	results, summary := grading.Grade(questions, snapshot, grading.Policy{
		NegativeMarking: exam.NegativeMarking,
		NegativeMarks:   exam.NegativeMarks,
		TotalMarks:      exam.TotalMarks,
	})

	status := model.AttemptStatusCompleted
	if exam.DisqualifyOnViolation &&
		exam.MaxViolationsBeforeAction > 0 &&
		attempt.ViolationCount >= exam.MaxViolationsBeforeAction {
		status = model.AttemptStatusDisqualified
	}

	now := time.Now()
	timeSpent := int64(now.Sub(attempt.StartedAt).Seconds())
	if max := s.deadlineSeconds(attempt, exam); max > 0 && timeSpent > max {
		timeSpent = max
	}

	ok, err := s.attempts.Finalize(ctx, attempt.ID, status,
		summary.Score, summary.Percentage, timeSpent, now)
	if err != nil {
		return nil, storageErr("finalize attempt", err)
	}
	if !ok {
		// A concurrent submit won; its outcome stands.
		final, err := s.attempts.GetByID(ctx, attempt.ID)
		if err != nil {
			return nil, storageErr("refetch finalized attempt", err)
		}
		return final, nil
	}

	for i := range results {
		results[i].AttemptID = attempt.ID
	}
	if err := s.answers.ApplyGrades(ctx, attempt.ID, results); err != nil {
		s.log.Error().Err(err).
			Str("attempt_id", attempt.ID.String()).
			Msg("Applying grades to answers failed")
	}
	s.sinkResults(ctx, attempt.ID, results)
	s.answers.ClearCache(ctx, attempt.ID)

	attempt.Status = status
	attempt.Score = &summary.Score
	attempt.Percentage = &summary.Percentage
	attempt.TimeSpentSeconds = &timeSpent
	attempt.FinishedAt = &now

	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Str("exam_id", exam.ID.String()).
		Str("status", string(status)).
		Float64("score", summary.Score).
		Int("violations", attempt.ViolationCount).
		Msg("Attempt finalized")
	return attempt, nil
}

// sinkResults queues grading outcomes for the background writer, falling back
// to an inline bulk write when the queue is unavailable.
func (s *AttemptService) sinkResults(ctx context.Context, attemptID uuid.UUID, results []model.QuestionResult) {
	if len(results) == 0 {
		return
	}
	if s.rdb != nil {
		items := make([]interface{}, 0, len(results))
		for i := range results {
			raw, err := json.Marshal(results[i])
			if err != nil {
				continue
			}
			items = append(items, raw)
		}
		if err := s.rdb.RPush(ctx, config.WorkerKey.PersistResultsQueue, items...).Err(); err == nil {
			return
		} else {
			s.log.Warn().Err(err).Msg("Result queue push failed, writing inline")
		}
	}

	batch := make([]*model.QuestionResult, len(results))
	for i := range results {
		batch[i] = &results[i]
	}
	if err := s.results.BulkAppend(ctx, batch); err != nil {
		s.log.Error().Err(err).
			Str("attempt_id", attemptID.String()).
			Msg("Inline result write failed")
	}
}

// GetResult returns the finalized outcome for a student's attempt.
func (s *AttemptService) GetResult(ctx context.Context, examID uuid.UUID, studentEmail string) (*model.AttemptResult, error) {
	attempt, err := s.attempts.GetByExamAndStudent(ctx, examID, studentEmail)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, storageErr("get attempt", err)
	}
	if !attempt.Status.IsTerminal() {
		return nil, ErrAttemptNotFinalized
	}

	questions, err := s.results.ListByAttempt(ctx, attempt.ID)
	if err != nil {
		return nil, storageErr("list results", err)
	}
	return &model.AttemptResult{Attempt: *attempt, Questions: questions}, nil
}

// GetByID serves the reporting plane: one attempt, any status.
func (s *AttemptService) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	attempt, err := s.attempts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, storageErr("get attempt", err)
	}
	return attempt, nil
}

// ListResults returns the persisted grading detail for one attempt.
func (s *AttemptService) ListResults(ctx context.Context, attemptID uuid.UUID) ([]model.QuestionResult, error) {
	results, err := s.results.ListByAttempt(ctx, attemptID)
	if err != nil {
		return nil, storageErr("list results", err)
	}
	return results, nil
}

// ListByExam serves the reporting plane: attempt statuses for one exam.
func (s *AttemptService) ListByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]model.Attempt, int64, error) {
	attempts, total, err := s.attempts.ListByExam(ctx, examID, page, perPage)
	if err != nil {
		return nil, 0, storageErr("list attempts", err)
	}
	return attempts, total, nil
}

// remainingSeconds computes the countdown against the hard deadline:
// started-at plus duration, capped by the exam's scheduled end.
func (s *AttemptService) remainingSeconds(attempt *model.Attempt, exam *model.Exam, now time.Time) int64 {
	deadline, ok := deadlineFor(attempt, exam)
	if !ok {
		return 1<<62 - 1
	}
	remaining := int64(deadline.Sub(now).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (s *AttemptService) deadlineSeconds(attempt *model.Attempt, exam *model.Exam) int64 {
	deadline, ok := deadlineFor(attempt, exam)
	if !ok {
		return 0
	}
	return int64(deadline.Sub(attempt.StartedAt).Seconds())
}

func deadlineFor(attempt *model.Attempt, exam *model.Exam) (time.Time, bool) {
	var deadline time.Time
	if exam.DurationMinutes > 0 {
		deadline = attempt.StartedAt.Add(time.Duration(exam.DurationMinutes) * time.Minute)
	}
	if exam.ScheduledEnd != nil && (deadline.IsZero() || exam.ScheduledEnd.Before(deadline)) {
		deadline = *exam.ScheduledEnd
	}
	return deadline, !deadline.IsZero()
}
