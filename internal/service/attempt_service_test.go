package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/provexam/provex-backend/internal/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// ─── In-memory stores ────────────────────────────────────────────────────────

type memAttemptStore struct {
	rows map[uuid.UUID]*model.Attempt
}

func newMemAttemptStore() *memAttemptStore {
	return &memAttemptStore{rows: make(map[uuid.UUID]*model.Attempt)}
}

func (m *memAttemptStore) GetByExamAndStudent(_ context.Context, examID uuid.UUID, email string) (*model.Attempt, error) {
	for _, a := range m.rows {
		if a.ExamID == examID && a.StudentEmail == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memAttemptStore) GetByID(_ context.Context, id uuid.UUID) (*model.Attempt, error) {
	a, ok := m.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *a
	return &cp, nil
}

func (m *memAttemptStore) Create(_ context.Context, a *model.Attempt) error {
	for _, existing := range m.rows {
		if existing.ExamID == a.ExamID && existing.StudentEmail == a.StudentEmail {
			return pgx.ErrNoRows
		}
	}
	a.StartedAt = time.Now()
	cp := *a
	m.rows[a.ID] = &cp
	return nil
}

func (m *memAttemptStore) Finalize(_ context.Context, id uuid.UUID, status model.AttemptStatus,
	score, percentage float64, timeSpent int64, finishedAt time.Time) (bool, error) {
	a, ok := m.rows[id]
	if !ok || a.Status != model.AttemptStatusInProgress {
		return false, nil
	}
	a.Status = status
	a.Score = &score
	a.Percentage = &percentage
	a.TimeSpentSeconds = &timeSpent
	a.FinishedAt = &finishedAt
	return true, nil
}

func (m *memAttemptStore) ListByExam(_ context.Context, examID uuid.UUID, _, _ int) ([]model.Attempt, int64, error) {
	var out []model.Attempt
	for _, a := range m.rows {
		if a.ExamID == examID {
			out = append(out, *a)
		}
	}
	return out, int64(len(out)), nil
}

type memQuestionStore struct {
	questions []model.Question
}

func (m *memQuestionStore) ListByExam(_ context.Context, _ uuid.UUID) ([]model.Question, error) {
	return m.questions, nil
}

type memResultStore struct {
	rows []model.QuestionResult
}

func (m *memResultStore) BulkAppend(_ context.Context, batch []*model.QuestionResult) error {
	for _, r := range batch {
		m.rows = append(m.rows, *r)
	}
	return nil
}

func (m *memResultStore) ListByAttempt(_ context.Context, attemptID uuid.UUID) ([]model.QuestionResult, error) {
	var out []model.QuestionResult
	for _, r := range m.rows {
		if r.AttemptID == attemptID {
			out = append(out, r)
		}
	}
	return out, nil
}

type answerKey struct {
	attempt  uuid.UUID
	question uuid.UUID
}

type memAnswerStore struct {
	rows map[answerKey]*model.Answer
}

func newMemAnswerStore() *memAnswerStore {
	return &memAnswerStore{rows: make(map[answerKey]*model.Answer)}
}

func (m *memAnswerStore) Upsert(_ context.Context, a *model.Answer) error {
	k := answerKey{a.AttemptID, a.QuestionID}
	if prev, ok := m.rows[k]; ok {
		// Mirrors the table's monotonic submitted flag.
		a.Submitted = a.Submitted || prev.Submitted
	}
	cp := *a
	cp.UpdatedAt = time.Now()
	m.rows[k] = &cp
	return nil
}

func (m *memAnswerStore) ListByAttempt(_ context.Context, attemptID uuid.UUID) ([]model.Answer, error) {
	var out []model.Answer
	for _, a := range m.rows {
		if a.AttemptID == attemptID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memAnswerStore) ApplyGrades(_ context.Context, attemptID uuid.UUID, results []model.QuestionResult) error {
	for _, r := range results {
		if a, ok := m.rows[answerKey{attemptID, r.QuestionID}]; ok {
			a.Correct = r.Correct
			marks := r.MarksAwarded
			a.MarksAwarded = &marks
		}
	}
	return nil
}

type memSlotStore struct {
	slots       map[uuid.UUID]*model.UploadSlot
	generations map[string]int
}

func newMemSlotStore() *memSlotStore {
	return &memSlotStore{
		slots:       make(map[uuid.UUID]*model.UploadSlot),
		generations: make(map[string]int),
	}
}

func (m *memSlotStore) NextGeneration(_ context.Context, attemptID uuid.UUID, channel string) (int, error) {
	k := attemptID.String() + "/" + channel
	m.generations[k]++
	return m.generations[k], nil
}

func (m *memSlotStore) InsertBatch(_ context.Context, slots []model.UploadSlot) error {
	for _, s := range slots {
		cp := s
		m.slots[s.ID] = &cp
	}
	return nil
}

func (m *memSlotStore) GetByID(_ context.Context, id uuid.UUID) (*model.UploadSlot, error) {
	s, ok := m.slots[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *s
	return &cp, nil
}

func (m *memSlotStore) Consume(_ context.Context, id uuid.UUID) (bool, error) {
	s, ok := m.slots[id]
	if !ok || s.Used {
		return false, nil
	}
	now := time.Now()
	s.Used = true
	s.UsedAt = &now
	return true, nil
}

type memProvisioner struct{}

func (memProvisioner) EnsureDestination(examID uuid.UUID, studentEmail, channel string) (string, error) {
	return fmt.Sprintf("media/%s/%s/%s", examID, studentEmail, channel), nil
}

// ─── Fixtures ────────────────────────────────────────────────────────────────

type attemptFixture struct {
	svc      *AttemptService
	answers  *AnswerService
	slots    *SlotService
	attempts *memAttemptStore
	results  *memResultStore
	exam     *model.Exam
	q        model.Question
	sess     *model.DeviceSession
}

func newAttemptFixture(t *testing.T, exam *model.Exam) *attemptFixture {
	t.Helper()
	cfg := testConfig()
	attempts := newMemAttemptStore()
	results := &memResultStore{}
	answers := NewAnswerService(newMemAnswerStore(), nil, zerolog.Nop())
	slots := NewSlotService(newMemSlotStore(), memProvisioner{}, cfg, zerolog.Nop())
	q := model.Question{
		ID:            uuid.New(),
		ExamID:        exam.ID,
		QuestionType:  model.QuestionTypeSingleChoice,
		CorrectAnswer: "B",
		Marks:         10,
		OrderNum:      1,
	}
	questions := &memQuestionStore{questions: []model.Question{q}}
	exams := &memExamStore{rows: map[uuid.UUID]*model.Exam{exam.ID: exam}}

	svc := NewAttemptService(attempts, exams, questions, results, answers, slots, nil, zerolog.Nop())
	return &attemptFixture{
		svc:      svc,
		answers:  answers,
		slots:    slots,
		attempts: attempts,
		results:  results,
		exam:     exam,
		q:        q,
		sess: &model.DeviceSession{
			ID:           uuid.New(),
			ExamID:       exam.ID,
			StudentEmail: "alice@example.com",
			Active:       true,
		},
	}
}

// ─── Tests ───────────────────────────────────────────────────────────────────

func TestStartAttemptCreatesOnceAndResumes(t *testing.T) {
	f := newAttemptFixture(t, publishedExam())
	ctx := context.Background()

	state, err := f.svc.StartOrResumeAttempt(ctx, f.sess)
	require.NoError(t, err)
	require.False(t, state.Resumed)
	require.Equal(t, model.AttemptStatusInProgress, state.Attempt.Status)
	require.InDelta(t, 3600, state.RemainingSeconds, 5)
	require.Len(t, state.SlotBatches, 2) // one batch per configured channel
	require.Equal(t, "screen", state.SlotBatches[0].Channel)
	require.Len(t, state.SlotBatches[0].SlotIDs, 2)

	require.NoError(t, f.answers.Save(ctx, state.Attempt.ID, f.q.ID, "b", false))

	again, err := f.svc.StartOrResumeAttempt(ctx, f.sess)
	require.NoError(t, err)
	require.True(t, again.Resumed)
	require.Equal(t, state.Attempt.ID, again.Attempt.ID)
	require.Len(t, again.Answers, 1)
	require.Equal(t, "b", again.Answers[0].Payload)
}

func TestSubmitGradesAndIsIdempotent(t *testing.T) {
	f := newAttemptFixture(t, publishedExam())
	ctx := context.Background()

	state, err := f.svc.StartOrResumeAttempt(ctx, f.sess)
	require.NoError(t, err)
	require.NoError(t, f.answers.Save(ctx, state.Attempt.ID, f.q.ID, "b", true))

	final, err := f.svc.SubmitAttempt(ctx, f.sess, nil)
	require.NoError(t, err)
	require.Equal(t, model.AttemptStatusCompleted, final.Status)
	require.NotNil(t, final.Score)
	require.Equal(t, 10.0, *final.Score)
	require.NotNil(t, final.FinishedAt)

	// Grading outcomes landed in the sink, keyed to the attempt.
	sunk, err := f.results.ListByAttempt(ctx, final.ID)
	require.NoError(t, err)
	require.Len(t, sunk, 1)
	require.True(t, *sunk[0].Correct)

	// A repeated submit returns the terminal row without regrading.
	again, err := f.svc.SubmitAttempt(ctx, f.sess, nil)
	require.NoError(t, err)
	require.Equal(t, final.Status, again.Status)
	require.Equal(t, *final.Score, *again.Score)
	sunk, _ = f.results.ListByAttempt(ctx, final.ID)
	require.Len(t, sunk, 1)

	// And the pair can never start over.
	_, err = f.svc.StartOrResumeAttempt(ctx, f.sess)
	var finalized *AttemptFinalizedError
	require.ErrorAs(t, err, &finalized)
	require.Equal(t, model.AttemptStatusCompleted, finalized.Status)
}

func TestExpiredAttemptIsForceSubmitted(t *testing.T) {
	f := newAttemptFixture(t, publishedExam())
	ctx := context.Background()

	state, err := f.svc.StartOrResumeAttempt(ctx, f.sess)
	require.NoError(t, err)
	require.NoError(t, f.answers.Save(ctx, state.Attempt.ID, f.q.ID, "B", true))

	// Push the start past the 60-minute window.
	f.attempts.rows[state.Attempt.ID].StartedAt = time.Now().Add(-2 * time.Hour)

	_, err = f.svc.ActiveAttempt(ctx, f.sess)
	var finalized *AttemptFinalizedError
	require.ErrorAs(t, err, &finalized)
	require.Equal(t, model.AttemptStatusCompleted, finalized.Status)

	// The force-submit graded whatever was saved and froze time spent at
	// the deadline.
	row, err := f.attempts.GetByID(ctx, state.Attempt.ID)
	require.NoError(t, err)
	require.Equal(t, 10.0, *row.Score)
	require.Equal(t, int64(3600), *row.TimeSpentSeconds)
}

func TestViolationThresholdDisqualifiesAtSubmit(t *testing.T) {
	exam := publishedExam()
	exam.DisqualifyOnViolation = true
	exam.MaxViolationsBeforeAction = 3
	f := newAttemptFixture(t, exam)
	ctx := context.Background()

	state, err := f.svc.StartOrResumeAttempt(ctx, f.sess)
	require.NoError(t, err)
	require.NoError(t, f.answers.Save(ctx, state.Attempt.ID, f.q.ID, "b", true))
	f.attempts.rows[state.Attempt.ID].ViolationCount = 3

	final, err := f.svc.SubmitAttempt(ctx, f.sess, nil)
	require.NoError(t, err)
	require.Equal(t, model.AttemptStatusDisqualified, final.Status)
	// The score is still computed and recorded alongside the verdict.
	require.Equal(t, 10.0, *final.Score)
}

func TestGetResultRequiresTerminalAttempt(t *testing.T) {
	f := newAttemptFixture(t, publishedExam())
	ctx := context.Background()

	_, err := f.svc.GetResult(ctx, f.exam.ID, f.sess.StudentEmail)
	require.ErrorIs(t, err, ErrAttemptNotFound)

	_, err = f.svc.StartOrResumeAttempt(ctx, f.sess)
	require.NoError(t, err)
	_, err = f.svc.GetResult(ctx, f.exam.ID, f.sess.StudentEmail)
	require.ErrorIs(t, err, ErrAttemptNotFinalized)

	_, err = f.svc.SubmitAttempt(ctx, f.sess, nil)
	require.NoError(t, err)

	result, err := f.svc.GetResult(ctx, f.exam.ID, f.sess.StudentEmail)
	require.NoError(t, err)
	require.Equal(t, model.AttemptStatusCompleted, result.Attempt.Status)
	require.Len(t, result.Questions, 1)
}

func TestSlotRedeemIsSingleUseAndAttemptBound(t *testing.T) {
	f := newAttemptFixture(t, publishedExam())
	ctx := context.Background()

	state, err := f.svc.StartOrResumeAttempt(ctx, f.sess)
	require.NoError(t, err)
	slotID := state.SlotBatches[0].SlotIDs[0]

	_, err = f.slots.Redeem(ctx, slotID, uuid.New())
	require.ErrorIs(t, err, ErrSlotForbidden)

	slot, err := f.slots.Redeem(ctx, slotID, state.Attempt.ID)
	require.NoError(t, err)
	require.Equal(t, state.SlotBatches[0].Channel, slot.Channel)

	_, err = f.slots.Redeem(ctx, slotID, state.Attempt.ID)
	require.ErrorIs(t, err, ErrSlotSpent)

	_, err = f.slots.Redeem(ctx, uuid.New(), state.Attempt.ID)
	require.ErrorIs(t, err, ErrSlotNotFound)
}

func TestRequestMoreAdvancesGenerationAndClamps(t *testing.T) {
	f := newAttemptFixture(t, publishedExam())
	ctx := context.Background()

	state, err := f.svc.StartOrResumeAttempt(ctx, f.sess)
	require.NoError(t, err)
	require.Equal(t, 1, state.SlotBatches[0].Generation)

	batch, err := f.slots.RequestMore(ctx, state.Attempt, "screen", 100)
	require.NoError(t, err)
	require.Equal(t, 2, batch.Generation)
	require.Len(t, batch.SlotIDs, 5) // clamped to the per-request ceiling
}

func TestAnswerSubmittedFlagIsMonotonic(t *testing.T) {
	f := newAttemptFixture(t, publishedExam())
	ctx := context.Background()

	state, err := f.svc.StartOrResumeAttempt(ctx, f.sess)
	require.NoError(t, err)
	q := f.q

	require.NoError(t, f.answers.Save(ctx, state.Attempt.ID, q.ID, "a", false))
	require.NoError(t, f.answers.Save(ctx, state.Attempt.ID, q.ID, "b", true))
	require.NoError(t, f.answers.Save(ctx, state.Attempt.ID, q.ID, "c", false))

	rows, err := f.answers.List(ctx, state.Attempt.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "c", rows[0].Payload)
	require.True(t, rows[0].Submitted)
}

