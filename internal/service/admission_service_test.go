package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/provexam/provex-backend/internal/config"
	"github.com/provexam/provex-backend/internal/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// ─── In-memory stores ────────────────────────────────────────────────────────

type memSessionStore struct {
	rows map[uuid.UUID]*model.DeviceSession
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{rows: make(map[uuid.UUID]*model.DeviceSession)}
}

func (m *memSessionStore) GetActive(_ context.Context, examID uuid.UUID, email string) (*model.DeviceSession, error) {
	for _, s := range m.rows {
		if s.Active && s.ExamID == examID && s.StudentEmail == email {
			cp := *s
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memSessionStore) GetByID(_ context.Context, id uuid.UUID) (*model.DeviceSession, error) {
	s, ok := m.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *s
	return &cp, nil
}

func (m *memSessionStore) Create(_ context.Context, s *model.DeviceSession) error {
	for _, existing := range m.rows {
		if existing.Active && existing.ExamID == s.ExamID && existing.StudentEmail == s.StudentEmail {
			// Same signal the partial unique index produces through the
			// ON CONFLICT DO NOTHING ... RETURNING path.
			return pgx.ErrNoRows
		}
	}
	s.IssuedAt = time.Now().Truncate(time.Second)
	s.LastActivityAt = s.IssuedAt
	cp := *s
	m.rows[s.ID] = &cp
	return nil
}

func (m *memSessionStore) Touch(_ context.Context, id uuid.UUID) error {
	s, ok := m.rows[id]
	if !ok {
		return pgx.ErrNoRows
	}
	s.LastActivityAt = time.Now()
	return nil
}

func (m *memSessionStore) Deactivate(_ context.Context, id uuid.UUID) error {
	s, ok := m.rows[id]
	if !ok {
		return pgx.ErrNoRows
	}
	s.Active = false
	return nil
}

func (m *memSessionStore) RecordBlock(_ context.Context, id uuid.UUID, block model.SessionBlock) error {
	s, ok := m.rows[id]
	if !ok {
		return pgx.ErrNoRows
	}
	s.BlockReason = &block.Reason
	s.BlockedFingerprint = &block.OffenderFingerprint
	s.BlockedOrigin = &block.OffenderOrigin
	s.BlockedAt = &block.BlockedAt
	return nil
}

type memExamStore struct {
	rows map[uuid.UUID]*model.Exam
}

func (m *memExamStore) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	e, ok := m.rows[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *e
	return &cp, nil
}

type memCredentialStore struct {
	exam     *model.ExamCredential
	students map[string]*model.StudentCredential
}

func (m *memCredentialStore) GetByExam(_ context.Context, examID uuid.UUID) (*model.ExamCredential, error) {
	if m.exam == nil || m.exam.ExamID != examID {
		return nil, pgx.ErrNoRows
	}
	return m.exam, nil
}

func (m *memCredentialStore) GetStudentCredential(_ context.Context, _ uuid.UUID, email string) (*model.StudentCredential, error) {
	row, ok := m.students[email]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return row, nil
}

// ─── Fixtures ────────────────────────────────────────────────────────────────

func testConfig() *config.Config {
	return &config.Config{
		SessionSecret:      "test-secret",
		SessionFallbackTTL: 4 * time.Hour,
		BcryptCost:         bcrypt.MinCost,
		SlotBatchSizes:     map[string]int{"screen": 2, "webcam": 3},
		MaxSlotRequest:     5,
	}
}

func publishedExam() *model.Exam {
	return &model.Exam{
		ID:              uuid.New(),
		Title:           "Unit Exam",
		DurationMinutes: 60,
		CredentialMode:  model.CredentialModeShared,
		Status:          model.ExamStatusPublished,
	}
}

func admissionFixture(exam *model.Exam) (*AdmissionService, *memSessionStore) {
	sessions := newMemSessionStore()
	exams := &memExamStore{rows: map[uuid.UUID]*model.Exam{exam.ID: exam}}
	creds := NewCredentialService(&memCredentialStore{
		exam: &model.ExamCredential{
			ExamID:       exam.ID,
			Mode:         model.CredentialModeShared,
			SharedSecret: "open-sesame",
		},
	})
	svc := NewAdmissionService(testConfig(), sessions, exams, creds, nil, zerolog.Nop())
	return svc, sessions
}

func admissionReq(fingerprint string) model.CreateSessionRequest {
	return model.CreateSessionRequest{
		StudentEmail:      "alice@example.com",
		Secret:            "open-sesame",
		DeviceFingerprint: fingerprint,
	}
}

// ─── Tests ───────────────────────────────────────────────────────────────────

func TestCreateSessionAdmitsAndSecondDeviceIsBlocked(t *testing.T) {
	exam := publishedExam()
	svc, sessions := admissionFixture(exam)
	ctx := context.Background()

	grant, err := svc.CreateOrResumeSession(ctx, exam.ID, admissionReq("device-aaaa"), "10.0.0.1")
	require.NoError(t, err)
	require.False(t, grant.Resumed)
	require.NotEmpty(t, grant.Token)
	require.True(t, grant.Session.Active)

	_, err = svc.CreateOrResumeSession(ctx, exam.ID, admissionReq("device-bbbb"), "10.0.0.2")
	var denied *SessionDeniedError
	require.ErrorAs(t, err, &denied)
	require.Equal(t, "device-bbbb", denied.Block.OffenderFingerprint)
	require.Equal(t, "10.0.0.2", denied.Block.OffenderOrigin)

	// The holder's row carries the block audit but stays active.
	row, err := sessions.GetByID(ctx, grant.Session.ID)
	require.NoError(t, err)
	require.True(t, row.Active)
	require.NotNil(t, row.BlockedFingerprint)
	require.Equal(t, "device-bbbb", *row.BlockedFingerprint)
}

func TestSameDeviceResumeReturnsIdenticalToken(t *testing.T) {
	exam := publishedExam()
	svc, _ := admissionFixture(exam)
	ctx := context.Background()

	first, err := svc.CreateOrResumeSession(ctx, exam.ID, admissionReq("device-aaaa"), "10.0.0.1")
	require.NoError(t, err)

	second, err := svc.CreateOrResumeSession(ctx, exam.ID, admissionReq("device-aaaa"), "10.0.0.1")
	require.NoError(t, err)
	require.True(t, second.Resumed)
	require.Equal(t, first.Token, second.Token)
	require.Equal(t, first.Session.ID, second.Session.ID)
}

func TestCreateSessionCredentialFailures(t *testing.T) {
	exam := publishedExam()
	svc, _ := admissionFixture(exam)
	ctx := context.Background()

	req := admissionReq("device-aaaa")
	req.Secret = "   "
	_, err := svc.CreateOrResumeSession(ctx, exam.ID, req, "10.0.0.1")
	var credErr *CredentialError
	require.ErrorAs(t, err, &credErr)
	require.Equal(t, CredentialMissing, credErr.Reason)

	req.Secret = "wrong"
	_, err = svc.CreateOrResumeSession(ctx, exam.ID, req, "10.0.0.1")
	require.ErrorAs(t, err, &credErr)
	require.Equal(t, CredentialIncorrect, credErr.Reason)
}

func TestCreateSessionRefusesUnpublishedAndUnknownExams(t *testing.T) {
	exam := publishedExam()
	exam.Status = model.ExamStatusDraft
	svc, _ := admissionFixture(exam)
	ctx := context.Background()

	_, err := svc.CreateOrResumeSession(ctx, exam.ID, admissionReq("device-aaaa"), "10.0.0.1")
	require.ErrorIs(t, err, ErrExamNotAvailable)

	_, err = svc.CreateOrResumeSession(ctx, uuid.New(), admissionReq("device-aaaa"), "10.0.0.1")
	require.ErrorIs(t, err, ErrExamNotFound)
}

func TestExpiredSessionIsRetiredAndReadmitted(t *testing.T) {
	exam := publishedExam()
	svc, sessions := admissionFixture(exam)
	ctx := context.Background()

	grant, err := svc.CreateOrResumeSession(ctx, exam.ID, admissionReq("device-aaaa"), "10.0.0.1")
	require.NoError(t, err)

	// Force the row past its expiry; even a different device may then admit.
	sessions.rows[grant.Session.ID].ExpiresAt = time.Now().Add(-time.Minute)

	fresh, err := svc.CreateOrResumeSession(ctx, exam.ID, admissionReq("device-bbbb"), "10.0.0.2")
	require.NoError(t, err)
	require.False(t, fresh.Resumed)
	require.NotEqual(t, grant.Session.ID, fresh.Session.ID)

	old, err := sessions.GetByID(ctx, grant.Session.ID)
	require.NoError(t, err)
	require.False(t, old.Active)
}

func TestValidateSessionChecksFingerprintAndLiveness(t *testing.T) {
	exam := publishedExam()
	svc, sessions := admissionFixture(exam)
	ctx := context.Background()

	grant, err := svc.CreateOrResumeSession(ctx, exam.ID, admissionReq("device-aaaa"), "10.0.0.1")
	require.NoError(t, err)

	sess, err := svc.ValidateSession(ctx, grant.Token, "device-aaaa")
	require.NoError(t, err)
	require.Equal(t, grant.Session.ID, sess.ID)

	var invalid *SessionInvalidError
	_, err = svc.ValidateSession(ctx, grant.Token, "device-bbbb")
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, SessionDeviceMismatch, invalid.Reason)

	_, err = svc.ValidateSession(ctx, "not-a-jwt", "device-aaaa")
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, SessionNotFound, invalid.Reason)

	require.NoError(t, svc.EndSession(ctx, grant.Session))
	_, err = svc.ValidateSession(ctx, grant.Token, "device-aaaa")
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, SessionNotFound, invalid.Reason)

	// Reactivate and push past expiry: the row check reports EXPIRED.
	sessions.rows[grant.Session.ID].Active = true
	sessions.rows[grant.Session.ID].ExpiresAt = time.Now().Add(-time.Minute)
	_, err = svc.ValidateSession(ctx, grant.Token, "device-aaaa")
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, SessionExpired, invalid.Reason)
}

func TestVerifyPerStudentCredentials(t *testing.T) {
	examID := uuid.New()
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)

	creds := NewCredentialService(&memCredentialStore{
		exam: &model.ExamCredential{ExamID: examID, Mode: model.CredentialModePerStudent},
		students: map[string]*model.StudentCredential{
			"alice@example.com": {ExamID: examID, StudentEmail: "alice@example.com", SecretHash: string(hash)},
		},
	})
	ctx := context.Background()

	require.NoError(t, creds.Verify(ctx, examID, "alice@example.com", "hunter2"))

	var credErr *CredentialError
	err = creds.Verify(ctx, examID, "alice@example.com", "wrong")
	require.ErrorAs(t, err, &credErr)
	require.Equal(t, CredentialIncorrect, credErr.Reason)

	err = creds.Verify(ctx, examID, "bob@example.com", "hunter2")
	require.ErrorAs(t, err, &credErr)
	require.Equal(t, CredentialNotProvisioned, credErr.Reason)
}

func TestCreateSessionLostInsertRaceResumesWinner(t *testing.T) {
	exam := publishedExam()
	svc, sessions := admissionFixture(exam)
	ctx := context.Background()

	// Pre-seed the winner's row as if a concurrent admission landed between
	// our GetActive miss and the insert.
	racer := &racingSessionStore{memSessionStore: sessions, exam: exam}
	svc.sessions = racer

	grant, err := svc.CreateOrResumeSession(ctx, exam.ID, admissionReq("device-aaaa"), "10.0.0.1")
	require.NoError(t, err)
	require.True(t, grant.Resumed)
	require.Equal(t, racer.winner.ID, grant.Session.ID)
}

// racingSessionStore reports no active session on the first read, then lands
// a competing row before Create runs.
type racingSessionStore struct {
	*memSessionStore
	exam   *model.Exam
	winner *model.DeviceSession
	reads  int
}

func (r *racingSessionStore) GetActive(ctx context.Context, examID uuid.UUID, email string) (*model.DeviceSession, error) {
	r.reads++
	if r.reads == 1 {
		return nil, pgx.ErrNoRows
	}
	return r.memSessionStore.GetActive(ctx, examID, email)
}

func (r *racingSessionStore) Create(ctx context.Context, s *model.DeviceSession) error {
	if r.winner == nil {
		r.winner = &model.DeviceSession{
			ID:                uuid.New(),
			ExamID:            s.ExamID,
			StudentEmail:      s.StudentEmail,
			DeviceFingerprint: s.DeviceFingerprint,
			Active:            true,
			ExpiresAt:         time.Now().Add(time.Hour),
		}
		if err := r.memSessionStore.Create(ctx, r.winner); err != nil {
			return err
		}
	}
	return r.memSessionStore.Create(ctx, s)
}
