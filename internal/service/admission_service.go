package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/provexam/provex-backend/internal/config"
	"github.com/provexam/provex-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// SessionStore is the device session collection surface.
type SessionStore interface {
	GetActive(ctx context.Context, examID uuid.UUID, studentEmail string) (*model.DeviceSession, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.DeviceSession, error)
	Create(ctx context.Context, s *model.DeviceSession) error
	Touch(ctx context.Context, id uuid.UUID) error
	Deactivate(ctx context.Context, id uuid.UUID) error
	RecordBlock(ctx context.Context, id uuid.UUID, block model.SessionBlock) error
}

// ExamStore is the exam metadata provider surface.
type ExamStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
}

// SessionClaims is the signed content of a session token. Clients treat the
// token as opaque; the engine re-checks the JTI against the stored row.
type SessionClaims struct {
	jwt.RegisteredClaims
	ExamID       string `json:"exam_id"`
	StudentEmail string `json:"student_email"`
}

// SessionGrant is a successful admission result.
type SessionGrant struct {
	Token     string               `json:"token"`
	ExpiresAt time.Time            `json:"expires_at"`
	Resumed   bool                 `json:"resumed"`
	Session   *model.DeviceSession `json:"session"`
}

// AdmissionService owns the single-device session gate: at most one active
// session per (exam, student), with the device fingerprint as the lock.
type AdmissionService struct {
	cfg      *config.Config
	sessions SessionStore
	exams    ExamStore
	creds    *CredentialService
	rdb      *redis.Client
	log      zerolog.Logger
}

// NewAdmissionService creates a new AdmissionService. rdb may be nil; the
// session row cache is then skipped and every validation reads the store.
func NewAdmissionService(
	cfg *config.Config,
	sessions SessionStore,
	exams ExamStore,
	creds *CredentialService,
	rdb *redis.Client,
	log zerolog.Logger,
) *AdmissionService {
	return &AdmissionService{
		cfg:      cfg,
		sessions: sessions,
		exams:    exams,
		creds:    creds,
		rdb:      rdb,
		log:      log.With().Str("component", "admission_service").Logger(),
	}
}

// CreateOrResumeSession admits a client after credential verification.
// Same device resuming gets the identical token back; a different device is
// refused with block metadata recorded on the legitimate row.
func (s *AdmissionService) CreateOrResumeSession(ctx context.Context, examID uuid.UUID, req model.CreateSessionRequest, clientOrigin string) (*SessionGrant, error) {
	exam, err := s.exams.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, storageErr("get exam", err)
	}
	if exam.Status != model.ExamStatusPublished {
		return nil, ErrExamNotAvailable
	}

	if err := s.creds.Verify(ctx, examID, req.StudentEmail, req.Secret); err != nil {
		return nil, err
	}

	now := time.Now()
	existing, err := s.sessions.GetActive(ctx, examID, req.StudentEmail)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, storageErr("scan active session", err)
	}

	if existing != nil && !existing.ExpiresAt.After(now) {
		// Stale row past its expiry. Retire it and admit fresh.
		if err := s.sessions.Deactivate(ctx, existing.ID); err != nil {
			return nil, storageErr("deactivate expired session", err)
		}
		s.dropCache(ctx, existing.ID)
		existing = nil
	}

	if existing == nil {
		grant, err := s.admitNew(ctx, exam, req, now)
		if err == nil || !errors.Is(err, pgx.ErrNoRows) {
			return grant, err
		}
		// Lost the insert race to a concurrent admission; continue against
		// the winner's row.
		existing, err = s.sessions.GetActive(ctx, examID, req.StudentEmail)
		if err != nil {
			return nil, storageErr("refetch session after concurrent admission", err)
		}
	}

	if existing.DeviceFingerprint == req.DeviceFingerprint {
		if err := s.sessions.Touch(ctx, existing.ID); err != nil {
			return nil, storageErr("touch session", err)
		}
		existing.LastActivityAt = now

		token, err := s.signToken(existing)
		if err != nil {
			return nil, err
		}
		s.cacheSession(ctx, existing)
		return &SessionGrant{
			Token:     token,
			ExpiresAt: existing.ExpiresAt,
			Resumed:   true,
			Session:   existing,
		}, nil
	}

	// Device lock: a different fingerprint never displaces the holder.
	block := model.SessionBlock{
		Reason:              "another device attempted admission",
		OffenderFingerprint: req.DeviceFingerprint,
		OffenderOrigin:      clientOrigin,
		BlockedAt:           now,
	}
	if err := s.sessions.RecordBlock(ctx, existing.ID, block); err != nil {
		return nil, storageErr("record session block", err)
	}
	s.log.Warn().
		Str("exam_id", examID.String()).
		Str("student_email", req.StudentEmail).
		Str("offender_fingerprint", req.DeviceFingerprint).
		Msg("Admission blocked by device lock")
	return nil, &SessionDeniedError{Block: block}
}

func (s *AdmissionService) admitNew(ctx context.Context, exam *model.Exam, req model.CreateSessionRequest, now time.Time) (*SessionGrant, error) {
	expiry := now.Add(s.cfg.SessionFallbackTTL)
	if exam.ScheduledEnd != nil && exam.ScheduledEnd.Before(expiry) {
		expiry = *exam.ScheduledEnd
	}
	if !expiry.After(now) {
		return nil, ErrExamNotAvailable
	}

	sess := &model.DeviceSession{
		ID:                uuid.New(),
		ExamID:            exam.ID,
		StudentEmail:      req.StudentEmail,
		DeviceFingerprint: req.DeviceFingerprint,
		Active:            true,
		ExpiresAt:         expiry,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err // insert race, caller refetches
		}
		return nil, storageErr("create session", err)
	}

	token, err := s.signToken(sess)
	if err != nil {
		return nil, err
	}
	s.cacheSession(ctx, sess)
	return &SessionGrant{Token: token, ExpiresAt: sess.ExpiresAt, Session: sess}, nil
}

// signToken derives the session token from the stored row only, so re-signing
// for a same-device resume yields the identical token string.
func (s *AdmissionService) signToken(sess *model.DeviceSession) (string, error) {
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sess.ID.String(),
			Subject:   sess.StudentEmail,
			IssuedAt:  jwt.NewNumericDate(sess.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
		ExamID:       sess.ExamID.String(),
		StudentEmail: sess.StudentEmail,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.SessionSecret))
	if err != nil {
		return "", storageErr("sign session token", err)
	}
	return signed, nil
}

// ValidateSession checks a presented token + fingerprint against the stored
// row. Every failure is typed so callers can branch: re-authenticate on
// EXPIRED/NOT_FOUND, hard-fail on DEVICE_MISMATCH.
func (s *AdmissionService) ValidateSession(ctx context.Context, tokenStr, fingerprint string) (*model.DeviceSession, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(s.cfg.SessionSecret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, &SessionInvalidError{Reason: SessionExpired}
		}
		return nil, &SessionInvalidError{Reason: SessionNotFound}
	}
	if !token.Valid {
		return nil, &SessionInvalidError{Reason: SessionNotFound}
	}

	id, err := uuid.Parse(claims.ID)
	if err != nil {
		return nil, &SessionInvalidError{Reason: SessionNotFound}
	}

	sess, err := s.loadSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sess.Active {
		return nil, &SessionInvalidError{Reason: SessionNotFound}
	}
	if !sess.ExpiresAt.After(time.Now()) {
		return nil, &SessionInvalidError{Reason: SessionExpired}
	}
	if sess.DeviceFingerprint != fingerprint {
		return nil, &SessionInvalidError{Reason: SessionDeviceMismatch}
	}
	return sess, nil
}

// TouchSession refreshes the session's last-activity timestamp.
func (s *AdmissionService) TouchSession(ctx context.Context, sess *model.DeviceSession) error {
	if err := s.sessions.Touch(ctx, sess.ID); err != nil {
		return storageErr("touch session", err)
	}
	return nil
}

// EndSession deactivates a session (sign-out or submission). The row stays
// behind as an audit trail.
func (s *AdmissionService) EndSession(ctx context.Context, sess *model.DeviceSession) error {
	if err := s.sessions.Deactivate(ctx, sess.ID); err != nil {
		return storageErr("deactivate session", err)
	}
	s.dropCache(ctx, sess.ID)
	return nil
}

// loadSession reads the row from the cache, falling back to the store and
// self-healing the cache on a miss.
func (s *AdmissionService) loadSession(ctx context.Context, id uuid.UUID) (*model.DeviceSession, error) {
	if s.rdb != nil {
		raw, err := s.rdb.Get(ctx, config.CacheKey.SessionTokenKey(id.String())).Result()
		if err == nil {
			sess := &model.DeviceSession{}
			if jsonErr := json.Unmarshal([]byte(raw), sess); jsonErr == nil {
				return sess, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Msg("Session cache read failed, falling back to store")
		}
	}

	sess, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &SessionInvalidError{Reason: SessionNotFound}
		}
		return nil, storageErr("get session", err)
	}
	s.cacheSession(ctx, sess)
	return sess, nil
}

func (s *AdmissionService) cacheSession(ctx context.Context, sess *model.DeviceSession) {
	if s.rdb == nil {
		return
	}
	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, config.CacheKey.SessionTokenKey(sess.ID.String()), raw, ttl).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Session cache write failed")
	}
}

func (s *AdmissionService) dropCache(ctx context.Context, id uuid.UUID) {
	if s.rdb == nil {
		return
	}
	_ = s.rdb.Del(ctx, config.CacheKey.SessionTokenKey(id.String())).Err()
}
