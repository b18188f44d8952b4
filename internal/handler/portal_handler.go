package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/provexam/provex-backend/internal/middleware"
	"github.com/provexam/provex-backend/internal/model"
	"github.com/provexam/provex-backend/internal/response"
	"github.com/provexam/provex-backend/internal/service"
	"github.com/provexam/provex-backend/internal/validator"
)

// PortalHandler handles the student-facing attempt plane: admission, the
// attempt lifecycle, autosave, violations, and slot replenishment.
type PortalHandler struct {
	admission  *service.AdmissionService
	attempts   *service.AttemptService
	answers    *service.AnswerService
	violations *service.ViolationService
	slots      *service.SlotService
}

// NewPortalHandler creates a new PortalHandler.
func NewPortalHandler(
	admission *service.AdmissionService,
	attempts *service.AttemptService,
	answers *service.AnswerService,
	violations *service.ViolationService,
	slots *service.SlotService,
) *PortalHandler {
	return &PortalHandler{
		admission:  admission,
		attempts:   attempts,
		answers:    answers,
		violations: violations,
		slots:      slots,
	}
}

// CreateOrResumeSession godoc
// POST /api/v1/exams/:exam_id/session
// Admits a device after credential verification (idempotent for the same
// device). A different device is refused while the holder's session lives.
func (h *PortalHandler) CreateOrResumeSession(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.CreateSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	grant, err := h.admission.CreateOrResumeSession(c.Request.Context(), examID, req, c.ClientIP())
	if err != nil {
		failFromServiceError(c, err)
		return
	}

	status := http.StatusCreated
	if grant.Resumed {
		status = http.StatusOK
	}
	response.Success(c, status, grant)
}

// Heartbeat godoc
// POST /api/v1/attempt/heartbeat
// Refreshes the session's last-activity timestamp.
func (h *PortalHandler) Heartbeat(c *gin.Context) {
	sess := middleware.GetSession(c)
	if err := h.admission.TouchSession(c.Request.Context(), sess); err != nil {
		failFromServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"expires_at": sess.ExpiresAt})
}

// EndSession godoc
// DELETE /api/v1/attempt/session
// Signs the device out without touching the attempt.
func (h *PortalHandler) EndSession(c *gin.Context) {
	sess := middleware.GetSession(c)
	if err := h.admission.EndSession(c.Request.Context(), sess); err != nil {
		failFromServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"ended": true})
}

// StartOrResumeAttempt godoc
// POST /api/v1/attempt
// Creates the session holder's attempt on first call; later calls return the
// running attempt with saved answers and fresh upload slot batches.
func (h *PortalHandler) StartOrResumeAttempt(c *gin.Context) {
	sess := middleware.GetSession(c)
	state, err := h.attempts.StartOrResumeAttempt(c.Request.Context(), sess)
	if err != nil {
		failFromServiceError(c, err)
		return
	}

	status := http.StatusCreated
	if state.Resumed {
		status = http.StatusOK
	}
	response.Success(c, status, state)
}

// GetState godoc
// GET /api/v1/attempt/state
// Returns the running attempt plus saved answers, covering a page reload
// without issuing new slot batches.
func (h *PortalHandler) GetState(c *gin.Context) {
	sess := middleware.GetSession(c)
	attempt, err := h.attempts.ActiveAttempt(c.Request.Context(), sess)
	if err != nil {
		failFromServiceError(c, err)
		return
	}

	answers, err := h.answers.List(c.Request.Context(), attempt.ID)
	if err != nil {
		failFromServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"attempt": attempt,
		"answers": answers,
	})
}

// SaveAnswer godoc
// PUT /api/v1/attempt/answers/:question_id
// Autosaves one answer. The submitted flag only ever moves false→true.
func (h *PortalHandler) SaveAnswer(c *gin.Context) {
	sess := middleware.GetSession(c)

	questionID, err := uuid.Parse(c.Param("question_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SaveAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	attempt, err := h.attempts.ActiveAttempt(c.Request.Context(), sess)
	if err != nil {
		failFromServiceError(c, err)
		return
	}

	if err := h.answers.Save(c.Request.Context(), attempt.ID, questionID, req.Payload, req.Submitted); err != nil {
		failFromServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"saved": true})
}

// RecordViolation godoc
// POST /api/v1/attempt/violations
// Records one integrity event and returns the running count.
func (h *PortalHandler) RecordViolation(c *gin.Context) {
	sess := middleware.GetSession(c)

	var req model.RecordViolationRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	attempt, err := h.attempts.ActiveAttempt(c.Request.Context(), sess)
	if err != nil {
		failFromServiceError(c, err)
		return
	}

	violation, count, err := h.violations.Record(c.Request.Context(), attempt, req)
	if err != nil {
		failFromServiceError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"violation":       violation,
		"violation_count": count,
	})
}

// RequestSlots godoc
// POST /api/v1/attempt/slots
// Issues a fresh batch of single-use upload slots for one channel.
func (h *PortalHandler) RequestSlots(c *gin.Context) {
	sess := middleware.GetSession(c)

	var req model.RequestSlotsRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	attempt, err := h.attempts.ActiveAttempt(c.Request.Context(), sess)
	if err != nil {
		failFromServiceError(c, err)
		return
	}

	batch, err := h.slots.RequestMore(c.Request.Context(), attempt, req.Channel, req.Count)
	if err != nil {
		failFromServiceError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, batch)
}

// SubmitAttempt godoc
// POST /api/v1/attempt/submit
// Finalizes the attempt: grades it, persists the outcome, and retires the
// session. A repeated submit is an idempotent no-op.
func (h *PortalHandler) SubmitAttempt(c *gin.Context) {
	sess := middleware.GetSession(c)
	attempt, err := h.attempts.SubmitAttempt(c.Request.Context(), sess, h.admission)
	if err != nil {
		failFromServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}

// GetResult godoc
// GET /api/v1/attempt/result
// Returns the finalized outcome with per-question grading detail.
func (h *PortalHandler) GetResult(c *gin.Context) {
	sess := middleware.GetSession(c)
	result, err := h.attempts.GetResult(c.Request.Context(), sess.ExamID, sess.StudentEmail)
	if err != nil {
		failFromServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// failFromServiceError maps typed service errors onto the response envelope.
func failFromServiceError(c *gin.Context, err error) {
	var credErr *service.CredentialError
	if errors.As(err, &credErr) {
		switch credErr.Reason {
		case service.CredentialMissing:
			response.Fail(c, http.StatusBadRequest, response.ErrCredentialMissing)
		case service.CredentialNotProvisioned:
			response.Fail(c, http.StatusForbidden, response.ErrCredentialNotProvisioned)
		default:
			response.Fail(c, http.StatusUnauthorized, response.ErrCredentialIncorrect)
		}
		return
	}

	var denied *service.SessionDeniedError
	if errors.As(err, &denied) {
		response.Fail(c, http.StatusConflict, response.ErrSessionDenied)
		return
	}

	var invalid *service.SessionInvalidError
	if errors.As(err, &invalid) {
		switch invalid.Reason {
		case service.SessionExpired:
			response.Fail(c, http.StatusUnauthorized, response.ErrSessionExpired)
		case service.SessionDeviceMismatch:
			response.Fail(c, http.StatusForbidden, response.ErrDeviceMismatch)
		default:
			response.Fail(c, http.StatusUnauthorized, response.ErrSessionNotFound)
		}
		return
	}

	var finalized *service.AttemptFinalizedError
	if errors.As(err, &finalized) {
		code := response.ErrAttemptCompleted
		if finalized.Status == model.AttemptStatusDisqualified {
			code = response.ErrAttemptDisqualified
		}
		response.Fail(c, http.StatusConflict, code)
		return
	}

	switch {
	case errors.Is(err, service.ErrExamNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrExamNotAvailable):
		response.Fail(c, http.StatusConflict, response.ErrExamNotAvailable)
	case errors.Is(err, service.ErrAttemptNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrAttemptNotFound)
	case errors.Is(err, service.ErrAttemptNotFinalized):
		response.Fail(c, http.StatusConflict, response.ErrResultNotReady)
	case errors.Is(err, service.ErrSlotNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrSlotNotFound)
	case errors.Is(err, service.ErrSlotForbidden):
		response.Fail(c, http.StatusForbidden, response.ErrSlotForbidden)
	case errors.Is(err, service.ErrSlotSpent):
		response.Fail(c, http.StatusConflict, response.ErrSlotSpent)
	case errors.Is(err, service.ErrUnsupportedFileType):
		response.Fail(c, http.StatusBadRequest, response.ErrUnsupportedFile)
	case errors.Is(err, service.ErrFileTooLarge):
		response.Fail(c, http.StatusBadRequest, response.ErrFileTooLarge)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
