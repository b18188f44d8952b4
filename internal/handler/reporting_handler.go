package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/provexam/provex-backend/internal/response"
	"github.com/provexam/provex-backend/internal/service"
)

// ReportingHandler serves the read-only reporting plane: attempt rosters and
// per-attempt integrity detail for examiners.
type ReportingHandler struct {
	attempts   *service.AttemptService
	violations *service.ViolationService
}

// NewReportingHandler creates a new ReportingHandler.
func NewReportingHandler(attempts *service.AttemptService, violations *service.ViolationService) *ReportingHandler {
	return &ReportingHandler{attempts: attempts, violations: violations}
}

// ListAttempts godoc
// GET /api/v1/reporting/exams/:exam_id/attempts
// Returns an exam's attempts, newest first, paginated.
func (h *ReportingHandler) ListAttempts(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "50"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 200 {
		perPage = 50
	}

	attempts, total, err := h.attempts.ListByExam(c.Request.Context(), examID, page, perPage)
	if err != nil {
		failFromServiceError(c, err)
		return
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"attempts": attempts},
		response.NewPagination(page, perPage, total))
}

// GetAttemptDetail godoc
// GET /api/v1/reporting/attempts/:attempt_id
// Returns one attempt with its violation log and grading detail.
func (h *ReportingHandler) GetAttemptDetail(c *gin.Context) {
	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	attempt, err := h.attempts.GetByID(c.Request.Context(), attemptID)
	if err != nil {
		failFromServiceError(c, err)
		return
	}

	violations, err := h.violations.ListByAttempt(c.Request.Context(), attemptID)
	if err != nil {
		failFromServiceError(c, err)
		return
	}

	results, err := h.attempts.ListResults(c.Request.Context(), attemptID)
	if err != nil {
		failFromServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"attempt":    attempt,
		"violations": violations,
		"results":    results,
	})
}
