package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/provexam/provex-backend/internal/middleware"
	"github.com/provexam/provex-backend/internal/response"
	"github.com/provexam/provex-backend/internal/service"
)

// MediaHandler redeems upload slots for proctoring frames.
type MediaHandler struct {
	attempts *service.AttemptService
	slots    *service.SlotService
	media    *service.MediaService
}

// NewMediaHandler creates a new MediaHandler.
func NewMediaHandler(attempts *service.AttemptService, slots *service.SlotService, media *service.MediaService) *MediaHandler {
	return &MediaHandler{attempts: attempts, slots: slots, media: media}
}

// UploadFrame godoc
// POST /api/v1/attempt/uploads/:slot_id
// Spends one pre-issued slot on a proctoring frame. A slot is single-use and
// bound to the attempt it was issued for.
func (h *MediaHandler) UploadFrame(c *gin.Context) {
	sess := middleware.GetSession(c)

	slotID, err := uuid.Parse(c.Param("slot_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	attempt, err := h.attempts.ActiveAttempt(c.Request.Context(), sess)
	if err != nil {
		failFromServiceError(c, err)
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return
	}
	defer file.Close()

	slot, err := h.slots.Redeem(c.Request.Context(), slotID, attempt.ID)
	if err != nil {
		failFromServiceError(c, err)
		return
	}

	path, err := h.media.StoreFrame(slot, file, header)
	if err != nil {
		failFromServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"slot_id": slot.ID,
		"channel": slot.Channel,
		"path":    path,
	})
}
