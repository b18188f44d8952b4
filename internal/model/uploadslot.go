package model

import (
	"time"

	"github.com/google/uuid"
)

// UploadSlot is one pre-authorized, single-use write handle for proctoring
// media. Slots are scoped to (attempt, channel) so a handle can never be
// redirected to another student's destination.
type UploadSlot struct {
	ID          uuid.UUID  `json:"id"`
	AttemptID   uuid.UUID  `json:"attempt_id"`
	Channel     string     `json:"channel"`
	Generation  int        `json:"generation"`
	Destination string     `json:"-"`
	Used        bool       `json:"used"`
	UsedAt      *time.Time `json:"used_at,omitempty"`
	IssuedAt    time.Time  `json:"issued_at"`
}

// SlotBatch is a freshly issued generation of slots for one channel.
type SlotBatch struct {
	Channel    string      `json:"channel"`
	Generation int         `json:"generation"`
	SlotIDs    []uuid.UUID `json:"slot_ids"`
}

// RequestSlotsRequest asks for a replenishment batch on an exhausted channel.
type RequestSlotsRequest struct {
	Channel string `json:"channel" binding:"required,min=1,max=64"`
	Count   int    `json:"count" binding:"omitempty,min=1"`
}
