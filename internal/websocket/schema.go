package websocket

import "encoding/json"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave  Action = "autosave"
	ActionViolation Action = "violation"
	ActionPing      Action = "ping"
)

// RequestPayload is the single client message shape; unused fields stay empty
// for actions that do not need them.
type RequestPayload struct {
	Action Action `json:"action"`

	// autosave
	QID       string `json:"q_id,omitempty"`
	Payload   string `json:"payload,omitempty"`
	Submitted bool   `json:"submitted,omitempty"`

	// violation
	Type   string          `json:"type,omitempty"`
	Detail json.RawMessage `json:"detail,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError    Event = "error"
	EventSaved    Event = "saved"
	EventRecorded Event = "recorded"
	EventPong     Event = "pong"
)

type SavedResponse struct {
	Event Event  `json:"event"`
	QID   string `json:"q_id"`
}

// RecordedResponse acknowledges a violation with the attempt's running count.
type RecordedResponse struct {
	Event    Event  `json:"event"`
	Severity string `json:"severity"`
	Count    int    `json:"count"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
