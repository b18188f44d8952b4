package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/provexam/provex-backend/internal/config"
	"github.com/provexam/provex-backend/internal/middleware"
	"github.com/provexam/provex-backend/internal/model"
	"github.com/provexam/provex-backend/internal/service"
	ws "github.com/provexam/provex-backend/internal/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler handles WebSocket streaming: the student's low-latency autosave
// and violation channel, and the examiner's live monitor feed.
type WSHandler struct {
	rdb        *redis.Client
	admission  *service.AdmissionService
	attempts   *service.AttemptService
	answers    *service.AnswerService
	violations *service.ViolationService
	log        zerolog.Logger
	upgrader   websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(
	rdb *redis.Client,
	admission *service.AdmissionService,
	attempts *service.AttemptService,
	answers *service.AnswerService,
	violations *service.ViolationService,
	log zerolog.Logger,
	allowedOrigins []string,
) *WSHandler {
	return &WSHandler{
		rdb:        rdb,
		admission:  admission,
		attempts:   attempts,
		answers:    answers,
		violations: violations,
		log:        log.With().Str("component", "ws_handler").Logger(),
		upgrader:   buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/attempt/stream
// Upgrades to WebSocket for real-time autosave and violation reporting.
// The session middleware has already validated token and fingerprint.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	sess := middleware.GetSession(c)
	if sess == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	attempt, err := h.attempts.ActiveAttempt(c.Request.Context(), sess)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "no running attempt"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Str("attempt_id", attempt.ID.String()).
		Str("exam_id", sess.ExamID.String()).
		Logger()

	wsLog.Info().Msg("Student connected")

	for {
		var msg ws.RequestPayload
		err := ws.ReadJSON(conn, &msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		switch msg.Action {
		case ws.ActionAutosave:
			h.handleAutosave(conn, attempt, &msg)
		case ws.ActionViolation:
			h.handleViolation(conn, attempt, &msg)
		case ws.ActionPing:
			_ = h.admission.TouchSession(context.Background(), sess)
			ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			ws.WriteError(conn, "unknown action: "+string(msg.Action))
		}
	}
}

// handleAutosave saves a single answer through the same path as the REST
// endpoint: redis hash first, queued persistence behind it.
func (h *WSHandler) handleAutosave(conn *websocket.Conn, attempt *model.Attempt, msg *ws.RequestPayload) {
	ctx := context.Background()

	if msg.QID == "" {
		ws.WriteError(conn, "q_id is required")
		return
	}

	questionID, err := uuid.Parse(msg.QID)
	if err != nil {
		ws.WriteError(conn, "invalid q_id format")
		return
	}

	if err := h.answers.Save(ctx, attempt.ID, questionID, msg.Payload, msg.Submitted); err != nil {
		h.log.Error().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Autosave error")
		ws.WriteError(conn, "save failed")
		return
	}

	ws.WriteTyped(conn, ws.SavedResponse{Event: ws.EventSaved, QID: msg.QID})
}

// handleViolation records one integrity event and echoes the running count.
func (h *WSHandler) handleViolation(conn *websocket.Conn, attempt *model.Attempt, msg *ws.RequestPayload) {
	ctx := context.Background()

	if msg.Type == "" {
		ws.WriteError(conn, "type is required")
		return
	}

	violation, count, err := h.violations.Record(ctx, attempt, model.RecordViolationRequest{
		Type:   msg.Type,
		Detail: msg.Detail,
	})
	if err != nil {
		h.log.Error().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Violation record error")
		ws.WriteError(conn, "record failed")
		return
	}

	ws.WriteTyped(conn, ws.RecordedResponse{
		Event:    ws.EventRecorded,
		Severity: string(violation.Severity),
		Count:    count,
	})
}

// MonitorStream godoc
// WS /ws/v1/reporting/exams/:exam_id/monitor
// Streams the exam's live violation feed to an examiner. Events originate in
// the redis pubsub channel the violation service publishes to.
func (h *WSHandler) MonitorStream(c *gin.Context) {
	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid exam ID"})
		return
	}
	if h.rdb == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "monitor feed unavailable"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := h.rdb.Subscribe(ctx, config.CacheKey.ExamMonitorChannel(examID.String()))
	defer sub.Close()

	wsLog := h.log.With().Str("exam_id", examID.String()).Logger()
	wsLog.Info().Msg("Monitor connected")

	// Reader goroutine: the examiner sends nothing meaningful, but a read loop
	// is needed to detect the close frame.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			wsLog.Debug().Msg("Monitor disconnected")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				wsLog.Debug().Err(err).Msg("Monitor write failed")
				return
			}
		}
	}
}
