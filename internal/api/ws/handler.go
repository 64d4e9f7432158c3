package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/jsbench/internal/engine/controller"
	"github.com/GriffinCanCode/jsbench/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/jsbench/internal/shared/id"
	"github.com/GriffinCanCode/jsbench/internal/shared/types"
	"github.com/GriffinCanCode/jsbench/internal/shared/utils"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = utils.MaxJSONSize
	outboxSize     = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // origins are enforced by the CORS layer
	},
}

// ClientMessage is a message from the browser
type ClientMessage struct {
	Type       string         `json:"type"`
	ID         string         `json:"id,omitempty"`
	Mode       types.Mode     `json:"mode,omitempty"`
	TestCase   types.TestCase `json:"testCase"`
	Setup      string         `json:"setup,omitempty"`
	TypeScript *bool          `json:"typescript,omitempty"`
}

// ServerMessage is a message to the browser
type ServerMessage struct {
	Type      string            `json:"type"`
	ID        string            `json:"id,omitempty"`
	Event     *controller.Event `json:"event,omitempty"`
	Message   string            `json:"message,omitempty"`
	Timestamp int64             `json:"timestamp"`
}

// Handler manages WebSocket connections
type Handler struct {
	controller *controller.Controller
	metrics    *monitoring.Metrics
	logger     *zap.Logger
	typescript bool
}

// NewHandler creates a new WebSocket handler
func NewHandler(ctrl *controller.Controller, metrics *monitoring.Metrics, logger *zap.Logger, typescript bool) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		controller: ctrl,
		metrics:    metrics,
		logger:     logger,
		typescript: typescript,
	}
}

// HandleConnection handles WebSocket upgrade and messages
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	connID := id.NewConnID()
	log := h.logger.With(zap.String("conn_id", connID.String()))
	log.Debug("WebSocket connected")
	if h.metrics != nil {
		h.metrics.IncWSConnections()
		defer h.metrics.DecWSConnections()
	}

	events, unsubscribe := h.controller.Subscribe()
	outbox := make(chan ServerMessage, outboxSize)
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		h.writeLoop(conn, events, outbox, done, log)
	}()

	h.send(outbox, stopped, ServerMessage{Type: "system", ID: connID.String(), Message: "connected"})
	h.readLoop(conn, outbox, stopped, log)

	close(done)
	<-stopped
	unsubscribe()
	conn.Close()
	log.Debug("WebSocket disconnected")
}

func (h *Handler) readLoop(conn *websocket.Conn, outbox chan<- ServerMessage, stopped <-chan struct{}, log *zap.Logger) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var reply ServerMessage
		switch msg.Type {
		case "submit":
			reply = h.handleSubmit(msg)
		case "cancel":
			reply = h.handleCancel(msg)
		case "ping":
			reply = ServerMessage{Type: "pong"}
		default:
			msg.Type = "unknown"
			reply = errorMessage(msg.ID, "unknown message type")
		}
		h.record("in", msg.Type)
		h.send(outbox, stopped, reply)
	}
}

func (h *Handler) handleSubmit(msg ClientMessage) ServerMessage {
	tc := msg.TestCase
	if tc.ID == "" {
		tc.ID = id.NewCaseID().String()
	}
	if msg.Mode == "" {
		msg.Mode = types.ModeBenchmark
	}
	if err := utils.ValidateTestCase(tc); err != nil {
		return errorMessage(tc.ID, err.Error())
	}
	if err := utils.ValidateCode(msg.Setup, "setup"); err != nil {
		return errorMessage(tc.ID, err.Error())
	}

	typescript := h.typescript
	if msg.TypeScript != nil {
		typescript = *msg.TypeScript
	}
	if err := h.controller.Submit(msg.Mode, tc, controller.Options{Setup: msg.Setup, TypeScript: typescript}); err != nil {
		return errorMessage(tc.ID, err.Error())
	}
	return ServerMessage{Type: "accepted", ID: tc.ID}
}

func (h *Handler) handleCancel(msg ClientMessage) ServerMessage {
	if err := h.controller.Cancel(msg.ID); err != nil {
		return errorMessage(msg.ID, err.Error())
	}
	return ServerMessage{Type: "accepted", ID: msg.ID}
}

// writeLoop is the connection's only writer
func (h *Handler) writeLoop(conn *websocket.Conn, events <-chan controller.Event, outbox <-chan ServerMessage, done <-chan struct{}, log *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		var msg ServerMessage
		select {
		case <-done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			msg = ServerMessage{Type: "state", ID: ev.ID, Event: &ev}
		case msg = <-outbox:
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			continue
		}

		msg.Timestamp = time.Now().Unix()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(msg); err != nil {
			log.Debug("WebSocket write failed", zap.Error(err))
			// Unblocks the reader
			conn.Close()
			return
		}
		h.record("out", msg.Type)
	}
}

// send queues msg unless the writer has already stopped
func (h *Handler) send(outbox chan<- ServerMessage, stopped <-chan struct{}, msg ServerMessage) {
	select {
	case outbox <- msg:
	case <-stopped:
	}
}

func (h *Handler) record(direction, msgType string) {
	if h.metrics != nil {
		h.metrics.RecordWSMessage(direction, msgType)
	}
}

func errorMessage(id, msg string) ServerMessage {
	return ServerMessage{Type: "error", ID: id, Message: msg}
}
