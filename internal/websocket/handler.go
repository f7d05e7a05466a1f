package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"classcast/internal/lifecycle"
	"classcast/pkg/types"
)

// Inbound event types on the wire envelope.
const (
	inboundJoin            = "join"
	inboundRejoin          = "rejoin"
	inboundDocumentUpdate  = "document_update"
	inboundViewerJoinGroup = "viewer_join_group"
	inboundViewerSubscribe = "viewer_subscribe"
	inboundViewerMembers   = "viewer_member_list"
	inboundViewerBroadcast = "viewer_broadcast"
	inboundViewerRemove    = "viewer_force_remove"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is delegated to the deployment's reverse proxy.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// inboundEnvelope is the wire format of every client-to-server event.
type inboundEnvelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type joinPayload struct {
	StudentName string `json:"student_name"`
	ClassCode   string `json:"class_code"`
}

type rejoinPayload struct {
	StudentID   string `json:"student_id"`
	StudentName string `json:"student_name"`
	ClassCode   string `json:"class_code"`
}

type subscribePayload struct {
	TargetConnectionID string `json:"target_connection_id"`
}

type classPayload struct {
	ClassCode string `json:"class_code"`
}

type broadcastPayload struct {
	ClassCode string `json:"class_code"`
	Text      string `json:"text"`
}

type forceRemovePayload struct {
	TargetConnectionID string `json:"target_connection_id"`
	Reason             string `json:"reason"`
}

// Config holds the handler's transport settings.
type Config struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	SendBuffer   int
}

// Handler upgrades WebSocket requests and pumps inbound events into the
// lifecycle manager. One goroutine per connection reads; the connection's
// own writer goroutine sends.
type Handler struct {
	lifecycle *lifecycle.Manager
	config    Config
}

// NewHandler creates a WebSocket handler.
func NewHandler(lc *lifecycle.Manager, config Config) *Handler {
	return &Handler{
		lifecycle: lc,
		config:    config,
	}
}

// HandleWebSocket upgrades the request and starts the connection's read loop.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	wsConn := NewConnection(conn, h.config.SendBuffer, h.config.WriteTimeout)
	go h.handleConnection(wsConn)
}

// handleConnection owns one connection's read pump and heartbeat. The
// deferred disconnect covers every exit path, and the lifecycle manager
// makes a second disconnect for the same connection a no-op.
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		h.lifecycle.Disconnect(conn.ConnectionID(), "disconnected")
		_ = conn.Close()
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	})

	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(h.config.WriteTimeout)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error on %s: %v", conn.ConnectionID(), err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		h.dispatch(conn, data)
	}
}

// dispatch decodes one inbound envelope and routes it to the lifecycle
// manager. Faults of any kind become an error event to the caller; the
// connection and the process both survive.
func (h *Handler) dispatch(conn *Connection, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Panic handling event from %s: %v", conn.ConnectionID(), r)
			h.sendError(conn, "internal error")
		}
	}()

	var envelope inboundEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		h.sendError(conn, "malformed event")
		return
	}

	if err := h.handleEvent(conn, &envelope); err != nil {
		h.sendError(conn, "event handling failed")
	}
}

// handleEvent routes one decoded envelope. Join/rejoin validation failures
// are converted into their reject events here and reported to the
// originating connection only.
func (h *Handler) handleEvent(conn *Connection, envelope *inboundEnvelope) error {
	ctx := context.Background()

	switch envelope.Type {
	case inboundJoin:
		var p joinPayload
		if err := json.Unmarshal(envelope.Payload, &p); err != nil {
			return err
		}
		if err := h.lifecycle.Join(ctx, conn, p.StudentName, p.ClassCode); err != nil {
			return h.rejectJoin(conn, types.EventJoinRejected, err)
		}
		return nil

	case inboundRejoin:
		var p rejoinPayload
		if err := json.Unmarshal(envelope.Payload, &p); err != nil {
			return err
		}
		if err := h.lifecycle.Rejoin(ctx, conn, p.StudentID, p.StudentName, p.ClassCode); err != nil {
			return h.rejectJoin(conn, types.EventRejoinRejected, err)
		}
		return nil

	case inboundDocumentUpdate:
		var doc types.Document
		if err := json.Unmarshal(envelope.Payload, &doc); err != nil {
			return err
		}
		return h.lifecycle.DocumentUpdate(conn.ConnectionID(), doc)

	case inboundViewerJoinGroup:
		var p classPayload
		if err := json.Unmarshal(envelope.Payload, &p); err != nil {
			return err
		}
		return h.lifecycle.ViewerJoinGroup(ctx, conn, p.ClassCode)

	case inboundViewerSubscribe:
		var p subscribePayload
		if err := json.Unmarshal(envelope.Payload, &p); err != nil {
			return err
		}
		return h.lifecycle.Subscribe(conn, p.TargetConnectionID)

	case inboundViewerMembers:
		var p classPayload
		if err := json.Unmarshal(envelope.Payload, &p); err != nil {
			return err
		}
		return h.lifecycle.MemberList(conn, p.ClassCode)

	case inboundViewerBroadcast:
		var p broadcastPayload
		if err := json.Unmarshal(envelope.Payload, &p); err != nil {
			return err
		}
		return h.lifecycle.Broadcast(conn, p.ClassCode, p.Text)

	case inboundViewerRemove:
		var p forceRemovePayload
		if err := json.Unmarshal(envelope.Payload, &p); err != nil {
			return err
		}
		if err := h.lifecycle.ForceRemove(p.TargetConnectionID, p.Reason); err != nil {
			// Target already gone; nothing for the viewer to act on.
			log.Printf("Force remove of %s failed: %v", p.TargetConnectionID, err)
		}
		return nil

	default:
		h.sendError(conn, "unknown event type")
		return nil
	}
}

// rejectJoin converts a lifecycle taxonomy error into the matching reject
// event for the originating connection. Unrecognized causes (directory
// faults included) report a generic failure, not an invalid class code.
func (h *Handler) rejectJoin(conn *Connection, eventType string, cause error) error {
	reason := types.ReasonJoinFailed
	switch {
	case errors.Is(cause, lifecycle.ErrInvalidClassCode):
		reason = types.ReasonInvalidClassCode
	case errors.Is(cause, lifecycle.ErrClassInactive):
		reason = types.ReasonClassInactive
	case errors.Is(cause, lifecycle.ErrClassFull):
		reason = types.ReasonClassFull
	case errors.Is(cause, lifecycle.ErrInvalidStudentName), errors.Is(cause, lifecycle.ErrInvalidStudentID):
		reason = types.ReasonInvalidName
	case errors.Is(cause, lifecycle.ErrAlreadyJoined):
		reason = types.ReasonAlreadyJoined
	}

	if eventType == types.EventRejoinRejected {
		return conn.Send(&types.Event{
			Type: eventType,
			Payload: types.RejoinRejectedPayload{
				Reason:        reason,
				ClassInactive: reason == types.ReasonClassInactive,
			},
		})
	}

	return conn.Send(&types.Event{
		Type:    eventType,
		Payload: types.JoinRejectedPayload{Reason: reason},
	})
}

func (h *Handler) sendError(conn *Connection, message string) {
	err := conn.Send(&types.Event{
		Type:    types.EventError,
		Payload: types.ErrorPayload{Message: message},
	})
	if err != nil {
		log.Printf("Failed to send error event to %s: %v", conn.ConnectionID(), err)
	}
}
