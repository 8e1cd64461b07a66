package ws

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"syncup-service/internal/models"
	"syncup-service/internal/observability"
	"syncup-service/internal/repositories"
)

// TokenValidator resolves a bearer token to a user id. Implemented by
// the auth-service gRPC client.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (int64, error)
}

// EventPublisher carries socket lifecycle events to the broker.
// Satisfied by rabbitmq.Publisher.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

// lifecycleEvent is the broker envelope for connect/disconnect events.
type lifecycleEvent struct {
	EventType string         `json:"event_type"`
	EventName string         `json:"event_name"`
	Payload   map[string]any `json:"payload"`
}

// Handler owns the single push endpoint. A connection may stay
// anonymous: it still receives broadcasts but has no personal channel
// and no presence.
type Handler struct {
	hub      *Hub
	presence *PresenceTracker
	users    repositories.UserRepository
	auth     TokenValidator
	events   EventPublisher
}

// NewHandler constructs the websocket Handler.
func NewHandler(hub *Hub, presence *PresenceTracker, users repositories.UserRepository, auth TokenValidator, events EventPublisher) *Handler {
	return &Handler{hub: hub, presence: presence, users: users, auth: auth, events: events}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection, associates it with a user when the
// token verifies, and runs the inbound event loop.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("syncup-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	// Invalid or missing token degrades to an anonymous socket, the
	// handshake itself never fails on auth.
	userID := h.resolveUser(ctx, c)

	socket, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		DeviceID:    c.GetHeader("X-Device-Id"),
		IP:          clientIP(c.Request),
		RequestID:   c.GetHeader("X-Request-Id"),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	conn := NewConnection(userID, socket, info)
	conn.Start()
	h.presence.ConnectionOpened(ctx, conn)

	observability.IncWSActive("socket")
	observability.IncWSEvent("socket", "ws_connect")
	h.publishLifecycle(ctx, conn, "ws_connect", "")

	go h.readLoop(conn)
}

func (h *Handler) readLoop(conn *Connection) {
	var closeReason string
	defer func() {
		h.presence.ConnectionClosed(context.Background(), conn)
		conn.Close(websocket.CloseNormalClosure, "")
		observability.DecWSActive("socket")
		observability.IncWSEvent("socket", "ws_disconnect")
		h.publishLifecycle(context.Background(), conn, "ws_disconnect", closeReason)
	}()

	for {
		payload, err := conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("socket", "ws_error")
			}
			return
		}

		var frame models.ClientFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			log.Printf("ws: bad frame from conn=%s: %v", conn.ID, err)
			continue
		}
		h.handleFrame(conn, frame)
	}
}

func (h *Handler) handleFrame(conn *Connection, frame models.ClientFrame) {
	switch frame.Type {
	case models.EventJoin:
		if frame.ChatID != 0 {
			h.hub.Join(conn, frame.ChatID)
		}
	case models.EventLeave:
		if frame.ChatID != 0 {
			h.hub.Leave(conn, frame.ChatID)
		}
	case models.EventTyping, models.EventTypingStop:
		// Ephemeral relay: never persisted, room-scoped, sender excluded.
		// Expiry is client-driven (typing:stop follows the last keystroke).
		if frame.ChatID == 0 || conn.UserID == 0 {
			return
		}
		h.hub.BroadcastRoomExcept(frame.ChatID, conn.ID, models.Event{
			Type:   frame.Type,
			Typing: &models.TypingIndicator{ChatID: frame.ChatID, UserID: conn.UserID},
		})
	case models.EventUserUpdate:
		if conn.UserID == 0 || frame.AvatarURL == "" {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.users.SetAvatar(ctx, conn.UserID, frame.AvatarURL); err != nil {
			log.Printf("ws: set avatar user=%d: %v", conn.UserID, err)
			return
		}
		h.hub.BroadcastAll(models.Event{
			Type: models.EventUserUpdate,
			User: &models.UserUpdate{UserID: conn.UserID, AvatarURL: frame.AvatarURL},
		})
	default:
		log.Printf("ws: unknown frame type %q from conn=%s", frame.Type, conn.ID)
	}
}

func (h *Handler) resolveUser(ctx context.Context, c *gin.Context) int64 {
	token := c.GetHeader("Authorization")
	if token == "" {
		if q := c.Query("token"); q != "" {
			token = "Bearer " + q
		}
	}
	parts := strings.SplitN(token, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return 0
	}
	userID, err := h.auth.ValidateToken(ctx, parts[1])
	if err != nil {
		return 0
	}
	return userID
}

func (h *Handler) publishLifecycle(ctx context.Context, conn *Connection, event, reason string) {
	if h.events == nil {
		return
	}
	headers := map[string]string{}
	if conn.Info.RequestID != "" {
		headers["x-request-id"] = conn.Info.RequestID
	}
	if conn.Info.TraceID != "" {
		headers["trace_id"] = conn.Info.TraceID
	}
	err := h.events.Publish(ctx, "ws.lifecycle", lifecycleEvent{
		EventType: "ws_events",
		EventName: event,
		Payload: map[string]any{
			"ws": map[string]any{
				"event":       event,
				"conn_id":     conn.ID,
				"duration_ms": time.Since(conn.Info.ConnectedAt).Milliseconds(),
				"reason":      reason,
			},
			"identity": map[string]any{
				"user_id":   conn.UserID,
				"device_id": conn.Info.DeviceID,
				"ip":        conn.Info.IP,
			},
		},
	}, headers)
	if err != nil {
		log.Printf("ws: lifecycle publish: %v", err)
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
