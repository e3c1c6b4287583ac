package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"live-session-service/internal/notification"
	"live-session-service/internal/response"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
	sendBufferSize = 64
	maxWatched     = 50
)

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

type wsClient struct {
	conn   *websocket.Conn
	send   chan []byte
	done   chan struct{}
	userID uuid.UUID
}

// WSHandler streams session state changes for the authenticated user.
// Designers' presence can be watched with ?watch=<designerId>,<designerId>.
type WSHandler struct {
	bus    *notification.Bus
	logger *zap.Logger
}

func NewWSHandler(bus *notification.Bus, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		bus:    bus,
		logger: logger,
	}
}

// HandleWebSocket godoc
// @Summary Stream session state changes and watched presence
// @Tags websocket
// @Param token query string false "JWT when no Authorization header can be sent"
// @Param watch query string false "Comma separated designer IDs"
// @Success 101
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /ws [get]
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	watched, ok := parseWatchList(c)
	if !ok {
		return
	}

	client := &wsClient{
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		userID: userID,
	}

	// Subscribe before the upgrade so nothing published during the handshake is missed.
	subs := []*notification.Subscription{h.bus.OnSessionStateChange(userID, h.forward(client))}
	if len(watched) > 0 {
		channels := make([]string, 0, len(watched))
		for _, designerID := range watched {
			channels = append(channels, notification.PresenceChannel(designerID))
		}
		subs = append(subs, h.bus.Subscribe(h.forward(client), channels...))
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		for _, sub := range subs {
			sub.Close()
		}
		close(client.done)
		h.logger.Error("Failed to upgrade connection", zap.Error(err))
		return
	}
	client.conn = conn

	h.logger.Info("WebSocket connected",
		zap.String("user_id", userID.String()),
		zap.Int("watched", len(watched)),
	)

	go h.writePump(client)
	h.readPump(client, subs)
}

// forward never blocks the bus; a client that cannot keep up loses events
// and can recover from the REST endpoints.
func (h *WSHandler) forward(client *wsClient) notification.Callback {
	return func(e notification.Event) {
		payload, err := json.Marshal(notification.NewEnvelope(e))
		if err != nil {
			h.logger.Error("Failed to encode event", zap.String("event", e.Event), zap.Error(err))
			return
		}
		select {
		case <-client.done:
		case client.send <- payload:
		default:
			h.logger.Warn("WebSocket send buffer full, dropping event",
				zap.String("user_id", client.userID.String()),
				zap.String("event", e.Event),
			)
		}
	}
}

func (h *WSHandler) readPump(client *wsClient, subs []*notification.Subscription) {
	defer func() {
		for _, sub := range subs {
			sub.Close()
		}
		close(client.done)
		client.conn.Close()
		h.logger.Info("WebSocket disconnected", zap.String("user_id", client.userID.String()))
	}()

	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("WebSocket error", zap.Error(err))
			}
			return
		}
	}
}

func (h *WSHandler) writePump(client *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case <-client.done:
			return
		case message := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func parseWatchList(c *gin.Context) ([]uuid.UUID, bool) {
	raw := c.Query("watch")
	if raw == "" {
		return nil, true
	}

	parts := strings.Split(raw, ",")
	if len(parts) > maxWatched {
		response.SendError(c, http.StatusBadRequest, response.ErrCodeValidation, "Too many designers in watch")
		return nil, false
	}
	ids := make([]uuid.UUID, 0, len(parts))
	for _, part := range parts {
		id, err := uuid.Parse(strings.TrimSpace(part))
		if err != nil {
			response.SendError(c, http.StatusBadRequest, response.ErrCodeValidation, "Invalid designer id in watch")
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}
