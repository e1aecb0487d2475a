package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"

	"github.com/silent-echo/signaling/internal/core"
	"github.com/silent-echo/signaling/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware
		return true
	},
}

// ErrNotConnected reports a delivery target with no open connection.
var ErrNotConnected = errors.New("participant not connected")

// Client is one live WebSocket connection bound to a participant identity.
type Client struct {
	ID    string
	Alias string
	conn  *websocket.Conn
	send  chan []byte
}

// Hub tracks live connections by participant id and implements the
// transport the core delivers through. Each client gets a bounded send
// channel; a full buffer drops the payload, which the core treats as a
// best-effort transport failure.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	log     *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		log:     log,
	}
}

// Send queues an event for one participant. It never blocks.
func (h *Hub) Send(participantID, event string, payload any) error {
	h.mu.RLock()
	client, ok := h.clients[participantID]
	h.mu.RUnlock()
	if !ok {
		return ErrNotConnected
	}

	env := models.Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", event, err)
		}
		env.Data = data
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s envelope: %w", event, err)
	}

	select {
	case client.send <- frame:
		return nil
	default:
		return fmt.Errorf("send buffer full for participant %s", participantID)
	}
}

func (h *Hub) add(client *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; ok {
		return fmt.Errorf("participant %s already connected", client.ID)
	}
	h.clients[client.ID] = client
	return nil
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.clients[client.ID]; ok && current == client {
		delete(h.clients, client.ID)
	}
}

// HandleConnect upgrades an authenticated request to a WebSocket connection
// and starts the read and write pumps. A second connection for the same
// participant id is refused: identity is stable per connection attempt.
func HandleConnect(co *core.Core, hub *Hub, log *slog.Logger) gin.HandlerFunc {
	validate := validator.New()
	return func(c *gin.Context) {
		participantID := c.GetString("participant_id")
		alias := c.GetString("alias")
		if participantID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Guest token required"})
			return
		}

		hub.mu.RLock()
		_, connected := hub.clients[participantID]
		hub.mu.RUnlock()
		if connected {
			c.JSON(http.StatusConflict, gin.H{"error": "Participant already connected"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn("websocket upgrade failed", "error", err)
			return
		}

		client := &Client{
			ID:    participantID,
			Alias: alias,
			conn:  conn,
			send:  make(chan []byte, sendBufferSize),
		}
		if err := hub.add(client); err != nil {
			conn.Close()
			return
		}
		log.Info("participant connected", "participant_id", participantID)

		go client.writePump()
		go client.readPump(co, hub, validate, log)
	}
}

// readPump decodes typed events off the socket and calls into the core.
// It is the only goroutine reading this connection, which is what keeps
// per-sender publish order intact. When the read loop exits the connection
// is treated as a presence loss.
func (c *Client) readPump(co *core.Core, hub *Hub, validate *validator.Validate, log *slog.Logger) {
	defer func() {
		hub.remove(c)
		c.conn.Close()
		co.Disconnect(c.ID)
		log.Info("participant disconnected", "participant_id", c.ID)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn("websocket read failed", "participant_id", c.ID, "error", err)
			}
			break
		}
		if err := c.dispatch(co, validate, frame); err != nil {
			c.sendError(err)
		}
	}
}

func (c *Client) dispatch(co *core.Core, validate *validator.Validate, frame []byte) error {
	var env models.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return &core.ValidationError{Field: "envelope", Reason: "malformed JSON"}
	}
	if env.Event == "" {
		return &core.ValidationError{Field: "event", Reason: "must not be empty"}
	}

	switch env.Event {
	case models.EventJoinQueue:
		var p models.JoinQueuePayload
		if err := decode(validate, env.Data, &p); err != nil {
			return err
		}
		alias := p.Alias
		if alias == "" {
			alias = c.Alias
		}
		return co.JoinQueue(core.Participant{ID: c.ID, Alias: alias})

	case models.EventCancelQueue:
		co.CancelQueue(c.ID)
		return nil

	case models.EventSendMessage:
		var p models.SendMessagePayload
		if err := decode(validate, env.Data, &p); err != nil {
			return err
		}
		return co.SendMessage(p.SessionID, c.ID, p.Ciphertext)

	case models.EventLeaveSession:
		var p models.SessionRefPayload
		if err := decode(validate, env.Data, &p); err != nil {
			return err
		}
		return co.LeaveSession(p.SessionID, c.ID)

	case models.EventCallOffer:
		var p models.CallSignalPayload
		if err := decode(validate, env.Data, &p); err != nil {
			return err
		}
		return co.CallOffer(p.SessionID, c.ID, p.Payload)

	case models.EventCallAnswer:
		var p models.CallSignalPayload
		if err := decode(validate, env.Data, &p); err != nil {
			return err
		}
		return co.CallAnswer(p.SessionID, c.ID, p.Payload)

	case models.EventCallDecline:
		var p models.SessionRefPayload
		if err := decode(validate, env.Data, &p); err != nil {
			return err
		}
		return co.CallDecline(p.SessionID, c.ID)

	case models.EventCallEnded:
		var p models.SessionRefPayload
		if err := decode(validate, env.Data, &p); err != nil {
			return err
		}
		return co.CallEnd(p.SessionID, c.ID)
	}
	return &core.ValidationError{Field: "event", Reason: "unknown event " + env.Event}
}

func decode(validate *validator.Validate, data json.RawMessage, out any) error {
	if len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return &core.ValidationError{Field: "data", Reason: "malformed JSON"}
		}
	}
	if err := validate.Struct(out); err != nil {
		return &core.ValidationError{Field: "data", Reason: err.Error()}
	}
	return nil
}

func (c *Client) sendError(err error) {
	kind := core.ErrKind(err)
	if kind == "" {
		kind = "internal"
	}
	payload, merr := json.Marshal(models.ErrorPayload{Kind: kind, Message: err.Error()})
	if merr != nil {
		return
	}
	frame, merr := json.Marshal(models.Envelope{Event: models.EventError, Data: payload})
	if merr != nil {
		return
	}
	select {
	case c.send <- frame:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
