package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/valvectl/internal/auth"
	"github.com/nerrad567/valvectl/internal/history"
	"github.com/nerrad567/valvectl/internal/infrastructure/config"
	"github.com/nerrad567/valvectl/internal/infrastructure/logging"
	"github.com/nerrad567/valvectl/internal/relay"
)

// WebSocket constants.
const (
	WSTypePing  = "ping"
	WSTypePong  = "pong"
	WSTypeEvent = "event"
	WSTypeEnd   = "end"
	WSTypeError = "error"

	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 256

	// replayTimeout bounds the history read made when a client connects.
	replayTimeout = 5 * time.Second
)

// WSMessage represents a message sent to/from a WebSocket client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSEndPayload is sent once an operation's log is complete.
type WSEndPayload struct {
	OperationID string `json:"operation_id"`
	LastSeq     int    `json:"last_seq"`
}

// Hub manages WebSocket connections streaming operation logs.
//
// Hub implements history.Observer: every recorded event is delivered to the
// clients following that operation.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
}

// WSClient is one connection following one operation.
//
// While replaying, live records are parked in pending; they are flushed in
// sequence order once the replay finishes, skipping anything already sent.
type WSClient struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	operationID string
	subject     string

	mu        sync.Mutex
	replaying bool
	pending   []history.EventRecord
	lastSeq   int
	ended     bool
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a new WebSocket hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run starts the hub's main loop. It blocks until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected",
		"operation_id", client.operationID,
		"clients", h.ClientCount(),
	)
}

// Unregister removes a client from the hub.
// Only the goroutine that successfully removes the client from the map
// closes the send channel, preventing double-close panics during shutdown.
// Buffered messages are still written before the close frame.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if existed {
		close(client.send)
		h.logger.Debug("websocket client disconnected", "clients", h.ClientCount())
	}
}

// Observe delivers a recorded event to every client following its operation.
// Lock ordering: the hub lock is released before per-client locks are taken.
func (h *Hub) Observe(rec history.EventRecord) {
	h.mu.RLock()
	var targets []*WSClient
	for client := range h.clients {
		if client.operationID == rec.OperationID {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range targets {
		client.deliver(rec)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll disconnects all clients and closes their send channels
// so writePump goroutines can exit cleanly.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}

// handleOperationStream upgrades to a WebSocket that replays an operation's
// recorded events and then follows it live until cleanup.
// Authentication is via ticket query parameter (obtained from POST /auth/ws-ticket).
func (s *Server) handleOperationStream(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		writeUnauthorized(w, "ticket query parameter is required")
		return
	}
	entry, ok := s.tickets.consume(ticket)
	if !ok {
		writeUnauthorized(w, "invalid or expired ticket")
		return
	}
	if !auth.HasPermission(entry.role, auth.PermHistoryRead) {
		writeForbidden(w, "insufficient permissions")
		return
	}

	id := chi.URLParam(r, "id")
	if !s.operationKnown(r.Context(), id) {
		writeNotFound(w, "operation not found")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:         s.hub,
		conn:        conn,
		send:        make(chan []byte, wsSendBufferSize),
		operationID: id,
		subject:     entry.subject,
		replaying:   true,
	}

	// Register before reading history so no live event falls in between.
	s.hub.Register(client)

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)

	s.replay(client)
}

// operationKnown reports whether id is recorded or currently running.
func (s *Server) operationKnown(ctx context.Context, id string) bool {
	if active, ok := s.manager.Active(); ok && active == id {
		return true
	}
	if s.repo == nil {
		return false
	}
	_, err := s.repo.GetOperation(ctx, id)
	if err != nil && !errors.Is(err, history.ErrOperationNotFound) {
		s.logger.Warn("operation lookup failed", "operation_id", id, "error", err)
	}
	return err == nil
}

// replay sends the recorded events, flushes whatever arrived live in the
// meantime, and ends the stream if the operation is no longer running.
func (s *Server) replay(client *WSClient) {
	if s.repo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), replayTimeout)
		records, err := s.repo.ListEvents(ctx, client.operationID, 0)
		cancel()
		if err != nil {
			s.logger.Warn("operation log replay failed", "operation_id", client.operationID, "error", err)
		}
		for _, rec := range records {
			client.sendRecord(rec)
		}
	}

	client.finishReplay()

	// Every event of a finished operation has been recorded or observed by now.
	if active, ok := s.manager.Active(); !ok || active != client.operationID {
		client.end()
	}
}

// deliver sends a live record, or parks it while the replay is running.
func (c *WSClient) deliver(rec history.EventRecord) {
	c.mu.Lock()
	if c.replaying {
		c.pending = append(c.pending, rec)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.sendRecord(rec)
}

// sendRecord writes one record unless it was already sent. The cleanup
// event closes the stream.
func (c *WSClient) sendRecord(rec history.EventRecord) {
	c.mu.Lock()
	if c.ended || rec.Seq <= c.lastSeq {
		c.mu.Unlock()
		return
	}
	c.lastSeq = rec.Seq
	c.mu.Unlock()

	c.sendMessage(WSMessage{
		Type:      WSTypeEvent,
		EventType: string(rec.Kind),
		Timestamp: rec.Time.UTC().Format(time.RFC3339Nano),
		Payload:   rec,
	})

	if rec.Kind == relay.EventCleanup {
		c.end()
	}
}

// finishReplay flushes parked records in sequence order and switches the
// client to live delivery.
func (c *WSClient) finishReplay() {
	for {
		c.mu.Lock()
		pending := c.pending
		c.pending = nil
		if len(pending) == 0 {
			c.replaying = false
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		sort.Slice(pending, func(i, j int) bool { return pending[i].Seq < pending[j].Seq })
		for _, rec := range pending {
			c.sendRecord(rec)
		}
	}
}

// end sends the end marker once and unregisters the client, which lets the
// write pump drain its buffer and close the connection.
func (c *WSClient) end() {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return
	}
	c.ended = true
	last := c.lastSeq
	c.mu.Unlock()

	c.sendMessage(WSMessage{
		Type:      WSTypeEnd,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   WSEndPayload{OperationID: c.operationID, LastSeq: last},
	})
	c.hub.Unregister(c)
}

// readPump reads messages from the WebSocket connection.
func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		// Any client message resets the read deadline (keeps connection alive
		// even if browser doesn't respond to protocol-level pings).
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	pongWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				// Hub closed the channel
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes an incoming WebSocket message.
// The stream is server-driven; clients may only ping.
func (c *WSClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypePing:
		c.sendMessage(WSMessage{Type: WSTypePong, ID: msg.ID, Timestamp: time.Now().UTC().Format(time.RFC3339)})
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// sendMessage marshals msg and queues it for the write pump.
func (c *WSClient) sendMessage(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.hub.logger.Error("failed to marshal websocket message", "error", err)
		return
	}
	c.trySend(data)
}

// trySend attempts to send data to the client's send channel.
// It silently handles closed channels (client disconnected during delivery)
// and full buffers (slow client).
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
	default:
		c.hub.logger.Warn("websocket client buffer full, dropping message", "operation_id", c.operationID)
	}
}

// sendError sends an error message to the client.
func (c *WSClient) sendError(id, message string) {
	c.sendMessage(WSMessage{
		Type:      WSTypeError,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   map[string]string{"message": message},
	})
}
