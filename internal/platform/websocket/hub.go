// Package websocket pushes consult draft changes to connected clients.
// Clients subscribe to per-session topics and receive every event published
// on them.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const (
	EventConsultOpened    = "consult.opened"
	EventConsultUpdated   = "consult.updated"
	EventConsultCleared   = "consult.cleared"
	EventConsultClosed    = "consult.closed"
	EventConsultDiscarded = "consult.discarded"

	topicPrefix = "Consult/"
	sendBuffer  = 256
	writeWait   = 10 * time.Second
)

// ConsultTopic is the topic carrying events for one patient encounter.
func ConsultTopic(patientID, encounterID string) string {
	return topicPrefix + patientID + "/" + encounterID
}

// Event is a notification sent to subscribed clients.
type Event struct {
	Type        string          `json:"type"`
	Topic       string          `json:"topic"`
	PatientID   string          `json:"patientId"`
	EncounterID string          `json:"encounterId"`
	Timestamp   time.Time       `json:"timestamp"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// ClientMessage is an inbound subscription request.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// EventPublisher delivers events to subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// Client is a single connection and its subscriptions.
type Client struct {
	ID     string
	Topics []string
	Send   chan []byte
}

// NewClient returns a client with no subscriptions.
func NewClient(topics ...string) *Client {
	return &Client{
		ID:     uuid.NewString(),
		Topics: append([]string(nil), topics...),
		Send:   make(chan []byte, sendBuffer),
	}
}

// Hub tracks clients and their topic subscriptions.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // topic -> subscribers
	all     map[*Client]struct{}
	dropped atomic.Int64
	logger  zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		logger:  logger.With().Str("component", "ws_hub").Logger(),
	}
}

// Register adds a client and subscribes it to its initial topics.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	h.subscribeLocked(client, client.Topics)
}

// Unregister drops a client and closes its Send channel. Unknown clients
// are ignored, so a second call is safe.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	h.unsubscribeLocked(client, client.Topics)
	delete(h.all, client)
	close(client.Send)
}

// Subscribe adds topics to a registered client.
func (h *Hub) Subscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	fresh := make([]string, 0, len(topics))
	for _, t := range topics {
		if t == "" || h.has(client, t) {
			continue
		}
		fresh = append(fresh, t)
	}
	h.subscribeLocked(client, fresh)
	client.Topics = append(client.Topics, fresh...)
}

// Unsubscribe removes topics from a registered client.
func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.unsubscribeLocked(client, topics)

	drop := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		drop[t] = struct{}{}
	}
	remaining := make([]string, 0, len(client.Topics))
	for _, t := range client.Topics {
		if _, ok := drop[t]; !ok {
			remaining = append(remaining, t)
		}
	}
	client.Topics = remaining
}

func (h *Hub) has(client *Client, topic string) bool {
	_, ok := h.clients[topic][client]
	return ok
}

func (h *Hub) subscribeLocked(client *Client, topics []string) {
	for _, topic := range topics {
		if h.clients[topic] == nil {
			h.clients[topic] = make(map[*Client]struct{})
		}
		h.clients[topic][client] = struct{}{}
	}
}

func (h *Hub) unsubscribeLocked(client *Client, topics []string) {
	for _, topic := range topics {
		if subscribers, ok := h.clients[topic]; ok {
			delete(subscribers, client)
			if len(subscribers) == 0 {
				delete(h.clients, topic)
			}
		}
	}
}

// ProcessMessage applies a subscribe or unsubscribe request. Topics outside
// the consult namespace are ignored.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) {
	topics := make([]string, 0, len(msg.Topics))
	for _, t := range msg.Topics {
		if strings.HasPrefix(t, topicPrefix) {
			topics = append(topics, t)
		}
	}

	switch msg.Action {
	case "subscribe":
		h.Subscribe(client, topics)
	case "unsubscribe":
		h.Unsubscribe(client, topics)
	default:
		h.logger.Debug().Str("client", client.ID).Str("action", msg.Action).Msg("unknown action")
	}
}

// Broadcast sends an event to every subscriber of topic. Clients with a full
// buffer miss the event rather than block the publisher.
func (h *Hub) Broadcast(topic string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("topic", topic).Msg("marshal event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[topic] {
		select {
		case client.Send <- data:
		default:
			h.dropped.Add(1)
			h.logger.Warn().Str("client", client.ID).Str("topic", topic).Msg("send buffer full, event dropped")
		}
	}
}

// Publish broadcasts the event on its own topic.
func (h *Hub) Publish(_ context.Context, event Event) error {
	if event.Topic == "" {
		event.Topic = ConsultTopic(event.PatientID, event.EncounterID)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	h.Broadcast(event.Topic, event)
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// TopicCount returns the number of subscribers on topic.
func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

// Dropped returns how many events were skipped because a client lagged.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// ---------------------------------------------------------------------------
// Handler
// ---------------------------------------------------------------------------

// Handler upgrades HTTP requests and pumps events to the connection.
type Handler struct {
	hub      *Hub
	upgrader gorillawebsocket.Upgrader
}

// NewHandler returns a handler bound to hub. An empty origins list accepts
// any origin.
func NewHandler(hub *Hub, origins []string) *Handler {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o != "*" {
			allowed[o] = struct{}{}
		}
	}
	return &Handler{
		hub: hub,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 {
					return true
				}
				_, ok := allowed[r.Header.Get("Origin")]
				return ok
			},
		},
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", h.HandleConnect)
}

// HandleConnect upgrades the connection. Initial subscriptions may be passed
// as patientId and encounterId query parameters.
func (h *Handler) HandleConnect(c echo.Context) error {
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	var topics []string
	if p, e := c.QueryParam("patientId"), c.QueryParam("encounterId"); p != "" && e != "" {
		topics = append(topics, ConsultTopic(p, e))
	}
	client := NewClient(topics...)
	h.hub.Register(client)
	h.hub.logger.Debug().Str("client", client.ID).Strs("topics", topics).Msg("client connected")

	go h.writePump(client, ws)
	go h.readPump(client, ws)
	return nil
}

func (h *Handler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		h.hub.Unregister(client)
		ws.Close()
	}()

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		h.hub.ProcessMessage(client, msg)
	}
}

func (h *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	defer ws.Close()

	for message := range client.Send {
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			return
		}
	}
	_ = ws.WriteMessage(gorillawebsocket.CloseMessage, []byte{})
}
