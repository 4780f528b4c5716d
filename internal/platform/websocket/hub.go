// Package websocket pushes refresh notifications to connected clients. Clients
// subscribe to topics such as "assessment:<id>" and receive an event whenever
// that record changes, which is their cue to refetch it.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const (
	EventSectionSaved = "assessment.section_saved"
	EventQAUpdated    = "assessment.qa_updated"
	EventCompleted    = "assessment.completed"
	EventVisitStatus  = "schedule.status_changed"

	// TopicQAQueue receives every QA-relevant change in an agency.
	TopicQAQueue = "qa:queue"

	maxTopicsPerClient = 64
	sendBuffer         = 256
	writeWait          = 10 * time.Second
	pongWait           = 60 * time.Second
	pingPeriod         = (pongWait * 9) / 10
	maxMessageSize     = 4096
)

// Event is the notification written to subscribers. It never carries
// clinical content, only enough to know what to refetch.
type Event struct {
	Type       string          `json:"type"`
	Topic      string          `json:"topic"`
	AgencyID   string          `json:"-"`
	ResourceID string          `json:"resourceId,omitempty"`
	VersionID  int             `json:"versionId,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// ClientMessage is an inbound subscribe/unsubscribe request.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// EventPublisher is what domain services depend on.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// AssessmentTopic and ScheduleTopic name the per-record topics.
func AssessmentTopic(id uuid.UUID) string { return "assessment:" + id.String() }
func ScheduleTopic(id uuid.UUID) string   { return "schedule:" + id.String() }
func PatientTopic(id uuid.UUID) string    { return "patient:" + id.String() }

// ValidTopic accepts "qa:queue" and "<kind>:<uuid>" for the known kinds.
func ValidTopic(topic string) bool {
	if topic == TopicQAQueue {
		return true
	}
	kind, id, ok := strings.Cut(topic, ":")
	if !ok {
		return false
	}
	switch kind {
	case "assessment", "schedule", "patient":
		_, err := uuid.Parse(id)
		return err == nil
	}
	return false
}

type Client struct {
	ID       string
	AgencyID string
	Send     chan []byte

	topics map[string]struct{}
}

func NewClient(agencyID string) *Client {
	return &Client{
		ID:       uuid.NewString(),
		AgencyID: agencyID,
		Send:     make(chan []byte, sendBuffer),
		topics:   make(map[string]struct{}),
	}
}

// Hub tracks clients by agency-scoped topic. Two agencies subscribing to the
// same topic string never see each other's events.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
	all     map[*Client]struct{}
	logger  zerolog.Logger
	dropped int
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		logger:  logger,
	}
}

func scopedKey(agencyID, topic string) string {
	return agencyID + "|" + topic
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.all[client] = struct{}{}
}

// Unregister drops every subscription of client and closes its Send channel.
// It is safe to call more than once.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	for topic := range client.topics {
		h.removeLocked(client, topic)
	}
	delete(h.all, client)
	close(client.Send)
}

// Subscribe adds topics to a registered client. Invalid topics are skipped
// and returned.
func (h *Hub) Subscribe(client *Client, topics []string) (rejected []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return topics
	}
	for _, topic := range topics {
		if !ValidTopic(topic) || len(client.topics) >= maxTopicsPerClient {
			rejected = append(rejected, topic)
			continue
		}
		key := scopedKey(client.AgencyID, topic)
		if h.clients[key] == nil {
			h.clients[key] = make(map[*Client]struct{})
		}
		h.clients[key][client] = struct{}{}
		client.topics[topic] = struct{}{}
	}
	return rejected
}

func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, topic := range topics {
		h.removeLocked(client, topic)
	}
}

func (h *Hub) removeLocked(client *Client, topic string) {
	key := scopedKey(client.AgencyID, topic)
	if subs, ok := h.clients[key]; ok {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.clients, key)
		}
	}
	delete(client.topics, topic)
}

func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) []string {
	switch msg.Action {
	case "subscribe":
		return h.Subscribe(client, msg.Topics)
	case "unsubscribe":
		h.Unsubscribe(client, msg.Topics)
	}
	return nil
}

// Publish delivers event to the subscribers of its topic within its agency.
// Slow clients whose buffer is full miss the event; they resync on the next
// one or on reconnect.
func (h *Hub) Publish(_ context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients[scopedKey(event.AgencyID, event.Topic)] {
		select {
		case client.Send <- data:
		default:
			h.dropped++
			h.logger.Warn().Str("client_id", client.ID).Str("topic", event.Topic).Msg("websocket buffer full, event dropped")
		}
	}
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) TopicCount(agencyID, topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[scopedKey(agencyID, topic)])
}

func (h *Hub) Dropped() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// Handler upgrades GET /ws and runs the client's read and write pumps.
type Handler struct {
	hub      *Hub
	upgrader gorillawebsocket.Upgrader
	logger   zerolog.Logger
}

// NewHandler builds a Handler that accepts upgrades from allowedOrigins, or
// from any origin when the list contains "*".
func NewHandler(hub *Hub, allowedOrigins []string, logger zerolog.Logger) *Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &Handler{
		hub:    hub,
		logger: logger,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
	}
}

// RegisterRoutes mounts GET /ws behind m. The agency is read from the
// "agency_id" context value that db.AgencyMiddleware sets.
func (wh *Handler) RegisterRoutes(e *echo.Echo, m ...echo.MiddlewareFunc) {
	e.GET("/ws", wh.HandleConnect, m...)
}

// HandleConnect subscribes the new client to the comma-separated ?topics=
// before the first read so no event published right after connect is lost.
func (wh *Handler) HandleConnect(c echo.Context) error {
	agencyID, _ := c.Get("agency_id").(string)
	ws, err := wh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := NewClient(agencyID)
	wh.hub.Register(client)
	if q := c.QueryParam("topics"); q != "" {
		if rejected := wh.hub.Subscribe(client, strings.Split(q, ",")); len(rejected) > 0 {
			wh.logger.Debug().Strs("topics", rejected).Msg("rejected websocket topics")
		}
	}

	go wh.writePump(client, ws)
	go wh.readPump(client, ws)
	return nil
}

func (wh *Handler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		wh.hub.Unregister(client)
		ws.Close()
	}()

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if gorillawebsocket.IsUnexpectedCloseError(err, gorillawebsocket.CloseGoingAway, gorillawebsocket.CloseNormalClosure) {
				wh.logger.Debug().Err(err).Str("client_id", client.ID).Msg("websocket closed")
			}
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		wh.hub.ProcessMessage(client, msg)
	}
}

func (wh *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case msg, ok := <-client.Send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(gorillawebsocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
