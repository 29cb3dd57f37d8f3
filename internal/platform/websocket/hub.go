// Package websocket pushes change events and live search results to
// connected clients. Clients subscribe to topics ("records", "patients")
// and receive every event broadcast to those topics; a client may also run
// one debounced search session over the same connection.
package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hsba/emr/internal/platform/debounce"
)

// Event is a message sent to clients.
type Event struct {
	Type       string          `json:"type"`
	Topic      string          `json:"topic"`
	ResourceID string          `json:"resourceId,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// ClientMessage is an inbound message. Action is "subscribe",
// "unsubscribe" or "search"; the search fields are read only for "search".
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics,omitempty"`
	View   string   `json:"view,omitempty"`
	Query  string   `json:"query,omitempty"`
	Filter string   `json:"filter,omitempty"`
	Page   int      `json:"page,omitempty"`
}

// Client is one connection.
type Client struct {
	ID     string
	Topics []string
	Send   chan []byte
	hub    *Hub

	search *session
}

// NewClient returns a client whose search debounce waits for the hub's
// quiet period.
func (h *Hub) NewClient(id string, buffer int) *Client {
	return &Client{
		ID:     id,
		Send:   make(chan []byte, buffer),
		hub:    h,
		search: &session{debouncer: debounce.New(h.quiet)},
	}
}

// Hub tracks clients and their topic subscriptions.
type Hub struct {
	logger zerolog.Logger
	quiet  time.Duration

	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // topic -> subscribers
	all     map[*Client]struct{}

	searchMu  sync.RWMutex
	searchers map[string]SearchFunc
}

// NewHub returns a hub whose search sessions debounce query changes by
// quiet.
func NewHub(quiet time.Duration, logger zerolog.Logger) *Hub {
	return &Hub{
		logger:    logger,
		quiet:     quiet,
		clients:   make(map[string]map[*Client]struct{}),
		all:       make(map[*Client]struct{}),
		searchers: make(map[string]SearchFunc),
	}
}

// Register adds a client and subscribes it to its initial topics.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client.search == nil {
		client.search = &session{debouncer: debounce.New(h.quiet)}
	}
	h.all[client] = struct{}{}
	for _, topic := range client.Topics {
		h.addLocked(topic, client)
	}
}

// Unregister removes a client, stops its pending search and closes Send.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	client.search.debouncer.Stop()
	for _, topic := range client.Topics {
		h.removeLocked(topic, client)
	}
	delete(h.all, client)
	close(client.Send)
}

func (h *Hub) addLocked(topic string, client *Client) {
	if h.clients[topic] == nil {
		h.clients[topic] = make(map[*Client]struct{})
	}
	h.clients[topic][client] = struct{}{}
}

func (h *Hub) removeLocked(topic string, client *Client) {
	if subscribers, ok := h.clients[topic]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.clients, topic)
		}
	}
}

// Subscribe adds topics to a registered client. Topics it already has are
// ignored.
func (h *Hub) Subscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	have := make(map[string]bool, len(client.Topics))
	for _, t := range client.Topics {
		have[t] = true
	}
	for _, topic := range topics {
		if topic == "" || have[topic] {
			continue
		}
		have[topic] = true
		h.addLocked(topic, client)
		client.Topics = append(client.Topics, topic)
	}
}

// Unsubscribe removes topics from a registered client.
func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	drop := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		drop[t] = struct{}{}
		h.removeLocked(t, client)
	}

	remaining := make([]string, 0, len(client.Topics))
	for _, t := range client.Topics {
		if _, rm := drop[t]; !rm {
			remaining = append(remaining, t)
		}
	}
	client.Topics = remaining
}

// ProcessMessage dispatches an inbound message.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		h.Subscribe(client, msg.Topics)
	case "unsubscribe":
		h.Unsubscribe(client, msg.Topics)
	case "search":
		h.Search(client, msg)
	default:
		h.sendError(client, "unknown action "+msg.Action)
	}
}

func marshal(event Event) ([]byte, bool) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, false
	}
	return data, true
}

// Broadcast sends event to every subscriber of topic. Clients with a full
// buffer miss the event.
func (h *Hub) Broadcast(topic string, event Event) {
	data, ok := marshal(event)
	if !ok {
		h.logger.Error().Str("topic", topic).Str("type", event.Type).Msg("websocket: event not serializable")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[topic] {
		select {
		case client.Send <- data:
		default:
			h.logger.Warn().Str("client_id", client.ID).Str("topic", topic).Msg("websocket: client buffer full, event dropped")
		}
	}
}

// deliver sends data to one client if it is still registered.
func (h *Hub) deliver(client *Client, event Event) {
	data, ok := marshal(event)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	select {
	case client.Send <- data:
	default:
		h.logger.Warn().Str("client_id", client.ID).Str("type", event.Type).Msg("websocket: client buffer full, message dropped")
	}
}

func (h *Hub) sendError(client *Client, msg string) {
	data, _ := json.Marshal(map[string]string{"error": msg})
	h.deliver(client, Event{Type: "error", Data: data})
}

// Notify broadcasts a domain change. payload is sent as the event data and
// its "id" field, when present, becomes the resource id.
func (h *Hub) Notify(topic, kind string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error().Err(err).Str("topic", topic).Str("type", kind).Msg("websocket: payload not serializable")
		return
	}
	var ref struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(data, &ref)
	h.Broadcast(topic, Event{Type: kind, Topic: topic, ResourceID: ref.ID, Timestamp: time.Now().UTC(), Data: data})
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}
