package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/NREL/torc-sub002/internal/logger"
)

// BroadcastEvent is published after every committed mutation. The database
// is the source of truth; subscribers treat these as hints.
type BroadcastEvent struct {
	WorkflowID int64       `json:"workflow_id"`
	Category   string      `json:"category"` // entity kind: jobs, workflows, actions, ...
	Op         string      `json:"op"`       // create, update, delete, claim, ...
	Data       interface{} `json:"data,omitempty"`
}

// FirehoseChannel receives every event regardless of workflow.
const FirehoseChannel = "all"

func WorkflowChannel(workflowID int64) string {
	return "workflow:" + strconv.FormatInt(workflowID, 10)
}

type Client struct {
	ID       uuid.UUID
	Channels map[string]bool
	Outbound chan BroadcastEvent
	done     chan struct{}
}

type Hub struct {
	mu            sync.RWMutex
	log           *logger.Logger
	subscriptions map[string]map[*Client]bool
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:           log.With("component", "SSEHub"),
		subscriptions: make(map[string]map[*Client]bool),
	}
}

func (hub *Hub) NewClient() *Client {
	return &Client{
		ID:       uuid.New(),
		Channels: make(map[string]bool),
		Outbound: make(chan BroadcastEvent, 64),
		done:     make(chan struct{}),
	}
}

func (hub *Hub) Subscribe(client *Client, channel string) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	if channel == "" {
		return
	}
	client.Channels[channel] = true
	clients, exists := hub.subscriptions[channel]
	if !exists {
		clients = make(map[*Client]bool)
		hub.subscriptions[channel] = clients
	}
	clients[client] = true
	hub.log.Debug("SSE client subscribed", "clientID", client.ID, "channel", channel)
}

func (hub *Hub) RemoveClient(client *Client) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	for ch := range client.Channels {
		if subMap, ok := hub.subscriptions[ch]; ok {
			delete(subMap, client)
			if len(subMap) == 0 {
				delete(hub.subscriptions, ch)
			}
		}
	}
	client.Channels = make(map[string]bool)
}

// Publish fans the event out to the workflow channel and the firehose.
// Sends never block: a subscriber whose buffer is full loses the event.
func (hub *Hub) Publish(ev BroadcastEvent) {
	hub.mu.RLock()
	defer hub.mu.RUnlock()
	seen := make(map[*Client]bool)
	for _, channel := range []string{WorkflowChannel(ev.WorkflowID), FirehoseChannel} {
		for c := range hub.subscriptions[channel] {
			if seen[c] {
				continue
			}
			seen[c] = true
			select {
			case c.Outbound <- ev:
			default:
				hub.log.Warn("Dropping SSE event; outbound buffer full", "clientID", c.ID)
			}
		}
	}
}

func (hub *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request, client *Client) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	ctx := r.Context()

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			hub.log.Debug("SSE client context done", "clientID", client.ID, "err", ctx.Err())
			return
		case <-client.done:
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev := <-client.Outbound:
			payload, err := json.Marshal(ev)
			if err != nil {
				hub.log.Warn("Failed to marshal SSE event", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: message\ndata: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

func (hub *Hub) CloseClient(client *Client) {
	hub.RemoveClient(client)
	close(client.done)
}
