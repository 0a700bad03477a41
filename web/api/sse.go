package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// SSEEvent represents a server-sent event
type SSEEvent struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// SSEHub manages SSE connections
type SSEHub struct {
	clients map[chan SSEEvent]bool
	closed  bool
	mu      sync.Mutex
}

// NewSSEHub creates a new SSE hub
func NewSSEHub() *SSEHub {
	return &SSEHub{clients: make(map[chan SSEEvent]bool)}
}

// Subscribe registers a client. The channel is closed when the client is
// unsubscribed, falls too far behind, or the hub closes.
func (h *SSEHub) Subscribe() chan SSEEvent {
	client := make(chan SSEEvent, 16)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(client)
		return client
	}
	h.clients[client] = true
	return client
}

// Unsubscribe removes a client
func (h *SSEHub) Unsubscribe(client chan SSEEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[client] {
		delete(h.clients, client)
		close(client)
	}
}

// Broadcast sends an event to all clients without blocking. Slow clients
// are dropped.
func (h *SSEHub) Broadcast(event SSEEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client <- event:
		default:
			delete(h.clients, client)
			close(client)
		}
	}
}

// Clients returns the number of connected clients
func (h *SSEHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones
func (h *SSEHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for client := range h.clients {
		delete(h.clients, client)
		close(client)
	}
}

func (s *Server) sseHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := s.sseHub.Subscribe()
	defer s.sseHub.Unsubscribe(client)

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-client:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				s.log.WithError(err).Warn("Encode SSE event")
				continue
			}
			fmt.Fprintf(w, "event: %s\n", event.Type)
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}
