// Package progress fans ingestion events out to websocket subscribers
// and keeps the latest per-source report for the API to serve.
package progress

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"pricewatch/internal/ingest"
)

type Hub struct {
	mu        sync.Mutex
	wsClients map[*websocket.Conn]struct{}
	lastEvent map[string]ingest.Event // source name -> latest event
}

type Stats struct {
	WSClients int `json:"ws_clients"`
}

func NewHub() *Hub {
	return &Hub{
		wsClients: make(map[*websocket.Conn]struct{}),
		lastEvent: make(map[string]ingest.Event),
	}
}

// Notify implements ingest.Notifier. Slow or dead subscribers are
// dropped rather than allowed to stall the ingestion loop.
func (h *Hub) Notify(ev ingest.Event) {
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	b = append(b, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastEvent[ev.Source] = ev

	for ws := range h.wsClients {
		if err := ws.WriteMessage(websocket.TextMessage, b); err != nil {
			_ = ws.Close()
			delete(h.wsClients, ws)
		}
	}
}

func (h *Hub) AddWS(ws *websocket.Conn) {
	h.mu.Lock()
	h.wsClients[ws] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) RemoveWS(ws *websocket.Conn) {
	h.mu.Lock()
	delete(h.wsClients, ws)
	h.mu.Unlock()
	_ = ws.Close()
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{WSClients: len(h.wsClients)}
}

// LastEvents returns the most recent event seen per source.
func (h *Hub) LastEvents() map[string]ingest.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make(map[string]ingest.Event, len(h.lastEvent))
	for k, v := range h.lastEvent {
		out[k] = v
	}
	return out
}
