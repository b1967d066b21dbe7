package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ma-screener/internal/model"
)

// Event types carried in an Envelope.
const (
	EventProgress      = "progress"
	EventScanStarted   = "scan_started"
	EventScanCompleted = "scan_completed"
)

// Envelope is one websocket message.
type Envelope struct {
	Type string          `json:"type"`
	Seq  int64           `json:"seq"`
	TS   time.Time       `json:"ts"`
	Data json.RawMessage `json:"data"`
}

// ScanStarted is the payload of EventScanStarted.
type ScanStarted struct {
	ScanID   string `json:"scan_id"`
	Strategy string `json:"strategy"`
	Mode     string `json:"mode"`
}

// ScanCompleted is the payload of EventScanCompleted.
type ScanCompleted struct {
	ScanID   string `json:"scan_id"`
	Strategy string `json:"strategy"`
	Matched  int    `json:"matched"`
	Failed   int    `json:"failed"`
	Skipped  int    `json:"skipped"`
	Error    string `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// Hub fans scan events out to websocket clients. Publishing never blocks:
// a client whose queue is full misses the message and can resync from the
// replay buffer with ?since_seq=.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
	seq     int64
	replay  *ReplayBuffer
	now     func() time.Time
	log     *slog.Logger
}

// NewHub creates a hub keeping the last replaySize envelopes.
func NewHub(replaySize int, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		replay:  NewReplayBuffer(replaySize),
		now:     time.Now,
		log:     log,
	}
}

// Publish broadcasts v as an event of the given type.
func (h *Hub) Publish(eventType string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Error("[api] marshal event", "type", eventType, "error", err)
		return
	}

	h.mu.Lock()
	h.seq++
	env, err := json.Marshal(Envelope{Type: eventType, Seq: h.seq, TS: h.now().UTC(), Data: data})
	if err != nil {
		h.mu.Unlock()
		return
	}
	h.replay.Push(h.seq, env)
	for c := range h.clients {
		select {
		case c.send <- env:
		default:
		}
	}
	h.mu.Unlock()
}

// PublishProgress implements the scanner progress callback.
func (h *Hub) PublishProgress(p model.Progress) {
	h.Publish(EventProgress, p)
}

// PublishStarted announces a scan that has begun.
func (h *Hub) PublishStarted(scanID, strategy, mode string) {
	h.Publish(EventScanStarted, ScanStarted{ScanID: scanID, Strategy: strategy, Mode: mode})
}

// PublishScan announces a finished scan.
func (h *Hub) PublishScan(res *model.ScanResult, scanErr error) {
	ev := ScanCompleted{
		ScanID: res.ID, Strategy: res.Strategy,
		Matched: len(res.Records), Failed: len(res.Failures), Skipped: len(res.Skipped),
	}
	if scanErr != nil {
		ev.Error = scanErr.Error()
	}
	h.Publish(EventScanCompleted, ev)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and registers the client. Envelopes newer
// than the since_seq query parameter are replayed first.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("[api] ws upgrade error", "error", err)
		return
	}
	since, _ := strconv.ParseInt(r.URL.Query().Get("since_seq"), 10, 64)

	c := &client{conn: conn, send: make(chan []byte, 256), hub: h}

	// Register under the lock that Publish holds so no envelope falls
	// between the replay and live delivery.
	h.mu.Lock()
	for _, env := range h.replay.Since(since) {
		select {
		case c.send <- env:
		default:
		}
	}
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	h.log.Info("[api] ws client connected", "clients", count)
	go c.writePump()
	go c.readPump()
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}
