package telemetry

import (
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/rjboer/radarcore/internal/logging"
)

// Config represents the runtime configuration exposed by the telemetry hub.
type Config struct {
	HistoryLimit int `json:"historyLimit"`
	// CaptureLimit caps the samples served by /api/capture/latest.
	CaptureLimit int `json:"captureLimit"`
}

const (
	minHistoryLimit = 1
	maxHistoryLimit = 10_000
	minCaptureLimit = 16
	maxCaptureLimit = 125_000
)

func defaultConfig() Config {
	return Config{
		HistoryLimit: 500,
		CaptureLimit: 4096,
	}
}

func validateConfig(cfg Config, base Config) (Config, error) {
	if base.HistoryLimit == 0 || base.CaptureLimit == 0 {
		base = defaultConfig()
	}
	if cfg.HistoryLimit == 0 {
		cfg.HistoryLimit = base.HistoryLimit
	}
	if cfg.CaptureLimit == 0 {
		cfg.CaptureLimit = base.CaptureLimit
	}
	if cfg.HistoryLimit < minHistoryLimit || cfg.HistoryLimit > maxHistoryLimit {
		return Config{}, fmt.Errorf("history limit must be between %d and %d", minHistoryLimit, maxHistoryLimit)
	}
	if cfg.CaptureLimit < minCaptureLimit || cfg.CaptureLimit > maxCaptureLimit {
		return Config{}, fmt.Errorf("capture limit must be between %d and %d", minCaptureLimit, maxCaptureLimit)
	}
	return cfg, nil
}

// Status is the snapshot served on /api/status.
type Status struct {
	Mode        string         `json:"mode"`
	Acks        map[string]int `json:"acks"`
	Captures    int            `json:"captures"`
	LastCapture *Capture       `json:"lastCapture,omitempty"`
	Process     ProcessStats   `json:"process"`
}

// ProcessStats describes the daemon process.
type ProcessStats struct {
	NumGoroutine int           `json:"numGoroutine"`
	Uptime       time.Duration `json:"uptime"`
	HeapAlloc    uint64        `json:"heapAlloc"`
}

// CaptureSamples is the payload of /api/capture/latest.
type CaptureSamples struct {
	Capture
	I []int16 `json:"i"`
	Q []int16 `json:"q"`
}

// Hub collects history and fans out session events to subscribers.
type Hub struct {
	mu          sync.RWMutex
	history     []Event
	subscribers map[chan Event]struct{}
	config      Config
	logger      logging.Logger
	started     time.Time

	mode        string
	acks        map[string]int
	captures    int
	lastCapture *Capture
}

// NewHub builds a telemetry hub with the provided history limit.
func NewHub(historyLimit int, logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	cfg := defaultConfig()
	if historyLimit > 0 {
		cfg.HistoryLimit = historyLimit
	}
	cfg, err := validateConfig(cfg, defaultConfig())
	if err != nil {
		logger.Warn("invalid telemetry config, using defaults", logging.F("error", err))
		cfg = defaultConfig()
	}
	return &Hub{
		subscribers: make(map[chan Event]struct{}),
		config:      cfg,
		logger:      logger.With(logging.F("subsystem", "telemetry")),
		started:     time.Now(),
		mode:        "main",
		acks:        make(map[string]int),
	}
}

// Report implements Reporter. Slow subscribers miss events rather than
// blocking the session.
func (h *Hub) Report(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	switch e.Kind {
	case KindMode:
		h.mode = e.Mode
	case KindAck:
		h.acks[e.Retval]++
	case KindCapture:
		if e.Capture != nil && e.Capture.Error == "" {
			h.captures++
			h.lastCapture = e.Capture
		}
	}

	summary := e
	if e.Capture != nil {
		c := *e.Capture
		c.I, c.Q = nil, nil
		summary.Capture = &c
	}
	h.history = append(h.history, summary)
	if len(h.history) > h.config.HistoryLimit {
		h.history = h.history[len(h.history)-h.config.HistoryLimit:]
	}
	for ch := range h.subscribers {
		select {
		case ch <- summary:
		default:
		}
	}
}

// History returns a copy of stored events.
func (h *Hub) History() []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Event, len(h.history))
	copy(out, h.history)
	return out
}

// Status returns the session counters and process statistics.
func (h *Hub) Status() Status {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	h.mu.RLock()
	defer h.mu.RUnlock()
	acks := make(map[string]int, len(h.acks))
	for k, v := range h.acks {
		acks[k] = v
	}
	st := Status{
		Mode:     h.mode,
		Acks:     acks,
		Captures: h.captures,
		Process: ProcessStats{
			NumGoroutine: runtime.NumGoroutine(),
			Uptime:       time.Since(h.started),
			HeapAlloc:    mem.HeapAlloc,
		},
	}
	if h.lastCapture != nil {
		c := *h.lastCapture
		c.I, c.Q = nil, nil
		st.LastCapture = &c
	}
	return st
}

// LatestCapture returns the most recent successful capture truncated to the
// configured capture limit.
func (h *Hub) LatestCapture() (CaptureSamples, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.lastCapture == nil {
		return CaptureSamples{}, false
	}
	c := *h.lastCapture
	n := len(c.I)
	if len(c.Q) < n {
		n = len(c.Q)
	}
	if n > h.config.CaptureLimit {
		n = h.config.CaptureLimit
	}
	out := CaptureSamples{
		Capture: c,
		I:       append([]int16(nil), c.I[:n]...),
		Q:       append([]int16(nil), c.Q[:n]...),
	}
	return out, true
}

// ConfigSnapshot returns the latest validated configuration.
func (h *Hub) ConfigSnapshot() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.config
}

// Subscribe registers a listener for live updates.
func (h *Hub) Subscribe() (chan Event, func()) {
	ch := make(chan Event, 16)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	cancel := func() {
		h.mu.Lock()
		delete(h.subscribers, ch)
		close(ch)
		h.mu.Unlock()
	}
	return ch, cancel
}

func (h *Hub) applyConfig(cfg Config) {
	h.config = cfg
	if len(h.history) > cfg.HistoryLimit {
		h.history = h.history[len(h.history)-cfg.HistoryLimit:]
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Hub) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, h.Status())
}

func (h *Hub) handleHistory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.History())
}

func (h *Hub) handleLatestCapture(w http.ResponseWriter, _ *http.Request) {
	c, ok := h.LatestCapture()
	if !ok {
		http.Error(w, "no capture available", http.StatusNotFound)
		return
	}
	writeJSON(w, c)
}

func (h *Hub) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, h.ConfigSnapshot())
}

func (h *Hub) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var incoming Config
	if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
		http.Error(w, fmt.Sprintf("invalid config payload: %v", err), http.StatusBadRequest)
		return
	}

	h.mu.RLock()
	current := h.config
	h.mu.RUnlock()

	cfg, err := validateConfig(incoming, current)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	h.applyConfig(cfg)
	h.mu.Unlock()
	h.logger.Info("telemetry config updated", logging.F("history_limit", cfg.HistoryLimit), logging.F("capture_limit", cfg.CaptureLimit))

	writeJSON(w, cfg)
}

func (h *Hub) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := h.Subscribe()
	defer cancel()

	writeEvent := func(e Event) {
		payload, _ := json.Marshal(e)
		w.Write([]byte("data: "))
		w.Write(payload)
		w.Write([]byte("\n\n"))
	}

	// replay history so a new viewer sees the session so far
	for _, e := range h.History() {
		writeEvent(e)
	}
	flusher.Flush()

	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(e)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
