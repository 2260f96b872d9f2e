package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/miradorstack/mirador-responder/internal/models"
	"github.com/miradorstack/mirador-responder/internal/utils"
)

// HubConfig tunes the decision stream.
type HubConfig struct {
	BufferSize   int
	PingInterval time.Duration
	WriteTimeout time.Duration
}

// DefaultHubConfig returns the stream defaults.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		BufferSize:   64,
		PingInterval: 30 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// StreamMessage is the JSON frame written to stream clients.
type StreamMessage struct {
	Type     string           `json:"type"`
	Analysis *models.Analysis `json:"analysis,omitempty"`
}

type subscriber struct {
	service string
	ch      chan models.Analysis
}

// Hub fans analyses out to websocket subscribers. It is a decision sink;
// slow subscribers lose messages rather than stall the pipeline.
type Hub struct {
	cfg      HubConfig
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu     sync.RWMutex
	subs   map[uint64]*subscriber
	nextID uint64

	done      chan struct{}
	closeOnce sync.Once
}

// NewHub creates an empty hub.
func NewHub(cfg HubConfig, logger *slog.Logger) *Hub {
	def := DefaultHubConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	return &Hub{
		cfg:    cfg,
		logger: utils.OrDefault(logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		subs: make(map[uint64]*subscriber),
		done: make(chan struct{}),
	}
}

// PublishAnalysis delivers analysis to every subscriber watching its service.
func (h *Hub) PublishAnalysis(_ context.Context, analysis models.Analysis) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, sub := range h.subs {
		if sub.service != "" && sub.service != analysis.Alert.ServiceID {
			continue
		}
		select {
		case sub.ch <- analysis:
		default:
			h.logger.Debug("stream subscriber lagging, dropping analysis", "subscriber", id, "alert_id", analysis.Alert.ID)
		}
	}
	return nil
}

// Count returns the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

func (h *Hub) subscribe(service string) (uint64, *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	sub := &subscriber{service: service, ch: make(chan models.Analysis, h.cfg.BufferSize)}
	h.subs[h.nextID] = sub
	return h.nextID, sub
}

func (h *Hub) unsubscribe(id uint64) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

// ServeHTTP upgrades the request and streams analyses until the client goes away.
// The optional service query parameter narrows the stream to one service.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("stream upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	id, sub := h.subscribe(r.URL.Query().Get("service"))
	defer h.unsubscribe(id)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Client frames are ignored; reading surfaces the close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
				time.Now().Add(h.cfg.WriteTimeout))
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.WriteTimeout)); err != nil {
				return
			}
		case analysis := <-sub.ch:
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := conn.WriteJSON(StreamMessage{Type: "analysis", Analysis: &analysis}); err != nil {
				h.logger.Debug("stream write failed", "subscriber", id, "error", err)
				return
			}
		}
	}
}
