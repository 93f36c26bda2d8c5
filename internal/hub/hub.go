// Package hub implements the Event Hub (C5): a single bidirectional message
// transport that assigns every connecting client a session id, delivers
// broadcast and unicast events, and applies the field-abbreviation/gzip
// codec and non-critical batching described by the wire protocol.
package hub

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/nexus/internal/config"
	"github.com/haasonsaas/nexus/internal/observability"
)

// criticalEvents are never batched and always delivered immediately.
var criticalEvents = map[string]bool{
	"connection_established": true,
	"message_new":            true,
	"message_stream":         true,
	"message_update":         true,
	"context_cleared":        true,
	"workflow:completed":     true,
	"workflow:failed":        true,
	"workflow:cancelled":     true,
	"error":                  true,
}

// IsCritical reports whether an event name is delivered immediately
// (never queued into a batch frame).
func IsCritical(eventName string) bool {
	return criticalEvents[eventName]
}

// BroadcastOptions controls codec and batching behavior for one send.
type BroadcastOptions struct {
	Optimize bool
	Batch    bool
}

// Sender is anything that can accept a pre-encoded frame for delivery
// (normally a websocket connection wrapper; see transport.go).
type Sender interface {
	Send(frame []byte) error
	Close() error
}

type batchedEvent struct {
	Event string          `json:"e"`
	Data  json.RawMessage `json:"d"`
}

// session is one connected client: an outbound frame sink plus its own
// batching queue for non-critical events.
type session struct {
	id     string
	sender Sender
	caps   []string

	mu     sync.Mutex
	batch  []batchedEvent
	closed bool

	dropped int64
}

// enqueueBatch appends to the session's pending batch and reports whether
// the size cap was just reached (caller should flush immediately).
func (s *session) enqueueBatch(event string, data json.RawMessage, maxSize int) (shouldFlush bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batch = append(s.batch, batchedEvent{Event: event, Data: data})
	return len(s.batch) >= maxSize
}

func (s *session) drainBatch() []batchedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.batch) == 0 {
		return nil
	}
	drained := s.batch
	s.batch = nil
	return drained
}

func (s *session) sendDirect(frame []byte, blockingDeadline time.Duration) error {
	if blockingDeadline <= 0 {
		return s.sender.Send(frame)
	}
	done := make(chan error, 1)
	go func() { done <- s.sender.Send(frame) }()
	select {
	case err := <-done:
		return err
	case <-time.After(blockingDeadline):
		return errSendTimeout
	}
}

// errSendTimeout is returned when a critical send blocks past the bounded
// backpressure window; the caller disconnects the session on this error.
var errSendTimeout = &hubError{"send timed out, disconnecting session"}

type hubError struct{ msg string }

func (e *hubError) Error() string { return e.msg }

// Stats is the process-wide snapshot §4.5 requires get_stats to expose.
type Stats struct {
	TotalMessages     int64   `json:"total_messages"`
	OriginalBytes     int64   `json:"original_bytes"`
	OptimizedBytes    int64   `json:"optimized_bytes"`
	Compressed        int64   `json:"compressed"`
	Dropped           int64   `json:"dropped"`
	ReductionPercent  float64 `json:"reduction_percentage"`
}

// Hub is the single, long-lived, process-wide event hub instance; there are
// no globals, it is constructed once at startup and passed by reference
// into every handler that needs to publish or manage connections.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*session

	batchInterval  time.Duration
	batchMaxEvents int
	compressThresh int
	sendDeadline   time.Duration

	logger  *slog.Logger
	metrics *observability.Metrics

	totalMessages  int64
	originalBytes  int64
	optimizedBytes int64
	compressedN    int64
	dropped        int64

	stopBatcher chan struct{}
}

// New constructs a Hub from configuration and starts its batch-flush loop.
// metrics and logger may be nil.
func New(cfg config.HubConfig, metrics *observability.Metrics, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.BatchInterval
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	maxEvents := cfg.BatchMaxMessages
	if maxEvents <= 0 {
		maxEvents = 10
	}
	threshold := cfg.CompressionThresholdBytes
	if threshold <= 0 {
		threshold = CompressionThresholdBytes
	}

	h := &Hub{
		sessions:       make(map[string]*session),
		batchInterval:  interval,
		batchMaxEvents: maxEvents,
		compressThresh: threshold,
		sendDeadline:   2 * time.Second,
		logger:         logger.With("component", "event-hub"),
		metrics:        metrics,
		stopBatcher:    make(chan struct{}),
	}
	go h.runBatcher()
	return h
}

// Close stops the batch-flush loop and disconnects every session.
func (h *Hub) Close() {
	close(h.stopBatcher)
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.sessions {
		_ = s.sender.Close()
	}
	h.sessions = make(map[string]*session)
}

// Connect registers a new client connection and returns its assigned
// session id, implicitly subscribed to every event delivered by Broadcast.
func (h *Hub) Connect(sender Sender, caps []string) string {
	id := uuid.New().String()
	h.mu.Lock()
	h.sessions[id] = &session{id: id, sender: sender, caps: caps}
	h.mu.Unlock()

	h.Unicast(id, "connection_established", map[string]any{
		"session_id":   id,
		"capabilities": caps,
	})
	return id
}

// Disconnect removes a session. In-flight work tied to the session is not
// cancelled; it persists to the store and a later reconnect catches up.
func (h *Hub) Disconnect(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.sessions[sessionID]; ok {
		_ = s.sender.Close()
		delete(h.sessions, sessionID)
	}
}

// Broadcast delivers an event to every live session.
func (h *Hub) Broadcast(eventName string, payload any, opts BroadcastOptions) {
	h.mu.RLock()
	targets := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		h.deliver(s, eventName, payload, opts)
	}
}

// Unicast delivers an event to exactly one session, if still connected.
func (h *Hub) Unicast(sessionID, eventName string, payload any) {
	h.mu.RLock()
	s, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	h.deliver(s, eventName, payload, BroadcastOptions{Optimize: true})
}

func (h *Hub) deliver(s *session, eventName string, payload any, opts BroadcastOptions) {
	critical := IsCritical(eventName)

	if opts.Batch && !critical {
		raw, err := json.Marshal(payload)
		if err != nil {
			h.logger.Warn("hub: encode batched payload failed", "event", eventName, "error", err)
			return
		}
		if s.enqueueBatch(eventName, raw, h.batchMaxEvents) {
			h.flushSession(s)
		}
		return
	}

	frame, err := Encode(eventName, payload, opts.Optimize)
	if err != nil {
		h.logger.Warn("hub: encode failed", "event", eventName, "error", err)
		return
	}
	h.recordFrame(frame)

	deadline := time.Duration(0)
	if critical {
		deadline = h.sendDeadline
	}
	if err := s.sendDirect(frame.Bytes, deadline); err != nil {
		if !critical {
			atomic.AddInt64(&s.dropped, 1)
			atomic.AddInt64(&h.dropped, 1)
			return
		}
		h.logger.Warn("hub: critical send failed, disconnecting", "session", s.id, "event", eventName, "error", err)
		h.Disconnect(s.id)
	}
}

func (h *Hub) recordFrame(frame *Frame) {
	atomic.AddInt64(&h.totalMessages, 1)
	atomic.AddInt64(&h.originalBytes, int64(frame.OriginalBytes))
	atomic.AddInt64(&h.optimizedBytes, int64(frame.OptimizedBytes))
	if frame.Compressed {
		atomic.AddInt64(&h.compressedN, 1)
	}
	if h.metrics != nil {
		h.metrics.RecordHubCodec(frame.OriginalBytes, frame.OptimizedBytes)
	}
}

// runBatcher flushes every session's queued non-critical events on a fixed
// interval, or earlier via the max-size check performed on enqueue.
func (h *Hub) runBatcher() {
	ticker := time.NewTicker(h.batchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.stopBatcher:
			return
		case <-ticker.C:
			h.flushAll()
		}
	}
}

func (h *Hub) flushAll() {
	h.mu.RLock()
	targets := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		h.flushSession(s)
	}
}

func (h *Hub) flushSession(s *session) {
	events := s.drainBatch()
	if len(events) == 0 {
		return
	}
	// batchMaxEvents caps a single frame; overflow spills into additional frames.
	for len(events) > 0 {
		n := len(events)
		if n > h.batchMaxEvents {
			n = h.batchMaxEvents
		}
		chunk := events[:n]
		events = events[n:]

		payload := map[string]any{"batch": true, "messages": chunk}
		frame, err := Encode("batch", payload, true)
		if err != nil {
			h.logger.Warn("hub: encode batch failed", "error", err)
			continue
		}
		h.recordFrame(frame)
		if err := s.sendDirect(frame.Bytes, 0); err != nil {
			atomic.AddInt64(&s.dropped, 1)
			atomic.AddInt64(&h.dropped, 1)
		}
	}
}

// Stats returns a snapshot of the process-wide counters.
func (h *Hub) Stats() Stats {
	original := atomic.LoadInt64(&h.originalBytes)
	optimized := atomic.LoadInt64(&h.optimizedBytes)
	var reduction float64
	if original > 0 {
		reduction = (1 - float64(optimized)/float64(original)) * 100
	}
	return Stats{
		TotalMessages:    atomic.LoadInt64(&h.totalMessages),
		OriginalBytes:    original,
		OptimizedBytes:   optimized,
		Compressed:       atomic.LoadInt64(&h.compressedN),
		Dropped:          atomic.LoadInt64(&h.dropped),
		ReductionPercent: reduction,
	}
}

// SessionCount reports the number of currently connected sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
