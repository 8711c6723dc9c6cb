package http

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/photobooth/pkg/domain"
	"github.com/aretw0/photobooth/pkg/ports"
)

// Message is one server-sent event.
type Message struct {
	Event string
	Data  string
}

// StreamManager handles active SSE connections
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- Message]struct{} // SessionID -> Set of Channels
	logger      *slog.Logger
}

func NewStreamManager(logger *slog.Logger) *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan<- Message]struct{}),
		logger:      logger,
	}
}

func (sm *StreamManager) Subscribe(sessionID string) (chan Message, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan Message, 32)
	if _, ok := sm.subscribers[sessionID]; !ok {
		sm.subscribers[sessionID] = make(map[chan<- Message]struct{})
	}
	sm.subscribers[sessionID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[sessionID]; ok {
			if _, ok := subs[ch]; !ok {
				return
			}
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, sessionID)
			}
		}
	}
}

// Subscribers returns the number of open subscriptions for a session.
func (sm *StreamManager) Subscribers(sessionID string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[sessionID])
}

// Broadcast never blocks: a slow client loses messages instead of stalling the booth.
func (sm *StreamManager) Broadcast(sessionID string, msg Message) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	sm.logger.Debug("StreamManager: Broadcasting", "session_id", sessionID, "event", msg.Event, "payload_size", len(msg.Data))

	for ch := range sm.subscribers[sessionID] {
		select {
		case ch <- msg:
		default:
			sm.logger.Warn("SSE: Client buffer full, dropping message", "session_id", sessionID)
		}
	}
}

// BroadcastJSON marshals v and broadcasts it under event.
func (sm *StreamManager) BroadcastJSON(sessionID, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		sm.logger.Error("SSE: marshal failed", "event", event, "err", err)
		return
	}
	sm.Broadcast(sessionID, Message{Event: event, Data: string(data)})
}

// SurfaceEvent is the payload of a "surface" event: one DisplaySurface call.
type SurfaceEvent struct {
	Method     string            `json:"method"`
	View       domain.View       `json:"view,omitempty"`
	Current    *int              `json:"current,omitempty"`
	Max        *int              `json:"max,omitempty"`
	Countdown  *domain.Countdown `json:"countdown,omitempty"`
	Enabled    *bool             `json:"enabled,omitempty"`
	Text       string            `json:"text,omitempty"`
	DurationMS int64             `json:"duration_ms,omitempty"`
	Images     []int             `json:"images,omitempty"`
}

// StreamSurface is a DisplaySurface that mirrors every call to the session's SSE subscribers,
// so a browser page can render the booth.
type StreamSurface struct {
	streams   *StreamManager
	sessionID string
}

// NewStreamSurface returns the surface for one session.
func NewStreamSurface(streams *StreamManager, sessionID string) *StreamSurface {
	return &StreamSurface{streams: streams, sessionID: sessionID}
}

var _ ports.DisplaySurface = (*StreamSurface)(nil)

func (s *StreamSurface) emit(ev SurfaceEvent) {
	s.streams.BroadcastJSON(s.sessionID, "surface", ev)
}

func (s *StreamSurface) ShowView(view domain.View) {
	s.emit(SurfaceEvent{Method: "show_view", View: view})
}

func (s *StreamSurface) SetProgressText(current, max int) {
	s.emit(SurfaceEvent{Method: "set_progress", Current: &current, Max: &max})
}

func (s *StreamSurface) SetCountdownText(value domain.Countdown) {
	s.emit(SurfaceEvent{Method: "set_countdown", Countdown: &value})
}

func (s *StreamSurface) SetCaptureEnabled(enabled bool) {
	s.emit(SurfaceEvent{Method: "set_capture_enabled", Enabled: &enabled})
}

func (s *StreamSurface) ShowTransientMessage(text string, d time.Duration) {
	s.emit(SurfaceEvent{Method: "show_message", Text: text, DurationMS: d.Milliseconds()})
}

func (s *StreamSurface) ShowError(text string) {
	s.emit(SurfaceEvent{Method: "show_error", Text: text})
}

// ShowResults sends image indexes only; clients fetch the PNGs from the images endpoint.
func (s *StreamSurface) ShowResults(images []domain.CapturedImage) {
	idx := make([]int, len(images))
	for i, img := range images {
		idx[i] = img.Index
	}
	s.emit(SurfaceEvent{Method: "show_results", Images: idx})
}
