package domain

import (
	"context"
	"time"
)

// EventType defines the category of an input to the capture state machine.
type EventType string

const (
	EventStartSession   EventType = "start_session"
	EventStreamAcquired EventType = "stream_acquired"
	EventStreamFailed   EventType = "stream_failed"
	EventBeginCycle     EventType = "begin_cycle"
	EventTick           EventType = "tick"
	EventFrameCaptured  EventType = "frame_captured"
	EventFrameFailed    EventType = "frame_failed"
	EventCycleComplete  EventType = "cycle_complete"
	EventRestart        EventType = "restart"
)

// Event is an input to Transition.
// Epoch and Token identify the session and cycle the event belongs to; events
// carrying an outdated value are ignored.
type Event struct {
	Type     EventType
	Epoch    uint64
	Token    uint64
	StreamID string         // EventStreamAcquired
	Image    *CapturedImage // EventFrameCaptured
	Err      error          // EventStreamFailed, EventFrameFailed
}

// PhaseEvent is emitted when a session moves between phases.
type PhaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	From      Phase     `json:"from"`
	To        Phase     `json:"to"`
}

// CaptureEvent is emitted when a still is appended to the session.
type CaptureEvent struct {
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	Index     int       `json:"index"`
	Max       int       `json:"max"`
}

// ErrorEvent is emitted when a recoverable failure is reported to the user.
type ErrorEvent struct {
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	Kind      string    `json:"kind"` // device_unavailable, insufficient_images, render_failure
	Err       error     `json:"-"`
}

// ComposeEvent is emitted after a strip was composed.
type ComposeEvent struct {
	Timestamp time.Time     `json:"timestamp"`
	SessionID string        `json:"session_id"`
	Duration  time.Duration `json:"duration"`
	Size      int           `json:"size"`
}

// LifecycleHooks defines callbacks for controller observability.
type LifecycleHooks struct {
	OnPhaseChange     func(context.Context, *PhaseEvent)
	OnCapture         func(context.Context, *CaptureEvent)
	OnSessionComplete func(context.Context, *PhaseEvent)
	OnError           func(context.Context, *ErrorEvent)
	OnCompose         func(context.Context, *ComposeEvent)
}
