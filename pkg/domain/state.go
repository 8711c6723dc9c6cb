package domain

import (
	"fmt"
	"slices"
	"time"
)

// Phase is the position of a session in the capture state machine.
type Phase string

const (
	PhaseIdle            Phase = "idle"             // Start view, no stream
	PhaseAwaitingCapture Phase = "awaiting_capture" // Capture view, waiting for the next cycle
	PhaseCounting        Phase = "counting"         // Countdown running
	PhaseSessionComplete Phase = "session_complete" // All frames captured, results shown
)

// View identifies which screen the display surface renders.
type View string

const (
	ViewStart   View = "start"
	ViewCapture View = "capture"
	ViewResults View = "results"
)

// StripFilename is the name offered for the downloaded strip.
const StripFilename = "bread_photobooth_strip.png"

// Config holds the fixed parameters of a booth.
type Config struct {
	MaxCaptures      int           `json:"max_captures"`
	CountdownSeconds int           `json:"countdown_seconds"`
	FrameWidth       int           `json:"frame_width"`
	FrameHeight      int           `json:"frame_height"`
	TickInterval     time.Duration `json:"tick_interval"`    // One countdown unit
	CompletionDelay  time.Duration `json:"completion_delay"` // Display delay between capture and cycle completion
	MessageDuration  time.Duration `json:"message_duration"` // How long transient messages stay visible
}

// DefaultConfig returns the observed booth defaults: three frames, three second countdown.
func DefaultConfig() Config {
	return Config{
		MaxCaptures:      3,
		CountdownSeconds: 3,
		FrameWidth:       620,
		FrameHeight:      460,
		TickInterval:     time.Second,
		CompletionDelay:  500 * time.Millisecond,
		MessageDuration:  2 * time.Second,
	}
}

// Validate checks that every count and dimension is positive.
func (c Config) Validate() error {
	if c.MaxCaptures <= 0 {
		return fmt.Errorf("max_captures must be > 0, got %d", c.MaxCaptures)
	}
	if c.CountdownSeconds <= 0 {
		return fmt.Errorf("countdown_seconds must be > 0, got %d", c.CountdownSeconds)
	}
	if c.FrameWidth <= 0 || c.FrameHeight <= 0 {
		return fmt.Errorf("frame size must be positive, got %dx%d", c.FrameWidth, c.FrameHeight)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be > 0, got %v", c.TickInterval)
	}
	if c.CompletionDelay < 0 {
		return fmt.Errorf("completion_delay must be >= 0, got %v", c.CompletionDelay)
	}
	return nil
}

// StripHeight returns the height of the composed strip.
func (c Config) StripHeight() int {
	return c.FrameHeight * c.MaxCaptures
}

// CapturedImage is one still taken at countdown zero. Immutable once created.
type CapturedImage struct {
	Index      int       `json:"index"`
	Original   []byte    `json:"-"` // PNG, unmirrored; used for the strip
	Preview    []byte    `json:"-"` // PNG, mirrored like the live selfie preview
	CapturedAt time.Time `json:"captured_at"`
}

// Countdown is the value shown by the countdown display: a number or the ready marker.
type Countdown struct {
	Value int  `json:"value"`
	Ready bool `json:"ready"`
}

// CountdownReady is the marker shown while the booth waits for the next cycle.
var CountdownReady = Countdown{Ready: true}

// CountdownAt returns the countdown display for a remaining count.
func CountdownAt(n int) Countdown {
	return Countdown{Value: n}
}

func (c Countdown) String() string {
	if c.Ready {
		return "ready"
	}
	return fmt.Sprintf("%d", c.Value)
}

// SessionState represents the snapshot of one photo session.
// It is owned by the controller and only changed through Transition.
type SessionState struct {
	SessionID string `json:"session_id"`
	Phase     Phase  `json:"phase"`

	// CapturedImages are kept in capture order.
	CapturedImages []CapturedImage `json:"captured_images"`

	// StreamID references the acquired camera stream. Empty means no stream.
	StreamID string `json:"stream_id,omitempty"`

	// IsCapturing is true from countdown start until its cycle completes.
	IsCapturing bool `json:"is_capturing"`

	// Remaining is the countdown value while Phase is PhaseCounting.
	Remaining int `json:"remaining"`

	// Epoch increments on every start and restart; stale acquisitions carry an older epoch.
	Epoch uint64 `json:"epoch"`

	// Token increments on every cycle start, start and restart; stale ticks carry an older token.
	Token uint64 `json:"token"`

	// LastError holds the user-facing text of the last device failure.
	LastError string `json:"last_error,omitempty"`
}

// NewSessionState creates a clean idle session.
func NewSessionState(sessionID string) SessionState {
	return SessionState{
		SessionID: sessionID,
		Phase:     PhaseIdle,
	}
}

// Count returns the number of captured images.
func (s SessionState) Count() int {
	return len(s.CapturedImages)
}

// HasStream reports whether a camera stream is held.
func (s SessionState) HasStream() bool {
	return s.StreamID != ""
}

// Snapshot returns a copy whose image slice does not alias the original.
func (s SessionState) Snapshot() SessionState {
	s.CapturedImages = slices.Clone(s.CapturedImages)
	return s
}

// Artifact is the downloadable composed strip.
type Artifact struct {
	Filename string
	Width    int
	Height   int
	Data     []byte // PNG
}
