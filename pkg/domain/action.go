package domain

import (
	"time"
)

// EffectType names a side-effect the state machine asks the host to perform.
type EffectType string

// Standard Effect Types
const (
	// EffectShowView switches the display surface. Payload: View
	EffectShowView EffectType = "SHOW_VIEW"

	// EffectSetProgress updates the "current/max" indicator. Payload: Progress
	EffectSetProgress EffectType = "SET_PROGRESS"

	// EffectSetCountdown updates the countdown display. Payload: Countdown
	EffectSetCountdown EffectType = "SET_COUNTDOWN"

	// EffectSetCaptureEnabled enables or disables the capture input. Payload: bool
	EffectSetCaptureEnabled EffectType = "SET_CAPTURE_ENABLED"

	// EffectShowMessage shows a transient message. Payload: Message
	EffectShowMessage EffectType = "SHOW_MESSAGE"

	// EffectShowError shows a persistent error. Payload: string
	EffectShowError EffectType = "SHOW_ERROR"

	// EffectShowResults hands the captured images to the results view. Payload: []CapturedImage
	EffectShowResults EffectType = "SHOW_RESULTS"

	// EffectAcquireStream asks the host to acquire a camera stream. Payload: Acquire
	EffectAcquireStream EffectType = "ACQUIRE_STREAM"

	// EffectReleaseStream asks the host to release the held stream. Payload: string (stream ID)
	EffectReleaseStream EffectType = "RELEASE_STREAM"

	// EffectScheduleTick arms the next countdown tick. Payload: Timer
	EffectScheduleTick EffectType = "SCHEDULE_TICK"

	// EffectCaptureFrame asks the host to render a still from the stream. Payload: Timer (Token only)
	EffectCaptureFrame EffectType = "CAPTURE_FRAME"

	// EffectScheduleCompletion arms the cycle completion callback. Payload: Timer
	EffectScheduleCompletion EffectType = "SCHEDULE_COMPLETION"

	// EffectCancelTimers invalidates every pending tick and completion. Payload: nil
	EffectCancelTimers EffectType = "CANCEL_TIMERS"
)

// Effect represents a side-effect that the state machine requests the host to perform.
type Effect struct {
	Type    EffectType
	Payload any
}

// Progress is the payload of EffectSetProgress.
type Progress struct {
	Current int `json:"current"`
	Max     int `json:"max"`
}

// Message is the payload of EffectShowMessage.
type Message struct {
	Text     string        `json:"text"`
	Duration time.Duration `json:"duration"`
}

// Acquire is the payload of EffectAcquireStream.
type Acquire struct {
	Epoch  uint64
	Width  int
	Height int
}

// Timer is the payload of timer related effects.
type Timer struct {
	Token uint64
	After time.Duration
}
