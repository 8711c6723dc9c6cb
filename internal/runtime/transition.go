package runtime

import (
	"errors"
	"slices"

	"github.com/aretw0/photobooth/pkg/domain"
)

// Transition computes the next session state and the effects the host must perform.
// It is pure: it never touches the camera, the screen or a clock.
// Events whose Epoch or Token no longer match the state are stale and produce no change.
func Transition(cfg domain.Config, s domain.SessionState, ev domain.Event) (domain.SessionState, []domain.Effect) {
	switch ev.Type {
	case domain.EventStartSession:
		return start(cfg, s)
	case domain.EventStreamAcquired:
		return streamAcquired(s, ev)
	case domain.EventStreamFailed:
		return streamFailed(s, ev)
	case domain.EventBeginCycle:
		return beginCycle(cfg, s)
	case domain.EventTick:
		return tick(cfg, s, ev)
	case domain.EventFrameCaptured:
		return frameCaptured(cfg, s, ev)
	case domain.EventFrameFailed:
		return frameFailed(cfg, s, ev)
	case domain.EventCycleComplete:
		return cycleComplete(s, ev)
	case domain.EventRestart:
		return restart(cfg, s)
	}
	return s, nil
}

// CanCompose reports whether the session holds every frame needed for a strip.
func CanCompose(cfg domain.Config, s domain.SessionState) bool {
	return s.Count() == cfg.MaxCaptures
}

// CanBeginCycle is the re-entrancy guard of beginCycle.
func CanBeginCycle(cfg domain.Config, s domain.SessionState) bool {
	return s.Phase == domain.PhaseAwaitingCapture &&
		!s.IsCapturing &&
		s.Count() < cfg.MaxCaptures &&
		s.HasStream()
}

// abandon invalidates pending work and releases the stream held by s.
func abandon(s domain.SessionState) (domain.SessionState, []domain.Effect) {
	effects := []domain.Effect{{Type: domain.EffectCancelTimers}}
	if s.HasStream() {
		effects = append(effects, domain.Effect{Type: domain.EffectReleaseStream, Payload: s.StreamID})
	}
	s.Epoch++
	s.Token++
	s.StreamID = ""
	s.IsCapturing = false
	s.Remaining = 0
	s.CapturedImages = nil
	s.LastError = ""
	return s, effects
}

func start(cfg domain.Config, s domain.SessionState) (domain.SessionState, []domain.Effect) {
	s, effects := abandon(s)
	s.Phase = domain.PhaseAwaitingCapture

	effects = append(effects,
		domain.Effect{Type: domain.EffectSetCaptureEnabled, Payload: false},
		domain.Effect{Type: domain.EffectSetProgress, Payload: domain.Progress{Current: 0, Max: cfg.MaxCaptures}},
		domain.Effect{Type: domain.EffectShowView, Payload: domain.ViewCapture},
		domain.Effect{Type: domain.EffectAcquireStream, Payload: domain.Acquire{
			Epoch:  s.Epoch,
			Width:  cfg.FrameWidth,
			Height: cfg.FrameHeight,
		}},
	)
	return s, effects
}

func streamAcquired(s domain.SessionState, ev domain.Event) (domain.SessionState, []domain.Effect) {
	// A restart happened while the camera was opening: hand the orphan back.
	if ev.Epoch != s.Epoch || s.Phase != domain.PhaseAwaitingCapture || s.HasStream() {
		return s, []domain.Effect{{Type: domain.EffectReleaseStream, Payload: ev.StreamID}}
	}

	s.StreamID = ev.StreamID
	s.LastError = ""
	return s, []domain.Effect{
		{Type: domain.EffectSetCountdown, Payload: domain.CountdownReady},
		{Type: domain.EffectSetCaptureEnabled, Payload: true},
	}
}

func streamFailed(s domain.SessionState, ev domain.Event) (domain.SessionState, []domain.Effect) {
	if ev.Epoch != s.Epoch || s.Phase != domain.PhaseAwaitingCapture {
		return s, nil
	}

	s.LastError = deviceMessage(ev.Err)
	return s, []domain.Effect{
		{Type: domain.EffectSetCaptureEnabled, Payload: false},
		{Type: domain.EffectShowError, Payload: s.LastError},
	}
}

func beginCycle(cfg domain.Config, s domain.SessionState) (domain.SessionState, []domain.Effect) {
	if !CanBeginCycle(cfg, s) {
		return s, nil
	}

	s.Token++
	s.Phase = domain.PhaseCounting
	s.IsCapturing = true
	s.Remaining = cfg.CountdownSeconds

	return s, []domain.Effect{
		{Type: domain.EffectSetCaptureEnabled, Payload: false},
		{Type: domain.EffectSetCountdown, Payload: domain.CountdownAt(s.Remaining)},
		{Type: domain.EffectScheduleTick, Payload: domain.Timer{Token: s.Token, After: cfg.TickInterval}},
	}
}

func tick(cfg domain.Config, s domain.SessionState, ev domain.Event) (domain.SessionState, []domain.Effect) {
	if ev.Token != s.Token || s.Phase != domain.PhaseCounting || s.Remaining <= 0 {
		return s, nil
	}

	s.Remaining--
	if s.Remaining > 0 {
		return s, []domain.Effect{
			{Type: domain.EffectSetCountdown, Payload: domain.CountdownAt(s.Remaining)},
			{Type: domain.EffectScheduleTick, Payload: domain.Timer{Token: s.Token, After: cfg.TickInterval}},
		}
	}

	// Zero: the countdown stops repeating and the host renders the still.
	return s, []domain.Effect{
		{Type: domain.EffectCaptureFrame, Payload: domain.Timer{Token: s.Token}},
	}
}

func frameCaptured(cfg domain.Config, s domain.SessionState, ev domain.Event) (domain.SessionState, []domain.Effect) {
	if ev.Token != s.Token || s.Phase != domain.PhaseCounting || s.Remaining != 0 || ev.Image == nil {
		return s, nil
	}

	img := *ev.Image
	img.Index = s.Count()
	s.CapturedImages = append(slices.Clip(s.CapturedImages), img)

	if s.Count() >= cfg.MaxCaptures {
		s.Phase = domain.PhaseSessionComplete
	} else {
		s.Phase = domain.PhaseAwaitingCapture
	}

	return s, []domain.Effect{
		{Type: domain.EffectSetProgress, Payload: domain.Progress{Current: s.Count(), Max: cfg.MaxCaptures}},
		{Type: domain.EffectScheduleCompletion, Payload: domain.Timer{Token: s.Token, After: cfg.CompletionDelay}},
	}
}

func frameFailed(cfg domain.Config, s domain.SessionState, ev domain.Event) (domain.SessionState, []domain.Effect) {
	if ev.Token != s.Token || s.Phase != domain.PhaseCounting {
		return s, nil
	}

	// The cycle is declined; the user can trigger it again.
	s.Phase = domain.PhaseAwaitingCapture
	s.IsCapturing = false
	s.Remaining = 0
	return s, []domain.Effect{
		{Type: domain.EffectShowMessage, Payload: domain.Message{Text: "Capture failed, try again.", Duration: cfg.MessageDuration}},
		{Type: domain.EffectSetCountdown, Payload: domain.CountdownReady},
		{Type: domain.EffectSetCaptureEnabled, Payload: true},
	}
}

func cycleComplete(s domain.SessionState, ev domain.Event) (domain.SessionState, []domain.Effect) {
	if ev.Token != s.Token || !s.IsCapturing {
		return s, nil
	}

	s.IsCapturing = false

	if s.Phase == domain.PhaseSessionComplete {
		var effects []domain.Effect
		if s.HasStream() {
			effects = append(effects, domain.Effect{Type: domain.EffectReleaseStream, Payload: s.StreamID})
			s.StreamID = ""
		}
		effects = append(effects,
			domain.Effect{Type: domain.EffectShowResults, Payload: slices.Clone(s.CapturedImages)},
			domain.Effect{Type: domain.EffectShowView, Payload: domain.ViewResults},
		)
		return s, effects
	}

	return s, []domain.Effect{
		{Type: domain.EffectSetCountdown, Payload: domain.CountdownReady},
		{Type: domain.EffectSetCaptureEnabled, Payload: true},
	}
}

func restart(cfg domain.Config, s domain.SessionState) (domain.SessionState, []domain.Effect) {
	s, effects := abandon(s)
	s.Phase = domain.PhaseIdle

	effects = append(effects,
		domain.Effect{Type: domain.EffectSetCaptureEnabled, Payload: false},
		domain.Effect{Type: domain.EffectSetProgress, Payload: domain.Progress{Current: 0, Max: cfg.MaxCaptures}},
		domain.Effect{Type: domain.EffectSetCountdown, Payload: domain.CountdownReady},
		domain.Effect{Type: domain.EffectShowView, Payload: domain.ViewStart},
	)
	return s, effects
}

func deviceMessage(err error) string {
	var devErr *domain.DeviceError
	if errors.As(err, &devErr) {
		return devErr.UserMessage()
	}
	return "Unable to access the camera."
}
