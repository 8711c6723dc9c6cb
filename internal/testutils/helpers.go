package testutils

import (
	"sort"
	"sync"
	"time"

	"github.com/aretw0/photobooth/pkg/domain"
	"github.com/aretw0/photobooth/pkg/ports"
)

// ManualScheduler is a ports.Scheduler driven by the test instead of the wall clock.
// Callbacks only run inside Advance or RunAll, on the calling goroutine.
type ManualScheduler struct {
	mu      sync.Mutex
	now     time.Duration
	seq     int
	pending []*manualTimer
}

type manualTimer struct {
	s       *ManualScheduler
	due     time.Duration
	seq     int
	fn      func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// NewManualScheduler creates a scheduler at virtual time zero.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// AfterFunc arms fn to run once the virtual clock reaches now+d.
func (s *ManualScheduler) AfterFunc(d time.Duration, fn func()) ports.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &manualTimer{s: s, due: s.now + d, seq: s.seq, fn: fn}
	s.pending = append(s.pending, t)
	return t
}

// Advance moves the virtual clock forward by d, running every callback that comes due
// in order, including callbacks armed by earlier callbacks.
func (s *ManualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()

	for {
		t := s.next(target)
		if t == nil {
			break
		}
		t.fn()
	}

	s.mu.Lock()
	s.now = target
	s.mu.Unlock()
}

// RunAll fires callbacks until none are pending. It gives up after limit callbacks.
func (s *ManualScheduler) RunAll(limit int) int {
	fired := 0
	for ; fired < limit; fired++ {
		t := s.next(-1)
		if t == nil {
			break
		}
		t.fn()
	}
	return fired
}

// Pending returns the number of armed, unstopped callbacks.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.pending {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// next pops the earliest live timer due at or before target; a negative target matches any.
func (s *ManualScheduler) next(target time.Duration) *manualTimer {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := s.pending[:0]
	for _, t := range s.pending {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	s.pending = live
	if len(live) == 0 {
		return nil
	}

	sort.SliceStable(live, func(i, j int) bool {
		if live[i].due == live[j].due {
			return live[i].seq < live[j].seq
		}
		return live[i].due < live[j].due
	})
	t := live[0]
	if target >= 0 && t.due > target {
		return nil
	}
	if t.due > s.now {
		s.now = t.due
	}
	t.fired = true
	return t
}

// SurfaceCall is one recorded DisplaySurface call.
type SurfaceCall struct {
	Method string
	Arg    any
}

// RecordingSurface is a ports.DisplaySurface that remembers what it was asked to show.
type RecordingSurface struct {
	mu    sync.Mutex
	calls []SurfaceCall

	View           domain.View
	Progress       [2]int
	Countdown      domain.Countdown
	CaptureEnabled bool
	Messages       []string
	Errors         []string
	Results        []domain.CapturedImage
}

// NewRecordingSurface returns a surface showing the start view.
func NewRecordingSurface() *RecordingSurface {
	return &RecordingSurface{View: domain.ViewStart, Countdown: domain.CountdownReady}
}

func (r *RecordingSurface) record(method string, arg any) {
	r.calls = append(r.calls, SurfaceCall{Method: method, Arg: arg})
}

func (r *RecordingSurface) ShowView(view domain.View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.View = view
	r.record("ShowView", view)
}

func (r *RecordingSurface) SetProgressText(current, max int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Progress = [2]int{current, max}
	r.record("SetProgressText", r.Progress)
}

func (r *RecordingSurface) SetCountdownText(value domain.Countdown) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Countdown = value
	r.record("SetCountdownText", value)
}

func (r *RecordingSurface) SetCaptureEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CaptureEnabled = enabled
	r.record("SetCaptureEnabled", enabled)
}

func (r *RecordingSurface) ShowTransientMessage(text string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Messages = append(r.Messages, text)
	r.record("ShowTransientMessage", text)
}

func (r *RecordingSurface) ShowError(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, text)
	r.record("ShowError", text)
}

func (r *RecordingSurface) ShowResults(images []domain.CapturedImage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Results = images
	r.record("ShowResults", len(images))
}

// Calls returns a copy of every recorded call, oldest first.
func (r *RecordingSurface) Calls() []SurfaceCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SurfaceCall(nil), r.calls...)
}

// Countdowns returns the countdown values shown so far, in order.
func (r *RecordingSurface) Countdowns() []string {
	var out []string
	for _, c := range r.Calls() {
		if c.Method == "SetCountdownText" {
			out = append(out, c.Arg.(domain.Countdown).String())
		}
	}
	return out
}
