// Package clock provides the wall-clock Scheduler.
package clock

import (
	"time"

	"github.com/aretw0/photobooth/pkg/ports"
)

// Scheduler arms callbacks with time.AfterFunc. The zero value is ready to use.
type Scheduler struct{}

// New returns a wall-clock scheduler.
func New() Scheduler {
	return Scheduler{}
}

// AfterFunc runs fn on its own goroutine once d has elapsed.
func (Scheduler) AfterFunc(d time.Duration, fn func()) ports.Timer {
	return time.AfterFunc(d, fn)
}
