package ports

import "time"

// Timer is a pending callback armed by a Scheduler.
type Timer interface {
	// Stop prevents the callback from firing. It reports false if the callback already ran.
	Stop() bool
}

// Scheduler arms callbacks after a delay. *time.Timer satisfies Timer, so a real
// scheduler is a thin wrapper over time.AfterFunc.
// fn must never run inside AfterFunc itself: the caller may hold a lock fn needs.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}
