package call

import "time"

// Scheduler runs a function after a delay. The production implementation
// sits on time.AfterFunc; tests substitute a manual clock so the whole
// call pacing can be driven deterministically.
type Scheduler interface {
	// After runs fn on its own goroutine after d elapses. The returned
	// cancel stops the callback if it has not fired yet.
	After(d time.Duration, fn func()) (cancel func())
}

// TimerScheduler is the real-time Scheduler.
type TimerScheduler struct{}

// NewTimerScheduler returns the wall-clock scheduler.
func NewTimerScheduler() TimerScheduler { return TimerScheduler{} }

// After implements Scheduler with time.AfterFunc.
func (TimerScheduler) After(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}
