package sweep

import "sync/atomic"

// StopFlag is a caller-owned cancellation token. Run polls it only between
// batches, so a stop takes effect once the running batch has been joined.
// The zero value is ready to use; a nil flag never stops.
type StopFlag struct {
	stopped atomic.Bool
}

// Stop asks the sweep to stop at the next batch boundary.
func (f *StopFlag) Stop() {
	if f != nil {
		f.stopped.Store(true)
	}
}

// Stopped reports whether Stop was called since the last reset.
func (f *StopFlag) Stopped() bool {
	return f != nil && f.stopped.Load()
}

// Reset clears the flag. Run resets it when it starts.
func (f *StopFlag) Reset() {
	if f != nil {
		f.stopped.Store(false)
	}
}
