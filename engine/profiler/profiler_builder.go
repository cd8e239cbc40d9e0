package profiler

import "time"

// ProfilerOption is a functional option for configuring a Profiler.
type ProfilerOption func(p *Profiler)

// WithInterval sets how often Tick logs. Non-positive values are ignored.
//
// Parameters:
//   - d: the logging interval
//
// Returns:
//   - ProfilerOption: option function to apply
func WithInterval(d time.Duration) ProfilerOption {
	return func(p *Profiler) {
		if d > 0 {
			p.updateInterval = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ProfilerOption {
	return func(p *Profiler) {
		if now != nil {
			p.now = now
		}
	}
}
