// Package degraded keeps a sliding window of upstream call outcomes so /health can
// report when OpenWeatherMap is failing, without making a call of its own.
package degraded

import (
	"sync"
	"time"
)

// Defaults used when a Config field is zero.
const (
	DefaultWindow     = time.Minute
	DefaultErrorPct   = 50
	DefaultMinSamples = 5
)

// Config sets when the tracker reports degraded.
type Config struct {
	Window     time.Duration // how far back outcomes count
	ErrorPct   int           // failures as a percentage of outcomes, inclusive
	MinSamples int           // outcomes needed before the rate is trusted
}

// Tracker records upstream successes and failures. The zero value is not usable; use New.
type Tracker struct {
	cfg Config
	now func() time.Time

	mu        sync.Mutex
	successes []time.Time
	failures  []time.Time
}

// New returns a Tracker, filling zero Config fields with defaults.
func New(cfg Config) *Tracker {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.ErrorPct <= 0 || cfg.ErrorPct > 100 {
		cfg.ErrorPct = DefaultErrorPct
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = DefaultMinSamples
	}
	return &Tracker{cfg: cfg, now: time.Now}
}

// RecordSuccess records an upstream call that returned a usable response.
func (t *Tracker) RecordSuccess() {
	t.record(&t.successes)
}

// RecordFailure records an upstream call that failed for reasons outside the caller's input.
func (t *Tracker) RecordFailure() {
	t.record(&t.failures)
}

func (t *Tracker) record(slice *[]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	*slice = append(*slice, now)
	t.pruneLocked(now)
}

// ErrorRate returns failures and total outcomes within the window.
func (t *Tracker) ErrorRate() (failures, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pruneLocked(t.now())
	return len(t.failures), len(t.failures) + len(t.successes)
}

// Degraded reports whether enough recent calls failed to call the upstream unhealthy.
func (t *Tracker) Degraded() bool {
	failures, total := t.ErrorRate()
	if total < t.cfg.MinSamples {
		return false
	}
	return failures*100 >= t.cfg.ErrorPct*total
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.successes = nil
	t.failures = nil
}

// pruneLocked drops outcomes older than the window. Timestamps are appended in order,
// so the stale ones are a prefix. Must be called with mu held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-t.cfg.Window)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for i < len(times) && times[i].Before(cutoff) {
			i++
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&t.successes)
	prune(&t.failures)
}
