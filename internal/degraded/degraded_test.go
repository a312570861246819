package degraded

import (
	"sync"
	"testing"
	"time"
)

func newTestTracker(cfg Config) (*Tracker, *time.Time) {
	clock := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	tr := New(cfg)
	tr.now = func() time.Time { return clock }
	return tr, &clock
}

func TestNew_Defaults(t *testing.T) {
	tr := New(Config{})
	if tr.cfg.Window != DefaultWindow || tr.cfg.ErrorPct != DefaultErrorPct || tr.cfg.MinSamples != DefaultMinSamples {
		t.Errorf("cfg = %+v, want defaults", tr.cfg)
	}
	if New(Config{ErrorPct: 150}).cfg.ErrorPct != DefaultErrorPct {
		t.Error("out-of-range ErrorPct not replaced")
	}
}

func TestTracker_Degraded(t *testing.T) {
	tests := []struct {
		name      string
		successes int
		failures  int
		want      bool
	}{
		{name: "no traffic", want: false},
		{name: "below min samples", failures: 4, want: false},
		{name: "all failing", failures: 5, want: true},
		{name: "exactly at threshold", successes: 5, failures: 5, want: true},
		{name: "below threshold", successes: 6, failures: 4, want: false},
		{name: "all good", successes: 20, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, _ := newTestTracker(Config{ErrorPct: 50, MinSamples: 5})
			for i := 0; i < tt.successes; i++ {
				tr.RecordSuccess()
			}
			for i := 0; i < tt.failures; i++ {
				tr.RecordFailure()
			}
			if got := tr.Degraded(); got != tt.want {
				f, total := tr.ErrorRate()
				t.Errorf("Degraded() = %v, want %v (failures=%d total=%d)", got, tt.want, f, total)
			}
		})
	}
}

func TestTracker_WindowExpiry(t *testing.T) {
	tr, clock := newTestTracker(Config{Window: time.Minute, MinSamples: 1})
	for i := 0; i < 3; i++ {
		tr.RecordFailure()
	}
	if !tr.Degraded() {
		t.Fatal("Degraded() = false right after failures")
	}

	*clock = clock.Add(61 * time.Second)
	tr.RecordSuccess()

	failures, total := tr.ErrorRate()
	if failures != 0 || total != 1 {
		t.Errorf("ErrorRate() = %d/%d, want 0/1 after window passed", failures, total)
	}
	if tr.Degraded() {
		t.Error("Degraded() = true after failures aged out")
	}
}

func TestTracker_Reset(t *testing.T) {
	tr, _ := newTestTracker(Config{MinSamples: 1})
	tr.RecordFailure()
	tr.Reset()
	if _, total := tr.ErrorRate(); total != 0 {
		t.Errorf("total after Reset = %d, want 0", total)
	}
}

func TestTracker_Concurrent(t *testing.T) {
	tr := New(Config{})
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				tr.RecordSuccess()
			} else {
				tr.RecordFailure()
			}
		}(i)
	}
	wg.Wait()
	if failures, total := tr.ErrorRate(); failures != 50 || total != 100 {
		t.Errorf("ErrorRate() = %d/%d, want 50/100", failures, total)
	}
}
