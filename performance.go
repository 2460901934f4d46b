package embedfall

import (
	"sync"
	"time"

	"github.com/helmavik/embedfall/backend"
)

// latencySmoothing is the weight of the newest observation in the
// exponentially smoothed average.
const latencySmoothing = 0.3

// perfTracker maintains one smoothed latency estimate per backend kind,
// updated after every successful embedding call.
type perfTracker struct {
	mu      sync.Mutex
	records map[backend.Kind]*PerformanceRecord
}

func newPerfTracker() *perfTracker {
	return &perfTracker{records: make(map[backend.Kind]*PerformanceRecord)}
}

func (t *perfTracker) observe(kind backend.Kind, latency time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[kind]
	if !ok {
		t.records[kind] = &PerformanceRecord{
			Backend:    kind,
			AvgLatency: latency,
			LastUsed:   time.Now(),
		}
		return
	}
	rec.AvgLatency = time.Duration(latencySmoothing*float64(latency) +
		(1-latencySmoothing)*float64(rec.AvgLatency))
	rec.LastUsed = time.Now()
}

// snapshot returns copies in chain order so callers cannot mutate tracker
// state.
func (t *perfTracker) snapshot(order []backend.Kind) []PerformanceRecord {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]PerformanceRecord, 0, len(t.records))
	for _, kind := range order {
		if rec, ok := t.records[kind]; ok {
			out = append(out, *rec)
		}
	}
	return out
}

func (t *perfTracker) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = make(map[backend.Kind]*PerformanceRecord)
}
