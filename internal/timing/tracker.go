package timing

import (
	"sort"
	"sync"
	"time"
)

// Summary aggregates the durations recorded for one operation
type Summary struct {
	Count int
	Total time.Duration
	Min   time.Duration
	Max   time.Duration
}

func (s Summary) Average() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

type Tracker struct {
	mu  sync.RWMutex
	ops map[string]*Summary
	now func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		ops: make(map[string]*Summary),
		now: time.Now,
	}
}

// Start begins timing operation; call the returned func when it finishes.
// The returned func reports the measured duration.
func (tt *Tracker) Start(operation string) func() time.Duration {
	start := tt.now()
	return func() time.Duration {
		d := tt.now().Sub(start)
		tt.Record(operation, d)
		return d
	}
}

func (tt *Tracker) Record(operation string, d time.Duration) {
	tt.mu.Lock()
	defer tt.mu.Unlock()

	s, ok := tt.ops[operation]
	if !ok {
		tt.ops[operation] = &Summary{Count: 1, Total: d, Min: d, Max: d}
		return
	}
	s.Count++
	s.Total += d
	s.Min = min(s.Min, d)
	s.Max = max(s.Max, d)
}

func (tt *Tracker) Get(operation string) Summary {
	tt.mu.RLock()
	defer tt.mu.RUnlock()

	if s, ok := tt.ops[operation]; ok {
		return *s
	}
	return Summary{}
}

// Operations lists recorded operation names in sorted order
func (tt *Tracker) Operations() []string {
	tt.mu.RLock()
	defer tt.mu.RUnlock()

	names := make([]string, 0, len(tt.ops))
	for name := range tt.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
