package throughput

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	interval time.Duration = time.Second

	// per-window samples we keep, older ones are dropped
	maxSamples = 60
)

type Throughput struct {
	lock sync.Mutex
	now  func() time.Time

	count       int
	windowStart time.Time

	Unit  string    `json:"unit"`
	Total int       `json:"total"`
	Start time.Time `json:"start"`
	Stop  time.Time `json:"stop"`
	Data  []int     `json:"data"`
}

func New(unit string) *Throughput {
	return newWithClock(unit, time.Now)
}

func newWithClock(unit string, now func() time.Time) *Throughput {
	start := now().UTC()
	return &Throughput{
		now:         now,
		windowStart: start,
		Unit:        unit,
		Start:       start,
		Stop:        start,
		Data:        []int{},
	}
}

func (t *Throughput) Observe(n int) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.roll()
	t.count += n
	t.Total += n
}

func (t *Throughput) Reset() {
	t.lock.Lock()
	defer t.lock.Unlock()

	start := t.now().UTC()
	t.count = 0
	t.Total = 0
	t.windowStart = start
	t.Start = start
	t.Stop = start
	t.Data = []int{}
}

// String is a json snapshot of the finished windows and the running total
func (t *Throughput) String() json.RawMessage {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.roll()
	snapshot, _ := json.Marshal(t)

	return snapshot
}

// close every window that has ended since we last looked
func (t *Throughput) roll() {
	now := t.now().UTC()
	for i := 0; now.Sub(t.windowStart) >= interval; i++ {
		if i >= maxSamples {
			// we've been idle for longer than we keep history
			t.windowStart = now
			break
		}

		t.Data = append(t.Data, t.count)
		t.count = 0
		t.windowStart = t.windowStart.Add(interval)
		t.Stop = t.windowStart
	}

	if len(t.Data) > maxSamples {
		t.Data = t.Data[len(t.Data)-maxSamples:]
	}
}
