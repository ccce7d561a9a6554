package utils

import (
	"sort"
	"sync"
	"time"
)

// Clock abstracts wall-clock access so periodic workers can be driven by tests
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker is the subset of time.Ticker used by workers
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// RealClock is a Clock backed by the time package
type RealClock struct{}

func (RealClock) Now() time.Time { return UTCNow() }

func (RealClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }

// FakeClock is a manually advanced Clock. Tickers fire synchronously from Advance,
// dropping ticks the consumer has not yet received, like time.Ticker does.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

// NewFakeClock returns a FakeClock positioned at start
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start.UTC()}
}

func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *FakeClock) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("non-positive interval for NewTicker")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTicker{
		clock:  f,
		period: d,
		next:   f.now.Add(d),
		ch:     make(chan time.Time, 1),
	}
	f.tickers = append(f.tickers, t)
	return t
}

// Set moves the clock to t without firing tickers
func (f *FakeClock) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t.UTC()
}

// Advance moves the clock forward and fires every ticker whose period elapsed
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	type firing struct {
		t  *fakeTicker
		at time.Time
	}
	var fires []firing
	for _, t := range f.tickers {
		if t.stopped {
			continue
		}
		for !t.next.After(target) {
			fires = append(fires, firing{t: t, at: t.next})
			t.next = t.next.Add(t.period)
		}
	}
	f.now = target
	f.mu.Unlock()

	sort.SliceStable(fires, func(i, j int) bool { return fires[i].at.Before(fires[j].at) })
	for _, fr := range fires {
		select {
		case fr.t.ch <- fr.at:
		default:
		}
	}
}

// TickerCount returns the number of live tickers, used to wait for workers to start
func (f *FakeClock) TickerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.tickers {
		if !t.stopped {
			n++
		}
	}
	return n
}

type fakeTicker struct {
	clock   *FakeClock
	period  time.Duration
	next    time.Time
	ch      chan time.Time
	stopped bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }

func (t *fakeTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.stopped = true
}
