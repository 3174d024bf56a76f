// Package clock abstracts time so wave schedules, gather timeouts, and
// backoff delays can be driven deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// Clock provides the time operations the cascade and FSM packages need.
type Clock interface {
	Now() time.Time
	NowUTC() time.Time
	Since(t time.Time) time.Duration
	Until(t time.Time) time.Duration
	After(d time.Duration) <-chan time.Time
	NewTicker(d time.Duration) Ticker
	NewTimer(d time.Duration) Timer
}

// Ticker wraps time.Ticker for mockability.
type Ticker interface {
	C() <-chan time.Time
	Stop()
	Reset(d time.Duration)
}

// Timer wraps time.Timer for mockability.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
	Reset(d time.Duration) bool
}

type realClock struct{}

// New returns a Clock backed by the system clock.
func New() Clock {
	return realClock{}
}

func (realClock) Now() time.Time                  { return time.Now() }
func (realClock) NowUTC() time.Time                { return time.Now().UTC() }
func (realClock) Since(t time.Time) time.Duration  { return time.Since(t) }
func (realClock) Until(t time.Time) time.Duration  { return time.Until(t) }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (realClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{ticker: time.NewTicker(d)}
}

func (realClock) NewTimer(d time.Duration) Timer {
	return &realTimer{timer: time.NewTimer(d)}
}

type realTicker struct{ ticker *time.Ticker }

func (t *realTicker) C() <-chan time.Time     { return t.ticker.C }
func (t *realTicker) Stop()                   { t.ticker.Stop() }
func (t *realTicker) Reset(d time.Duration)   { t.ticker.Reset(d) }

type realTimer struct{ timer *time.Timer }

func (t *realTimer) C() <-chan time.Time         { return t.timer.C }
func (t *realTimer) Stop() bool                  { return t.timer.Stop() }
func (t *realTimer) Reset(d time.Duration) bool  { return t.timer.Reset(d) }

// Mock is a controllable Clock for tests. Tickers/timers it hands out
// never fire: their channels do not receive, and Advance/Set do not
// affect them.
type Mock struct {
	mu      sync.RWMutex
	current time.Time
}

// NewMock returns a Mock clock fixed at t.
func NewMock(t time.Time) *Mock {
	return &Mock{current: t}
}

func (m *Mock) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

func (m *Mock) NowUTC() time.Time { return m.Now().UTC() }

func (m *Mock) Since(t time.Time) time.Duration { return m.Now().Sub(t) }
func (m *Mock) Until(t time.Time) time.Duration { return t.Sub(m.Now()) }

// After resolves immediately with current-time-plus-d; tests that need the
// delay to be observed should read waveSchedule timestamps instead of
// blocking on this channel.
func (m *Mock) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- m.Now().Add(d)
	return ch
}

func (m *Mock) NewTicker(d time.Duration) Ticker {
	return &mockTicker{ch: make(chan time.Time)}
}

func (m *Mock) NewTimer(d time.Duration) Timer {
	return &mockTimer{ch: make(chan time.Time, 1)}
}

// Set pins the mock clock to t.
func (m *Mock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = t
}

// Advance moves the mock clock forward by d.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.current.Add(d)
}

type mockTicker struct{ ch chan time.Time }

func (t *mockTicker) C() <-chan time.Time   { return t.ch }
func (t *mockTicker) Stop()                 {}
func (t *mockTicker) Reset(d time.Duration) {}

type mockTimer struct{ ch chan time.Time }

func (t *mockTimer) C() <-chan time.Time        { return t.ch }
func (t *mockTimer) Stop() bool                 { return true }
func (t *mockTimer) Reset(d time.Duration) bool { return true }
