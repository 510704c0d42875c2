// Package health exposes liveness and readiness endpoints backed by
// periodically sampled checks. A check flips to failing only after several
// consecutive errors and recovers on the first success, which keeps a
// transient blip from bouncing the service out of rotation.
package health

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
)

// CheckFunc samples one dependency. A nil return means the dependency is fine.
type CheckFunc func(ctx context.Context) error

const (
	defaultFailureStreak = 3
	defaultSuccessStreak = 1
)

// monitor wraps a CheckFunc with streak tracking. sample is only ever called
// from the one goroutine that owns this monitor, so failStreak and passStreak
// stay unsynchronized; passing and lastErr cross goroutines and are atomic.
type monitor struct {
	name    string
	timeout time.Duration
	fn      CheckFunc

	passing atomic.Bool
	lastErr atomic.Pointer[error]

	failStreak int
	passStreak int
}

func newMonitor(name string, timeout time.Duration, fn CheckFunc) *monitor {
	m := &monitor{name: name, timeout: timeout, fn: fn}
	m.passing.Store(true)
	return m
}

// sample runs the check once and folds the result into the streaks.
func (m *monitor) sample(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.fn(ctx)
	m.lastErr.Store(&err)

	if err != nil {
		m.passStreak = 0
		if m.failStreak++; m.failStreak >= defaultFailureStreak {
			m.passing.Store(false)
		}
		return
	}
	m.failStreak = 0
	if m.passStreak++; m.passStreak >= defaultSuccessStreak {
		m.passing.Store(true)
	}
}

func (m *monitor) ok() bool { return m.passing.Load() }

func (m *monitor) failure() error {
	if p := m.lastErr.Load(); p != nil {
		return *p
	}
	return nil
}

// loop samples the monitor on a ticker until ctx is cancelled. The first
// sample happens immediately so endpoints reflect reality before the first
// tick.
func (m *monitor) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.sample(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample(ctx)
		}
	}
}

// Health aggregates liveness and readiness monitors and serves them over
// HTTP. Readiness additionally requires an explicit SetReady(true); shutdown
// paths call SetReady(false) to drain traffic before closing listeners.
type Health struct {
	ready atomic.Bool

	mu        sync.RWMutex
	liveness  []*monitor
	readiness []*monitor
	cancel    context.CancelFunc
}

func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a check for the liveness endpoint, such as a
// goroutine leak detector.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveness = append(h.liveness, newMonitor(name, timeout, fn))
}

// AddReadinessCheck registers a check for the readiness endpoint, such as
// database or broker connectivity.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readiness = append(h.readiness, newMonitor(name, timeout, fn))
}

// Start launches one sampling goroutine per registered monitor. Register all
// checks before calling Start.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	all := append(append([]*monitor(nil), h.liveness...), h.readiness...)
	h.mu.Unlock()

	for _, m := range all {
		go m.loop(ctx, interval)
	}
}

// Stop cancels the sampling goroutines. Safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady flips the manual readiness gate.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the gate is open and every readiness monitor is
// currently passing.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	h.mu.RLock()
	monitors := h.readiness
	h.mu.RUnlock()

	for _, m := range monitors {
		if !m.ok() {
			return false
		}
	}
	return true
}

// LiveEndpoint serves the liveness report: 200 while every liveness monitor
// passes, 503 with per-check errors otherwise.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	monitors := append([]*monitor(nil), h.liveness...)
	h.mu.RUnlock()

	writeReport(w, gatherFailures(monitors))
}

// ReadyEndpoint serves the readiness report. The manual gate shows up as a
// synthetic "_readiness" failure so a drain is distinguishable from a broken
// dependency.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	gateOpen := h.ready.Load()

	h.mu.RLock()
	monitors := append([]*monitor(nil), h.readiness...)
	h.mu.RUnlock()

	failures := gatherFailures(monitors)
	if !gateOpen {
		failures["_readiness"] = "service is not ready"
	}
	writeReport(w, failures)
}

// gatherFailures reports the stored error of each non-passing monitor. It
// never re-runs checks; endpoints stay cheap no matter how often they are
// polled.
func gatherFailures(monitors []*monitor) map[string]string {
	failures := make(map[string]string)
	for _, m := range monitors {
		if m.ok() {
			continue
		}
		if err := m.failure(); err != nil {
			failures[m.name] = err.Error()
		} else {
			failures[m.name] = "check is unhealthy"
		}
	}
	return failures
}

func writeReport(w http.ResponseWriter, failures map[string]string) {
	status := http.StatusOK
	if len(failures) > 0 {
		status = http.StatusServiceUnavailable
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		if status == http.StatusOK {
			e.Field("status", func(e *jx.Encoder) { e.Str("ok") })
			return
		}
		e.Field("status", func(e *jx.Encoder) { e.Str("unhealthy") })
		e.Field("checks", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				for name, msg := range failures {
					e.Field(name, func(e *jx.Encoder) { e.Str(msg) })
				}
			})
		})
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
