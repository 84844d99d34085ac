// Package health serves liveness and readiness probes.
//
// Checks are evaluated in rounds: every round runs all registered checks
// concurrently, each under its own timeout. A check turns unhealthy after
// FailureThreshold consecutive failures and healthy again after
// SuccessThreshold consecutive passes, so a single slow round does not flap
// the probe.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
	"golang.org/x/sync/errgroup"
)

// Check returns nil when the checked component is healthy.
type Check func(ctx context.Context) error

// Kind selects which probe a check belongs to.
type Kind int

const (
	Liveness Kind = iota
	Readiness
)

// Config tunes check evaluation. Zero fields take defaults.
type Config struct {
	FailureThreshold int // default 3
	SuccessThreshold int // default 1
	// Concurrency caps the number of checks running at once. Zero means
	// no limit.
	Concurrency int
}

type state struct {
	name    string
	kind    Kind
	timeout time.Duration
	check   Check

	mu      sync.Mutex
	healthy bool
	lastErr error
	fails   int
	passes  int
}

func (s *state) record(err error, cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastErr = err
	if err != nil {
		s.passes = 0
		s.fails++
		if s.fails >= cfg.FailureThreshold {
			s.healthy = false
		}
		return
	}
	s.fails = 0
	s.passes++
	if s.passes >= cfg.SuccessThreshold {
		s.healthy = true
	}
}

// status returns "" when healthy, otherwise the failure description.
func (s *state) status() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.healthy {
		return ""
	}
	if s.lastErr != nil {
		return s.lastErr.Error()
	}
	return "check is unhealthy"
}

// Health tracks probe state for a service.
type Health struct {
	cfg   Config
	ready atomic.Bool

	mu     sync.RWMutex
	checks []*state
	cancel context.CancelFunc
}

// New creates a Health. The service starts not ready; call SetReady(true)
// once initialization is done.
func New(cfg Config) *Health {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	return &Health{cfg: cfg}
}

// Register adds a check. Checks start healthy.
func (h *Health) Register(kind Kind, name string, timeout time.Duration, check Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, &state{
		name:    name,
		kind:    kind,
		timeout: timeout,
		check:   check,
		healthy: true,
	})
}

func (h *Health) snapshot() []*state {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]*state(nil), h.checks...)
}

// RunOnce evaluates every check concurrently and records the results.
func (h *Health) RunOnce(ctx context.Context) {
	var g errgroup.Group
	if h.cfg.Concurrency > 0 {
		g.SetLimit(h.cfg.Concurrency)
	}
	for _, s := range h.snapshot() {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()
			s.record(s.check(checkCtx), h.cfg)
			return nil
		})
	}
	_ = g.Wait()
}

// Start runs a round immediately and then every interval until Stop or ctx
// cancellation.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	h.mu.Lock()
	if h.cancel != nil {
		h.cancel()
	}
	h.cancel = cancel
	h.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			h.RunOnce(ctx)
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop halts background evaluation. It is safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady toggles the manual readiness flag, for example to drain traffic
// during shutdown.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the service is marked ready and every readiness
// check passes.
func (h *Health) IsReady() bool {
	return h.ready.Load() && len(h.failures(Readiness)) == 0
}

func (h *Health) failures(kind Kind) map[string]string {
	out := make(map[string]string)
	for _, s := range h.snapshot() {
		if s.kind != kind {
			continue
		}
		if msg := s.status(); msg != "" {
			out[s.name] = msg
		}
	}
	return out
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, h.failures(Liveness))
}

// ReadyEndpoint serves /readyz.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failures := h.failures(Readiness)
	if !h.ready.Load() {
		failures["_readiness"] = "service is not ready"
	}
	writeStatus(w, failures)
}

// writeStatus responds 200 {"status":"ok"} or 503 with the failing checks.
func writeStatus(w http.ResponseWriter, failures map[string]string) {
	status, code := "ok", http.StatusOK
	if len(failures) > 0 {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	names := make([]string, 0, len(failures))
	for name := range failures {
		names = append(names, name)
	}
	sort.Strings(names)

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("status", func(e *jx.Encoder) { e.Str(status) })
		if len(names) == 0 {
			return
		}
		e.Field("checks", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				for _, name := range names {
					e.Field(name, func(e *jx.Encoder) { e.Str(failures[name]) })
				}
			})
		})
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(e.Bytes())
}
