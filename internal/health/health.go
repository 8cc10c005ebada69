package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/jensholdgaard/footy-fa-bot/internal/clock"
)

// Status is the JSON body of the health endpoints.
type Status struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Info      map[string]string `json:"info,omitempty"`
	Timestamp string            `json:"timestamp"`
}

// Checker is a named dependency check. A failing check makes the replica
// not ready.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// Reporter adds a value to the readiness body without affecting the
// status, such as the current free agency phase.
type Reporter struct {
	Name   string
	Report func(ctx context.Context) (string, error)
}

// Handler serves /healthz and /readyz.
type Handler struct {
	mu        sync.RWMutex
	ready     bool
	checkers  []Checker
	reporters []Reporter
	clock     clock.Clock
}

// NewHandler creates a health handler with the given checkers.
func NewHandler(clk clock.Clock, checkers ...Checker) *Handler {
	return &Handler{checkers: checkers, clock: clk}
}

// AddReporter registers r for the readiness body.
func (h *Handler) AddReporter(r Reporter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reporters = append(h.reporters, r)
}

// SetReady marks the replica ready once it holds the Discord session.
func (h *Handler) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
}

func (h *Handler) now() string {
	return h.clock.Now().UTC().Format(time.RFC3339)
}

// LivenessHandler returns HTTP 200 while the process is alive.
func (h *Handler) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Status{Status: "ok", Timestamp: h.now()})
	}
}

// ReadinessHandler returns HTTP 200 when the replica is ready and every
// check passes.
func (h *Handler) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.mu.RLock()
		ready := h.ready
		reporters := h.reporters
		h.mu.RUnlock()

		if !ready {
			writeJSON(w, http.StatusServiceUnavailable, Status{Status: "not_ready", Timestamp: h.now()})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		checks := make(map[string]string, len(h.checkers))
		allOK := true
		for _, c := range h.checkers {
			if err := c.Check(ctx); err != nil {
				checks[c.Name] = err.Error()
				allOK = false
			} else {
				checks[c.Name] = "ok"
			}
		}

		var info map[string]string
		for _, rep := range reporters {
			if info == nil {
				info = make(map[string]string, len(reporters))
			}
			v, err := rep.Report(ctx)
			if err != nil {
				v = "unknown: " + err.Error()
			}
			info[rep.Name] = v
		}

		status := "ready"
		code := http.StatusOK
		if !allOK {
			status = "not_ready"
			code = http.StatusServiceUnavailable
		}

		writeJSON(w, code, Status{
			Status:    status,
			Checks:    checks,
			Info:      info,
			Timestamp: h.now(),
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
