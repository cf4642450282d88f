// Package health provides the liveness and readiness probes of the
// recognition server.
//
// Two endpoints are exposed:
//
//   - /healthz — liveness probe; always returns 200 OK.
//   - /readyz  — readiness probe; returns 200 unless a registered
//     [Checker] fails.
//
// A check may also report a degraded condition via [Degraded]: it shows
// up in the response body but keeps the probe passing, which is how the
// fallback embedder stays in service. Responses are JSON objects with a
// top-level "status" field ("ok", "degraded" or "fail") and a "checks"
// map containing the result of each named checker.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"
)

// probeTimeout bounds one readiness check; a dependency that hangs
// longer counts as down.
const probeTimeout = 5 * time.Second

// Checker probes one dependency under a short name ("store", "model").
// Check returns nil when healthy, an error wrapped with [Degraded] when
// impaired but serviceable, and a plain error otherwise. It must
// respect context cancellation.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

// degradedError marks a check result that is impaired but not fatal.
type degradedError struct{ err error }

func (d degradedError) Error() string { return d.err.Error() }
func (d degradedError) Unwrap() error { return d.err }

// Degraded wraps err so Readyz reports the check as degraded without
// failing the probe. Wrapping nil returns nil.
func Degraded(err error) error {
	if err == nil {
		return nil
	}
	return degradedError{err: err}
}

// tier orders check outcomes from healthy to down; the probe reports
// the worst tier any check reached.
type tier int

const (
	tierOK tier = iota
	tierDegraded
	tierFail
)

func (t tier) String() string {
	switch t {
	case tierDegraded:
		return "degraded"
	case tierFail:
		return "fail"
	default:
		return "ok"
	}
}

// result is the JSON response body for health endpoints.
type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the probe endpoints. The checker list is fixed at
// construction, so the handler is safe for concurrent use.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler]. Readyz evaluates the checkers sequentially
// in the order given.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Healthz reports liveness: a process that can serve HTTP is alive.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: tierOK.String()})
}

// Readyz evaluates every checker and reports the worst outcome. A
// failed check yields 503; degraded checks appear in the body but keep
// the probe passing.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	worst := tierOK
	checks := make(map[string]string, len(h.checkers))

	for _, c := range h.checkers {
		t, detail := h.evaluate(r.Context(), c)
		checks[c.Name] = detail
		if t > worst {
			worst = t
		}
	}

	code := http.StatusOK
	if worst == tierFail {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, result{Status: worst.String(), Checks: checks})
}

// evaluate runs one check under the probe timeout and folds the error
// into a tier plus the detail string shown in the response body.
func (h *Handler) evaluate(ctx context.Context, c Checker) (tier, string) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	err := c.Check(ctx)
	if err == nil {
		return tierOK, "ok"
	}
	var deg degradedError
	if errors.As(err, &deg) {
		return tierDegraded, "degraded: " + deg.Error()
	}
	return tierFail, "fail: " + err.Error()
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// writeJSON marshals v up front so an encoding failure turns into a
// clean 500 instead of a half-written body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}
