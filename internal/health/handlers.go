package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Checker probes every monitored flower host and reports per-host errors.
type Checker interface {
	PingHosts(ctx context.Context, timeout time.Duration) map[string]error
}

// Handler exposes HTTP handlers for health endpoints.
type Handler struct {
	Checker Checker
	Timeout time.Duration
}

// Live reports liveness status.
func (h Handler) Live(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready reports readiness based on flower host probes.
func (h Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.Checker == nil {
		http.Error(w, "dependencies unavailable", http.StatusServiceUnavailable)
		return
	}
	results := h.Checker.PingHosts(r.Context(), h.timeout())
	status := make(map[string]string, len(results))
	failed := false
	for host, err := range results {
		if err != nil {
			status[host] = err.Error()
			failed = true
		} else {
			status[host] = "ok"
		}
	}
	w.Header().Set("Content-Type", "application/json")
	if failed {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	_ = json.NewEncoder(w).Encode(status)
}

func (h Handler) timeout() time.Duration {
	if h.Timeout <= 0 {
		return 500 * time.Millisecond
	}
	return h.Timeout
}
