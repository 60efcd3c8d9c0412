package statusapi

import (
	"context"
	"net/http"
	"sort"
	"time"

	"metatiled/internal/httpkit"
	"metatiled/internal/pkg/logger"
)

const checkTimeout = 5 * time.Second

type Handler struct {
	name   string
	stats  StatsSource
	checks map[string]Check
	log    *logger.Logger
}

// Health reports liveness. With ?deep=true every dependency check runs and
// a failing one turns the status to degraded.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	health := map[string]any{
		"status":  "ok",
		"service": h.name,
	}

	if r.URL.Query().Get("deep") == "true" {
		checks := h.deepHealthCheck(ctx)
		health["checks"] = checks

		for name, check := range checks {
			if check["status"] != "ok" {
				health["status"] = "degraded"
				h.log.FromContext(ctx).Warn("health check degraded", "check", name, "error", check["error"])
				break
			}
		}
	}

	status := http.StatusOK
	if health["status"] != "ok" {
		status = http.StatusServiceUnavailable
	}
	httpkit.WriteJSON(w, status, health)
}

func (h *Handler) deepHealthCheck(ctx context.Context) map[string]map[string]any {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]map[string]any, len(names))
	for _, name := range names {
		start := time.Now()
		result := map[string]any{"status": "ok"}

		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		if err := h.checks[name](checkCtx); err != nil {
			result["status"] = "error"
			result["error"] = err.Error()
		}
		cancel()

		result["latency_ms"] = time.Since(start).Milliseconds()
		results[name] = result
	}
	return results
}

// Stats reports the protocol server counters.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		httpkit.WriteErr(w, http.StatusServiceUnavailable, "UNAVAILABLE", "protocol server not running", nil)
		return
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{
		"service": h.name,
		"stats":   h.stats.Stats(),
	})
}
