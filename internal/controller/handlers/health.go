package handlers

import "net/http"

// Healthz is a liveness probe.
// It returns 200 OK if the server is running.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	h.respondJson(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Readyz is a readiness probe.
// It gates on the store and on the engine's startup resync. The container
// daemon is reported but never fails the probe: intents are still accepted
// while it is away.
func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.httpError(w, "Database unavailable", http.StatusServiceUnavailable)
		return
	}
	if h.started != nil {
		select {
		case <-h.started:
		default:
			h.httpError(w, "Engine starting", http.StatusServiceUnavailable)
			return
		}
	}
	body := map[string]string{"status": "ready"}
	if h.runtime != nil {
		body["runtime"] = "available"
		if err := h.runtime.Ping(r.Context()); err != nil {
			h.logger.Warn("container runtime unavailable", "error", err)
			body["runtime"] = "unavailable"
		}
	}
	h.respondJson(w, http.StatusOK, body)
}
