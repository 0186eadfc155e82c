package http

import (
	"context"
	"net/http"
	"time"

	"github.com/aussiebroadwan/intra/internal/intra/service"
	"github.com/aussiebroadwan/intra/internal/intra/store"
	"github.com/aussiebroadwan/intra/pkg/httpx"
	"github.com/aussiebroadwan/intra/pkg/slogx"
)

// LivezHandler returns a handler for the /livez liveness endpoint.
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Version: version,
		})
	}
}

// ReadyzHandler reports readiness. The cache, when configured, must answer a
// ping; the session state is informational.
func ReadyzHandler(startTime time.Time, version string, cache store.Store, sessions *service.SessionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		resp := HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Version: version,
			Checks:  map[string]string{"cache": "disabled", "session": "anonymous"},
		}

		if cache != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			if err := cache.Ping(ctx); err != nil {
				slogx.FromContext(r.Context()).Warn("cache ping failed", "err", err)
				resp.Status = "degraded"
				resp.Checks["cache"] = "unreachable"
				status = http.StatusServiceUnavailable
			} else {
				resp.Checks["cache"] = "ok"
			}
		}

		if sessions.IsLoggedIn() {
			resp.Checks["session"] = "logged_in"
		}

		httpx.WriteJSON(w, status, resp)
	}
}
