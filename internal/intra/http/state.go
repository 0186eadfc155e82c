package http

import (
	"net/http"

	"github.com/aussiebroadwan/intra/internal/intra/service"
	"github.com/aussiebroadwan/intra/pkg/httpx"
)

// StateHandler exposes the UI state slots.
type StateHandler struct {
	Sessions *service.SessionService
}

func (h *StateHandler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, h.Sessions.States.Snapshot())
}

// HandleReset returns one slot to Idle.
func (h *StateHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.ResetSlot(r.PathValue("slot")); err != nil {
		writeError(w, r, err)
		return
	}
	httpx.NoCache(w)
	w.WriteHeader(http.StatusNoContent)
}
