package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/intra/internal/intra/service"
	"github.com/aussiebroadwan/intra/pkg/httpx"
	"github.com/aussiebroadwan/intra/pkg/intrasdk"
	"github.com/aussiebroadwan/intra/pkg/slogx"
)

// AuthHandler serves the login redirect, the OAuth callback and logout.
type AuthHandler struct {
	Sessions *service.SessionService
}

// HandleLogin redirects the browser to the intranet's consent page. With
// ?format=json the URL is returned instead.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	authURL := h.Sessions.AuthorizationURL()

	if r.URL.Query().Get("format") == "json" {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"authorization_url": authURL})
		return
	}

	httpx.NoCache(w)
	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleCallback completes the login the intranet redirected back to.
func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	log := slogx.FromContext(r.Context())

	code, err := intrasdk.CodeFromQuery(r.URL.Query())
	if err != nil {
		var cbErr *intrasdk.CallbackError
		if errors.As(err, &cbErr) {
			h.Sessions.HandleAuthError(cbErr)
			httpx.WriteError(w, http.StatusBadRequest, cbErr.Code, cbErr.Error())
			return
		}
		log.Debug("callback without code")
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	login, err := h.Sessions.HandleAuthCallback(r.Context(), code)
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, LoginResponse{Status: "logged_in", Login: login})
}

// HandleLogout drops the session.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.Sessions.Logout()
	httpx.NoCache(w)
	w.WriteHeader(http.StatusNoContent)
}

// HandleSession reports whether someone is logged in and the last
// authentication error.
func (h *AuthHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	resp := SessionResponse{
		LoggedIn:  h.Sessions.IsLoggedIn(),
		LastError: h.Sessions.Sessions.LastError(),
	}
	if id, ok := h.Sessions.Sessions.Identity(); ok {
		resp.Identity = &id
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}
