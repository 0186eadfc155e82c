package http

import (
	"net/http"
	"strconv"

	"github.com/aussiebroadwan/intra/internal/intra/service"
	"github.com/aussiebroadwan/intra/pkg/httpx"
	"github.com/aussiebroadwan/intra/pkg/intrasdk"
)

// UsersHandler serves profile and project lookups.
type UsersHandler struct {
	Sessions *service.SessionService
}

// HandleMe returns the logged-in user's profile. ?refresh=true reloads it
// from the intranet first.
func (h *UsersHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	if flag(r, "refresh") {
		profile, err := h.Sessions.RefreshProfile(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, profile)
		return
	}

	profile, err := h.Sessions.Me(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, profile)
}

func (h *UsersHandler) HandleMyProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.Sessions.LoadProjects(r.Context(), "", flag(r, "force"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	user := ""
	if me, ok := h.Sessions.CurrentProfile(); ok {
		user = me.Login
	}
	httpx.WriteJSON(w, http.StatusOK, ProjectsResponse{User: user, Projects: nonNil(projects)})
}

// HandleUser searches another user by login. ?force=true bypasses the cache.
func (h *UsersHandler) HandleUser(w http.ResponseWriter, r *http.Request) {
	profile, err := h.Sessions.SearchUser(r.Context(), r.PathValue("login"), flag(r, "force"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, profile)
}

// HandleUserProjects lists the projects of a login or numeric user id.
func (h *UsersHandler) HandleUserProjects(w http.ResponseWriter, r *http.Request) {
	user := r.PathValue("login")
	projects, err := h.Sessions.LoadProjects(r.Context(), user, flag(r, "force"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, ProjectsResponse{User: user, Projects: nonNil(projects)})
}

func flag(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}

func nonNil(projects []intrasdk.Project) []intrasdk.Project {
	if projects == nil {
		return []intrasdk.Project{}
	}
	return projects
}
