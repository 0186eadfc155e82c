package http

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/intra/internal/intra/service"
	"github.com/aussiebroadwan/intra/internal/intra/state"
	"github.com/aussiebroadwan/intra/internal/intra/store"
	"github.com/aussiebroadwan/intra/internal/intra/store/drivers/sqlite"
	"github.com/aussiebroadwan/intra/pkg/httpx"
	"github.com/aussiebroadwan/intra/pkg/intrasdk"
	"github.com/aussiebroadwan/intra/pkg/intrasdk/intratest"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var (
	jdoe = intratest.User{
		ID:    42,
		Login: "jdoe",
		Email: "jdoe@student.42.fr",
		Cursus: []intratest.CursusUser{
			{CursusID: intrasdk.MainCursusID, Level: 4.2},
		},
		Projects: []intratest.Project{
			{ID: 1001, Status: "finished", UpdatedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), ProjectID: 1, Name: "libft"},
		},
	}
	jsmith = intratest.User{ID: 77, Login: "jsmith", Email: "jsmith@student.42.fr"}
)

type harness struct {
	intra  *intratest.Server
	svc    *service.SessionService
	server *httptest.Server
	client *http.Client
}

func newHarness(t *testing.T, cache store.Store) *harness {
	t.Helper()

	intra := intratest.NewServer(t)
	intra.AddUser(jdoe)
	intra.AddUser(jsmith)

	logger := slog.New(slog.DiscardHandler)
	sessions := intrasdk.NewSessionStore(nil, logger)
	client := intrasdk.NewClient(intrasdk.Config{
		Credentials: intrasdk.Credentials{
			ClientID:     intratest.ClientID,
			ClientSecret: intratest.ClientSecret,
			RedirectURI:  intratest.RedirectURI,
		},
		BaseURL:           intra.URL,
		RequestsPerSecond: 1000,
		Burst:             1000,
		Logger:            logger,
	}, sessions)

	svc := &service.SessionService{
		Client:       client,
		Sessions:     sessions,
		States:       state.NewMachine(),
		Logger:       logger,
		LoginTimeout: 5 * time.Second,
	}
	if cache != nil {
		svc.Cache = cache
		svc.CacheTTL = time.Minute
	}

	router := NewRouter("test", "/callback", cache, svc, logger)
	router.ApplyRoutes()

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &harness{
		intra:  intra,
		svc:    svc,
		server: server,
		client: &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
	}
}

func (h *harness) do(t *testing.T, method, path string) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(method, h.server.URL+path, nil)
	require.NoError(t, err)

	resp, err := h.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func (h *harness) login(t *testing.T) {
	t.Helper()

	h.intra.IssueCode("code", "jdoe")
	resp, body := h.do(t, http.MethodGet, "/callback?code=code")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
}

func decodeError(t *testing.T, body []byte) httpx.ErrorResponse {
	t.Helper()

	var e httpx.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &e))
	return e
}

func TestLogin(t *testing.T) {
	h := newHarness(t, nil)

	t.Run("redirects to the consent page", func(t *testing.T) {
		resp, _ := h.do(t, http.MethodGet, "/v1/login")
		require.Equal(t, http.StatusFound, resp.StatusCode)

		loc, err := url.Parse(resp.Header.Get("Location"))
		require.NoError(t, err)
		require.Equal(t, "/oauth/authorize", loc.Path)
		require.Equal(t, intratest.ClientID, loc.Query().Get("client_id"))
		require.Equal(t, intratest.RedirectURI, loc.Query().Get("redirect_uri"))
		require.Equal(t, "code", loc.Query().Get("response_type"))
	})

	t.Run("returns the url as json", func(t *testing.T) {
		resp, body := h.do(t, http.MethodGet, "/v1/login?format=json")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var out map[string]string
		require.NoError(t, json.Unmarshal(body, &out))
		require.Equal(t, h.svc.AuthorizationURL(), out["authorization_url"])
	})
}

func TestCallback(t *testing.T) {
	t.Run("completes the login", func(t *testing.T) {
		h := newHarness(t, nil)
		h.intra.IssueCode("code", "jdoe")

		resp, body := h.do(t, http.MethodGet, "/callback?code=code")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var out LoginResponse
		require.NoError(t, json.Unmarshal(body, &out))
		require.Equal(t, "logged_in", out.Status)
		require.Equal(t, "jdoe", out.Login.Identity.Login)
		require.Equal(t, 42, out.Login.Profile.ID)

		resp, body = h.do(t, http.MethodGet, "/v1/session")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var sess SessionResponse
		require.NoError(t, json.Unmarshal(body, &sess))
		require.True(t, sess.LoggedIn)
		require.NotNil(t, sess.Identity)
		require.Equal(t, 42, sess.Identity.UserID)
	})

	t.Run("denied access is recorded", func(t *testing.T) {
		h := newHarness(t, nil)

		resp, body := h.do(t, http.MethodGet, "/callback?error=access_denied&error_description=The+user+denied")
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, "access_denied", decodeError(t, body).Error)

		auth := h.svc.States.Auth.Current()
		require.Equal(t, state.PhaseError, auth.Phase)
		require.NotEmpty(t, h.svc.Sessions.LastError())
		require.False(t, h.svc.IsLoggedIn())
	})

	t.Run("missing code", func(t *testing.T) {
		h := newHarness(t, nil)

		resp, body := h.do(t, http.MethodGet, "/callback")
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, "invalid_request", decodeError(t, body).Error)
		require.Equal(t, state.PhaseIdle, h.svc.States.Auth.Current().Phase)
	})

	t.Run("rejected code", func(t *testing.T) {
		h := newHarness(t, nil)

		resp, body := h.do(t, http.MethodGet, "/callback?code=bogus")
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, string(intrasdk.KindTokenExchangeFailed), decodeError(t, body).Error)
		require.Equal(t, state.PhaseError, h.svc.States.Auth.Current().Phase)
	})
}

func TestMe(t *testing.T) {
	h := newHarness(t, nil)

	resp, body := h.do(t, http.MethodGet, "/v1/me")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, string(intrasdk.KindNotAuthenticated), decodeError(t, body).Error)

	h.login(t)

	resp, body = h.do(t, http.MethodGet, "/v1/me")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	var me intrasdk.Profile
	require.NoError(t, json.Unmarshal(body, &me))
	require.Equal(t, "jdoe", me.Login)

	calls := h.intra.Calls("/v2/me")
	resp, _ = h.do(t, http.MethodGet, "/v1/me?refresh=true")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, calls+1, h.intra.Calls("/v2/me"))

	resp, body = h.do(t, http.MethodGet, "/v1/me/projects")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var projects ProjectsResponse
	require.NoError(t, json.Unmarshal(body, &projects))
	require.Equal(t, "jdoe", projects.User)
	require.Len(t, projects.Projects, 1)
	require.Equal(t, "libft", projects.Projects[0].Info.Name)
}

func TestUsers(t *testing.T) {
	h := newHarness(t, nil)

	resp, _ := h.do(t, http.MethodGet, "/v1/users/jsmith")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	h.login(t)

	resp, body := h.do(t, http.MethodGet, "/v1/users/JSmith")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var p intrasdk.Profile
	require.NoError(t, json.Unmarshal(body, &p))
	require.Equal(t, 77, p.ID)
	require.Equal(t, state.PhaseSuccess, h.svc.States.Search.Current().Phase)

	resp, body = h.do(t, http.MethodGet, "/v1/users/nobody")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, string(intrasdk.KindUserNotFound), decodeError(t, body).Error)

	resp, body = h.do(t, http.MethodGet, "/v1/users/jdoe/projects")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var projects ProjectsResponse
	require.NoError(t, json.Unmarshal(body, &projects))
	require.Equal(t, "jdoe", projects.User)
	require.Len(t, projects.Projects, 1)

	resp, body = h.do(t, http.MethodGet, "/v1/users/jsmith/projects")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body, &projects))
	require.NotNil(t, projects.Projects)
	require.Empty(t, projects.Projects)
}

func TestSessionExpiry(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)

	h.intra.ExpireAccessTokens()
	h.intra.RejectRefresh(true)

	resp, body := h.do(t, http.MethodGet, "/v1/users/jsmith")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, string(intrasdk.KindSessionExpired), decodeError(t, body).Error)

	resp, body = h.do(t, http.MethodGet, "/v1/session")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var sess SessionResponse
	require.NoError(t, json.Unmarshal(body, &sess))
	require.False(t, sess.LoggedIn)
	require.NotEmpty(t, sess.LastError)
}

func TestUpstreamFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)

	h.intra.ForceStatus("/v2/users/77", http.StatusInternalServerError)

	resp, body := h.do(t, http.MethodGet, "/v1/users/jsmith")
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	require.Equal(t, string(intrasdk.KindRequestFailed), decodeError(t, body).Error)
	require.True(t, h.svc.IsLoggedIn())
}

func TestStateEndpoints(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)

	resp, _ := h.do(t, http.MethodGet, "/v1/users/jsmith")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := h.do(t, http.MethodGet, "/v1/state")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap state.Snapshot
	require.NoError(t, json.Unmarshal(body, &snap))
	require.Equal(t, state.PhaseSuccess, snap.Auth.Phase)
	require.Equal(t, state.PhaseSuccess, snap.Search.Phase)
	require.Equal(t, "jsmith", snap.Search.Value.Login)

	resp, _ = h.do(t, http.MethodPost, "/v1/state/search/reset")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, state.PhaseIdle, h.svc.States.Search.Current().Phase)
	_, selected := h.svc.Sessions.Selected()
	require.False(t, selected)

	resp, body = h.do(t, http.MethodPost, "/v1/state/bogus/reset")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "unknown_slot", decodeError(t, body).Error)
}

func TestLogout(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)

	resp, _ := h.do(t, http.MethodPost, "/v1/logout")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.False(t, h.svc.IsLoggedIn())
	require.Equal(t, state.PhaseIdle, h.svc.States.Auth.Current().Phase)

	resp, _ = h.do(t, http.MethodGet, "/v1/me")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestEvents(t *testing.T) {
	h := newHarness(t, nil)
	h.login(t)

	wsURL := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/v1/events"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var first struct {
		Type  string         `json:"type"`
		State state.Snapshot `json:"state"`
	}
	require.NoError(t, conn.ReadJSON(&first))
	require.Equal(t, "snapshot", first.Type)
	require.Equal(t, state.PhaseSuccess, first.State.Auth.Phase)

	res, _ := h.do(t, http.MethodGet, "/v1/users/jsmith")
	require.Equal(t, http.StatusOK, res.StatusCode)

	type transition struct {
		Type  string                        `json:"type"`
		Slot  string                        `json:"slot"`
		State state.State[intrasdk.Profile] `json:"state"`
	}

	var loading transition
	require.NoError(t, conn.ReadJSON(&loading))
	require.Equal(t, "transition", loading.Type)
	require.Equal(t, state.SlotSearch, loading.Slot)
	require.Equal(t, state.PhaseLoading, loading.State.Phase)

	var done transition
	require.NoError(t, conn.ReadJSON(&done))
	require.Equal(t, state.SlotSearch, done.Slot)
	require.Equal(t, state.PhaseSuccess, done.State.Phase)
	require.Equal(t, 77, done.State.Value.ID)
}

func TestHealth(t *testing.T) {
	t.Run("livez", func(t *testing.T) {
		h := newHarness(t, nil)

		resp, body := h.do(t, http.MethodGet, "/livez")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var out HealthResponse
		require.NoError(t, json.Unmarshal(body, &out))
		require.Equal(t, "ok", out.Status)
		require.Equal(t, "test", out.Version)
	})

	t.Run("readyz with cache", func(t *testing.T) {
		db, err := sqlite.NewStore("file:" + filepath.Join(t.TempDir(), "cache.db"))
		require.NoError(t, err)
		require.NoError(t, db.ApplyMigrations())

		h := newHarness(t, db)

		resp, body := h.do(t, http.MethodGet, "/readyz")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var out HealthResponse
		require.NoError(t, json.Unmarshal(body, &out))
		require.Equal(t, "ok", out.Checks["cache"])
		require.Equal(t, "anonymous", out.Checks["session"])

		require.NoError(t, db.Close())

		resp, body = h.do(t, http.MethodGet, "/readyz")
		require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		require.NoError(t, json.Unmarshal(body, &out))
		require.Equal(t, "degraded", out.Status)
		require.Equal(t, "unreachable", out.Checks["cache"])
	})

	t.Run("readyz without cache", func(t *testing.T) {
		h := newHarness(t, nil)
		h.login(t)

		resp, body := h.do(t, http.MethodGet, "/readyz")
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var out HealthResponse
		require.NoError(t, json.Unmarshal(body, &out))
		require.Equal(t, "disabled", out.Checks["cache"])
		require.Equal(t, "logged_in", out.Checks["session"])
	})
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"blank login", service.ErrLoginRequired, http.StatusBadRequest, "invalid_request"},
		{"unknown slot", state.ErrUnknownSlot, http.StatusNotFound, "unknown_slot"},
		{"stale flow", intrasdk.ErrStaleFlow, http.StatusConflict, "login_superseded"},
		{"not authenticated", intrasdk.ErrNotAuthenticated, http.StatusUnauthorized, "not_authenticated"},
		{"expired", intrasdk.ErrSessionExpired, http.StatusUnauthorized, "session_expired"},
		{"not found", intrasdk.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
		{"network", intrasdk.ErrNetwork, http.StatusBadGateway, "network_error"},
		{"upstream 5xx on exchange", &intrasdk.Error{Kind: intrasdk.KindTokenExchangeFailed, StatusCode: 503}, http.StatusBadGateway, "token_exchange_failed"},
		{"malformed", intrasdk.ErrMalformedResponse, http.StatusBadGateway, "malformed_response"},
		{"other", io.ErrUnexpectedEOF, http.StatusInternalServerError, "server_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, code := statusFor(tt.err)
			require.Equal(t, tt.status, status)
			require.Equal(t, tt.code, code)
		})
	}
}
