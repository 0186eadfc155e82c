// Package intratest provides an in-process fake of the intranet's OAuth2 and
// user endpoints for tests.
package intratest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

const (
	ClientID     = "test-client"
	ClientSecret = "test-secret"
	RedirectURI  = "http://localhost:8080/callback"
)

// User is a fake intranet account.
type User struct {
	ID        int
	Login     string
	Email     string
	FirstName string
	LastName  string
	ImageURL  string
	Location  string
	Wallet    int
	Cursus    []CursusUser
	Projects  []Project
}

type CursusUser struct {
	CursusID int
	Level    float64
	Skills   []Skill
}

type Skill struct {
	ID    int
	Name  string
	Level float64
}

type Project struct {
	ID        int
	FinalMark *int
	Status    string
	UpdatedAt time.Time
	ProjectID int
	Name      string
}

// Server is a fake intranet. Tokens are issued as a1/r1, a2/r2, ... in
// order, and only the most recently issued pair of a user is valid.
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	seq           int
	users         map[string]User
	codes         map[string]string
	access        map[string]string
	refresh       map[string]string
	forced        map[string][]int
	calls         map[string]int
	grants        map[string]int
	rejectRefresh bool
	tokenDelay    time.Duration
}

// NewServer starts a fake intranet that is closed when t finishes.
func NewServer(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		users:   make(map[string]User),
		codes:   make(map[string]string),
		access:  make(map[string]string),
		refresh: make(map[string]string),
		forced:  make(map[string][]int),
		calls:   make(map[string]int),
		grants:  make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", s.handleToken)
	mux.HandleFunc("GET /v2/me", s.authed(s.handleMe))
	mux.HandleFunc("GET /v2/users", s.authed(s.handleSearch))
	mux.HandleFunc("GET /v2/users/{id}", s.authed(s.handleUser))
	mux.HandleFunc("GET /v2/users/{key}/projects_users", s.authed(s.handleProjects))

	s.Server = httptest.NewServer(s.intercept(mux))
	t.Cleanup(s.Close)
	return s
}

// AddUser registers or replaces a user.
func (s *Server) AddUser(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.Login] = u
}

// IssueCode makes code redeemable once for login's tokens.
func (s *Server) IssueCode(code, login string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[code] = login
}

// ExpireAccessTokens invalidates every issued access token. Refresh tokens
// stay valid.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = make(map[string]string)
}

// RejectRefresh makes every refresh_token grant fail with invalid_grant.
func (s *Server) RejectRefresh(reject bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectRefresh = reject
}

// SetTokenDelay delays every token endpoint response.
func (s *Server) SetTokenDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokenDelay = d
}

// ForceStatus makes the next len(statuses) requests to path answer with the
// given statuses, in order, before any other handling. A zero status lets
// that request through untouched.
func (s *Server) ForceStatus(path string, statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forced[path] = append(s.forced[path], statuses...)
}

// Calls returns how many requests reached path.
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

// GrantCalls returns how many token requests used grant.
func (s *Server) GrantCalls(grant string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grants[grant]
}

func (s *Server) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[r.URL.Path]++
		var status int
		if queue := s.forced[r.URL.Path]; len(queue) > 0 {
			status = queue[0]
			s.forced[r.URL.Path] = queue[1:]
		}
		s.mu.Unlock()

		if status != 0 {
			writeJSON(w, status, map[string]string{"error": http.StatusText(status)})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authed(next func(http.ResponseWriter, *http.Request, User)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

		s.mu.Lock()
		login, ok := s.access[token]
		user := s.users[login]
		s.mu.Unlock()

		if token == "" || !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "The access token is invalid"})
			return
		}
		next(w, r, user)
	}
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}

	s.mu.Lock()
	delay := s.tokenDelay
	grant := r.PostForm.Get("grant_type")
	s.grants[grant]++
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	if r.PostForm.Get("client_id") != ClientID || r.PostForm.Get("client_secret") != ClientSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var login string
	switch grant {
	case "authorization_code":
		l, ok := s.codes[r.PostForm.Get("code")]
		if !ok || r.PostForm.Get("redirect_uri") == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
		delete(s.codes, r.PostForm.Get("code"))
		login = l
	case "refresh_token":
		l, ok := s.refresh[r.PostForm.Get("refresh_token")]
		if !ok || s.rejectRefresh {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_grant"})
			return
		}
		login = l
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}

	s.revokeLocked(login)
	s.seq++
	accessToken := fmt.Sprintf("a%d", s.seq)
	refreshToken := fmt.Sprintf("r%d", s.seq)
	s.access[accessToken] = login
	s.refresh[refreshToken] = login

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"token_type":    "bearer",
		"expires_in":    7200,
		"scope":         "public",
		"created_at":    time.Now().Unix(),
	})
}

func (s *Server) revokeLocked(login string) {
	for token, l := range s.access {
		if l == login {
			delete(s.access, token)
		}
	}
	for token, l := range s.refresh {
		if l == login {
			delete(s.refresh, token)
		}
	}
}

func (s *Server) handleMe(w http.ResponseWriter, _ *http.Request, me User) {
	writeJSON(w, http.StatusOK, me.document())
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request, _ User) {
	login := r.URL.Query().Get("filter[login]")

	s.mu.Lock()
	u, ok := s.users[login]
	s.mu.Unlock()

	results := []map[string]any{}
	if ok {
		results = append(results, map[string]any{"id": u.ID, "login": u.Login})
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request, _ User) {
	u, ok := s.lookup(r.PathValue("id"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{})
		return
	}
	writeJSON(w, http.StatusOK, u.document())
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request, _ User) {
	u, ok := s.lookup(r.PathValue("key"))
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{})
		return
	}

	size, _ := strconv.Atoi(r.URL.Query().Get("page[size]"))
	if size <= 0 {
		size = 30
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page[number]"))
	if page <= 0 {
		page = 1
	}

	start := min((page-1)*size, len(u.Projects))
	end := min(start+size, len(u.Projects))

	out := make([]map[string]any, 0, end-start)
	for _, p := range u.Projects[start:end] {
		out = append(out, p.document())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) lookup(key string) (User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.users[key]; ok {
		return u, true
	}
	id, err := strconv.Atoi(key)
	if err != nil {
		return User{}, false
	}
	for _, u := range s.users {
		if u.ID == id {
			return u, true
		}
	}
	return User{}, false
}

func (u User) document() map[string]any {
	cursus := make([]map[string]any, 0, len(u.Cursus))
	for _, c := range u.Cursus {
		skills := make([]map[string]any, 0, len(c.Skills))
		for _, sk := range c.Skills {
			skills = append(skills, map[string]any{"id": sk.ID, "name": sk.Name, "level": sk.Level})
		}
		cursus = append(cursus, map[string]any{
			"level":  c.Level,
			"skills": skills,
			"cursus": map[string]any{"id": c.CursusID, "name": fmt.Sprintf("cursus-%d", c.CursusID)},
		})
	}

	projects := make([]map[string]any, 0, len(u.Projects))
	for _, p := range u.Projects {
		projects = append(projects, p.document())
	}

	return map[string]any{
		"id":             u.ID,
		"login":          u.Login,
		"email":          u.Email,
		"first_name":     nullable(u.FirstName),
		"last_name":      nullable(u.LastName),
		"image":          map[string]any{"link": nullable(u.ImageURL)},
		"location":       nullable(u.Location),
		"wallet":         u.Wallet,
		"cursus_users":   cursus,
		"projects_users": projects,
	}
}

func (p Project) document() map[string]any {
	var mark any
	if p.FinalMark != nil {
		mark = *p.FinalMark
	}
	return map[string]any{
		"id":         p.ID,
		"final_mark": mark,
		"status":     p.Status,
		"updated_at": p.UpdatedAt.UTC().Format(time.RFC3339),
		"project":    map[string]any{"id": p.ProjectID, "name": p.Name},
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
