package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/intra/internal/intra/service"
	"github.com/aussiebroadwan/intra/internal/intra/store"
	"github.com/aussiebroadwan/intra/pkg/httpx"
	"github.com/aussiebroadwan/intra/pkg/slogx"
	"github.com/gorilla/websocket"
)

// DefaultCallbackPath is used when the redirect URI has no path.
const DefaultCallbackPath = "/callback"

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	callbackPath string
	startTime    time.Time
	logger       *slog.Logger

	cache    store.Store
	Sessions *service.SessionService
}

// NewRouter builds a router serving sessions. callbackPath is the path part
// of the registered redirect URI; cache may be nil.
func NewRouter(
	buildVersion, callbackPath string,
	cache store.Store,
	sessions *service.SessionService,
	logger *slog.Logger,
) *Router {
	if callbackPath == "" || callbackPath == "/" {
		callbackPath = DefaultCallbackPath
	}

	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		callbackPath: callbackPath,
		startTime:    time.Now(),
		logger:       logger,
		cache:        cache,
		Sessions:     sessions,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerUsers()
	r.registerState()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{Sessions: r.Sessions}

	r.Mux.Handle("GET /v1/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIP(httpx.LoginLimit),
		),
	)

	r.Mux.Handle("GET "+r.callbackPath,
		httpx.Chain(http.HandlerFunc(h.HandleCallback),
			httpx.RateLimitByIP(httpx.LoginLimit),
		),
	)

	r.Mux.Handle("POST /v1/logout", http.HandlerFunc(h.HandleLogout))
	r.Mux.Handle("GET /v1/session", http.HandlerFunc(h.HandleSession))
}

func (r *Router) registerUsers() {
	h := &UsersHandler{Sessions: r.Sessions}
	lookup := httpx.RateLimitByIP(httpx.LookupLimit)

	r.Mux.Handle("GET /v1/me", httpx.Chain(http.HandlerFunc(h.HandleMe), lookup))
	r.Mux.Handle("GET /v1/me/projects", httpx.Chain(http.HandlerFunc(h.HandleMyProjects), lookup))
	r.Mux.Handle("GET /v1/users/{login}", httpx.Chain(http.HandlerFunc(h.HandleUser), lookup))
	r.Mux.Handle("GET /v1/users/{login}/projects", httpx.Chain(http.HandlerFunc(h.HandleUserProjects), lookup))
}

func (r *Router) registerState() {
	h := &StateHandler{Sessions: r.Sessions}
	events := &EventsHandler{
		States:   r.Sessions.States,
		Upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 4096},
	}

	r.Mux.Handle("GET /v1/state",
		httpx.Chain(http.HandlerFunc(h.HandleSnapshot),
			httpx.RateLimitByIP(httpx.ProbeLimit),
		),
	)
	r.Mux.Handle("POST /v1/state/{slot}/reset", http.HandlerFunc(h.HandleReset))
	r.Mux.Handle("GET /v1/events", events)
}

func (r *Router) registerSystem() {
	probe := httpx.RateLimitByIP(httpx.ProbeLimit)

	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion), probe),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.cache, r.Sessions), probe),
	)
}
