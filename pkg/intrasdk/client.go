package intrasdk

import (
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the public intranet API.
	DefaultBaseURL = "https://api.intra.42.fr"

	// MainCursusID is the cursus whose level and skills are reported on a
	// Profile.
	MainCursusID = 21

	DefaultRequestsPerSecond = 2
	DefaultBurst             = 2
	DefaultMaxPages          = 10
	DefaultTimeout           = 15 * time.Second

	projectsPageSize = 100

	authorizePath = "/oauth/authorize"
	tokenPath     = "/oauth/token"
	mePath        = "/v2/me"
	usersPath     = "/v2/users"
)

// Config configures a Client. Zero values fall back to the package defaults.
type Config struct {
	Credentials Credentials

	BaseURL           string
	HTTPClient        *http.Client
	RequestsPerSecond float64
	Burst             int
	MaxPages          int
	Logger            *slog.Logger
}

// Client talks to the intranet on behalf of a single session. Unauthenticated
// calls (authorization URL, token exchange, refresh) go straight through the
// gateway; everything else goes through the executor so that an expired
// access token is refreshed once and the call retried once.
type Client struct {
	creds        Credentials
	authorizeURL string
	maxPages     int

	gateway  *Gateway
	executor *Executor
	store    *SessionStore
	logger   *slog.Logger

	refreshGroup singleflight.Group
}

// NewClient wires a client, its gateway and its executor around store.
func NewClient(cfg Config, store *SessionStore) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := cfg.Logger.With("component", "intrasdk")

	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	gateway := NewGateway(cfg.BaseURL, cfg.HTTPClient, limiter, logger)

	c := &Client{
		creds:        cfg.Credentials,
		authorizeURL: gateway.BaseURL + authorizePath,
		maxPages:     cfg.MaxPages,
		gateway:      gateway,
		store:        store,
		logger:       logger,
	}
	c.executor = NewExecutor(gateway, store, c, logger)
	return c
}

// Store returns the session store the client reads and refreshes.
func (c *Client) Store() *SessionStore { return c.store }

// Executor returns the authorized executor used by the fetch methods.
func (c *Client) Executor() *Executor { return c.executor }
