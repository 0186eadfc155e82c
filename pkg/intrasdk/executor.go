package intrasdk

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
)

// Refresher renews the session's tokens and reports whether it succeeded.
type Refresher interface {
	Refresh(ctx context.Context) bool
}

// Executor runs authenticated requests against the intranet. On a 401 it
// asks the refresher for new tokens exactly once and retries exactly once;
// it never refreshes on any other status.
type Executor struct {
	gateway   *Gateway
	store     *SessionStore
	refresher Refresher
	logger    *slog.Logger
}

func NewExecutor(gateway *Gateway, store *SessionStore, refresher Refresher, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		gateway:   gateway,
		store:     store,
		refresher: refresher,
		logger:    logger,
	}
}

// Do sends req with the current access token.
//
// Results:
//   - no access token: KindNotAuthenticated, nothing is sent
//   - 2xx (first or retried attempt): the response
//   - 401 and the refresh fails: KindSessionExpired, stored tokens untouched
//   - any other non-2xx, including a second 401: KindRequestFailed with the status
func (e *Executor) Do(ctx context.Context, req Request) (*Response, error) {
	token := e.store.AccessToken()
	if token == "" {
		return nil, newError(KindNotAuthenticated, 0, "not authenticated", nil)
	}

	resp, err := e.gateway.Do(ctx, req, token)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		e.logger.Debug("access token rejected, refreshing", "path", req.Path)

		if !e.refresher.Refresh(ctx) {
			return nil, newError(KindSessionExpired, http.StatusUnauthorized, "session expired, please log in again", nil)
		}

		token = e.store.AccessToken()
		if token == "" {
			return nil, newError(KindNotAuthenticated, 0, "not authenticated", nil)
		}

		resp, err = e.gateway.Do(ctx, req, token)
		if err != nil {
			return nil, err
		}
	}

	if !isSuccess(resp.StatusCode) {
		return nil, newError(KindRequestFailed, resp.StatusCode, "request failed", nil)
	}
	return resp, nil
}

// Get is a convenience wrapper around Do for GET requests.
func (e *Executor) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return e.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
}
