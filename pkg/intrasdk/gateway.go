package intrasdk

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"
)

// maxResponseBytes bounds how much of an upstream body is buffered.
const maxResponseBytes = 8 << 20

// Request describes one upstream call. Path is appended to the gateway's
// base URL. Form, when set, is sent as an urlencoded body.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Form   url.Values
}

// Response is a fully buffered upstream response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// DecodeJSON unmarshals the body into v, reporting a malformed response on
// failure.
func (r *Response) DecodeJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return newError(KindMalformedResponse, r.StatusCode, "malformed response", err)
	}
	return nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// Gateway is the thin HTTP layer between the SDK and the intranet. It
// attaches the bearer header, waits on the client-side rate limiter and
// buffers the body. It never retries.
type Gateway struct {
	BaseURL    string
	HTTPClient *http.Client
	Limiter    *rate.Limiter
	Logger     *slog.Logger
}

// NewGateway returns a gateway for baseURL. A nil limiter disables client-side
// throttling.
func NewGateway(baseURL string, httpClient *http.Client, limiter *rate.Limiter, logger *slog.Logger) *Gateway {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: httpClient,
		Limiter:    limiter,
		Logger:     logger,
	}
}

// Get issues an authenticated GET.
func (g *Gateway) Get(ctx context.Context, path string, query url.Values, accessToken string) (*Response, error) {
	return g.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query}, accessToken)
}

// PostForm issues an unauthenticated form POST, as used by the token endpoint.
func (g *Gateway) PostForm(ctx context.Context, path string, form url.Values) (*Response, error) {
	return g.Do(ctx, Request{Method: http.MethodPost, Path: path, Form: form}, "")
}

// Do sends req. Transport failures, rate-limiter cancellation and unreadable
// bodies are reported as KindNetwork. Any HTTP status is returned as a
// Response; interpreting it is left to the caller.
func (g *Gateway) Do(ctx context.Context, req Request, accessToken string) (*Response, error) {
	if g.Limiter != nil {
		if err := g.Limiter.Wait(ctx); err != nil {
			return nil, newError(KindNetwork, 0, "request cancelled while rate limited", err)
		}
	}

	target := g.BaseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Form != nil {
		body = strings.NewReader(req.Form.Encode())
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, newError(KindNetwork, 0, "failed to create request", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Form != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if accessToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := g.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, newError(KindNetwork, 0, "failed to reach the intranet", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, newError(KindNetwork, resp.StatusCode, "failed to read response body", err)
	}

	g.Logger.Debug("intra request",
		"method", method,
		"path", req.Path,
		"status", resp.StatusCode,
		"bytes", len(data),
	)

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}
