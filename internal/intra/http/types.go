package http

import (
	"github.com/aussiebroadwan/intra/internal/intra/state"
	"github.com/aussiebroadwan/intra/pkg/intrasdk"
)

// SessionResponse summarises the session for front ends.
type SessionResponse struct {
	LoggedIn  bool               `json:"logged_in"`
	Identity  *intrasdk.Identity `json:"identity,omitempty"`
	LastError string             `json:"last_error,omitempty"`
}

// LoginResponse is returned by a successful callback.
type LoginResponse struct {
	Status string      `json:"status"`
	Login  state.Login `json:"login"`
}

// ProjectsResponse wraps a project listing.
type ProjectsResponse struct {
	User     string             `json:"user"`
	Projects []intrasdk.Project `json:"projects"`
}

// HealthResponse is served by /livez and /readyz.
type HealthResponse struct {
	Status  string            `json:"status"`
	Uptime  string            `json:"uptime"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// EventMessage is one websocket frame on /v1/events.
type EventMessage struct {
	Type  string `json:"type"` // "snapshot" or "transition"
	Slot  string `json:"slot,omitempty"`
	State any    `json:"state"`
}
