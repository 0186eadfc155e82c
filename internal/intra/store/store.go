package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/intra/pkg/intrasdk"
)

var ErrNotFound = errors.New("store: not found")

// Store is the root cache access interface. It exposes one sub-repository per
// cached resource. Drivers (currently only sqlite) implement it.
type Store interface {
	Profiles() Profiles
	Projects() Projects

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction, committing when fn returns nil
	// and rolling back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

// CachedProfile is a profile together with the time it was fetched.
type CachedProfile struct {
	Profile   intrasdk.Profile
	FetchedAt time.Time
}

// CachedProjects is a project listing together with the time it was fetched.
type CachedProjects struct {
	Key       string
	Projects  []intrasdk.Project
	FetchedAt time.Time
}

type Profiles interface {
	// GetProfile returns the cached profile for login, or ErrNotFound.
	GetProfile(ctx context.Context, login string) (CachedProfile, error)

	// PutProfile inserts or replaces the cached profile keyed by its login.
	PutProfile(ctx context.Context, p intrasdk.Profile, fetchedAt time.Time) error

	DeleteProfile(ctx context.Context, login string) error

	// DeleteProfilesFetchedBefore removes stale rows and returns how many went.
	DeleteProfilesFetchedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type Projects interface {
	// GetProjects returns the cached listing for key (a login or a numeric
	// user id), or ErrNotFound.
	GetProjects(ctx context.Context, key string) (CachedProjects, error)

	PutProjects(ctx context.Context, key string, projects []intrasdk.Project, fetchedAt time.Time) error

	DeleteProjectsFetchedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
