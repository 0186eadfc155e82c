package intrasdk

import (
	"log/slog"
	"slices"
	"sync"
)

// SessionStore holds the in-memory session: the token pair, the identity and
// profile of the logged-in user, the last searched profile and the last
// authentication error. It is safe for concurrent use.
//
// Every login flow and every logout advances the store's epoch. Writes made
// on behalf of a flow carry the epoch returned by BeginFlow and are rejected
// with ErrStaleFlow once the epoch has moved on, so a slow callback can never
// overwrite a newer session or resurrect one that was logged out.
type SessionStore struct {
	mu sync.RWMutex

	tokens   TokenPair
	identity *Identity
	profile  *Profile
	selected *Profile
	lastErr  string
	epoch    uint64

	persister Persister
	logger    *slog.Logger
}

// NewSessionStore returns an empty store. persister may be nil, in which case
// tokens live only in memory.
func NewSessionStore(persister Persister, logger *slog.Logger) *SessionStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionStore{persister: persister, logger: logger}
}

// Restore loads a previously persisted token pair. It is a no-op without a
// persister.
func (s *SessionStore) Restore() (bool, error) {
	if s.persister == nil {
		return false, nil
	}
	pair, err := s.persister.Load()
	if err != nil {
		return false, err
	}
	if pair.AccessToken == "" {
		return false, nil
	}

	s.mu.Lock()
	s.tokens = pair
	s.mu.Unlock()
	return true, nil
}

// Tokens returns the current pair and whether an access token is present.
func (s *SessionStore) Tokens() (TokenPair, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens, s.tokens.AccessToken != ""
}

func (s *SessionStore) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens.AccessToken
}

func (s *SessionStore) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens.RefreshToken
}

// IsLoggedIn reports whether an access token is held.
func (s *SessionStore) IsLoggedIn() bool {
	return s.AccessToken() != ""
}

// Epoch returns the current session epoch.
func (s *SessionStore) Epoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// BeginFlow starts a new login flow and returns its epoch. Any flow started
// earlier becomes stale.
func (s *SessionStore) BeginFlow() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	return s.epoch
}

// CommitTokens stores pair on behalf of the flow identified by epoch.
func (s *SessionStore) CommitTokens(epoch uint64, pair TokenPair) error {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return ErrStaleFlow
	}
	s.tokens = pair
	s.mu.Unlock()

	s.save(pair)
	return nil
}

// ReplaceTokensIf swaps in pair only while the stored refresh token still
// equals expectedRefresh. It reports whether the swap happened.
func (s *SessionStore) ReplaceTokensIf(expectedRefresh string, pair TokenPair) bool {
	s.mu.Lock()
	if expectedRefresh == "" || s.tokens.RefreshToken != expectedRefresh {
		s.mu.Unlock()
		return false
	}
	s.tokens = pair
	s.mu.Unlock()

	s.save(pair)
	return true
}

// CommitIdentity stores the identity fetched by the flow at epoch.
func (s *SessionStore) CommitIdentity(epoch uint64, id Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return ErrStaleFlow
	}
	s.identity = &id
	return nil
}

// CommitProfile stores the logged-in user's profile fetched at epoch.
func (s *SessionStore) CommitProfile(epoch uint64, p Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return ErrStaleFlow
	}
	p = cloneProfile(p)
	s.profile = &p
	return nil
}

// CommitProjects attaches projects to the stored profile of the logged-in
// user.
func (s *SessionStore) CommitProjects(epoch uint64, projects []Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return ErrStaleFlow
	}
	if s.profile == nil {
		return nil
	}
	s.profile.Projects = slices.Clone(projects)
	return nil
}

// Identity returns the logged-in user's identity, if any.
func (s *SessionStore) Identity() (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return Identity{}, false
	}
	return *s.identity, true
}

// Profile returns a copy of the logged-in user's profile, if any.
func (s *SessionStore) Profile() (Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return Profile{}, false
	}
	return cloneProfile(*s.profile), true
}

// SetSelected records the most recently searched profile.
func (s *SessionStore) SetSelected(p Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p = cloneProfile(p)
	s.selected = &p
}

func (s *SessionStore) Selected() (Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selected == nil {
		return Profile{}, false
	}
	return cloneProfile(*s.selected), true
}

func (s *SessionStore) ClearSelected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = nil
}

// SetLastError records a human-readable authentication error.
func (s *SessionStore) SetLastError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = msg
}

func (s *SessionStore) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

func (s *SessionStore) ClearLastError() {
	s.SetLastError("")
}

// Clear drops everything held for the session and invalidates in-flight
// flows. The last error is kept so it can still be shown after a failed
// login.
func (s *SessionStore) Clear() {
	s.mu.Lock()
	s.clearLocked()
	s.mu.Unlock()

	s.forget()
}

// ClearFlow clears the session only if epoch is still current. It reports
// whether anything was cleared.
func (s *SessionStore) ClearFlow(epoch uint64) bool {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		return false
	}
	s.clearLocked()
	s.mu.Unlock()

	s.forget()
	return true
}

func (s *SessionStore) clearLocked() {
	s.epoch++
	s.tokens = TokenPair{}
	s.identity = nil
	s.profile = nil
	s.selected = nil
}

func (s *SessionStore) save(pair TokenPair) {
	if s.persister == nil {
		return
	}
	if err := s.persister.Save(pair); err != nil {
		s.logger.Warn("failed to persist session tokens", "err", err)
	}
}

func (s *SessionStore) forget() {
	if s.persister == nil {
		return
	}
	if err := s.persister.Delete(); err != nil {
		s.logger.Warn("failed to delete persisted session tokens", "err", err)
	}
}

func cloneProfile(p Profile) Profile {
	p.Projects = slices.Clone(p.Projects)
	p.Skills = slices.Clone(p.Skills)
	return p
}
