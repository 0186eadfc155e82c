package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/intra/internal/intra/state"
	"github.com/aussiebroadwan/intra/internal/intra/store"
	"github.com/aussiebroadwan/intra/pkg/idx"
	"github.com/aussiebroadwan/intra/pkg/intrasdk"
)

var (
	// ErrLoginRequired is returned by SearchUser for a blank login.
	ErrLoginRequired = errors.New("service: login is required")

	errMissingCode = &intrasdk.Error{Kind: intrasdk.KindTokenExchangeFailed, Message: "missing authorization code"}
)

const loginTimedOut = "login timed out, please try again"

// SessionService drives the login flow and the data views on top of the
// intranet client, publishing every transition to the state machine.
type SessionService struct {
	Client   *intrasdk.Client
	Sessions *intrasdk.SessionStore
	States   *state.Machine
	Logger   *slog.Logger

	// Cache is optional. Reads are served from it while younger than CacheTTL.
	Cache    store.Store
	CacheTTL time.Duration

	// LoginTimeout bounds the whole callback handling: exchange, identity and
	// profile. Zero means no bound beyond the caller's context.
	LoginTimeout time.Duration

	// Now is used for cache freshness; defaults to time.Now.
	Now func() time.Time
}

// AuthorizationURL returns the URL that starts a login.
func (s *SessionService) AuthorizationURL() string {
	return s.Client.BuildAuthorizationURL()
}

// IsLoggedIn reports whether the session holds an access token.
func (s *SessionService) IsLoggedIn() bool {
	return s.Sessions.IsLoggedIn()
}

// CurrentProfile returns the logged-in user's profile.
func (s *SessionService) CurrentProfile() (intrasdk.Profile, bool) {
	return s.Sessions.Profile()
}

// HandleAuthCallback completes a login from the authorization code the
// redirect delivered. Any failure clears the half-built session and leaves
// the auth slot in Error. A flow overtaken by a newer login or a logout
// returns ErrStaleFlow and changes nothing.
func (s *SessionService) HandleAuthCallback(ctx context.Context, code string) (state.Login, error) {
	log := s.logger().With("flow_id", idx.New().String())

	ticket := s.States.Auth.Start()
	epoch := s.Sessions.BeginFlow()
	s.Sessions.ClearLastError()

	if s.LoginTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.LoginTimeout)
		defer cancel()
	}

	log.Info("login flow started")
	login, err := s.completeLogin(ctx, epoch, code)
	if errors.Is(err, intrasdk.ErrStaleFlow) {
		log.Info("login flow superseded")
		return state.Login{}, err
	}
	if err != nil {
		if !s.Sessions.ClearFlow(epoch) {
			log.Info("superseded login flow failed", "err", err)
			return state.Login{}, err
		}

		msg := intrasdk.MessageOf(err)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			msg = loginTimedOut
		}
		s.Sessions.SetLastError(msg)
		s.States.Auth.Fail(ticket, intrasdk.KindOf(err), msg)

		log.Warn("login flow failed", "kind", intrasdk.KindOf(err), "err", err)
		return state.Login{}, err
	}

	if s.States.Auth.Succeed(ticket, login) {
		s.States.Profile.Succeed(s.States.Profile.Start(), login.Profile)
	}

	log.Info("login flow completed", "login", login.Identity.Login, "user_id", login.Identity.UserID)
	return login, nil
}

func (s *SessionService) completeLogin(ctx context.Context, epoch uint64, code string) (state.Login, error) {
	if strings.TrimSpace(code) == "" {
		return state.Login{}, errMissingCode
	}

	pair, err := s.Client.ExchangeCodeForTokens(ctx, code)
	if err != nil {
		return state.Login{}, err
	}
	if err := s.Sessions.CommitTokens(epoch, pair); err != nil {
		return state.Login{}, err
	}

	identity, err := s.Client.FetchBasicIdentity(ctx, pair.AccessToken)
	if err != nil {
		return state.Login{}, err
	}
	if err := s.Sessions.CommitIdentity(epoch, identity); err != nil {
		return state.Login{}, err
	}

	profile, err := s.Client.FetchDetailedProfile(ctx, "")
	if err != nil {
		return state.Login{}, err
	}
	if err := s.Sessions.CommitProfile(epoch, profile); err != nil {
		return state.Login{}, err
	}

	s.cacheProfile(ctx, profile)
	return state.Login{Identity: identity, Profile: profile}, nil
}

// HandleAuthError records a callback that carried an error instead of a
// code, e.g. the user denying access.
func (s *SessionService) HandleAuthError(cbErr *intrasdk.CallbackError) {
	ticket := s.States.Auth.Start()
	msg := cbErr.Error()
	s.Sessions.SetLastError(msg)
	s.States.Auth.Fail(ticket, intrasdk.KindTokenExchangeFailed, msg)
	s.logger().Warn("authorization denied", "error", cbErr.Code, "description", cbErr.Description)
}

// SearchUser loads another user's profile into the search slot. A fresh
// cache entry is used unless force is set.
func (s *SessionService) SearchUser(ctx context.Context, login string, force bool) (intrasdk.Profile, error) {
	login = strings.TrimSpace(login)
	ticket := s.States.Search.Start()
	epoch := s.Sessions.Epoch()

	if login == "" {
		s.States.Search.Fail(ticket, "", "enter a login to search")
		return intrasdk.Profile{}, ErrLoginRequired
	}
	if !s.Sessions.IsLoggedIn() {
		fail(s, s.States.Search, ticket, epoch, intrasdk.ErrNotAuthenticated)
		return intrasdk.Profile{}, intrasdk.ErrNotAuthenticated
	}

	if !force {
		if cached, ok := s.cachedProfile(ctx, login); ok {
			s.Sessions.SetSelected(cached)
			s.States.Search.Succeed(ticket, cached)
			return cached, nil
		}
	}

	profile, err := s.Client.FetchDetailedProfile(ctx, login)
	if err != nil {
		fail(s, s.States.Search, ticket, epoch, err)
		return intrasdk.Profile{}, err
	}

	s.cacheProfile(ctx, profile)
	s.Sessions.SetSelected(profile)
	s.States.Search.Succeed(ticket, profile)
	return profile, nil
}

// LoadProjects loads the project list of user (a login or numeric id) into
// the projects slot. An empty user means the logged-in user; the result is
// then also attached to the session's profile.
func (s *SessionService) LoadProjects(ctx context.Context, user string, force bool) ([]intrasdk.Project, error) {
	ticket := s.States.Projects.Start()
	epoch := s.Sessions.Epoch()

	if !s.Sessions.IsLoggedIn() {
		fail(s, s.States.Projects, ticket, epoch, intrasdk.ErrNotAuthenticated)
		return nil, intrasdk.ErrNotAuthenticated
	}

	key := strings.TrimSpace(user)
	self := key == ""
	if self {
		me, err := s.ownProfile(ctx)
		if err != nil {
			fail(s, s.States.Projects, ticket, epoch, err)
			return nil, err
		}
		key = strconv.Itoa(me.ID)
	}

	projects, fromCache := s.cachedProjects(ctx, key)
	if force || !fromCache {
		var err error
		projects, err = s.Client.FetchProjects(ctx, key)
		if err != nil {
			fail(s, s.States.Projects, ticket, epoch, err)
			return nil, err
		}
		s.cacheProjects(ctx, key, projects)
	}

	if self {
		if err := s.Sessions.CommitProjects(epoch, projects); err != nil {
			s.logger().Debug("session changed while loading projects", "err", err)
		}
	}

	s.States.Projects.Succeed(ticket, projects)
	return projects, nil
}

// RefreshProfile reloads the logged-in user's profile.
func (s *SessionService) RefreshProfile(ctx context.Context) (intrasdk.Profile, error) {
	ticket := s.States.Profile.Start()
	epoch := s.Sessions.Epoch()

	profile, err := s.Client.FetchDetailedProfile(ctx, "")
	if err != nil {
		fail(s, s.States.Profile, ticket, epoch, err)
		return intrasdk.Profile{}, err
	}

	if err := s.Sessions.CommitProfile(epoch, profile); err != nil {
		s.States.Profile.Reset()
		return intrasdk.Profile{}, err
	}
	_ = s.Sessions.CommitIdentity(epoch, profile.Identity())
	s.cacheProfile(ctx, profile)
	s.States.Profile.Succeed(ticket, profile)
	return profile, nil
}

// ResumeSession completes a session whose tokens were restored from a
// Persister: it loads the user's profile through the executor and records
// it, with the identity derived from it, as a finished login.
func (s *SessionService) ResumeSession(ctx context.Context) (state.Login, error) {
	ticket := s.States.Auth.Start()
	epoch := s.Sessions.Epoch()

	if !s.Sessions.IsLoggedIn() {
		fail(s, s.States.Auth, ticket, epoch, intrasdk.ErrNotAuthenticated)
		return state.Login{}, intrasdk.ErrNotAuthenticated
	}

	profile, err := s.Client.FetchDetailedProfile(ctx, "")
	if err != nil {
		fail(s, s.States.Auth, ticket, epoch, err)
		s.logger().Warn("could not resume session", "kind", intrasdk.KindOf(err), "err", err)
		return state.Login{}, err
	}

	login := state.Login{Identity: profile.Identity(), Profile: profile}
	if err := s.Sessions.CommitIdentity(epoch, login.Identity); err != nil {
		return state.Login{}, err
	}
	if err := s.Sessions.CommitProfile(epoch, profile); err != nil {
		return state.Login{}, err
	}
	s.cacheProfile(ctx, profile)

	if s.States.Auth.Succeed(ticket, login) {
		s.States.Profile.Succeed(s.States.Profile.Start(), profile)
	}
	s.logger().Info("session resumed", "login", login.Identity.Login, "user_id", login.Identity.UserID)
	return login, nil
}

// ownProfile returns the stored profile of the logged-in user, resuming the
// session first when only its tokens are known.
func (s *SessionService) ownProfile(ctx context.Context) (intrasdk.Profile, error) {
	if me, ok := s.Sessions.Profile(); ok {
		return me, nil
	}
	login, err := s.ResumeSession(ctx)
	if err != nil {
		return intrasdk.Profile{}, err
	}
	return login.Profile, nil
}

// Me returns the logged-in user's profile, loading it when the session was
// restored without one.
func (s *SessionService) Me(ctx context.Context) (intrasdk.Profile, error) {
	if !s.Sessions.IsLoggedIn() {
		return intrasdk.Profile{}, intrasdk.ErrNotAuthenticated
	}
	return s.ownProfile(ctx)
}

// Logout drops the session, the lookup cache and returns every slot to
// Idle. Results still in flight are discarded when they arrive.
func (s *SessionService) Logout() {
	s.Sessions.Clear()
	s.Sessions.ClearLastError()
	s.States.ResetAll()
	s.purgeCache(context.Background())
	s.logger().Info("logged out")
}

// ClearSearch forgets the last searched profile.
func (s *SessionService) ClearSearch() {
	s.Sessions.ClearSelected()
	s.States.Search.Reset()
}

// ClearAuthError dismisses the last authentication error.
func (s *SessionService) ClearAuthError() {
	s.Sessions.ClearLastError()
	if s.States.Auth.Current().Phase == state.PhaseError {
		s.States.Auth.Reset()
	}
}

// ResetSlot returns one slot to Idle, clearing the session data behind it.
func (s *SessionService) ResetSlot(name string) error {
	switch name {
	case state.SlotSearch:
		s.ClearSearch()
		return nil
	case state.SlotAuth:
		s.Sessions.ClearLastError()
		return s.States.Reset(name)
	default:
		return s.States.Reset(name)
	}
}

// expireSession forces a logout after the refresh token stopped working and
// reports it through the auth slot. Only the session at epoch is expired; a
// request that outlived its session leaves a newer one alone.
func (s *SessionService) expireSession(epoch uint64) {
	if !s.Sessions.ClearFlow(epoch) {
		s.logger().Debug("expiry reported for a replaced session")
		return
	}

	msg := intrasdk.ErrSessionExpired.Message
	s.Sessions.SetLastError(msg)
	s.States.Auth.Fail(s.States.Auth.Start(), intrasdk.KindSessionExpired, msg)
	s.purgeCache(context.Background())
	s.logger().Warn("session expired, logged out")
}

// fail settles slot with err. epoch is the session epoch the operation
// started under.
func fail[T any](s *SessionService, slot *state.Slot[T], ticket state.Ticket, epoch uint64, err error) {
	kind := intrasdk.KindOf(err)
	slot.Fail(ticket, kind, intrasdk.MessageOf(err))
	if kind == intrasdk.KindSessionExpired {
		s.expireSession(epoch)
	}
}

func (s *SessionService) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

func (s *SessionService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}
