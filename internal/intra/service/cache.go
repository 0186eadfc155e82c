package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/aussiebroadwan/intra/internal/intra/store"
	"github.com/aussiebroadwan/intra/pkg/intrasdk"
)

func (s *SessionService) cacheEnabled() bool {
	return s.Cache != nil && s.CacheTTL > 0
}

func (s *SessionService) cachedProfile(ctx context.Context, login string) (intrasdk.Profile, bool) {
	if !s.cacheEnabled() {
		return intrasdk.Profile{}, false
	}

	cached, err := s.Cache.Profiles().GetProfile(ctx, login)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger().Warn("profile cache read failed", "login", login, "err", err)
		}
		return intrasdk.Profile{}, false
	}
	if s.now().Sub(cached.FetchedAt) > s.CacheTTL {
		return intrasdk.Profile{}, false
	}
	return cached.Profile, true
}

func (s *SessionService) cachedProjects(ctx context.Context, key string) ([]intrasdk.Project, bool) {
	if !s.cacheEnabled() {
		return nil, false
	}

	cached, err := s.Cache.Projects().GetProjects(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger().Warn("projects cache read failed", "key", key, "err", err)
		}
		return nil, false
	}
	if s.now().Sub(cached.FetchedAt) > s.CacheTTL {
		return nil, false
	}
	return cached.Projects, true
}

// cacheProfile stores p and, when the profile carries them, its projects
// under both the login and the numeric id.
func (s *SessionService) cacheProfile(ctx context.Context, p intrasdk.Profile) {
	if !s.cacheEnabled() {
		return
	}

	now := s.now()
	err := s.Cache.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Profiles().PutProfile(ctx, p, now); err != nil {
			return err
		}
		if len(p.Projects) == 0 {
			return nil
		}
		for _, key := range []string{p.Login, strconv.Itoa(p.ID)} {
			if err := tx.Projects().PutProjects(ctx, key, p.Projects, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logger().Warn("profile cache write failed", "login", p.Login, "err", err)
	}
}

func (s *SessionService) cacheProjects(ctx context.Context, key string, projects []intrasdk.Project) {
	if !s.cacheEnabled() {
		return
	}
	if err := s.Cache.Projects().PutProjects(ctx, key, projects, s.now()); err != nil {
		s.logger().Warn("projects cache write failed", "key", key, "err", err)
	}
}

// purgeAll is later than any fetched-at time the cache can hold.
var purgeAll = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

// purgeCache drops every cached row. Cached lookups belong to the session
// that fetched them and must not outlive it.
func (s *SessionService) purgeCache(ctx context.Context) {
	if s.Cache == nil {
		return
	}
	err := s.Cache.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.Profiles().DeleteProfilesFetchedBefore(ctx, purgeAll); err != nil {
			return err
		}
		_, err := tx.Projects().DeleteProjectsFetchedBefore(ctx, purgeAll)
		return err
	})
	if err != nil {
		s.logger().Warn("cache purge failed", "err", err)
	}
}
