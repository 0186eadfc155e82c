package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/aussiebroadwan/intra/internal/intra/store"
	"github.com/aussiebroadwan/intra/pkg/intrasdk"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "cache.db") + "?_pragma=busy_timeout(5000)"
	s, err := NewStore(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations())
	return s
}

func TestApplyMigrationsIsIdempotent(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	require.NoError(t, s.ApplyMigrations())
	require.NoError(t, s.Ping(context.Background()))
}

func TestProfiles(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Profiles().GetProfile(ctx, "jdoe")
	require.ErrorIs(t, err, store.ErrNotFound)

	level := 4.2
	first := "John"
	fetched := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	p := intrasdk.Profile{
		ID:        42,
		Login:     "jdoe",
		Email:     "jdoe@student.42.fr",
		FirstName: &first,
		Level:     &level,
		Projects:  []intrasdk.Project{},
		Skills:    []intrasdk.Skill{{Name: "C", Level: 3.1}},
	}
	require.NoError(t, s.Profiles().PutProfile(ctx, p, fetched))

	got, err := s.Profiles().GetProfile(ctx, "JDoe")
	require.NoError(t, err)
	require.Equal(t, p, got.Profile)
	require.True(t, fetched.Equal(got.FetchedAt))

	// Upsert replaces the row.
	p.Wallet = 50
	require.NoError(t, s.Profiles().PutProfile(ctx, p, fetched.Add(time.Minute)))
	got, err = s.Profiles().GetProfile(ctx, "jdoe")
	require.NoError(t, err)
	require.Equal(t, 50, got.Profile.Wallet)

	require.NoError(t, s.Profiles().DeleteProfile(ctx, "jdoe"))
	_, err = s.Profiles().GetProfile(ctx, "jdoe")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestProjects(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	mark := 100
	projects := []intrasdk.Project{{
		ID:        1,
		FinalMark: &mark,
		Status:    "finished",
		UpdatedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		Info:      intrasdk.ProjectInfo{ID: 11, Name: "libft"},
	}}
	require.NoError(t, s.Projects().PutProjects(ctx, "jdoe", projects, time.Now()))

	got, err := s.Projects().GetProjects(ctx, "jdoe")
	require.NoError(t, err)
	require.Equal(t, projects, got.Projects)

	require.NoError(t, s.Projects().PutProjects(ctx, "42", nil, time.Now()))
	got, err = s.Projects().GetProjects(ctx, "42")
	require.NoError(t, err)
	require.NotNil(t, got.Projects)
	require.Empty(t, got.Projects)
}

func TestDeleteFetchedBefore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)
	now := time.Now()

	require.NoError(t, s.Profiles().PutProfile(ctx, intrasdk.Profile{ID: 1, Login: "old"}, now.Add(-2*time.Hour)))
	require.NoError(t, s.Profiles().PutProfile(ctx, intrasdk.Profile{ID: 2, Login: "new"}, now))
	require.NoError(t, s.Projects().PutProjects(ctx, "old", nil, now.Add(-2*time.Hour)))

	n, err := s.Profiles().DeleteProfilesFetchedBefore(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	n, err = s.Projects().DeleteProjectsFetchedBefore(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	_, err = s.Profiles().GetProfile(ctx, "new")
	require.NoError(t, err)
}

func TestWithTx(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t)

	t.Run("commit", func(t *testing.T) {
		err := s.WithTx(ctx, func(tx store.Tx) error {
			if err := tx.Profiles().PutProfile(ctx, intrasdk.Profile{ID: 1, Login: "jdoe"}, time.Now()); err != nil {
				return err
			}
			return tx.Projects().PutProjects(ctx, "jdoe", nil, time.Now())
		})
		require.NoError(t, err)

		_, err = s.Profiles().GetProfile(ctx, "jdoe")
		require.NoError(t, err)
		_, err = s.Projects().GetProjects(ctx, "jdoe")
		require.NoError(t, err)
	})

	t.Run("rollback", func(t *testing.T) {
		boom := errors.New("boom")
		err := s.WithTx(ctx, func(tx store.Tx) error {
			if err := tx.Profiles().PutProfile(ctx, intrasdk.Profile{ID: 2, Login: "jsmith"}, time.Now()); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		_, err = s.Profiles().GetProfile(ctx, "jsmith")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("nested tx is refused", func(t *testing.T) {
		err := s.WithTx(ctx, func(tx store.Tx) error {
			_, err := tx.Tx(ctx)
			return err
		})
		require.Error(t, err)
	})
}
