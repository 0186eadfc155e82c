package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/intra/internal/intra/store"
	"github.com/aussiebroadwan/intra/pkg/intrasdk"
)

type profilesRepo struct{ q querier }

func (r *profilesRepo) GetProfile(ctx context.Context, login string) (store.CachedProfile, error) {
	var (
		payload   string
		fetchedAt int64
	)
	err := r.q.QueryRowContext(ctx,
		`SELECT payload, fetched_at FROM cached_profiles WHERE login = ?`,
		normalizeKey(login),
	).Scan(&payload, &fetchedAt)
	if err != nil {
		return store.CachedProfile{}, mapNotFound(err)
	}

	var p intrasdk.Profile
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return store.CachedProfile{}, fmt.Errorf("decode cached profile %q: %w", login, err)
	}
	return store.CachedProfile{Profile: p, FetchedAt: fromMillis(fetchedAt)}, nil
}

func (r *profilesRepo) PutProfile(ctx context.Context, p intrasdk.Profile, fetchedAt time.Time) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}

	_, err = r.q.ExecContext(ctx,
		`INSERT INTO cached_profiles (login, user_id, payload, fetched_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (login) DO UPDATE SET
		     user_id = excluded.user_id,
		     payload = excluded.payload,
		     fetched_at = excluded.fetched_at`,
		normalizeKey(p.Login), p.ID, string(payload), toMillis(fetchedAt),
	)
	return err
}

func (r *profilesRepo) DeleteProfile(ctx context.Context, login string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM cached_profiles WHERE login = ?`, normalizeKey(login))
	return err
}

func (r *profilesRepo) DeleteProfilesFetchedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM cached_profiles WHERE fetched_at < ?`, toMillis(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
