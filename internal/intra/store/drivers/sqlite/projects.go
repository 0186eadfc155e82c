package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aussiebroadwan/intra/internal/intra/store"
	"github.com/aussiebroadwan/intra/pkg/intrasdk"
)

type projectsRepo struct{ q querier }

func (r *projectsRepo) GetProjects(ctx context.Context, key string) (store.CachedProjects, error) {
	key = normalizeKey(key)

	var (
		payload   string
		fetchedAt int64
	)
	err := r.q.QueryRowContext(ctx,
		`SELECT payload, fetched_at FROM cached_projects WHERE user_key = ?`,
		key,
	).Scan(&payload, &fetchedAt)
	if err != nil {
		return store.CachedProjects{}, mapNotFound(err)
	}

	projects := make([]intrasdk.Project, 0)
	if err := json.Unmarshal([]byte(payload), &projects); err != nil {
		return store.CachedProjects{}, fmt.Errorf("decode cached projects %q: %w", key, err)
	}
	return store.CachedProjects{Key: key, Projects: projects, FetchedAt: fromMillis(fetchedAt)}, nil
}

func (r *projectsRepo) PutProjects(ctx context.Context, key string, projects []intrasdk.Project, fetchedAt time.Time) error {
	if projects == nil {
		projects = []intrasdk.Project{}
	}
	payload, err := json.Marshal(projects)
	if err != nil {
		return err
	}

	_, err = r.q.ExecContext(ctx,
		`INSERT INTO cached_projects (user_key, payload, fetched_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (user_key) DO UPDATE SET
		     payload = excluded.payload,
		     fetched_at = excluded.fetched_at`,
		normalizeKey(key), string(payload), toMillis(fetchedAt),
	)
	return err
}

func (r *projectsRepo) DeleteProjectsFetchedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM cached_projects WHERE fetched_at < ?`, toMillis(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
