package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/intra/internal/intra/store"
)

type txStore struct {
	tx *sql.Tx
}

func newTx(tx *sql.Tx) *txStore {
	return &txStore{tx: tx}
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

func (t *txStore) Close() error { return nil } // the outer DB stays open

// Ping is a no-op; the transaction already holds a live connection.
func (t *txStore) Ping(ctx context.Context) error {
	return nil
}

func (t *txStore) Tx(ctx context.Context) (store.Tx, error) {
	// Nested tx not supported
	return nil, sql.ErrTxDone
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return sql.ErrTxDone
}

func (t *txStore) Profiles() store.Profiles { return &profilesRepo{q: t.tx} }
func (t *txStore) Projects() store.Projects { return &projectsRepo{q: t.tx} }

func (t *txStore) ApplyMigrations() error { return nil } // applied before any tx is started
