package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore implementa Store sobre Postgres.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// WithUserTx abre una transaccion y toma un advisory lock por usuario antes de ejecutar fn.
// Dos requests del mismo usuario no intercalan sus ciclos read-modify-write.
func (s *PgStore) WithUserTx(ctx context.Context, userID string, fn func(ctx context.Context, repos Repos) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID); err != nil {
			return err
		}
		return fn(ctx, Repos{
			Traits:    NewPgTraitRepository(tx),
			Snapshots: NewPgSnapshotRepository(tx),
		})
	})
}

func (s *PgStore) Traits() TraitRepository {
	return NewPgTraitRepository(s.pool)
}

func (s *PgStore) Snapshots() SnapshotRepository {
	return NewPgSnapshotRepository(s.pool)
}

func (s *PgStore) Turns() TurnRepository {
	return NewPgTurnRepository(s.pool)
}

func (s *PgStore) Close() error {
	s.pool.Close()
	return nil
}
