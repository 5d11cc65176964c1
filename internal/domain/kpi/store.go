package kpi

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"kpihub/internal/platform/querier"
)

type Store struct {
	Pool *pgxpool.Pool
	DB   querier.Querier
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool, DB: pool}
}

func (s *Store) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return s.Pool.Begin(ctx)
}
