package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/cropsense/internal/assess"
)

// Pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// queries holds the statements run by key; pgx caches their plans per connection.
var queries = map[string]string{
	"insert_outcome": `INSERT INTO outcomes (` + outcomeColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
	"get_outcome":    `SELECT ` + outcomeColumns + ` FROM outcomes WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS outcomes (
	id              TEXT PRIMARY KEY,
	sampled_at      TIMESTAMPTZ NOT NULL,
	lat             DOUBLE PRECISION NOT NULL,
	lon             DOUBLE PRECISION NOT NULL,
	ndvi            DOUBLE PRECISION,
	soil_type       TEXT NOT NULL,
	soil_depth      TEXT NOT NULL,
	growth_stage    TEXT NOT NULL,
	yield_potential TEXT NOT NULL,
	diagnostics     JSONB
);

CREATE INDEX IF NOT EXISTS idx_outcomes_sampled_at ON outcomes(sampled_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveOutcome(ctx context.Context, o *assess.Outcome) error {
	r, err := toRow(o)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, queries["insert_outcome"], r.args()...)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert outcome %s", o.ID)
	}
	return nil
}

func (s *PostgresStore) GetOutcome(ctx context.Context, id string) (*assess.Outcome, error) {
	o, err := scanOutcome(s.pool.QueryRow(ctx, queries["get_outcome"], id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "id %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get outcome %s", id)
	}
	return o, nil
}

func (s *PostgresStore) ListOutcomes(ctx context.Context, limit int) ([]assess.Outcome, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+outcomeColumns+` FROM outcomes ORDER BY sampled_at DESC, id LIMIT $1`,
		clampLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list outcomes")
	}
	defer rows.Close()

	var out []assess.Outcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan outcome")
		}
		out = append(out, *o)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate outcomes")
}
