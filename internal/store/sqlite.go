package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/cropsense/internal/assess"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS outcomes (
	id              TEXT PRIMARY KEY,
	sampled_at      DATETIME NOT NULL,
	lat             REAL NOT NULL,
	lon             REAL NOT NULL,
	ndvi            REAL,
	soil_type       TEXT NOT NULL,
	soil_depth      TEXT NOT NULL,
	growth_stage    TEXT NOT NULL,
	yield_potential TEXT NOT NULL,
	diagnostics     BLOB
);

CREATE INDEX IF NOT EXISTS idx_outcomes_sampled_at ON outcomes(sampled_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveOutcome(ctx context.Context, o *assess.Outcome) error {
	r, err := toRow(o)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO outcomes (`+outcomeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.args()...,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert outcome %s", o.ID)
	}
	return nil
}

func (s *SQLiteStore) GetOutcome(ctx context.Context, id string) (*assess.Outcome, error) {
	o, err := scanOutcome(s.db.QueryRowContext(ctx,
		`SELECT `+outcomeColumns+` FROM outcomes WHERE id = ?`, id,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "id %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get outcome %s", id)
	}
	return o, nil
}

func (s *SQLiteStore) ListOutcomes(ctx context.Context, limit int) ([]assess.Outcome, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+outcomeColumns+` FROM outcomes ORDER BY sampled_at DESC, id LIMIT ?`,
		clampLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list outcomes")
	}
	defer rows.Close()

	var out []assess.Outcome
	for rows.Next() {
		o, err := scanOutcome(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan outcome")
		}
		out = append(out, *o)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate outcomes")
}
