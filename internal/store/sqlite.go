package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/resale-estimator/internal/appraise"
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
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS estimates (
	id              TEXT PRIMARY KEY,
	version         TEXT NOT NULL,
	latitude        REAL NOT NULL,
	longitude       REAL NOT NULL,
	storey_range    INTEGER NOT NULL,
	floor_area_sqm  INTEGER NOT NULL,
	remaining_lease INTEGER NOT NULL,
	town            TEXT NOT NULL,
	mrt_station     TEXT NOT NULL DEFAULT '',
	price           TEXT NOT NULL,
	amount          INTEGER NOT NULL,
	features        TEXT NOT NULL,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_estimates_created_at ON estimates(created_at);
CREATE INDEX IF NOT EXISTS idx_estimates_town ON estimates(town);
`

const selectEstimate = `SELECT id, version, latitude, longitude, storey_range, floor_area_sqm, remaining_lease,
	town, mrt_station, price, amount, features, created_at FROM estimates`

// Migrate creates the estimates table.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Record stores r under a new id.
func (s *SQLiteStore) Record(ctx context.Context, r *appraise.Result) error {
	e, err := FromResult(r)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO estimates (id, version, latitude, longitude, storey_range, floor_area_sqm, remaining_lease,
			town, mrt_station, price, amount, features, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Version, e.Latitude, e.Longitude, e.StoreyRange, e.FloorArea, e.RemainingLease,
		e.Town, e.Station, e.Price, e.Amount, string(e.Features), e.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert estimate")
}

// Get returns one estimate.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Estimate, error) {
	row := s.db.QueryRowContext(ctx, selectEstimate+` WHERE id = ?`, id)
	e, err := scanEstimate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get estimate")
	}
	return e, nil
}

// Recent returns the newest estimates first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Estimate, error) {
	rows, err := s.db.QueryContext(ctx, selectEstimate+` ORDER BY created_at DESC, id LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list estimates")
	}
	defer rows.Close() //nolint:errcheck

	var out []Estimate
	for rows.Next() {
		e, err := scanEstimate(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan estimate")
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate estimates")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanEstimate(row scannable) (*Estimate, error) {
	var e Estimate
	var feats string
	if err := row.Scan(&e.ID, &e.Version, &e.Latitude, &e.Longitude, &e.StoreyRange, &e.FloorArea,
		&e.RemainingLease, &e.Town, &e.Station, &e.Price, &e.Amount, &feats, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Features = []byte(feats)
	return &e, nil
}
