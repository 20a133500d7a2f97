package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/resale-estimator/internal/appraise"
	"github.com/sells-group/resale-estimator/internal/db"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
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

// NewPostgresFromPool wraps an existing pool. Close does not close it.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS estimates (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	version         TEXT NOT NULL,
	latitude        DOUBLE PRECISION NOT NULL,
	longitude       DOUBLE PRECISION NOT NULL,
	storey_range    INTEGER NOT NULL,
	floor_area_sqm  INTEGER NOT NULL,
	remaining_lease INTEGER NOT NULL,
	town            TEXT NOT NULL,
	mrt_station     TEXT NOT NULL DEFAULT '',
	price           TEXT NOT NULL,
	amount          BIGINT NOT NULL,
	features        JSONB NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_estimates_created_at ON estimates(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_estimates_town ON estimates(town);
`

const pgSelectEstimate = `SELECT id, version, latitude, longitude, storey_range, floor_area_sqm, remaining_lease,
	town, mrt_station, price, amount, features, created_at FROM estimates`

// Migrate creates the estimates table.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool when the store owns it.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Record stores r under a new id.
func (s *PostgresStore) Record(ctx context.Context, r *appraise.Result) error {
	e, err := FromResult(r)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO estimates (id, version, latitude, longitude, storey_range, floor_area_sqm, remaining_lease,
			town, mrt_station, price, amount, features, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.ID, e.Version, e.Latitude, e.Longitude, e.StoreyRange, e.FloorArea, e.RemainingLease,
		e.Town, e.Station, e.Price, e.Amount, []byte(e.Features), e.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert estimate")
}

// Get returns one estimate.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Estimate, error) {
	row := s.pool.QueryRow(ctx, pgSelectEstimate+` WHERE id = $1`, id)
	e, err := scanPgEstimate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get estimate")
	}
	return e, nil
}

// Recent returns the newest estimates first.
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Estimate, error) {
	rows, err := s.pool.Query(ctx, pgSelectEstimate+` ORDER BY created_at DESC, id LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list estimates")
	}
	defer rows.Close()

	var out []Estimate
	for rows.Next() {
		e, err := scanPgEstimate(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan estimate")
		}
		out = append(out, *e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate estimates")
}

func scanPgEstimate(row pgx.Row) (*Estimate, error) {
	var e Estimate
	var feats []byte
	if err := row.Scan(&e.ID, &e.Version, &e.Latitude, &e.Longitude, &e.StoreyRange, &e.FloorArea,
		&e.RemainingLease, &e.Town, &e.Station, &e.Price, &e.Amount, &feats, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Features = feats
	return &e, nil
}

// Open returns the history store for driver ("sqlite" or "postgres").
func Open(ctx context.Context, driver, postgresURL, sqlitePath string) (Store, error) {
	switch driver {
	case "", "sqlite":
		return NewSQLite(sqlitePath)
	case "postgres":
		return NewPostgres(ctx, postgresURL, nil)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}
