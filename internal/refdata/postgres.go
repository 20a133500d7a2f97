package refdata

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/resale-estimator/internal/db"
	"github.com/sells-group/resale-estimator/internal/geo"
)

// Schema is the Postgres schema holding imported reference tables.
const Schema = "refdata"

// Migration creates the reference tables.
const Migration = `
CREATE SCHEMA IF NOT EXISTS refdata;

CREATE TABLE IF NOT EXISTS refdata.entries (
	kind            TEXT             NOT NULL,
	seq             INTEGER          NOT NULL,
	name            TEXT             NOT NULL DEFAULT '',
	latitude        DOUBLE PRECISION NOT NULL,
	longitude       DOUBLE PRECISION NOT NULL,
	mrt_interchange BOOLEAN          NOT NULL DEFAULT false,
	bus_interchange BOOLEAN          NOT NULL DEFAULT false,
	affiliated      BOOLEAN          NOT NULL DEFAULT false,
	elite           BOOLEAN          NOT NULL DEFAULT false,
	PRIMARY KEY (kind, seq)
);

CREATE TABLE IF NOT EXISTS refdata.regions (
	seq      INTEGER PRIMARY KEY,
	name     TEXT    NOT NULL,
	geom_wkt TEXT    NOT NULL
);
`

var entryColumns = []string{
	"kind", "seq", "name", "latitude", "longitude",
	"mrt_interchange", "bus_interchange", "affiliated", "elite",
}

var regionColumns = []string{"seq", "name", "geom_wkt"}

// PostgresSource reads reference tables previously written by Import.
type PostgresSource struct {
	pool db.Pool
}

// NewPostgresSource returns a Source reading from pool.
func NewPostgresSource(pool db.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

// Entries implements Source.
func (s *PostgresSource) Entries(ctx context.Context, kind Kind) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, latitude, longitude, mrt_interchange, bus_interchange, affiliated, elite
		FROM refdata.entries
		WHERE kind = $1
		ORDER BY seq`, string(kind))
	if err != nil {
		return nil, eris.Wrapf(err, "refdata: query %s", kind)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var lat, lon float64
		if err := rows.Scan(&e.Name, &lat, &lon, &e.MRTInterchange, &e.BusInterchange, &e.Affiliated, &e.Elite); err != nil {
			return nil, eris.Wrapf(err, "refdata: scan %s", kind)
		}
		e.Coord, err = geo.NewCoordinate(lat, lon)
		if err != nil {
			return nil, eris.Wrapf(err, "refdata: %s entry %q", kind, e.Name)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "refdata: iterate %s", kind)
	}

	return out, nil
}

// Regions implements Source.
func (s *PostgresSource) Regions(ctx context.Context) ([]Region, error) {
	rows, err := s.pool.Query(ctx, `SELECT name, geom_wkt FROM refdata.regions ORDER BY seq`)
	if err != nil {
		return nil, eris.Wrap(err, "refdata: query regions")
	}
	defer rows.Close()

	var out []Region
	for rows.Next() {
		var name, text string
		if err := rows.Scan(&name, &text); err != nil {
			return nil, eris.Wrap(err, "refdata: scan region")
		}
		g, err := ParseWKT(text)
		if err != nil {
			return nil, eris.Wrapf(err, "refdata: region %q", name)
		}
		out = append(out, Region{Name: name, Geometry: g})
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "refdata: iterate regions")
	}

	return out, nil
}

// Migrate creates the reference tables if needed.
func Migrate(ctx context.Context, pool db.Pool) error {
	if _, err := pool.Exec(ctx, Migration); err != nil {
		return eris.Wrap(err, "refdata: migrate")
	}
	return nil
}

// Import copies every dataset from src into the Postgres reference tables,
// replacing what was there. Rows keep their source order. The elite-row
// convention is not baked in; it is applied by Load.
func Import(ctx context.Context, pool db.Pool, src Source) (map[Kind]int64, error) {
	log := zap.L().With(zap.String("component", "refdata.import"))
	counts := make(map[Kind]int64, len(AllKinds))

	for _, kind := range AllKinds {
		entries, err := src.Entries(ctx, kind)
		if err != nil {
			return nil, eris.Wrapf(err, "refdata: read %s", kind)
		}

		rows := make([][]any, len(entries))
		for i, e := range entries {
			rows[i] = []any{
				string(kind), i, e.Name, e.Coord.Lat, e.Coord.Lon,
				e.MRTInterchange, e.BusInterchange, e.Affiliated, e.Elite,
			}
		}

		n, err := db.ReplaceRows(ctx, pool, Schema, "entries", "kind = $1", []any{string(kind)}, entryColumns, rows)
		if err != nil {
			return nil, eris.Wrapf(err, "refdata: import %s", kind)
		}
		counts[kind] = n
		log.Info("dataset imported", zap.String("kind", string(kind)), zap.Int64("rows", n))
	}

	regions, err := src.Regions(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "refdata: read regions")
	}
	rows := make([][]any, len(regions))
	for i, r := range regions {
		text, err := FormatWKT(r.Geometry)
		if err != nil {
			return nil, eris.Wrapf(err, "refdata: region %q", r.Name)
		}
		rows[i] = []any{i, r.Name, text}
	}
	n, err := db.ReplaceRows(ctx, pool, Schema, "regions", "", nil, regionColumns, rows)
	if err != nil {
		return nil, eris.Wrap(err, "refdata: import regions")
	}
	log.Info("regions imported", zap.Int64("rows", n))

	return counts, nil
}
