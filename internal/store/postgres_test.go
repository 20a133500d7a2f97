package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresFromPool(mock), mock
}

var estimateColumns = []string{
	"id", "version", "latitude", "longitude", "storey_range", "floor_area_sqm", "remaining_lease",
	"town", "mrt_station", "price", "amount", "features", "created_at",
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS estimates`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Record(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`INSERT INTO estimates`).
		WithArgs(pgxmock.AnyArg(), "v2", 1.3521, 103.8198, 10, 90, 80,
			"BISHAN", "Bishan", "450,000", int64(450000), pgxmock.AnyArg(), at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.Record(context.Background(), testResult(at, "450,000")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_RecordError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO estimates`).WillReturnError(eris.New("conn reset"))

	err := s.Record(context.Background(), testResult(time.Now().UTC(), "450,000"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert estimate")
}

func TestPostgresStore_Recent(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(pgSelectEstimate + ` ORDER BY created_at DESC, id LIMIT $1`)).
		WithArgs(DefaultLimit).
		WillReturnRows(pgxmock.NewRows(estimateColumns).
			AddRow("a", "v1", 1.35, 103.82, 5, 70, 60, "BEDOK", "Bedok", "380,000", int64(380000), []byte(`{"mrt_dist":120}`), at).
			AddRow("b", "v2", 1.36, 103.83, 8, 90, 75, "unknown", "Bishan", "450,000", int64(450000), []byte(`{}`), at))

	got, err := s.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "BEDOK", got[0].Town)
	assert.JSONEq(t, `{"mrt_dist":120}`, string(got[0].Features))
	assert.Equal(t, "unknown", got[1].Town)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM estimates WHERE id = \$1`).
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CloseWithoutOwnership(t *testing.T) {
	s, _ := newMockPostgresStore(t)
	assert.NoError(t, s.Close())
}
