package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// ReplaceRows deletes rows matching where (args bound positionally) and copies
// the new rows in one transaction, so readers never observe a partial table.
func ReplaceRows(ctx context.Context, pool Pool, schema, table, where string, args []any, columns []string, rows [][]any) (int64, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	del := "DELETE FROM " + pgx.Identifier{schema, table}.Sanitize()
	if where != "" {
		del += " WHERE " + where
	}
	if _, err := tx.Exec(ctx, del, args...); err != nil {
		return 0, eris.Wrapf(err, "db: clear %s.%s", schema, table)
	}

	var n int64
	if len(rows) > 0 {
		n, err = tx.CopyFrom(ctx, pgx.Identifier{schema, table}, columns, pgx.CopyFromRows(rows))
		if err != nil {
			return 0, eris.Wrapf(err, "db: COPY INTO %s.%s", schema, table)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: commit")
	}
	return n, nil
}
