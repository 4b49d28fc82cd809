package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// MergeSpec describes a keyed bulk merge into Table.
type MergeSpec struct {
	Table   string
	Columns []string
	// Key names the columns of the unique constraint rows are matched on.
	Key []string
	// Update lists the columns overwritten when a row already exists. With no
	// Update columns existing rows are left untouched.
	Update []string
}

func (m MergeSpec) validate() error {
	switch {
	case m.Table == "":
		return eris.New("db: merge: table is required")
	case len(m.Columns) == 0:
		return eris.Errorf("db: merge %s: no columns", m.Table)
	case len(m.Key) == 0:
		return eris.Errorf("db: merge %s: no key columns", m.Table)
	}
	return nil
}

func (m MergeSpec) stagingTable() string {
	return "stage_" + m.Table
}

func (m MergeSpec) insertSQL() string {
	cols := identList(m.Columns)

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(pgx.Identifier{m.Table}.Sanitize())
	b.WriteString(" (" + cols + ") SELECT " + cols + " FROM ")
	b.WriteString(pgx.Identifier{m.stagingTable()}.Sanitize())
	b.WriteString(" ON CONFLICT (" + identList(m.Key) + ") ")

	if len(m.Update) == 0 {
		b.WriteString("DO NOTHING")
		return b.String()
	}
	b.WriteString("DO UPDATE SET ")
	for i, col := range m.Update {
		if i > 0 {
			b.WriteString(", ")
		}
		id := pgx.Identifier{col}.Sanitize()
		b.WriteString(id + " = EXCLUDED." + id)
	}
	return b.String()
}

// Merge stages rows with COPY into a temp table that is dropped at commit,
// then inserts them into the target, resolving conflicts on Key. It must
// run inside tx. It returns the number of rows inserted or updated.
func Merge(ctx context.Context, tx pgx.Tx, spec MergeSpec, rows [][]any) (int64, error) {
	if err := spec.validate(); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	stage := pgx.Identifier{spec.stagingTable()}
	create := "CREATE TEMP TABLE " + stage.Sanitize() +
		" (LIKE " + pgx.Identifier{spec.Table}.Sanitize() + " INCLUDING DEFAULTS) ON COMMIT DROP"
	if _, err := tx.Exec(ctx, create); err != nil {
		return 0, eris.Wrapf(err, "db: merge %s: create staging table", spec.Table)
	}
	if _, err := tx.CopyFrom(ctx, stage, spec.Columns, pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
		return rows[i], nil
	})); err != nil {
		return 0, eris.Wrapf(err, "db: merge %s: copy", spec.Table)
	}

	tag, err := tx.Exec(ctx, spec.insertSQL())
	if err != nil {
		return 0, eris.Wrapf(err, "db: merge %s: insert", spec.Table)
	}
	return tag.RowsAffected(), nil
}

// InTx runs fn in a transaction and commits when fn succeeds.
func InTx(ctx context.Context, pool Pool, op string, fn func(tx pgx.Tx) error) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return eris.Wrapf(err, "db: begin %s", op)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return eris.Wrapf(tx.Commit(ctx), "db: commit %s", op)
}

func identList(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
