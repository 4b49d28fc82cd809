package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var cropSpec = MergeSpec{
	Table:   "crops",
	Columns: []string{"id", "name", "unit"},
	Key:     []string{"name"},
	Update:  []string{"unit"},
}

func TestMergeSpec_InsertSQL(t *testing.T) {
	assert.Equal(t,
		`INSERT INTO "crops" ("id", "name", "unit") SELECT "id", "name", "unit" FROM "stage_crops" ON CONFLICT ("name") DO UPDATE SET "unit" = EXCLUDED."unit"`,
		cropSpec.insertSQL())

	insertOnly := cropSpec
	insertOnly.Update = nil
	assert.Contains(t, insertOnly.insertSQL(), `ON CONFLICT ("name") DO NOTHING`)
}

func TestMergeSpec_Validate(t *testing.T) {
	assert.Error(t, MergeSpec{Columns: []string{"id"}, Key: []string{"id"}}.validate())
	assert.ErrorContains(t, MergeSpec{Table: "crops", Key: []string{"name"}}.validate(), "no columns")
	assert.ErrorContains(t, MergeSpec{Table: "crops", Columns: []string{"id"}}.validate(), "no key columns")
	assert.NoError(t, cropSpec.validate())
}

func TestMerge_InTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "stage_crops"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"stage_crops"}, cropSpec.Columns).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "crops"`).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	var merged int64
	err = InTx(context.Background(), mock, "seed", func(tx pgx.Tx) error {
		n, err := Merge(context.Background(), tx, cropSpec, [][]any{
			{"crop-maize", "Maize", "90kg bag"},
			{"crop-beans", "Beans", "90kg bag"},
		})
		merged = n
		return err
	})
	require.NoError(t, err)
	assert.EqualValues(t, 2, merged)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMerge_EmptyRowsSkipsWork(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectCommit()

	err = InTx(context.Background(), mock, "seed", func(tx pgx.Tx) error {
		n, err := Merge(context.Background(), tx, cropSpec, nil)
		assert.Zero(t, n)
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTx_RollsBackOnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "stage_crops"`).WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	err = InTx(context.Background(), mock, "seed", func(tx pgx.Tx) error {
		_, err := Merge(context.Background(), tx, cropSpec, [][]any{{"crop-maize", "Maize", "90kg bag"}})
		return err
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create staging table")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInTx_BeginError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin().WillReturnError(errors.New("db down"))

	err = InTx(context.Background(), mock, "seed", func(pgx.Tx) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin seed")
}
