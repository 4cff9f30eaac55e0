package database

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/pkg/logger"
)

func TestRunMigrations_AppliesPendingInOrder(t *testing.T) {
	mock := NewMockPool(t)

	migrations := fstest.MapFS{
		"002_index.up.sql":    {Data: []byte("CREATE INDEX b")},
		"001_create.up.sql":   {Data: []byte("CREATE TABLE a")},
		"001_create.down.sql": {Data: []byte("DROP TABLE a")},
	}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	mock.ExpectQuery("SELECT EXISTS").WithArgs("001_create.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	mock.ExpectQuery("SELECT EXISTS").WithArgs("002_index.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE INDEX b").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO schema_migrations").WithArgs("002_index.up.sql").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := RunMigrations(context.Background(), mock, migrations, logger.Discard())
	require.NoError(t, err)
}

func TestRunMigrations_SQLErrorRollsBack(t *testing.T) {
	mock := NewMockPool(t)

	migrations := fstest.MapFS{
		"001_create.up.sql": {Data: []byte("CREATE TABLE a")},
	}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("001_create.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE a").WillReturnError(errors.New("syntax error at or near"))
	mock.ExpectRollback()

	err := RunMigrations(context.Background(), mock, migrations, logger.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "execute migration 001_create.up.sql")
}
