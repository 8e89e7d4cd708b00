package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMigrations_VersionsAreSequential(t *testing.T) {
	migrations := GetMigrations()
	require.NotEmpty(t, migrations)

	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version, "migration %q out of order", m.Description)
		assert.NotEmpty(t, m.Description)
		assert.NotEmpty(t, m.SQL)
	}
}

func TestLegacyMethodValuesSQL(t *testing.T) {
	sqlText := legacyMethodValuesSQL()

	// Every legacy value resolves to one of the three canonical names.
	for _, pair := range []string{
		"('cash', 'Cash')",
		"('pending', 'Credit')",
		"('bank_transfer', 'Digital')",
		"('card', 'Digital')",
		"('mobile_money', 'Digital')",
		"('cheque', 'Digital')",
		"('online_payment', 'Digital')",
	} {
		assert.Contains(t, sqlText, pair)
	}
}

func TestCategoryValuesSQL_EndsWithOther(t *testing.T) {
	sqlText := categoryValuesSQL()

	assert.True(t, strings.HasPrefix(sqlText, "('Bakery', 1)"), "got %s", sqlText)
	assert.Contains(t, sqlText, "('Dairy', 2)")
	assert.True(t, strings.HasSuffix(sqlText, "('Other', 11)"), "got %s", sqlText)
}

func TestMigrationSQL_CategoryBackfillMatchesClassifier(t *testing.T) {
	migrations := GetMigrations()
	var backfill string
	for _, m := range migrations {
		if strings.Contains(m.Description, "backfill product categories") {
			backfill = m.SQL
		}
	}
	require.NotEmpty(t, backfill)

	// Dairy keywords must appear before Personal Care so "cream"
	// resolves the same way the Go classifier does.
	dairy := strings.Index(backfill, "'Dairy'")
	personalCare := strings.Index(backfill, "'Personal Care'")
	require.Greater(t, dairy, 0)
	require.Greater(t, personalCare, 0)
	assert.Less(t, dairy, personalCare)
	assert.Contains(t, backfill, "ELSE 'Other'")
}

func TestRunMigrations_AppliesAllOnFreshDatabase(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS migration_log").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM migration_log").
		WillReturnRows(sqlmock.NewRows([]string{"version"}))

	for range GetMigrations() {
		mock.ExpectBegin()
		mock.ExpectExec(".*").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()
		mock.ExpectExec("INSERT INTO migration_log").
			WillReturnResult(sqlmock.NewResult(1, 1))
	}

	err = RunMigrations(context.Background(), db, testLogger())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_SkipsAppliedVersions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	migrations := GetMigrations()
	appliedRows := sqlmock.NewRows([]string{"version"})
	for _, m := range migrations {
		appliedRows.AddRow(m.Version)
	}

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS migration_log").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM migration_log").
		WillReturnRows(appliedRows)

	// No Begin/Exec/Commit expected: everything is already applied.
	err = RunMigrations(context.Background(), db, testLogger())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_JournalsFailureAndAborts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS migration_log").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version FROM migration_log").
		WillReturnRows(sqlmock.NewRows([]string{"version"}))

	mock.ExpectBegin()
	mock.ExpectExec(".*").WillReturnError(errors.New("relation users does not exist"))
	mock.ExpectRollback()
	mock.ExpectExec("INSERT INTO migration_log").
		WithArgs(1, sqlmock.AnyArg(), "failed", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err = RunMigrations(context.Background(), db, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration 1 failed")
	assert.NoError(t, mock.ExpectationsWereMet())
}
