package db

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/gymdesk-billing/pkg/config"
	"github.com/angelmondragon/gymdesk-billing/pkg/logger"
)

type testModel struct {
	ID   int
	Name string `gorm:"uniqueIndex"`
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:dbclient?mode=memory&cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	require.NoError(t, conn.Migrator().DropTable(&testModel{}))
	require.NoError(t, conn.AutoMigrate(&testModel{}))
	return conn
}

func TestQueryLoggerReportsFailuresAndSlowQueries(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Output: &buf})
	conn, err := gorm.Open(sqlite.Open("file:dbquerylog?mode=memory&cache=shared"), &gorm.Config{
		Logger: newQueryLogger(logg, time.Nanosecond),
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&testModel{}))

	buf.Reset()
	require.NoError(t, conn.Create(&testModel{Name: "slow"}).Error)
	require.Contains(t, buf.String(), "db.query.slow")

	buf.Reset()
	require.Error(t, conn.Exec("SELECT * FROM missing_table").Error)
	require.Contains(t, buf.String(), "db.query.error")
	require.Contains(t, buf.String(), "missing_table")
}

func TestQueryLoggerIgnoresRecordNotFound(t *testing.T) {
	var buf bytes.Buffer
	logg := logger.New(logger.Options{ServiceName: "test", Output: &buf})
	conn, err := gorm.Open(sqlite.Open("file:dbnotfound?mode=memory&cache=shared"), &gorm.Config{
		Logger: newQueryLogger(logg, time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&testModel{}))

	buf.Reset()
	var row testModel
	require.ErrorIs(t, conn.Where("name = ?", "absent").First(&row).Error, gorm.ErrRecordNotFound)
	require.Empty(t, buf.String())
}

func TestPing(t *testing.T) {
	client := NewFromConn(newTestDB(t))
	require.NoError(t, client.Ping(context.Background()))
}

func TestNew_SQLiteDriver(t *testing.T) {
	client, err := New(context.Background(), config.DBConfig{
		DSN:    "file:dbnew?mode=memory&cache=shared",
		Driver: config.DBDriverSQLite,
	}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()))

	sqlDB, err := client.SQL()
	require.NoError(t, err)
	require.NotNil(t, sqlDB)
}

func TestNew_RequiresDSN(t *testing.T) {
	_, err := New(context.Background(), config.DBConfig{}, nil)
	require.Error(t, err)
}

func TestIsUniqueViolation(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&testModel{Name: "dup"}).Error)
	err := db.Create(&testModel{Name: "dup"}).Error
	require.True(t, IsUniqueViolation(err, ""))

	require.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505", ConstraintName: "plans_provider_plan_id_key"}, "plans_provider_plan_id_key"))
	require.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23505", ConstraintName: "other"}, "plans_provider_plan_id_key"))
	require.False(t, IsUniqueViolation(errors.New("connection refused"), ""))
	require.False(t, IsUniqueViolation(nil, ""))
}
