package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudconnect-server/internal/config"
	"cloudconnect-server/internal/model"
)

func TestOpenSQLiteAndMigrate(t *testing.T) {
	cfg := config.DatabaseConfig{
		Driver: config.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "test.db"),
	}

	db, err := Open(cfg, "release")
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	assert.True(t, db.Migrator().HasTable(&model.User{}))
	assert.True(t, db.Migrator().HasTable(&model.Connection{}))
	assert.True(t, db.Migrator().HasTable(&model.Session{}))
}

func TestDialector(t *testing.T) {
	for _, driver := range []string{config.DriverMySQL, config.DriverPostgres, config.DriverSQLite} {
		d, err := Dialector(config.DatabaseConfig{Driver: driver, Path: "x.db"})
		require.NoError(t, err, driver)
		assert.Equal(t, driver, d.Name())
	}

	_, err := Dialector(config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "a.db?_busy_timeout=5000", sqliteDSN("a.db"))
	assert.Equal(t, "file::memory:?cache=shared", sqliteDSN("file::memory:?cache=shared"))
}

func TestSeed(t *testing.T) {
	db, err := Open(config.DatabaseConfig{
		Driver: config.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "seed.db"),
	}, "release")
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	ctx := context.Background()
	now := time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)

	created, err := Seed(ctx, db, "hash", now)
	require.NoError(t, err)
	assert.True(t, created)

	var connections []model.Connection
	require.NoError(t, db.Order("id").Find(&connections).Error)
	require.Len(t, connections, 3)
	assert.Equal(t, "Development Workstation", connections[0].Name)
	assert.Equal(t, model.ConnectionStatusAway, connections[2].Status)
	assert.Equal(t, 5900, connections[2].Port)

	var sessions []model.Session
	require.NoError(t, db.Order("id").Find(&sessions).Error)
	require.Len(t, sessions, 3)
	assert.Equal(t, "1h 24m", *sessions[0].Duration)
	assert.Equal(t, model.SessionStatusIdle, sessions[2].Status)
	assert.Equal(t, model.ProtocolVNC, sessions[2].Protocol)

	// 再次执行跳过
	created, err = Seed(ctx, db, "hash", now)
	require.NoError(t, err)
	assert.False(t, created)

	var count int64
	require.NoError(t, db.Model(&model.User{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
