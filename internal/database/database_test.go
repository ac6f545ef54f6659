package database

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vlbeam/occlusion/internal/config"
	"github.com/vlbeam/occlusion/internal/model"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DBConfig{Host: "db", Port: "5433", Username: "u", Password: "p", Database: "beams"})
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=beams sslmode=disable", dsn)
}

func TestGetSqliteDB_InMemoryIsPrivate(t *testing.T) {
	a, err := GetSqliteDB("")
	require.NoError(t, err)
	b, err := GetSqliteDB("")
	require.NoError(t, err)

	require.NoError(t, Setup(a))
	require.NoError(t, a.Create(&model.Beam{ID: uuid.NewString(), Name: "spot"}).Error)

	assert.True(t, a.Migrator().HasTable(&model.Evaluation{}))
	assert.False(t, b.Migrator().HasTable(&model.Beam{}))
}

func TestDumpMemoryDBToDisk(t *testing.T) {
	db, err := GetSqliteDB("")
	require.NoError(t, err)
	require.NoError(t, Setup(db))
	require.NoError(t, db.Create(&model.Evaluation{BeamID: uuid.NewString(), Tick: 3, Time: time.Now()}).Error)

	path := filepath.Join(t.TempDir(), "dump.db")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0644))

	require.NoError(t, DumpMemoryDBToDisk(db, path))

	disk, err := GetSqliteDB(path)
	require.NoError(t, err)
	var count int64
	require.NoError(t, disk.Model(&model.Evaluation{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestDumpMemoryDBToDisk_NoPath(t *testing.T) {
	db, err := GetSqliteDB("")
	require.NoError(t, err)

	assert.Error(t, DumpMemoryDBToDisk(db, ""))
}

func TestTimed(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.DebugLevel)

	require.NoError(t, Timed(log, "noop", func() error { return nil }))
	assert.Contains(t, buf.String(), `"op":"noop"`)

	err := Timed(log, "fail", func() error { return assert.AnError })
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, buf.String(), "Database operation failed")
}

func TestManager_ConnectFallsBackToSQLite(t *testing.T) {
	m := NewManager(zerolog.Nop())

	require.NoError(t, m.Connect(config.DBConfig{Host: "127.0.0.1", Port: "1", Username: "u", Password: "p", Database: "none"}))
	defer m.Close()

	assert.True(t, m.IsValid)
	assert.True(t, m.ShouldSaveLocal)
	assert.Equal(t, "sqlite", m.DB.Name())
	require.NoError(t, m.SqlDB.Ping())
}

func TestManager_CloseWithoutConnection(t *testing.T) {
	assert.NoError(t, NewManager(zerolog.Nop()).Close())
}
