package postgres

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vlbeam/occlusion/internal/config"
	"github.com/vlbeam/occlusion/internal/model"
	"github.com/vlbeam/occlusion/pkg/core"
	"gorm.io/gorm"
)

func TestNew_NoConnection(t *testing.T) {
	b := New(Dependencies{Config: config.DBConfig{Host: "localhost"}})
	require.NotNil(t, b)
	assert.Nil(t, b.DB())
	assert.NotNil(t, b.deps.Logger)
}

func TestInit_FallsBackToSQLite(t *testing.T) {
	b := New(Dependencies{
		Config: config.DBConfig{
			Host:     "127.0.0.1",
			Port:     "1",
			Username: "nobody",
			Password: "nothing",
			Database: "none",
		},
		FlushInterval: time.Hour,
	})

	require.NoError(t, b.Init())
	assert.True(t, b.Local())
	assert.Equal(t, "sqlite", b.DB().Name())

	require.NoError(t, b.RecordEvaluation(&core.Evaluation{BeamID: uuid.New(), BeamName: "spot", Tick: 1}))
	require.NoError(t, b.Backend.Flush())

	var count int64
	require.NoError(t, b.DB().Model(&model.Evaluation{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
	require.NoError(t, b.Close())
}

func TestInitClose_InjectedDB(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	b := New(Dependencies{DB: db, FlushInterval: time.Hour})
	require.NoError(t, b.Init())
	assert.False(t, b.Local())
	assert.True(t, db.Migrator().HasTable(&model.Evaluation{}))
	assert.True(t, db.Migrator().HasTable(&model.Beam{}))

	require.NoError(t, b.RecordEvaluation(&core.Evaluation{BeamID: uuid.New(), BeamName: "spot", Tick: 1}))
	require.NoError(t, b.Close())

	var count int64
	require.NoError(t, db.Model(&model.Evaluation{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
