package database

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blastsum/internal/config"
)

func TestNewDatabaseManager_SQLite(t *testing.T) {
	cfg := config.StoreConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "corpus.sqlite")}

	manager, err := NewDatabaseManager(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer manager.Close()

	assert.Equal(t, "sqlite", manager.Driver())
	assert.NotNil(t, manager.GetGormDB())
	assert.FileExists(t, cfg.Path)
}

func TestDialector_UnknownDriver(t *testing.T) {
	_, err := Dialector(config.StoreConfig{Driver: "oracle"})
	assert.Error(t, err)

	_, err = NewDatabaseManager(config.StoreConfig{Driver: "oracle"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestGORMConfig_TranslatesErrors(t *testing.T) {
	cfg := GORMConfig(zerolog.Nop())
	assert.True(t, cfg.TranslateError)
	assert.True(t, cfg.SkipDefaultTransaction)
}
