package storagefx

import (
	"testing"

	"github.com/smallbiznis/genstudio/internal/config"
	"github.com/smallbiznis/genstudio/internal/storage"
	"github.com/smallbiznis/genstudio/internal/storage/local"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewStoreSelectsDriver(t *testing.T) {
	cfg := config.Config{Storage: config.StorageConfig{Driver: "local", LocalDir: t.TempDir()}}
	store, err := NewStore(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &local.Store{}, store)

	cfg.Storage.Driver = "ftp"
	_, err = NewStore(cfg, zap.NewNop())
	assert.ErrorIs(t, err, storage.ErrUnknownDriver)
}
