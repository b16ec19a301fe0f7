package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 30*time.Second, cfg.IdleTimeout())
	assert.Equal(t, time.Second/60, cfg.FrameInterval())
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
HTTPPort: 9090
frameRate: 30
defaultFilter: matrix
log:
  filename: /tmp/x.log
  maxSizeMB: 5
`)
	t.Setenv("FACESYNC_RPC_PORT", "6000")
	t.Setenv("FACESYNC_SEED", "1234")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, 6000, cfg.RPCPort)
	assert.Equal(t, 30, cfg.FrameRate)
	assert.Equal(t, "matrix", cfg.DefaultFilter)
	assert.Equal(t, uint64(1234), cfg.Seed)
	assert.Equal(t, 8, cfg.MaxSessions)
	assert.Equal(t, "/tmp/x.log", cfg.Log.Filename)
	assert.Equal(t, 5, cfg.Log.MaxSizeMB)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("bad yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "HTTPPort: [1, 2"))
		assert.Error(t, err)
	})
	t.Run("bad env", func(t *testing.T) {
		t.Setenv("FACESYNC_HTTP_PORT", "eighty")
		_, err := Load(writeConfig(t, ""))
		assert.ErrorContains(t, err, "FACESYNC_HTTP_PORT")
	})
	t.Run("unknown filter", func(t *testing.T) {
		_, err := Load(writeConfig(t, "defaultFilter: sepia"))
		assert.ErrorContains(t, err, "invalid config")
	})
	t.Run("registry needs host", func(t *testing.T) {
		_, err := Load(writeConfig(t, "UseRegServer: true\nRegServerPort: 9000"))
		assert.ErrorContains(t, err, "RegServerHost")
	})
}
