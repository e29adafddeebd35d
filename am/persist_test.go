package am

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteDefault_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", ConfigFileName)
	require.NoError(t, WriteDefault(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "poll_interval")
	assert.Contains(t, string(data), "3s")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, defaultConfig(t), cfg)
}

func TestSetValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)

	require.NoError(t, SetValue(path, "deeplook.supervisor.poll_interval", 2*time.Second))
	require.NoError(t, SetValue(path, "deeplook.port", 45001))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.DeepLook.Supervisor.PollInterval)
	assert.Equal(t, 45001, cfg.DeepLook.Port)
	assert.Equal(t, 3, cfg.DeepLook.Supervisor.NumberOfTries)
}

func TestCreateBackup_Rotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), ConfigFileName)
	for i := 1; i <= 5; i++ {
		require.NoError(t, SetValue(path, "notify.burst", i))
	}

	for _, suffix := range []string{".back1", ".back2", ".back3"} {
		_, err := os.Stat(path + suffix)
		assert.NoError(t, err, suffix)
	}
	_, err := os.Stat(path + ".back4")
	assert.True(t, os.IsNotExist(err))

	back1, err := LoadFromFile(path + ".back1")
	require.NoError(t, err)
	assert.Equal(t, 4, back1.Notify.Burst)
}
