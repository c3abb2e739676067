package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, DefaultHost, cfg.ClientTCPEndpoint.Host)
	assert.Equal(t, DefaultPort, cfg.ClientTCPEndpoint.Port)
	assert.Equal(t, DefaultMaxAvailableConnections, cfg.ClientTCPEndpoint.MaxAvailableConnections)
	assert.Equal(t, DefaultLogLevel, cfg.Logging.Level)
	assert.Equal(t, "0.0.0.0:5477", cfg.ClientTCPEndpoint.Address())
	assert.Nil(t, cfg.DB)
}

func TestLoadFromFileYAML(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	content := `
paths:
  logs_dir: /var/log/shadowwire
  storage_dir: /var/lib/shadowwire
client_tcp_endpoint:
  host: 127.0.0.1
  port: 9999
  max_available_connections: 10
logging:
  level: INFO
`
	require.NoError(t, writeFile(path, content))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/log/shadowwire", cfg.Paths.LogsDir)
	assert.Equal(t, "127.0.0.1", cfg.ClientTCPEndpoint.Host)
	assert.Equal(t, 9999, cfg.ClientTCPEndpoint.Port)
	assert.Equal(t, 10, cfg.ClientTCPEndpoint.MaxAvailableConnections)
	assert.Equal(t, "INFO", cfg.Logging.Level)
	// Fields absent from the file are left at zero value; Load (not
	// LoadFromFile) is what fills defaults.
	assert.Equal(t, "", cfg.Paths.PluginsDir)
}

func TestLoadFromFileJSON(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.json")
	content := `{"client_tcp_endpoint":{"host":"0.0.0.0","port":1234,"max_available_connections":5},"logging":{"level":"WARN"}}`
	require.NoError(t, writeFile(path, content))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1234, cfg.ClientTCPEndpoint.Port)
	assert.Equal(t, "WARN", cfg.Logging.Level)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestSaveAndReloadRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "sub", "config.yaml")

	cfg := Default()
	cfg.ClientTCPEndpoint.Port = 7000
	require.NoError(t, SaveToFile(cfg, path))

	reloaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, reloaded.ClientTCPEndpoint.Port)
	assert.Equal(t, DefaultHost, reloaded.ClientTCPEndpoint.Host)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
