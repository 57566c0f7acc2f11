package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadClientConfig(t *testing.T) {
	path := writeFile(t, `
remote: "127.0.0.1:9000"
services:
  echo: ["127.0.0.1:9000", "127.0.0.1:9001"]
send:
  timeout: 2s
  max_header_size: 4096
  response_buffering: false
  response_body_buffer_limit: 1024
auth:
  enabled: true
  secret: s
  client_id: c1
  expiry: 30m
`)
	cfg, err := LoadClientConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Remote)
	assert.Equal(t, "tcp", cfg.Transport.Network)
	assert.Len(t, cfg.Services["echo"], 2)
	assert.Equal(t, 30*time.Minute, cfg.Auth.Expiry)

	opts := cfg.Send.Options()
	assert.Equal(t, 2*time.Second, opts.Timeout)
	assert.Equal(t, 4096, opts.MaxHeaderSize)
	assert.Equal(t, int64(1024), opts.ResponseBodyBufferLimit)
	require.NotNil(t, opts.ResponseBuffering)
	assert.False(t, *opts.ResponseBuffering)
	assert.Nil(t, opts.EnsureNonNullResponse)
}

func TestLoadServerConfig(t *testing.T) {
	path := writeFile(t, `
server:
  addr: ":9000"
  processing_timeout: 5s
transport:
  network: ws
  path: /q
metrics:
  enabled: true
  addr: ":9090"
`)
	cfg, err := LoadServerConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.ProcessingTimeout)
	assert.Equal(t, "ws", cfg.Transport.Network)
	assert.Equal(t, "/q", cfg.Transport.Path)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadServerConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadClientConfig(writeFile(t, "remote: [unclosed"))
	assert.Error(t, err)
}
