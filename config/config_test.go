package config

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, uint16(8883), cfg.Broker.Port)
	assert.Equal(t, 200*time.Millisecond, cfg.Broker.SendTimeout)
	assert.Equal(t, 60*time.Second, cfg.Client.KeepAlive)
	assert.Equal(t, 1024, cfg.Client.NetworkBufferSize)
	assert.Equal(t, 15, cfg.Client.OutgoingRecords)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.BaseBackoff)
	assert.Equal(t, 5*time.Second, cfg.Retry.MaxBackoff)
	assert.Equal(t, "Hello World!", cfg.Session.Message)
	assert.Equal(t, 2*time.Second, cfg.Session.ProcessLoopTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "default config is valid",
			modify: func(c *Config) {},
		},
		{
			name:    "empty endpoint",
			modify:  func(c *Config) { c.Broker.Endpoint = "" },
			wantErr: "broker.endpoint",
		},
		{
			name:    "unknown transport",
			modify:  func(c *Config) { c.Broker.Transport = "quic" },
			wantErr: "broker.transport",
		},
		{
			name: "websocket path without slash",
			modify: func(c *Config) {
				c.Broker.Transport = TransportWebsocket
				c.Broker.WebsocketPath = "mqtt"
			},
			wantErr: "broker.websocket_path",
		},
		{
			name:    "zero send timeout",
			modify:  func(c *Config) { c.Broker.SendTimeout = 0 },
			wantErr: "broker.send_timeout",
		},
		{
			name:    "zero receive timeout",
			modify:  func(c *Config) { c.Broker.RecvTimeout = 0 },
			wantErr: "broker.recv_timeout",
		},
		{
			name:    "negative receive timeout",
			modify:  func(c *Config) { c.Broker.RecvTimeout = -time.Millisecond },
			wantErr: "broker.recv_timeout",
		},
		{
			name:    "receive timeout not below connack timeout",
			modify:  func(c *Config) { c.Broker.RecvTimeout = c.Client.ConnAckTimeout },
			wantErr: "client.connack_timeout",
		},
		{
			name: "process loop timeout not above receive timeout",
			modify: func(c *Config) {
				c.Broker.RecvTimeout = 100 * time.Millisecond
				c.Session.ProcessLoopTimeout = 100 * time.Millisecond
			},
			wantErr: "session.process_loop_timeout",
		},
		{
			name:    "zero process loop timeout",
			modify:  func(c *Config) { c.Session.ProcessLoopTimeout = 0 },
			wantErr: "session.process_loop_timeout",
		},
		{
			name:    "zero retry attempts",
			modify:  func(c *Config) { c.Retry.MaxAttempts = 0 },
			wantErr: "retry.max_attempts",
		},
		{
			name:    "max backoff below base",
			modify:  func(c *Config) { c.Retry.MaxBackoff = time.Millisecond },
			wantErr: "retry.max_backoff",
		},
		{
			name:    "keep alive too large",
			modify:  func(c *Config) { c.Client.KeepAlive = 70000 * time.Second },
			wantErr: "client.keep_alive",
		},
		{
			name:    "tiny network buffer",
			modify:  func(c *Config) { c.Client.NetworkBufferSize = 8 },
			wantErr: "client.network_buffer_size",
		},
		{
			name: "subscribe without topics",
			modify: func(c *Config) {
				c.Session.Subscribe = true
				c.Session.TopicCount = 0
			},
			wantErr: "session.subscribe",
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.Log.Level = "trace" },
			wantErr: "log.level",
		},
		{
			name:    "invalid log format",
			modify:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: "log.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^testClient[0-9a-f]{12}$`), cfg.Client.ClientID)

	cfg, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.Broker.Endpoint)
}

func TestLoadFile(t *testing.T) {
	content := `
broker:
  endpoint: broker.example.com
  port: 1883
  recv_timeout: 50ms
client:
  client_id: device-1
retry:
  max_attempts: 3
session:
  iterations: 2
  publish_interval: 1s
  will_probe: false
log:
  format: json
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "broker.example.com", cfg.Broker.Endpoint)
	assert.Equal(t, uint16(1883), cfg.Broker.Port)
	assert.Equal(t, 50*time.Millisecond, cfg.Broker.RecvTimeout)
	assert.Equal(t, 200*time.Millisecond, cfg.Broker.SendTimeout, "unset keys keep their defaults")
	assert.Equal(t, "device-1", cfg.Client.ClientID)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 2, cfg.Session.Iterations)
	assert.Equal(t, time.Second, cfg.Session.PublishInterval)
	assert.False(t, cfg.Session.WillProbe)
	assert.True(t, cfg.Session.BadAuthProbe)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadInvalid(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("broker: ["), 0o600))
	_, err := Load(path)
	assert.ErrorContains(t, err, "failed to parse config file")

	path = filepath.Join(dir, "invalid.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retry:\n  max_attempts: 0\n"), 0o600))
	_, err = Load(path)
	assert.ErrorContains(t, err, "retry.max_attempts")
}
