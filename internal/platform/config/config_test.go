package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("AUDITTRAIL_CONFIG", "")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "sync", cfg.Publisher.Mode)
	assert.Equal(t, "audit.trails", cfg.Kafka.Topic)
	assert.False(t, cfg.IsDev())
}

func TestFromEnv_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audittrail.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
  env: dev
postgres:
  dsn: postgres://localhost/audit
kafka:
  brokers: ["k1:9092"]
publisher:
  mode: async
  buffer_size: 64
relay:
  interval: 250ms
`), 0o600))

	t.Setenv("AUDITTRAIL_CONFIG", path)
	t.Setenv("AUDITTRAIL_ADDR", ":7070")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.Addr, "env overrides the file")
	assert.True(t, cfg.IsDev())
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 64, cfg.Publisher.BufferSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Relay.Interval)
	assert.Equal(t, 100, cfg.Relay.BatchSize, "unset keys keep their defaults")
}

func TestFromEnv_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown publish mode", map[string]string{"AUDIT_PUBLISH_MODE": "later"}},
		{"bad buffer size", map[string]string{"AUDIT_BUFFER_SIZE": "lots"}},
		{"async without buffer", map[string]string{"AUDIT_PUBLISH_MODE": "async", "AUDIT_BUFFER_SIZE": "0"}},
		{"kafka without outbox", map[string]string{"KAFKA_BROKERS": "k:9092"}},
		{"bad admin rps", map[string]string{"AUDITTRAIL_ADMIN_RPS": "fast"}},
		{"negative admin rps", map[string]string{"AUDITTRAIL_ADMIN_RPS": "-1"}},
		{"bad relay interval", map[string]string{"RELAY_INTERVAL": "soon"}},
		{"missing config file", map[string]string{"AUDITTRAIL_CONFIG": "/does/not/exist.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("AUDITTRAIL_CONFIG", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}
