package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValidOnceIdentified(t *testing.T) {
	cfg := Default()
	cfg.Device.ID = "dev-1"
	assert.NoError(t, Validate(cfg))

	assert.Equal(t, 8000, cfg.Runtime.ArenaBytes)
	assert.Equal(t, 100000, cfg.Runtime.MaxSteps)
	assert.Equal(t, 2, cfg.Runtime.QueueCapacity)
	assert.Equal(t, 30*time.Second, cfg.EventTTL())
	assert.Equal(t, 10*time.Millisecond, cfg.TickInterval())
	assert.Equal(t, 10*time.Second, cfg.CleanupInterval())
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)

	id, err := uuid.Parse(cfg.Device.ID)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())
	assert.Equal(t, "device", cfg.Device.Type)
}

func TestParse_PartialKeepsDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
device:
  id: kitchen-1
runtime:
  arena_bytes: 16000
  tick_ms: 5
store:
  path: ""
`))
	require.NoError(t, err)

	assert.Equal(t, "kitchen-1", cfg.Device.ID)
	assert.Equal(t, 16000, cfg.Runtime.ArenaBytes)
	assert.Equal(t, 5*time.Millisecond, cfg.TickInterval())
	assert.Equal(t, 256, cfg.Runtime.MaxDepth)
	assert.Equal(t, 16, cfg.Bus.ChannelCapacity)
	assert.Empty(t, cfg.Store.Path)
}

func TestParse_RejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("runtime:\n  arena: 100\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "arena")
}

func TestParse_SchemaViolations(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"arena too small", "runtime:\n  arena_bytes: 10\n", "arena_bytes"},
		{"zero tick", "runtime:\n  tick_ms: 0\n", "tick_ms"},
		{"queue too large", "runtime:\n  queue_capacity: 1000\n", "queue_capacity"},
		{"bad device id", "device:\n  id: \"a b\"\n", "id"},
		{"empty device type", "device:\n  type: \"\"\n", "type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)

			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "got %T: %v", err, err)
			assert.Contains(t, ve.Error(), tt.field)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.yaml")
	require.NoError(t, os.WriteFile(path, []byte("device:\n  id: d1\n  type: sensor\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "d1", cfg.Device.ID)
	assert.Equal(t, "sensor", cfg.Device.Type)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}
