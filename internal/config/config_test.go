package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"PORT", "DB_PATH", "LOG_DIR", "DEBUG", "CAMERA_DEVICE", "BUFFER_CAPACITY",
	"MODEL_PATH", "CONFIG_PATH", "DETECTION_CONFIDENCE", "TARGET_SIZE",
	"TARGET_LABELS", "PROCESSING_INTERVAL", "IOU_THRESHOLD", "TRACK_TIMEOUT",
	"NOTIFY_COOLDOWN", "IDLE_TIMEOUT", "POLL_INTERVAL", "MQTT_ENABLED",
	"MQTT_BROKER", "MQTT_QOS", "IMAGE_DIR", "BUFFER_LIMIT", "FLUSH_INTERVAL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoadFile_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Camera.BufferCapacity)
	assert.Equal(t, 3, cfg.Tracking.ProcessingInterval)
	assert.Equal(t, 0.3, cfg.Tracking.IoUThreshold)
	assert.Equal(t, 15, cfg.Tracking.TrackTimeout)
	assert.Equal(t, 10*time.Second, cfg.Tracking.Cooldown)
	assert.Equal(t, []string{"cat", "person"}, cfg.Tracking.Labels)
	assert.Equal(t, "cat/feeding", cfg.MQTT.FeedTopic)
	assert.Equal(t, ":8000", cfg.ServerAddress())
}

func TestLoadFile_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PROCESSING_INTERVAL", "5")
	t.Setenv("IOU_THRESHOLD", "0.4")
	t.Setenv("NOTIFY_COOLDOWN", "30")
	t.Setenv("IDLE_TIMEOUT", "1500ms")
	t.Setenv("TARGET_LABELS", " Person , cat ,")
	t.Setenv("MQTT_ENABLED", "false")

	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Tracking.ProcessingInterval)
	assert.Equal(t, 0.4, cfg.Tracking.IoUThreshold)
	assert.Equal(t, 30*time.Second, cfg.Tracking.Cooldown)
	assert.Equal(t, 1500*time.Millisecond, cfg.Tracking.IdleTimeout)
	assert.Equal(t, []string{"person", "cat"}, cfg.Tracking.Labels)
	assert.False(t, cfg.MQTT.Enabled)
}

func TestLoadFile_InvalidEnvKeepsDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRACK_TIMEOUT", "abc")
	t.Setenv("NOTIFY_COOLDOWN", "soon")

	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, 15, cfg.Tracking.TrackTimeout)
	assert.Equal(t, 10*time.Second, cfg.Tracking.Cooldown)
}

func TestLoadFile_YAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "catwatch.yaml")
	yamlDoc := `
port: 9090
tracking:
  labels: [dog]
  processing_interval: 2
  cooldown: 1m
mqtt:
  enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, []string{"dog"}, cfg.Tracking.Labels)
	assert.Equal(t, 2, cfg.Tracking.ProcessingInterval)
	assert.Equal(t, time.Minute, cfg.Tracking.Cooldown)
	assert.Equal(t, 15, cfg.Tracking.TrackTimeout, "unset keys keep defaults")
	assert.False(t, cfg.MQTT.Enabled)
}

func TestLoadFile_EnvWinsOverYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "catwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: 9090\n"), 0644))
	t.Setenv("PORT", "7070")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Port)
}

func TestLoadFile_MissingFile(t *testing.T) {
	clearEnv(t)
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Port = 0 }},
		{"buffer capacity", func(c *Config) { c.Camera.BufferCapacity = 0 }},
		{"confidence", func(c *Config) { c.Detector.Confidence = 1.5 }},
		{"target size", func(c *Config) { c.Detector.TargetSize = 0 }},
		{"labels", func(c *Config) { c.Tracking.Labels = nil }},
		{"blank label", func(c *Config) { c.Tracking.Labels = []string{"cat", " "} }},
		{"interval", func(c *Config) { c.Tracking.ProcessingInterval = 0 }},
		{"iou low", func(c *Config) { c.Tracking.IoUThreshold = 0 }},
		{"iou high", func(c *Config) { c.Tracking.IoUThreshold = 1 }},
		{"timeout", func(c *Config) { c.Tracking.TrackTimeout = 0 }},
		{"cooldown", func(c *Config) { c.Tracking.Cooldown = -time.Second }},
		{"poll", func(c *Config) { c.Tracking.PollInterval = 0 }},
		{"flush interval", func(c *Config) { c.Snapshots.FlushInterval = 0 }},
		{"qos", func(c *Config) { c.MQTT.QoS = 3 }},
		{"broker", func(c *Config) { c.MQTT.Broker = "" }},
	}

	if err := Default().Validate(); err != nil {
		t.Fatalf("default config must be valid: %v", err)
	}

	for _, tt := range tests {
		cfg := Default()
		tt.mutate(cfg)
		err := cfg.Validate()
		if !errors.Is(err, ErrInvalid) {
			t.Errorf("%s: expected ErrInvalid, got %v", tt.name, err)
		}
	}
}
