package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned by Validate for out-of-range settings.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	Port         int    `yaml:"port"`
	DatabasePath string `yaml:"database_path"`
	LogDirectory string `yaml:"log_directory"`
	Debug        bool   `yaml:"debug"`

	Camera    CameraConfig    `yaml:"camera"`
	Detector  DetectorConfig  `yaml:"detector"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Snapshots SnapshotsConfig `yaml:"snapshots"`
}

type CameraConfig struct {
	Device         string `yaml:"device"`          // empty = first /dev/video* that opens
	BufferCapacity int    `yaml:"buffer_capacity"` // frames held between capture and processing
	Width          int    `yaml:"width"`
	Height         int    `yaml:"height"`
}

type DetectorConfig struct {
	ModelPath  string  `yaml:"model_path"`
	ConfigPath string  `yaml:"config_path"`
	Confidence float64 `yaml:"confidence"`
	TargetSize int     `yaml:"target_size"`
}

type TrackingConfig struct {
	Labels             []string      `yaml:"labels"`              // notification priority order
	ProcessingInterval int           `yaml:"processing_interval"` // run detection on every Nth frame
	IoUThreshold       float64       `yaml:"iou_threshold"`
	TrackTimeout       int           `yaml:"track_timeout"` // sampling cycles
	Cooldown           time.Duration `yaml:"cooldown"`
	IdleTimeout        time.Duration `yaml:"idle_timeout"` // sustained empty buffer before the consumer gives up
	PollInterval       time.Duration `yaml:"poll_interval"`
}

type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	FeedTopic   string `yaml:"feed_topic"`
	StatusTopic string `yaml:"status_topic"`
	QoS         byte   `yaml:"qos"`
}

type SnapshotsConfig struct {
	Directory     string        `yaml:"directory"`
	BufferLimit   int           `yaml:"buffer_limit"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:         8000,
		DatabasePath: filepath.Join(".", "data", "events.db"),
		LogDirectory: filepath.Join(".", "logs"),
		Camera: CameraConfig{
			BufferCapacity: 2,
		},
		Detector: DetectorConfig{
			ModelPath:  filepath.Join(".", "models", "frozen_inference_graph.pb"),
			ConfigPath: filepath.Join(".", "models", "ssd_mobilenet_v1_coco_2017_11_17.pbtxt"),
			Confidence: 0.5,
			TargetSize: 300,
		},
		Tracking: TrackingConfig{
			Labels:             []string{"cat", "person"},
			ProcessingInterval: 3,
			IoUThreshold:       0.3,
			TrackTimeout:       15,
			Cooldown:           10 * time.Second,
			IdleTimeout:        10 * time.Second,
			PollInterval:       5 * time.Millisecond,
		},
		MQTT: MQTTConfig{
			Enabled:     true,
			Broker:      "tcp://broker.emqx.io:1883",
			ClientID:    "catwatch_detector_001",
			FeedTopic:   "cat/feeding",
			StatusTopic: "cat/status",
		},
		Snapshots: SnapshotsConfig{
			Directory:     filepath.Join(".", "images"),
			BufferLimit:   10,
			FlushInterval: 5 * time.Second,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file named by
// CONFIG_FILE, an optional .env file and the process environment, in that order.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}
	return LoadFile(os.Getenv("CONFIG_FILE"))
}

// LoadFile is Load with an explicit YAML path. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Port = getEnvAsInt("PORT", c.Port)
	c.DatabasePath = getEnv("DB_PATH", c.DatabasePath)
	c.LogDirectory = getEnv("LOG_DIR", c.LogDirectory)
	c.Debug = getEnvAsBool("DEBUG", c.Debug)

	c.Camera.Device = getEnv("CAMERA_DEVICE", c.Camera.Device)
	c.Camera.BufferCapacity = getEnvAsInt("BUFFER_CAPACITY", c.Camera.BufferCapacity)
	c.Camera.Width = getEnvAsInt("CAMERA_WIDTH", c.Camera.Width)
	c.Camera.Height = getEnvAsInt("CAMERA_HEIGHT", c.Camera.Height)

	c.Detector.ModelPath = getEnv("MODEL_PATH", c.Detector.ModelPath)
	c.Detector.ConfigPath = getEnv("CONFIG_PATH", c.Detector.ConfigPath)
	c.Detector.Confidence = getEnvAsFloat("DETECTION_CONFIDENCE", c.Detector.Confidence)
	c.Detector.TargetSize = getEnvAsInt("TARGET_SIZE", c.Detector.TargetSize)

	c.Tracking.Labels = getEnvAsList("TARGET_LABELS", c.Tracking.Labels)
	c.Tracking.ProcessingInterval = getEnvAsInt("PROCESSING_INTERVAL", c.Tracking.ProcessingInterval)
	c.Tracking.IoUThreshold = getEnvAsFloat("IOU_THRESHOLD", c.Tracking.IoUThreshold)
	c.Tracking.TrackTimeout = getEnvAsInt("TRACK_TIMEOUT", c.Tracking.TrackTimeout)
	c.Tracking.Cooldown = getEnvAsDuration("NOTIFY_COOLDOWN", c.Tracking.Cooldown)
	c.Tracking.IdleTimeout = getEnvAsDuration("IDLE_TIMEOUT", c.Tracking.IdleTimeout)
	c.Tracking.PollInterval = getEnvAsDuration("POLL_INTERVAL", c.Tracking.PollInterval)

	c.MQTT.Enabled = getEnvAsBool("MQTT_ENABLED", c.MQTT.Enabled)
	c.MQTT.Broker = getEnv("MQTT_BROKER", c.MQTT.Broker)
	c.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", c.MQTT.ClientID)
	c.MQTT.Username = getEnv("MQTT_USERNAME", c.MQTT.Username)
	c.MQTT.Password = getEnv("MQTT_PASSWORD", c.MQTT.Password)
	c.MQTT.FeedTopic = getEnv("MQTT_FEED_TOPIC", c.MQTT.FeedTopic)
	c.MQTT.StatusTopic = getEnv("MQTT_STATUS_TOPIC", c.MQTT.StatusTopic)
	c.MQTT.QoS = byte(getEnvAsInt("MQTT_QOS", int(c.MQTT.QoS)))

	c.Snapshots.Directory = getEnv("IMAGE_DIR", c.Snapshots.Directory)
	c.Snapshots.BufferLimit = getEnvAsInt("BUFFER_LIMIT", c.Snapshots.BufferLimit)
	c.Snapshots.FlushInterval = getEnvAsDuration("FLUSH_INTERVAL", c.Snapshots.FlushInterval)
}

// Validate checks that every tuning value is usable.
func (c *Config) Validate() error {
	switch {
	case c.Port < 1 || c.Port > 65535:
		return fmt.Errorf("%w: port %d", ErrInvalid, c.Port)
	case c.Camera.BufferCapacity < 1:
		return fmt.Errorf("%w: buffer capacity must be positive, got %d", ErrInvalid, c.Camera.BufferCapacity)
	case c.Detector.Confidence < 0 || c.Detector.Confidence > 1:
		return fmt.Errorf("%w: detection confidence %.2f outside [0,1]", ErrInvalid, c.Detector.Confidence)
	case c.Detector.TargetSize < 1:
		return fmt.Errorf("%w: target size must be positive, got %d", ErrInvalid, c.Detector.TargetSize)
	case len(c.Tracking.Labels) == 0:
		return fmt.Errorf("%w: at least one target label is required", ErrInvalid)
	case c.Tracking.ProcessingInterval < 1:
		return fmt.Errorf("%w: processing interval must be positive, got %d", ErrInvalid, c.Tracking.ProcessingInterval)
	case c.Tracking.IoUThreshold <= 0 || c.Tracking.IoUThreshold >= 1:
		return fmt.Errorf("%w: iou threshold %.2f outside (0,1)", ErrInvalid, c.Tracking.IoUThreshold)
	case c.Tracking.TrackTimeout < 1:
		return fmt.Errorf("%w: track timeout must be positive, got %d", ErrInvalid, c.Tracking.TrackTimeout)
	case c.Tracking.Cooldown < 0:
		return fmt.Errorf("%w: negative cooldown %v", ErrInvalid, c.Tracking.Cooldown)
	case c.Tracking.PollInterval <= 0:
		return fmt.Errorf("%w: poll interval must be positive, got %v", ErrInvalid, c.Tracking.PollInterval)
	case c.Snapshots.FlushInterval <= 0:
		return fmt.Errorf("%w: snapshot flush interval must be positive, got %v", ErrInvalid, c.Snapshots.FlushInterval)
	case c.MQTT.QoS > 2:
		return fmt.Errorf("%w: mqtt qos %d", ErrInvalid, c.MQTT.QoS)
	case c.MQTT.Enabled && c.MQTT.Broker == "":
		return fmt.Errorf("%w: mqtt broker is required when mqtt is enabled", ErrInvalid)
	}
	for _, l := range c.Tracking.Labels {
		if strings.TrimSpace(l) == "" {
			return fmt.Errorf("%w: empty target label", ErrInvalid)
		}
	}
	return nil
}

// ServerAddress returns the HTTP listen address.
func (c *Config) ServerAddress() string {
	return fmt.Sprintf(":%d", c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("10s") or plain seconds ("10").
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(strings.ToLower(part)); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
