package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is stripped from environment variables before they are
	// mapped onto config paths: LIVEMAP_MQTT_BROKER_URL -> mqtt.broker_url.
	EnvPrefix = "LIVEMAP_"

	// ConfigPathEnvVar points at an explicit YAML config file.
	ConfigPathEnvVar = "LIVEMAP_CONFIG"
)

// DefaultConfigPaths are searched in order when no explicit file is given.
var DefaultConfigPaths = []string{
	"livemap.yaml",
	"config/livemap.yaml",
}

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	MQTT      MQTTConfig      `koanf:"mqtt"`
	Map       MapConfig       `koanf:"map"`
	Recording RecordingConfig `koanf:"recording"`
	Events    EventsConfig    `koanf:"events"`
	Logging   LoggingConfig   `koanf:"logging"`
}

type ServerConfig struct {
	Addr string `koanf:"addr"`
}

// MQTTConfig describes the broker session. The defaults are placeholders
// and are expected to be overridden from a file or the environment.
type MQTTConfig struct {
	BrokerURL       string        `koanf:"broker_url"`
	Username        string        `koanf:"username"`
	Password        string        `koanf:"password"`
	Topic           string        `koanf:"topic"`
	QoS             int           `koanf:"qos"`
	ClientIDPrefix  string        `koanf:"client_id_prefix"`
	ProtocolVersion int           `koanf:"protocol_version"`
	AutoConnect     bool          `koanf:"auto_connect"`
	AutoReconnect   bool          `koanf:"auto_reconnect"`
	ConnectTimeout  time.Duration `koanf:"connect_timeout"`
	KeepAlive       time.Duration `koanf:"keep_alive"`
}

type MapConfig struct {
	CenterLat        float64       `koanf:"center_lat"`
	CenterLng        float64       `koanf:"center_lng"`
	Zoom             int           `koanf:"zoom"`
	RecenterInterval time.Duration `koanf:"recenter_interval"`
	TileURL          string        `koanf:"tile_url"`
	Attribution      string        `koanf:"attribution"`
	MarkerIconURL    string        `koanf:"marker_icon_url"`
	PathColor        string        `koanf:"path_color"`
}

type RecordingConfig struct {
	Enabled bool   `koanf:"enabled"`
	DBPath  string `koanf:"db_path"`
}

type EventsConfig struct {
	LogDir string `koanf:"log_dir"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		MQTT: MQTTConfig{
			BrokerURL:       "wss://broker.example.com:8884/mqtt",
			Topic:           "moveit",
			QoS:             0,
			ClientIDPrefix:  "test_client_",
			ProtocolVersion: 4,
			AutoConnect:     true,
			AutoReconnect:   true,
			ConnectTimeout:  10 * time.Second,
			KeepAlive:       60 * time.Second,
		},
		Map: MapConfig{
			CenterLat:        34.739108680466394,
			CenterLng:        10.71023301460788,
			Zoom:             13,
			RecenterInterval: 2 * time.Second,
			TileURL:          "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png",
			Attribution:      `&copy; <a href="https://www.openstreetmap.org/copyright">OpenStreetMap</a> contributors`,
			PathColor:        "red",
		},
		Recording: RecordingConfig{
			Enabled: true,
			DBPath:  "data/livemap.db",
		},
		Events: EventsConfig{
			LogDir: "logs",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file and
// LIVEMAP_* environment variables, in increasing order of precedence.
// An empty path falls back to LIVEMAP_CONFIG and then DefaultConfigPaths.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransformFunc maps LIVEMAP_SECTION_KEY_NAME to section.key_name.
// Section names never contain underscores, so only the first one splits.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if key == "config" {
		return ""
	}
	section, rest, found := strings.Cut(key, "_")
	if !found {
		return section
	}
	return section + "." + rest
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}

	u, err := url.Parse(c.MQTT.BrokerURL)
	if err != nil || u.Host == "" {
		errs = append(errs, fmt.Errorf("mqtt.broker_url %q is not a valid URL", c.MQTT.BrokerURL))
	} else {
		switch u.Scheme {
		case "ws", "wss", "tcp", "ssl", "tls", "mqtt", "mqtts":
		default:
			errs = append(errs, fmt.Errorf("mqtt.broker_url scheme %q is not supported", u.Scheme))
		}
	}
	if strings.TrimSpace(c.MQTT.Topic) == "" {
		errs = append(errs, errors.New("mqtt.topic is required"))
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS))
	}
	switch c.MQTT.ProtocolVersion {
	case 3, 4:
	default:
		errs = append(errs, fmt.Errorf("mqtt.protocol_version %d is not supported (use 3 or 4)", c.MQTT.ProtocolVersion))
	}
	if c.MQTT.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("mqtt.connect_timeout must be positive"))
	}

	if c.Map.CenterLat < -90 || c.Map.CenterLat > 90 {
		errs = append(errs, fmt.Errorf("map.center_lat %v out of range", c.Map.CenterLat))
	}
	if c.Map.CenterLng < -180 || c.Map.CenterLng > 180 {
		errs = append(errs, fmt.Errorf("map.center_lng %v out of range", c.Map.CenterLng))
	}
	if c.Map.Zoom < 0 || c.Map.Zoom > 22 {
		errs = append(errs, fmt.Errorf("map.zoom %d out of range", c.Map.Zoom))
	}
	if c.Map.RecenterInterval < 0 {
		errs = append(errs, errors.New("map.recenter_interval must not be negative"))
	}

	if c.Recording.Enabled && c.Recording.DBPath == "" {
		errs = append(errs, errors.New("recording.db_path is required when recording is enabled"))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q must be console or json", c.Logging.Format))
	}

	return errors.Join(errs...)
}
