// Package config loads the photobooth configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/photobooth/internal/logging"
	"github.com/aretw0/photobooth/pkg/domain"
)

// Camera drivers understood by the CLI.
const (
	DriverSynthetic = "synthetic"
	DriverOpenCV    = "opencv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "PHOTOBOOTH_"

// BoothConfig holds the capture sequence parameters.
type BoothConfig struct {
	MaxCaptures      int           `yaml:"max_captures"`
	CountdownSeconds int           `yaml:"countdown_seconds"`
	FrameWidth       int           `yaml:"frame_width"`
	FrameHeight      int           `yaml:"frame_height"`
	TickInterval     time.Duration `yaml:"tick_interval"`
	CompletionDelay  time.Duration `yaml:"completion_delay"`
	MessageDuration  time.Duration `yaml:"message_duration"`
}

// CameraConfig selects the camera implementation.
type CameraConfig struct {
	Driver string `yaml:"driver"` // synthetic or opencv
	Device int    `yaml:"device"` // OpenCV device index
}

// ServerConfig configures the HTTP and MCP listeners.
type ServerConfig struct {
	Port    int `yaml:"port"`
	MCPPort int `yaml:"mcp_port"`
}

// RedisConfig enables the distributed camera lock when URL is set.
type RedisConfig struct {
	URL      string        `yaml:"url"`
	Prefix   string        `yaml:"prefix"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
	LockWait time.Duration `yaml:"lock_wait"` // How long a start waits for a busy camera
}

// LogConfig configures the application logger.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Config aggregates all application configuration.
type Config struct {
	Booth  BoothConfig  `yaml:"booth"`
	Camera CameraConfig `yaml:"camera"`
	Server ServerConfig `yaml:"server"`
	Redis  RedisConfig  `yaml:"redis"`
	Log    LogConfig    `yaml:"log"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	booth := domain.DefaultConfig()
	return &Config{
		Booth: BoothConfig{
			MaxCaptures:      booth.MaxCaptures,
			CountdownSeconds: booth.CountdownSeconds,
			FrameWidth:       booth.FrameWidth,
			FrameHeight:      booth.FrameHeight,
			TickInterval:     booth.TickInterval,
			CompletionDelay:  booth.CompletionDelay,
			MessageDuration:  booth.MessageDuration,
		},
		Camera: CameraConfig{Driver: DriverSynthetic},
		Server: ServerConfig{Port: 8080, MCPPort: 8081},
		Redis:  RedisConfig{Prefix: "photobooth:", LockTTL: time.Minute, LockWait: 2 * time.Second},
		Log:    LogConfig{Level: "info"},
	}
}

// envKeys maps environment variables to config paths.
var envKeys = map[string]string{
	"MAX_CAPTURES":      "booth.max_captures",
	"COUNTDOWN_SECONDS": "booth.countdown_seconds",
	"FRAME_WIDTH":       "booth.frame_width",
	"FRAME_HEIGHT":      "booth.frame_height",
	"TICK_INTERVAL":     "booth.tick_interval",
	"COMPLETION_DELAY":  "booth.completion_delay",
	"MESSAGE_DURATION":  "booth.message_duration",
	"CAMERA_DRIVER":     "camera.driver",
	"CAMERA_DEVICE":     "camera.device",
	"PORT":              "server.port",
	"MCP_PORT":          "server.mcp_port",
	"REDIS_URL":         "redis.url",
	"REDIS_PREFIX":      "redis.prefix",
	"REDIS_LOCK_TTL":    "redis.lock_ttl",
	"REDIS_LOCK_WAIT":   "redis.lock_wait",
	"LOG_LEVEL":         "log.level",
}

// Load reads a YAML file on top of the defaults, applies PHOTOBOOTH_* environment
// overrides and validates the result. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal yaml: %w", err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	overrides := map[string]any{}
	for name, path := range envKeys {
		value, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}
		section, key, _ := strings.Cut(path, ".")
		sub, _ := overrides[section].(map[string]any)
		if sub == nil {
			sub = map[string]any{}
			overrides[section] = sub
		}
		sub[key] = value
	}
	if len(overrides) == 0 {
		return nil
	}
	return c.Merge(overrides)
}

// Merge decodes a loosely typed map (strings, numbers, durations as text) onto the config.
// Keys follow the YAML names. Fields not present keep their value.
func (c *Config) Merge(values map[string]any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "yaml",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		Result:           c,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(values); err != nil {
		return fmt.Errorf("config override: %w", err)
	}
	return nil
}

// Validate checks every count, the driver and the ports.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Domain().Validate(); err != nil {
		errs = append(errs, err)
	}
	switch c.Camera.Driver {
	case DriverSynthetic, DriverOpenCV:
	default:
		errs = append(errs, fmt.Errorf("camera.driver must be %s or %s, got %q", DriverSynthetic, DriverOpenCV, c.Camera.Driver))
	}
	if c.Camera.Device < 0 {
		errs = append(errs, fmt.Errorf("camera.device must be >= 0, got %d", c.Camera.Device))
	}
	for name, port := range map[string]int{"server.port": c.Server.Port, "server.mcp_port": c.Server.MCPPort} {
		if port < 1 || port > 65535 {
			errs = append(errs, fmt.Errorf("%s must be between 1 and 65535, got %d", name, port))
		}
	}
	if c.Redis.URL != "" && c.Redis.LockTTL <= 0 {
		errs = append(errs, fmt.Errorf("redis.lock_ttl must be > 0, got %v", c.Redis.LockTTL))
	}
	if c.Redis.URL != "" && c.Redis.LockWait <= 0 {
		errs = append(errs, fmt.Errorf("redis.lock_wait must be > 0, got %v", c.Redis.LockWait))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Domain converts the booth section to the domain configuration.
func (c *Config) Domain() domain.Config {
	return domain.Config{
		MaxCaptures:      c.Booth.MaxCaptures,
		CountdownSeconds: c.Booth.CountdownSeconds,
		FrameWidth:       c.Booth.FrameWidth,
		FrameHeight:      c.Booth.FrameHeight,
		TickInterval:     c.Booth.TickInterval,
		CompletionDelay:  c.Booth.CompletionDelay,
		MessageDuration:  c.Booth.MessageDuration,
	}
}
