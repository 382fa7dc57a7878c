package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const appName = "dsa-recorder"

type Config struct {
	LogLevel string        `mapstructure:"log_level" yaml:"log_level"`
	Audio    AudioConfig   `mapstructure:"audio" yaml:"audio"`
	Storage  StorageConfig `mapstructure:"storage" yaml:"storage"`
	Metrics  MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	path string
}

type AudioConfig struct {
	Backend        string `mapstructure:"backend" yaml:"backend"` // "portaudio" or "miniaudio"
	Device         string `mapstructure:"device" yaml:"device"`   // display name, empty for the system default
	SampleRateHint int    `mapstructure:"sample_rate_hint" yaml:"sample_rate_hint"`
	ChannelHint    int    `mapstructure:"channel_hint" yaml:"channel_hint"`
	QueueSize      int    `mapstructure:"queue_size" yaml:"queue_size"`
}

type StorageConfig struct {
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`
}

type MetricsConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen"` // e.g. "127.0.0.1:9464", empty disables
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("audio.backend", "portaudio")
	v.SetDefault("audio.device", "")
	v.SetDefault("audio.sample_rate_hint", 0)
	v.SetDefault("audio.channel_hint", 0)
	v.SetDefault("audio.queue_size", 16)
	v.SetDefault("storage.data_dir", "")
	v.SetDefault("metrics.listen", "")
}

// Load reads the YAML config at path (DefaultPath when empty), applying
// defaults and DSAREC_* environment overrides. A missing file is not an
// error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("DSAREC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	cfg := &Config{path: path}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.Storage.DataDir = expandPath(cfg.Storage.DataDir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	switch strings.ToLower(c.Audio.Backend) {
	case "portaudio", "miniaudio":
	default:
		return fmt.Errorf("invalid audio.backend %q (want portaudio or miniaudio)", c.Audio.Backend)
	}
	if c.Audio.SampleRateHint < 0 {
		return fmt.Errorf("invalid audio.sample_rate_hint %d", c.Audio.SampleRateHint)
	}
	if c.Audio.ChannelHint < 0 {
		return fmt.Errorf("invalid audio.channel_hint %d", c.Audio.ChannelHint)
	}
	if c.Audio.QueueSize <= 0 {
		return fmt.Errorf("invalid audio.queue_size %d", c.Audio.QueueSize)
	}
	return nil
}

// Save writes the config back to the file it was loaded from.
func (c *Config) Save() error {
	path := c.Path()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// Path is the file this config is loaded from and saved to.
func (c *Config) Path() string {
	if c.path == "" {
		return DefaultPath()
	}
	return c.path
}

// SetPath changes where Save writes.
func (c *Config) SetPath(path string) { c.path = path }

// DataDir is where the database and recordings live.
func (c *Config) DataDir() string {
	if c.Storage.DataDir != "" {
		return c.Storage.DataDir
	}
	return filepath.Join(dataHome(), appName)
}

func (c *Config) RecordingsDir() string {
	return filepath.Join(c.DataDir(), "recordings")
}

func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir(), appName+".db")
}

// EnsureRecordingsDir creates the recordings directory if needed and
// returns it.
func (c *Config) EnsureRecordingsDir() (string, error) {
	dir := c.RecordingsDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create recordings directory: %w", err)
	}
	return dir, nil
}

// DefaultPath returns the platform-specific config file path
func DefaultPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, appName, "config.yaml")
}

func dataHome() string {
	switch runtime.GOOS {
	case "darwin":
		return os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		return os.Getenv("LOCALAPPDATA")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return xdg
		}
		return os.Getenv("HOME") + "/.local/share"
	}
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
