/*
Package config loads crewtime settings.

SOURCES (later wins):
  1. Defaults (see Default)
  2. crewtime.yaml in the working directory, or the file given with --config
  3. Environment variables prefixed CREWTIME_, with dots as underscores:
     CREWTIME_SERVER_PORT, CREWTIME_REMOTE_URL, CREWTIME_SYNC_INTERVAL ...

EXAMPLE crewtime.yaml:
  server:
    port: 8080
  database:
    path: ./data/crewtime.db
  remote:
    url: https://hub.example.com
    token: s3cret
  sync:
    interval: 2m
*/
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Device   DeviceConfig
	Remote   RemoteConfig
	Sync     SyncConfig
	Hub      HubConfig
	OCR      OCRConfig
}

type ServerConfig struct {
	Port            int
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	// Path of the SQLite file. ":memory:" keeps everything in memory.
	Path string
}

type DeviceConfig struct {
	// ID names this device as the origin of its writes. Generated and
	// persisted on first start when empty.
	ID string
}

type RemoteConfig struct {
	URL     string // empty disables sync
	Token   string
	Timeout time.Duration
}

type SyncConfig struct {
	Interval   time.Duration
	BatchSize  int
	BackoffMax time.Duration
}

type HubConfig struct {
	Port     int
	Database string
	Token    string
}

type OCRConfig struct {
	URL     string // empty disables scans
	Token   string
	Timeout time.Duration
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			AllowedOrigins:  []string{"http://localhost:5173", "http://localhost:8080"},
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{Path: "crewtime.db"},
		Remote:   RemoteConfig{Timeout: 15 * time.Second},
		Sync: SyncConfig{
			Interval:   5 * time.Minute,
			BatchSize:  100,
			BackoffMax: 10 * time.Minute,
		},
		Hub: HubConfig{Port: 9090, Database: "crewtime-hub.db"},
		OCR: OCRConfig{Timeout: 30 * time.Second},
	}
}

// Load reads settings from path, or from an optional crewtime.yaml in the
// working directory when path is empty. A missing explicit file is an
// error; a missing default file is not.
func Load(path string) (Config, error) {
	def := Default()

	v := viper.New()
	v.SetDefault("server.port", def.Server.Port)
	v.SetDefault("server.allowed_origins", def.Server.AllowedOrigins)
	v.SetDefault("server.shutdown_timeout", def.Server.ShutdownTimeout)
	v.SetDefault("database.path", def.Database.Path)
	v.SetDefault("device.id", def.Device.ID)
	v.SetDefault("remote.url", def.Remote.URL)
	v.SetDefault("remote.token", def.Remote.Token)
	v.SetDefault("remote.timeout", def.Remote.Timeout)
	v.SetDefault("sync.interval", def.Sync.Interval)
	v.SetDefault("sync.batch_size", def.Sync.BatchSize)
	v.SetDefault("sync.backoff_max", def.Sync.BackoffMax)
	v.SetDefault("hub.port", def.Hub.Port)
	v.SetDefault("hub.database", def.Hub.Database)
	v.SetDefault("hub.token", def.Hub.Token)
	v.SetDefault("ocr.url", def.OCR.URL)
	v.SetDefault("ocr.token", def.OCR.Token)
	v.SetDefault("ocr.timeout", def.OCR.Timeout)

	v.SetEnvPrefix("CREWTIME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("crewtime")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("failed to read crewtime.yaml: %w", err)
			}
		}
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            v.GetInt("server.port"),
			AllowedOrigins:  v.GetStringSlice("server.allowed_origins"),
			ShutdownTimeout: v.GetDuration("server.shutdown_timeout"),
		},
		Database: DatabaseConfig{Path: v.GetString("database.path")},
		Device:   DeviceConfig{ID: strings.TrimSpace(v.GetString("device.id"))},
		Remote: RemoteConfig{
			URL:     strings.TrimSpace(v.GetString("remote.url")),
			Token:   v.GetString("remote.token"),
			Timeout: v.GetDuration("remote.timeout"),
		},
		Sync: SyncConfig{
			Interval:   v.GetDuration("sync.interval"),
			BatchSize:  v.GetInt("sync.batch_size"),
			BackoffMax: v.GetDuration("sync.backoff_max"),
		},
		Hub: HubConfig{
			Port:     v.GetInt("hub.port"),
			Database: v.GetString("hub.database"),
			Token:    v.GetString("hub.token"),
		},
		OCR: OCRConfig{
			URL:     strings.TrimSpace(v.GetString("ocr.url")),
			Token:   v.GetString("ocr.token"),
			Timeout: v.GetDuration("ocr.timeout"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SyncEnabled reports whether a remote hub is configured.
func (c Config) SyncEnabled() bool { return c.Remote.URL != "" }

// OCREnabled reports whether an OCR service is configured.
func (c Config) OCREnabled() bool { return c.OCR.URL != "" }

// Validate checks value ranges. All problems are reported together.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(validPort(c.Server.Port), "server.port %d out of range", c.Server.Port)
	check(validPort(c.Hub.Port), "hub.port %d out of range", c.Hub.Port)
	check(c.Server.ShutdownTimeout > 0, "server.shutdown_timeout must be positive")
	check(c.Database.Path != "", "database.path is required")
	check(c.Hub.Database != "", "hub.database is required")
	check(c.Remote.Timeout > 0, "remote.timeout must be positive")
	check(c.Sync.Interval > 0, "sync.interval must be positive")
	check(c.Sync.BatchSize > 0, "sync.batch_size must be positive")
	check(c.Sync.BackoffMax > 0, "sync.backoff_max must be positive")
	check(c.OCR.Timeout > 0, "ocr.timeout must be positive")
	if c.Remote.URL != "" {
		check(validURL(c.Remote.URL), "remote.url %q must be an http(s) URL", c.Remote.URL)
	}
	if c.OCR.URL != "" {
		check(validURL(c.OCR.URL), "ocr.url %q must be an http(s) URL", c.OCR.URL)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func validPort(p int) bool { return p > 0 && p < 65536 }

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
