// Package config loads duewatch settings from a YAML file and DUEWATCH_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/t77yq/duewatch/internal/classifier"
)

// envPrefix is the environment variable prefix for every setting
const envPrefix = "DUEWATCH"

// Config is the full service configuration
type Config struct {
	App        AppConfig          `mapstructure:"app"`
	Log        LogConfig          `mapstructure:"log"`
	NATS       NATSConfig         `mapstructure:"nats"`
	Backend    BackendConfig      `mapstructure:"backend"`
	Classifier classifier.Options `mapstructure:"classifier"`
	Schedule   ScheduleConfig     `mapstructure:"schedule"`
	Storage    StorageConfig      `mapstructure:"storage"`
	Notify     NotifyConfig       `mapstructure:"notify"`
	Metrics    MetricsConfig      `mapstructure:"metrics"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type NATSConfig struct {
	URLs           []string      `mapstructure:"urls"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ConnectRetries int           `mapstructure:"connect_retries"`
}

// BackendConfig points at the REST backend the entities are fetched from
type BackendConfig struct {
	BaseURL           string          `mapstructure:"base_url"`
	Token             string          `mapstructure:"token"`
	Timeout           time.Duration   `mapstructure:"timeout"`
	MaxAttempts       int             `mapstructure:"max_attempts"`
	RetryInitialDelay time.Duration   `mapstructure:"retry_initial_delay"`
	RetryMaxDelay     time.Duration   `mapstructure:"retry_max_delay"`
	Endpoints         EndpointsConfig `mapstructure:"endpoints"`
}

// EndpointsConfig holds the collection path of each entity kind
type EndpointsConfig struct {
	Habilitaciones   string `mapstructure:"habilitaciones"`
	PlanesMejora     string `mapstructure:"planes_mejora"`
	Servicios        string `mapstructure:"servicios"`
	Autoevaluaciones string `mapstructure:"autoevaluaciones"`
	Hallazgos        string `mapstructure:"hallazgos"`
}

type ScheduleConfig struct {
	Evaluate  string        `mapstructure:"evaluate"`
	Cleanup   string        `mapstructure:"cleanup"`
	Retention time.Duration `mapstructure:"retention"`
}

type StorageConfig struct {
	Path string `mapstructure:"path"`
}

type NotifyConfig struct {
	Email EmailConfig `mapstructure:"email"`
}

type EmailConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	Host       string   `mapstructure:"host"`
	Port       int      `mapstructure:"port"`
	Username   string   `mapstructure:"username"`
	Password   string   `mapstructure:"password"`
	From       string   `mapstructure:"from"`
	Recipients []string `mapstructure:"recipients"`
}

type MetricsConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)
	return v
}

// Load reads the YAML file at path, merges DUEWATCH_* overrides, applies
// defaults and validates the result
func Load(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
	}

	return finalize(v)
}

// LoadFromEnv builds a Config from defaults and environment variables only
func LoadFromEnv() (*Config, error) {
	return finalize(newViper())
}

func finalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks the settings that would otherwise fail late at runtime
func (c *Config) Validate() error {
	var errs []error

	if len(c.NATS.URLs) == 0 {
		errs = append(errs, errors.New("nats.urls must not be empty"))
	}
	if c.Backend.BaseURL == "" {
		errs = append(errs, errors.New("backend.base_url must be set"))
	}
	if c.Backend.MaxAttempts < 1 {
		errs = append(errs, errors.New("backend.max_attempts must be at least 1"))
	}
	if c.Storage.Path == "" {
		errs = append(errs, errors.New("storage.path must be set"))
	}

	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.Schedule.Evaluate); err != nil {
		errs = append(errs, fmt.Errorf("schedule.evaluate: %w", err))
	}
	if _, err := parser.Parse(c.Schedule.Cleanup); err != nil {
		errs = append(errs, fmt.Errorf("schedule.cleanup: %w", err))
	}

	if c.Notify.Email.Enabled {
		if c.Notify.Email.Host == "" || c.Notify.Email.From == "" {
			errs = append(errs, errors.New("notify.email requires host and from"))
		}
		if len(c.Notify.Email.Recipients) == 0 {
			errs = append(errs, errors.New("notify.email requires at least one recipient"))
		}
	}

	return errors.Join(errs...)
}
