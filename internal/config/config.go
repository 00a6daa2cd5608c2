// Package config loads orbstate configuration: built-in defaults, then an
// optional YAML file, then ORBSTATE_* environment variables, then validation.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/star/orbstate/internal/auth"
	"github.com/star/orbstate/internal/celestrak"
	"github.com/star/orbstate/internal/dataset"
	"github.com/star/orbstate/internal/propagation"
	"github.com/star/orbstate/internal/sgp4"
	"github.com/star/orbstate/internal/tle"
)

// EnvPrefix prefixes every environment variable, e.g. ORBSTATE_LOG_LEVEL.
const EnvPrefix = "ORBSTATE"

// Config is the complete application configuration.
type Config struct {
	Log         LogConfig         `yaml:"log" envconfig:"LOG"`
	Propagation PropagationConfig `yaml:"propagation" envconfig:"PROPAGATION"`
	Parse       ParseConfig       `yaml:"parse" envconfig:"PARSE"`
	Dataset     DatasetConfig     `yaml:"dataset" envconfig:"DATASET"`
	Fetch       FetchConfig       `yaml:"fetch" envconfig:"FETCH"`
	Server      ServerConfig      `yaml:"server" envconfig:"SERVER"`
	Auth        AuthConfig        `yaml:"auth" envconfig:"AUTH"`
	Output      OutputConfig      `yaml:"output" envconfig:"OUTPUT"`
	Store       StoreConfig       `yaml:"store" envconfig:"STORE"`
	Metrics     MetricsConfig     `yaml:"metrics" envconfig:"METRICS"`
}

type LogConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" envconfig:"FORMAT" validate:"oneof=json text"`
}

// PropagationConfig tunes SGP4 runs. Workers 0 means one per CPU.
type PropagationConfig struct {
	Workers            int     `yaml:"workers" envconfig:"WORKERS" validate:"min=0,max=1024"`
	Gravity            string  `yaml:"gravity" envconfig:"GRAVITY" validate:"oneof=wgs72 wgs72old wgs84"`
	DecayAltitudeKm    float64 `yaml:"decay_altitude_km" envconfig:"DECAY_ALTITUDE_KM" validate:"min=0"`
	ValidityWindowDays float64 `yaml:"validity_window_days" envconfig:"VALIDITY_WINDOW_DAYS" validate:"min=0"`
}

type ParseConfig struct {
	VerifyChecksum bool `yaml:"verify_checksum" envconfig:"VERIFY_CHECKSUM"`
}

type DatasetConfig struct {
	SortByKey bool `yaml:"sort_by_key" envconfig:"SORT_BY_KEY"`
}

type FetchConfig struct {
	BaseURL       string        `yaml:"base_url" envconfig:"BASE_URL" validate:"required,url"`
	Format        string        `yaml:"format" envconfig:"FORMAT" validate:"oneof=tle json"`
	Timeout       time.Duration `yaml:"timeout" envconfig:"TIMEOUT" validate:"min=1s"`
	Rate          float64       `yaml:"rate" envconfig:"RATE" validate:"gt=0"`
	Burst         int           `yaml:"burst" envconfig:"BURST" validate:"min=1"`
	Retries       int           `yaml:"retries" envconfig:"RETRIES" validate:"min=0,max=10"`
	Concurrency   int           `yaml:"concurrency" envconfig:"CONCURRENCY" validate:"min=1,max=64"`
	CacheDir      string        `yaml:"cache_dir" envconfig:"CACHE_DIR"`
	MaxCacheFiles int           `yaml:"max_cache_files" envconfig:"MAX_CACHE_FILES" validate:"min=1"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" envconfig:"ADDR" validate:"required"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"min=1s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"min=1s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" validate:"min=1s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" validate:"min=1s"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" envconfig:"MAX_BODY_BYTES" validate:"min=1024"`
	MaxEpochs       int           `yaml:"max_epochs" envconfig:"MAX_EPOCHS" validate:"min=1"`
	TrustProxy      bool          `yaml:"trust_proxy" envconfig:"TRUST_PROXY"`
}

type AuthConfig struct {
	Enabled bool   `yaml:"enabled" envconfig:"ENABLED"`
	Token   string `yaml:"token" envconfig:"TOKEN" validate:"required_if=Enabled true"`
}

type OutputConfig struct {
	Format string `yaml:"format" envconfig:"FORMAT" validate:"oneof=csv json xlsx snapshot table"`
	Path   string `yaml:"path" envconfig:"PATH"`
}

// StoreConfig names the SQLite database; empty disables persistence.
type StoreConfig struct {
	Path string `yaml:"path" envconfig:"PATH"`
}

// MetricsConfig names a node-exporter textfile written after batch runs.
type MetricsConfig struct {
	TextfilePath string `yaml:"textfile_path" envconfig:"TEXTFILE_PATH"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "json"},
		Propagation: PropagationConfig{
			Gravity:            "wgs72",
			ValidityWindowDays: 30,
		},
		Fetch: FetchConfig{
			BaseURL:       celestrak.DefaultBaseURL,
			Format:        "tle",
			Timeout:       30 * time.Second,
			Rate:          1,
			Burst:         1,
			Retries:       2,
			Concurrency:   4,
			MaxCacheFiles: 5,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 5 * time.Second,
			MaxBodyBytes:    10 << 20,
			MaxEpochs:       1000,
		},
		Output: OutputConfig{Format: "csv"},
	}
}

// Load builds the configuration. path may be empty; a named file that does
// not exist is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("loading config from env: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) normalize() {
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	c.Propagation.Gravity = strings.ToLower(strings.TrimSpace(c.Propagation.Gravity))
	c.Fetch.Format = strings.ToLower(strings.TrimSpace(c.Fetch.Format))
	c.Output.Format = strings.ToLower(strings.TrimSpace(c.Output.Format))
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and reports every violation at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config validation failed: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.ActualTag(), fe.Value()))
	}
	return fmt.Errorf("config validation failed: %s", strings.Join(msgs, "; "))
}

// SlogLevel maps Log.Level to a slog level.
func (c LogConfig) SlogLevel() slog.Level {
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// PropagationConfig converts to the propagator's configuration.
func (c *Config) PropagationConfig() (propagation.Config, error) {
	grav, err := sgp4.GravityByName(c.Propagation.Gravity)
	if err != nil {
		return propagation.Config{}, err
	}
	pc := propagation.DefaultConfig()
	pc.Gravity = grav
	pc.DecayAltitudeKm = c.Propagation.DecayAltitudeKm
	pc.ValidityWindow = time.Duration(c.Propagation.ValidityWindowDays * 24 * float64(time.Hour))
	if c.Propagation.Workers > 0 {
		pc.Workers = c.Propagation.Workers
	}
	return pc, nil
}

// AssemblerConfig converts to the dataset assembler's configuration.
func (c *Config) AssemblerConfig() (dataset.Config, error) {
	pc, err := c.PropagationConfig()
	if err != nil {
		return dataset.Config{}, err
	}
	return dataset.Config{
		Propagation: pc,
		Parse:       tle.ParseOptions{VerifyChecksum: c.Parse.VerifyChecksum},
		SortByKey:   c.Dataset.SortByKey,
	}, nil
}

// ClientOptions converts to CelesTrak client options.
func (c *Config) ClientOptions() (celestrak.Options, error) {
	f, err := celestrak.ParseFormat(c.Fetch.Format)
	if err != nil {
		return celestrak.Options{}, err
	}
	return celestrak.Options{
		BaseURL:     c.Fetch.BaseURL,
		Format:      f,
		Timeout:     c.Fetch.Timeout,
		Rate:        c.Fetch.Rate,
		Burst:       c.Fetch.Burst,
		Retries:     c.Fetch.Retries,
		Concurrency: c.Fetch.Concurrency,
	}, nil
}

// AuthConfig converts to the bearer-token middleware configuration.
func (c *Config) AuthConfig() auth.Config {
	return auth.Config{Enabled: c.Auth.Enabled, Token: c.Auth.Token}
}
