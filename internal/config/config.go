// Package config loads narrator.yaml: pacing, narration provider, audio
// cache and server settings.
//
// Loading starts from Default, overlays the file with strict decoding
// (unknown keys are an error) and then applies environment overrides for
// secrets and connection strings.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/narrator/internal/audiocache"
	"github.com/roach88/narrator/internal/narration"
	"github.com/roach88/narrator/internal/narration/cloud"
	"github.com/roach88/narrator/internal/narration/device"
	"github.com/roach88/narrator/internal/sequencer"
)

// Environment variables read by ApplyEnv.
const (
	EnvAPIKey   = "ELEVENLABS_API_KEY"
	EnvRedisURL = "NARRATOR_REDIS_URL"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "narrator.yaml"

// Narration providers.
const (
	ProviderDevice = "device"
	ProviderCloud  = "cloud"
	ProviderNone   = "none"
)

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	CacheNone   = "none"
)

// Config is the whole configuration file.
type Config struct {
	Timing    Timing    `yaml:"timing"`
	Narration Narration `yaml:"narration"`
	Cache     Cache     `yaml:"cache"`
	Server    Server    `yaml:"server"`
}

// Timing holds the pacing delays.
type Timing struct {
	Settle    time.Duration `yaml:"settle"`
	Narration time.Duration `yaml:"narration"`
	Fallback  time.Duration `yaml:"fallback"`
}

// Narration selects and tunes the speech provider.
type Narration struct {
	Provider string         `yaml:"provider"`
	Enabled  bool           `yaml:"enabled"`
	Device   device.Options `yaml:"device"`
	Cloud    cloud.Options  `yaml:"cloud"`

	// Player is the command used to play cloud audio. Empty picks the first
	// installed player; "none" discards the audio.
	Player string `yaml:"player"`
}

// Cache selects where synthesized audio is kept.
type Cache struct {
	Backend    string        `yaml:"backend"`
	URL        string        `yaml:"url"`
	TTL        time.Duration `yaml:"ttl"`
	MaxEntries int           `yaml:"max_entries"`
}

// Server configures the HTTP control surface.
type Server struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Timing: Timing{
			Settle:    sequencer.DefaultSettleDelay,
			Narration: sequencer.DefaultNarrationDelay,
			Fallback:  narration.DefaultFallbackDelay,
		},
		Narration: Narration{
			Provider: ProviderDevice,
			Enabled:  true,
			Device:   device.DefaultOptions(),
			Cloud:    cloud.Options{}.WithDefaults(),
		},
		Cache: Cache{
			Backend:    CacheMemory,
			TTL:        audiocache.DefaultTTL,
			MaxEntries: audiocache.DefaultMaxEntries,
		},
		Server: Server{
			Addr:            "127.0.0.1:8080",
			ShutdownTimeout: 5 * time.Second,
		},
	}
}

// Load reads path over the defaults and applies the environment. An empty
// path tries DefaultFile and falls back to the defaults if it is missing.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	case !explicit && errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Parse decodes data over the defaults without touching the environment.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(data); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// ApplyEnv overrides secrets and connection strings from the environment.
// A Redis URL also switches the cache to Redis.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvAPIKey); ok && v != "" {
		c.Narration.Cloud.APIKey = v
	}
	if v, ok := lookup(EnvRedisURL); ok && v != "" {
		c.Cache.URL = v
		c.Cache.Backend = CacheRedis
	}
}

// Validate checks values that decoding cannot.
func (c *Config) Validate() error {
	t := c.Timing
	if t.Settle < 0 || t.Narration < 0 || t.Fallback < 0 {
		return errors.New("timing: delays must not be negative")
	}

	switch c.Narration.Provider {
	case ProviderDevice, ProviderCloud, ProviderNone:
	default:
		return fmt.Errorf("narration.provider: unknown provider %q (want device, cloud or none)", c.Narration.Provider)
	}
	if v := c.Narration.Device.Volume; v < 0 || v > 2 {
		return fmt.Errorf("narration.device.volume: %v out of range 0..2", v)
	}
	if c.Narration.Device.Rate < 0 {
		return errors.New("narration.device.rate: must not be negative")
	}

	switch c.Cache.Backend {
	case CacheMemory, CacheNone:
	case CacheRedis:
		if c.Cache.URL == "" {
			return fmt.Errorf("cache.url: required for the redis backend (or set %s)", EnvRedisURL)
		}
	default:
		return fmt.Errorf("cache.backend: unknown backend %q (want memory, redis or none)", c.Cache.Backend)
	}
	if c.Cache.MaxEntries < 0 {
		return errors.New("cache.max_entries: must not be negative")
	}

	if c.Server.Addr == "" {
		return errors.New("server.addr: required")
	}
	return nil
}
