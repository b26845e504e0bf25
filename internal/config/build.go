package config

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/narrator/internal/audiocache"
	"github.com/roach88/narrator/internal/narration"
	"github.com/roach88/narrator/internal/narration/cloud"
	"github.com/roach88/narrator/internal/narration/device"
)

// PlayerNone discards cloud audio instead of playing it.
const PlayerNone = "none"

// Providers is the narration capability and audio cache built from a
// Config. Close releases both.
type Providers struct {
	Capability narration.Capability
	Cache      audiocache.Cache

	closers []func() error
}

// Close releases the capability and the cache.
func (p *Providers) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BuildOption adjusts how providers are built.
type BuildOption func(*buildOptions)

type buildOptions struct {
	device []device.Option
	cloud  []cloud.Option
	lookup func(string) (string, error)
}

// WithDeviceOptions passes extra options to the device speaker.
func WithDeviceOptions(opts ...device.Option) BuildOption {
	return func(b *buildOptions) { b.device = append(b.device, opts...) }
}

// WithCloudOptions passes extra options to the cloud client. They are
// applied after the configured player and cache.
func WithCloudOptions(opts ...cloud.Option) BuildOption {
	return func(b *buildOptions) { b.cloud = append(b.cloud, opts...) }
}

// WithPlayerLookup replaces exec.LookPath when searching for an audio player.
func WithPlayerLookup(f func(string) (string, error)) BuildOption {
	return func(b *buildOptions) { b.lookup = f }
}

// Build creates the configured narration capability. The cache is only
// connected for the cloud provider, the one that uses it.
func (c *Config) Build(logger *slog.Logger, opts ...BuildOption) (*Providers, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var b buildOptions
	for _, opt := range opts {
		opt(&b)
	}

	p := &Providers{Capability: narration.None{}, Cache: audiocache.Nop{}}

	switch c.Narration.Provider {
	case ProviderNone:
		return p, nil

	case ProviderDevice:
		speaker := device.New(c.Narration.Device, append([]device.Option{device.WithLogger(logger)}, b.device...)...)
		if !speaker.Supported() {
			logger.Warn("no speech binary found, items will be paced without narration")
		}
		p.Capability = speaker
		p.closers = append(p.closers, speaker.Close)
		return p, nil

	case ProviderCloud:
		cache, closeCache, err := c.buildCache()
		if err != nil {
			return nil, err
		}
		p.Cache = cache
		if closeCache != nil {
			p.closers = append(p.closers, closeCache)
		}

		player := c.player(logger, b.lookup)
		client := cloud.New(c.Narration.Cloud, append([]cloud.Option{
			cloud.WithLogger(logger),
			cloud.WithCache(cache),
			cloud.WithPlayer(player),
		}, b.cloud...)...)
		if !client.Supported() {
			logger.Warn("cloud narration has no API key, items will be paced without narration", "env", EnvAPIKey)
		}
		p.Capability = client
		p.closers = append(p.closers, client.Close)
		return p, nil

	default:
		return nil, fmt.Errorf("unknown narration provider %q", c.Narration.Provider)
	}
}

func (c *Config) buildCache() (audiocache.Cache, func() error, error) {
	switch c.Cache.Backend {
	case CacheNone, "":
		return audiocache.Nop{}, nil, nil
	case CacheMemory:
		return audiocache.NewMemory(c.Cache.MaxEntries), nil, nil
	case CacheRedis:
		r, err := audiocache.NewRedisFromURL(c.Cache.URL, audiocache.WithTTL(c.Cache.TTL))
		if err != nil {
			return nil, nil, fmt.Errorf("audio cache: %w", err)
		}
		return r, r.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
}

func (c *Config) player(logger *slog.Logger, lookup func(string) (string, error)) cloud.Player {
	switch c.Narration.Player {
	case PlayerNone:
		return cloud.DiscardPlayer{}
	case "":
		if p, ok := cloud.FindPlayer(lookup); ok {
			return p
		}
		logger.Warn("no audio player found, cloud audio will be discarded")
		return cloud.DiscardPlayer{}
	default:
		return cloud.ExecPlayer{Command: c.Narration.Player}
	}
}
