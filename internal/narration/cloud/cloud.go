// Package cloud narrates through a hosted text-to-speech API and plays the
// returned audio locally.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/roach88/narrator/internal/audiocache"
	"github.com/roach88/narrator/internal/narration"
)

const (
	DefaultBaseURL = "https://api.elevenlabs.io"
	DefaultVoiceID = "pNInz6obpgDQGcFmaJgB"
	DefaultModel   = "eleven_monolingual_v1"
	DefaultTimeout = 30 * time.Second

	defaultStability       = 0.5
	defaultSimilarityBoost = 0.5

	// maxErrorBody caps how much of an error response ends up in StatusError.
	maxErrorBody = 512
)

// ErrClosed resolves calls made after, or in flight at, Close.
var ErrClosed = errors.New("cloud narrator closed")

// Options configure the API client.
type Options struct {
	APIKey          string        `yaml:"api_key" json:"-"`
	VoiceID         string        `yaml:"voice_id" json:"voice_id,omitempty"`
	Model           string        `yaml:"model" json:"model,omitempty"`
	BaseURL         string        `yaml:"base_url" json:"base_url,omitempty"`
	Timeout         time.Duration `yaml:"timeout" json:"timeout,omitempty"`
	Stability       float64       `yaml:"stability" json:"stability,omitempty"`
	SimilarityBoost float64       `yaml:"similarity_boost" json:"similarity_boost,omitempty"`
}

// WithDefaults fills unset fields.
func (o Options) WithDefaults() Options {
	if o.VoiceID == "" {
		o.VoiceID = DefaultVoiceID
	}
	if o.Model == "" {
		o.Model = DefaultModel
	}
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Stability == 0 {
		o.Stability = defaultStability
	}
	if o.SimilarityBoost == 0 {
		o.SimilarityBoost = defaultSimilarityBoost
	}
	return o
}

// StatusError reports a non-2xx response from the API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("tts api: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("tts api: HTTP %d: %s", e.StatusCode, e.Body)
}

type speechRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Client is a narration.Capability backed by the TTS API.
//
// Synthesis requests run concurrently; playback is serialised so two
// sequencers sharing a Client never talk over each other.
//
// Thread-safety: safe for concurrent use.
type Client struct {
	opts   Options
	http   *http.Client
	player Player
	cache  audiocache.Cache
	logger *slog.Logger

	playMu sync.Mutex

	mu     sync.Mutex
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Its timeout is left alone.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithPlayer sets the audio sink. Default: DiscardPlayer.
func WithPlayer(p Player) Option {
	return func(cl *Client) { cl.player = p }
}

// WithCache sets the synthesized-audio cache. Default: none.
func WithCache(c audiocache.Cache) Option {
	return func(cl *Client) { cl.cache = c }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// New creates a client. Without an API key the client is unsupported.
func New(opts Options, options ...Option) *Client {
	opts = opts.WithDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		opts:   opts,
		http:   &http.Client{Timeout: opts.Timeout},
		player: DiscardPlayer{},
		cache:  audiocache.Nop{},
		logger: slog.Default(),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, o := range options {
		o(c)
	}
	return c
}

var _ narration.Capability = (*Client)(nil)

func (c *Client) Name() string { return "cloud" }

// Supported reports whether an API key is configured.
func (c *Client) Supported() bool { return strings.TrimSpace(c.opts.APIKey) != "" }

// Options returns the effective options.
func (c *Client) Options() Options { return c.opts }

// Speak synthesizes text and plays it. done runs on a background goroutine.
func (c *Client) Speak(ctx context.Context, text string, done func(narration.Result)) {
	if !c.Supported() {
		done(narration.Failed(narration.ErrUnsupported))
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		done(narration.Cancelled(ErrClosed))
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		detach := context.AfterFunc(c.ctx, cancel)
		defer detach()

		err := c.speak(ctx, text)
		if err != nil && c.ctx.Err() != nil {
			done(narration.Cancelled(ErrClosed))
			return
		}
		done(narration.FromContext(ctx, err))
	}()
}

func (c *Client) speak(ctx context.Context, text string) error {
	audio, err := c.Synthesize(ctx, text)
	if err != nil {
		return err
	}

	c.playMu.Lock()
	defer c.playMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := c.player.Play(ctx, audio); err != nil {
		return fmt.Errorf("play audio: %w", err)
	}
	return nil
}

// Synthesize returns the audio for text, from the cache when possible.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, error) {
	key := audiocache.Key(text, c.opts.VoiceID, c.opts.Model)

	if audio, ok, err := c.cache.Get(ctx, key); err != nil {
		c.logger.Warn("audio cache read failed", "error", err)
	} else if ok {
		c.logger.Debug("audio cache hit", "chars", len(text))
		return audio, nil
	}

	audio, err := c.fetch(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, key, audio); err != nil {
		c.logger.Warn("audio cache write failed", "error", err)
	}
	return audio, nil
}

func (c *Client) fetch(ctx context.Context, text string) ([]byte, error) {
	body, err := json.Marshal(speechRequest{
		Text:    text,
		ModelID: c.opts.Model,
		VoiceSettings: voiceSettings{
			Stability:       c.opts.Stability,
			SimilarityBoost: c.opts.SimilarityBoost,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode tts request: %w", err)
	}

	endpoint := strings.TrimRight(c.opts.BaseURL, "/") + "/v1/text-to-speech/" + url.PathEscape(c.opts.VoiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build tts request: %w", err)
	}
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.opts.APIKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read tts audio: %w", err)
	}
	c.logger.Debug("speech synthesized", "bytes", len(audio), "latency", time.Since(start))
	return audio, nil
}

// Close cancels synthesis and playback in flight and waits for their
// callbacks to run.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	return nil
}
