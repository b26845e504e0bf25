// Package device speaks through a local speech synthesis binary: say on
// macOS, espeak-ng or espeak elsewhere.
//
// A Speaker is an explicit object, not process-wide state. It plays one
// utterance at a time; concurrent Speak calls from several sequencers queue
// behind each other instead of cutting each other off.
package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os/exec"
	"runtime"
	"strconv"
	"sync"

	"github.com/roach88/narrator/internal/narration"
	"github.com/roach88/narrator/internal/queue"
)

// ErrClosed resolves calls made after, or still queued at, Close.
var ErrClosed = errors.New("device speaker closed")

// baseWPM is the speaking rate, in words per minute, that Rate 1 maps to.
const baseWPM = 175

// Options tune the voice. Zero values mean "engine default".
type Options struct {
	// Rate multiplies the normal speaking rate.
	Rate float64 `yaml:"rate" json:"rate,omitempty"`
	// Pitch multiplies the default pitch. Ignored by say.
	Pitch float64 `yaml:"pitch" json:"pitch,omitempty"`
	// Volume multiplies the default loudness, 0..2.
	Volume float64 `yaml:"volume" json:"volume,omitempty"`
	// Voice selects a voice by engine-specific name.
	Voice string `yaml:"voice" json:"voice,omitempty"`
	// Binary overrides binary discovery.
	Binary string `yaml:"binary" json:"binary,omitempty"`
}

// DefaultOptions match the demo's pacing: slightly slow, a little quiet.
func DefaultOptions() Options {
	return Options{Rate: 0.9, Pitch: 1, Volume: 0.8}
}

// Runner executes a speech command and blocks until it exits or ctx is done.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil && len(out) > 0 {
		return fmt.Errorf("%s: %w: %s", name, err, out)
	}
	return err
}

// LookPathFunc resolves a binary name to a path.
type LookPathFunc func(file string) (string, error)

// Speaker is a narration.Capability backed by a local speech binary.
//
// Thread-safety: safe for concurrent use.
type Speaker struct {
	opts     Options
	runner   Runner
	lookPath LookPathFunc
	logger   *slog.Logger
	goos     string

	binary string

	queue   *queue.FIFO[*request]
	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
	close   sync.Once
}

type request struct {
	ctx  context.Context
	text string
	once sync.Once
	done func(narration.Result)

	mu   sync.Mutex
	stop func() bool // guarded by mu; the ctx watcher may fire before it is set
}

func (r *request) watch(ctx context.Context) {
	stop := context.AfterFunc(ctx, func() { r.resolve(narration.Cancelled(ctx.Err())) })
	r.mu.Lock()
	r.stop = stop
	r.mu.Unlock()
}

func (r *request) resolve(res narration.Result) {
	r.once.Do(func() {
		r.mu.Lock()
		stop := r.stop
		r.mu.Unlock()
		if stop != nil {
			stop()
		}
		r.done(res)
	})
}

// Option configures a Speaker.
type Option func(*Speaker)

// WithRunner replaces command execution, for tests.
func WithRunner(r Runner) Option {
	return func(s *Speaker) { s.runner = r }
}

// WithLookPath replaces binary discovery, for tests.
func WithLookPath(f LookPathFunc) Option {
	return func(s *Speaker) { s.lookPath = f }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Speaker) { s.logger = l }
}

// WithGOOS pretends to run on goos when choosing a binary.
func WithGOOS(goos string) Option {
	return func(s *Speaker) { s.goos = goos }
}

// New discovers a speech binary and starts the playback worker. Call Close
// to stop it.
func New(opts Options, options ...Option) *Speaker {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Speaker{
		opts:     opts,
		runner:   ExecRunner{},
		lookPath: exec.LookPath,
		logger:   slog.Default(),
		goos:     runtime.GOOS,
		queue:    queue.New[*request](),
		ctx:      ctx,
		cancel:   cancel,
		stopped:  make(chan struct{}),
	}
	for _, o := range options {
		o(s)
	}

	s.binary = s.discover()
	if s.binary == "" {
		s.logger.Debug("no speech binary found", "goos", s.goos)
	}

	go s.loop()
	return s
}

var _ narration.Capability = (*Speaker)(nil)

func (s *Speaker) Name() string { return "device" }

// Supported reports whether a speech binary was found.
func (s *Speaker) Supported() bool { return s.binary != "" }

// Binary returns the discovered binary name, or "".
func (s *Speaker) Binary() string { return s.binary }

// Speak queues text behind any utterance already playing. Cancelling ctx
// resolves the call as cancelled, whether it is queued or playing.
func (s *Speaker) Speak(ctx context.Context, text string, done func(narration.Result)) {
	if !s.Supported() {
		done(narration.Failed(narration.ErrUnsupported))
		return
	}
	if err := ctx.Err(); err != nil {
		done(narration.Cancelled(err))
		return
	}

	req := &request{ctx: ctx, text: text, done: done}
	req.watch(ctx)
	if !s.queue.Push(req) {
		req.resolve(narration.Cancelled(ErrClosed))
	}
}

// Close cancels the utterance in flight, resolves everything still queued
// as cancelled and waits for the worker to exit.
func (s *Speaker) Close() error {
	s.close.Do(func() {
		s.cancel()
		s.queue.Close()
	})
	<-s.stopped
	return nil
}

func (s *Speaker) loop() {
	defer close(s.stopped)

	for {
		req, ok := s.queue.TryPop()
		if ok {
			s.play(req)
			continue
		}
		if s.queue.Closed() {
			return
		}
		<-s.queue.Wait()
	}
}

func (s *Speaker) play(req *request) {
	if s.ctx.Err() != nil {
		req.resolve(narration.Cancelled(ErrClosed))
		return
	}
	if err := req.ctx.Err(); err != nil {
		req.resolve(narration.Cancelled(err))
		return
	}

	ctx, cancel := context.WithCancel(req.ctx)
	defer cancel()
	detach := context.AfterFunc(s.ctx, cancel)
	defer detach()

	args := s.args(req.text)
	s.logger.Debug("speaking", "binary", s.binary, "chars", len(req.text))
	err := s.runner.Run(ctx, s.binary, args...)
	if err != nil && s.ctx.Err() != nil {
		req.resolve(narration.Cancelled(ErrClosed))
		return
	}
	req.resolve(narration.FromContext(ctx, err))
}

func (s *Speaker) candidates() []string {
	if s.opts.Binary != "" {
		return []string{s.opts.Binary}
	}
	switch s.goos {
	case "darwin":
		return []string{"say"}
	case "linux", "freebsd", "openbsd", "netbsd":
		return []string{"espeak-ng", "espeak"}
	default:
		return nil
	}
}

func (s *Speaker) discover() string {
	for _, name := range s.candidates() {
		if _, err := s.lookPath(name); err == nil {
			return name
		}
	}
	return ""
}

// args builds the command line for the discovered binary.
func (s *Speaker) args(text string) []string {
	o := s.opts
	var args []string

	switch s.binary {
	case "say":
		if o.Rate > 0 {
			args = append(args, "-r", itoa(baseWPM*o.Rate))
		}
		if o.Voice != "" {
			args = append(args, "-v", o.Voice)
		}
		if o.Volume > 0 && o.Volume != 1 {
			// say has no volume flag; use an embedded speech command.
			text = fmt.Sprintf("[[volm %s]] %s", strconv.FormatFloat(clamp(o.Volume, 0, 1), 'f', 2, 64), text)
		}
	default: // espeak, espeak-ng and compatible
		if o.Rate > 0 {
			args = append(args, "-s", itoa(baseWPM*o.Rate))
		}
		if o.Pitch > 0 {
			args = append(args, "-p", itoa(clamp(50*o.Pitch, 0, 99)))
		}
		if o.Volume > 0 {
			args = append(args, "-a", itoa(clamp(100*o.Volume, 0, 200)))
		}
		if o.Voice != "" {
			args = append(args, "-v", o.Voice)
		}
		args = append(args, "--")
	}

	return append(args, text)
}

func itoa(f float64) string {
	return strconv.Itoa(int(math.Round(f)))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
