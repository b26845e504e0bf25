// Package server is the local HTTP control surface: it starts sequencer runs
// from JSON, reports their state and streams their events over SSE.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/narrator/internal/clock"
	"github.com/roach88/narrator/internal/item"
	"github.com/roach88/narrator/internal/metrics"
	"github.com/roach88/narrator/internal/narration"
	"github.com/roach88/narrator/internal/sequencer"
	"github.com/roach88/narrator/internal/trace"
)

// DefaultMaxRuns bounds how many runs the server keeps before evicting the
// oldest.
const DefaultMaxRuns = 32

// ErrClosed is returned when a run is requested after Close.
var ErrClosed = errors.New("server closed")

// Server owns every run started over HTTP. Each run gets its own sequencer,
// gate and recorder; the capability and metrics are shared.
type Server struct {
	capability     narration.Capability
	audio          bool
	settleDelay    time.Duration
	narrationDelay time.Duration
	fallbackDelay  time.Duration
	maxRuns        int
	clock          clock.Clock
	runIDs         sequencer.RunIDGenerator
	metrics        *metrics.Metrics
	logger         *slog.Logger
	streams        *StreamManager

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	runs   map[string]*run
	order  []string
	closed bool
}

type run struct {
	id           string
	name         string
	narrationKey string
	seq          *sequencer.Sequencer
	recorder     *trace.Recorder
	done         chan struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithCapability sets the shared narration capability. Default: narration.None.
func WithCapability(c narration.Capability) Option {
	return func(s *Server) { s.capability = c }
}

// WithAudio sets whether runs narrate when the request does not say.
// Default: on.
func WithAudio(enabled bool) Option {
	return func(s *Server) { s.audio = enabled }
}

// WithDelays overrides the settle, narration and fallback delays.
func WithDelays(settle, narrationDelay, fallback time.Duration) Option {
	return func(s *Server) {
		s.settleDelay = settle
		s.narrationDelay = narrationDelay
		s.fallbackDelay = fallback
	}
}

// WithMaxRuns bounds the number of retained runs.
func WithMaxRuns(n int) Option {
	return func(s *Server) { s.maxRuns = n }
}

// WithClock sets the clock every run uses.
func WithClock(c clock.Clock) Option {
	return func(s *Server) { s.clock = c }
}

// WithRunIDGenerator sets the run ID generator.
func WithRunIDGenerator(g sequencer.RunIDGenerator) Option {
	return func(s *Server) { s.runIDs = g }
}

// WithMetrics records every run into m and serves it on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a server. Call Close to stop every run.
func New(opts ...Option) *Server {
	s := &Server{
		capability:     narration.None{},
		audio:          true,
		settleDelay:    sequencer.DefaultSettleDelay,
		narrationDelay: sequencer.DefaultNarrationDelay,
		fallbackDelay:  narration.DefaultFallbackDelay,
		maxRuns:        DefaultMaxRuns,
		clock:          clock.Real{},
		runIDs:         sequencer.UUIDv7Generator{},
		logger:         slog.Default(),
		runs:           make(map[string]*run),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxRuns <= 0 {
		s.maxRuns = DefaultMaxRuns
	}
	s.streams = NewStreamManager(s.logger)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// Handler returns the routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", s.GetHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.ListRuns)
		r.Post("/", s.CreateRun)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.GetRun)
			r.Delete("/", s.DeleteRun)
			r.Get("/events", s.SubscribeEvents)
			r.Get("/trace", s.GetTrace)
		})
	})
	return r
}

// StartRequest is the body of POST /runs.
type StartRequest struct {
	Name         string           `json:"name,omitempty"`
	Items        []map[string]any `json:"items"`
	Audio        *bool            `json:"audio,omitempty"`
	NarrationKey string           `json:"narration_key,omitempty"`
}

// RunView is the JSON shape of one run.
type RunView struct {
	sequencer.Snapshot
	Revealed []map[string]any `json:"revealed"`
}

// Start begins a run over seq and returns its ID.
func (s *Server) Start(name string, seq item.Sequence, audio bool, narrationKey string) (string, error) {
	if seq.Empty() {
		return "", errors.New("items must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}

	gate := narration.NewGate(s.capability,
		narration.WithClock(s.clock),
		narration.WithLogger(s.logger),
		narration.WithEnabled(audio),
		narration.WithFallbackDelay(s.fallbackDelay))

	rec := trace.NewRecorder(s.clock)
	hooks := []sequencer.Hooks{rec.Hooks(name)}
	if s.metrics != nil {
		hooks = append(hooks, s.metrics.Hooks())
	}

	sq := sequencer.New(gate,
		sequencer.WithName(name),
		sequencer.WithClock(s.clock),
		sequencer.WithLogger(s.logger.With("visual", name)),
		sequencer.WithRunIDGenerator(s.runIDs),
		sequencer.WithSettleDelay(s.settleDelay),
		sequencer.WithNarrationDelay(s.narrationDelay),
		sequencer.WithHooks(sequencer.Merge(hooks...)),
	)

	r := &run{
		name:         name,
		narrationKey: narrationKey,
		seq:          sq,
		recorder:     rec,
		done:         make(chan struct{}),
	}
	rec.Observe(func(e trace.Event) { s.streams.Broadcast(e.Run, e) })

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(r.done)
		if err := sq.Run(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("sequencer loop failed", "visual", name, "error", err)
		}
	}()

	r.id = sq.Start(seq)
	if r.id == "" {
		sq.Close()
		return "", ErrClosed
	}

	s.runs[r.id] = r
	s.order = append(s.order, r.id)
	for len(s.order) > s.maxRuns {
		oldest := s.order[0]
		s.order = s.order[1:]
		if old, ok := s.runs[oldest]; ok {
			delete(s.runs, oldest)
			go s.finish(old)
			s.logger.Debug("run evicted", "run_id", oldest)
		}
	}

	s.logger.Info("run started", "run_id", r.id, "name", name, "items", len(seq), "audio", audio)
	return r.id, nil
}

// Stop stops and forgets the run. It returns false when id is unknown.
func (s *Server) Stop(id string) bool {
	s.mu.Lock()
	r, ok := s.runs[id]
	if ok {
		delete(s.runs, id)
		s.order = remove(s.order, id)
	}
	s.mu.Unlock()

	if !ok {
		return false
	}
	s.finish(r)
	s.logger.Info("run stopped", "run_id", id)
	return true
}

// finish stops the run's sequencer, waits for its loop and ends its streams.
func (s *Server) finish(r *run) {
	r.seq.Stop()
	r.seq.Close()
	<-r.done
	s.streams.CloseRun(r.id)
}

func (s *Server) lookup(id string) (*run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	return r, ok
}

// Close stops every run and waits for their loops.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	runs := make([]*run, 0, len(s.runs))
	for _, id := range s.order {
		runs = append(runs, s.runs[id])
	}
	s.runs = map[string]*run{}
	s.order = nil
	s.mu.Unlock()

	for _, r := range runs {
		r.seq.Close()
	}
	s.cancel()
	s.wg.Wait()
	for _, r := range runs {
		s.streams.CloseRun(r.id)
	}
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	active := len(s.runs)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"provider":  s.capability.Name(),
		"supported": s.capability.Supported(),
		"runs":      active,
	})
}

// CreateRun handles POST /runs.
func (s *Server) CreateRun(w http.ResponseWriter, r *http.Request) {
	var body StartRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	decoder.UseNumber()
	if err := decoder.Decode(&body); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	audio := s.audio
	if body.Audio != nil {
		audio = *body.Audio
	}
	name := body.Name
	if name == "" {
		name = "http"
	}

	seq := item.FromRecords(numbers(body.Items), body.NarrationKey)
	id, err := s.Start(name, seq, audio, body.NarrationKey)
	switch {
	case errors.Is(err, ErrClosed):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Location", "/runs/"+id)
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": id})
}

// ListRuns handles GET /runs.
func (s *Server) ListRuns(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	runs := make([]*run, 0, len(s.order))
	for _, id := range s.order {
		runs = append(runs, s.runs[id])
	}
	s.mu.Unlock()

	views := make([]RunView, len(runs))
	for i, run := range runs {
		views[i] = run.view()
	}
	writeJSON(w, http.StatusOK, views)
}

// GetRun handles GET /runs/{id}.
func (s *Server) GetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookup(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, run.view())
}

// DeleteRun handles DELETE /runs/{id}.
func (s *Server) DeleteRun(w http.ResponseWriter, r *http.Request) {
	if !s.Stop(chi.URLParam(r, "id")) {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetTrace handles GET /runs/{id}/trace: the canonical trace so far.
func (s *Server) GetTrace(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookup(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	out, err := run.recorder.Snapshot(run.name).MarshalCanonical()
	if err != nil {
		http.Error(w, fmt.Sprintf("Trace error: %v", err), http.StatusInternalServerError)
		s.logger.Error("encoding trace", "run_id", run.id, "error", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(out)
}

// SubscribeEvents handles GET /runs/{id}/events. Events already recorded are
// replayed first; the stream ends after the run completes or resets.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookup(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("streaming not supported")
		return
	}

	// Subscribe before replaying so nothing falls between the two.
	ch, cancel := s.streams.Subscribe(run.id)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	last := 0
	for _, e := range run.recorder.Events() {
		if e.Run != run.id {
			continue
		}
		if err := s.writeEvent(w, e); err != nil {
			return
		}
		last = e.Seq
		if e.Terminal() {
			flusher.Flush()
			return
		}
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("sse client disconnected", "run_id", run.id)
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if e.Seq <= last {
				continue
			}
			if err := s.writeEvent(w, e); err != nil {
				return
			}
			flusher.Flush()
			last = e.Seq
			if e.Terminal() {
				return
			}
		}
	}
}

func (s *Server) writeEvent(w http.ResponseWriter, e trace.Event) error {
	data, err := e.MarshalCanonical()
	if err != nil {
		s.logger.Error("encoding event", "run_id", e.Run, "seq", e.Seq, "error", err)
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", e.Seq, e.Type, data)
	return err
}

func (r *run) view() RunView {
	snap := r.seq.Snapshot()
	revealed := make([]map[string]any, len(snap.Revealed))
	for i, it := range snap.Revealed {
		revealed[i] = it.Record(r.narrationKey)
	}
	if snap.RunID == "" {
		snap.RunID = r.id
	}
	return RunView{Snapshot: snap, Revealed: revealed}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// numbers turns json.Number values into int when integral and float64
// otherwise, matching what YAML decoding gives script data. A number that
// fits neither stays a string.
func numbers(records []map[string]any) []map[string]any {
	for _, rec := range records {
		for k, v := range rec {
			rec[k] = number(v)
		}
	}
	return records
}

func number(v any) any {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	case []any:
		for i := range n {
			n[i] = number(n[i])
		}
	case map[string]any:
		for k := range n {
			n[k] = number(n[k])
		}
	}
	return v
}

func remove(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
