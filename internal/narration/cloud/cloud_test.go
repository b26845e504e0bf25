package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/narrator/internal/audiocache"
	"github.com/roach88/narrator/internal/narration"
)

type recordingPlayer struct {
	mu     sync.Mutex
	clips  [][]byte
	err    error
	block  chan struct{}
	active int32
	peak   int32
}

func (p *recordingPlayer) Play(ctx context.Context, audio []byte) error {
	n := atomic.AddInt32(&p.active, 1)
	defer atomic.AddInt32(&p.active, -1)
	for {
		old := atomic.LoadInt32(&p.peak)
		if n <= old || atomic.CompareAndSwapInt32(&p.peak, old, n) {
			break
		}
	}

	p.mu.Lock()
	p.clips = append(p.clips, audio)
	block, err := p.block, p.err
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (p *recordingPlayer) played() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.clips...)
}

// ttsServer fakes the API. It answers with "audio:<text>".
func ttsServer(t *testing.T, status int, hits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(hits, 1)

		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/text-to-speech/"+DefaultVoiceID, r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("xi-api-key"))
		assert.Equal(t, "audio/mpeg", r.Header.Get("Accept"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req speechRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		assert.Equal(t, DefaultModel, req.ModelID)
		assert.Equal(t, 0.5, req.VoiceSettings.Stability)
		assert.Equal(t, 0.5, req.VoiceSettings.SimilarityBoost)

		if status != http.StatusOK {
			http.Error(w, `{"detail":"quota exceeded"}`, status)
			return
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = io.WriteString(w, "audio:"+req.Text)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, baseURL string, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	c := New(Options{APIKey: "secret", BaseURL: baseURL}, opts...)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClient_SpeakPlaysSynthesizedAudio(t *testing.T) {
	var hits int32
	srv := ttsServer(t, http.StatusOK, &hits)
	player := &recordingPlayer{}
	c := newTestClient(t, srv.URL, WithPlayer(player))

	r := narration.SpeakSync(context.Background(), c, "The SR for January is 54%")

	assert.Equal(t, narration.OutcomeCompleted, r.Outcome)
	assert.Equal(t, [][]byte{[]byte("audio:The SR for January is 54%")}, player.played())
	assert.EqualValues(t, 1, hits)
}

func TestClient_HTTPErrorIsFailure(t *testing.T) {
	var hits int32
	srv := ttsServer(t, http.StatusTooManyRequests, &hits)
	player := &recordingPlayer{}
	c := newTestClient(t, srv.URL, WithPlayer(player))

	r := narration.SpeakSync(context.Background(), c, "hello")

	assert.Equal(t, narration.OutcomeFailed, r.Outcome)
	var se *StatusError
	require.ErrorAs(t, r.Err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
	assert.Contains(t, se.Body, "quota exceeded")
	assert.Empty(t, player.played())
	assert.EqualValues(t, 1, hits, "failures are not retried")
}

func TestClient_PlaybackErrorIsFailure(t *testing.T) {
	var hits int32
	srv := ttsServer(t, http.StatusOK, &hits)
	c := newTestClient(t, srv.URL, WithPlayer(&recordingPlayer{err: errors.New("no audio device")}))

	r := narration.SpeakSync(context.Background(), c, "hello")
	assert.Equal(t, narration.OutcomeFailed, r.Outcome)
	assert.ErrorContains(t, r.Err, "no audio device")
}

func TestClient_NetworkErrorIsFailure(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1")
	r := narration.SpeakSync(context.Background(), c, "hello")
	assert.Equal(t, narration.OutcomeFailed, r.Outcome)
}

func TestClient_UnsupportedWithoutKey(t *testing.T) {
	c := New(Options{})
	defer c.Close()

	assert.False(t, c.Supported())
	r := narration.SpeakSync(context.Background(), c, "hello")
	assert.ErrorIs(t, r.Err, narration.ErrUnsupported)
}

func TestClient_CacheAvoidsSecondRequest(t *testing.T) {
	var hits int32
	srv := ttsServer(t, http.StatusOK, &hits)
	cache := audiocache.NewMemory(8)
	player := &recordingPlayer{}
	c := newTestClient(t, srv.URL, WithPlayer(player), WithCache(cache))

	for i := 0; i < 3; i++ {
		r := narration.SpeakSync(context.Background(), c, "same line")
		require.Equal(t, narration.OutcomeCompleted, r.Outcome)
	}

	assert.EqualValues(t, 1, hits)
	assert.Len(t, player.played(), 3)
	assert.Equal(t, 1, cache.Len())
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("cache down")
}
func (brokenCache) Set(context.Context, string, []byte) error { return errors.New("cache down") }

func TestClient_CacheErrorsAreIgnored(t *testing.T) {
	var hits int32
	srv := ttsServer(t, http.StatusOK, &hits)
	c := newTestClient(t, srv.URL, WithCache(brokenCache{}))

	r := narration.SpeakSync(context.Background(), c, "hello")
	assert.Equal(t, narration.OutcomeCompleted, r.Outcome)
}

func TestClient_CancelDuringPlayback(t *testing.T) {
	var hits int32
	srv := ttsServer(t, http.StatusOK, &hits)
	player := &recordingPlayer{block: make(chan struct{})}
	c := newTestClient(t, srv.URL, WithPlayer(player))

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan narration.Result, 1)
	c.Speak(ctx, "hello", func(r narration.Result) { got <- r })

	require.Eventually(t, func() bool { return len(player.played()) == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case r := <-got:
		assert.Equal(t, narration.OutcomeCancelled, r.Outcome)
	case <-time.After(5 * time.Second):
		t.Fatal("no callback after cancel")
	}
}

func TestClient_PlaybackIsSerialised(t *testing.T) {
	var hits int32
	srv := ttsServer(t, http.StatusOK, &hits)
	player := &recordingPlayer{}
	c := newTestClient(t, srv.URL, WithPlayer(player))

	var wg sync.WaitGroup
	for _, text := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			narration.SpeakSync(context.Background(), c, text)
		}()
	}
	wg.Wait()

	assert.Len(t, player.played(), 4)
	assert.EqualValues(t, 1, atomic.LoadInt32(&player.peak))
}

func TestClient_CloseCancelsInFlight(t *testing.T) {
	var hits int32
	srv := ttsServer(t, http.StatusOK, &hits)
	player := &recordingPlayer{block: make(chan struct{})}
	c := New(Options{APIKey: "secret", BaseURL: srv.URL}, WithPlayer(player),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	got := make(chan narration.Result, 2)
	c.Speak(context.Background(), "hello", func(r narration.Result) { got <- r })
	require.Eventually(t, func() bool { return len(player.played()) == 1 }, time.Second, time.Millisecond)

	require.NoError(t, c.Close())
	r := <-got
	assert.Equal(t, narration.OutcomeCancelled, r.Outcome)
	assert.ErrorIs(t, r.Err, ErrClosed)

	c.Speak(context.Background(), "late", func(r narration.Result) { got <- r })
	assert.ErrorIs(t, (<-got).Err, ErrClosed)
}

func TestOptions_WithDefaults(t *testing.T) {
	o := Options{}.WithDefaults()
	assert.Equal(t, DefaultVoiceID, o.VoiceID)
	assert.Equal(t, DefaultModel, o.Model)
	assert.Equal(t, DefaultBaseURL, o.BaseURL)
	assert.Equal(t, DefaultTimeout, o.Timeout)

	o = Options{VoiceID: "custom", Stability: 0.9}.WithDefaults()
	assert.Equal(t, "custom", o.VoiceID)
	assert.Equal(t, 0.9, o.Stability)
	assert.Equal(t, 0.5, o.SimilarityBoost)
}

func TestFindPlayer(t *testing.T) {
	p, ok := FindPlayer(func(name string) (string, error) {
		if name == "mpg123" {
			return "/usr/bin/mpg123", nil
		}
		return "", errors.New("missing")
	})
	require.True(t, ok)
	assert.Equal(t, "mpg123", p.Command)

	_, ok = FindPlayer(func(string) (string, error) { return "", errors.New("missing") })
	assert.False(t, ok)
}

func TestStatusError(t *testing.T) {
	assert.Equal(t, "tts api: HTTP 500", (&StatusError{StatusCode: 500}).Error())
	assert.Equal(t, "tts api: HTTP 401: bad key", (&StatusError{StatusCode: 401, Body: "bad key"}).Error())
}
