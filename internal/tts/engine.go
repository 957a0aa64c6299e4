package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

var (
	// ErrEngineUnavailable means the backend could not be brought up.
	ErrEngineUnavailable = errors.New("tts engine unavailable")

	// ErrSynthesis means a single line failed to synthesize.
	ErrSynthesis = errors.New("speech synthesis failed")
)

// loaded boxes a Synthesizer so it can live in an atomic.Pointer.
type loaded struct {
	synth Synthesizer
}

// Engine is the process-wide handle to the TTS backend. Create one in the
// composition root and share it between pipelines.
//
// The backend is loaded on first use, at most once. Backends are not assumed
// to be reentrant, so synthesis calls are serialized.
type Engine struct {
	load   Loader
	voices VoiceMap
	speed  float64
	logger *slog.Logger

	mu      sync.Mutex // held while loading
	current atomic.Pointer[loaded]
	calls   *semaphore.Weighted
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithSpeed sets the speaking rate passed to the backend.
func WithSpeed(speed float64) EngineOption {
	return func(e *Engine) { e.speed = speed }
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates an engine that brings its backend up with load.
func NewEngine(load Loader, voices VoiceMap, opts ...EngineOption) *Engine {
	if voices == nil {
		voices = NewVoiceMap(nil)
	}
	e := &Engine{
		load:   load,
		voices: voices,
		logger: slog.Default(),
		calls:  semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EnsureLoaded loads the backend if it is not loaded yet. It is safe to call
// from many goroutines; only one of them runs the loader. A failed load is
// not remembered, so the next call tries again.
func (e *Engine) EnsureLoaded(ctx context.Context) error {
	if e.current.Load() != nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.current.Load() != nil {
		return nil
	}
	if e.load == nil {
		return fmt.Errorf("%w: no backend configured", ErrEngineUnavailable)
	}

	start := time.Now()
	e.logger.Info("loading tts backend")
	synth, err := e.load(ctx)
	if err != nil {
		e.logger.Error("tts backend unavailable", "error", err)
		return fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
	}
	e.current.Store(&loaded{synth: synth})
	e.logger.Info("tts backend loaded", "duration", time.Since(start))
	return nil
}

// Loaded reports whether the backend is up.
func (e *Engine) Loaded() bool {
	return e.current.Load() != nil
}

// Synthesizer returns the loaded backend, or nil before the first load.
func (e *Engine) Synthesizer() Synthesizer {
	if l := e.current.Load(); l != nil {
		return l.synth
	}
	return nil
}

// Voice returns the backend voice used for a speaker id.
func (e *Engine) Voice(speakerID string) string {
	return e.voices.Resolve(speakerID)
}

// SynthesizeLine speaks text with the voice mapped to speakerID and writes
// the WAV result to dest. It returns dest.
func (e *Engine) SynthesizeLine(ctx context.Context, text, speakerID, language, dest string) (string, error) {
	if err := e.EnsureLoaded(ctx); err != nil {
		return "", err
	}
	voice := e.voices.Resolve(speakerID)

	if err := e.calls.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer e.calls.Release(1)

	// Fetched under the semaphore so Close cannot release it mid-call.
	synth := e.Synthesizer()
	if synth == nil {
		return "", fmt.Errorf("%w: engine closed", ErrEngineUnavailable)
	}

	e.logger.Debug("synthesizing line",
		"speaker", speakerID, "voice", voice, "language", language, "text", preview(text, 30))

	res, err := synth.Synthesize(ctx, text, SynthesizeOpts{
		Language: language,
		Voice:    voice,
		Speed:    e.speed,
	})
	if err != nil {
		return "", fmt.Errorf("%w: speaker %s: %w", ErrSynthesis, speakerID, err)
	}
	if len(res.Audio) == 0 {
		return "", fmt.Errorf("%w: speaker %s: backend returned no audio", ErrSynthesis, speakerID)
	}
	if err := os.WriteFile(dest, res.Audio, 0o644); err != nil {
		return "", fmt.Errorf("%w: writing %s: %w", ErrSynthesis, dest, err)
	}
	return dest, nil
}

// Close releases the backend once the call in flight, if any, has finished.
// A later call loads it again.
func (e *Engine) Close() error {
	if err := e.calls.Acquire(context.Background(), 1); err != nil {
		return err
	}
	defer e.calls.Release(1)

	e.mu.Lock()
	defer e.mu.Unlock()

	l := e.current.Swap(nil)
	if l == nil {
		return nil
	}
	return l.synth.Close()
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
