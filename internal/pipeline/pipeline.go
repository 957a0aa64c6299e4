// Package pipeline implements the end-to-end generation flow.
//
// A run parses the script, synthesizes every dialogue line in document
// order, joins the segments into one WAV and always removes the per-line
// temporary files afterwards. Run never panics and never returns an error:
// every failure becomes a structured message.Result.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/nadzzz/voicecast/internal/message"
	"github.com/nadzzz/voicecast/internal/script"
	"github.com/nadzzz/voicecast/internal/tts"
)

// errWorkerPanic marks a line whose synthesis goroutine panicked.
var errWorkerPanic = errors.New("synthesis worker panicked")

// SegmentSynthesizer produces one WAV file for one dialogue line.
// *tts.Engine satisfies it.
type SegmentSynthesizer interface {
	SynthesizeLine(ctx context.Context, text, speakerID, language, dest string) (string, error)
}

// Combiner joins WAV segments with gap of silence between them.
// *audio.Combiner satisfies it.
type Combiner interface {
	Combine(ctx context.Context, paths []string, gap time.Duration, outputPath, format string) (string, error)
}

// Config holds the run settings. It is built once at startup.
type Config struct {
	// OutputDir roots relative output file names.
	OutputDir string

	// TempDir holds per-line segments while a run is in flight.
	TempDir string

	// Pause is the silence inserted between consecutive segments.
	Pause time.Duration

	// Format is the output container, "wav".
	Format string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger used for run diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Pipeline is the orchestrator shared by all transports.
type Pipeline struct {
	cfg      Config
	engine   SegmentSynthesizer
	combiner Combiner
	logger   *slog.Logger
}

// New creates a Pipeline.
func New(cfg Config, engine SegmentSynthesizer, combiner Combiner, opts ...Option) *Pipeline {
	if cfg.Format == "" {
		cfg.Format = "wav"
	}
	if cfg.Pause < 0 {
		cfg.Pause = 0
	}
	p := &Pipeline{
		cfg:      cfg,
		engine:   engine,
		combiner: combiner,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes a single request through the full pipeline.
// This function backs the transport.Handler given to each transport.
func (p *Pipeline) Run(ctx context.Context, req *message.Request, progress message.ProgressFunc) (result *message.Result) {
	logger := p.logger
	arts := &artifacts{}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("generation panicked", "panic", r, "stack", string(debug.Stack()))
			result = failure(req, message.ErrorKindUnknown, "internal error during generation")
		}
		arts.removeAll(logger)
	}()

	if req == nil {
		return failure(nil, message.ErrorKindUnknown, "no request")
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	logger = p.logger.With("request_id", req.ID, "source", req.Source)

	return p.run(ctx, req, progress, arts, logger)
}

func (p *Pipeline) run(ctx context.Context, req *message.Request, progress message.ProgressFunc, arts *artifacts, logger *slog.Logger) *message.Result {
	start := time.Now()
	logger.Info("generation started", "script_length", len(req.Script))

	// Step 1: Bootstrap directories.
	for _, dir := range []string{p.cfg.OutputDir, p.cfg.TempDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error("creating directory failed", "dir", dir, "error", err)
			return failure(req, message.ErrorKindUnknown, fmt.Sprintf("preparing directories: %v", err))
		}
	}

	// Step 2: Parse.
	doc, err := script.NewParser(logger).Parse(req.Script)
	if err != nil {
		logger.Warn("script rejected", "error", err)
		return failure(req, message.ErrorKindParse, fmt.Sprintf("Script parsing error: %v", err))
	}

	// Step 3: Speaker map. Every speaker shares the document language.
	speakers := doc.Speakers()
	total := len(doc.Dialogue)
	logger.Info("script parsed",
		"segments", total,
		"speakers", len(speakers),
		"language", doc.Language,
		"output_file", doc.OutputFile)

	// Step 4: Synthesize each line, strictly in order.
	events := newRelay(progress, 2*total+1, logger)
	defer events.close(ctx)
	defer arts.removeAll(logger)

	runID := uuid.NewString()[:8]
	events.emit(0, total)
	for i, line := range doc.Dialogue {
		if err := ctx.Err(); err != nil {
			logger.Warn("generation cancelled", "segment", i+1, "error", err)
			return failure(req, message.ErrorKindUnknown, "generation cancelled")
		}

		lang := speakers[line.Speaker].Language
		logger.Info("generating segment",
			"segment", i+1, "total", total, "speaker", line.Speaker, "text", preview(line.Text, 50))
		events.emit(i, total)

		dest := filepath.Join(p.cfg.TempDir, fmt.Sprintf("segment_%s_%d_%d.wav", runID, i, time.Now().UnixNano()))
		path, err := p.synthesize(ctx, line, lang, dest, logger)
		if err != nil {
			return p.lineFailure(ctx, req, i, total, err, logger)
		}
		arts.add(path)

		logger.Info("segment complete", "segment", i+1, "total", total)
		events.emit(i+1, total)
	}

	// Step 5: Combine.
	outputPath, err := p.resolveOutputPath(doc.OutputFile)
	if err != nil {
		return failure(req, message.ErrorKindUnknown, fmt.Sprintf("resolving output path: %v", err))
	}
	finalPath, err := p.combiner.Combine(ctx, arts.list(), p.cfg.Pause, outputPath, p.cfg.Format)
	if err != nil {
		if ctx.Err() != nil {
			logger.Warn("generation cancelled during combine", "error", err)
			return failure(req, message.ErrorKindUnknown, "generation cancelled")
		}
		logger.Error("combining segments failed", "error", err)
		return failure(req, message.ErrorKindCombine, fmt.Sprintf("combining segments: %v", err))
	}

	// Step 6: Success.
	elapsed := math.Round(time.Since(start).Seconds()*100) / 100
	logger.Info("generation complete", "output_file", finalPath, "segments", total, "seconds", elapsed)

	return &message.Result{
		RequestID:             req.ID,
		Success:               true,
		OutputFile:            finalPath,
		ProcessingTimeSeconds: elapsed,
		TotalSegments:         total,
		Message:               fmt.Sprintf("Successfully generated %d segments in %gs", total, elapsed),
	}
}

// lineResult is the outcome of one line's synthesis.
type lineResult struct {
	path string
	err  error
}

// synthesize runs one line on a worker goroutine and waits for it or for
// cancellation. A line that fails has its destination removed. A line
// abandoned by cancellation removes its own file once the worker finishes.
func (p *Pipeline) synthesize(ctx context.Context, line script.Line, lang, dest string, logger *slog.Logger) (string, error) {
	results := make(chan lineResult)
	abandoned := make(chan struct{})

	go func() {
		res := p.work(ctx, line, lang, dest)
		if res.err != nil {
			removeFile(dest, logger)
		}
		select {
		case results <- res:
		case <-abandoned:
			if res.err == nil {
				logger.Debug("removing abandoned segment", "path", res.path)
				removeFile(res.path, logger)
			}
		}
	}()

	select {
	case res := <-results:
		return res.path, res.err
	case <-ctx.Done():
		close(abandoned)
		return "", ctx.Err()
	}
}

func (p *Pipeline) work(ctx context.Context, line script.Line, lang, dest string) (res lineResult) {
	defer func() {
		if r := recover(); r != nil {
			res = lineResult{err: fmt.Errorf("%w: %v", errWorkerPanic, r)}
		}
	}()
	path, err := p.engine.SynthesizeLine(ctx, line.Text, line.Speaker, lang, dest)
	return lineResult{path: path, err: err}
}

func (p *Pipeline) lineFailure(ctx context.Context, req *message.Request, i, total int, err error, logger *slog.Logger) *message.Result {
	switch {
	case ctx.Err() != nil:
		logger.Warn("generation cancelled", "segment", i+1, "error", err)
		return failure(req, message.ErrorKindUnknown, "generation cancelled")
	case errors.Is(err, errWorkerPanic):
		logger.Error("segment synthesis panicked", "segment", i+1, "error", err)
		return failure(req, message.ErrorKindUnknown, "internal error during generation")
	case errors.Is(err, tts.ErrEngineUnavailable):
		logger.Error("synthesis engine unavailable", "error", err)
		return failure(req, message.ErrorKindSynthesis, fmt.Sprintf("synthesis engine unavailable: %v", err))
	default:
		logger.Error("segment synthesis failed", "segment", i+1, "total", total, "error", err)
		return failure(req, message.ErrorKindSynthesis, fmt.Sprintf("segment %d/%d failed: %v", i+1, total, err))
	}
}

// resolveOutputPath roots relative names under the output directory and
// keeps absolute names as they are.
func (p *Pipeline) resolveOutputPath(name string) (string, error) {
	if filepath.IsAbs(name) {
		return name, nil
	}
	return filepath.Abs(filepath.Join(p.cfg.OutputDir, name))
}

func failure(req *message.Request, kind message.ErrorKind, msg string) *message.Result {
	var id string
	if req != nil {
		id = req.ID
	}
	return &message.Result{
		RequestID: id,
		Success:   false,
		Error:     msg,
		ErrorKind: kind,
	}
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
