package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/voicecast/internal/message"
	"github.com/nadzzz/voicecast/internal/tts"
)

type call struct {
	text, speaker, language, dest string
}

// fakeEngine writes "<speaker>:<text>" to dest for every line.
type fakeEngine struct {
	mu      sync.Mutex
	calls   []call
	failAt  int // 1-based line number that fails, 0 for never
	failErr error
	panicAt int
	block   chan struct{} // closed when a blocking call starts
	late    atomic.Bool   // set once a blocked call wrote its file
}

func (f *fakeEngine) SynthesizeLine(ctx context.Context, text, speakerID, language, dest string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{text, speakerID, language, dest})
	n := len(f.calls)
	f.mu.Unlock()

	if f.panicAt == n {
		panic("boom")
	}
	if f.block != nil {
		close(f.block)
		<-ctx.Done()
		// A backend that ignores cancellation still produces its file.
		if err := os.WriteFile(dest, []byte("late"), 0o644); err != nil {
			return "", err
		}
		f.late.Store(true)
		return dest, nil
	}
	if f.failAt == n {
		// Partial output before failing.
		_ = os.WriteFile(dest, []byte("partial"), 0o644)
		return "", f.failErr
	}
	if err := os.WriteFile(dest, []byte(speakerID+":"+text), 0o644); err != nil {
		return "", err
	}
	return dest, nil
}

func (f *fakeEngine) recorded() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

// fakeCombiner records what it was asked to join and writes the
// concatenated segment contents to the output.
type fakeCombiner struct {
	paths    []string
	contents []string
	gap      time.Duration
	format   string
	err      error
}

func (f *fakeCombiner) Combine(ctx context.Context, paths []string, gap time.Duration, outputPath, format string) (string, error) {
	f.paths = paths
	f.gap = gap
	f.format = format
	for _, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return "", err
		}
		f.contents = append(f.contents, string(b))
	}
	if f.err != nil {
		return "", f.err
	}
	if err := os.WriteFile(outputPath, []byte(strings.Join(f.contents, "|")), 0o644); err != nil {
		return "", err
	}
	return outputPath, nil
}

type progressLog struct {
	mu     sync.Mutex
	events []message.Progress
}

func (l *progressLog) record(p message.Progress) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, p)
}

func (l *progressLog) all() []message.Progress {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]message.Progress(nil), l.events...)
}

func newTestPipeline(t *testing.T, engine SegmentSynthesizer, combiner Combiner) (*Pipeline, Config) {
	t.Helper()
	root := t.TempDir()
	cfg := Config{
		OutputDir: filepath.Join(root, "out"),
		TempDir:   filepath.Join(root, "tmp"),
		Pause:     800 * time.Millisecond,
		Format:    "wav",
	}
	return New(cfg, engine, combiner), cfg
}

func tempWAVs(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*.wav"))
	require.NoError(t, err)
	return matches
}

const threeLines = `language: de
filename: show

<voice1>Hallo zusammen.
<voice2>Danke!</voice2>
<voice1>Los geht's.`

func TestRunSuccess(t *testing.T) {
	engine := &fakeEngine{}
	combiner := &fakeCombiner{}
	p, cfg := newTestPipeline(t, engine, combiner)
	progress := &progressLog{}

	res := p.Run(context.Background(), &message.Request{ID: "req-1", Script: threeLines}, progress.record)

	require.True(t, res.Success, res.Error)
	assert.Equal(t, "req-1", res.RequestID)
	assert.Equal(t, filepath.Join(cfg.OutputDir, "show.wav"), res.OutputFile)
	assert.Equal(t, 3, res.TotalSegments)
	assert.GreaterOrEqual(t, res.ProcessingTimeSeconds, 0.0)
	assert.Contains(t, res.Message, "Successfully generated 3 segments")
	assert.Empty(t, res.ErrorKind)

	assert.Equal(t, []message.Progress{
		{Current: 0, Total: 3},
		{Current: 0, Total: 3}, {Current: 1, Total: 3},
		{Current: 1, Total: 3}, {Current: 2, Total: 3},
		{Current: 2, Total: 3}, {Current: 3, Total: 3},
	}, progress.all())

	calls := engine.recorded()
	require.Len(t, calls, 3)
	for _, c := range calls {
		assert.Equal(t, "de", c.language)
		assert.Equal(t, cfg.TempDir, filepath.Dir(c.dest))
		assert.Regexp(t, regexp.MustCompile(`^segment_[0-9a-f]{8}_\d+_\d+\.wav$`), filepath.Base(c.dest))
	}

	assert.Equal(t, []string{"1:Hallo zusammen.", "2:Danke!", "1:Los geht's."}, combiner.contents)
	assert.Equal(t, 800*time.Millisecond, combiner.gap)
	assert.Equal(t, "wav", combiner.format)

	out, err := os.ReadFile(res.OutputFile)
	require.NoError(t, err)
	assert.Equal(t, "1:Hallo zusammen.|2:Danke!|1:Los geht's.", string(out))

	assert.Empty(t, tempWAVs(t, cfg.TempDir), "segments must be removed after success")
}

func TestRunGeneratesRequestID(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeEngine{}, &fakeCombiner{})
	req := &message.Request{Script: "<voice1>Hi"}

	res := p.Run(context.Background(), req, nil)
	require.True(t, res.Success, res.Error)
	assert.NotEmpty(t, req.ID)
	assert.Equal(t, req.ID, res.RequestID)
}

func TestRunPartialFailureCleansUp(t *testing.T) {
	engine := &fakeEngine{failAt: 2, failErr: fmt.Errorf("%w: speaker 2: model crashed", tts.ErrSynthesis)}
	combiner := &fakeCombiner{}
	p, cfg := newTestPipeline(t, engine, combiner)
	progress := &progressLog{}

	res := p.Run(context.Background(), &message.Request{Script: threeLines}, progress.record)

	assert.False(t, res.Success)
	assert.Equal(t, message.ErrorKindSynthesis, res.ErrorKind)
	assert.Contains(t, res.Error, "segment 2/3 failed")
	assert.Contains(t, res.Error, "model crashed")
	assert.Empty(t, res.OutputFile)

	assert.Len(t, engine.recorded(), 2, "no line runs after a failure")
	assert.Nil(t, combiner.paths, "combine must not run")
	assert.Empty(t, tempWAVs(t, cfg.TempDir), "completed and partial segments must be removed")

	assert.Equal(t, []message.Progress{
		{Current: 0, Total: 3},
		{Current: 0, Total: 3}, {Current: 1, Total: 3},
		{Current: 1, Total: 3},
	}, progress.all())
}

func TestRunEngineUnavailable(t *testing.T) {
	engine := &fakeEngine{failAt: 1, failErr: fmt.Errorf("%w: connecting to coqui: refused", tts.ErrEngineUnavailable)}
	p, cfg := newTestPipeline(t, engine, &fakeCombiner{})

	res := p.Run(context.Background(), &message.Request{Script: threeLines}, nil)

	assert.False(t, res.Success)
	assert.Equal(t, message.ErrorKindSynthesis, res.ErrorKind)
	assert.Contains(t, res.Error, "synthesis engine unavailable")
	assert.Empty(t, tempWAVs(t, cfg.TempDir))
}

func TestRunParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   string
	}{
		{name: "empty", script: "", want: "no dialogue found"},
		{name: "no tags", script: "language: en\nJust prose.", want: "no dialogue found"},
		{name: "too long", script: "<voice1>" + strings.Repeat("a", 100000), want: "script too long"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{}
			progress := &progressLog{}
			p, _ := newTestPipeline(t, engine, &fakeCombiner{})

			res := p.Run(context.Background(), &message.Request{Script: tt.script}, progress.record)

			assert.False(t, res.Success)
			assert.Equal(t, message.ErrorKindParse, res.ErrorKind)
			assert.Contains(t, res.Error, tt.want)
			assert.Empty(t, engine.recorded())
			assert.Empty(t, progress.all())
		})
	}
}

func TestRunCombineError(t *testing.T) {
	combiner := &fakeCombiner{err: errors.New("combine failed: segment 1 is 22050 Hz/1 ch/16 bit")}
	p, cfg := newTestPipeline(t, &fakeEngine{}, combiner)

	res := p.Run(context.Background(), &message.Request{Script: threeLines}, nil)

	assert.False(t, res.Success)
	assert.Equal(t, message.ErrorKindCombine, res.ErrorKind)
	assert.Contains(t, res.Error, "combining segments")
	assert.Len(t, combiner.paths, 3)
	assert.Empty(t, tempWAVs(t, cfg.TempDir))
}

func TestRunCancelled(t *testing.T) {
	started := make(chan struct{})
	engine := &fakeEngine{block: started}
	p, cfg := newTestPipeline(t, engine, &fakeCombiner{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	res := p.Run(ctx, &message.Request{Script: threeLines}, nil)

	assert.False(t, res.Success)
	assert.Equal(t, message.ErrorKindUnknown, res.ErrorKind)
	assert.Equal(t, "generation cancelled", res.Error)
	calls := engine.recorded()
	require.Len(t, calls, 1)

	assert.Eventually(t, func() bool {
		_, err := os.Stat(calls[0].dest)
		return engine.late.Load() && errors.Is(err, os.ErrNotExist)
	}, 2*time.Second, 10*time.Millisecond, "abandoned segment must be removed")
	assert.Empty(t, tempWAVs(t, cfg.TempDir))
}

func TestRunAlreadyCancelled(t *testing.T) {
	engine := &fakeEngine{}
	p, _ := newTestPipeline(t, engine, &fakeCombiner{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := p.Run(ctx, &message.Request{Script: threeLines}, nil)
	assert.Equal(t, message.ErrorKindUnknown, res.ErrorKind)
	assert.Empty(t, engine.recorded())
}

func TestRunRecoversPanics(t *testing.T) {
	t.Run("engine", func(t *testing.T) {
		p, cfg := newTestPipeline(t, &fakeEngine{panicAt: 2}, &fakeCombiner{})

		res := p.Run(context.Background(), &message.Request{Script: threeLines}, nil)

		assert.False(t, res.Success)
		assert.Equal(t, message.ErrorKindUnknown, res.ErrorKind)
		assert.Equal(t, "internal error during generation", res.Error)
		assert.Empty(t, tempWAVs(t, cfg.TempDir))
	})

	t.Run("progress callback", func(t *testing.T) {
		p, _ := newTestPipeline(t, &fakeEngine{}, &fakeCombiner{})

		res := p.Run(context.Background(), &message.Request{Script: threeLines}, func(message.Progress) {
			panic("listener gone")
		})
		assert.True(t, res.Success, res.Error)
	})
}

func TestRunNilRequest(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeEngine{}, &fakeCombiner{})

	var res *message.Result
	require.NotPanics(t, func() {
		res = p.Run(context.Background(), nil, nil)
	})
	assert.False(t, res.Success)
	assert.Equal(t, message.ErrorKindUnknown, res.ErrorKind)
	assert.Equal(t, "no request", res.Error)
}

// runWithin fails the test if run does not return before limit.
func runWithin(t *testing.T, limit time.Duration, run func() *message.Result) *message.Result {
	t.Helper()
	done := make(chan *message.Result, 1)
	go func() { done <- run() }()
	select {
	case res := <-done:
		return res
	case <-time.After(limit):
		t.Fatalf("Run did not return within %s", limit)
		return nil
	}
}

func TestRunStalledProgressConsumer(t *testing.T) {
	stall := make(chan struct{})
	t.Cleanup(func() { close(stall) })
	stuck := func(message.Progress) { <-stall }

	t.Run("context cancelled", func(t *testing.T) {
		p, cfg := newTestPipeline(t, &fakeEngine{}, &fakeCombiner{})
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		res := runWithin(t, time.Second, func() *message.Result {
			return p.Run(ctx, &message.Request{Script: threeLines}, stuck)
		})
		require.NotNil(t, res)
		assert.Empty(t, tempWAVs(t, cfg.TempDir))
	})

	t.Run("drain timeout", func(t *testing.T) {
		prev := drainTimeout
		drainTimeout = 50 * time.Millisecond
		t.Cleanup(func() { drainTimeout = prev })

		p, cfg := newTestPipeline(t, &fakeEngine{}, &fakeCombiner{})

		res := runWithin(t, time.Second, func() *message.Result {
			return p.Run(context.Background(), &message.Request{Script: threeLines}, stuck)
		})
		require.True(t, res.Success, res.Error)
		assert.FileExists(t, res.OutputFile)
		assert.Empty(t, tempWAVs(t, cfg.TempDir))
	})
}

func TestResolveOutputPath(t *testing.T) {
	p := New(Config{OutputDir: "/srv/podcasts"}, &fakeEngine{}, &fakeCombiner{})

	abs, err := p.resolveOutputPath("/data/show.wav")
	require.NoError(t, err)
	assert.Equal(t, "/data/show.wav", abs)

	rel, err := p.resolveOutputPath("show.wav")
	require.NoError(t, err)
	assert.Equal(t, "/srv/podcasts/show.wav", rel)
}

func TestArtifactsRemoveAllToleratesMissing(t *testing.T) {
	dir := t.TempDir()
	kept := filepath.Join(dir, "a.wav")
	require.NoError(t, os.WriteFile(kept, []byte("x"), 0o644))

	a := &artifacts{}
	a.add(kept)
	a.add(filepath.Join(dir, "already-gone.wav"))
	a.removeAll(slog.Default())

	assert.NoFileExists(t, kept)
	assert.Empty(t, a.list())
}
