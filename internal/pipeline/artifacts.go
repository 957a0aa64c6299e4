package pipeline

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/nadzzz/voicecast/internal/message"
)

// artifacts is the ordered list of segment files a run owns. A path is
// added only after its synthesis succeeded.
type artifacts struct {
	paths []string
}

func (a *artifacts) add(path string) {
	a.paths = append(a.paths, path)
}

func (a *artifacts) list() []string {
	return append([]string(nil), a.paths...)
}

// removeAll deletes every recorded file. Files already gone are fine.
func (a *artifacts) removeAll(logger *slog.Logger) {
	for _, p := range a.paths {
		removeFile(p, logger)
	}
	a.paths = nil
}

func removeFile(path string, logger *slog.Logger) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("removing temp file failed", "path", path, "error", err)
	}
}

// drainTimeout bounds how long a finished run waits for queued progress.
var drainTimeout = 2 * time.Second

// relay delivers progress events in order on its own goroutine so a slow
// consumer never stalls synthesis. A nil relay drops everything.
type relay struct {
	ch      chan message.Progress
	done    chan struct{}
	stopped atomic.Bool
	logger  *slog.Logger
}

func newRelay(fn message.ProgressFunc, capacity int, logger *slog.Logger) *relay {
	if fn == nil {
		return nil
	}
	r := &relay{
		ch:     make(chan message.Progress, capacity),
		done:   make(chan struct{}),
		logger: logger,
	}
	go func() {
		defer close(r.done)
		for ev := range r.ch {
			if r.stopped.Load() {
				continue
			}
			r.deliver(fn, ev)
		}
	}()
	return r
}

func (r *relay) deliver(fn message.ProgressFunc, ev message.Progress) {
	defer func() {
		if v := recover(); v != nil {
			r.logger.Warn("progress callback panicked", "panic", v)
		}
	}()
	fn(ev)
}

func (r *relay) emit(current, total int) {
	if r == nil {
		return
	}
	select {
	case r.ch <- message.Progress{Current: current, Total: total}:
	default:
		r.logger.Warn("progress event dropped", "current", current, "total", total)
	}
}

// close stops accepting events and waits until every queued one is
// delivered, ctx is done or drainTimeout passes. Events still queued after
// that are dropped. A callback stuck in delivery is left behind.
func (r *relay) close(ctx context.Context) {
	if r == nil {
		return
	}
	close(r.ch)

	select {
	case <-r.done:
		return
	default:
	}

	timer := time.NewTimer(drainTimeout)
	defer timer.Stop()
	select {
	case <-r.done:
		return
	case <-ctx.Done():
		r.logger.Warn("dropping progress events", "reason", ctx.Err())
	case <-timer.C:
		r.logger.Warn("dropping progress events", "reason", "consumer stalled", "timeout", drainTimeout)
	}
	r.stopped.Store(true)
}
