// Voicecast is a podcast generation daemon that turns multi-speaker
// dialogue scripts into a single WAV file.
//
// Usage:
//
//	voicecast [flags]
//	voicecast --config /path/to/voicecast.yaml
//	voicecast --script episode.txt
//	cat episode.txt | voicecast --script -
//
// @title       voicecast API
// @version     1.0
// @description Turns multi-speaker dialogue scripts into combined WAV podcasts.
// @BasePath    /
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/nadzzz/voicecast/docs"
	"github.com/nadzzz/voicecast/internal/audio"
	"github.com/nadzzz/voicecast/internal/config"
	"github.com/nadzzz/voicecast/internal/health"
	"github.com/nadzzz/voicecast/internal/message"
	"github.com/nadzzz/voicecast/internal/pipeline"
	"github.com/nadzzz/voicecast/internal/transport"
	grpctransport "github.com/nadzzz/voicecast/internal/transport/grpc"
	httptransport "github.com/nadzzz/voicecast/internal/transport/http"
	mcptransport "github.com/nadzzz/voicecast/internal/transport/mcp"
	"github.com/nadzzz/voicecast/internal/tts"
	"github.com/nadzzz/voicecast/internal/tts/coqui"
	"github.com/nadzzz/voicecast/internal/tts/piper"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configFile := flag.String("config", "", "path to config file (e.g. configs/voicecast.yaml)")
	scriptFile := flag.String("script", "", "generate one podcast from this script file (- for stdin) and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("voicecast %s\n", version)
		os.Exit(0)
	}

	// Load configuration.
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging.
	config.SetupLogging(cfg.Logging)
	slog.Info("voicecast starting", "version", version, "backend", cfg.TTS.Backend)

	// Create root context with signal handling for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize the synthesis engine. Loading is lazy unless warmup is on.
	engine, err := newEngine(cfg.TTS)
	if err != nil {
		slog.Error("failed to configure tts backend", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	pipe := pipeline.New(pipeline.Config{
		OutputDir: cfg.Output.Dir,
		TempDir:   cfg.Output.TempDir,
		Pause:     cfg.Output.Pause(),
		Format:    cfg.Output.Format,
	}, engine, audio.NewCombiner(slog.Default()))

	// One-shot mode.
	if *scriptFile != "" {
		code := runScript(ctx, pipe.Run, *scriptFile, os.Stdin, os.Stdout)
		engine.Close()
		os.Exit(code)
	}

	if cfg.TTS.Warmup {
		go func() {
			start := time.Now()
			if err := engine.EnsureLoaded(ctx); err != nil {
				slog.Warn("tts warmup failed, will retry on first request", "error", err)
				return
			}
			slog.Info("tts backend loaded", "took", time.Since(start).Round(time.Millisecond))
		}()
	}

	// Initialize enabled transports.
	var transports []transport.Transport

	if cfg.Transports.MCP.Enabled {
		transports = append(transports, mcptransport.New(cfg.Transports.MCP.Name, version))
	}
	if cfg.Transports.HTTP.Enabled {
		transports = append(transports, httptransport.New(cfg.Transports.HTTP.Port))
	}
	if cfg.Transports.GRPC.Enabled {
		transports = append(transports, grpctransport.New(cfg.Transports.GRPC.Port))
	}

	if len(transports) == 0 {
		slog.Error("no transports enabled, enable at least one in config")
		os.Exit(1)
	}

	// Start health check server.
	var healthServer *health.Server
	if cfg.Server.HealthPort > 0 {
		healthServer = health.New(cfg.Server.HealthPort, engine.Loaded)
		go func() {
			if err := healthServer.ListenAndServe(ctx); err != nil {
				slog.Error("health server failed", "error", err)
			}
		}()
	}

	// Start all transports. A transport that stops (the MCP client hung up,
	// a port could not be bound) stops the daemon.
	var wg sync.WaitGroup
	for _, t := range transports {
		wg.Add(1)
		go func(t transport.Transport) {
			defer wg.Done()
			defer cancel()
			slog.Info("starting transport", "name", t.Name())
			if err := t.Listen(ctx, pipe.Run); err != nil {
				slog.Error("transport failed", "name", t.Name(), "error", err)
			}
		}(t)
	}

	// Mark as ready once all transports are started.
	if healthServer != nil {
		healthServer.SetReady(true)
	}
	slog.Info("voicecast ready",
		"transports", len(transports),
		"health_port", cfg.Server.HealthPort,
		"output_dir", cfg.Output.Dir)

	// Block until shutdown signal.
	<-ctx.Done()
	slog.Info("shutdown signal received, draining...")

	// Close all transports gracefully.
	for _, t := range transports {
		if err := t.Close(); err != nil {
			slog.Error("transport close error", "name", t.Name(), "error", err)
		}
	}

	wg.Wait()
	slog.Info("voicecast stopped")
}

// newEngine builds the engine for the configured backend.
func newEngine(cfg config.TTSConfig) (*tts.Engine, error) {
	opts := []tts.EngineOption{tts.WithSpeed(cfg.Speed), tts.WithLogger(slog.Default())}

	switch cfg.Backend {
	case "coqui":
		slog.Info("using coqui tts", "endpoint", cfg.Coqui.Endpoint)
		return tts.NewEngine(coqui.Loader(cfg.Coqui), tts.NewVoiceMap(cfg.Voices), opts...), nil
	case "piper":
		slog.Info("using piper tts", "endpoint", cfg.Piper.Endpoint, "languages", len(cfg.Piper.Endpoints))
		return tts.NewEngine(piper.Loader(cfg.Piper), piper.DefaultSpeakers.With(cfg.Voices), opts...), nil
	default:
		return nil, fmt.Errorf("unknown tts backend %q", cfg.Backend)
	}
}

// runScript generates one podcast from path ("-" reads stdin), prints the
// result text to out and returns the process exit code.
func runScript(ctx context.Context, handler transport.Handler, path string, stdin io.Reader, out io.Writer) int {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		fmt.Fprintf(out, "success: false\nerror: reading script: %v\n", err)
		return 1
	}

	result := handler(ctx, &message.Request{
		Source:    "cli",
		Script:    string(raw),
		Timestamp: time.Now(),
	}, func(p message.Progress) {
		slog.Info("progress", "current", p.Current, "total", p.Total)
	})

	fmt.Fprintln(out, result.Text())
	if !result.Success {
		return 1
	}
	return 0
}
