// Package coqui implements the TTS Synthesizer against a Coqui TTS server.
//
// The server is started with `tts-server --model_name
// tts_models/multilingual/multi-dataset/xtts_v2` and keeps the XTTS model
// resident. Speech is requested with GET /api/tts and returned as WAV.
package coqui

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nadzzz/voicecast/internal/config"
	"github.com/nadzzz/voicecast/internal/tts"
)

// maxAudioBytes bounds a single synthesized segment.
const maxAudioBytes = 256 << 20

// Synthesizer talks to a Coqui TTS server over HTTP.
type Synthesizer struct {
	endpoint string
	client   *http.Client
}

// New creates a new Coqui synthesizer from config.
func New(cfg config.CoquiConfig) *Synthesizer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Synthesizer{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		client:   &http.Client{Timeout: timeout},
	}
}

// Loader returns a tts.Loader that checks the server is up before handing
// out the synthesizer.
func Loader(cfg config.CoquiConfig) tts.Loader {
	return func(ctx context.Context) (tts.Synthesizer, error) {
		s := New(cfg)
		if err := s.Ping(ctx); err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Ping checks that the server answers on its root page.
func (s *Synthesizer) Ping(ctx context.Context) error {
	if s.endpoint == "" {
		return fmt.Errorf("no coqui endpoint configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"/", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("connecting to coqui: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 500 {
		return fmt.Errorf("coqui server unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// Synthesize requests speech for text from the server.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, opts tts.SynthesizeOpts) (*tts.SynthesizeResult, error) {
	if text == "" {
		return nil, fmt.Errorf("empty text for synthesis")
	}

	q := make(url.Values)
	q.Set("text", text)
	if opts.Voice != "" {
		q.Set("speaker_id", opts.Voice)
	}
	if opts.Language != "" {
		q.Set("language_id", opts.Language)
	}
	// Servers that do not know the parameter ignore it.
	if opts.Speed > 0 {
		q.Set("speed", strconv.FormatFloat(opts.Speed, 'f', -1, 64))
	}

	reqURL := s.endpoint + "/api/tts?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "audio/wav")

	slog.Debug("coqui request", "speaker", opts.Voice, "language", opts.Language, "text_length", len(text))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("coqui returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, fmt.Errorf("reading audio: %w", err)
	}
	if len(audio) < 12 || string(audio[:4]) != "RIFF" || string(audio[8:12]) != "WAVE" {
		return nil, fmt.Errorf("coqui returned %d bytes that are not a WAV file", len(audio))
	}

	return &tts.SynthesizeResult{
		Audio:       audio,
		ContentType: "audio/wav",
	}, nil
}

// Close releases idle connections.
func (s *Synthesizer) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
