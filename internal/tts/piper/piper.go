// Package piper implements the TTS Synthesizer using a Piper Wyoming protocol server.
//
// Piper is a fast, local neural text-to-speech system. The linuxserver/piper
// container exposes the Wyoming protocol on TCP port 10200. This package
// implements a client for that protocol to synthesize speech.
//
// Wyoming protocol format (per event):
//
//	{"type": ..., "data_length": N, "payload_length": M}\n
//	<data_bytes>      (N bytes of JSON, if data_length > 0)
//	<payload_bytes>   (M bytes, if payload_length > 0)
package piper

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/nadzzz/voicecast/internal/config"
	"github.com/nadzzz/voicecast/internal/tts"
)

// defaultVoices maps ISO-639-1 language codes to Piper voice model names.
// Multi-speaker models are preferred so that each podcast voice sounds different.
var defaultVoices = map[string]string{
	"en": "en_US-libritts_r-medium",
	"fr": "fr_FR-upmc-medium",
	"es": "es_ES-sharvard-medium",
	"de": "de_DE-thorsten_emotional-medium",
	"it": "it_IT-riccardo-x_low",
	"pt": "pt_BR-faber-medium",
	"nl": "nl_NL-mls-medium",
	"pl": "pl_PL-darkman-medium",
	"ru": "ru_RU-ruslan-medium",
	"zh": "zh_CN-huayan-medium",
}

// DefaultSpeakers maps podcast speaker ids to speakers of a multi-speaker
// Piper model. Single-speaker models ignore the speaker.
var DefaultSpeakers = tts.VoiceMap{
	"1": "0",
	"2": "1",
	"3": "2",
	"4": "3",
}

// Synthesizer implements tts.Synthesizer using the Wyoming protocol.
type Synthesizer struct {
	endpoint  string            // default host:port of the Piper Wyoming server
	endpoints map[string]string // language -> host:port for per-language Piper instances
	voices    map[string]string // language -> voice name overrides
	dialer    net.Dialer
}

// New creates a new Piper synthesizer from config.
func New(cfg config.PiperConfig) *Synthesizer {
	// Merge user-configured voices with defaults.
	voices := make(map[string]string, len(defaultVoices))
	for k, v := range defaultVoices {
		voices[k] = v
	}
	for k, v := range cfg.Voices {
		voices[k] = v
	}

	endpoints := make(map[string]string, len(cfg.Endpoints))
	for lang, ep := range cfg.Endpoints {
		endpoints[lang] = cleanEndpoint(ep)
	}

	return &Synthesizer{
		endpoint:  cleanEndpoint(cfg.Endpoint),
		endpoints: endpoints,
		voices:    voices,
		dialer:    net.Dialer{Timeout: 10 * time.Second},
	}
}

// Loader returns a tts.Loader that checks the default Piper server answers a
// describe request before handing out the synthesizer.
func Loader(cfg config.PiperConfig) tts.Loader {
	return func(ctx context.Context) (tts.Synthesizer, error) {
		s := New(cfg)
		if err := s.Describe(ctx); err != nil {
			return nil, err
		}
		return s, nil
	}
}

func cleanEndpoint(ep string) string {
	ep = strings.TrimPrefix(ep, "tcp://")
	ep = strings.TrimPrefix(ep, "http://")
	return ep
}

// Describe asks the default endpoint for its info event.
func (s *Synthesizer) Describe(ctx context.Context) error {
	if s.endpoint == "" {
		return fmt.Errorf("no piper endpoint configured")
	}
	conn, r, err := s.connect(ctx, s.endpoint)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := writeEvent(conn, wyomingEvent{Type: "describe"}, nil); err != nil {
		return fmt.Errorf("sending describe event: %w", err)
	}
	for {
		evt, _, err := readEvent(r)
		if err != nil {
			return fmt.Errorf("reading piper event: %w", err)
		}
		if evt.Type == "info" {
			slog.Debug("piper info received", "endpoint", s.endpoint)
			return nil
		}
	}
}

// Synthesize sends text to the Piper server and returns synthesized audio as WAV.
// opts.Voice selects the speaker within the language's voice model.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, opts tts.SynthesizeOpts) (*tts.SynthesizeResult, error) {
	if text == "" {
		return nil, fmt.Errorf("empty text for synthesis")
	}

	model := s.voices[opts.Language]
	if model == "" {
		model = s.voices["en"] // fallback to English
	}

	// Select endpoint: per-language endpoint if available, else fallback.
	endpoint := s.endpoints[opts.Language]
	if endpoint == "" {
		endpoint = s.endpoint
	}
	if endpoint == "" {
		return nil, fmt.Errorf("no piper endpoint configured for language %q", opts.Language)
	}

	slog.Debug("piper synthesize", "text_length", len(text), "model", model, "speaker", opts.Voice, "language", opts.Language, "endpoint", endpoint)

	conn, r, err := s.connect(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	voice := map[string]any{"name": model}
	if opts.Voice != "" {
		voice["speaker"] = opts.Voice
	}
	synthEvent := wyomingEvent{
		Type: "synthesize",
		Data: map[string]any{
			"text":  text,
			"voice": voice,
		},
	}
	if err := writeEvent(conn, synthEvent, nil); err != nil {
		return nil, fmt.Errorf("sending synthesize event: %w", err)
	}

	// Read response events: audio-start → audio-chunk* → audio-stop
	var (
		pcmBuf     bytes.Buffer
		sampleRate = 22050
		channels   = 1
		width      = 2
	)

	for {
		evt, payload, err := readEvent(r)
		if err != nil {
			return nil, fmt.Errorf("reading piper event: %w", err)
		}

		switch evt.Type {
		case "audio-start":
			if rate, ok := evt.Data["rate"].(float64); ok {
				sampleRate = int(rate)
			}
			if ch, ok := evt.Data["channels"].(float64); ok {
				channels = int(ch)
			}
			if w, ok := evt.Data["width"].(float64); ok {
				width = int(w)
			}
			slog.Debug("piper audio-start", "rate", sampleRate, "channels", channels, "width", width)

		case "audio-chunk":
			pcmBuf.Write(payload)

		case "audio-stop":
			slog.Debug("piper audio-stop", "pcm_bytes", pcmBuf.Len())
			return &tts.SynthesizeResult{
				Audio:       PCMToWAV(pcmBuf.Bytes(), sampleRate, channels, width),
				ContentType: "audio/wav",
				SampleRate:  sampleRate,
				Channels:    channels,
			}, nil

		case "error":
			msg := "unknown error"
			if text, ok := evt.Data["text"].(string); ok {
				msg = text
			}
			return nil, fmt.Errorf("piper error: %s", msg)

		default:
			slog.Debug("piper unknown event", "type", evt.Type)
		}
	}
}

// Close is a no-op: connections are per-request.
func (s *Synthesizer) Close() error { return nil }

func (s *Synthesizer) connect(ctx context.Context, endpoint string) (net.Conn, *bufio.Reader, error) {
	conn, err := s.dialer.DialContext(ctx, "tcp", endpoint)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to piper: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(2 * time.Minute))
	}
	return conn, bufio.NewReader(conn), nil
}

// --- Wyoming protocol helpers ---

type wyomingEvent struct {
	Type          string         `json:"type"`
	Data          map[string]any `json:"data,omitempty"`
	DataLength    int            `json:"data_length,omitempty"`
	PayloadLength int            `json:"payload_length,omitempty"`
}

// writeEvent sends a Wyoming event over the connection.
func writeEvent(w io.Writer, evt wyomingEvent, payload []byte) error {
	var data []byte
	if len(evt.Data) > 0 {
		var err error
		if data, err = json.Marshal(evt.Data); err != nil {
			return fmt.Errorf("marshalling event data: %w", err)
		}
	}
	header, err := json.Marshal(wyomingEvent{
		Type:          evt.Type,
		DataLength:    len(data),
		PayloadLength: len(payload),
	})
	if err != nil {
		return fmt.Errorf("marshalling event: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(len(header) + 1 + len(data) + len(payload))
	buf.Write(header)
	buf.WriteByte('\n')
	buf.Write(data)
	buf.Write(payload)
	_, err = w.Write(buf.Bytes())
	return err
}

// readEvent reads a Wyoming event from the connection.
func readEvent(r *bufio.Reader) (*wyomingEvent, []byte, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, nil, fmt.Errorf("reading header: %w", err)
	}

	var evt wyomingEvent
	if err := json.Unmarshal(line, &evt); err != nil {
		return nil, nil, fmt.Errorf("invalid wyoming header %q: %w", bytes.TrimSpace(line), err)
	}

	if evt.DataLength > 0 {
		data := make([]byte, evt.DataLength)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, nil, fmt.Errorf("reading data: %w", err)
		}
		extra := map[string]any{}
		if err := json.Unmarshal(data, &extra); err != nil {
			return nil, nil, fmt.Errorf("unmarshalling data: %w", err)
		}
		if evt.Data == nil {
			evt.Data = extra
		} else {
			for k, v := range extra {
				evt.Data[k] = v
			}
		}
	}

	var payload []byte
	if evt.PayloadLength > 0 {
		payload = make([]byte, evt.PayloadLength)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, nil, fmt.Errorf("reading payload: %w", err)
		}
	}

	return &evt, payload, nil
}

// PCMToWAV wraps raw little-endian PCM data in a WAV container.
func PCMToWAV(pcm []byte, sampleRate, channels, bytesPerSample int) []byte {
	dataLen := len(pcm)
	fileLen := 36 + dataLen // 44-byte header minus 8 bytes for RIFF header = 36

	buf := &bytes.Buffer{}
	buf.Grow(44 + dataLen)

	// RIFF header
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(fileLen))
	buf.WriteString("WAVE")

	// fmt subchunk: size, PCM format, channels, rate, byte rate, block align, bits
	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate*channels*bytesPerSample))
	_ = binary.Write(buf, binary.LittleEndian, uint16(channels*bytesPerSample))
	_ = binary.Write(buf, binary.LittleEndian, uint16(bytesPerSample*8))

	// data subchunk
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(dataLen))
	buf.Write(pcm)

	return buf.Bytes()
}
