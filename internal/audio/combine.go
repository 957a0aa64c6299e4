// Package audio joins synthesized WAV segments into one file.
package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// FormatWAV is the only output container supported.
const FormatWAV = "wav"

// pcmFormat is the WAVE_FORMAT_PCM tag.
const pcmFormat = 1

// ErrCombine is wrapped by every error Combine returns.
var ErrCombine = errors.New("combine failed")

// format describes the PCM layout all segments must share.
type format struct {
	sampleRate int
	channels   int
	bitDepth   int
}

func (f format) String() string {
	return fmt.Sprintf("%d Hz/%d ch/%d bit", f.sampleRate, f.channels, f.bitDepth)
}

// Combiner concatenates WAV segments with silence between them.
type Combiner struct {
	logger *slog.Logger
}

// NewCombiner creates a Combiner. A nil logger falls back to slog.Default.
func NewCombiner(logger *slog.Logger) *Combiner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Combiner{logger: logger}
}

// Combine decodes paths in order, joins them with gap of silence between
// consecutive segments and writes the result to outputPath. The parent
// directory is created when missing. The file appears atomically: it is
// written under a temporary name and renamed into place.
func (c *Combiner) Combine(ctx context.Context, paths []string, gap time.Duration, outputPath, outFormat string) (string, error) {
	if len(paths) == 0 {
		return "", fmt.Errorf("%w: no segments to combine", ErrCombine)
	}
	if !strings.EqualFold(outFormat, FormatWAV) {
		return "", fmt.Errorf("%w: unsupported output format %q", ErrCombine, outFormat)
	}
	if gap < 0 {
		gap = 0
	}

	var (
		layout format
		data   []int
	)
	for i, p := range paths {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("%w: %w", ErrCombine, err)
		}

		buf, f, err := decode(p)
		if err != nil {
			return "", fmt.Errorf("%w: segment %d: %w", ErrCombine, i, err)
		}
		if i == 0 {
			layout = f
			data = make([]int, 0, len(buf.Data)*len(paths))
		} else {
			if f != layout {
				return "", fmt.Errorf("%w: segment %d is %s, expected %s", ErrCombine, i, f, layout)
			}
			data = append(data, make([]int, silenceSamples(layout, gap))...)
		}
		data = append(data, buf.Data...)
	}

	out := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: layout.channels,
			SampleRate:  layout.sampleRate,
		},
		Data:           data,
		SourceBitDepth: layout.bitDepth,
	}
	if err := writeAtomic(outputPath, out, layout); err != nil {
		return "", fmt.Errorf("%w: %w", ErrCombine, err)
	}

	c.logger.Debug("segments combined",
		"segments", len(paths),
		"format", layout.String(),
		"gap", gap,
		"output", outputPath)
	return outputPath, nil
}

// silenceSamples returns the number of interleaved zero samples for gap.
func silenceSamples(f format, gap time.Duration) int {
	frames := int(int64(f.sampleRate) * int64(gap) / int64(time.Second))
	return frames * f.channels
}

func decode(path string) (*goaudio.IntBuffer, format, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, format{}, err
	}
	defer fh.Close()

	dec := wav.NewDecoder(fh)
	if !dec.IsValidFile() {
		return nil, format{}, fmt.Errorf("%s is not a valid WAV file", filepath.Base(path))
	}
	if dec.WavAudioFormat != pcmFormat {
		return nil, format{}, fmt.Errorf("%s uses audio format %d, only PCM is supported", filepath.Base(path), dec.WavAudioFormat)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, format{}, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	return buf, format{
		sampleRate: int(dec.SampleRate),
		channels:   int(dec.NumChans),
		bitDepth:   int(dec.BitDepth),
	}, nil
}

func writeAtomic(outputPath string, buf *goaudio.IntBuffer, f format) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(outputPath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	enc := wav.NewEncoder(tmp, f.sampleRate, f.bitDepth, f.channels, pcmFormat)
	if err := enc.Write(buf); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encoding wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("finalizing wav: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpName, outputPath); err != nil {
		return fmt.Errorf("renaming output: %w", err)
	}
	committed = true
	return nil
}
