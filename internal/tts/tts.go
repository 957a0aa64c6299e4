// Package tts defines the text-to-speech backend interface and the shared
// engine handle the generation pipeline synthesizes through.
//
// Backends (Coqui XTTS server, Piper over Wyoming) are expensive to bring up,
// so the Engine connects to them lazily on first use and keeps one instance
// for the life of the process.
package tts

import "context"

// SynthesizeOpts controls synthesis behavior.
type SynthesizeOpts struct {
	// Language is the ISO-639-1 code (e.g., "en", "de").
	Language string

	// Voice is the backend-specific voice or speaker name.
	Voice string

	// Speed is the speaking rate multiplier. Zero means backend default.
	Speed float64
}

// Synthesizer converts text to audio.
type Synthesizer interface {
	// Synthesize generates speech for text and returns it as a WAV file.
	Synthesize(ctx context.Context, text string, opts SynthesizeOpts) (*SynthesizeResult, error)

	// Close releases any resources held by the synthesizer.
	Close() error
}

// SynthesizeResult holds the output of TTS synthesis.
type SynthesizeResult struct {
	// Audio is the synthesized audio as a WAV file.
	Audio []byte

	// ContentType is the MIME type of the audio (e.g., "audio/wav").
	ContentType string

	// SampleRate is the audio sample rate in Hz (e.g., 22050).
	SampleRate int

	// Channels is the number of audio channels (typically 1).
	Channels int
}

// Loader brings up a backend. It is called at most once per successful load.
type Loader func(ctx context.Context) (Synthesizer, error)
