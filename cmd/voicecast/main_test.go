package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nadzzz/voicecast/internal/config"
	"github.com/nadzzz/voicecast/internal/message"
)

func echoHandler(_ context.Context, req *message.Request, progress message.ProgressFunc) *message.Result {
	if !strings.Contains(req.Script, "<voice") {
		return &message.Result{Error: "Script parsing error: no dialogue found", ErrorKind: message.ErrorKindParse}
	}
	progress(message.Progress{Current: 0, Total: 1})
	return &message.Result{Success: true, OutputFile: "/out/" + req.Source + ".wav", ProcessingTimeSeconds: 0.25, TotalSegments: 1}
}

func TestRunScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "episode.txt")
	require.NoError(t, os.WriteFile(path, []byte("<voice1>Hi"), 0o644))

	var out bytes.Buffer
	code := runScript(context.Background(), echoHandler, path, nil, &out)

	assert.Equal(t, 0, code)
	assert.Equal(t, "success: true\noutput_file: /out/cli.wav\nprocessing_time_seconds: 0.25\ntotal_segments: 1\n", out.String())
}

func TestRunScriptStdin(t *testing.T) {
	var out bytes.Buffer
	code := runScript(context.Background(), echoHandler, "-", strings.NewReader("no tags"), &out)

	assert.Equal(t, 1, code)
	assert.Equal(t, "success: false\nerror: Script parsing error: no dialogue found\n", out.String())
}

func TestRunScriptMissingFile(t *testing.T) {
	var out bytes.Buffer
	code := runScript(context.Background(), echoHandler, filepath.Join(t.TempDir(), "nope.txt"), nil, &out)

	assert.Equal(t, 1, code)
	assert.Contains(t, out.String(), "reading script")
}

func TestNewEngine(t *testing.T) {
	for _, backend := range []string{"coqui", "piper"} {
		e, err := newEngine(config.TTSConfig{Backend: backend, Speed: 1.2})
		require.NoError(t, err, backend)
		assert.False(t, e.Loaded())
	}

	e, err := newEngine(config.TTSConfig{Backend: "piper", Voices: map[string]string{"2": "7"}})
	require.NoError(t, err)
	assert.Equal(t, "7", e.Voice("2"))
	assert.Equal(t, "0", e.Voice("9"))

	_, err = newEngine(config.TTSConfig{Backend: "espeak"})
	assert.ErrorContains(t, err, `unknown tts backend "espeak"`)
}
