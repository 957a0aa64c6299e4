// Package message defines the core data types flowing through the voicecast pipeline.
package message

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrorKind classifies why a run failed.
type ErrorKind string

const (
	// ErrorKindParse means the script was rejected before any synthesis.
	ErrorKindParse ErrorKind = "parse_error"

	// ErrorKindSynthesis means a dialogue line could not be synthesized.
	ErrorKindSynthesis ErrorKind = "synthesis_error"

	// ErrorKindCombine means the segments could not be joined.
	ErrorKindCombine ErrorKind = "combine_error"

	// ErrorKindUnknown covers cancellation, recovered panics and anything
	// else unexpected.
	ErrorKindUnknown ErrorKind = "unknown_error"
)

// Request represents an incoming generation request from any transport.
type Request struct {
	// ID is a unique identifier for this request (UUID).
	ID string `json:"id"`

	// Source identifies the caller (e.g., "mcp", "cli", "studio-laptop").
	Source string `json:"source,omitempty"`

	// Script is the dialogue markup with <voiceN> tags and optional
	// language:/filename: headers.
	Script string `json:"script"`

	// Timestamp is when the request was received by voicecast.
	Timestamp time.Time `json:"timestamp"`
}

// Result is the outcome of running a request through the pipeline.
// Exactly one of OutputFile or Error is meaningful, depending on Success.
type Result struct {
	// RequestID is the original request ID.
	RequestID string `json:"request_id"`

	Success bool `json:"success"`

	// OutputFile is the absolute path of the combined WAV.
	OutputFile string `json:"output_file,omitempty"`

	// ProcessingTimeSeconds is the wall time of the run, rounded to 2 decimals.
	ProcessingTimeSeconds float64 `json:"processing_time_seconds,omitempty"`

	// TotalSegments is the number of dialogue lines synthesized.
	TotalSegments int `json:"total_segments,omitempty"`

	// Message is a human-readable summary of a successful run.
	Message string `json:"message,omitempty"`

	// Error is a human-readable failure description.
	Error string `json:"error,omitempty"`

	// ErrorKind classifies Error.
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
}

// Text renders the result in the line-oriented key: value form returned to
// tool callers.
func (r *Result) Text() string {
	var b strings.Builder
	if r.Success {
		b.WriteString("success: true\n")
		fmt.Fprintf(&b, "output_file: %s\n", r.OutputFile)
		fmt.Fprintf(&b, "processing_time_seconds: %s\n", strconv.FormatFloat(r.ProcessingTimeSeconds, 'f', -1, 64))
		fmt.Fprintf(&b, "total_segments: %d", r.TotalSegments)
		return b.String()
	}
	b.WriteString("success: false\n")
	fmt.Fprintf(&b, "error: %s", r.Error)
	return b.String()
}

// Progress reports how many of Total dialogue lines are done.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// ProgressFunc receives progress events. Implementations must not block for
// long; a nil ProgressFunc is allowed wherever one is accepted.
type ProgressFunc func(Progress)
