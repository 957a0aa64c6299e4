package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResultText(t *testing.T) {
	tests := []struct {
		name   string
		result Result
		want   string
	}{
		{
			name: "success",
			result: Result{
				Success:               true,
				OutputFile:            "/home/me/Downloads/show.wav",
				ProcessingTimeSeconds: 12.34,
				TotalSegments:         3,
			},
			want: "success: true\noutput_file: /home/me/Downloads/show.wav\nprocessing_time_seconds: 12.34\ntotal_segments: 3",
		},
		{
			name:   "whole seconds",
			result: Result{Success: true, OutputFile: "/tmp/a.wav", ProcessingTimeSeconds: 2, TotalSegments: 1},
			want:   "success: true\noutput_file: /tmp/a.wav\nprocessing_time_seconds: 2\ntotal_segments: 1",
		},
		{
			name:   "failure",
			result: Result{Error: "no dialogue found in script", ErrorKind: ErrorKindParse},
			want:   "success: false\nerror: no dialogue found in script",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.result.Text())
		})
	}
}
