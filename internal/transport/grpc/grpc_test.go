package grpc

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nadzzz/voicecast/internal/message"
)

func handle(_ context.Context, req *message.Request, progress message.ProgressFunc) *message.Result {
	if req.Script == "" {
		return &message.Result{Error: "Script parsing error: no dialogue found", ErrorKind: message.ErrorKindParse}
	}
	progress(message.Progress{Current: 0, Total: 1})
	progress(message.Progress{Current: 0, Total: 1})
	progress(message.Progress{Current: 1, Total: 1})
	return &message.Result{
		RequestID:             "req-1",
		Success:               true,
		OutputFile:            "/out/" + req.Source + ".wav",
		ProcessingTimeSeconds: 0.5,
		TotalSegments:         1,
		Message:               "Successfully generated 1 segments in 0.5s",
	}
}

func startServer(t *testing.T) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())

	tr := New(0)
	done := make(chan error, 1)
	go func() { done <- tr.Serve(ctx, lis, handle) }()

	cc, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = cc.Close()
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("grpc server did not stop")
		}
	})
	return cc
}

func generate(ctx context.Context, cc *grpc.ClientConn, fields map[string]any) ([]*structpb.Struct, error) {
	stream, err := cc.NewStream(ctx, &ServiceDesc.Streams[0], GenerateMethod)
	if err != nil {
		return nil, err
	}
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}

	var out []*structpb.Struct
	for {
		msg := new(structpb.Struct)
		err := stream.RecvMsg(msg)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, msg)
	}
}

func TestGenerate(t *testing.T) {
	cc := startServer(t)

	msgs, err := generate(context.Background(), cc, map[string]any{
		"script": "<voice1>Hi",
		"source": "robot",
	})
	require.NoError(t, err)
	require.Len(t, msgs, 4)

	for _, m := range msgs[:3] {
		assert.Equal(t, "progress", m.AsMap()["type"])
		assert.Equal(t, float64(1), m.AsMap()["total"])
	}
	assert.Equal(t, float64(1), msgs[2].AsMap()["current"])

	result := msgs[3].AsMap()
	assert.Equal(t, "result", result["type"])
	assert.Equal(t, true, result["success"])
	assert.Equal(t, "/out/robot.wav", result["output_file"])
	assert.Equal(t, float64(1), result["total_segments"])
	assert.Equal(t, 0.5, result["processing_time_seconds"])
}

func TestGenerateFailureResult(t *testing.T) {
	cc := startServer(t)

	msgs, err := generate(context.Background(), cc, map[string]any{"script": ""})
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	result := msgs[0].AsMap()
	assert.Equal(t, false, result["success"])
	assert.Equal(t, "parse_error", result["error_kind"])
	assert.Contains(t, result["error"], "no dialogue found")
}

func TestGenerateInvalidArgument(t *testing.T) {
	cc := startServer(t)

	tests := []struct {
		name   string
		fields map[string]any
	}{
		{name: "missing script", fields: map[string]any{"source": "x"}},
		{name: "script not a string", fields: map[string]any{"script": 42}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := generate(context.Background(), cc, tt.fields)
			require.Error(t, err)
			assert.Equal(t, codes.InvalidArgument, status.Code(err))
		})
	}
}

func TestHealthService(t *testing.T) {
	cc := startServer(t)

	resp, err := healthpb.NewHealthClient(cc).Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
