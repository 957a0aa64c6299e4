// Package grpc implements the gRPC transport for voicecast.
//
// This transport exposes the voicecast.v1.Podcast service. Generate is a
// server-streaming call: the client sends one request and receives progress
// messages followed by a final result message. Messages are
// google.protobuf.Struct values so no generated code is required. The
// standard grpc.health.v1 service is registered alongside.
package grpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/nadzzz/voicecast/internal/message"
	"github.com/nadzzz/voicecast/internal/transport"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "voicecast.v1.Podcast"

	// GenerateMethod is the full method path of Generate.
	GenerateMethod = "/" + ServiceName + "/Generate"
)

// podcastServer is the server API for the Podcast service.
type podcastServer interface {
	Generate(req *structpb.Struct, stream grpc.ServerStream) error
}

// ServiceDesc describes the Podcast service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*podcastServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Generate",
			Handler:       generateHandler,
			ServerStreams: true,
		},
	},
	Metadata: "voicecast/v1/podcast.proto",
}

func generateHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(podcastServer).Generate(in, stream)
}

// Transport implements transport.Transport over gRPC.
type Transport struct {
	port   int
	server *grpc.Server
	health *health.Server
}

// New creates a new gRPC transport on the given port.
func New(port int) *Transport {
	return &Transport{port: port}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "grpc" }

// Listen starts the gRPC server and routes incoming requests to the handler.
func (t *Transport) Listen(ctx context.Context, handler transport.Handler) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", t.port))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	return t.Serve(ctx, lis, handler)
}

// Serve runs the gRPC server on lis until the context is cancelled.
func (t *Transport) Serve(ctx context.Context, lis net.Listener, handler transport.Handler) error {
	t.server = grpc.NewServer()
	t.server.RegisterService(&ServiceDesc, &service{handler: handler})

	t.health = health.NewServer()
	healthpb.RegisterHealthServer(t.server, t.health)
	t.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	slog.Info("grpc transport listening", "addr", lis.Addr().String())

	go func() {
		<-ctx.Done()
		slog.Info("grpc transport shutting down")
		t.health.Shutdown()
		t.server.GracefulStop()
	}()

	if err := t.server.Serve(lis); err != nil {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

// Close gracefully stops the gRPC server.
func (t *Transport) Close() error {
	if t.health != nil {
		t.health.Shutdown()
	}
	if t.server != nil {
		t.server.GracefulStop()
	}
	return nil
}

// service adapts the Handler to the Podcast service.
type service struct {
	handler transport.Handler
}

// Generate runs one script and streams progress and the result back.
func (s *service) Generate(req *structpb.Struct, stream grpc.ServerStream) error {
	scriptVal, ok := req.GetFields()["script"]
	if !ok {
		return status.Error(codes.InvalidArgument, "script is required")
	}
	if _, isString := scriptVal.GetKind().(*structpb.Value_StringValue); !isString {
		return status.Error(codes.InvalidArgument, "script must be a string")
	}

	source := req.GetFields()["source"].GetStringValue()
	if source == "" {
		source = "grpc"
	}
	r := &message.Request{
		Source:    source,
		Script:    scriptVal.GetStringValue(),
		Timestamp: time.Now(),
	}

	var mu sync.Mutex
	send := func(fields map[string]any) error {
		msg, err := structpb.NewStruct(fields)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		return stream.SendMsg(msg)
	}

	result := s.handler(stream.Context(), r, func(p message.Progress) {
		if err := send(progressFields(p)); err != nil {
			slog.Debug("grpc progress send failed", "error", err)
		}
	})
	if err := send(resultFields(result)); err != nil {
		return status.Errorf(codes.Unavailable, "sending result: %v", err)
	}
	return nil
}

func progressFields(p message.Progress) map[string]any {
	return map[string]any{
		"type":    "progress",
		"current": p.Current,
		"total":   p.Total,
	}
}

func resultFields(r *message.Result) map[string]any {
	fields := map[string]any{
		"type":       "result",
		"request_id": r.RequestID,
		"success":    r.Success,
	}
	if r.Success {
		fields["output_file"] = r.OutputFile
		fields["processing_time_seconds"] = r.ProcessingTimeSeconds
		fields["total_segments"] = r.TotalSegments
		fields["message"] = r.Message
	} else {
		fields["error"] = r.Error
		fields["error_kind"] = string(r.ErrorKind)
	}
	return fields
}
