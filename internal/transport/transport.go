// Package transport defines the interface for pluggable request transports.
//
// Each transport (MCP over stdio, HTTP, gRPC) implements this interface and
// hands incoming scripts to the pipeline. The pipeline doesn't care how
// requests arrive; it only works with the Handler contract.
package transport

import (
	"context"

	"github.com/nadzzz/voicecast/internal/message"
)

// Handler processes one request and returns its result. It never fails:
// errors are reported inside the Result. progress may be nil.
type Handler func(ctx context.Context, req *message.Request, progress message.ProgressFunc) *message.Result

// Transport is the interface that every transport adapter must implement.
type Transport interface {
	// Name returns the transport identifier (e.g., "mcp", "http", "grpc").
	Name() string

	// Listen starts accepting requests and passes them to the handler.
	// It blocks until the context is cancelled or the transport ends.
	Listen(ctx context.Context, handler Handler) error

	// Close gracefully shuts down the transport, draining in-flight work.
	Close() error
}
