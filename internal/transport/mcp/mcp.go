// Package mcp implements the MCP transport for voicecast.
//
// The transport runs an MCP server over stdio and exposes one tool,
// generate_podcast. It is the transport desktop assistants use: they spawn
// the daemon, call the tool with a script and receive the output path.
// Progress is relayed as notifications/progress when the caller asked for it.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nadzzz/voicecast/internal/message"
	"github.com/nadzzz/voicecast/internal/transport"
)

// ToolName is the name of the generation tool.
const ToolName = "generate_podcast"

const toolDescription = `Generates a podcast dialogue with AI voices.

Supports 1-4 distinct speakers. Mark who is speaking with <voice1>, <voice2>, <voice3> and <voice4> tags.
Each voice gets its own AI voice (2 female, 2 male by default).

Write numbers as words ("four to zero" instead of "4:0") to avoid pronunciation errors.

Example with 2 voices:
    <voice1>Welcome to our podcast!
    <voice2>Thanks for having me.
    <voice1>Let's dive into today's topic.

Optional headers at the start:
    language: de
    filename: barcelona_vs_bilbao.wav

Returns the output file path on success or an error description.`

// GenerateInput is the tool argument.
type GenerateInput struct {
	Script string `json:"script" jsonschema:"the dialogue script with <voice1>, <voice2>, etc. tags"`
}

// Transport implements transport.Transport over MCP.
type Transport struct {
	name    string
	version string
	conn    sdkmcp.Transport

	mu     sync.Mutex
	cancel context.CancelFunc
}

// Option configures a Transport.
type Option func(*Transport)

// WithConnection replaces the default stdio connection.
func WithConnection(conn sdkmcp.Transport) Option {
	return func(t *Transport) { t.conn = conn }
}

// New creates a new MCP transport. name is the server name announced to
// clients during initialization.
func New(name, version string, opts ...Option) *Transport {
	t := &Transport{
		name:    name,
		version: version,
		conn:    &sdkmcp.StdioTransport{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "mcp" }

// Listen serves MCP on the configured connection until the client goes away
// or the context is cancelled.
func (t *Transport) Listen(ctx context.Context, handler transport.Handler) error {
	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()
	defer cancel()

	slog.Info("mcp transport listening", "server", t.name)
	if err := t.Server(handler).Run(ctx, t.conn); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp serve: %w", err)
	}
	slog.Info("mcp transport stopped")
	return nil
}

// Server builds the MCP server with the generation tool registered.
func (t *Transport) Server(handler transport.Handler) *sdkmcp.Server {
	server := sdkmcp.NewServer(&sdkmcp.Implementation{Name: t.name, Version: t.version}, nil)
	sdkmcp.AddTool(server, &sdkmcp.Tool{
		Name:        ToolName,
		Description: toolDescription,
	}, func(ctx context.Context, req *sdkmcp.CallToolRequest, in GenerateInput) (*sdkmcp.CallToolResult, *message.Result, error) {
		return generate(ctx, req, in, handler)
	})
	return server
}

func generate(ctx context.Context, req *sdkmcp.CallToolRequest, in GenerateInput, handler transport.Handler) (*sdkmcp.CallToolResult, *message.Result, error) {
	r := &message.Request{
		Source:    "mcp",
		Script:    in.Script,
		Timestamp: time.Now(),
	}

	var progress message.ProgressFunc
	if token := req.Params.GetProgressToken(); token != nil && req.Session != nil {
		progress = func(p message.Progress) {
			err := req.Session.NotifyProgress(ctx, &sdkmcp.ProgressNotificationParams{
				ProgressToken: token,
				Progress:      float64(p.Current),
				Total:         float64(p.Total),
				Message:       fmt.Sprintf("%d/%d segments", p.Current, p.Total),
			})
			if err != nil {
				slog.Debug("progress notification failed", "error", err)
			}
		}
	}

	result := handler(ctx, r, progress)
	return &sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: result.Text()}},
		IsError: !result.Success,
	}, result, nil
}

// Close stops serving.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		t.cancel()
	}
	return nil
}
