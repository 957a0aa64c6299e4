// Package http implements the HTTP transport for voicecast.
//
// This transport exposes a REST API for podcast generation plus a streaming
// variant that reports progress as newline-delimited JSON. It is best suited
// for scripts, web tools and services that prefer HTTP-based communication.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nadzzz/voicecast/internal/message"
	"github.com/nadzzz/voicecast/internal/transport"

	httpSwagger "github.com/swaggo/http-swagger/v2"
)

// maxBodyBytes caps request bodies. Scripts are limited to 100k characters.
const maxBodyBytes = 1 << 20

// GenerateRequest is the JSON body of a generation request.
type GenerateRequest struct {
	// Script is the dialogue markup with <voiceN> tags.
	Script string `json:"script" example:"<voice1>Welcome to the show!\n<voice2>Thanks for having me."`

	// Source identifies the caller.
	Source string `json:"source,omitempty" example:"studio-laptop"`
}

// StreamEvent is one line of a /generate/stream response.
type StreamEvent struct {
	// Type is "progress" or "result".
	Type     string            `json:"type"`
	Progress *message.Progress `json:"progress,omitempty"`
	Result   *message.Result   `json:"result,omitempty"`
}

// Transport implements transport.Transport over HTTP.
type Transport struct {
	port   int
	server *http.Server
}

// New creates a new HTTP transport on the given port.
func New(port int) *Transport {
	return &Transport{port: port}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "http" }

// Listen starts the HTTP server and routes incoming requests to the handler.
func (t *Transport) Listen(ctx context.Context, handler transport.Handler) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", t.port))
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	return t.Serve(ctx, lis, handler)
}

// Serve runs the HTTP server on lis until the context is cancelled.
func (t *Transport) Serve(ctx context.Context, lis net.Listener, handler transport.Handler) error {
	t.server = &http.Server{
		Handler:           Routes(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("http transport listening", "addr", lis.Addr().String())

	go func() {
		<-ctx.Done()
		slog.Info("http transport shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = t.server.Shutdown(shutdownCtx)
	}()

	if err := t.server.Serve(lis); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http serve: %w", err)
	}
	return nil
}

// Routes returns the HTTP handler tree for the API.
func Routes(handler transport.Handler) http.Handler {
	mux := http.NewServeMux()

	// POST /generate runs a script and returns the result.
	mux.HandleFunc("POST /generate", func(w http.ResponseWriter, r *http.Request) {
		handleGenerate(w, r, handler)
	})

	// POST /generate/stream does the same, with progress lines before the result.
	mux.HandleFunc("POST /generate/stream", func(w http.ResponseWriter, r *http.Request) {
		handleGenerateStream(w, r, handler)
	})

	// Swagger UI serves the generated OpenAPI docs.
	mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	return mux
}

// handleGenerate processes a POST /generate request.
//
// @Summary     Generate a podcast
// @Description Accepts a dialogue script, either as JSON or as a raw text/plain body, synthesizes every
// @Description <voiceN> segment and writes one combined WAV file. The response carries the output path.
// @Tags        generate
// @Accept      json
// @Accept      plain
// @Produce     json
// @Param       request  body      GenerateRequest  true  "Generation request (JSON). For a raw script, POST it as text/plain."
// @Param       X-Voicecast-Source  header  string  false  "Caller identifier (used with text/plain bodies)"
// @Success     200  {object}  message.Result  "Podcast generated"
// @Failure     400  {string}  string          "Invalid request body"
// @Failure     413  {string}  string          "Request body too large"
// @Failure     422  {object}  message.Result  "Script rejected by the parser"
// @Failure     500  {object}  message.Result  "Synthesis or combine failure"
// @Router      /generate [post]
func handleGenerate(w http.ResponseWriter, r *http.Request, handler transport.Handler) {
	req, status, err := decodeRequest(w, r)
	if err != nil {
		http.Error(w, err.Error(), status)
		return
	}

	result := handler(r.Context(), req, nil)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(result))
	_ = json.NewEncoder(w).Encode(result)
}

// handleGenerateStream processes a POST /generate/stream request.
//
// @Summary     Generate a podcast with progress
// @Description Same as /generate, but the response is newline-delimited JSON: one "progress" event
// @Description before and after every segment, then a final "result" event.
// @Tags        generate
// @Accept      json
// @Accept      plain
// @Produce     x-ndjson
// @Param       request  body      GenerateRequest  true  "Generation request"
// @Success     200  {object}  StreamEvent  "Stream of progress events followed by the result"
// @Failure     400  {string}  string       "Invalid request body"
// @Failure     413  {string}  string       "Request body too large"
// @Router      /generate/stream [post]
func handleGenerateStream(w http.ResponseWriter, r *http.Request, handler transport.Handler) {
	req, status, err := decodeRequest(w, r)
	if err != nil {
		http.Error(w, err.Error(), status)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	var mu sync.Mutex
	rc := http.NewResponseController(w)
	enc := json.NewEncoder(w)
	send := func(ev StreamEvent) {
		mu.Lock()
		defer mu.Unlock()
		if err := enc.Encode(ev); err != nil {
			slog.Debug("stream write failed", "error", err)
			return
		}
		_ = rc.Flush()
	}

	result := handler(r.Context(), req, func(p message.Progress) {
		send(StreamEvent{Type: "progress", Progress: &p})
	})
	send(StreamEvent{Type: "result", Result: result})
}

// decodeRequest reads a JSON or text/plain body into a Request.
func decodeRequest(w http.ResponseWriter, r *http.Request) (*message.Request, int, error) {
	req := &message.Request{
		Source:    r.Header.Get("X-Voicecast-Source"),
		Timestamp: time.Now(),
	}
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		var in GenerateRequest
		if err := json.NewDecoder(body).Decode(&in); err != nil {
			return nil, bodyErrorStatus(err), fmt.Errorf("invalid json: %w", err)
		}
		req.Script = in.Script
		if in.Source != "" {
			req.Source = in.Source
		}
	case "text/plain", "":
		raw, err := io.ReadAll(body)
		if err != nil {
			return nil, bodyErrorStatus(err), fmt.Errorf("reading body: %w", err)
		}
		req.Script = string(raw)
	default:
		return nil, http.StatusUnsupportedMediaType, fmt.Errorf("unsupported content type %q", mediaType)
	}

	if req.Source == "" {
		req.Source = "http"
	}
	return req, 0, nil
}

func bodyErrorStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

// statusFor maps a result to the response status code.
func statusFor(result *message.Result) int {
	switch {
	case result.Success:
		return http.StatusOK
	case result.ErrorKind == message.ErrorKindParse:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Close gracefully shuts down the HTTP server.
func (t *Transport) Close() error {
	if t.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return t.server.Shutdown(ctx)
	}
	return nil
}
