// Package mcp exposes booth sessions as Model Context Protocol tools, so an agent
// can run a photo session and fetch the strip.
package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/mitchellh/mapstructure"

	"github.com/aretw0/photobooth/internal/logging"
	"github.com/aretw0/photobooth/pkg/domain"
	"github.com/aretw0/photobooth/pkg/ports"
	"github.com/aretw0/photobooth/pkg/session"
)

// SessionResponse is the structured result of every session tool.
type SessionResponse struct {
	SessionID   string       `json:"session_id" jsonschema_description:"ID to pass to the other tools"`
	Phase       domain.Phase `json:"phase" jsonschema_description:"idle, awaiting_capture, counting or session_complete"`
	Count       int          `json:"count" jsonschema_description:"Number of photos taken"`
	Max         int          `json:"max" jsonschema_description:"Number of photos in a strip"`
	IsCapturing bool         `json:"is_capturing" jsonschema_description:"True while a countdown or its completion is running"`
	Remaining   int          `json:"remaining" jsonschema_description:"Countdown value while counting"`
	HasStream   bool         `json:"has_stream" jsonschema_description:"True while the camera is open"`
	LastError   string       `json:"last_error,omitempty" jsonschema_description:"Last camera error shown to the user"`
	Started     *bool        `json:"started,omitempty" jsonschema_description:"Whether begin_capture started a countdown"`
}

// sessionArgs are the arguments shared by the session tools.
type sessionArgs struct {
	SessionID string `mapstructure:"session_id"`
}

type imageArgs struct {
	SessionID string `mapstructure:"session_id"`
	Index     int    `mapstructure:"index"`
	Variant   string `mapstructure:"variant"`
}

type waitArgs struct {
	SessionID string `mapstructure:"session_id"`
	Phase     string `mapstructure:"phase"`
	TimeoutMS int    `mapstructure:"timeout_ms"`
}

// Server exposes a session manager as an MCP Server.
type Server struct {
	sessions  *session.Manager
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(sessions *session.Manager, version string, opts ...Option) *Server {
	mcpServer := server.NewMCPServer("photobooth-mcp", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)
	s := &Server{
		sessions:  sessions,
		mcpServer: mcpServer,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying mcp-go server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for errors coming from the listener.
	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("Shutdown signal received, shutting down server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	sessionID := mcp.WithString("session_id", mcp.Required(), mcp.Description("Session ID returned by create_session"))

	s.mcpServer.AddTool(mcp.NewTool("create_session",
		mcp.WithDescription("Create a new photobooth session in the idle phase."),
		mcp.WithOutputSchema[SessionResponse](),
	), mcp.NewStructuredToolHandler(s.handleCreate))

	s.mcpServer.AddTool(mcp.NewTool("start_session",
		mcp.WithDescription("Open the camera and show the capture view. Clears photos of a previous run."),
		sessionID,
		mcp.WithOutputSchema[SessionResponse](),
	), mcp.NewStructuredToolHandler(s.handleStart))

	s.mcpServer.AddTool(mcp.NewTool("begin_capture",
		mcp.WithDescription("Start the countdown for the next photo. Ignored while a countdown runs or when the strip is full."),
		sessionID,
		mcp.WithOutputSchema[SessionResponse](),
	), mcp.NewStructuredToolHandler(s.handleBeginCapture))

	s.mcpServer.AddTool(mcp.NewTool("restart_session",
		mcp.WithDescription("Cancel any countdown, close the camera and discard the photos."),
		sessionID,
		mcp.WithOutputSchema[SessionResponse](),
	), mcp.NewStructuredToolHandler(s.handleRestart))

	s.mcpServer.AddTool(mcp.NewTool("get_status",
		mcp.WithDescription("Get the current phase and photo count of a session."),
		sessionID,
		mcp.WithOutputSchema[SessionResponse](),
	), mcp.NewStructuredToolHandler(s.handleStatus))

	s.mcpServer.AddTool(mcp.NewTool("wait_for_phase",
		mcp.WithDescription("Block until the session reaches a phase and is not capturing, or the timeout elapses."),
		sessionID,
		mcp.WithString("phase", mcp.Required(), mcp.Description("Target phase"),
			mcp.Enum(string(domain.PhaseIdle), string(domain.PhaseAwaitingCapture), string(domain.PhaseCounting), string(domain.PhaseSessionComplete))),
		mcp.WithNumber("timeout_ms", mcp.Description("Maximum wait in milliseconds (default 10000)")),
		mcp.WithOutputSchema[SessionResponse](),
	), mcp.NewStructuredToolHandler(s.handleWait))

	s.mcpServer.AddTool(mcp.NewTool("get_image",
		mcp.WithDescription("Fetch one captured photo as PNG."),
		sessionID,
		mcp.WithNumber("index", mcp.Required(), mcp.Description("Zero-based photo index")),
		mcp.WithString("variant", mcp.Description("preview (mirrored, default) or original"), mcp.Enum("preview", "original")),
	), s.handleImage)

	s.mcpServer.AddTool(mcp.NewTool("download_strip",
		mcp.WithDescription("Compose the photo strip as PNG. Requires every photo to be taken."),
		sessionID,
	), s.handleStrip)

	s.mcpServer.AddTool(mcp.NewTool("delete_session",
		mcp.WithDescription("Close the session and release its camera."),
		sessionID,
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args sessionArgs
		if err := decodeArgs(request.GetArguments(), &args); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if err := s.sessions.Delete(ctx, args.SessionID); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("delete failed: %v", err)), nil
		}
		return mcp.NewToolResultText("deleted " + args.SessionID), nil
	})
}

// decodeArgs maps loosely typed tool arguments (JSON numbers arrive as float64) onto out.
func decodeArgs(in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(in); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func (s *Server) sessionFromArgs(ctx context.Context, in map[string]any) (string, ports.BoothSession, error) {
	var args sessionArgs
	if err := decodeArgs(in, &args); err != nil {
		return "", nil, err
	}
	if args.SessionID == "" {
		return "", nil, errors.New("session_id is required")
	}
	booth, err := s.sessions.Get(ctx, args.SessionID)
	if err != nil {
		return "", nil, err
	}
	return args.SessionID, booth, nil
}

func toResponse(b ports.BoothSession) SessionResponse {
	st := b.Snapshot()
	return SessionResponse{
		SessionID:   st.SessionID,
		Phase:       st.Phase,
		Count:       st.Count(),
		Max:         b.Config().MaxCaptures,
		IsCapturing: st.IsCapturing,
		Remaining:   st.Remaining,
		HasStream:   st.HasStream(),
		LastError:   st.LastError,
	}
}

// Handler methods for structured tools

func (s *Server) handleCreate(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (SessionResponse, error) {
	_, booth, err := s.sessions.Create(ctx)
	if err != nil {
		return SessionResponse{}, fmt.Errorf("create failed: %w", err)
	}
	return toResponse(booth), nil
}

func (s *Server) handleStart(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (SessionResponse, error) {
	id, _, err := s.sessionFromArgs(ctx, args)
	if err != nil {
		return SessionResponse{}, err
	}

	var resp SessionResponse
	err = s.sessions.Do(ctx, id, func(ctx context.Context, b ports.BoothSession) error {
		startErr := b.StartSession(ctx)
		resp = toResponse(b)
		return startErr
	})
	if err != nil {
		var devErr *domain.DeviceError
		if errors.As(err, &devErr) {
			s.logger.Warn("MCP Start: camera unavailable", "session_id", id, "err", err)
			return SessionResponse{}, errors.New(devErr.UserMessage())
		}
		return SessionResponse{}, fmt.Errorf("start failed: %w", err)
	}
	return resp, nil
}

func (s *Server) handleBeginCapture(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (SessionResponse, error) {
	id, _, err := s.sessionFromArgs(ctx, args)
	if err != nil {
		return SessionResponse{}, err
	}

	var resp SessionResponse
	err = s.sessions.Do(ctx, id, func(ctx context.Context, b ports.BoothSession) error {
		started := b.BeginCaptureCycle(ctx)
		resp = toResponse(b)
		resp.Started = &started
		return nil
	})
	return resp, err
}

func (s *Server) handleRestart(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (SessionResponse, error) {
	id, _, err := s.sessionFromArgs(ctx, args)
	if err != nil {
		return SessionResponse{}, err
	}

	var resp SessionResponse
	err = s.sessions.Do(ctx, id, func(ctx context.Context, b ports.BoothSession) error {
		b.RestartSession(ctx)
		resp = toResponse(b)
		return nil
	})
	return resp, err
}

func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (SessionResponse, error) {
	_, booth, err := s.sessionFromArgs(ctx, args)
	if err != nil {
		return SessionResponse{}, err
	}
	return toResponse(booth), nil
}

func (s *Server) handleWait(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (SessionResponse, error) {
	var w waitArgs
	if err := decodeArgs(args, &w); err != nil {
		return SessionResponse{}, err
	}
	_, booth, err := s.sessionFromArgs(ctx, args)
	if err != nil {
		return SessionResponse{}, err
	}

	timeout := 10 * time.Second
	if w.TimeoutMS > 0 {
		timeout = time.Duration(w.TimeoutMS) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		resp := toResponse(booth)
		if string(resp.Phase) == w.Phase && !resp.IsCapturing {
			return resp, nil
		}
		select {
		case <-ctx.Done():
			return resp, fmt.Errorf("phase %s not reached: %w", w.Phase, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (s *Server) handleImage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args imageArgs
	if err := decodeArgs(request.GetArguments(), &args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	_, booth, err := s.sessionFromArgs(ctx, request.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	images := booth.Snapshot().CapturedImages
	if args.Index < 0 || args.Index >= len(images) {
		return mcp.NewToolResultError(fmt.Sprintf("image %d not captured (have %d)", args.Index, len(images))), nil
	}
	data := images[args.Index].Preview
	if args.Variant == "original" {
		data = images[args.Index].Original
	}
	return mcp.NewToolResultImage(fmt.Sprintf("photo %d", args.Index), base64.StdEncoding.EncodeToString(data), "image/png"), nil
}

func (s *Server) handleStrip(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, booth, err := s.sessionFromArgs(ctx, request.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	artifact, err := booth.ComposeDownload(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("download failed: %v", err)), nil
	}
	return mcp.NewToolResultImage(artifact.Filename, base64.StdEncoding.EncodeToString(artifact.Data), "image/png"), nil
}

func (s *Server) registerResources() {
	// EXPOSE: photobooth://sessions
	s.mcpServer.AddResource(mcp.NewResource("photobooth://sessions", "Live photobooth sessions",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		ids, err := s.sessions.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list sessions: %w", err)
		}
		out := make([]SessionResponse, 0, len(ids))
		for _, id := range ids {
			if booth, err := s.sessions.Get(ctx, id); err == nil {
				out = append(out, toResponse(booth))
			}
		}
		jsonBytes, _ := json.Marshal(out)

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "photobooth://sessions",
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
