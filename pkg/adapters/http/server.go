// Package http exposes booth sessions over a REST API with a server-sent event
// stream mirroring each session's display surface.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/photobooth/internal/logging"
	"github.com/aretw0/photobooth/pkg/domain"
	"github.com/aretw0/photobooth/pkg/ports"
	"github.com/aretw0/photobooth/pkg/session"
)

// Server serves the booth API.
type Server struct {
	Sessions *session.Manager
	Streams  *StreamManager

	version  string
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithVersion sets the version reported by /info.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// WithMetrics serves the gatherer on /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithStreams shares a StreamManager with the booth factory, so booths can publish
// through a StreamSurface.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		if sm != nil {
			s.Streams = sm
		}
	}
}

// NewServer creates a Server over the session manager.
func NewServer(sessions *session.Manager, opts ...Option) *Server {
	s := &Server{
		Sessions: sessions,
		version:  "dev",
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Streams == nil {
		s.Streams = NewStreamManager(s.logger)
	}
	return s
}

// NewHandler creates the HTTP handler for the session manager.
func NewHandler(ctx context.Context, sessions *session.Manager, opts ...Option) (http.Handler, error) {
	return NewServer(sessions, opts...).Handler(ctx)
}

// Handler builds the router.
func (s *Server) Handler(ctx context.Context) (http.Handler, error) {
	doc, err := LoadSpec(ctx)
	if err != nil {
		return nil, err
	}
	validate, err := validator(doc)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(enableCORS)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		_, _ = w.Write(rawSpec)
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(validate)

		r.Get("/health", s.GetHealth)
		r.Get("/info", s.GetInfo(doc.Info.Version))

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.ListSessions)
			r.Post("/", s.CreateSession)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.GetSession)
				r.Delete("/", s.DeleteSession)
				r.Post("/start", s.StartSession)
				r.Post("/capture", s.BeginCaptureCycle)
				r.Post("/restart", s.RestartSession)
				r.Get("/images/{n}", s.GetImage)
				r.Get("/strip", s.DownloadStrip)
				r.Get("/events", s.SubscribeEvents)
			})
		})
	})

	return r, nil
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Custom-Header")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(apiVersion string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"app":         "photobooth-http",
			"version":     strings.TrimSpace(s.version),
			"api_version": apiVersion,
		})
	}
}

// ListSessions handles the GET /sessions request.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.Sessions.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"sessions": ids})
}

// CreateSession handles the POST /sessions request.
func (s *Server) CreateSession(w http.ResponseWriter, r *http.Request) {
	id, booth, err := s.Sessions.Create(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.logger.Info("Session created", "session_id", id)
	writeJSON(w, http.StatusCreated, newSessionView(booth.Config(), booth.Snapshot()))
}

// GetSession handles the GET /sessions/{id} request.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	booth, err := s.Sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(booth.Config(), booth.Snapshot()))
}

// DeleteSession handles the DELETE /sessions/{id} request.
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.Sessions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StartSession handles the POST /sessions/{id}/start request.
func (s *Server) StartSession(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(ctx context.Context, b ports.BoothSession) error {
		return b.StartSession(ctx)
	})
}

// RestartSession handles the POST /sessions/{id}/restart request.
func (s *Server) RestartSession(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(ctx context.Context, b ports.BoothSession) error {
		b.RestartSession(ctx)
		return nil
	})
}

// BeginCaptureCycle handles the POST /sessions/{id}/capture request.
// A declined cycle is not an error: the response reports started=false.
func (s *Server) BeginCaptureCycle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var started bool
	err := s.Sessions.Do(r.Context(), id, func(ctx context.Context, b ports.BoothSession) error {
		before := b.Snapshot()
		started = b.BeginCaptureCycle(ctx)
		s.broadcastDiff(id, before, b.Snapshot())
		return nil
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"started": started})
}

// mutate runs op on the session, broadcasts the resulting state diff and answers
// with the new snapshot.
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, op func(context.Context, ports.BoothSession) error) {
	id := chi.URLParam(r, "id")
	var view sessionView
	err := s.Sessions.Do(r.Context(), id, func(ctx context.Context, b ports.BoothSession) error {
		before := b.Snapshot()
		opErr := op(ctx, b)
		after := b.Snapshot()
		s.broadcastDiff(id, before, after)
		view = newSessionView(b.Config(), after)
		return opErr
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) broadcastDiff(sessionID string, before, after domain.SessionState) {
	diff := domain.Diff(&before, &after)
	if diff == nil {
		s.logger.Debug("No diff calculated", "session_id", sessionID)
		return
	}
	s.Streams.BroadcastJSON(sessionID, "state", diff)
}

// GetImage handles the GET /sessions/{id}/images/{n} request.
func (s *Server) GetImage(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "image index must be an integer")
		return
	}
	booth, err := s.Sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	images := booth.Snapshot().CapturedImages
	if n < 0 || n >= len(images) {
		writeJSONError(w, http.StatusNotFound, fmt.Sprintf("image %d not captured", n))
		return
	}

	data := images[n].Preview
	if r.URL.Query().Get("variant") == "original" {
		data = images[n].Original
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}

// DownloadStrip handles the GET /sessions/{id}/strip request.
func (s *Server) DownloadStrip(w http.ResponseWriter, r *http.Request) {
	booth, err := s.Sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	artifact, err := booth.ComposeDownload(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(artifact.Data)))
	_, _ = w.Write(artifact.Data)
}

// SubscribeEvents handles the GET /sessions/{id}/events request (SSE).
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if _, err := s.Sessions.Get(r.Context(), sessionID); err != nil {
		s.writeError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Parse 'watch' filter
	watch := map[string]bool{}
	if v := r.URL.Query().Get("watch"); v != "" {
		for _, name := range strings.Split(v, ",") {
			watch[strings.TrimSpace(name)] = true
		}
	}

	s.logger.Info("SSE: Subscribing to Session Updates", "session_id", sessionID)
	ch, cancel := s.Streams.Subscribe(sessionID)
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	keepAlive := time.NewTicker(15 * time.Second)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE Client Disconnected", "session_id", sessionID)
			return
		case <-keepAlive.C:
			fmt.Fprintf(w, ": keep-alive\n\n")
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if len(watch) > 0 && !watch[msg.Event] {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, msg.Data)
			flusher.Flush()
		}
	}
}

// -- Helpers --

type imageView struct {
	Index      int       `json:"index"`
	CapturedAt time.Time `json:"captured_at"`
	URL        string    `json:"url"`
}

type sessionView struct {
	SessionID   string       `json:"session_id"`
	Phase       domain.Phase `json:"phase"`
	Count       int          `json:"count"`
	Max         int          `json:"max"`
	IsCapturing bool         `json:"is_capturing"`
	Remaining   int          `json:"remaining"`
	HasStream   bool         `json:"has_stream"`
	LastError   string       `json:"last_error,omitempty"`
	Images      []imageView  `json:"images"`
}

func newSessionView(cfg domain.Config, st domain.SessionState) sessionView {
	v := sessionView{
		SessionID:   st.SessionID,
		Phase:       st.Phase,
		Count:       st.Count(),
		Max:         cfg.MaxCaptures,
		IsCapturing: st.IsCapturing,
		Remaining:   st.Remaining,
		HasStream:   st.HasStream(),
		LastError:   st.LastError,
		Images:      make([]imageView, 0, st.Count()),
	}
	for _, img := range st.CapturedImages {
		v.Images = append(v.Images, imageView{
			Index:      img.Index,
			CapturedAt: img.CapturedAt,
			URL:        fmt.Sprintf("/sessions/%s/images/%d", st.SessionID, img.Index),
		})
	}
	return v
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientImages):
		return http.StatusConflict
	case errors.Is(err, domain.ErrDeviceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	msg := err.Error()
	var devErr *domain.DeviceError
	if errors.As(err, &devErr) {
		msg = devErr.UserMessage()
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "status", status, "err", err)
	} else {
		s.logger.Warn("Request rejected", "status", status, "err", err)
	}
	writeJSONError(w, status, msg)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
