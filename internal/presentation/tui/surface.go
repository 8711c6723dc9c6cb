package tui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/muesli/termenv"

	"github.com/aretw0/photobooth/pkg/domain"
	"github.com/aretw0/photobooth/pkg/ports"
)

// Surface is a line-oriented terminal DisplaySurface.
// Calls may arrive from timer goroutines, so writes are serialized.
type Surface struct {
	mu             sync.Mutex
	out            *termenv.Output
	render         func(string) (string, error)
	captureEnabled bool
}

var _ ports.DisplaySurface = (*Surface)(nil)

// SurfaceOption configures a Surface.
type SurfaceOption func(*surfaceConfig)

type surfaceConfig struct {
	render  func(string) (string, error)
	profile *termenv.Profile
}

// WithMarkdownRenderer sets the renderer used for the results summary.
func WithMarkdownRenderer(render func(string) (string, error)) SurfaceOption {
	return func(c *surfaceConfig) {
		c.render = render
	}
}

// WithProfile forces a color profile instead of detecting it from w.
func WithProfile(p termenv.Profile) SurfaceOption {
	return func(c *surfaceConfig) {
		c.profile = &p
	}
}

// NewSurface writes booth output to w.
func NewSurface(w io.Writer, opts ...SurfaceOption) *Surface {
	cfg := surfaceConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.render == nil {
		cfg.render = NewRenderer()
	}

	var outOpts []termenv.OutputOption
	if cfg.profile != nil {
		outOpts = append(outOpts, termenv.WithProfile(*cfg.profile))
	}
	return &Surface{
		out:    termenv.NewOutput(w, outOpts...),
		render: cfg.render,
	}
}

// Banner prints the banner through the surface output.
func (s *Surface) Banner(version string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	printBanner(s.out, version)
}

func (s *Surface) println(style termenv.Style) {
	fmt.Fprintln(s.out, style)
}

func (s *Surface) ShowView(view domain.View) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var hint string
	switch view {
	case domain.ViewStart:
		hint = "press space to start, q to quit"
	case domain.ViewCapture:
		hint = "press space to take a photo, r to restart"
	case domain.ViewResults:
		hint = "press d to save the strip, r to start over"
	}
	s.println(s.out.String(fmt.Sprintf("== %s ==", view)).Bold())
	if hint != "" {
		s.println(s.out.String(hint).Faint())
	}
}

func (s *Surface) SetProgressText(current, max int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.println(s.out.String(fmt.Sprintf("photo %d of %d", current, max)).Foreground(s.out.Color("#a78bfa")))
}

func (s *Surface) SetCountdownText(value domain.Countdown) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value.Ready {
		s.println(s.out.String("ready").Foreground(s.out.Color("#22c55e")))
		return
	}
	s.println(s.out.String(fmt.Sprintf("  %d ...", value.Value)).Bold().Foreground(s.out.Color("#f59e0b")))
}

// SetCaptureEnabled only prints when the state changes.
func (s *Surface) SetCaptureEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if enabled == s.captureEnabled {
		return
	}
	s.captureEnabled = enabled
	if enabled {
		s.println(s.out.String("[capture on]").Faint())
	} else {
		s.println(s.out.String("[capture off]").Faint())
	}
}

// ShowTransientMessage prints the text once; a terminal log has nothing to clear after d.
func (s *Surface) ShowTransientMessage(text string, _ time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.println(s.out.String("> " + text).Foreground(s.out.Color("#38bdf8")))
}

func (s *Surface) ShowError(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.println(s.out.String("error: " + text).Foreground(s.out.Color("#ef4444")))
}

func (s *Surface) ShowResults(images []domain.CapturedImage) {
	md := ResultsMarkdown(images)

	s.mu.Lock()
	defer s.mu.Unlock()
	rendered, err := s.render(md)
	if err != nil {
		rendered = md
	}
	fmt.Fprint(s.out, rendered)
}

// ResultsMarkdown summarizes a finished session.
func ResultsMarkdown(images []domain.CapturedImage) string {
	var b strings.Builder
	b.WriteString("## Your strip is ready\n\n")
	b.WriteString("| Photo | Taken at | Size |\n")
	b.WriteString("|---|---|---|\n")
	for _, img := range images {
		fmt.Fprintf(&b, "| %d | %s | %s |\n", img.Index+1, img.CapturedAt.Format("15:04:05"), humanSize(len(img.Original)))
	}
	b.WriteString("\nPress **d** to save `" + domain.StripFilename + "`.\n")
	return b.String()
}

func humanSize(n int) string {
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}
	return fmt.Sprintf("%.1f KB", float64(n)/1024)
}
