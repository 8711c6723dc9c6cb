package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/aretw0/photobooth"
	"github.com/aretw0/photobooth/internal/config"
	"github.com/aretw0/photobooth/internal/logging"
	"github.com/aretw0/photobooth/internal/presentation/tui"
	"github.com/aretw0/photobooth/pkg/domain"
	"github.com/aretw0/photobooth/pkg/observability"
	"github.com/aretw0/photobooth/pkg/ports"
)

// RunOptions contains all the configuration for the Run command.
type RunOptions struct {
	ConfigPath string
	Debug      bool
	OutDir     string // Where 'd' writes the strip
}

// Key bindings of the terminal booth.
const (
	keyCtrlC = 3
	keyCtrlD = 4
)

// terminalBooth is what the key loop drives.
type terminalBooth interface {
	ports.BoothSession
	WriteStrip(ctx context.Context, dir string) (string, error)
}

// Run starts the terminal booth on stdin/stdout.
func Run(opts RunOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	// The booth owns the terminal, so logs stay off unless asked for.
	logger := logging.NewNop()
	if opts.Debug {
		logger = logging.New(slog.LevelDebug)
	}

	sigCtx := NewSignalContext(context.Background())
	defer sigCtx.Cancel()

	camera, err := openCamera(cfg.Camera)
	if err != nil {
		return err
	}
	locker, closeLocker, err := openLocker(sigCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = closeLocker() }()

	var out io.Writer = os.Stdout
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		oldState, err := term.MakeRaw(fd)
		if err != nil {
			return fmt.Errorf("raw terminal: %w", err)
		}
		defer func() { _ = term.Restore(fd, oldState) }()
		out = crlfWriter{w: os.Stdout}
	}

	surface := tui.NewSurface(out)
	surface.Banner(photobooth.Version)

	booth, err := photobooth.New(camera, surface, boothOptions(cfg, logger, observability.LogHooks(logger), locker)...)
	if err != nil {
		return err
	}
	defer func() { _ = booth.Close(context.Background()) }()

	surface.ShowView(domain.ViewStart)
	err = Drive(sigCtx, booth, os.Stdin, out, opts.OutDir)
	if sig := sigCtx.Signal(); sig != nil {
		printSystemMessage(out, "Interrupted (%v).", sig)
	}
	return handleExecutionError(err)
}

// Drive feeds key presses from in to the booth until q, Ctrl+C, EOF or ctx ends.
func Drive(ctx context.Context, booth terminalBooth, in io.Reader, out io.Writer, outDir string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	keys := make(chan byte)
	readErr := make(chan error, 1)
	go func() {
		r := bufio.NewReader(in)
		for {
			b, err := r.ReadByte()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case keys <- b:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		case key := <-keys:
			if handleKey(ctx, booth, key, out, outDir) {
				return nil
			}
		}
	}
}

// handleKey applies one key press and reports whether the loop should stop.
func handleKey(ctx context.Context, booth terminalBooth, key byte, out io.Writer, outDir string) bool {
	switch key {
	case ' ', '\r', '\n':
		if booth.Snapshot().Phase == domain.PhaseIdle {
			// The surface already shows device errors.
			_ = booth.StartSession(ctx)
			return false
		}
		booth.BeginCaptureCycle(ctx)
	case 's':
		_ = booth.StartSession(ctx)
	case 'r':
		booth.RestartSession(ctx)
	case 'd':
		path, err := booth.WriteStrip(ctx, outDir)
		switch {
		case err == nil:
			printSystemMessage(out, "Strip saved to %s", path)
		case errors.Is(err, domain.ErrInsufficientImages):
			// Shown by the surface.
		default:
			printSystemMessage(out, "Could not save strip: %v", err)
		}
	case 'q', keyCtrlC, keyCtrlD:
		return true
	}
	return false
}

// crlfWriter restores carriage returns that raw mode stops adding.
type crlfWriter struct {
	w io.Writer
}

func (c crlfWriter) Write(p []byte) (int, error) {
	if _, err := c.w.Write(bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))); err != nil {
		return 0, err
	}
	return len(p), nil
}
