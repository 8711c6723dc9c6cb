package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the photobooth banner followed by the version.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	printBanner(out, version)
}

func printBanner(out *termenv.Output, version string) {
	// Warm gradient, crust to crumb.
	lines := []struct {
		text  string
		color string
	}{
		{"  ___ _        _       _              _   _    ", "#f59e0b"},
		{" | _ \\ |_  ___| |_ ___| |__  ___  ___| |_| |_  ", "#f97316"},
		{" |  _/ ' \\/ _ \\  _/ _ \\ '_ \\/ _ \\/ _ \\  _| ' \\ ", "#ef4444"},
		{" |_| |_||_\\___/\\__\\___/_.__/\\___/\\___/\\__|_||_|", "#e11d48"},
	}

	fmt.Fprintln(out)
	for _, l := range lines {
		fmt.Fprintln(out, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(out, out.String("  version "+version).Faint())
	fmt.Fprintln(out)
}
