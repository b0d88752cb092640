package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the sagaflow banner and version to w.
func PrintBanner(w io.Writer, version string) {
	p := termenv.ColorProfile()
	lines := []struct {
		text  string
		color string
	}{
		{"  ___  __ _  __ _  __ _ / _| | _____      __", "#818cf8"},
		{" / __|/ _` |/ _` |/ _` | |_| |/ _ \\ \\ /\\ / /", "#a78bfa"},
		{" \\__ \\ (_| | (_| | (_| |  _| | (_) \\ V  V / ", "#c084fc"},
		{" |___/\\__,_|\\__, |\\__,_|_| |_|\\___/ \\_/\\_/  ", "#e879f9"},
		{"            |___/                           ", "#f472b6"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, termenv.String("  "+version).Faint())
	fmt.Fprintln(w)
}
