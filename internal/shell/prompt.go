package shell

import (
	"io"
	"os"

	"github.com/Iron-Ham/tosh/internal/config"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// IsInteractive reports whether f is a terminal. The prompt is only printed
// for interactive input.
func IsInteractive(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

type promptStyle struct {
	dir lipgloss.Style
}

func newPromptStyle(w io.Writer, color string) promptStyle {
	r := lipgloss.NewRenderer(w)
	switch color {
	case config.ColorAlways:
		r.SetColorProfile(termenv.ANSI256)
	case config.ColorNever:
		r.SetColorProfile(termenv.Ascii)
	}
	return promptStyle{dir: r.NewStyle().Foreground(lipgloss.Color("4")).Bold(true)}
}

// render returns "<cwd><suffix>", e.g. "/home/tosh: ".
func (p promptStyle) render(suffix string) string {
	dir, err := os.Getwd()
	if err != nil {
		dir = "?"
	}
	return p.dir.Render(dir) + suffix
}
