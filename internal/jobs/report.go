package jobs

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Iron-Ham/tosh/internal/config"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Reporter writes human-readable job reports. Writes are serialized so a
// report from the SIGCHLD sweep never interleaves with the command loop's
// output.
type Reporter struct {
	mu         sync.Mutex
	w          io.Writer
	showTiming bool

	pid     lipgloss.Style
	begin   lipgloss.Style
	done    lipgloss.Style
	failed  lipgloss.Style
	elapsed lipgloss.Style
}

// NewReporter creates a Reporter writing to w. color is one of the
// config.Color* modes; "auto" styles output only when w is a terminal.
func NewReporter(w io.Writer, color string, showTiming bool) *Reporter {
	r := lipgloss.NewRenderer(w)
	switch color {
	case config.ColorAlways:
		r.SetColorProfile(termenv.ANSI256)
	case config.ColorNever:
		r.SetColorProfile(termenv.Ascii)
	}

	return &Reporter{
		w:          w,
		showTiming: showTiming,
		pid:        r.NewStyle().Bold(true),
		begin:      r.NewStyle().Foreground(lipgloss.Color("6")),
		done:       r.NewStyle().Foreground(lipgloss.Color("2")),
		failed:     r.NewStyle().Foreground(lipgloss.Color("1")),
		elapsed:    r.NewStyle().Faint(true),
	}
}

// Begin announces a freshly spawned job by its leading process id.
func (r *Reporter) Begin(pid int) {
	r.println(fmt.Sprintf("%s %s", r.pid.Render(fmt.Sprint(pid)), r.begin.Render("Begin")))
}

// Completed prints the outcome of a finished job. Foreground jobs also get
// their elapsed wall-clock time when timing is enabled.
func (r *Reporter) Completed(rep Report) {
	style := r.done
	if !rep.Status.Success() {
		style = r.failed
	}
	r.println(fmt.Sprintf("%s %s", r.pid.Render(fmt.Sprint(rep.Leader)), style.Render(rep.Status.String())))

	if !rep.Background && r.showTiming {
		r.Elapsed(rep.Elapsed)
	}
}

// Elapsed prints a "Ran for" line.
func (r *Reporter) Elapsed(d time.Duration) {
	r.println(r.elapsed.Render(fmt.Sprintf("Ran for %.6f seconds", d.Seconds())))
}

// Println writes a plain line.
func (r *Reporter) Println(line string) {
	r.println(line)
}

// Printf writes formatted text without a trailing newline.
func (r *Reporter) Printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, format, args...)
}

func (r *Reporter) println(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.w, line)
}
