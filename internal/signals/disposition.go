// Package signals owns the shell's process-wide signal handling and the
// per-child signal disposition applied to every spawned stage.
package signals

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// Disposition describes how a spawned child treats the user-interrupt
// signal and the shell's standard input.
type Disposition int

const (
	// Foreground children take the default SIGINT action so the user can
	// interrupt them directly.
	Foreground Disposition = iota
	// Background children ignore SIGINT and are detached from the shell's
	// standard input.
	Background
)

// String returns the wire name of the disposition.
func (d Disposition) String() string {
	switch d {
	case Foreground:
		return "foreground"
	case Background:
		return "background"
	default:
		return "unknown"
	}
}

// ParseDisposition is the inverse of Disposition.String.
func ParseDisposition(s string) (Disposition, bool) {
	switch s {
	case "foreground":
		return Foreground, true
	case "background":
		return Background, true
	default:
		return 0, false
	}
}

// IsBackground reports whether d shields the child from the shell.
func (d Disposition) IsBackground() bool {
	return d == Background
}

// Apply configures the calling process for d. It is meant to run in a
// freshly spawned child right before it replaces its image, so it touches
// only state that survives exec: a caught signal reverts to SIG_DFL at exec
// while an ignored one stays ignored.
//
// detachStdin closes descriptor 0 for background children whose standard
// input would otherwise be the shell's own.
func (d Disposition) Apply(detachStdin bool) error {
	switch d {
	case Background:
		signal.Ignore(os.Interrupt)
		if detachStdin {
			if err := unix.Close(0); err != nil && err != unix.EBADF {
				return err
			}
		}
	default:
		// Installing a handler also overrides a SIGINT that was ignored when
		// this process started; exec then resets it to the default action.
		signal.Notify(make(chan os.Signal, 1), os.Interrupt)
	}
	return nil
}
