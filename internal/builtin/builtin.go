// Package builtin decides which commands the shell handles in-process and
// runs them. Anything it does not claim is spawned as a pipeline.
package builtin

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/Iron-Ham/tosh/internal/errors"
	"github.com/Iron-Ham/tosh/internal/jobs"
)

// Names of the commands the shell runs itself.
const (
	CD   = "cd"
	Exit = "exit"
	Jobs = "jobs"
)

// Predicate decides whether a command name is handled without spawning.
type Predicate interface {
	IsBuiltin(name string) bool
}

// Runner is a Predicate that also runs the commands it accepts. The shell
// depends on this rather than on Dispatcher.
type Runner interface {
	Predicate
	Dispatch(args []string) (handled bool, err error)
}

// Handler runs a built-in. args[0] is the command name.
type Handler func(args []string) error

// JobLister exposes the outstanding jobs to the jobs built-in.
type JobLister interface {
	Snapshot() []jobs.Summary
}

// Env holds what the built-ins act on. Zero fields fall back to the process
// defaults.
type Env struct {
	Out    io.Writer
	Err    io.Writer
	Jobs   JobLister
	Getenv func(string) string
	Chdir  func(dir string) error
	Now    func() time.Time
}

// Dispatcher maps command names to handlers.
type Dispatcher struct {
	env      Env
	handlers map[string]Handler
}

// New creates a Dispatcher with cd, exit and jobs registered.
func New(env Env) *Dispatcher {
	if env.Out == nil {
		env.Out = os.Stdout
	}
	if env.Err == nil {
		env.Err = os.Stderr
	}
	if env.Getenv == nil {
		env.Getenv = os.Getenv
	}
	if env.Chdir == nil {
		env.Chdir = os.Chdir
	}
	if env.Now == nil {
		env.Now = time.Now
	}

	d := &Dispatcher{env: env, handlers: make(map[string]Handler)}
	d.Register(CD, d.cd)
	d.Register(Exit, d.exit)
	d.Register(Jobs, d.jobs)
	return d
}

// Register adds or replaces a built-in.
func (d *Dispatcher) Register(name string, h Handler) {
	d.handlers[name] = h
}

// IsBuiltin implements Predicate.
func (d *Dispatcher) IsBuiltin(name string) bool {
	_, ok := d.handlers[name]
	return ok
}

// Names returns the registered built-ins in sorted order.
func (d *Dispatcher) Names() []string {
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Dispatch runs args as a built-in. handled is false when args[0] is not a
// built-in and must be spawned instead. The exit built-in returns
// ErrExitRequested.
func (d *Dispatcher) Dispatch(args []string) (handled bool, err error) {
	if len(args) == 0 {
		return false, nil
	}
	h, ok := d.handlers[args[0]]
	if !ok {
		return false, nil
	}
	return true, h(args)
}

// cd changes the shell's working directory; with no argument it goes to
// $HOME. Failures are reported and leave the shell where it was.
func (d *Dispatcher) cd(args []string) error {
	dir := d.env.Getenv("HOME")
	if len(args) > 1 {
		dir = args[1]
	}
	if dir == "" {
		fmt.Fprintln(d.env.Err, "Could not change directory: HOME not set")
		return nil
	}

	if err := d.env.Chdir(dir); err != nil {
		var pathErr *fs.PathError
		if errors.As(err, &pathErr) {
			err = pathErr.Err
		}
		fmt.Fprintf(d.env.Err, "Could not change directory: %v\n", err)
	}
	return nil
}

func (d *Dispatcher) exit(args []string) error {
	return errors.ErrExitRequested
}

func (d *Dispatcher) jobs(args []string) error {
	if d.env.Jobs == nil {
		return nil
	}
	summaries := d.env.Jobs.Snapshot()
	if len(summaries) == 0 {
		fmt.Fprintln(d.env.Out, "No jobs")
		return nil
	}

	now := d.env.Now()
	for _, s := range summaries {
		mode := "fg"
		if s.Background {
			mode = "bg"
		}
		states := make([]string, len(s.Stages))
		for i, st := range s.Stages {
			states[i] = st.Short()
		}
		id := s.JobID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Fprintf(d.env.Out, "[%s] %d %s %.1fs (%s) %s\n",
			id, s.Leader, mode, now.Sub(s.Started).Seconds(), strings.Join(states, ", "), s.Command)
	}
	return nil
}
