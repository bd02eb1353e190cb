// Package jobs tracks spawned pipelines and collects their children.
//
// A Job is the runtime record of one executed pipeline. The Table maps every
// process id of a job to that job so partial completion can be tracked, and
// the Reaper is the only writer: it harvests terminated children either with
// a blocking wait (foreground jobs) or a non-blocking sweep (background
// jobs), records each outcome and emits a completion report once every
// process of a job has been collected.
package jobs

import (
	"fmt"
	"slices"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// State is the completion state of one stage process.
type State int

const (
	// StateRunning means the process has not been reaped yet.
	StateRunning State = iota
	// StateExited means the process terminated normally with a code.
	StateExited
	// StateSignaled means the process was terminated by a signal.
	StateSignaled
	// StateUnknown means the process was reaped elsewhere and its status
	// could not be collected.
	StateUnknown
)

// String returns a lowercase name for the state.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	case StateSignaled:
		return "signaled"
	case StateUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Outcome is how one process ended.
type Outcome struct {
	State  State
	Code   int
	Signal syscall.Signal
}

// Exited returns the outcome of a process that exited with code.
func Exited(code int) Outcome {
	return Outcome{State: StateExited, Code: code}
}

// Signaled returns the outcome of a process terminated by sig.
func Signaled(sig syscall.Signal) Outcome {
	return Outcome{State: StateSignaled, Signal: sig}
}

// FromWaitStatus converts a raw wait status into an Outcome.
func FromWaitStatus(ws unix.WaitStatus) Outcome {
	switch {
	case ws.Exited():
		return Exited(ws.ExitStatus())
	case ws.Signaled():
		return Signaled(ws.Signal())
	default:
		return Outcome{State: StateUnknown}
	}
}

// Success reports whether the process exited with code 0.
func (o Outcome) Success() bool {
	return o.State == StateExited && o.Code == 0
}

// String renders the outcome the way completion reports print it.
func (o Outcome) String() string {
	switch o.State {
	case StateRunning:
		return "Running"
	case StateExited:
		return fmt.Sprintf("Done. Exit code %d", o.Code)
	case StateSignaled:
		return fmt.Sprintf("terminated by signal number %d (%s)", int(o.Signal), o.Signal.String())
	default:
		return "Done. Exit status unavailable"
	}
}

// Short renders the outcome compactly, e.g. "exited(0)".
func (o Outcome) Short() string {
	switch o.State {
	case StateExited:
		return fmt.Sprintf("exited(%d)", o.Code)
	case StateSignaled:
		return fmt.Sprintf("signaled(%d)", int(o.Signal))
	default:
		return o.State.String()
	}
}

// Job is one executed pipeline: one process id per stage, in stage order.
// Its per-stage state is owned by the Table it is added to.
type Job struct {
	ID         string
	Command    string
	PIDs       []int
	Background bool
	Started    time.Time

	stages []Outcome
	reaped int
}

// NewJob creates a Job with every stage running. started should be taken
// just before the first stage was spawned.
func NewJob(command string, pids []int, background bool, started time.Time) *Job {
	return &Job{
		ID:         uuid.NewString(),
		Command:    command,
		PIDs:       slices.Clone(pids),
		Background: background,
		Started:    started,
		stages:     make([]Outcome, len(pids)),
	}
}

// Leader returns the process id of the first stage, which identifies the job
// in reports.
func (j *Job) Leader() int {
	if len(j.PIDs) == 0 {
		return 0
	}
	return j.PIDs[0]
}

// ShortID returns the first eight characters of the job ID.
func (j *Job) ShortID() string {
	if len(j.ID) < 8 {
		return j.ID
	}
	return j.ID[:8]
}

func (j *Job) stageOf(pid int) int {
	return slices.Index(j.PIDs, pid)
}

// Aggregate returns the status reported for a whole pipeline: the status of
// its last stage.
func Aggregate(stages []Outcome) Outcome {
	if len(stages) == 0 {
		return Outcome{State: StateUnknown}
	}
	return stages[len(stages)-1]
}

// Report describes a job whose every process has been reaped.
type Report struct {
	JobID      string
	Leader     int
	Command    string
	Background bool
	Status     Outcome
	Stages     []Outcome
	Elapsed    time.Duration
}

// Summary is a point-in-time view of a job still in the table.
type Summary struct {
	JobID      string
	Leader     int
	Command    string
	Background bool
	Started    time.Time
	Stages     []Outcome
}
