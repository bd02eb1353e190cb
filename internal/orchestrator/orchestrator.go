// Package orchestrator spawns pipelines: one process per stage, consecutive
// stages joined by pipes, every descriptor closed exactly where it is no
// longer needed.
//
// Each stage is started by re-executing the shell's own binary with the
// stage's argument vector as its argv and the stage's launch mode in
// StageEnv. That process, the stage launcher, applies
// the stage's signal disposition and then replaces itself with the stage's
// program. Binaries embedding this package must call LaunchStageIfRequested
// first thing in main.
package orchestrator

import (
	"os"
	"syscall"
	"time"

	"github.com/Iron-Ham/tosh/internal/errors"
	"github.com/Iron-Ham/tosh/internal/jobs"
	"github.com/Iron-Ham/tosh/internal/logging"
	"github.com/Iron-Ham/tosh/internal/pipeline"
	"github.com/Iron-Ham/tosh/internal/signals"
	"golang.org/x/sys/unix"
)

// closedFD in a child's descriptor table tells ForkExec to close that slot.
const closedFD = ^uintptr(0)

// Options configures an Orchestrator.
type Options struct {
	// Executable is the binary started as the stage launcher. Defaults to
	// the running executable.
	Executable string
	// Stdin, Stdout and Stderr are inherited by the first stage, the last
	// stage and every stage respectively. Default to the process's own.
	Stdin  *os.File
	Stdout *os.File
	Stderr *os.File
	// Environ returns the environment passed to stages. Defaults to
	// os.Environ.
	Environ func() []string
	Logger  *logging.Logger
}

type forkExecFunc func(argv0 string, argv []string, attr *syscall.ProcAttr) (int, error)

// Orchestrator starts pipelines. It holds no per-pipeline state and may be
// reused for any number of Spawn calls.
type Orchestrator struct {
	executable string
	stdin      uintptr
	stdout     uintptr
	stderr     uintptr
	environ    func() []string
	logger     *logging.Logger

	forkExec forkExecFunc
}

// New creates an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	exe := opts.Executable
	if exe == "" {
		var err error
		exe, err = os.Executable()
		if err != nil {
			return nil, errors.Wrap(err, "failed to locate stage launcher")
		}
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Environ == nil {
		opts.Environ = os.Environ
	}
	if opts.Logger == nil {
		opts.Logger = logging.NopLogger()
	}

	return &Orchestrator{
		executable: exe,
		stdin:      opts.Stdin.Fd(),
		stdout:     opts.Stdout.Fd(),
		stderr:     opts.Stderr.Fd(),
		environ:    opts.Environ,
		logger:     opts.Logger,
		forkExec:   syscall.ForkExec,
	}, nil
}

// pipeLink joins stage i's stdout to stage i+1's stdin. Both ends are
// close-on-exec, so a child only keeps the end ForkExec duplicates onto its
// standard descriptors.
type pipeLink struct {
	r, w int
}

var noLink = pipeLink{r: -1, w: -1}

func newPipeLink() (pipeLink, error) {
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_CLOEXEC); err != nil {
		return noLink, err
	}
	return pipeLink{r: p[0], w: p[1]}, nil
}

func closeFD(fd int) {
	if fd >= 0 {
		_ = unix.Close(fd)
	}
}

// Spawn starts every stage of spec and returns the running Job. Stages are
// spawned in order, each one before anything waits on any of them, so a
// producer can never block on a consumer that has not been started.
//
// When a pipe or process cannot be created, stages already started are
// killed and reaped, every descriptor is closed, and a SpawnError naming the
// failing stage is returned.
func (o *Orchestrator) Spawn(spec pipeline.Spec, disp signals.Disposition) (*jobs.Job, error) {
	started := time.Now()
	n := spec.Len()
	if n == 0 {
		return nil, errors.ErrEmptyPipeline
	}

	pids := make([]int, 0, n)
	prevRead := -1

	for i := 0; i < n; i++ {
		st := spec.Stage(i)

		link := noLink
		if i < n-1 {
			var err error
			if link, err = newPipeLink(); err != nil {
				closeFD(prevRead)
				o.abort(pids)
				return nil, errors.NewSpawnError("could not create pipe", errors.Join(errors.ErrPipeCreate, err)).
					WithStage(i).WithProgram(st.Name())
			}
		}

		files := [3]uintptr{o.stdin, o.stdout, o.stderr}
		switch {
		case i > 0:
			files[0] = uintptr(prevRead)
		case disp.IsBackground():
			files[0] = closedFD
		}
		if i < n-1 {
			files[1] = uintptr(link.w)
		}

		pid, err := o.start(st, disp, i == 0, files)

		// The child holds its own copies now. The read end of the new link
		// stays open only until the next stage has been spawned.
		closeFD(prevRead)
		closeFD(link.w)
		prevRead = link.r

		if err != nil {
			closeFD(prevRead)
			o.abort(pids)
			return nil, errors.NewSpawnError("could not start stage", errors.Join(errors.ErrSpawn, err)).
				WithStage(i).WithProgram(st.Name())
		}
		pids = append(pids, pid)
		o.logger.WithStage(i).Debug("stage spawned",
			"pid", pid,
			"program", st.Name(),
			"disposition", disp.String(),
		)
	}

	job := jobs.NewJob(spec.String(), pids, disp.IsBackground(), started)
	o.logger.WithJob(job.ID).Info("pipeline spawned", "stages", n, "pid", job.Leader(), "background", job.Background)
	return job, nil
}

func (o *Orchestrator) start(st pipeline.Stage, disp signals.Disposition, first bool, files [3]uintptr) (int, error) {
	req, err := newStageRequest(st, disp, first && disp.IsBackground()).encode()
	if err != nil {
		return 0, err
	}
	env := append(withoutVar(o.environ(), StageEnv), StageEnv+"="+req)

	return o.forkExec(o.executable, st.Argv(), &syscall.ProcAttr{
		Env:   env,
		Files: files[:],
	})
}

// abort kills and reaps stages of a pipeline that could not be completed.
func (o *Orchestrator) abort(pids []int) {
	for _, pid := range pids {
		if err := unix.Kill(pid, unix.SIGKILL); err != nil && err != unix.ESRCH {
			o.logger.Warn("failed to kill partial pipeline stage", "pid", pid, "error", err.Error())
		}
		var ws unix.WaitStatus
		for {
			_, err := unix.Wait4(pid, &ws, 0, nil)
			if err != unix.EINTR {
				break
			}
		}
	}
	if len(pids) > 0 {
		o.logger.Warn("partial pipeline aborted", "killed", len(pids))
	}
}
