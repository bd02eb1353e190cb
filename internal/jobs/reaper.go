package jobs

import (
	"sync"
	"time"

	"github.com/Iron-Ham/tosh/internal/errors"
	"github.com/Iron-Ham/tosh/internal/logging"
	"golang.org/x/sys/unix"
)

// WaitFunc has the signature of unix.Wait4.
type WaitFunc func(pid int, status *unix.WaitStatus, options int, rusage *unix.Rusage) (int, error)

// Reaper collects terminated children and reports finished jobs.
//
// Foreground jobs are waited on synchronously by the command loop; background
// jobs are only ever collected by Sweep, which polls exactly the background
// process ids the Table tracks. The two paths therefore never race for the
// same process id, even when Sweep runs from the SIGCHLD goroutine.
type Reaper struct {
	table    *Table
	reporter *Reporter
	logger   *logging.Logger

	wait WaitFunc
	now  func() time.Time

	sweepMu sync.Mutex
}

// NewReaper creates a Reaper over table. reporter may be nil to collect
// silently.
func NewReaper(table *Table, reporter *Reporter, logger *logging.Logger) *Reaper {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Reaper{
		table:    table,
		reporter: reporter,
		logger:   logger,
		wait:     unix.Wait4,
		now:      time.Now,
	}
}

// Table returns the job table the reaper maintains.
func (r *Reaper) Table() *Table { return r.table }

// Wait blocks until every process of job has terminated, records each
// outcome, reports the job and removes it from the table. Interrupted waits
// are retried. A process that is no longer our child counts as already
// reaped; any other wait failure is returned as a WaitError after the
// remaining processes have been collected.
func (r *Reaper) Wait(job *Job) (Report, error) {
	var (
		report Report
		done   bool
		errs   []error
	)

	for _, pid := range job.PIDs {
		outcome, err := r.waitBlocking(pid)
		if err != nil {
			r.logger.Warn("wait failed", "job_id", job.ID, "pid", pid, "error", err.Error())
			errs = append(errs, errors.NewWaitError(pid, err))
		}
		if rep, ok := r.table.Record(pid, outcome, r.now()); ok {
			report, done = rep, true
		}
	}

	if done {
		r.logger.Info("job finished",
			"job_id", report.JobID,
			"pid", report.Leader,
			"status", report.Status.Short(),
			"elapsed_ms", report.Elapsed.Milliseconds(),
		)
		if r.reporter != nil {
			r.reporter.Completed(report)
		}
	}
	return report, errors.Join(errs...)
}

func (r *Reaper) waitBlocking(pid int) (Outcome, error) {
	var ws unix.WaitStatus
	for {
		_, err := r.wait(pid, &ws, 0, nil)
		switch err {
		case nil:
			return FromWaitStatus(ws), nil
		case unix.EINTR:
			continue
		case unix.ECHILD:
			r.alreadyReaped(pid, err)
			return Outcome{State: StateUnknown}, nil
		default:
			return Outcome{State: StateUnknown}, err
		}
	}
}

// alreadyReaped records that pid is no longer a child of this process. Its
// status is lost, so the process counts as finished with an unknown outcome.
func (r *Reaper) alreadyReaped(pid int, cause error) {
	err := errors.NewWaitError(pid, errors.Join(errors.ErrNoSuchChild, cause))
	r.logger.Debug("process already reaped", "pid", pid, "error", err.Error())
}

// Sweep collects every background process that has terminated without
// blocking, and reports each background job whose processes are now all
// reaped. Sweeping when nothing has terminated changes nothing and reports
// nothing.
func (r *Reaper) Sweep() []Report {
	r.sweepMu.Lock()
	defer r.sweepMu.Unlock()

	var reports []Report
	for _, pid := range r.table.PendingBackground() {
		outcome, exited, err := r.poll(pid)
		if err != nil {
			r.logger.Warn("sweep wait failed", "pid", pid, "error", err.Error())
			continue
		}
		if !exited {
			continue
		}

		rep, done := r.table.Record(pid, outcome, r.now())
		r.logger.Debug("background process reaped", "pid", pid, "status", outcome.Short())
		if !done {
			continue
		}
		r.logger.Info("background job finished", "job_id", rep.JobID, "pid", rep.Leader, "status", rep.Status.Short())
		if r.reporter != nil {
			r.reporter.Completed(rep)
		}
		reports = append(reports, rep)
	}
	return reports
}

func (r *Reaper) poll(pid int) (Outcome, bool, error) {
	var ws unix.WaitStatus
	for {
		wpid, err := r.wait(pid, &ws, unix.WNOHANG, nil)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.ECHILD:
			r.alreadyReaped(pid, err)
			return Outcome{State: StateUnknown}, true, nil
		case err != nil:
			return Outcome{}, false, err
		case wpid == 0:
			return Outcome{}, false, nil
		default:
			return FromWaitStatus(ws), true, nil
		}
	}
}

// Shutdown terminates every background job: SIGTERM first, SIGKILL for any
// process still alive after grace, then a blocking reap of the rest. Each
// job is reported as it finishes.
func (r *Reaper) Shutdown(grace time.Duration) []Report {
	pending := r.table.PendingBackground()
	if len(pending) == 0 {
		return nil
	}

	r.logger.Info("terminating background jobs", "processes", len(pending), "grace_ms", grace.Milliseconds())
	for _, pid := range pending {
		if err := unix.Kill(pid, unix.SIGTERM); err != nil && err != unix.ESRCH {
			r.logger.Warn("failed to signal process", "pid", pid, "error", err.Error())
		}
	}

	reports := r.Sweep()
	deadline := r.now().Add(grace)
	for len(r.table.PendingBackground()) > 0 && r.now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
		reports = append(reports, r.Sweep()...)
	}

	r.sweepMu.Lock()
	defer r.sweepMu.Unlock()
	for _, pid := range r.table.PendingBackground() {
		if err := unix.Kill(pid, unix.SIGKILL); err != nil && err != unix.ESRCH {
			r.logger.Warn("failed to kill process", "pid", pid, "error", err.Error())
		}
		outcome, err := r.waitBlocking(pid)
		if err != nil {
			r.logger.Warn("wait failed", "pid", pid, "error", err.Error())
		}
		if rep, done := r.table.Record(pid, outcome, r.now()); done {
			if r.reporter != nil {
				r.reporter.Completed(rep)
			}
			reports = append(reports, rep)
		}
	}
	return reports
}
