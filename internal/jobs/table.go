package jobs

import (
	"slices"
	"sync"
	"time"
)

// Table maps process ids to the jobs they belong to. A job with N stages has
// N entries pointing at the same record. It is safe for concurrent use: the
// SIGCHLD-driven sweep mutates it from its own goroutine.
type Table struct {
	mu    sync.Mutex
	byPID map[int]*Job
	order []*Job
}

// NewTable creates an empty Table.
func NewTable() *Table {
	return &Table{byPID: make(map[int]*Job)}
}

// Add starts tracking job.
func (t *Table) Add(job *Job) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, pid := range job.PIDs {
		t.byPID[pid] = job
	}
	t.order = append(t.order, job)
}

// Record stores the outcome of pid. Once every process of the job has been
// recorded the job is removed and its completion Report returned with
// done=true. A pid the table does not know is ignored.
func (t *Table) Record(pid int, outcome Outcome, at time.Time) (Report, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.byPID[pid]
	if !ok {
		return Report{}, false
	}
	idx := job.stageOf(pid)
	if idx < 0 || job.stages[idx].State != StateRunning {
		return Report{}, false
	}

	job.stages[idx] = outcome
	job.reaped++
	delete(t.byPID, pid)

	if job.reaped < len(job.PIDs) {
		return Report{}, false
	}

	t.order = slices.DeleteFunc(t.order, func(j *Job) bool { return j == job })
	stages := slices.Clone(job.stages)
	return Report{
		JobID:      job.ID,
		Leader:     job.Leader(),
		Command:    job.Command,
		Background: job.Background,
		Status:     Aggregate(stages),
		Stages:     stages,
		Elapsed:    at.Sub(job.Started),
	}, true
}

// Contains reports whether pid belongs to a tracked job that has not been
// reaped yet.
func (t *Table) Contains(pid int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.byPID[pid]
	return ok
}

// PendingBackground returns the unreaped process ids of background jobs in
// spawn order.
func (t *Table) PendingBackground() []int {
	t.mu.Lock()
	defer t.mu.Unlock()

	var pids []int
	for _, job := range t.order {
		if !job.Background {
			continue
		}
		for i, pid := range job.PIDs {
			if job.stages[i].State == StateRunning {
				pids = append(pids, pid)
			}
		}
	}
	return pids
}

// Len returns the number of tracked jobs.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.order)
}

// Snapshot returns a summary of every tracked job in spawn order.
func (t *Table) Snapshot() []Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Summary, 0, len(t.order))
	for _, job := range t.order {
		out = append(out, Summary{
			JobID:      job.ID,
			Leader:     job.Leader(),
			Command:    job.Command,
			Background: job.Background,
			Started:    job.Started,
			Stages:     slices.Clone(job.stages),
		})
	}
	return out
}
