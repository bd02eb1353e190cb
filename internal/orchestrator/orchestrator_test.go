package orchestrator

import (
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/Iron-Ham/tosh/internal/errors"
	"github.com/Iron-Ham/tosh/internal/jobs"
	"github.com/Iron-Ham/tosh/internal/logging"
	"github.com/Iron-Ham/tosh/internal/pipeline"
	"github.com/Iron-Ham/tosh/internal/signals"
	"github.com/Iron-Ham/tosh/internal/testutil"
	"golang.org/x/sys/unix"
	"pgregory.net/rapid"
)

const sigintBit = 1 << (syscall.SIGINT - 1)

type harness struct {
	orch   *Orchestrator
	reaper *jobs.Reaper
	read   func(which string) string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	testutil.SkipIfNoProc(t)

	stdout := testutil.TempOutput(t, "stdout")
	stderr := testutil.TempOutput(t, "stderr")
	orch, err := New(Options{
		Stdin:  testutil.DevNull(t),
		Stdout: stdout,
		Stderr: stderr,
	})
	if err != nil {
		t.Fatalf("New() = %v", err)
	}

	h := &harness{
		orch:   orch,
		reaper: jobs.NewReaper(jobs.NewTable(), nil, nil),
	}
	h.read = func(which string) string {
		if which == "stderr" {
			return testutil.ReadOutput(t, stderr)
		}
		return testutil.ReadOutput(t, stdout)
	}
	return h
}

type fataler interface {
	Helper()
	Fatalf(format string, args ...any)
}

func mustSpec(t fataler, argvs ...[]string) pipeline.Spec {
	t.Helper()
	stages := make([]pipeline.Stage, len(argvs))
	for i, argv := range argvs {
		st, err := pipeline.External(argv...)
		if err != nil {
			t.Fatalf("External(%v) = %v", argv, err)
		}
		stages[i] = st
	}
	spec, err := pipeline.New(stages...)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	return spec
}

// run spawns spec in the foreground and waits for it, failing the test if
// that takes longer than timeout.
func (h *harness) run(t *testing.T, spec pipeline.Spec, timeout time.Duration) jobs.Report {
	t.Helper()

	job, err := h.orch.Spawn(spec, signals.Foreground)
	if err != nil {
		t.Fatalf("Spawn() = %v", err)
	}
	h.reaper.Table().Add(job)

	type result struct {
		rep jobs.Report
		err error
	}
	done := make(chan result, 1)
	go func() {
		rep, err := h.reaper.Wait(job)
		done <- result{rep, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			t.Fatalf("Wait() = %v", res.err)
		}
		return res.rep
	case <-time.After(timeout):
		for _, pid := range job.PIDs {
			_ = unix.Kill(pid, unix.SIGKILL)
		}
		t.Fatalf("pipeline %q did not finish within %s", spec, timeout)
		return jobs.Report{}
	}
}

func TestSpawn_SingleStageExitCode(t *testing.T) {
	testutil.SkipIfNoProgram(t, "sh")
	h := newHarness(t)

	rep := h.run(t, mustSpec(t, []string{"sh", "-c", "exit 7"}), 10*time.Second)

	if rep.Status != jobs.Exited(7) {
		t.Errorf("Status = %v, want exit code 7", rep.Status)
	}
	if h.reaper.Table().Len() != 0 {
		t.Error("job still tracked after its foreground wait")
	}
}

func TestSpawn_ConnectsStages(t *testing.T) {
	testutil.SkipIfNoProgram(t, "printf", "sort", "head")
	h := newHarness(t)

	rep := h.run(t, mustSpec(t,
		[]string{"printf", "c\\nb\\na\\n"},
		[]string{"sort"},
		[]string{"head", "-n", "2"},
	), 10*time.Second)

	if !rep.Status.Success() {
		t.Fatalf("Status = %v", rep.Status)
	}
	if got := h.read("stdout"); got != "a\nb\n" {
		t.Errorf("stdout = %q, want %q", got, "a\nb\n")
	}
}

func TestSpawn_ArgvBytesPreserved(t *testing.T) {
	testutil.SkipIfNoProgram(t, "printf", "od")
	h := newHarness(t)

	rep := h.run(t, mustSpec(t,
		[]string{"printf", "%s", "caf\xe9"},
		[]string{"od", "-An", "-tx1"},
	), 10*time.Second)

	if !rep.Status.Success() {
		t.Fatalf("Status = %v", rep.Status)
	}
	if got := strings.Fields(h.read("stdout")); strings.Join(got, " ") != "63 61 66 e9" {
		t.Errorf("bytes received = %v, want 63 61 66 e9", got)
	}
}

func TestSpawn_LargeArgv(t *testing.T) {
	testutil.SkipIfNoProgram(t, "printf")
	h := newHarness(t)

	arg := strings.Repeat("a", 60*1024)
	rep := h.run(t, mustSpec(t, []string{"printf", "%s\\n", arg, arg, arg}), 10*time.Second)

	if !rep.Status.Success() {
		t.Fatalf("Status = %v, stderr = %q", rep.Status, h.read("stderr"))
	}
	if got := h.read("stdout"); got != strings.Repeat(arg+"\n", 3) {
		t.Errorf("stdout has %d bytes, want %d", len(got), 3*(len(arg)+1))
	}
}

func TestSpawn_LogsEachStage(t *testing.T) {
	testutil.SkipIfNoProgram(t, "true")
	h := newHarness(t)
	dir := t.TempDir()
	logger, err := logging.NewLogger(dir, logging.LevelDebug)
	if err != nil {
		t.Fatalf("NewLogger() = %v", err)
	}
	h.orch.logger = logger

	h.run(t, mustSpec(t, []string{"true"}, []string{"true"}), 10*time.Second)
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() = %v", err)
	}

	entries, err := logging.ReadLog(dir)
	if err != nil {
		t.Fatalf("ReadLog() = %v", err)
	}
	spawned := logging.Filter{Contains: "stage spawned"}.Apply(entries)
	if len(spawned) != 2 {
		t.Fatalf("got %d stage records, want 2", len(spawned))
	}
	for i, e := range spawned {
		if e.Attrs["stage"] != float64(i) || e.PID == 0 {
			t.Errorf("record %d = %+v, want stage %d with its pid", i, e, i)
		}
	}
}

// For every N, a pipeline of N stages yields one process per stage.
func TestSpawn_OneProcessPerStage(t *testing.T) {
	testutil.SkipIfNoProgram(t, "true")
	h := newHarness(t)

	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, 6).Draw(rt, "stages")
		argvs := make([][]string, n)
		for i := range argvs {
			argvs[i] = []string{"true"}
		}

		job, err := h.orch.Spawn(mustSpec(rt, argvs...), signals.Foreground)
		if err != nil {
			rt.Fatalf("Spawn() = %v", err)
		}
		h.reaper.Table().Add(job)
		if _, err := h.reaper.Wait(job); err != nil {
			rt.Fatalf("Wait() = %v", err)
		}

		if len(job.PIDs) != n {
			rt.Fatalf("got %d pids for %d stages", len(job.PIDs), n)
		}
		seen := map[int]bool{}
		for _, pid := range job.PIDs {
			if pid <= 0 || seen[pid] {
				rt.Fatalf("invalid or duplicate pid in %v", job.PIDs)
			}
			seen[pid] = true
		}
	})
}

func TestSpawn_NoDescriptorLeak(t *testing.T) {
	testutil.SkipIfNoProgram(t, "sleep")
	h := newHarness(t)

	for n := 1; n <= 5; n++ {
		argvs := make([][]string, n)
		for i := range argvs {
			argvs[i] = []string{"sleep", "0.2"}
		}
		spec := mustSpec(t, argvs...)

		before := testutil.OpenFDs(t)
		job, err := h.orch.Spawn(spec, signals.Foreground)
		after := testutil.OpenFDs(t)
		if err != nil {
			t.Fatalf("Spawn() = %v", err)
		}
		h.reaper.Table().Add(job)

		if after != before {
			t.Errorf("%d stages: parent holds %d descriptors after spawn, %d before", n, after, before)
		}
		if _, err := h.reaper.Wait(job); err != nil {
			t.Fatalf("Wait() = %v", err)
		}
	}
}

func TestSpawn_LargeOutputDoesNotDeadlock(t *testing.T) {
	testutil.SkipIfNoProgram(t, "sh", "head", "sort", "wc", "yes")
	h := newHarness(t)

	const size = 1 << 20
	rep := h.run(t, mustSpec(t,
		[]string{"sh", "-c", "yes | head -c 1048576"},
		[]string{"sh", "-c", "sleep 0.3; exec sort"},
		[]string{"wc", "-c"},
	), 30*time.Second)

	if !rep.Status.Success() {
		t.Fatalf("Status = %v", rep.Status)
	}
	if got := strings.TrimSpace(h.read("stdout")); got != "1048576" {
		t.Errorf("bytes through the pipeline = %q, want %d", got, size)
	}
}

func TestSpawn_ExecFailure(t *testing.T) {
	h := newHarness(t)

	rep := h.run(t, mustSpec(t, []string{"tosh-no-such-program", "arg"}), 10*time.Second)

	if rep.Status != jobs.Exited(127) {
		t.Errorf("Status = %v, want exit code 127", rep.Status)
	}
	if got := h.read("stderr"); !strings.HasPrefix(got, "Could not run program tosh-no-such-program : ") {
		t.Errorf("stderr = %q", got)
	}
}

func TestSpawn_ExecFailureMidPipeline(t *testing.T) {
	testutil.SkipIfNoProgram(t, "printf", "cat")
	h := newHarness(t)

	rep := h.run(t, mustSpec(t,
		[]string{"printf", "x"},
		[]string{"tosh-no-such-program"},
		[]string{"cat"},
	), 10*time.Second)

	if rep.Status != jobs.Exited(0) {
		t.Errorf("Status = %v, want the last stage's exit code 0", rep.Status)
	}
	if rep.Stages[1] != jobs.Exited(127) {
		t.Errorf("failing stage = %v, want exit code 127", rep.Stages[1])
	}
}

func TestSpawn_PagerFallsBack(t *testing.T) {
	testutil.SkipIfNoProgram(t, "printf", "cat")
	h := newHarness(t)

	src, _ := pipeline.External("printf", "paged\\n")
	pager, err := pipeline.Pager([]string{"tosh-missing-pager", "cat"}, "pager")
	if err != nil {
		t.Fatalf("Pager() = %v", err)
	}
	spec, _ := pipeline.New(src, pager)

	rep := h.run(t, spec, 10*time.Second)

	if !rep.Status.Success() {
		t.Fatalf("Status = %v, stderr = %q", rep.Status, h.read("stderr"))
	}
	if got := h.read("stdout"); got != "paged\n" {
		t.Errorf("stdout = %q", got)
	}
}

func TestSpawn_BackgroundDisposition(t *testing.T) {
	testutil.SkipIfNoProgram(t, "sleep")
	h := newHarness(t)

	job, err := h.orch.Spawn(mustSpec(t, []string{"sleep", "30"}), signals.Background)
	if err != nil {
		t.Fatalf("Spawn() = %v", err)
	}
	pid := job.Leader()
	t.Cleanup(func() { testutil.KillAndReap(pid) })
	testutil.WaitForExec(t, pid)

	if !job.Background {
		t.Error("job not marked background")
	}
	if testutil.SignalMask(t, pid, "SigIgn")&sigintBit == 0 {
		t.Error("background child does not ignore SIGINT")
	}
	if testutil.HasFD(pid, 0) {
		t.Error("background child still has standard input open")
	}
}

func TestSpawn_BackgroundPipelineKeepsPipes(t *testing.T) {
	testutil.SkipIfNoProgram(t, "sleep", "cat")
	h := newHarness(t)

	job, err := h.orch.Spawn(mustSpec(t, []string{"sleep", "30"}, []string{"cat"}), signals.Background)
	if err != nil {
		t.Fatalf("Spawn() = %v", err)
	}
	for _, pid := range job.PIDs {
		t.Cleanup(func() { testutil.KillAndReap(pid) })
	}
	consumer := job.PIDs[1]
	testutil.WaitForExec(t, consumer)

	if testutil.SignalMask(t, consumer, "SigIgn")&sigintBit == 0 {
		t.Error("background consumer does not ignore SIGINT")
	}
	if !testutil.HasFD(consumer, 0) {
		t.Error("background consumer lost its pipe input")
	}
}

func TestSpawn_ForegroundDisposition(t *testing.T) {
	testutil.SkipIfNoProgram(t, "sleep")
	h := newHarness(t)

	job, err := h.orch.Spawn(mustSpec(t, []string{"sleep", "30"}), signals.Foreground)
	if err != nil {
		t.Fatalf("Spawn() = %v", err)
	}
	pid := job.Leader()
	t.Cleanup(func() { testutil.KillAndReap(pid) })
	testutil.WaitForExec(t, pid)

	if testutil.SignalMask(t, pid, "SigIgn")&sigintBit != 0 {
		t.Error("foreground child ignores SIGINT")
	}
	if testutil.SignalMask(t, pid, "SigCgt")&sigintBit != 0 {
		t.Error("foreground child catches SIGINT")
	}
	if !testutil.HasFD(pid, 0) {
		t.Error("foreground child has no standard input")
	}

	// The default action applies: SIGINT terminates it.
	if err := unix.Kill(pid, unix.SIGINT); err != nil {
		t.Fatalf("kill: %v", err)
	}
	h.reaper.Table().Add(job)
	rep, err := h.reaper.Wait(job)
	if err != nil {
		t.Fatalf("Wait() = %v", err)
	}
	if rep.Status != jobs.Signaled(syscall.SIGINT) {
		t.Errorf("Status = %v, want SIGINT", rep.Status)
	}
}

func TestSpawn_LauncherMissing(t *testing.T) {
	h := newHarness(t)
	h.orch.executable = "/nonexistent/tosh"

	before := testutil.OpenFDs(t)
	job, err := h.orch.Spawn(mustSpec(t, []string{"true"}, []string{"true"}), signals.Foreground)
	after := testutil.OpenFDs(t)

	if job != nil {
		t.Fatal("Spawn() returned a job for a failed pipeline")
	}
	var spawnErr *errors.SpawnError
	if !errors.As(err, &spawnErr) || spawnErr.Stage != 0 || !errors.Is(err, errors.ErrSpawn) {
		t.Fatalf("Spawn() error = %v, want SpawnError at stage 0", err)
	}
	if after != before {
		t.Errorf("descriptors after failed spawn = %d, before = %d", after, before)
	}
}

func TestSpawn_AbortKillsStartedStages(t *testing.T) {
	testutil.SkipIfNoProgram(t, "sleep")
	h := newHarness(t)

	var started []int
	calls := 0
	forkExec := h.orch.forkExec
	h.orch.forkExec = func(argv0 string, argv []string, attr *syscall.ProcAttr) (int, error) {
		calls++
		if calls == 3 {
			return 0, unix.EAGAIN
		}
		pid, err := forkExec(argv0, argv, attr)
		if err == nil {
			started = append(started, pid)
		}
		return pid, err
	}

	before := testutil.OpenFDs(t)
	_, err := h.orch.Spawn(mustSpec(t,
		[]string{"sleep", "30"},
		[]string{"sleep", "30"},
		[]string{"sleep", "30"},
	), signals.Foreground)
	after := testutil.OpenFDs(t)

	var spawnErr *errors.SpawnError
	if !errors.As(err, &spawnErr) || spawnErr.Stage != 2 || spawnErr.Program != "sleep" {
		t.Fatalf("Spawn() error = %v, want SpawnError at stage 2", err)
	}
	if after != before {
		t.Errorf("descriptors after aborted spawn = %d, before = %d", after, before)
	}
	if len(started) != 2 {
		t.Fatalf("started %d stages, want 2", len(started))
	}
	for _, pid := range started {
		var ws unix.WaitStatus
		if _, err := unix.Wait4(pid, &ws, unix.WNOHANG, nil); err != unix.ECHILD {
			t.Errorf("stage %d was not reaped by the abort (wait4 err = %v)", pid, err)
		}
	}
}
