package orchestrator

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strings"

	"github.com/Iron-Ham/tosh/internal/errors"
	"github.com/Iron-Ham/tosh/internal/pipeline"
	"github.com/Iron-Ham/tosh/internal/signals"
	"golang.org/x/sys/unix"
)

// StageEnv carries how a stage is to be launched from Spawn to the stage
// launcher. The stage's argument vector is not part of it: it is the
// launcher's own argv, so it reaches the program byte for byte and under the
// kernel's argument limits rather than the much smaller limit on a single
// environment string.
const StageEnv = "TOSH_STAGE"

// Exit statuses of the stage launcher when it cannot become the stage.
const (
	exitBadRequest = 2
	exitPager      = 1
)

// stageRequest is the JSON payload of StageEnv. Candidates are program names
// taken from the environment and may hold any bytes, so they travel as
// base64 via []byte.
type stageRequest struct {
	Disposition string   `json:"disposition"`
	DetachStdin bool     `json:"detach_stdin,omitempty"`
	Kind        string   `json:"kind"`
	Candidates  [][]byte `json:"candidates,omitempty"`
}

func newStageRequest(st pipeline.Stage, disp signals.Disposition, detachStdin bool) stageRequest {
	req := stageRequest{
		Disposition: disp.String(),
		DetachStdin: detachStdin,
		Kind:        st.Kind().String(),
	}
	for _, c := range st.Candidates() {
		req.Candidates = append(req.Candidates, []byte(c))
	}
	return req
}

func (r stageRequest) encode() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (r stageRequest) candidates() []string {
	names := make([]string, len(r.Candidates))
	for i, c := range r.Candidates {
		names[i] = string(c)
	}
	return names
}

func decodeStageRequest(raw string, argv []string) (stageRequest, error) {
	var req stageRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return req, err
	}
	if _, ok := signals.ParseDisposition(req.Disposition); !ok {
		return req, fmt.Errorf("unknown disposition %q", req.Disposition)
	}
	kind, ok := pipeline.ParseKind(req.Kind)
	if !ok {
		return req, fmt.Errorf("unknown stage kind %q", req.Kind)
	}
	if len(argv) == 0 || argv[0] == "" {
		return req, errors.ErrEmptyStage
	}
	if kind == pipeline.KindPager && len(req.Candidates) == 0 {
		return req, fmt.Errorf("pager stage without candidates")
	}
	return req, nil
}

// LaunchStageIfRequested turns the current process into a pipeline stage if
// it was started by Spawn, and never returns in that case. It must run
// before any other initialization in main, and in TestMain of every package
// whose tests spawn pipelines.
func LaunchStageIfRequested() {
	raw, ok := os.LookupEnv(StageEnv)
	if !ok {
		return
	}
	_ = os.Unsetenv(StageEnv)
	os.Exit(newLauncher().run(raw, os.Args))
}

// launcher applies a stage's disposition and replaces the process image.
// Its collaborators are fields so the failure paths can be exercised
// without exec.
type launcher struct {
	stderr   io.Writer
	environ  func() []string
	apply    func(d signals.Disposition, detachStdin bool) error
	lookPath func(file string) (string, error)
	exec     func(argv0 string, argv []string, envv []string) error
}

func newLauncher() *launcher {
	return &launcher{
		stderr:   os.Stderr,
		environ:  os.Environ,
		apply:    signals.Disposition.Apply,
		lookPath: exec.LookPath,
		exec:     unix.Exec,
	}
}

// run returns only when the stage could not be started; the result is the
// exit status. argv is the stage's argument vector.
func (l *launcher) run(raw string, argv []string) int {
	req, err := decodeStageRequest(raw, argv)
	if err != nil {
		fmt.Fprintf(l.stderr, "tosh: invalid stage request: %v\n", err)
		return exitBadRequest
	}

	disp, _ := signals.ParseDisposition(req.Disposition)
	if err := l.apply(disp, req.DetachStdin); err != nil {
		fmt.Fprintf(l.stderr, "tosh: could not apply %s disposition: %v\n", disp, err)
		return errors.NewExecError(argv[0], err).ExitCode()
	}

	env := withoutVar(l.environ(), StageEnv)
	if kind, _ := pipeline.ParseKind(req.Kind); kind == pipeline.KindPager {
		return l.runPager(argv, req.candidates(), env)
	}
	return l.runExternal(argv, env)
}

func (l *launcher) runExternal(argv, env []string) int {
	err := l.execProgram(argv[0], argv, env)
	fmt.Fprintf(l.stderr, "Could not run program %s : %v\n", argv[0], err)
	return errors.NewExecError(argv[0], classifyExecError(err)).ExitCode()
}

// runPager execs the first candidate that exists. Candidates that are not
// found are skipped; any other failure ends the stage.
func (l *launcher) runPager(argv, candidates, env []string) int {
	for _, name := range candidates {
		pagerArgv := append([]string{name}, argv[1:]...)
		err := l.execProgram(name, pagerArgv, env)
		if errors.Is(classifyExecError(err), errors.ErrExecNotFound) {
			continue
		}
		fmt.Fprintf(l.stderr, "Could not open pager: %v\n", err)
		return exitPager
	}
	fmt.Fprintf(l.stderr, "Could not find a pager to use (tried %s)\n", quoteList(candidates))
	return exitPager
}

// execProgram resolves name in PATH and replaces the process image with it.
// It returns only on failure.
func (l *launcher) execProgram(name string, argv, env []string) error {
	path, err := l.lookPath(name)
	if err != nil {
		return err
	}
	return l.exec(path, argv, env)
}

func classifyExecError(err error) error {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %w", errors.ErrExecNotFound, err)
	}
	return fmt.Errorf("%w: %w", errors.ErrExecPermission, err)
}

func withoutVar(env []string, name string) []string {
	prefix := name + "="
	out := make([]string, 0, len(env))
	for _, kv := range env {
		if !strings.HasPrefix(kv, prefix) {
			out = append(out, kv)
		}
	}
	return out
}

// quoteList renders names as 'a', 'b' and 'c'.
func quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "'" + n + "'"
	}
	switch len(quoted) {
	case 0:
		return ""
	case 1:
		return quoted[0]
	default:
		return strings.Join(quoted[:len(quoted)-1], ", ") + " and " + quoted[len(quoted)-1]
	}
}
