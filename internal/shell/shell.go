// Package shell runs tosh's command loop: read a line, hand built-ins to the
// dispatcher, spawn everything else as a pipeline, wait for foreground jobs
// and sweep finished background jobs.
package shell

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/Iron-Ham/tosh/internal/builtin"
	"github.com/Iron-Ham/tosh/internal/config"
	"github.com/Iron-Ham/tosh/internal/errors"
	"github.com/Iron-Ham/tosh/internal/jobs"
	"github.com/Iron-Ham/tosh/internal/logging"
	"github.com/Iron-Ham/tosh/internal/orchestrator"
	"github.com/Iron-Ham/tosh/internal/pipeline"
	"github.com/Iron-Ham/tosh/internal/signals"
	"github.com/google/uuid"
)

// Options configures a Shell.
type Options struct {
	Config *config.Config
	Logger *logging.Logger

	// In is read line by line. Defaults to os.Stdin.
	In io.Reader
	// Stdin is inherited by the first stage of foreground jobs. Defaults to
	// os.Stdin.
	Stdin *os.File
	// Out receives the prompt, job reports and the last stage's output.
	// Defaults to os.Stdout.
	Out *os.File
	// Err receives error messages and every stage's stderr. Defaults to
	// os.Stderr.
	Err *os.File

	// Interactive enables the prompt.
	Interactive bool
	// Getenv is consulted for $HOME and $PAGER. Defaults to os.Getenv.
	Getenv func(string) string
	// Executable overrides the stage launcher binary.
	Executable string
}

// Shell is one interactive session.
type Shell struct {
	id          string
	logger      *logging.Logger
	in          io.Reader
	out         *os.File
	errOut      *os.File
	interactive bool
	notify      bool

	orch     *orchestrator.Orchestrator
	table    *jobs.Table
	reaper   *jobs.Reaper
	reporter *jobs.Reporter
	builtins builtin.Runner
	signals  *signals.Controller
	prompt   promptStyle

	mu      sync.Mutex
	builder *pipeline.Builder
	cfg     *config.Config

	atPrompt     atomic.Bool
	terminate    chan struct{}
	shutdownOnce sync.Once
}

// New creates a Shell. Signal handlers are installed by Run.
func New(opts Options) (*Shell, error) {
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NopLogger()
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Err == nil {
		opts.Err = os.Stderr
	}
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}

	id := uuid.NewString()
	logger := opts.Logger.WithSession(id)

	orch, err := orchestrator.New(orchestrator.Options{
		Executable: opts.Executable,
		Stdin:      opts.Stdin,
		Stdout:     opts.Out,
		Stderr:     opts.Err,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	cfg := opts.Config
	table := jobs.NewTable()
	reporter := jobs.NewReporter(opts.Out, cfg.Shell.Color, cfg.Shell.ShowTiming)

	s := &Shell{
		id:          id,
		logger:      logger,
		in:          opts.In,
		out:         opts.Out,
		errOut:      opts.Err,
		interactive: opts.Interactive,
		notify:      cfg.Reaper.Mode == config.ReapModeNotify,
		orch:        orch,
		table:       table,
		reaper:      jobs.NewReaper(table, reporter, logger),
		reporter:    reporter,
		prompt:      newPromptStyle(opts.Out, cfg.Shell.Color),
		builder: &pipeline.Builder{
			Getenv:         opts.Getenv,
			PagerFallbacks: slices.Clone(cfg.Pager.Fallbacks),
		},
		cfg:       cfg,
		terminate: make(chan struct{}, 1),
	}

	s.builtins = builtin.New(builtin.Env{
		Out:    opts.Out,
		Err:    opts.Err,
		Jobs:   table,
		Getenv: opts.Getenv,
	})

	handlers := signals.Handlers{
		Interrupt: s.onInterrupt,
		Terminate: s.onTerminate,
	}
	if s.notify {
		handlers.ChildExited = func() { s.reaper.Sweep() }
	}
	s.signals = signals.NewController(handlers, logger)

	return s, nil
}

// Jobs returns the shell's job table.
func (s *Shell) Jobs() *jobs.Table { return s.table }

// Reload applies a new configuration to the running shell. Pager fallbacks,
// the shutdown grace period and the log level take effect immediately.
func (s *Shell) Reload(cfg *config.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.builder = &pipeline.Builder{
		Getenv:         s.builder.Getenv,
		PagerFallbacks: slices.Clone(cfg.Pager.Fallbacks),
	}
	s.cfg = cfg
	s.logger.SetLevel(cfg.Logging.Level)
	s.logger.Info("configuration reloaded")
}

func (s *Shell) config() (*config.Config, *pipeline.Builder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, s.builder
}

// Run reads and executes lines until exit, end of input, SIGTERM or ctx is
// done, then terminates background jobs. It returns nil on every orderly
// exit.
func (s *Shell) Run(ctx context.Context) error {
	s.signals.Start()
	defer s.signals.Stop()
	defer s.Shutdown()

	s.logger.Info("shell started", "interactive", s.interactive, "reaper_mode", s.reaperMode())
	lines := newLineReader(s.in)

	for {
		if !s.notify {
			s.reaper.Sweep()
		}
		s.showPrompt()

		select {
		case <-ctx.Done():
			return nil
		case <-s.terminate:
			s.logger.Info("terminate requested")
			return nil
		case res := <-lines.next():
			lines.received()
			s.atPrompt.Store(false)

			if res.err == io.EOF {
				if s.interactive {
					s.reporter.Println("")
				}
				return nil
			}
			if res.err != nil {
				return errors.Wrap(res.err, "failed to read input")
			}
			if err := s.Execute(res.line); errors.Is(err, errors.ErrExitRequested) {
				return nil
			}
		}
	}
}

func (s *Shell) reaperMode() string {
	if s.notify {
		return config.ReapModeNotify
	}
	return config.ReapModePoll
}

// Execute runs one command line. It returns ErrExitRequested when the line
// asked the shell to exit; every other failure is reported and swallowed so
// the loop keeps going.
func (s *Shell) Execute(line string) error {
	args, background := Tokenize(line)
	if len(args) == 0 {
		return nil
	}

	if s.builtins.IsBuiltin(args[0]) {
		_, err := s.builtins.Dispatch(args)
		return err
	}

	_, builder := s.config()
	spec, err := builder.Build(args)
	if err != nil {
		fmt.Fprintf(s.errOut, "tosh: %v\n", err)
		return nil
	}

	disp := signals.Foreground
	if background {
		disp = signals.Background
	}

	job, err := s.orch.Spawn(spec, disp)
	if err != nil {
		s.logFailure("spawn failed", err, "command", spec.String())
		fmt.Fprintf(s.errOut, "tosh: %v\n", err)
		return nil
	}
	s.table.Add(job)
	s.reporter.Begin(job.Leader())

	if background {
		if s.notify {
			// A child that finished before the job was tracked raised its
			// SIGCHLD too early to be collected.
			s.reaper.Sweep()
		}
		return nil
	}

	if _, err := s.reaper.Wait(job); err != nil {
		s.logFailure("foreground wait failed", err, "job_id", job.ID)
		fmt.Fprintf(s.errOut, "tosh: %v\n", err)
	}
	return nil
}

// logFailure logs err at the level its severity calls for.
func (s *Shell) logFailure(msg string, err error, args ...any) {
	args = append(args, "error", err.Error())
	switch errors.GetSeverity(err) {
	case errors.SeverityDebug:
		s.logger.Debug(msg, args...)
	case errors.SeverityInfo:
		s.logger.Info(msg, args...)
	case errors.SeverityWarning:
		s.logger.Warn(msg, args...)
	default:
		s.logger.Error(msg, args...)
	}
}

// Shutdown terminates and reaps every background job. It runs once; later
// calls do nothing.
func (s *Shell) Shutdown() {
	s.shutdownOnce.Do(func() {
		cfg, _ := s.config()
		s.reporter.Println("Killing children...")
		s.signals.IgnoreChildExit()
		reports := s.reaper.Shutdown(cfg.Reaper.ShutdownGrace)
		s.logger.Info("shell exiting", "terminated_jobs", len(reports))
		s.reporter.Println("Children killed, Bye!")
	})
}

func (s *Shell) showPrompt() {
	if !s.interactive {
		return
	}
	cfg, _ := s.config()
	s.reporter.Printf("%s", s.prompt.render(cfg.Shell.PromptSuffix))
	s.atPrompt.Store(true)
}

// onInterrupt keeps the shell alive on SIGINT. A foreground job receives the
// signal itself; at the prompt the line is abandoned visually.
func (s *Shell) onInterrupt() {
	s.reporter.Println("")
	if s.atPrompt.Load() {
		cfg, _ := s.config()
		s.reporter.Printf("%s", s.prompt.render(cfg.Shell.PromptSuffix))
	}
}

func (s *Shell) onTerminate() {
	select {
	case s.terminate <- struct{}{}:
	default:
	}
}
