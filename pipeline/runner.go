package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/blobmesh/blobmesh/logging"
)

// stopTimeout bounds service container shutdown, which must proceed even when
// the job context is already canceled.
const stopTimeout = 30 * time.Second

// StepResult records the outcome of one step.
type StepResult struct {
	// ID is the step's canonical id.
	ID string
	// ExitCode is the command's exit code. Zero for skipped steps.
	ExitCode int
	// Skipped is true for steps short-circuited by an earlier failure.
	Skipped bool
	// Duration is how long the command ran.
	Duration time.Duration
	// Err is non-nil when the step could not be executed at all (as opposed
	// to running and exiting non-zero).
	Err error
}

// JobResult is the outcome of the job under one matrix entry.
type JobResult struct {
	// Toolchain is the matrix entry the job ran under.
	Toolchain string
	// Steps holds one result per declared step, in declaration order.
	Steps []StepResult
	// ExitCode is the job result: the first failing step's exit code, or
	// zero when every step succeeded.
	ExitCode int
}

// Success reports whether every step ran and exited zero.
func (r JobResult) Success() bool { return r.ExitCode == 0 }

// Result aggregates the job across all matrix entries.
type Result struct {
	Name string
	Jobs []JobResult
}

// ExitCode is the first non-zero job exit code, or zero.
func (r Result) ExitCode() int {
	for _, job := range r.Jobs {
		if job.ExitCode != 0 {
			return job.ExitCode
		}
	}
	return 0
}

// ExecFunc runs one step command and returns its exit code. Output goes to
// the supplied writers. Implementations must honor ctx cancellation.
type ExecFunc func(ctx context.Context, step Step, env []string, stdout, stderr io.Writer) (int, error)

// ShellExec is the default ExecFunc: it runs the step command through the
// shell.
func ShellExec(ctx context.Context, step Step, env []string, stdout, stderr io.Writer) (int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", step.Run)
	cmd.Env = env
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

// Options holds dependency + configuration overrides passed to NewRunner().
type Options struct {
	// Exec runs step commands. Defaults to ShellExec.
	Exec ExecFunc
	// Runtime starts service containers. Defaults to docker.
	Runtime ServiceRuntime
	// Logger receives step and service events. Defaults to NoOpLogger.
	Logger logging.Logger
	// Stdout / Stderr receive step output. Default to the process streams.
	Stdout io.Writer
	Stderr io.Writer
}

// WithExec injects a step executor, mainly for tests.
func WithExec(f ExecFunc) func(o *Options) {
	return func(o *Options) { o.Exec = f }
}

// WithRuntime injects a service runtime.
func WithRuntime(rt ServiceRuntime) func(o *Options) {
	return func(o *Options) { o.Runtime = rt }
}

// WithLogger overrides the runner logger.
func WithLogger(l logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

// WithOutput redirects step output.
func WithOutput(stdout, stderr io.Writer) func(o *Options) {
	return func(o *Options) {
		o.Stdout = stdout
		o.Stderr = stderr
	}
}

// Runner executes job definitions: per matrix entry it starts the auxiliary
// service, runs the steps in order, and stops on the first failure.
type Runner struct {
	exec    ExecFunc
	runtime ServiceRuntime
	logger  logging.Logger
	stdout  io.Writer
	stderr  io.Writer
}

// NewRunner constructs a Runner with optional overrides.
func NewRunner(optFns ...func(o *Options)) *Runner {
	opts := Options{
		Exec:   ShellExec,
		Logger: logging.NoOpLogger{},
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Runtime == nil {
		opts.Runtime = NewDockerRuntime(opts.Logger, nil)
	}
	return &Runner{
		exec:    opts.Exec,
		runtime: opts.Runtime,
		logger:  logging.ForComponent(opts.Logger, "pipeline"),
		stdout:  opts.Stdout,
		stderr:  opts.Stderr,
	}
}

// Run validates the definition and executes it once per matrix entry. Matrix
// entries run sequentially; a failing entry does not prevent later entries
// from running, but does fail the overall result.
func (r *Runner) Run(ctx context.Context, def *Definition) (*Result, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	result := &Result{Name: def.Name}
	for _, toolchain := range def.Matrix.Toolchain {
		job, err := r.runJob(ctx, def, toolchain)
		if err != nil {
			return nil, err
		}
		result.Jobs = append(result.Jobs, job)
	}
	return result, nil
}

// runJob executes the step sequence under one toolchain version.
func (r *Runner) runJob(ctx context.Context, def *Definition, toolchain string) (JobResult, error) {
	job := JobResult{Toolchain: toolchain}
	r.logger.Info("job %s starting (toolchain %s)", def.Name, toolchain)

	if def.Service != nil {
		handle, err := r.runtime.Start(ctx, def.Service)
		if err != nil {
			return job, fmt.Errorf("failed to start service: %w", err)
		}
		defer func() {
			// shutdown must work even when the job context is gone
			stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			defer cancel()
			if err := handle.Stop(stopCtx); err != nil {
				r.logger.Warn("failed to stop service: %v", err)
			}
		}()
	}

	env := append(os.Environ(), fmt.Sprintf("TOOLCHAIN_VERSION=%s", toolchain))
	for k, v := range def.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	if def.Service != nil {
		for k, v := range def.Service.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
	}

	failed := false
	for _, step := range def.Steps {
		if failed {
			job.Steps = append(job.Steps, StepResult{ID: step.ID, Skipped: true})
			continue
		}

		start := time.Now()
		code, err := r.exec(ctx, step, env, r.stdout, r.stderr)
		res := StepResult{ID: step.ID, ExitCode: code, Duration: time.Since(start), Err: err}
		job.Steps = append(job.Steps, res)
		logging.LogStep(r.logger, step.ID, code, res.Duration, err)

		if err != nil {
			failed = true
			job.ExitCode = -1
			continue
		}
		if code != 0 {
			failed = true
			job.ExitCode = code
		}
	}

	if job.Success() {
		r.logger.Info("job %s succeeded (toolchain %s)", def.Name, toolchain)
	} else {
		r.logger.Error("job %s failed with exit code %d (toolchain %s)", def.Name, job.ExitCode, toolchain)
	}
	return job, nil
}
