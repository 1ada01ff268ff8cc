package gitcmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/Iniationware/sourcegit-sub001/internal/logging"
)

// Config configures a Pool.
type Config struct {
	// Executable is the command to run. Defaults to "git".
	Executable string

	// BaseArgs is the fixed argument prefix prepended to every invocation.
	// Defaults to the non-interactive git prefix.
	BaseArgs []string

	// MaxConcurrent bounds simultaneous executions.
	// Defaults to clamp(4, 2*NumCPU, 16).
	MaxConcurrent int

	// DefaultTimeout is the wall-clock deadline applied when Execute is
	// called with a zero timeout. Defaults to 30 seconds.
	DefaultTimeout time.Duration

	// CredentialHelper, when non-empty, is injected as
	// -c credential.helper=<value> on every invocation.
	CredentialHelper string

	// AskpassPath, when non-empty, is exported as GIT_ASKPASS and
	// SSH_ASKPASS so authentication prompts call back into the host.
	AskpassPath string

	// Logger receives execution diagnostics. Defaults to a no-op logger.
	Logger logging.Logger
}

// DefaultConfig returns a Config with the standard git execution contract.
func DefaultConfig() Config {
	return Config{
		Executable:     "git",
		BaseArgs:       []string{"--no-pager", "-c", "core.quotepath=off"},
		MaxConcurrent:  defaultPoolSize(),
		DefaultTimeout: 30 * time.Second,
		Logger:         logging.Nop(),
	}
}

// Option configures a Pool.
type Option func(*Config)

// WithExecutable overrides the executable and its fixed argument prefix.
func WithExecutable(path string, baseArgs ...string) Option {
	return func(c *Config) {
		c.Executable = path
		c.BaseArgs = baseArgs
	}
}

// WithMaxConcurrent overrides the admission bound.
func WithMaxConcurrent(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxConcurrent = n
		}
	}
}

// WithDefaultTimeout overrides the default execution deadline.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.DefaultTimeout = d
		}
	}
}

// WithCredentialHelper sets the injected credential helper.
func WithCredentialHelper(helper string) Option {
	return func(c *Config) { c.CredentialHelper = helper }
}

// WithAskpass sets the askpass hook path.
func WithAskpass(path string) Option {
	return func(c *Config) { c.AskpassPath = path }
}

// WithLogger sets the pool logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

// Result is the structured outcome of one execution.
//
// Execution faults are carried here, never as panics. Err records why an
// execution produced no usable output (admission cancellation, spawn
// failure, timeout, non-zero exit); Success is the flag callers should
// check before consuming Stdout.
type Result struct {
	// Success is true when the process ran and exited zero.
	Success bool

	// Stdout is the captured standard output.
	Stdout string

	// Stderr is the captured standard error.
	Stderr string

	// Err classifies the failure, nil on success.
	Err error
}

// Stats reports pool occupancy.
type Stats struct {
	// InFlight is the number of executions currently running or spawning.
	InFlight int

	// Waiting is the number of callers blocked on admission.
	Waiting int

	// Capacity is the configured admission bound.
	Capacity int

	// Total is the number of executions admitted since creation.
	Total int64
}

// Pool executes external commands under a bounded admission gate.
type Pool struct {
	cfg Config

	// sem holds one token per admitted execution.
	sem chan struct{}

	closed   atomic.Bool
	inFlight atomic.Int32
	waiting  atomic.Int32
	total    atomic.Int64

	// wg tracks in-flight executions for drain on Close.
	wg sync.WaitGroup
}

// NewPool creates a pool with the given options applied over DefaultConfig.
func NewPool(opts ...Option) *Pool {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}

	return &Pool{
		cfg: cfg,
		sem: make(chan struct{}, cfg.MaxConcurrent),
	}
}

// Execute runs a single command in workingDir and returns its structured
// result. It blocks until an admission token is available, honoring ctx
// cancellation while waiting. A timeout of zero applies the pool default.
func (p *Pool) Execute(ctx context.Context, workingDir string, args []string, timeout time.Duration) Result {
	if p.closed.Load() {
		return Result{Err: ErrPoolClosed}
	}
	if len(args) == 0 {
		return Result{Err: ErrEmptyCommand}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	// Admission gate. Callers suspend here, not inside the OS.
	p.waiting.Add(1)
	select {
	case p.sem <- struct{}{}:
		p.waiting.Add(-1)
	case <-ctx.Done():
		p.waiting.Add(-1)
		return Result{Err: fmt.Errorf("admission wait: %w", ctx.Err())}
	}

	p.wg.Add(1)
	p.inFlight.Add(1)
	p.total.Add(1)
	defer func() {
		p.inFlight.Add(-1)
		p.wg.Done()
		<-p.sem
	}()

	if p.closed.Load() {
		return Result{Err: ErrPoolClosed}
	}

	if timeout <= 0 {
		timeout = p.cfg.DefaultTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return p.run(execCtx, workingDir, args)
}

// run spawns the process and converts every outcome into a Result.
func (p *Pool) run(ctx context.Context, workingDir string, args []string) Result {
	id := uuid.NewString()
	full := buildArgs(p.cfg, args)

	cmd := exec.CommandContext(ctx, p.cfg.Executable, full...)
	cmd.Dir = workingDir
	cmd.Env = buildEnv(p.cfg)

	// Own process group so deadline kills reach grandchildren too
	// (credential helpers, hooks).
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	p.cfg.Logger.Debug("exec start", "id", id, "dir", workingDir, "args", args)
	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	switch {
	case err == nil:
		res.Success = true

	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.Err = fmt.Errorf("%w after %s", ErrTimeout, elapsed.Round(time.Millisecond))

	case ctx.Err() != nil:
		res.Err = ctx.Err()

	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.Err = fmt.Errorf("exit status %d", exitErr.ExitCode())
		} else {
			res.Err = fmt.Errorf("spawn %s: %w", p.cfg.Executable, err)
		}
	}

	if res.Success {
		p.cfg.Logger.Debug("exec done", "id", id, "elapsed", elapsed)
	} else {
		p.cfg.Logger.Debug("exec failed", "id", id, "elapsed", elapsed, "error", res.Err)
	}

	return res
}

// ExecuteBatch runs commands sequentially in workingDir and stops at the
// first failure. The returned slice holds the results produced so far,
// including the failing one; commands after the failure are never invoked.
// Prior effects are not rolled back.
func (p *Pool) ExecuteBatch(ctx context.Context, workingDir string, commands [][]string) []Result {
	results := make([]Result, 0, len(commands))
	for _, args := range commands {
		res := p.Execute(ctx, workingDir, args, 0)
		results = append(results, res)
		if !res.Success {
			break
		}
	}
	return results
}

// Stats returns a snapshot of pool occupancy.
func (p *Pool) Stats() Stats {
	return Stats{
		InFlight: int(p.inFlight.Load()),
		Waiting:  int(p.waiting.Load()),
		Capacity: p.cfg.MaxConcurrent,
		Total:    p.total.Load(),
	}
}

// Close marks the pool closed and waits for in-flight executions to drain.
// Subsequent Execute calls return ErrPoolClosed. Close is idempotent.
func (p *Pool) Close() {
	if p.closed.Swap(true) {
		return
	}
	p.wg.Wait()
}
