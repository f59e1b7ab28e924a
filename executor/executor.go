package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"go.uber.org/zap"
)

// DefaultShell is the command interpreter used when none is configured.
const DefaultShell = "/bin/sh"

var (
	// ErrSpawnFailure means the command interpreter could not be started.
	ErrSpawnFailure = errors.New("command interpreter could not be started")

	// ErrBadDescriptor means the command's output could not be exposed as a
	// readable stream.
	ErrBadDescriptor = errors.New("command output descriptor unavailable")
)

// Executor spawns host commands through a shell and exposes their stdout as
// a live stream. Stderr is intentionally not captured; only stdout is
// streamed back to the requester.
type Executor struct {
	log   *zap.SugaredLogger
	shell string
}

type Option func(e *Executor)

func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) {
		e.log = l.Named("executor").Sugar()
	}
}

func WithShell(shell string) Option {
	return func(e *Executor) {
		e.shell = shell
	}
}

func New(opts ...Option) *Executor {
	e := &Executor{
		log:   zap.NewNop().Sugar(),
		shell: DefaultShell,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Start runs the command line through the shell and returns a handle to the
// running process. The caller consumes Stdout to EOF and then calls Close,
// which reaps the process. Canceling the context kills the process.
func (e *Executor) Start(ctx context.Context, command string) (*Proc, error) {
	e.log.Debugf("starting command: %s", command)

	cmd := exec.CommandContext(ctx, e.shell, "-c", command)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadDescriptor, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSpawnFailure, err)
	}

	return &Proc{
		log:    e.log,
		cmd:    cmd,
		stdout: stdout,
	}, nil
}

// Proc is a running command. Its stdout is exclusively owned by the caller
// until Close, which releases the process resources on every exit path.
type Proc struct {
	log    *zap.SugaredLogger
	cmd    *exec.Cmd
	stdout io.ReadCloser

	closeOnce sync.Once
	waitErr   error
}

// Stdout is the live standard output of the process. It reaches EOF when
// the process closes its stdout, normally at exit.
func (p *Proc) Stdout() io.Reader {
	return p.stdout
}

// Close releases the process: it closes the output stream if the consumer
// did not read it to completion, then waits for the process to exit. A
// non-zero exit status is not an error; use ExitCode to inspect it.
func (p *Proc) Close() error {
	p.closeOnce.Do(func() {
		p.stdout.Close()
		err := p.cmd.Wait()
		if err != nil {
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				p.waitErr = err
				p.log.Debugf("unexpected wait error: %s", err)
			}
		}
		p.log.Debugf("process %d exited with code %d", p.cmd.Process.Pid, p.ExitCode())
	})
	return p.waitErr
}

// ExitCode reports the process exit status. It is valid after Close and
// returns -1 if the process was killed or has not exited.
func (p *Proc) ExitCode() int {
	if p.cmd.ProcessState == nil {
		return -1
	}
	return p.cmd.ProcessState.ExitCode()
}
