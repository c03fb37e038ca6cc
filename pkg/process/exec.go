package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// Command describes one invocation of a tool.
type Command struct {
	// Path is the executable. A path without a separator is looked up in
	// the worker's PATH.
	Path string
	// Args are the arguments after the program name.
	Args []string
	// Env is the complete environment of the tool. Nothing else is merged
	// in at launch.
	Env Environment
	// Stdout and Stderr name files that receive the tool's output streams.
	// The files are created or truncated. An empty name leaves the stream
	// connected to the worker's own stdout or stderr.
	Stdout string
	Stderr string
}

// LaunchError reports that a tool could not be run at all, as opposed to a
// tool that ran and exited non-zero.
type LaunchError struct {
	Path string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch %s: %v", e.Path, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// ExecFunc runs a Command to completion and returns its exit code.
type ExecFunc func(context.Context, Command) (int, error)

// Exec runs c, blocks until it exits and returns its exit code. The exit
// code is not interpreted. A process killed by a signal reports -1.
// Failures to start the process, including failures to open the redirection
// targets, are returned as *LaunchError.
func Exec(ctx context.Context, c Command) (int, error) {
	stdout, closeStdout, err := redirect(c.Stdout, os.Stdout)
	if err != nil {
		return -1, &LaunchError{Path: c.Path, Err: fmt.Errorf("opening stdout target: %w", err)}
	}
	defer closeStdout()

	stderr, closeStderr, err := redirect(c.Stderr, os.Stderr)
	if err != nil {
		return -1, &LaunchError{Path: c.Path, Err: fmt.Errorf("opening stderr target: %w", err)}
	}
	defer closeStderr()

	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Env = c.Env.Environ()
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return -1, &LaunchError{Path: c.Path, Err: err}
	}
	return cmd.ProcessState.ExitCode(), nil
}

func redirect(path string, inherited *os.File) (io.Writer, func(), error) {
	if path == "" {
		return inherited, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { f.Close() }, nil
}
