// Package cmdutils provides utility functions for running external commands.
package cmdutils

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"time"
)

// Run executes the command specified by cmd with arguments args using the provided context.
// The child inherits the current environment. Returns captured stdout and stderr.
//
// Python output is forced unbuffered so partial progress survives a kill.
func Run(ctx context.Context, dir, cmd string, args ...string) (stdout, stderr *bytes.Buffer, err error) {
	stdout = &bytes.Buffer{}
	stderr = &bytes.Buffer{}

	c := exec.CommandContext(ctx, cmd, args...)
	c.Dir = dir
	c.Stdout = stdout
	c.Stderr = stderr
	c.Env = append(c.Env, os.Environ()...)
	c.Env = append(c.Env, "PYTHONUNBUFFERED=1")
	err = c.Run()

	return stdout, stderr, err
}

// RunWithTimeout calls Run but a timeout is added to the provided context.
func RunWithTimeout(ctx context.Context, timeout time.Duration, dir, cmd string, args ...string) (stdout, stderr *bytes.Buffer, err error) {
	c, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return Run(c, dir, cmd, args...)
}

// ExitCode maps the error returned by Run to a process exit code.
// Returns 0 on nil, the child's exit code for an exec.ExitError, and -1 when
// the command could not be started or was killed before exiting.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
