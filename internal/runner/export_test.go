package runner

import (
	"bytes"
	"context"
	"time"
)

type fixedTimeProvider struct {
	time time.Time
}

func (f fixedTimeProvider) Now() time.Time {
	return f.time
}

// WithMaxManifests sets the maximum number of manifests to keep.
func WithMaxManifests(maxManifests uint32) Options {
	return func(o *options) {
		o.maxManifests = maxManifests
	}
}

// WithTime fixes the run time.
func WithTime(t time.Time) Options {
	return func(o *options) {
		o.timeProvider = fixedTimeProvider{time: t}
	}
}

// WithRunID fixes the generated run ID.
func WithRunID(id string) Options {
	return func(o *options) {
		o.newRunID = func() string { return id }
	}
}

// WithCmdRunner replaces the external command runner. Timeout-bounded runs go
// through the same replacement, with the timeout applied to the context.
func WithCmdRunner(f func(ctx context.Context, dir, cmd string, args ...string) (*bytes.Buffer, *bytes.Buffer, error)) Options {
	return func(o *options) {
		o.runCmd = f
		o.runCmdTimeout = func(ctx context.Context, timeout time.Duration, dir, cmd string, args ...string) (*bytes.Buffer, *bytes.Buffer, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return f(ctx, dir, cmd, args...)
		}
	}
}
