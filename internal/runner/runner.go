// Package runner is the implementation of the harvest runner component.
// The runner resolves the collection plan to concrete commands, executes them
// strictly in order, and records the outcome of the run in a manifest.
//
// A failing fetcher never aborts the sequence: the remaining fetchers still
// run, and the failure is only recorded. Fetchers are expected to handle their
// own retries and rate limits.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ideacorpus/harvester/internal/cmdutils"
	"github.com/ideacorpus/harvester/internal/constants"
	"github.com/ideacorpus/harvester/internal/manifest"
	"github.com/ideacorpus/harvester/internal/plan"
	"github.com/ideacorpus/harvester/internal/programs"
	"github.com/ubuntu/decorate"
)

// ErrSanitizeError is returned when the Config is not properly configured in an unrecoverable manner.
var ErrSanitizeError = errors.New("run is not properly configured")

// stderrTailLen bounds how much fetcher stderr ends up in the manifest.
const stderrTailLen = 512

// Sources is an interface for getting the enablement state for a given source.
type Sources interface {
	Enabled(source string) (bool, error)
}

type timeProvider interface {
	Now() time.Time
}

type realTimeProvider struct{}

func (realTimeProvider) Now() time.Time {
	return time.Now()
}

type cmdRunner func(ctx context.Context, dir, cmd string, args ...string) (stdout, stderr *bytes.Buffer, err error)

type cmdTimeoutRunner func(ctx context.Context, timeout time.Duration, dir, cmd string, args ...string) (stdout, stderr *bytes.Buffer, err error)

// Config represents the runner specific data needed to run a harvest.
type Config struct {
	PlanPath     string
	ProgramsPath string
	ScriptsDir   string
	StatePath    string
	CachePath    string

	StartDate string
	EndDate   string
	Pilot     bool
	DryRun    bool

	JobTimeout time.Duration
}

// Sanitize sets defaults and checks that the Config is properly configured.
func (c *Config) Sanitize(l *slog.Logger) error {
	if c.CachePath == "" {
		c.CachePath = constants.DefaultCachePath()
		l.Info("No cache path provided, defaulting to", "cachePath", c.CachePath)
	}
	if c.StatePath == "" {
		c.StatePath = constants.DefaultConfigPath()
		l.Info("No state path provided, defaulting to", "statePath", c.StatePath)
	}
	if c.ScriptsDir == "" {
		c.ScriptsDir = "."
	}

	if (c.StartDate == "") != (c.EndDate == "") {
		return errors.New("start and end date must be provided together")
	}
	if c.JobTimeout < 0 {
		return errors.New("job timeout cannot be negative")
	}

	return nil
}

// Runner executes a resolved plan.
type Runner struct {
	plan     plan.Plan
	registry programs.Registry
	sources  Sources
	cacheDir string
	dryRun   bool
	timeout  time.Duration

	// Overrides for testing.
	runCmd        cmdRunner
	runCmdTimeout cmdTimeoutRunner
	time          time.Time
	runID         string
	maxManifests  uint32

	log *slog.Logger
}

type options struct {
	// Private members exported for tests.
	maxManifests  uint32
	timeProvider  timeProvider
	newRunID      func() string
	runCmd        cmdRunner
	runCmdTimeout cmdTimeoutRunner
}

var defaultOptions = options{
	maxManifests:  constants.MaxManifests,
	timeProvider:  realTimeProvider{},
	newRunID:      func() string { return uuid.NewString() },
	runCmd:        cmdutils.Run,
	runCmdTimeout: cmdutils.RunWithTimeout,
}

// Options represents an optional function to override Runner default values.
type Options func(*options)

// New returns a new Runner for the plan described by c.
//
// The plan is resolved at creation time: override file if provided, otherwise
// the built-in full or pilot plan, with the date window from c applied on top.
// Sanitize the config before use, but Sanitize may be called beforehand safely.
func New(l *slog.Logger, src Sources, c Config, args ...Options) (*Runner, error) {
	l.Debug("Creating new runner", "pilot", c.Pilot, "dryRun", c.DryRun)

	if src == nil {
		return nil, fmt.Errorf("sources manager cannot be nil")
	}

	if err := c.Sanitize(l); err != nil {
		return nil, errors.Join(ErrSanitizeError, err)
	}

	p, err := resolvePlan(l, c)
	if err != nil {
		return nil, err
	}

	registry, err := programs.Load(l, c.ProgramsPath, c.ScriptsDir)
	if err != nil {
		return nil, err
	}

	opts := defaultOptions
	for _, opt := range args {
		opt(&opts)
	}

	return &Runner{
		plan:     p,
		registry: registry,
		sources:  src,
		cacheDir: c.CachePath,
		dryRun:   c.DryRun,
		timeout:  c.JobTimeout,

		runCmd:        opts.runCmd,
		runCmdTimeout: opts.runCmdTimeout,
		time:          opts.timeProvider.Now(),
		runID:         opts.newRunID(),
		maxManifests:  opts.maxManifests,

		log: l,
	}, nil
}

// Plan returns the resolved plan this runner would execute.
func (r Runner) Plan() plan.Plan {
	return r.plan
}

// Run executes every enabled invocation of the plan in order and returns the
// run manifest. Individual fetcher failures are recorded, not propagated; the
// returned error covers the orchestration itself (context cancellation,
// manifest persistence).
func (r *Runner) Run(ctx context.Context) (rm manifest.RunManifest, err error) {
	defer decorate.OnError(&err, "harvest run failed")

	rm = manifest.RunManifest{
		RunID:          r.runID,
		Pilot:          r.plan.Pilot,
		StartDate:      r.plan.Range.Start,
		EndDate:        r.plan.Range.End,
		CollectionTime: r.time.Unix(),
	}

	invs := r.plan.Invocations()
	r.log.Info("Starting harvest run", "runId", r.runID, "invocations", len(invs), "pilot", r.plan.Pilot)

	for _, inv := range invs {
		if err := ctx.Err(); err != nil {
			return rm, fmt.Errorf("run interrupted before %s: %w", inv.Job.Name, err)
		}

		rec, err := r.runOne(ctx, inv)
		if err != nil {
			return rm, err
		}
		rm.Invocations = append(rm.Invocations, rec)
	}

	if r.dryRun {
		r.log.Info("Dry run, not writing manifest")
		return rm, nil
	}

	if _, err := manifest.Write(rm, r.cacheDir, r.time); err != nil {
		return rm, err
	}

	if err := manifest.Cleanup(r.log, r.cacheDir, r.maxManifests); err != nil {
		return rm, fmt.Errorf("failed to clean up old manifests: %v", err)
	}

	return rm, nil
}

// runOne executes a single invocation and returns its record.
// The returned error is only non-nil for context cancellation.
func (r *Runner) runOne(ctx context.Context, inv plan.Invocation) (manifest.Invocation, error) {
	rec := manifest.Invocation{
		Job:     inv.Job.Name,
		Program: inv.Job.Program,
		Args:    inv.Args,
	}

	enabled, err := r.sources.Enabled(inv.Job.Name)
	if err != nil {
		r.log.Warn("Failed to get source state, running anyway", "job", inv.Job.Name, "error", err)
		enabled = true
	}
	if !enabled {
		r.log.Info("Source disabled, skipping", "job", inv.Job.Name)
		rec.Skipped = true
		return rec, nil
	}

	cmd := r.registry.Resolve(inv.Job.Name, inv.Job.Program)
	argv := append(append([]string{}, cmd.Args...), inv.Args...)

	if r.dryRun {
		r.log.Info("Dry run, not invoking fetcher", "job", inv.Job.Name, "cmd", cmd.Name, "args", argv)
		rec.Skipped = true
		return rec, nil
	}

	r.log.Info("Invoking fetcher", "job", inv.Job.Name, "cmd", cmd.Name, "args", argv)

	start := time.Now()
	var stderr *bytes.Buffer
	if r.timeout > 0 {
		_, stderr, err = r.runCmdTimeout(ctx, r.timeout, cmd.Dir, cmd.Name, argv...)
	} else {
		_, stderr, err = r.runCmd(ctx, cmd.Dir, cmd.Name, argv...)
	}
	rec.DurationMS = time.Since(start).Milliseconds()
	rec.ExitCode = cmdutils.ExitCode(err)

	if stderr != nil && stderr.Len() > 0 {
		rec.StderrTail = tail(stderr.String(), stderrTailLen)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return rec, fmt.Errorf("run interrupted during %s: %w", inv.Job.Name, ctxErr)
	}

	if err != nil {
		r.log.Warn("Fetcher failed, continuing with remaining fetchers", "job", inv.Job.Name, "exitCode", rec.ExitCode, "error", err)
	} else {
		r.log.Info("Fetcher finished", "job", inv.Job.Name, "durationMs", rec.DurationMS)
	}

	return rec, nil
}

// resolvePlan builds the plan for the config: override file, or built-ins,
// with an explicit date window replacing the plan's own.
func resolvePlan(l *slog.Logger, c Config) (plan.Plan, error) {
	var p plan.Plan
	switch {
	case c.PlanPath != "":
		loaded, err := plan.Load(l, c.PlanPath)
		if err != nil {
			return plan.Plan{}, err
		}
		loaded.Pilot = loaded.Pilot || c.Pilot
		p = loaded
	case c.Pilot:
		p = plan.PilotPlan()
	default:
		p = plan.Default()
	}

	if c.StartDate != "" {
		p.Range = plan.DateRange{Start: c.StartDate, End: c.EndDate}
	}

	if err := p.Validate(l); err != nil {
		return plan.Plan{}, err
	}

	return p, nil
}

// tail returns the last max bytes of s, trimmed to start after the first
// newline of the cut when possible.
func tail(s string, max int) string {
	if len(s) <= max {
		return s
	}

	cut := s[len(s)-max:]
	if i := bytes.IndexByte([]byte(cut), '\n'); i >= 0 && i+1 < len(cut) {
		return cut[i+1:]
	}
	return cut
}
