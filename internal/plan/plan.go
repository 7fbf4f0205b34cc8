// Package plan is the implementation of the collection plan component.
// A plan is the ordered list of external fetcher invocations for a single
// harvest, together with the date window they all share.
package plan

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/ideacorpus/harvester/internal/constants"
	"github.com/ubuntu/decorate"
	"gopkg.in/yaml.v3"
)

const dateLayout = "2006-01-02"

// Preprint providers the OSF fetcher accepts. medarxiv exists upstream but is
// not part of the default corpus, so it is allowed with a warning.
var knownProviders = map[string]bool{
	"socarxiv": true,
	"psyarxiv": true,
	"medarxiv": false,
}

var (
	// ErrInvalidRange is returned when the date window fails to parse or is reversed.
	ErrInvalidRange = errors.New("invalid date range")

	// ErrInvalidJob is returned when a job definition is incomplete or duplicated.
	ErrInvalidJob = errors.New("invalid job definition")

	// ErrUnknownProvider is returned for a provider the preprint fetcher does not accept.
	ErrUnknownProvider = errors.New("unknown preprint provider")
)

// DateRange is the shared collection window, dates in YYYY-MM-DD form.
type DateRange struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// Validate checks that both dates parse and that the window is not reversed or empty.
func (r DateRange) Validate() error {
	start, err := time.Parse(dateLayout, r.Start)
	if err != nil {
		return fmt.Errorf("%w: start date %q: %v", ErrInvalidRange, r.Start, err)
	}
	end, err := time.Parse(dateLayout, r.End)
	if err != nil {
		return fmt.Errorf("%w: end date %q: %v", ErrInvalidRange, r.End, err)
	}
	if !start.Before(end) {
		return fmt.Errorf("%w: start %s is not before end %s", ErrInvalidRange, r.Start, r.End)
	}
	return nil
}

// Job is one external fetcher in the plan.
// Provider, MaxResultsPerMonth and Count are only rendered when set, as not
// every fetcher understands them.
type Job struct {
	Name               string `yaml:"name"`
	Program            string `yaml:"program"`
	Provider           string `yaml:"provider,omitempty"`
	MaxResultsPerMonth int    `yaml:"max_results_per_month,omitempty"`
	Count              int    `yaml:"count,omitempty"`
}

// Plan is an ordered list of jobs sharing one date window.
type Plan struct {
	Range DateRange `yaml:"range"`
	Pilot bool      `yaml:"pilot,omitempty"`
	Jobs  []Job     `yaml:"jobs"`
}

// Invocation is a fully rendered command line for one job.
type Invocation struct {
	Job  Job
	Args []string
}

// Default returns the full collection plan: fiction, startups, both preprint
// providers, podcasts and NYT op-eds, in that order.
func Default() Plan {
	return Plan{
		Range: DateRange{Start: constants.DefaultStartDate, End: constants.DefaultEndDate},
		Jobs: []Job{
			{Name: "fiction", Program: "fetch_fiction.py"},
			{Name: "startups", Program: "fetch_startups.py"},
			{Name: "socarxiv", Program: "fetch_osf_preprints.py", Provider: "socarxiv", MaxResultsPerMonth: constants.DefaultMaxResultsPerMonth},
			{Name: "psyarxiv", Program: "fetch_osf_preprints.py", Provider: "psyarxiv", MaxResultsPerMonth: constants.DefaultMaxResultsPerMonth},
			{Name: "podcasts", Program: "fetch_podcasts.py", Count: constants.DefaultPodcastCount},
			{Name: "nyt-opeds", Program: "fetch_nyt_opeds.py"},
		},
	}
}

// PilotPlan returns the reduced plan used for prompt engineering and testing.
// Podcasts are excluded, the window is one month, and every invocation carries
// the pilot flag.
func PilotPlan() Plan {
	p := Default()
	p.Range = DateRange{Start: constants.PilotStartDate, End: constants.PilotEndDate}
	p.Pilot = true

	jobs := make([]Job, 0, len(p.Jobs))
	for _, j := range p.Jobs {
		if j.Name == "podcasts" {
			continue
		}
		jobs = append(jobs, j)
	}
	p.Jobs = jobs
	return p
}

// Load reads a plan override file. Jobs and range in the file replace the
// built-in defaults entirely; an unset range falls back to the defaults.
func Load(l *slog.Logger, path string) (p Plan, err error) {
	defer decorate.OnError(&err, "could not load plan file %s", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, err
	}

	if err := yaml.Unmarshal(data, &p); err != nil {
		return Plan{}, err
	}

	if p.Range == (DateRange{}) {
		p.Range = DateRange{Start: constants.DefaultStartDate, End: constants.DefaultEndDate}
		l.Info("Plan file has no range, using defaults", "start", p.Range.Start, "end", p.Range.End)
	}

	l.Debug("Loaded plan file", "file", path, "jobs", len(p.Jobs))
	return p, nil
}

// Validate checks the window, job completeness, job name uniqueness and providers.
func (p Plan) Validate(l *slog.Logger) error {
	if err := p.Range.Validate(); err != nil {
		return err
	}

	if len(p.Jobs) == 0 {
		return fmt.Errorf("%w: plan has no jobs", ErrInvalidJob)
	}

	seen := make(map[string]struct{}, len(p.Jobs))
	for _, j := range p.Jobs {
		if j.Name == "" || j.Program == "" {
			return fmt.Errorf("%w: name and program are required (name=%q, program=%q)", ErrInvalidJob, j.Name, j.Program)
		}
		if _, ok := seen[j.Name]; ok {
			return fmt.Errorf("%w: duplicate job name %q", ErrInvalidJob, j.Name)
		}
		seen[j.Name] = struct{}{}

		if j.Provider == "" {
			continue
		}
		def, ok := knownProviders[j.Provider]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownProvider, j.Provider)
		}
		if !def {
			l.Warn("Provider is accepted by the fetcher but outside the default corpus", "provider", j.Provider)
		}
	}

	return nil
}

// Invocations renders the argv for every job, preserving plan order.
func (p Plan) Invocations() []Invocation {
	invs := make([]Invocation, 0, len(p.Jobs))
	for _, j := range p.Jobs {
		invs = append(invs, Invocation{Job: j, Args: j.args(p.Range, p.Pilot)})
	}
	return invs
}

// args renders the flags a single fetcher receives. Order is fixed: window
// first, then job specific flags, the pilot flag always last.
func (j Job) args(r DateRange, pilot bool) []string {
	args := []string{"--start_date", r.Start, "--end_date", r.End}

	if j.Provider != "" {
		args = append(args, "--provider", j.Provider)
	}
	if j.MaxResultsPerMonth > 0 {
		args = append(args, "--max_results_per_month", strconv.Itoa(j.MaxResultsPerMonth))
	}
	if j.Count > 0 {
		args = append(args, "--N", strconv.Itoa(j.Count))
	}
	if pilot {
		args = append(args, "--pilot")
	}

	return args
}
