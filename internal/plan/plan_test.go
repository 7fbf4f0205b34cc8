package plan_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/ideacorpus/harvester/internal/plan"
	"github.com/ideacorpus/harvester/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateRangeValidate(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		r plan.DateRange

		wantErr error
	}{
		"Valid window":       {r: plan.DateRange{Start: "2023-01-01", End: "2023-02-01"}},
		"Multi year window":  {r: plan.DateRange{Start: "2018-01-01", End: "2023-12-01"}},
		"Reversed window":    {r: plan.DateRange{Start: "2023-02-01", End: "2023-01-01"}, wantErr: plan.ErrInvalidRange},
		"Empty window":       {r: plan.DateRange{Start: "2023-01-01", End: "2023-01-01"}, wantErr: plan.ErrInvalidRange},
		"Bad start date":     {r: plan.DateRange{Start: "01/01/2023", End: "2023-02-01"}, wantErr: plan.ErrInvalidRange},
		"Bad end date":       {r: plan.DateRange{Start: "2023-01-01", End: "Feb 2023"}, wantErr: plan.ErrInvalidRange},
		"Missing both dates": {r: plan.DateRange{}, wantErr: plan.ErrInvalidRange},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			err := tc.r.Validate()
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestDefaultPlanInvocations(t *testing.T) {
	t.Parallel()

	p := plan.Default()
	require.NoError(t, p.Validate(slog.Default()), "default plan should validate")

	invs := p.Invocations()
	require.Len(t, invs, 6, "full plan should have six invocations")

	wantPrograms := []string{
		"fetch_fiction.py",
		"fetch_startups.py",
		"fetch_osf_preprints.py",
		"fetch_osf_preprints.py",
		"fetch_podcasts.py",
		"fetch_nyt_opeds.py",
	}
	for i, inv := range invs {
		assert.Equal(t, wantPrograms[i], inv.Job.Program, "program order should be fixed")
	}

	assert.Equal(t,
		[]string{"--start_date", "2018-01-01", "--end_date", "2023-12-01"},
		invs[0].Args, "fiction takes only the window")
	assert.Equal(t,
		[]string{"--start_date", "2018-01-01", "--end_date", "2023-12-01", "--provider", "socarxiv", "--max_results_per_month", "100"},
		invs[2].Args, "first preprint invocation uses socarxiv")
	assert.Equal(t,
		[]string{"--start_date", "2018-01-01", "--end_date", "2023-12-01", "--provider", "psyarxiv", "--max_results_per_month", "100"},
		invs[3].Args, "second preprint invocation uses psyarxiv")
	assert.Equal(t,
		[]string{"--start_date", "2018-01-01", "--end_date", "2023-12-01", "--N", "500"},
		invs[4].Args, "podcasts take the total count")
}

func TestPilotPlanInvocations(t *testing.T) {
	t.Parallel()

	p := plan.PilotPlan()
	require.NoError(t, p.Validate(slog.Default()), "pilot plan should validate")

	invs := p.Invocations()
	require.Len(t, invs, 5, "pilot plan should skip podcasts")

	wantPrograms := []string{
		"fetch_fiction.py",
		"fetch_startups.py",
		"fetch_osf_preprints.py",
		"fetch_osf_preprints.py",
		"fetch_nyt_opeds.py",
	}
	for i, inv := range invs {
		assert.Equal(t, wantPrograms[i], inv.Job.Program, "program order should be fixed")

		assert.Equal(t, "--start_date", inv.Args[0])
		assert.Equal(t, "2023-01-01", inv.Args[1], "pilot window start")
		assert.Equal(t, "--end_date", inv.Args[2])
		assert.Equal(t, "2023-02-01", inv.Args[3], "pilot window end")
		assert.Equal(t, "--pilot", inv.Args[len(inv.Args)-1], "every pilot invocation carries the pilot flag")
	}

	providers := []string{invs[2].Args[5], invs[3].Args[5]}
	assert.Equal(t, []string{"socarxiv", "psyarxiv"}, providers, "both preprint providers are fetched")
}

func TestLoad(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		content     string
		missingFile bool

		wantJobs  int
		wantStart string
		wantErr   bool
	}{
		"Full plan file": {
			content: `
range:
  start: 2020-01-01
  end: 2020-06-01
jobs:
  - name: fiction
    program: fetch_fiction.py
  - name: socarxiv
    program: fetch_osf_preprints.py
    provider: socarxiv
    max_results_per_month: 25
`,
			wantJobs:  2,
			wantStart: "2020-01-01",
		},
		"Plan file without range falls back to defaults": {
			content: `
jobs:
  - name: podcasts
    program: fetch_podcasts.py
    count: 10
`,
			wantJobs:  1,
			wantStart: "2018-01-01",
		},

		"Missing file errors":   {missingFile: true, wantErr: true},
		"Malformed YAML errors": {content: "jobs: [", wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "plan.yaml")
			if !tc.missingFile {
				require.NoError(t, os.WriteFile(path, []byte(tc.content), 0600), "Setup: failed to write plan file")
			}

			p, err := plan.Load(slog.Default(), path)
			if tc.wantErr {
				require.Error(t, err, "Load should fail")
				return
			}
			require.NoError(t, err, "Load should succeed")
			assert.Len(t, p.Jobs, tc.wantJobs)
			assert.Equal(t, tc.wantStart, p.Range.Start)
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	validRange := plan.DateRange{Start: "2023-01-01", End: "2023-02-01"}

	tests := map[string]struct {
		p plan.Plan

		logs    map[slog.Level]uint
		wantErr error
	}{
		"Valid single job": {
			p: plan.Plan{Range: validRange, Jobs: []plan.Job{{Name: "fiction", Program: "fetch_fiction.py"}}},
		},
		"Medarxiv warns but passes": {
			p: plan.Plan{Range: validRange, Jobs: []plan.Job{
				{Name: "medarxiv", Program: "fetch_osf_preprints.py", Provider: "medarxiv"},
			}},
			logs: map[slog.Level]uint{slog.LevelWarn: 1},
		},

		// Error cases
		"No jobs errors": {
			p:       plan.Plan{Range: validRange},
			wantErr: plan.ErrInvalidJob,
		},
		"Missing program errors": {
			p:       plan.Plan{Range: validRange, Jobs: []plan.Job{{Name: "fiction"}}},
			wantErr: plan.ErrInvalidJob,
		},
		"Missing name errors": {
			p:       plan.Plan{Range: validRange, Jobs: []plan.Job{{Program: "fetch_fiction.py"}}},
			wantErr: plan.ErrInvalidJob,
		},
		"Duplicate name errors": {
			p: plan.Plan{Range: validRange, Jobs: []plan.Job{
				{Name: "fiction", Program: "fetch_fiction.py"},
				{Name: "fiction", Program: "fetch_startups.py"},
			}},
			wantErr: plan.ErrInvalidJob,
		},
		"Unknown provider errors": {
			p: plan.Plan{Range: validRange, Jobs: []plan.Job{
				{Name: "arxiv", Program: "fetch_osf_preprints.py", Provider: "arxiv"},
			}},
			wantErr: plan.ErrUnknownProvider,
		},
		"Invalid range errors": {
			p:       plan.Plan{Jobs: []plan.Job{{Name: "fiction", Program: "fetch_fiction.py"}}},
			wantErr: plan.ErrInvalidRange,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			h := testutils.NewMockHandler(slog.LevelDebug)
			l := slog.New(&h)

			err := tc.p.Validate(l)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)

			if tc.logs != nil {
				h.AssertLevels(t, tc.logs)
			}
		})
	}
}
