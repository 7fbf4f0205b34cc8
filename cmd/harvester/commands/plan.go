package commands

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ideacorpus/harvester/internal/plan"
	"github.com/ideacorpus/harvester/internal/sources"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

func installPlanCmd(app *App) {
	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the resolved collection plan without executing it",
		Long: `Show the resolved collection plan without executing it.

Prints every fetcher invocation the run command would perform, in order,
with the exact arguments each fetcher would receive.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Debug("Running plan command")
			return app.planRun()
		},
	}

	planCmd.Flags().BoolVar(&app.config.Run.Pilot, "pilot", false, "resolve the reduced pilot plan")
	planCmd.Flags().StringVar(&app.config.Run.StartDate, "start-date", "", "override the collection window start (YYYY-MM-DD, requires --end-date)")
	planCmd.Flags().StringVar(&app.config.Run.EndDate, "end-date", "", "override the collection window end (YYYY-MM-DD, requires --start-date)")
	planCmd.Flags().StringVar(&app.config.Run.PlanPath, "plan", "", "path to a plan file replacing the built-in plan")

	app.cmd.AddCommand(planCmd)
}

// planRun runs the plan command.
func (a App) planRun() error {
	l := slog.Default()

	c := a.config.Run
	if err := c.Sanitize(l); err != nil {
		return err
	}

	r, err := a.newRunner(l, sources.New(l, c.StatePath), c)
	if err != nil {
		return err
	}

	p := r.Plan()
	window := fmt.Sprintf("%s to %s", p.Range.Start, p.Range.End)
	if p.Pilot {
		window += " (pilot)"
	}
	fmt.Printf("Collection window: %s\n", window)

	for i, inv := range p.Invocations() {
		fmt.Printf("%2d. %-20s %s %s\n", i+1, displayName(inv.Job), inv.Job.Program, strings.Join(inv.Args, " "))
	}

	return nil
}

// displayName renders a job name for humans: "nyt-opeds" reads "NYT Opeds".
func displayName(j plan.Job) string {
	name := titleCaser.String(strings.ReplaceAll(j.Name, "-", " "))
	name = strings.Replace(name, "Nyt", "NYT", 1)
	return name
}
