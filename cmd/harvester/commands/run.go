package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ideacorpus/harvester/internal/sources"
	"github.com/spf13/cobra"
)

func installRunCmd(app *App) {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the collection plan",
		Long: `Run every fetcher of the collection plan, strictly in order.

A failing fetcher is recorded and the run continues with the remaining
fetchers. The outcome of the run is written to a manifest in the cache
directory and, when a journal database is configured, recorded there too.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Info("Running run command")
			return app.runRun(cmd.Context())
		},
	}

	runCmd.Flags().BoolVar(&app.config.Run.Pilot, "pilot", false, "run the reduced pilot plan over the pilot window")
	runCmd.Flags().BoolVarP(&app.config.Run.DryRun, "dry-run", "d", false, "resolve the plan and go through the motions without invoking any fetcher or writing a manifest")
	runCmd.Flags().StringVar(&app.config.Run.StartDate, "start-date", "", "override the collection window start (YYYY-MM-DD, requires --end-date)")
	runCmd.Flags().StringVar(&app.config.Run.EndDate, "end-date", "", "override the collection window end (YYYY-MM-DD, requires --start-date)")
	runCmd.Flags().StringVar(&app.config.Run.PlanPath, "plan", "", "path to a plan file replacing the built-in plan")
	runCmd.Flags().StringVar(&app.config.Run.ProgramsPath, "programs", "", "path to the fetcher program registry")
	runCmd.Flags().StringVar(&app.config.Run.ScriptsDir, "scripts-dir", "", "directory the fetcher scripts live in")
	runCmd.Flags().DurationVar(&app.config.Run.JobTimeout, "timeout", 0, "per-fetcher timeout, 0 to disable")
	addDBFlags(runCmd, &app.config.Journal)

	app.cmd.AddCommand(runCmd)
}

// runRun runs the run command.
func (a App) runRun(ctx context.Context) error {
	l := slog.Default()

	c := a.config.Run
	if err := c.Sanitize(l); err != nil {
		return err
	}

	r, err := a.newRunner(l, sources.New(l, c.StatePath), c)
	if err != nil {
		return err
	}

	rm, err := r.Run(ctx)
	if err != nil {
		return err
	}
	fmt.Println("All data fetching complete.")

	if !a.config.Journal.Configured() {
		slog.Debug("No journal database configured, not recording the run")
		return nil
	}
	if c.DryRun {
		slog.Info("Dry run, not recording the run in the journal")
		return nil
	}

	j, err := a.newJournal(ctx, l, a.config.Journal)
	if err != nil {
		return fmt.Errorf("failed to connect to the run journal: %v", err)
	}
	defer j.Close()

	if err := j.RecordRun(ctx, rm); err != nil {
		return fmt.Errorf("failed to record the run in the journal: %v", err)
	}

	return nil
}
