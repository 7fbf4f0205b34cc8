package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ideacorpus/harvester/internal/constants"
	"github.com/ideacorpus/harvester/internal/manifest"
	"github.com/spf13/cobra"
)

func installHistoryCmd(app *App) {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded run manifests",
		Long: `List the run manifests kept in the cache directory, oldest first.

With --sync, the cached manifests are recorded into the journal database
instead of being printed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.Debug("Running history command")
			return app.historyRun(cmd.Context())
		},
	}

	historyCmd.Flags().BoolVar(&app.config.History.Latest, "latest", false, "only show the most recent run")
	historyCmd.Flags().BoolVar(&app.config.History.Sync, "sync", false, "record the cached manifests into the journal database")
	addDBFlags(historyCmd, &app.config.Journal)

	app.cmd.AddCommand(historyCmd)
}

// historyRun runs the history command.
func (a App) historyRun(ctx context.Context) error {
	l := slog.Default()

	dir := a.config.Run.CachePath
	if dir == "" {
		dir = constants.DefaultCachePath()
	}

	if a.config.History.Sync {
		return a.historySync(ctx, dir)
	}

	manifests, err := manifest.GetAll(l, dir)
	if err != nil {
		return fmt.Errorf("failed to list manifests: %v", err)
	}
	if a.config.History.Latest && len(manifests) > 1 {
		manifests = manifests[len(manifests)-1:]
	}
	if len(manifests) == 0 {
		fmt.Println("No recorded runs.")
		return nil
	}

	for _, m := range manifests {
		rm, err := m.Read()
		if err != nil {
			l.Warn("Skipping unreadable manifest", "file", m.Name, "error", err)
			continue
		}
		fmt.Printf("%s  %s  %s to %s  %s\n",
			time.Unix(m.TimeStamp, 0).UTC().Format(time.RFC3339),
			rm.RunID,
			rm.StartDate, rm.EndDate,
			summarize(rm),
		)
	}

	return nil
}

func (a App) historySync(ctx context.Context, dir string) error {
	if !a.config.Journal.Configured() {
		a.cmd.SilenceUsage = false
		return fmt.Errorf("no journal database configured, set --db-host")
	}

	j, err := a.newJournal(ctx, slog.Default(), a.config.Journal)
	if err != nil {
		return fmt.Errorf("failed to connect to the run journal: %v", err)
	}
	defer j.Close()

	synced, err := j.Sync(ctx, dir)
	if err != nil {
		return fmt.Errorf("failed to sync manifests into the journal: %v", err)
	}

	fmt.Printf("Recorded %d runs in the journal.\n", synced)
	return nil
}

// summarize renders the per-invocation outcome counts of a run.
func summarize(rm manifest.RunManifest) string {
	var ok, failed, skipped int
	for _, inv := range rm.Invocations {
		switch {
		case inv.Skipped:
			skipped++
		case inv.ExitCode != 0:
			failed++
		default:
			ok++
		}
	}

	s := fmt.Sprintf("%d ok", ok)
	if failed > 0 {
		s += fmt.Sprintf(", %d failed", failed)
	}
	if skipped > 0 {
		s += fmt.Sprintf(", %d skipped", skipped)
	}
	if rm.Pilot {
		s += " (pilot)"
	}
	return s
}
