package commands

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ideacorpus/harvester/internal/constants"
	"github.com/ideacorpus/harvester/internal/plan"
	"github.com/ideacorpus/harvester/internal/sources"
	"github.com/spf13/cobra"
)

func installSourcesCmd(app *App) {
	sourcesCmd := &cobra.Command{
		Use:   "sources [sources](optional arguments)",
		Short: "Manage or get source enablement state",
		Long: `Manage or get source enablement state.

A disabled source is skipped by the run command without perturbing the order
of the remaining fetchers. If no sources are provided, the sources of the
built-in plan are managed.`,
		Args: cobra.ArbitraryArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := strconv.ParseBool(app.config.Sources.State); app.config.Sources.State != "" && err != nil {
				app.cmd.SilenceUsage = false
				return fmt.Errorf("state must be either true or false, or not set: %v", err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Arguments take precedence over configured sources.
			if len(args) > 0 {
				app.config.Sources.Sources = args
			}

			slog.Debug("Running sources command")
			return app.sourcesRun()
		},
	}

	sourcesCmd.Flags().StringVarP(&app.config.Sources.State, "state", "s", "", "the enablement state to set (true or false)")

	app.cmd.AddCommand(sourcesCmd)
}

// sourcesRun runs the sources command.
func (a App) sourcesRun() error {
	path := a.config.Run.StatePath
	if path == "" {
		path = constants.DefaultConfigPath()
	}
	sm := sources.New(slog.Default(), path)

	srcs := a.config.Sources.Sources
	if len(srcs) == 0 {
		for _, j := range plan.Default().Jobs {
			srcs = append(srcs, j.Name)
		}
	}

	// Set enablement state
	if a.config.Sources.State != "" {
		state, err := strconv.ParseBool(a.config.Sources.State)
		if err != nil {
			a.cmd.SilenceUsage = false
			return fmt.Errorf("state must be either true or false, or not set")
		}

		for _, source := range srcs {
			if err := sm.SetEnabled(source, state); err != nil {
				return err
			}
		}
	}

	// Get enablement state
	var failedSources []string
	for _, source := range srcs {
		enabled, err := sm.Enabled(source)
		if err != nil {
			slog.Error("Failed to get enablement state for source", "source", source, "error", err)
			failedSources = append(failedSources, source)
			continue
		}

		fmt.Printf("%s: %t\n", source, enabled)
	}

	if len(failedSources) > 0 {
		return fmt.Errorf("failed to get enablement state for sources: %s", strings.Join(failedSources, ", "))
	}
	return nil
}
