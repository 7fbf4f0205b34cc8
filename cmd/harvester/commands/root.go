// Package commands contains the commands of the harvester command line tool.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ideacorpus/harvester/internal/cli"
	"github.com/ideacorpus/harvester/internal/constants"
	"github.com/ideacorpus/harvester/internal/journal"
	"github.com/ideacorpus/harvester/internal/runner"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type newRunner func(l *slog.Logger, src runner.Sources, c runner.Config, args ...runner.Options) (*runner.Runner, error)
type newJournal func(ctx context.Context, l *slog.Logger, c journal.Config, args ...journal.Options) (*journal.Manager, error)

// App represents the application.
type App struct {
	cmd    *cobra.Command
	viper  *viper.Viper
	config appConfig

	newRunner  newRunner
	newJournal newJournal
}

// appConfig holds the configuration for the application.
type appConfig struct {
	Verbosity int
	JSONLogs  bool

	Run     runner.Config
	Journal journal.Config

	Sources struct {
		Sources []string
		State   string
	}

	History struct {
		Latest bool
		Sync   bool
	}

	MigrationsDir string
}

type options struct {
	// Private members exported for tests.
	newRunner  newRunner
	newJournal newJournal
}

var defaultOptions = options{
	newRunner:  runner.New,
	newJournal: journal.Connect,
}

// Options represents an optional function to override App default values.
type Options func(*options)

// New creates a new App instance with default values.
func New(args ...Options) (*App, error) {
	opts := defaultOptions
	for _, opt := range args {
		opt(&opts)
	}

	a := App{
		newRunner:  opts.newRunner,
		newJournal: opts.newJournal,
	}

	a.cmd = &cobra.Command{
		Use:           constants.CmdName + " [COMMAND]",
		Short:         "Sequential corpus fetch orchestrator",
		Long:          "Harvester invokes the external corpus fetchers in a fixed order over a shared date window, records the outcome of each run, and optionally journals runs into a PostgreSQL database.",
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Command parsing has been successful. Returns to not print usage anymore.
			a.cmd.SilenceUsage = true
			cli.SetSlog(a.config.Verbosity, a.config.JSONLogs) // Set verbosity before loading config
			if err := cli.InitViperConfig(constants.CmdName, a.cmd, a.viper); err != nil {
				return err
			}
			if err := a.viper.Unmarshal(&a.config); err != nil {
				return fmt.Errorf("unable to strictly decode configuration into struct: %w", err)
			}
			slog.Debug("got app config", "config", a.config)

			cli.SetSlog(a.config.Verbosity, a.config.JSONLogs) // Update logging after loading config if necessary
			return nil
		},
	}
	a.viper = viper.New()
	a.cmd.CompletionOptions.HiddenDefaultCmd = true

	installRootCmd(&a)
	cli.InstallConfigFlag(a.cmd)

	if err := a.viper.BindPFlags(a.cmd.PersistentFlags()); err != nil {
		return nil, err
	}

	installRunCmd(&a)
	installPlanCmd(&a)
	installSourcesCmd(&a)
	installHistoryCmd(&a)
	installMigrateCmd(&a)
	a.installVersion()

	return &a, nil
}

func installRootCmd(app *App) {
	cmd := app.cmd

	cmd.PersistentFlags().CountVarP(&app.config.Verbosity, "verbose", "v", "issue INFO (-v), DEBUG (-vv)")
	cmd.PersistentFlags().BoolVar(&app.config.JSONLogs, "json-logs", false, "enable JSON formatted logs")
	cmd.PersistentFlags().StringVar(&app.config.Run.StatePath, "state-dir", "", "directory the per-source state files are stored in")
	cmd.PersistentFlags().StringVar(&app.config.Run.CachePath, "cache-dir", "", "directory the run manifests are stored in")

	if err := cmd.MarkPersistentFlagDirname("state-dir"); err != nil {
		panic(fmt.Errorf("failed to mark state-dir flag as directory: %w", err))
	}
	if err := cmd.MarkPersistentFlagDirname("cache-dir"); err != nil {
		panic(fmt.Errorf("failed to mark cache-dir flag as directory: %w", err))
	}
}

func addDBFlags(cmd *cobra.Command, config *journal.Config) {
	cmd.Flags().StringVar(&config.Host, "db-host", "", "journal database host")
	cmd.Flags().IntVar(&config.Port, "db-port", 5432, "journal database port")
	cmd.Flags().StringVar(&config.User, "db-user", "", "journal database user")
	cmd.Flags().StringVar(&config.Password, "db-password", "", "journal database password")
	cmd.Flags().StringVar(&config.DBName, "db-name", "", "journal database name")
	cmd.Flags().StringVar(&config.SSLMode, "db-sslmode", "", "journal database SSL mode")
}

// Run executes the command and associated process, returning an error if any.
func (a App) Run() error {
	return a.cmd.Execute()
}

// UsageError returns if the error is a command parsing or runtime one.
func (a App) UsageError() bool {
	return !a.cmd.SilenceUsage
}

// RootCmd returns the root command.
func (a App) RootCmd() cobra.Command {
	return *a.cmd
}
