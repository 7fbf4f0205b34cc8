package commands

type (
	NewRunner  = newRunner
	NewJournal = newJournal
)

// SetArgs sets the arguments for the command.
func (a *App) SetArgs(args []string) {
	a.cmd.SetArgs(args)
}

// WithNewRunner sets the runner constructor for the app.
func WithNewRunner(nr NewRunner) Options {
	return func(o *options) {
		o.newRunner = nr
	}
}

// WithNewJournal sets the journal constructor for the app.
func WithNewJournal(nj NewJournal) Options {
	return func(o *options) {
		o.newJournal = nj
	}
}
