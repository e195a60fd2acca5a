package cli

import (
	"github.com/spf13/cobra"

	"github.com/amosunov/ellgrowth/internal/classify"
	"github.com/amosunov/ellgrowth/internal/report"
	"github.com/amosunov/ellgrowth/internal/store"
)

// ShowOptions holds flags for the show command.
type ShowOptions struct {
	*RootOptions
	Database string
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ShowOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Re-render a persisted run's report",
		Long: `Reload one persisted run and render its report again.

Example:
  ellgrowth show --db ./runs.db 01923e2a-...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the run database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runShow(opts *ShowOptions, cmd *cobra.Command, id string) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open run database", err)
	}
	defer st.Close()

	run, res, err := st.GetRun(cmd.Context(), id)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load run", err)
	}

	params := report.Params{
		Folder: run.Folder,
		Ell:    run.Ell,
		DMax:   run.DMax,
		Files:  run.Files,
		Mode:   classify.ParsePolicy(run.Mode),
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
	if opts.Format == "json" {
		return formatter.Success(report.Build(res, params))
	}
	return report.Write(formatter.Writer, res, params)
}
