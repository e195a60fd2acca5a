package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/amosunov/ellgrowth/internal/store"
)

// RunsOptions holds flags for the runs command.
type RunsOptions struct {
	*RootOptions
	Database string
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List persisted analysis runs",
		Long: `List the analysis runs persisted in a run database, newest first.

Example:
  ellgrowth runs --db ./runs.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the run database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

// runSummary is the machine form of one listed run.
type runSummary struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Folder    string    `json:"folder"`
	Ell       uint64    `json:"ell"`
	DMax      int64     `json:"d_max"`
	Files     int64     `json:"files"`
	Mode      string    `json:"mode"`
	Total     uint64    `json:"total"`
}

func runRuns(opts *RunsOptions, cmd *cobra.Command) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open run database", err)
	}
	defer st.Close()

	runs, err := st.ListRuns(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if opts.Format == "json" {
		summaries := make([]runSummary, 0, len(runs))
		for _, r := range runs {
			summaries = append(summaries, runSummary{
				ID:        r.ID,
				CreatedAt: r.CreatedAt,
				Folder:    r.Folder,
				Ell:       r.Ell,
				DMax:      r.DMax,
				Files:     r.Files,
				Mode:      r.Mode,
				Total:     r.Total,
			})
		}
		return formatter.Success(summaries)
	}

	if len(runs) == 0 {
		fmt.Fprintln(formatter.Writer, "no runs stored")
		return nil
	}

	tw := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tELL\tD_MAX\tFILES\tMODE\tTOTAL")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\t%d\n",
			r.ID, r.CreatedAt.Format(time.RFC3339), r.Ell, r.DMax, r.Files, r.Mode, r.Total)
	}
	return tw.Flush()
}
