package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/amosunov/ellgrowth/internal/datafile"
	"github.com/amosunov/ellgrowth/internal/reduce"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Ell   uint64
	Files int64
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify <folder>",
		Short: "Check that all tabulation input files exist",
		Long: `Check that every input file an analysis would read exists on disk,
for all four congruence classes and both sides of each unit, before
committing to a long run.

Example:
  ellgrowth verify --ell 3 --files 100 /data/clgrp`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(opts, cmd, args[0])
		},
	}

	cmd.Flags().Uint64Var(&opts.Ell, "ell", 0, "prime ℓ for growth analysis")
	cmd.Flags().Int64Var(&opts.Files, "files", 0, "number of file pairs per congruence class")
	_ = cmd.MarkFlagRequired("ell")
	_ = cmd.MarkFlagRequired("files")

	return cmd
}

// verifyResult is the machine form of one class's verification outcome.
type verifyResult struct {
	Residue int    `json:"residue"`
	Modulus int    `json:"modulus"`
	OK      bool   `json:"ok"`
	Missing string `json:"missing,omitempty"`
}

func runVerify(opts *VerifyOptions, cmd *cobra.Command, folder string) error {
	if opts.Ell < 2 {
		return NewExitError(ExitCommandError, fmt.Sprintf("ell must be a prime of at least 2, got %d", opts.Ell))
	}
	if opts.Files <= 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("files must be positive, got %d", opts.Files))
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	var results []verifyResult
	missing := 0
	for _, class := range reduce.Classes {
		r := verifyResult{Residue: class.Residue, Modulus: class.Modulus, OK: true}
		if err := datafile.VerifyInputs(folder, class.Residue, class.Modulus, opts.Ell, opts.Files); err != nil {
			r.OK = false
			r.Missing = err.Error()
			missing++
		}
		results = append(results, r)
	}

	if opts.Format == "json" {
		if err := formatter.Success(results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if r.OK {
				fmt.Fprintf(formatter.Writer, "%d mod %d: ok\n", r.Residue, r.Modulus)
			} else {
				fmt.Fprintf(formatter.Writer, "%d mod %d: %s\n", r.Residue, r.Modulus, r.Missing)
			}
		}
	}

	if missing > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d congruence class(es) have missing input files", missing))
	}
	return nil
}
