package cli

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/amosunov/ellgrowth/internal/aggregate"
	"github.com/amosunov/ellgrowth/internal/classify"
	"github.com/amosunov/ellgrowth/internal/config"
	"github.com/amosunov/ellgrowth/internal/reduce"
	"github.com/amosunov/ellgrowth/internal/report"
	"github.com/amosunov/ellgrowth/internal/store"
)

// AnalyzeOptions holds flags for the analyze command.
type AnalyzeOptions struct {
	*RootOptions
	ConfigPath string
	Database   string
	Ell        uint64
	DMax       int64
	Files      int64
	Mode       string
	Workers    int
}

// NewAnalyzeCommand creates the analyze command.
func NewAnalyzeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AnalyzeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "analyze [folder]",
		Short: "Run the growth analysis over a tabulation",
		Long: `Run the ℓ-adic growth analysis over a class group tabulation.

The folder must contain the cl{a}mod{m} directory tree produced by the
tabulation stage, one fundamental and one index-ℓ² file pair per unit.
Parameters come from flags, from a YAML config file (--config), or both;
explicitly set flags override file values.

Example:
  ellgrowth analyze --ell 3 --d-max 100000000 --files 100 /data/clgrp
  ellgrowth analyze --config run.yaml --mode net --verbose`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(opts, cmd, args)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "YAML config file")
	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite database to persist the finished run (optional)")
	cmd.Flags().Uint64Var(&opts.Ell, "ell", 0, "prime ℓ for growth analysis")
	cmd.Flags().Int64Var(&opts.DMax, "d-max", 0, "maximum |discriminant|")
	cmd.Flags().Int64Var(&opts.Files, "files", 0, "number of file pairs per congruence class")
	cmd.Flags().StringVar(&opts.Mode, "mode", "strict", "growth detection mode (strict|any|net)")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "concurrent units per class (0 = one per CPU)")

	return cmd
}

// assembleConfig merges the config file, flags and the positional folder.
// Explicitly set flags win over file values.
func assembleConfig(opts *AnalyzeOptions, cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := &config.Config{Mode: "strict"}
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if len(args) == 1 {
		cfg.Folder = args[0]
	}
	flags := cmd.Flags()
	if flags.Changed("ell") {
		cfg.Ell = opts.Ell
	}
	if flags.Changed("d-max") {
		cfg.DMax = opts.DMax
	}
	if flags.Changed("files") {
		cfg.Files = opts.Files
	}
	if flags.Changed("mode") {
		cfg.Mode = opts.Mode
	}
	if flags.Changed("workers") {
		cfg.Workers = opts.Workers
	}
	if opts.Verbose {
		cfg.Verbose = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runAnalyze(opts *AnalyzeOptions, cmd *cobra.Command, args []string) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg, err := assembleConfig(opts, cmd, args)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	var observer aggregate.Observer
	if cfg.Verbose {
		// Growth events arrive from concurrent units; serialize the
		// diagnostic lines.
		var mu sync.Mutex
		w := formatter.GetErrWriter()
		observer = func(ev aggregate.GrowthEvent) {
			mu.Lock()
			defer mu.Unlock()
			fmt.Fprintf(w, "D=%d: N=%d, kron=%d, fund_profile=%v, ell_profile=%v\n",
				ev.D, ev.N, ev.Kron, ev.FundProfile, ev.EllProfile)
		}
	}

	mode := classify.ParsePolicy(cfg.Mode)
	logger.Info("starting analysis",
		"folder", cfg.Folder, "ell", cfg.Ell, "d_max", cfg.DMax,
		"files", cfg.Files, "mode", string(mode))

	res, err := reduce.Run(cmd.Context(), reduce.Options{
		Folder:   cfg.Folder,
		Ell:      cfg.Ell,
		DMax:     cfg.DMax,
		Files:    cfg.Files,
		Mode:     mode,
		Workers:  cfg.Workers,
		Observer: observer,
		Logger:   logger,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "analysis failed", err)
	}

	params := report.Params{
		Folder: cfg.Folder,
		Ell:    cfg.Ell,
		DMax:   cfg.DMax,
		Files:  cfg.Files,
		Mode:   mode,
	}

	if opts.Database != "" {
		id, err := saveRun(cmd, opts.Database, cfg, mode, res)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to persist run", err)
		}
		logger.Info("run persisted", "db", opts.Database, "run_id", id)
	}

	if opts.Format == "json" {
		return formatter.Success(report.Build(res, params))
	}
	return report.Write(formatter.Writer, res, params)
}

func saveRun(cmd *cobra.Command, path string, cfg *config.Config, mode classify.Policy, res *reduce.Result) (string, error) {
	st, err := store.Open(path)
	if err != nil {
		return "", err
	}
	defer st.Close()

	return st.SaveRun(cmd.Context(), store.Run{
		CreatedAt: time.Now().UTC(),
		Folder:    cfg.Folder,
		Ell:       cfg.Ell,
		DMax:      cfg.DMax,
		Files:     cfg.Files,
		Mode:      string(mode),
	}, res)
}
