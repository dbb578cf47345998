package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/derive/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - defaults to the latest run
	Source   string // optional - filter to one source
	List     bool   // list runs instead of emissions
}

// TraceResult holds the trace output.
type TraceResult struct {
	Run       store.Run        `json:"run"`
	Emissions []store.Emission `json:"emissions"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Print recorded emissions",
		Long: `Print the emissions recorded in a SQLite emission log.

Without --run the most recent run is shown. Emissions are ordered by their
logical sequence number.

Examples:
  derive trace --db ./derive.db
  derive trace --db ./derive.db --list
  derive trace --db ./derive.db --run 0191e4c2-... --source currentDate
  derive trace --db ./derive.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run ID to show (default: latest)")
	cmd.Flags().StringVar(&opts.Source, "source", "", "filter to one source")
	cmd.Flags().BoolVar(&opts.List, "list", false, "list recorded runs")

	return cmd
}

func runTrace(ctx context.Context, opts *TraceOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.List {
		runs, err := st.ListRuns(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		return out.Success(runs, formatRuns(runs))
	}

	run, err := resolveRun(ctx, st, opts.RunID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			_ = out.Error("E_NOT_FOUND", "no recorded runs", nil)
			return NewExitError(ExitCommandError, "no recorded runs")
		}
		return WrapExitError(ExitCommandError, "failed to read runs", err)
	}

	emissions, err := st.ReadEmissions(ctx, run.ID, opts.Source)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read emissions", err)
	}

	result := TraceResult{Run: run, Emissions: emissions}
	return out.Success(result, formatTrace(result))
}

// resolveRun finds the requested run, or the latest one when id is empty.
func resolveRun(ctx context.Context, st *store.Store, id string) (store.Run, error) {
	if id == "" {
		return st.LatestRun(ctx)
	}

	runs, err := st.ListRuns(ctx)
	if err != nil {
		return store.Run{}, err
	}
	for _, r := range runs {
		if r.ID == id {
			return r, nil
		}
	}
	return store.Run{}, fmt.Errorf("run %s: %w", id, sql.ErrNoRows)
}

func formatRuns(runs []store.Run) string {
	if len(runs) == 0 {
		return "No recorded runs.\n"
	}
	var b strings.Builder
	for _, r := range runs {
		fmt.Fprintf(&b, "%s  seq=%d  %s\n", r.ID, r.StartedSeq, r.Label)
	}
	return b.String()
}

func formatTrace(result TraceResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s", result.Run.ID)
	if result.Run.Label != "" {
		fmt.Fprintf(&b, " (%s)", result.Run.Label)
	}
	b.WriteString("\n")

	if len(result.Emissions) == 0 {
		b.WriteString("  no emissions\n")
		return b.String()
	}
	for _, e := range result.Emissions {
		fmt.Fprintf(&b, "  [%d] %s %s\n", e.Seq, e.Source, e.Value)
	}
	return b.String()
}
