package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/derive/internal/clock"
	"github.com/roach88/derive/internal/harness"
	"github.com/roach88/derive/internal/recorder"
	"github.com/roach88/derive/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Filter   string // scenario filter (glob pattern on the file name)

	// RunIDs overrides run ID generation for persisted runs (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs recorder.RunIDGenerator
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string               `json:"name"`
	File   string               `json:"file"`
	Pass   bool                 `json:"pass"`
	RunID  string               `json:"run_id,omitempty"`
	Errors []string             `json:"errors,omitempty"`
	Trace  []harness.TraceEvent `json:"trace,omitempty"`
}

// RunSummary holds the overall result.
type RunSummary struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml|dir>...",
		Short: "Run scenarios and print their traces",
		Long: `Run scenario files on a simulated clock and print every recorded emission.

Directories are searched recursively for .yaml and .yml files. With --db the
runs are appended to a SQLite emission log for later inspection with trace.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  derive run ./scenarios/repo_has_new_commits.yaml
  derive run ./scenarios --filter "current_*"
  derive run ./scenarios --db ./derive.db --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(cmd.Context(), opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database to record runs in")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runScenarios(ctx context.Context, opts *RunOptions, paths []string, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var files []string
	for _, p := range paths {
		found, err := findScenarioFiles(p, opts.Filter)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to find scenarios", err)
		}
		files = append(files, found...)
	}

	var runOpts []harness.RunOption
	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()

		last, err := st.MaxSeq(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read database", err)
		}
		runOpts = append(runOpts, harness.WithSink(st), harness.WithSeq(clock.NewSeqAt(last)))

		if opts.RunIDs == nil {
			opts.RunIDs = recorder.UUIDv7Generator{}
		}
	}
	runOpts = append(runOpts, harness.WithLogger(slog.Default()))

	summary := RunSummary{
		Scenarios: make([]ScenarioResult, 0, len(files)),
		Total:     len(files),
	}
	for _, file := range files {
		res := runScenarioFile(file, opts, runOpts)
		summary.Scenarios = append(summary.Scenarios, res)
		if res.Pass {
			summary.Passed++
		} else {
			summary.Failed++
		}
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if err := out.Success(summary, formatRunSummary(summary)); err != nil {
		return err
	}

	if summary.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenarios failed", summary.Failed, summary.Total))
	}
	return nil
}

// runScenarioFile loads and runs one scenario. Load and setup failures are
// reported as a failed scenario rather than aborting the whole run.
func runScenarioFile(file string, opts *RunOptions, runOpts []harness.RunOption) ScenarioResult {
	scenario, err := harness.LoadScenario(file)
	if err != nil {
		return ScenarioResult{
			Name:   filepath.Base(file),
			File:   file,
			Errors: []string{fmt.Sprintf("failed to load scenario: %v", err)},
		}
	}

	if opts.RunIDs != nil && scenario.RunID == "" {
		scenario.RunID = opts.RunIDs.Generate()
	}

	result, err := harness.Run(scenario, runOpts...)
	if err != nil {
		return ScenarioResult{
			Name:   scenario.Name,
			File:   file,
			Errors: []string{fmt.Sprintf("execution failed: %v", err)},
		}
	}

	return ScenarioResult{
		Name:   scenario.Name,
		File:   file,
		Pass:   result.Pass,
		RunID:  result.RunID,
		Errors: result.Errors,
		Trace:  result.Trace,
	}
}

func formatRunSummary(summary RunSummary) string {
	if summary.Total == 0 {
		return "No scenarios found.\n"
	}

	var b strings.Builder
	for _, res := range summary.Scenarios {
		mark := "✓"
		if !res.Pass {
			mark = "✗"
		}
		fmt.Fprintf(&b, "%s %s", mark, res.Name)
		if res.RunID != "" {
			fmt.Fprintf(&b, " (run %s)", res.RunID)
		}
		b.WriteString("\n")

		for _, ev := range res.Trace {
			fmt.Fprintf(&b, "  [%d] %s %s\n", ev.Seq, ev.Source, ev.Value)
		}
		for _, e := range res.Errors {
			for _, line := range strings.Split(strings.TrimRight(e, "\n"), "\n") {
				fmt.Fprintf(&b, "  ! %s\n", line)
			}
		}
	}
	fmt.Fprintf(&b, "\n%d passed, %d failed, %d total\n", summary.Passed, summary.Failed, summary.Total)
	return b.String()
}

// findScenarioFiles returns path itself if it is a file, or every YAML file
// below it if it is a directory.
func findScenarioFiles(path string, filter string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		ext := filepath.Ext(p)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(p), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, p)
		return nil
	})

	return files, err
}
