package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/derive/internal/ir"
	"github.com/roach88/derive/internal/settings"
)

// SettingsOptions holds flags for the settings command.
type SettingsOptions struct {
	*RootOptions
	Schema string
}

// NewSettingsCommand creates the settings command.
func NewSettingsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SettingsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "settings <file.cue>...",
		Short: "Print the merged settings cascade",
		Long: `Evaluate CUE settings files in order and print the merged result.

Objects merge key by key; any other value in a later file replaces the
earlier one.

Examples:
  derive settings global.cue org.cue user.cue
  derive settings global.cue user.cue --schema schema.cue --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSettings(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Schema, "schema", "", "CUE schema the merged settings must satisfy")

	return cmd
}

func runSettings(opts *SettingsOptions, files []string, cmd *cobra.Command) error {
	var loadOpts []settings.Option
	if opts.Schema != "" {
		loadOpts = append(loadOpts, settings.WithSchema(opts.Schema))
	}

	merged, err := settings.Load(files, loadOpts...)
	if err != nil {
		out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		_ = out.Error("E_SETTINGS", err.Error(), nil)
		return WrapExitError(ExitFailure, "invalid settings", err)
	}

	canonical, err := ir.Canonical(merged)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to serialize settings", err)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return out.Success(json.RawMessage(canonical), fmt.Sprintf("%s\n", canonical))
}
