package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/geoul/internal/diff"
)

// NewDiffCommand creates the diff command.
func NewDiffCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <left-bundle-dir> <right-bundle-dir>",
		Short: "Compare two bundles' recorded hash series",
		Long: `Walk both bundles' per-tick hashes and report the first tick at
which the timelines disagree. No replay is involved; this is a pure
comparison of the recorded evidence.

Exit codes:
  0 - timelines identical
  1 - divergence found
  2 - command error

Example:
  geoul diff ./runs/base ./runs/fork`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(rootOpts, args[0], args[1], cmd)
		},
	}
	return cmd
}

func runDiff(rootOpts *RootOptions, leftDir, rightDir string, cmd *cobra.Command) error {
	report, err := diff.Compare(leftDir, rightDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "diff", err)
	}

	out := formatter(rootOpts, cmd)
	for _, line := range report.Summary() {
		out.Textf("%s", line)
	}
	if err := out.SuccessJSON(report); err != nil {
		return err
	}

	if !report.Equal {
		return NewExitError(ExitFailure, "timelines diverge")
	}
	return nil
}
