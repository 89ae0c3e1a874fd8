package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/geoul/internal/bundle"
)

// VerifyResult is the verify command's output payload.
type VerifyResult struct {
	Dir string `json:"dir"`
	OK  bool   `json:"ok"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <bundle-dir>",
		Short: "Re-hash a bundle's log against its manifest",
		Long: `Stream the whole append-only log and compare the recomputed hash
against the manifest's audit hash.

Exit codes:
  0 - hash matches
  1 - corruption detected (hash mismatch)
  2 - command error (not a bundle, unreadable files)

Example:
  geoul verify ./runs/base`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runVerify(rootOpts *RootOptions, dir string, cmd *cobra.Command) error {
	out := formatter(rootOpts, cmd)

	if err := bundle.Verify(dir); err != nil {
		if bundle.IsVerifyError(err) {
			_ = out.Error(err.Error(), nil)
			return WrapExitError(ExitFailure, "verification failed", err)
		}
		return WrapExitError(ExitCommandError, "verify", err)
	}

	out.Textf("ok: %s", dir)
	return out.SuccessJSON(VerifyResult{Dir: dir, OK: true})
}
