package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/geoul/internal/bundle"
)

// NewInfoCommand creates the info command.
func NewInfoCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <bundle-dir>",
		Short: "Show a bundle's manifest",
		Long: `Print the manifest of a finished bundle: run identity, tick range,
trace tier, sizes and the whole-log audit hash.

Example:
  geoul info ./runs/base
  geoul info ./runs/base --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runInfo(rootOpts *RootOptions, dir string, cmd *cobra.Command) error {
	m, err := bundle.LoadManifest(dir)
	if err != nil {
		return WrapExitError(ExitCommandError, "load manifest", err)
	}

	out := formatter(rootOpts, cmd)
	out.Textf("run id:        %s", m.RunID)
	out.Textf("toolchain:     %s", m.ToolchainID)
	out.Textf("started at:    %d", m.StartedAt)
	out.Textf("range:         [%d, %d) (%d frames)", m.StartMadi, m.EndMadi, m.FrameCount)
	out.Textf("trace tier:    %s", m.TraceTier)
	out.Textf("det tier:      %d", m.DetTier)
	out.Textf("stride:        %d", m.CheckpointStride)
	out.Textf("byte size:     %d", m.ByteSize)
	out.Textf("audit hash:    %s", m.AuditHash)
	if m.EntryFile != "" {
		out.Textf("entry:         %s (%s)", m.EntryFile, m.EntryHash)
	}
	return out.SuccessJSON(m)
}
