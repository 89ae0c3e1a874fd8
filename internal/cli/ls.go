package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/geoul/internal/catalog"
)

// LsOptions holds flags for the ls command.
type LsOptions struct {
	*RootOptions
	Catalog string
}

// NewLsCommand creates the ls command.
func NewLsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List bundles registered in a catalog",
		Long: `List every bundle registered in a catalog database, newest first.

Example:
  geoul ls --catalog ./geoul.db`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLs(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Catalog, "catalog", "", "catalog database path (required)")
	_ = cmd.MarkFlagRequired("catalog")

	return cmd
}

func runLs(opts *LsOptions, cmd *cobra.Command) error {
	cat, err := catalog.Open(opts.Catalog)
	if err != nil {
		return WrapExitError(ExitCommandError, "open catalog", err)
	}
	defer cat.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	entries, err := cat.List(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "list bundles", err)
	}

	out := formatter(opts.RootOptions, cmd)
	if len(entries) == 0 {
		out.Textf("no bundles registered")
	}
	for _, e := range entries {
		out.Textf("%s  frames=%-6d tier=%-5s  %s", e.RunID, e.FrameCount, e.TraceTier, e.Dir)
	}
	return out.SuccessJSON(entries)
}
