package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/roach88/geoul/internal/replay"
	"github.com/roach88/geoul/internal/sim"
	"github.com/roach88/geoul/internal/snapshot"
)

// BranchOptions holds flags for the branch command.
type BranchOptions struct {
	*RootOptions
	Out     string
	At      uint64
	Tape    string
	Catalog string
}

// BranchOutput is the branch command's output payload.
type BranchOutput struct {
	RunID            string  `json:"run_id"`
	Dir              string  `json:"dir"`
	FrameCount       uint64  `json:"frame_count"`
	FirstDivergeMadi *uint64 `json:"first_diverge_madi"`
	LastFrameHash    string  `json:"last_frame_hash"`
}

// NewBranchCommand creates the branch command.
func NewBranchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BranchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "branch <base-bundle-dir>",
		Short: "Fork a recording at a tick with new inputs",
		Long: `Replay a bundle up to a branch point, proving tick-for-tick hash
equality with the recorded prefix, then continue past it with inputs
from a tape file. The result is a new, fully valid bundle.

Exit codes:
  0 - branch written
  1 - prefix replay diverged from the recording
  2 - command error

Example:
  geoul branch ./runs/base --at 350 --tape alt.tape --out ./runs/fork`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBranch(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Out, "out", "", "output bundle directory (required)")
	_ = cmd.MarkFlagRequired("out")
	cmd.Flags().Uint64Var(&opts.At, "at", 0, "branch point tick")
	cmd.Flags().StringVar(&opts.Tape, "tape", "", "input tape file; empty replays the prefix only")
	cmd.Flags().StringVar(&opts.Catalog, "catalog", "", "register the branch in this catalog database")

	return cmd
}

func runBranch(opts *BranchOptions, baseDir string, cmd *cobra.Command) error {
	var tape *snapshot.Tape
	if opts.Tape != "" {
		var err error
		tape, err = snapshot.LoadTape(opts.Tape)
		if err != nil {
			return WrapExitError(ExitCommandError, "load tape", err)
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := formatter(opts.RootOptions, cmd)

	res, err := replay.Branch(ctx, replay.BranchOptions{
		BaseDir:     baseDir,
		OutDir:      opts.Out,
		At:          opts.At,
		Tape:        tape,
		Program:     sim.New(),
		Volatile:    sim.Volatile,
		ToolchainID: toolchainID(),
		Logger:      newLogger(opts.RootOptions, cmd.ErrOrStderr()),
	})
	if err != nil {
		var mismatch *replay.PrefixMismatchError
		if errors.As(err, &mismatch) {
			_ = out.Error(err.Error(), nil)
			return WrapExitError(ExitFailure, "prefix replay diverged", err)
		}
		return WrapExitError(ExitCommandError, "branch", err)
	}

	if opts.Catalog != "" {
		if err := registerBundle(ctx, opts.Catalog, opts.Out); err != nil {
			return WrapExitError(ExitCommandError, "register bundle", err)
		}
	}

	out.Textf("branched %s at madi %d into %s (%d frames)",
		baseDir, opts.At, opts.Out, res.Summary.FrameCount)
	if res.FirstDivergeMadi != nil {
		out.Textf("first divergence from base: madi %d", *res.FirstDivergeMadi)
	} else {
		out.Textf("no divergence from base within the recorded range")
	}
	return out.SuccessJSON(BranchOutput{
		RunID:            res.Summary.RunID,
		Dir:              opts.Out,
		FrameCount:       res.Summary.FrameCount,
		FirstDivergeMadi: res.FirstDivergeMadi,
		LastFrameHash:    res.LastFrameHash.String(),
	})
}
