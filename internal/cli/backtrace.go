package cli

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/roach88/geoul/internal/replay"
	"github.com/roach88/geoul/internal/sim"
	"github.com/roach88/geoul/internal/state"
)

// BacktraceOptions holds flags for the backtrace command.
type BacktraceOptions struct {
	*RootOptions
	Key  string
	From uint64
	To   uint64
}

// BacktraceChange is one change in the backtrace output payload.
type BacktraceChange struct {
	Madi  uint64          `json:"madi"`
	Value json.RawMessage `json:"value"`
}

// BacktraceOutput is the backtrace command's output payload.
type BacktraceOutput struct {
	Key     string            `json:"key"`
	From    uint64            `json:"from"`
	To      uint64            `json:"to"`
	Changes []BacktraceChange `json:"changes"`
}

// NewBacktraceCommand creates the backtrace command.
func NewBacktraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BacktraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "backtrace <bundle-dir>",
		Short: "Trace every change of a key over a tick window",
		Long: `Replay a bundle and report each tick in the window where the key's
value changed, including its first observed value.

Example:
  geoul backtrace ./runs/base --key hp --from 100 --to 400`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBacktrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Key, "key", "", "state key (required)")
	_ = cmd.MarkFlagRequired("key")
	cmd.Flags().Uint64Var(&opts.From, "from", 0, "first tick of the window")
	cmd.Flags().Uint64Var(&opts.To, "to", 0, "last tick of the window (inclusive)")

	return cmd
}

func runBacktrace(opts *BacktraceOptions, dir string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	changes, err := replay.Backtrace(ctx, dir, opts.Key, opts.From, opts.To, sim.New(), sim.Volatile)
	if err != nil {
		return WrapExitError(ExitCommandError, "backtrace", err)
	}

	out := formatter(opts.RootOptions, cmd)
	payload := BacktraceOutput{
		Key:     opts.Key,
		From:    opts.From,
		To:      opts.To,
		Changes: make([]BacktraceChange, 0, len(changes)),
	}
	for _, ch := range changes {
		value, err := state.MarshalCanonical(ch.Value)
		if err != nil {
			return WrapExitError(ExitCommandError, "render value", err)
		}
		payload.Changes = append(payload.Changes, BacktraceChange{Madi: ch.Madi, Value: value})
		out.Textf("madi %6d  %s = %s", ch.Madi, opts.Key, value)
	}
	if len(changes) == 0 {
		out.Textf("no changes of %q in [%d, %d]", opts.Key, opts.From, opts.To)
	}
	return out.SuccessJSON(payload)
}
