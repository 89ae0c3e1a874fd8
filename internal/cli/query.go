package cli

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/roach88/geoul/internal/replay"
	"github.com/roach88/geoul/internal/sim"
	"github.com/roach88/geoul/internal/state"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Madi uint64
	Key  string
}

// QueryOutput is the query command's output payload.
type QueryOutput struct {
	Madi      uint64          `json:"madi"`
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	StateHash string          `json:"state_hash"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <bundle-dir>",
		Short: "Replay to a tick and read one state key",
		Long: `Replay a bundle through a fresh evaluator and answer "what was
this key at that tick". The replay re-injects every recorded input
snapshot, so the answer is exact, not interpolated.

Example:
  geoul query ./runs/base --madi 350 --key gold`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	cmd.Flags().Uint64Var(&opts.Madi, "madi", 0, "tick to query")
	cmd.Flags().StringVar(&opts.Key, "key", "", "state key (required)")
	_ = cmd.MarkFlagRequired("key")

	return cmd
}

func runQuery(opts *QueryOptions, dir string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	res, err := replay.Query(ctx, dir, opts.Madi, opts.Key, sim.New(), sim.Volatile)
	if err != nil {
		return WrapExitError(ExitCommandError, "query", err)
	}

	value, err := state.MarshalCanonical(res.Value)
	if err != nil {
		return WrapExitError(ExitCommandError, "render value", err)
	}

	out := formatter(opts.RootOptions, cmd)
	out.Textf("%s @ madi %d = %s", res.Key, res.Madi, value)
	out.Textf("state hash: %s", res.StateHash)
	return out.SuccessJSON(QueryOutput{
		Madi:      res.Madi,
		Key:       res.Key,
		Value:     value,
		StateHash: res.StateHash.String(),
	})
}
