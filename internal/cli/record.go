package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/geoul/internal/bundle"
	"github.com/roach88/geoul/internal/catalog"
	"github.com/roach88/geoul/internal/profile"
	"github.com/roach88/geoul/internal/replay"
	"github.com/roach88/geoul/internal/sim"
	"github.com/roach88/geoul/internal/state"
)

// RecordOptions holds flags for the record command.
type RecordOptions struct {
	*RootOptions
	Out       string
	Ticks     int
	Seed      uint64
	Profile   string
	Entry     string
	Catalog   string
	NetEvents bool
}

// RecordResult is the record command's output payload.
type RecordResult struct {
	RunID      string `json:"run_id"`
	Dir        string `json:"dir"`
	FrameCount uint64 `json:"frame_count"`
	ByteSize   uint64 `json:"byte_size"`
	AuditHash  string `json:"audit_hash"`
}

// NewRecordCommand creates the record command.
func NewRecordCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecordOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a deterministic run into an audit bundle",
		Long: `Record a scripted run of the demo evaluator into a fresh audit
bundle. The input script is derived from --seed, so the same flags
always produce a byte-identical log.

Recording knobs (checkpoint stride, trace tier) come from a CUE profile
when --profile is given, otherwise from built-in defaults.

Examples:
  geoul record --out ./runs/base --ticks 600 --seed 42
  geoul record --out ./runs/ci --profile ci.cue --catalog ./geoul.db`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecord(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Out, "out", "", "output bundle directory (required)")
	_ = cmd.MarkFlagRequired("out")
	cmd.Flags().IntVar(&opts.Ticks, "ticks", 60, "number of ticks to record")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "input script seed")
	cmd.Flags().StringVar(&opts.Profile, "profile", "", "CUE recording profile")
	cmd.Flags().StringVar(&opts.Entry, "entry", "", "entry file to stamp into the manifest")
	cmd.Flags().StringVar(&opts.Catalog, "catalog", "", "register the bundle in this catalog database")
	cmd.Flags().BoolVar(&opts.NetEvents, "net-events", false, "include synthetic net events in the script")

	return cmd
}

func runRecord(opts *RecordOptions, cmd *cobra.Command) error {
	if opts.Ticks <= 0 {
		return NewExitError(ExitCommandError, "--ticks must be positive")
	}

	prof := profile.Default()
	if opts.Profile != "" {
		var err error
		prof, err = profile.Load(opts.Profile)
		if err != nil {
			return WrapExitError(ExitCommandError, "load profile", err)
		}
	}

	var entry *replay.EntryInfo
	if opts.Entry != "" {
		data, err := os.ReadFile(opts.Entry)
		if err != nil {
			return WrapExitError(ExitCommandError, "read entry file", err)
		}
		entry = &replay.EntryInfo{
			File: filepath.Base(opts.Entry),
			Hash: state.HashBytes(data),
		}
	}

	inputs := sim.Script(opts.Ticks, opts.Seed)
	if !opts.NetEvents {
		for _, s := range inputs {
			s.Events = nil
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	summary, err := replay.Record(ctx, replay.RecordOptions{
		OutDir:      opts.Out,
		Header:      prof.Header(uint64(time.Now().Unix())),
		Stride:      prof.CheckpointStride,
		ToolchainID: toolchainID(),
		Program:     sim.New(),
		Inputs:      inputs,
		Volatile:    sim.Volatile,
		Entry:       entry,
		Logger:      newLogger(opts.RootOptions, cmd.ErrOrStderr()),
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "record failed", err)
	}

	if opts.Catalog != "" {
		if err := registerBundle(ctx, opts.Catalog, opts.Out); err != nil {
			return WrapExitError(ExitCommandError, "register bundle", err)
		}
	}

	out := formatter(opts.RootOptions, cmd)
	out.Textf("recorded %d frames (%d bytes) into %s", summary.FrameCount, summary.ByteSize, opts.Out)
	out.Textf("run id:     %s", summary.RunID)
	out.Textf("audit hash: %s", summary.AuditHash)
	return out.SuccessJSON(RecordResult{
		RunID:      summary.RunID,
		Dir:        opts.Out,
		FrameCount: summary.FrameCount,
		ByteSize:   summary.ByteSize,
		AuditHash:  summary.AuditHash.String(),
	})
}

// toolchainID identifies the recorder build stamped into manifests.
func toolchainID() string {
	return fmt.Sprintf("geoul/v%d", bundle.FormatVersion)
}

func registerBundle(ctx context.Context, catalogPath, dir string) error {
	cat, err := catalog.Open(catalogPath)
	if err != nil {
		return err
	}
	defer cat.Close()
	_, err = cat.Register(ctx, dir)
	return err
}
