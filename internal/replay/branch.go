package replay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/geoul/internal/bundle"
	"github.com/roach88/geoul/internal/snapshot"
	"github.com/roach88/geoul/internal/state"
)

// PrefixMismatchError reports that replaying the base bundle's recorded
// prefix failed to reproduce its hashes: the base cannot be trusted to
// fork from, either because the program is nondeterministic or the log is
// corrupt. Fatal for the whole branch operation.
type PrefixMismatchError struct {
	Madi     uint64
	Recorded state.Hash
	Replayed state.Hash
}

func (e *PrefixMismatchError) Error() string {
	return fmt.Sprintf("base prefix mismatch at madi %d: recorded %s, replayed %s",
		e.Madi, e.Recorded, e.Replayed)
}

// BranchOptions configures one branch replay.
type BranchOptions struct {
	BaseDir string
	OutDir  string

	// At is the branch point: ticks 0..=At replay from the base bundle,
	// the injected tape continues from At+1.
	At uint64

	// Tape supplies the alternate input. An empty tape just reproduces
	// the prefix.
	Tape *snapshot.Tape

	// Program is a fresh evaluator instance for the base program.
	Program Program

	// Volatile is the volatile-key predicate used when hashing state.
	// Nil means DefaultVolatile.
	Volatile state.VolatileFunc

	ToolchainID string
	Logger      *slog.Logger
}

// BranchResult reports a completed branch replay.
type BranchResult struct {
	Summary *bundle.Summary

	// FirstDivergeMadi is the earliest tick at which the new timeline's
	// hash differs from the base log's continuation, nil if the two
	// timelines agree everywhere both have frames.
	FirstDivergeMadi *uint64

	// LastFrameHash is the state hash of the new bundle's final frame.
	LastFrameHash state.Hash
}

// Branch forks a new bundle from a base bundle at tick At. The recorded
// prefix is replayed and must reproduce the base's state hashes exactly;
// any prefix mismatch aborts the operation. The tape's records then
// continue the timeline as synthetic snapshots. Past the branch point,
// divergence from the base is informational: the caller explicitly asked
// for an alternate timeline, so the first differing tick is reported and
// replay continues.
func Branch(ctx context.Context, opts BranchOptions) (*BranchResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	volatile := opts.Volatile
	if volatile == nil {
		volatile = DefaultVolatile
	}

	base, err := bundle.Open(opts.BaseDir)
	if err != nil {
		return nil, err
	}
	defer base.Close()

	baseCount := base.FrameCount()
	if opts.At >= baseCount {
		return nil, fmt.Errorf("branch point %d outside recorded range [0, %d)", opts.At, baseCount)
	}

	// Load every base frame's snapshot and expected hash up front; the
	// post-branch comparison needs the base continuation too.
	baseSnaps := make([]*snapshot.Snapshot, 0, baseCount)
	baseHashes := make([]state.Hash, 0, baseCount)
	baseTraces := make([]bundle.TraceBlobs, 0, baseCount)
	for madi := uint64(0); madi < baseCount; madi++ {
		frame, err := base.ReadFrame(madi)
		if err != nil {
			return nil, err
		}
		snap, err := snapshot.Decode(frame.Snapshot)
		if err != nil {
			return nil, err
		}
		baseSnaps = append(baseSnaps, snap)
		baseHashes = append(baseHashes, frame.StateHash)
		baseTraces = append(baseTraces, frame.Traces)
	}

	// Tape records become synthetic snapshots continuing from At+1,
	// inheriting the first frame's RNG seed and the branch-point frame's
	// held-key state.
	var synth []*snapshot.Snapshot
	if opts.Tape != nil {
		synth = opts.Tape.Synthesize(opts.At+1, baseSnaps[0].RNGSeed, baseSnaps[opts.At].Held)
	}
	totalTicks := opts.At + 1 + uint64(len(synth))

	w, err := bundle.Create(opts.OutDir, base.Header(), base.Manifest().CheckpointStride, opts.ToolchainID)
	if err != nil {
		return nil, err
	}
	w.SetLogger(logger)
	if m := base.Manifest(); m.EntryFile != "" {
		entryHash, err := state.ParseHash(m.EntryHash)
		if err != nil {
			w.Abort()
			return nil, fmt.Errorf("base manifest entry_hash: %w", err)
		}
		w.SetEntry(m.EntryFile, entryHash)
	}

	result := &BranchResult{}

	runErr := opts.Program.Run(ctx, totalTicks, Hooks{
		BeforeTick: func(madi uint64, st state.Object) error {
			if madi <= opts.At {
				InjectSnapshot(st, baseSnaps[madi])
			} else {
				InjectSnapshot(st, synth[madi-opts.At-1])
			}
			return nil
		},
		OnTick: func(madi uint64, st state.Object, requested bool) error {
			canonical, err := state.Canonicalize(st, volatile)
			if err != nil {
				return err
			}
			hash := state.HashBytes(canonical)

			if madi <= opts.At {
				// Prefix tick: the base must be reproduced exactly
				// before anything continues.
				if hash != baseHashes[madi] {
					return &PrefixMismatchError{Madi: madi, Recorded: baseHashes[madi], Replayed: hash}
				}
				return w.RecordFrame(madi, baseSnaps[madi].Encode(), canonical, baseTraces[madi])
			}

			// Injected tick: record the new frame, and note the first
			// divergence from the base continuation if it still has a
			// frame here.
			snapBytes := synth[madi-opts.At-1].Encode()
			traces, err := buildTraces(base.Header().TraceTier, st, madi)
			if err != nil {
				return err
			}
			if err := w.RecordFrame(madi, snapBytes, canonical, traces); err != nil {
				return err
			}
			if madi < baseCount && hash != baseHashes[madi] && result.FirstDivergeMadi == nil {
				diverge := madi
				result.FirstDivergeMadi = &diverge
				logger.Info("timeline diverged from base", "madi", madi)
			}
			result.LastFrameHash = hash
			return nil
		},
	})
	if runErr != nil {
		w.Abort()
		return nil, runErr
	}

	// With an empty tape the last written frame is the branch point
	// itself; its hash equals the base's by the prefix proof.
	if len(synth) == 0 {
		result.LastFrameHash = baseHashes[opts.At]
	}

	summary, err := w.Finish()
	if err != nil {
		return nil, err
	}
	result.Summary = summary
	return result, nil
}
