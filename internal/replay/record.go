package replay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/geoul/internal/bundle"
	"github.com/roach88/geoul/internal/snapshot"
	"github.com/roach88/geoul/internal/state"
)

// EntryInfo names the source program that produced a recording.
type EntryInfo struct {
	File string
	Hash state.Hash
}

// RecordOptions configures one recording session.
type RecordOptions struct {
	OutDir      string
	Header      bundle.Header
	Stride      uint64
	ToolchainID string

	// Program is a fresh evaluator instance.
	Program Program

	// Inputs supplies one snapshot per tick, madi 0..len-1. Each is
	// injected before its tick and written into that tick's frame.
	Inputs []*snapshot.Snapshot

	// Volatile is the volatile-key predicate. Nil means DefaultVolatile.
	Volatile state.VolatileFunc

	Entry  *EntryInfo
	Logger *slog.Logger
}

// Record drives the program for one tick per input snapshot, writing a
// frame after each tick. This is the only writer of live bundles; branch
// replay reuses the same frame/trace construction for its injected ticks.
func Record(ctx context.Context, opts RecordOptions) (*bundle.Summary, error) {
	volatile := opts.Volatile
	if volatile == nil {
		volatile = DefaultVolatile
	}

	for i, snap := range opts.Inputs {
		if snap.Madi != uint64(i) {
			return nil, fmt.Errorf("input snapshot %d carries madi %d, inputs must be contiguous from 0", i, snap.Madi)
		}
	}

	w, err := bundle.Create(opts.OutDir, opts.Header, opts.Stride, opts.ToolchainID)
	if err != nil {
		return nil, err
	}
	if opts.Logger != nil {
		w.SetLogger(opts.Logger)
	}
	if opts.Entry != nil {
		w.SetEntry(opts.Entry.File, opts.Entry.Hash)
	}

	runErr := opts.Program.Run(ctx, uint64(len(opts.Inputs)), Hooks{
		BeforeTick: func(madi uint64, st state.Object) error {
			InjectSnapshot(st, opts.Inputs[madi])
			return nil
		},
		OnTick: func(madi uint64, st state.Object, requested bool) error {
			canonical, err := state.Canonicalize(st, volatile)
			if err != nil {
				return err
			}
			traces, err := buildTraces(opts.Header.TraceTier, st, madi)
			if err != nil {
				return err
			}
			return w.RecordFrame(madi, opts.Inputs[madi].Encode(), canonical, traces)
		},
	})
	if runErr != nil {
		w.Abort()
		return nil, runErr
	}
	return w.Finish()
}

// buildTraces assembles the frame's auxiliary trace blobs for a tier.
// Each tier includes everything below it:
//
//	patch - 32-byte "visual" hash of the full state, volatile keys
//	        included (the secondary hash replay-diff compares)
//	alrim - notification-level summary of the tick
//	full  - complete canonical state, volatile keys included
func buildTraces(tier bundle.TraceTier, st state.Object, madi uint64) (bundle.TraceBlobs, error) {
	var traces bundle.TraceBlobs
	if tier < bundle.TracePatch {
		return traces, nil
	}

	visual, err := state.HashState(st, nil)
	if err != nil {
		return traces, err
	}
	traces.Patch = visual[:]

	if tier >= bundle.TraceAlrim {
		events := 0
		if evs, ok := st[KeyNetEvents].(state.Array); ok {
			events = len(evs)
		}
		summary := state.Object{
			"madi":   state.Int(int64(madi)),
			"events": state.Int(int64(events)),
		}
		traces.Alrim, err = state.MarshalCanonical(summary)
		if err != nil {
			return traces, err
		}
	}

	if tier >= bundle.TraceFull {
		traces.Full, err = state.Canonicalize(st, nil)
		if err != nil {
			return traces, err
		}
	}
	return traces, nil
}
