package replay

import (
	"context"
	"fmt"

	"github.com/roach88/geoul/internal/bundle"
	"github.com/roach88/geoul/internal/snapshot"
	"github.com/roach88/geoul/internal/state"
)

// QueryResult is one key's value at one tick, with the recomputed state
// fingerprint for that tick.
type QueryResult struct {
	Madi      uint64
	Key       string
	Value     state.Value
	StateHash state.Hash
}

// Change is one tick at which a backtraced key's value changed.
type Change struct {
	Madi  uint64
	Value state.Value
}

// loadSnapshots reads the recorded snapshots of ticks [0, last] into
// memory.
func loadSnapshots(r *bundle.Reader, last uint64) ([]*snapshot.Snapshot, error) {
	snaps := make([]*snapshot.Snapshot, 0, last+1)
	for madi := uint64(0); madi <= last; madi++ {
		snap, err := r.ReadSnapshot(madi)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// Query replays a bundle through a fresh program and answers "what was
// key at tick target". The bundle must contain at least target+1 frames.
// The recorded snapshot is re-injected before every tick; the value and
// the recomputed state hash are captured at the target tick.
func Query(ctx context.Context, dir string, target uint64, key string, prog Program, volatile state.VolatileFunc) (*QueryResult, error) {
	r, err := bundle.Open(dir)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	if target >= r.FrameCount() {
		return nil, fmt.Errorf("madi %d outside recorded range [0, %d)", target, r.FrameCount())
	}
	snaps, err := loadSnapshots(r, target)
	if err != nil {
		return nil, err
	}

	result := &QueryResult{Madi: target, Key: key}
	found := false

	err = prog.Run(ctx, target+1, Hooks{
		BeforeTick: func(madi uint64, st state.Object) error {
			InjectSnapshot(st, snaps[madi])
			return nil
		},
		OnTick: func(madi uint64, st state.Object, requested bool) error {
			if madi != target {
				return nil
			}
			hash, err := state.HashState(st, volatile)
			if err != nil {
				return err
			}
			result.StateHash = hash
			if v, ok := st[key]; ok {
				result.Value = state.Clone(v)
				found = true
			}
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("replay to madi %d: %w", target, err)
	}
	if !found {
		return nil, fmt.Errorf("key %q not present in state at madi %d", key, target)
	}
	return result, nil
}

// Backtrace replays ticks [0, to] and records every tick in [from, to]
// where the key's canonical value differs from the value at the previous
// tick. The first observed value always counts as a change. Fails if
// from > to or to is outside the bundle's frame range.
func Backtrace(ctx context.Context, dir string, key string, from, to uint64, prog Program, volatile state.VolatileFunc) ([]Change, error) {
	if from > to {
		return nil, fmt.Errorf("backtrace range [%d, %d] is inverted", from, to)
	}

	r, err := bundle.Open(dir)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	if to >= r.FrameCount() {
		return nil, fmt.Errorf("madi %d outside recorded range [0, %d)", to, r.FrameCount())
	}
	snaps, err := loadSnapshots(r, to)
	if err != nil {
		return nil, err
	}

	var changes []Change
	var prev state.Value
	prevPresent := false

	err = prog.Run(ctx, to+1, Hooks{
		BeforeTick: func(madi uint64, st state.Object) error {
			InjectSnapshot(st, snaps[madi])
			return nil
		},
		OnTick: func(madi uint64, st state.Object, requested bool) error {
			cur, present := st[key]
			if madi >= from {
				changed := present != prevPresent ||
					(present && !state.Equal(cur, prev)) ||
					madi == from
				if changed && present {
					changes = append(changes, Change{Madi: madi, Value: state.Clone(cur)})
				}
			}
			if present {
				prev = state.Clone(cur)
			}
			prevPresent = present
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("backtrace replay: %w", err)
	}
	return changes, nil
}
