package testutil

import (
	"context"

	"github.com/roach88/geoul/internal/bundle"
	"github.com/roach88/geoul/internal/replay"
	"github.com/roach88/geoul/internal/sim"
	"github.com/roach88/geoul/internal/snapshot"
	"github.com/roach88/geoul/internal/state"
)

func registryHash() state.Hash {
	return state.HashBytes([]byte("test-registry"))
}

// BundleSpec describes a scripted recording fixture.
type BundleSpec struct {
	Dir       string
	Ticks     int
	Seed      uint64
	TraceTier bundle.TraceTier
	Stride    uint64
	StartedAt uint64

	// NetEvents keeps the script's synthetic net events. Branch tests
	// strip them, because an input tape carries key masks only and a
	// rebuilt continuation can then match the base bit for bit.
	NetEvents bool
}

// RecordBundle records a finished bundle from a deterministic input
// script run through the demo evaluator. Returns the finish summary and
// the script that was recorded, for callers that rebuild tapes from it.
func RecordBundle(ctx context.Context, spec BundleSpec) (*bundle.Summary, []*snapshot.Snapshot, error) {
	inputs := sim.Script(spec.Ticks, spec.Seed)
	if !spec.NetEvents {
		for _, s := range inputs {
			s.Events = nil
		}
	}

	stride := spec.Stride
	if stride == 0 {
		stride = 4
	}

	summary, err := replay.Record(ctx, replay.RecordOptions{
		OutDir: spec.Dir,
		Header: bundle.Header{
			StartedAt:  spec.StartedAt,
			DetTier:    1,
			NumBackend: 1,
			TraceTier:  spec.TraceTier,
		},
		Stride:      stride,
		ToolchainID: "geoul-test",
		Program:     sim.New(),
		Inputs:      inputs,
		Volatile:    sim.Volatile,
	})
	if err != nil {
		return nil, nil, err
	}
	return summary, inputs, nil
}

// TapeFromScript rebuilds an input tape from script snapshots beyond a
// branch point: record i of the tape holds the masks of script tick
// at+1+i. flip is XORed into every pressed mask.
func TapeFromScript(inputs []*snapshot.Snapshot, at uint64, flip uint16) *snapshot.Tape {
	tape := &snapshot.Tape{
		RegistryID:   "keys/test",
		RegistryHash: registryHash(),
		MadiHz:       60,
	}
	for i := at + 1; i < uint64(len(inputs)); i++ {
		tape.Records = append(tape.Records, snapshot.TapeRecord{
			Madi:     uint32(i - at - 1),
			Pressed:  inputs[i].Pressed ^ flip,
			Released: inputs[i].Released,
		})
	}
	return tape
}
