package replay_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/geoul/internal/bundle"
	"github.com/roach88/geoul/internal/replay"
	"github.com/roach88/geoul/internal/sim"
	"github.com/roach88/geoul/internal/snapshot"
	"github.com/roach88/geoul/internal/state"
)

func demoHeader(tier bundle.TraceTier) bundle.Header {
	return bundle.Header{
		StartedAt:    1700000000,
		DetTier:      1,
		NumBackend:   1,
		TraceTier:    tier,
		CommitPolicy: 0,
	}
}

// maskScript builds an event-free input script with valid held/pressed/
// released bookkeeping. Branch tests rebuild tapes from these snapshots,
// so keeping net events out makes "tape identical to the continuation"
// literally achievable.
func maskScript(n int, seed uint64) []*snapshot.Snapshot {
	snaps := sim.Script(n, seed)
	for _, s := range snaps {
		s.Events = nil
	}
	return snaps
}

func recordDemo(t *testing.T, dir string, n int, seed uint64, tier bundle.TraceTier) (*bundle.Summary, []*snapshot.Snapshot) {
	t.Helper()
	inputs := maskScript(n, seed)
	summary, err := replay.Record(context.Background(), replay.RecordOptions{
		OutDir:      dir,
		Header:      demoHeader(tier),
		Stride:      4,
		ToolchainID: "geoul-test",
		Program:     sim.New(),
		Inputs:      inputs,
		Volatile:    sim.Volatile,
	})
	require.NoError(t, err)
	return summary, inputs
}

func TestRecordProducesValidBundle(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "base")
	summary, _ := recordDemo(t, dir, 10, 42, bundle.TraceFull)

	assert.Equal(t, uint64(10), summary.FrameCount)
	require.NoError(t, bundle.Verify(dir))

	r, err := bundle.Open(dir)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, uint64(10), r.FrameCount())

	// Full tier frames carry all three trace blobs.
	frame, err := r.ReadFrame(3)
	require.NoError(t, err)
	assert.Len(t, frame.Traces.Patch, state.HashSize)
	assert.NotEmpty(t, frame.Traces.Alrim)
	assert.NotEmpty(t, frame.Traces.Full)
}

func TestRecordTraceTierOff(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "off")
	recordDemo(t, dir, 4, 1, bundle.TraceOff)

	r, err := bundle.Open(dir)
	require.NoError(t, err)
	defer r.Close()

	frame, err := r.ReadFrame(0)
	require.NoError(t, err)
	assert.Empty(t, frame.Traces.Patch)
	assert.Empty(t, frame.Traces.Alrim)
	assert.Empty(t, frame.Traces.Full)
}

func TestRecordRejectsNonContiguousInputs(t *testing.T) {
	inputs := maskScript(3, 7)
	inputs[2].Madi = 9

	_, err := replay.Record(context.Background(), replay.RecordOptions{
		OutDir:  filepath.Join(t.TempDir(), "bad"),
		Header:  demoHeader(bundle.TraceOff),
		Program: sim.New(),
		Inputs:  inputs,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contiguous")
}

func TestRecordedHashesMatchReplay(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "base")
	recordDemo(t, dir, 8, 42, bundle.TraceFull)

	r, err := bundle.Open(dir)
	require.NoError(t, err)
	defer r.Close()

	// Replaying to each tick must recompute the recorded fingerprint.
	for _, madi := range []uint64{0, 3, 7} {
		res, err := replay.Query(context.Background(), dir, madi, "gold", sim.New(), sim.Volatile)
		require.NoError(t, err)

		fh, err := r.ReadFrameHeader(madi)
		require.NoError(t, err)
		assert.Equal(t, fh.StateHash, res.StateHash, "madi %d", madi)
	}
}
