package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/roach88/geoul/internal/bundle"
)

func TestRecordBundleProducesVerifiableBundle(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run")
	summary, inputs, err := RecordBundle(context.Background(), BundleSpec{
		Dir:       dir,
		Ticks:     6,
		Seed:      3,
		TraceTier: bundle.TracePatch,
		StartedAt: 1700000000,
	})
	if err != nil {
		t.Fatalf("RecordBundle() failed: %v", err)
	}
	if summary.FrameCount != 6 {
		t.Errorf("frame count = %d, want 6", summary.FrameCount)
	}
	if len(inputs) != 6 {
		t.Errorf("script length = %d, want 6", len(inputs))
	}
	if err := bundle.Verify(dir); err != nil {
		t.Errorf("Verify() failed: %v", err)
	}
}

func TestTapeFromScript(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run")
	_, inputs, err := RecordBundle(context.Background(), BundleSpec{
		Dir:       dir,
		Ticks:     8,
		Seed:      3,
		TraceTier: bundle.TraceOff,
		StartedAt: 1700000000,
	})
	if err != nil {
		t.Fatalf("RecordBundle() failed: %v", err)
	}

	const at = 2
	tape := TapeFromScript(inputs, at, 0)
	if len(tape.Records) != len(inputs)-at-1 {
		t.Fatalf("tape length = %d, want %d", len(tape.Records), len(inputs)-at-1)
	}
	for i, rec := range tape.Records {
		if rec.Madi != uint32(i) {
			t.Errorf("record %d has madi %d", i, rec.Madi)
		}
		if rec.Pressed != inputs[at+1+i].Pressed {
			t.Errorf("record %d pressed mask mismatch", i)
		}
	}
}
