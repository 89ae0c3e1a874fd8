// Package diff compares two finished bundles without replaying anything:
// it walks both recorded hash series and reports the earliest tick at
// which the timelines disagree. Pure function of the two bundles, so
// diff(A, B) and diff(B, A) always agree on equality and divergence
// point.
package diff

import (
	"fmt"
	"path/filepath"

	"github.com/roach88/geoul/internal/bundle"
	"github.com/roach88/geoul/internal/state"
)

// Divergence kinds reported by Compare.
const (
	KindState   = "state"   // primary state hashes differ
	KindVisual  = "visual"  // both sides carry a visual hash and they differ
	KindMissing = "missing" // only one side has a frame at this tick
)

// Side describes one compared bundle.
type Side struct {
	Dir        string `json:"dir"`
	RunID      string `json:"run_id"`
	StartMadi  uint64 `json:"start_madi"`
	EndMadi    uint64 `json:"end_madi"`
	FrameCount uint64 `json:"frame_count"`
}

// Report is the deterministic comparison result.
type Report struct {
	Equal            bool    `json:"equal"`
	FirstDivergeMadi *uint64 `json:"first_diverge_madi"`
	DivergeKind      string  `json:"diverge_kind,omitempty"`
	Left             Side    `json:"left"`
	Right            Side    `json:"right"`
}

// tickHashes is one side's recorded hash pair for a tick. The visual
// hash is the patch trace blob when the bundle recorded one.
type tickHashes struct {
	state  state.Hash
	visual *state.Hash
}

func loadSeries(dir string) (Side, []tickHashes, error) {
	r, err := bundle.Open(dir)
	if err != nil {
		return Side{}, nil, err
	}
	defer r.Close()

	m := r.Manifest()
	side := Side{
		Dir:        dir,
		RunID:      m.RunID,
		StartMadi:  m.StartMadi,
		EndMadi:    m.EndMadi,
		FrameCount: m.FrameCount,
	}

	series := make([]tickHashes, 0, r.FrameCount())
	for madi := uint64(0); madi < r.FrameCount(); madi++ {
		fh, err := r.ReadFrameHeader(madi)
		if err != nil {
			return Side{}, nil, err
		}
		th := tickHashes{state: fh.StateHash}
		if fh.PatchLen == state.HashSize {
			frame, err := r.ReadFrame(madi)
			if err != nil {
				return Side{}, nil, err
			}
			var visual state.Hash
			copy(visual[:], frame.Traces.Patch)
			th.visual = &visual
		}
		series = append(series, th)
	}
	return side, series, nil
}

// Compare loads both bundles and finds the first tick at which their
// recorded hashes disagree. A tick present on only one side counts as a
// divergence at that tick.
func Compare(leftDir, rightDir string) (*Report, error) {
	left, leftSeries, err := loadSeries(leftDir)
	if err != nil {
		return nil, fmt.Errorf("left bundle: %w", err)
	}
	right, rightSeries, err := loadSeries(rightDir)
	if err != nil {
		return nil, fmt.Errorf("right bundle: %w", err)
	}

	report := &Report{Equal: true, Left: left, Right: right}

	total := max(len(leftSeries), len(rightSeries))
	for madi := 0; madi < total; madi++ {
		var kind string
		switch {
		case madi >= len(leftSeries) || madi >= len(rightSeries):
			kind = KindMissing
		case leftSeries[madi].state != rightSeries[madi].state:
			kind = KindState
		case leftSeries[madi].visual != nil && rightSeries[madi].visual != nil &&
			*leftSeries[madi].visual != *rightSeries[madi].visual:
			kind = KindVisual
		default:
			continue
		}

		diverge := uint64(madi)
		report.Equal = false
		report.FirstDivergeMadi = &diverge
		report.DivergeKind = kind
		break
	}
	return report, nil
}

// Summary renders a short human-readable line set for the report. Uses
// base directory names, so the output is stable across temp locations.
func (r *Report) Summary() []string {
	lines := []string{
		fmt.Sprintf("left:  %s frames=%d range=[%d,%d)",
			filepath.Base(r.Left.Dir), r.Left.FrameCount, r.Left.StartMadi, r.Left.EndMadi),
		fmt.Sprintf("right: %s frames=%d range=[%d,%d)",
			filepath.Base(r.Right.Dir), r.Right.FrameCount, r.Right.StartMadi, r.Right.EndMadi),
	}
	if r.Equal {
		lines = append(lines, "timelines are identical")
	} else {
		lines = append(lines, fmt.Sprintf("first divergence at madi %d (%s)",
			*r.FirstDivergeMadi, r.DivergeKind))
	}
	return lines
}
