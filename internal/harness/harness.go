// Package harness executes YAML scenarios end-to-end against the demo
// evaluator: record a scripted run, then replay, branch and diff it, and
// capture every step's observable outcome as one deterministic trace.
// Traces contain logical values only (no hashes, timestamps or run ids),
// so golden files stay stable across machines.
package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/roach88/geoul/internal/bundle"
	"github.com/roach88/geoul/internal/diff"
	"github.com/roach88/geoul/internal/replay"
	"github.com/roach88/geoul/internal/sim"
	"github.com/roach88/geoul/internal/snapshot"
	"github.com/roach88/geoul/internal/state"
	"github.com/roach88/geoul/internal/testutil"
)

// Result holds the trace a scenario produced.
type Result struct {
	Scenario string
	Events   state.Array
}

// CanonicalTrace renders the trace as canonical JSON, the byte form the
// golden files store.
func (r *Result) CanonicalTrace() ([]byte, error) {
	return state.MarshalCanonical(state.Object{
		"scenario": state.String(r.Scenario),
		"events":   r.Events,
	})
}

// replayScript keeps a recorded script around so branch steps can
// rebuild tapes from it.
type replayScript struct {
	inputs []*snapshot.Snapshot
}

// Run executes a scenario. Bundles land in subdirectories of workdir,
// one per alias.
func Run(ctx context.Context, sc *Scenario, workdir string) (*Result, error) {
	tier := bundle.TraceFull
	if sc.TraceTier != "" {
		var err error
		tier, err = bundle.ParseTraceTier(sc.TraceTier)
		if err != nil {
			return nil, err
		}
	}
	stride := sc.CheckpointStride
	if stride == 0 {
		stride = 4
	}

	clock := testutil.NewClock(1700000000)
	dirs := map[string]string{}
	scripts := map[string]*replayScript{}
	result := &Result{Scenario: sc.Name, Events: state.Array{}}

	for i, step := range sc.Steps {
		var ev state.Object
		var err error

		switch {
		case step.Record != nil:
			dir := filepath.Join(workdir, step.Record.As)
			summary, inputs, rerr := testutil.RecordBundle(ctx, testutil.BundleSpec{
				Dir:       dir,
				Ticks:     sc.Ticks,
				Seed:      sc.Seed,
				TraceTier: tier,
				Stride:    stride,
				StartedAt: clock.Next(),
				NetEvents: sc.NetEvents,
			})
			if rerr != nil {
				err = rerr
				break
			}
			dirs[step.Record.As] = dir
			scripts[step.Record.As] = &replayScript{inputs: inputs}
			ev = state.Object{
				"op":         state.String("record"),
				"bundle":     state.String(step.Record.As),
				"frames":     state.Int(int64(summary.FrameCount)),
				"start_madi": state.Int(int64(summary.StartMadi)),
				"end_madi":   state.Int(int64(summary.EndMadi)),
			}

		case step.Verify != nil:
			err = bundle.Verify(dirs[step.Verify.Bundle])
			if err != nil {
				break
			}
			ev = state.Object{
				"op":     state.String("verify"),
				"bundle": state.String(step.Verify.Bundle),
				"ok":     state.Bool(true),
			}

		case step.Query != nil:
			var res *replay.QueryResult
			res, err = replay.Query(ctx, dirs[step.Query.Bundle], step.Query.Madi,
				step.Query.Key, sim.New(), sim.Volatile)
			if err != nil {
				break
			}
			ev = state.Object{
				"op":     state.String("query"),
				"bundle": state.String(step.Query.Bundle),
				"madi":   state.Int(int64(res.Madi)),
				"key":    state.String(res.Key),
				"value":  res.Value,
			}

		case step.Backtrace != nil:
			var changes []replay.Change
			changes, err = replay.Backtrace(ctx, dirs[step.Backtrace.Bundle],
				step.Backtrace.Key, step.Backtrace.From, step.Backtrace.To,
				sim.New(), sim.Volatile)
			if err != nil {
				break
			}
			list := make(state.Array, 0, len(changes))
			for _, ch := range changes {
				list = append(list, state.Object{
					"madi":  state.Int(int64(ch.Madi)),
					"value": ch.Value,
				})
			}
			ev = state.Object{
				"op":      state.String("backtrace"),
				"bundle":  state.String(step.Backtrace.Bundle),
				"key":     state.String(step.Backtrace.Key),
				"from":    state.Int(int64(step.Backtrace.From)),
				"to":      state.Int(int64(step.Backtrace.To)),
				"changes": list,
			}

		case step.Branch != nil:
			var flip uint16
			for _, name := range step.Branch.Flip {
				flip |= keyBits[name]
			}
			tape := testutil.TapeFromScript(scripts[step.Branch.Base].inputs, step.Branch.At, flip)
			outDir := filepath.Join(workdir, step.Branch.As)

			var res *replay.BranchResult
			res, err = replay.Branch(ctx, replay.BranchOptions{
				BaseDir:     dirs[step.Branch.Base],
				OutDir:      outDir,
				At:          step.Branch.At,
				Tape:        tape,
				Program:     sim.New(),
				Volatile:    sim.Volatile,
				ToolchainID: "geoul-harness",
				Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
			})
			if err != nil {
				break
			}
			dirs[step.Branch.As] = outDir
			ev = state.Object{
				"op":     state.String("branch"),
				"base":   state.String(step.Branch.Base),
				"bundle": state.String(step.Branch.As),
				"at":     state.Int(int64(step.Branch.At)),
				"frames": state.Int(int64(res.Summary.FrameCount)),
			}
			if res.FirstDivergeMadi != nil {
				ev["first_diverge_madi"] = state.Int(int64(*res.FirstDivergeMadi))
			}

		case step.Diff != nil:
			var report *diff.Report
			report, err = diff.Compare(dirs[step.Diff.Left], dirs[step.Diff.Right])
			if err != nil {
				break
			}
			ev = state.Object{
				"op":    state.String("diff"),
				"left":  state.String(step.Diff.Left),
				"right": state.String(step.Diff.Right),
				"equal": state.Bool(report.Equal),
			}
			if report.FirstDivergeMadi != nil {
				ev["first_diverge_madi"] = state.Int(int64(*report.FirstDivergeMadi))
				ev["kind"] = state.String(report.DivergeKind)
			}
		}

		if err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
		result.Events = append(result.Events, ev)
	}
	return result, nil
}
