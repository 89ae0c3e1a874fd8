package harness

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/geoul/internal/bundle"
	"github.com/roach88/geoul/internal/sim"
)

// Scenario defines an end-to-end harness run: one deterministic input
// script driving the demo evaluator through record, replay, branch and
// diff steps. The same scenario always produces the same trace, so the
// trace is compared against a golden file.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario exercises.
	Description string `yaml:"description,omitempty"`

	// Ticks is the script length for every record step.
	Ticks int `yaml:"ticks"`

	// Seed drives the deterministic input script.
	Seed uint64 `yaml:"seed"`

	// TraceTier for recorded bundles. Defaults to "full".
	TraceTier string `yaml:"trace_tier,omitempty"`

	// CheckpointStride for recorded bundles. Defaults to 4, so short
	// scenarios still exercise checkpoint seeking.
	CheckpointStride uint64 `yaml:"checkpoint_stride,omitempty"`

	// NetEvents keeps the script's synthetic net events. Scenarios with
	// branch steps leave this off; a tape carries key masks only.
	NetEvents bool `yaml:"net_events,omitempty"`

	// Steps run in order. Each step appends one trace event.
	Steps []Step `yaml:"steps"`
}

// Step is one scenario operation. Exactly one field must be set.
type Step struct {
	Record    *RecordStep    `yaml:"record,omitempty"`
	Verify    *VerifyStep    `yaml:"verify,omitempty"`
	Query     *QueryStep     `yaml:"query,omitempty"`
	Backtrace *BacktraceStep `yaml:"backtrace,omitempty"`
	Branch    *BranchStep    `yaml:"branch,omitempty"`
	Diff      *DiffStep      `yaml:"diff,omitempty"`
}

// RecordStep records the scenario script into a fresh bundle.
type RecordStep struct {
	// As is the alias later steps refer to the bundle by.
	As string `yaml:"as"`
}

// VerifyStep re-hashes a bundle's log against its manifest.
type VerifyStep struct {
	Bundle string `yaml:"bundle"`
}

// QueryStep replays to a tick and captures one state key.
type QueryStep struct {
	Bundle string `yaml:"bundle"`
	Madi   uint64 `yaml:"madi"`
	Key    string `yaml:"key"`
}

// BacktraceStep replays a window and captures every change of a key.
type BacktraceStep struct {
	Bundle string `yaml:"bundle"`
	Key    string `yaml:"key"`
	From   uint64 `yaml:"from"`
	To     uint64 `yaml:"to"`
}

// BranchStep forks a recorded bundle at a tick, replaying the base
// script beyond the branch point as an input tape. Flip names key bits
// XORed into every replayed pressed mask, which forces a divergence one
// tick after the branch point.
type BranchStep struct {
	Base string   `yaml:"base"`
	As   string   `yaml:"as"`
	At   uint64   `yaml:"at"`
	Flip []string `yaml:"flip,omitempty"`
}

// DiffStep compares two bundles' recorded hash series.
type DiffStep struct {
	Left  string `yaml:"left"`
	Right string `yaml:"right"`
}

// keyBits maps scenario key names to the evaluator's mask bits.
var keyBits = map[string]uint16{
	"right":  sim.KeyRight,
	"left":   sim.KeyLeft,
	"up":     sim.KeyUp,
	"down":   sim.KeyDown,
	"gather": sim.KeyGather,
	"fight":  sim.KeyFight,
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := sc.validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	return &sc, nil
}

func (sc *Scenario) validate() error {
	if sc.Name == "" {
		return fmt.Errorf("name is required")
	}
	if sc.Ticks <= 0 {
		return fmt.Errorf("ticks must be positive")
	}
	if len(sc.Steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}
	if sc.TraceTier != "" {
		if _, err := bundle.ParseTraceTier(sc.TraceTier); err != nil {
			return err
		}
	}

	known := map[string]bool{}
	for i, step := range sc.Steps {
		set := 0
		if step.Record != nil {
			set++
			if step.Record.As == "" {
				return fmt.Errorf("step %d: record needs an alias", i)
			}
			if known[step.Record.As] {
				return fmt.Errorf("step %d: duplicate bundle alias %q", i, step.Record.As)
			}
			known[step.Record.As] = true
		}
		if step.Verify != nil {
			set++
			if !known[step.Verify.Bundle] {
				return fmt.Errorf("step %d: unknown bundle %q", i, step.Verify.Bundle)
			}
		}
		if step.Query != nil {
			set++
			if !known[step.Query.Bundle] {
				return fmt.Errorf("step %d: unknown bundle %q", i, step.Query.Bundle)
			}
			if step.Query.Key == "" {
				return fmt.Errorf("step %d: query needs a key", i)
			}
		}
		if step.Backtrace != nil {
			set++
			if !known[step.Backtrace.Bundle] {
				return fmt.Errorf("step %d: unknown bundle %q", i, step.Backtrace.Bundle)
			}
			if step.Backtrace.Key == "" {
				return fmt.Errorf("step %d: backtrace needs a key", i)
			}
		}
		if step.Branch != nil {
			set++
			if !known[step.Branch.Base] {
				return fmt.Errorf("step %d: unknown bundle %q", i, step.Branch.Base)
			}
			if step.Branch.As == "" || known[step.Branch.As] {
				return fmt.Errorf("step %d: branch needs a fresh alias", i)
			}
			known[step.Branch.As] = true
			for _, name := range step.Branch.Flip {
				if _, ok := keyBits[name]; !ok {
					return fmt.Errorf("step %d: unknown key %q", i, name)
				}
			}
		}
		if step.Diff != nil {
			set++
			if !known[step.Diff.Left] || !known[step.Diff.Right] {
				return fmt.Errorf("step %d: diff references unknown bundle", i)
			}
		}
		if set != 1 {
			return fmt.Errorf("step %d: exactly one operation per step, got %d", i, set)
		}
	}
	return nil
}
