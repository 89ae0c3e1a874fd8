package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarioGoldenTraces(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files, "no scenario files found")

	for _, file := range files {
		sc, err := LoadScenario(file)
		require.NoError(t, err, file)

		t.Run(sc.Name, func(t *testing.T) {
			RunWithGolden(t, sc)
		})
	}
}

func TestRunIsReproducible(t *testing.T) {
	sc, err := LoadScenario(filepath.Join("testdata", "scenarios", "branch_divergence.yaml"))
	require.NoError(t, err)

	first, err := Run(context.Background(), sc, t.TempDir())
	require.NoError(t, err)
	second, err := Run(context.Background(), sc, t.TempDir())
	require.NoError(t, err)

	a, err := first.CanonicalTrace()
	require.NoError(t, err)
	b, err := second.CanonicalTrace()
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestLoadScenarioValidation(t *testing.T) {
	cases := map[string]string{
		"missing name": `
ticks: 4
seed: 1
steps:
  - record: {as: base}
`,
		"zero ticks": `
name: bad
seed: 1
steps:
  - record: {as: base}
`,
		"no steps": `
name: bad
ticks: 4
seed: 1
steps: []
`,
		"unknown bundle": `
name: bad
ticks: 4
seed: 1
steps:
  - query: {bundle: ghost, madi: 0, key: gold}
`,
		"duplicate alias": `
name: bad
ticks: 4
seed: 1
steps:
  - record: {as: base}
  - record: {as: base}
`,
		"unknown flip key": `
name: bad
ticks: 4
seed: 1
steps:
  - record: {as: base}
  - branch: {base: base, as: fork, at: 1, flip: [warp]}
`,
		"two ops in one step": `
name: bad
ticks: 4
seed: 1
steps:
  - record: {as: base}
    verify: {bundle: base}
`,
		"bad trace tier": `
name: bad
ticks: 4
seed: 1
trace_tier: chatty
steps:
  - record: {as: base}
`,
	}

	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "scenario.yaml")
			require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

			_, err := LoadScenario(path)
			assert.Error(t, err)
		})
	}
}

func TestRunQueryOutsideRangeFails(t *testing.T) {
	sc := &Scenario{
		Name:  "oob",
		Ticks: 3,
		Seed:  1,
		Steps: []Step{
			{Record: &RecordStep{As: "base"}},
			{Query: &QueryStep{Bundle: "base", Madi: 99, Key: "gold"}},
		},
	}
	require.NoError(t, sc.validate())

	_, err := Run(context.Background(), sc, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside recorded range")
}
