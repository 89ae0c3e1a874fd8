package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// RunWithGolden executes a scenario and compares its canonical trace
// against testdata/golden/<name>.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, sc *Scenario) {
	t.Helper()

	result, err := Run(context.Background(), sc, t.TempDir())
	if err != nil {
		t.Fatalf("scenario %s failed: %v", sc.Name, err)
	}

	trace, err := result.CanonicalTrace()
	if err != nil {
		t.Fatalf("marshal trace: %v", err)
	}

	g := goldie.New(t, goldie.WithFixtureDir("testdata/golden"))
	g.Assert(t, sc.Name, trace)
}
