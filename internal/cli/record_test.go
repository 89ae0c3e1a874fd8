package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/geoul/internal/bundle"
)

func recordViaCLI(t *testing.T, dir string, extra ...string) {
	t.Helper()
	args := append([]string{"record", "--out", dir, "--ticks", "6", "--seed", "3"}, extra...)
	out, err := execute(t, args...)
	require.NoError(t, err)
	assert.Contains(t, out, "recorded 6 frames")
}

func TestRecordAndInfo(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "base")
	recordViaCLI(t, dir)

	out, err := execute(t, "info", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "run id:")
	assert.Contains(t, out, "[0, 6) (6 frames)")
}

func TestRecordRefusesExistingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "base")
	recordViaCLI(t, dir)

	_, err := execute(t, "record", "--out", dir, "--ticks", "6")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRecordWithProfile(t *testing.T) {
	tmp := t.TempDir()
	profilePath := filepath.Join(tmp, "p.cue")
	require.NoError(t, os.WriteFile(profilePath, []byte(`
		profile: {
			name:              "cli-test"
			checkpoint_stride: 2
			trace_tier:        "patch"
		}
	`), 0o644))

	dir := filepath.Join(tmp, "base")
	recordViaCLI(t, dir, "--profile", profilePath)

	m, err := bundle.LoadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), m.CheckpointStride)
	assert.Equal(t, "patch", m.TraceTier)
}

func TestRecordBadProfile(t *testing.T) {
	tmp := t.TempDir()
	profilePath := filepath.Join(tmp, "p.cue")
	require.NoError(t, os.WriteFile(profilePath, []byte(`profile: name: ""`), 0o644))

	_, err := execute(t, "record", "--out", filepath.Join(tmp, "base"), "--profile", profilePath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRecordJSONOutput(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "base")
	out, err := execute(t, "--format", "json", "record", "--out", dir, "--ticks", "4")
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(4), data["frame_count"])
	assert.NotEmpty(t, data["run_id"])
}

func TestVerifyCommand(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "base")
	recordViaCLI(t, dir)

	out, err := execute(t, "verify", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "ok:")
}

func TestVerifyDetectsCorruption(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "base")
	recordViaCLI(t, dir)

	logPath := filepath.Join(dir, bundle.LogFileName)
	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(logPath, data, 0o644))

	_, err = execute(t, "verify", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestVerifyNotABundle(t *testing.T) {
	_, err := execute(t, "verify", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
