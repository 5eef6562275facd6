package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var harnessScenarios = filepath.Join("..", "harness", "testdata", "scenarios")

// copyScenario copies a harness scenario into dir, applying replacements
// in order.
func copyScenario(t *testing.T, dir, name string, replace ...string) {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(harnessScenarios, name+".yaml"))
	require.NoError(t, err)
	src := string(data)
	for i := 0; i+1 < len(replace); i += 2 {
		require.Contains(t, src, replace[i])
		src = strings.Replace(src, replace[i], replace[i+1], 1)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".yaml"), []byte(src), 0644))
}

func TestTestCommand_MissingArgs(t *testing.T) {
	_, err := runCLI(t, []string{"test"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommand_MissingDir(t *testing.T) {
	_, err := runCLI(t, []string{"test", filepath.Join(t.TempDir(), "nope")})
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommand_EmptyDir(t *testing.T) {
	out, err := runCLI(t, []string{"test", t.TempDir()})
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTestCommand_EmptyDirJSON(t *testing.T) {
	out, err := runCLI(t, []string{"--format", "json", "test", t.TempDir()})
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Empty(t, resp.Data.Scenarios)
	assert.Zero(t, resp.Data.Total)
}

func TestTestCommand_HarnessScenarios(t *testing.T) {
	out, err := runCLI(t, []string{"test", harnessScenarios})
	require.NoError(t, err)
	assert.Contains(t, out, "✓ first_stage_solve")
	assert.Contains(t, out, "✓ two_step_stage")
	assert.Contains(t, out, "Test Summary: 4 passed, 0 failed, 4 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommand_UpdateThenCompare(t *testing.T) {
	dir := t.TempDir()
	copyScenario(t, dir, "first_stage_solve")
	copyScenario(t, dir, "disabled_stage")

	out, err := runCLI(t, []string{"test", dir, "--update"})
	require.NoError(t, err)
	assert.Contains(t, out, "✓ first_stage_solve (golden updated)")
	assert.FileExists(t, filepath.Join(dir, "golden", "first_stage_solve.golden"))
	assert.FileExists(t, filepath.Join(dir, "golden", "disabled_stage.golden"))

	// The golden directory is not scanned for scenarios.
	out, err = runCLI(t, []string{"test", dir})
	require.NoError(t, err)
	assert.Contains(t, out, "Test Summary: 2 passed, 0 failed, 2 total")
}

func TestTestCommand_GoldenMismatch(t *testing.T) {
	dir := t.TempDir()
	copyScenario(t, dir, "first_stage_solve")
	golden := filepath.Join(dir, "golden", "first_stage_solve.golden")
	require.NoError(t, os.MkdirAll(filepath.Dir(golden), 0755))
	require.NoError(t, os.WriteFile(golden, []byte("{}\n"), 0644))

	out, err := runCLI(t, []string{"test", dir})
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ first_stage_solve")
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestCommand_FailingScenario(t *testing.T) {
	dir := t.TempDir()
	copyScenario(t, dir, "first_stage_solve",
		"result: {outcome: solved, current_stage: 2,",
		"result: {outcome: solved, current_stage: 7,")

	out, err := runCLI(t, []string{"test", dir})
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "current_stage: expected 7, got 2")
	assert.Contains(t, out, "Test Summary: 0 passed, 1 failed, 1 total")
}

func TestTestCommand_FailingScenarioJSON(t *testing.T) {
	dir := t.TempDir()
	copyScenario(t, dir, "first_stage_solve",
		"result: {outcome: solved, current_stage: 2,",
		"result: {outcome: solved, current_stage: 7,")
	copyScenario(t, dir, "disabled_stage")

	out, err := runCLI(t, []string{"--format", "json", "test", dir})
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
		Error  *CLIError  `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeTestFailure, resp.Error.Code)
	assert.Equal(t, 1, resp.Data.Passed)
	assert.Equal(t, 1, resp.Data.Failed)
}

func TestTestCommand_Filter(t *testing.T) {
	out, err := runCLI(t, []string{"test", harnessScenarios, "--filter", "two_*"})
	require.NoError(t, err)
	assert.Contains(t, out, "✓ two_step_stage")
	assert.NotContains(t, out, "first_stage_solve")
	assert.Contains(t, out, "1 total")
}

func TestTestCommand_BadScenarioFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: broken\nbogus: 1\n"), 0644))

	out, err := runCLI(t, []string{"test", dir})
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}
