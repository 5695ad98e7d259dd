package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	harnessScenarios = "../harness/testdata/scenarios"
	harnessGolden    = "../harness/testdata/golden"
)

func testCommand(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewTestCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func writeScenario(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name+".yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

const printScenario = `name: prints
steps:
  - script: (print "hi")
assertions:
  - type: stdout_contains
    text: hi
  - type: runs
    count: 1
`

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := testCommand(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg")
}

func TestTestCommandNonExistentPath(t *testing.T) {
	_, err := testCommand(t, "text", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenario path not found")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandEmptyDir(t *testing.T) {
	out, err := testCommand(t, "text", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTestCommandHarnessScenarios(t *testing.T) {
	out, err := testCommand(t, "text", harnessScenarios, "--golden", harnessGolden)
	require.NoError(t, err)

	assert.Contains(t, out, "✓ push-on-tick")
	assert.Contains(t, out, "✓ retained-event")
	assert.Contains(t, out, "✓ dedup")
	assert.Contains(t, out, "Test Summary: 5 passed, 0 failed, 5 total")
	assert.Contains(t, out, "All scenarios passed")
}

func TestTestCommandFilter(t *testing.T) {
	out, err := testCommand(t, "json", harnessScenarios, "--filter", "push-*")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Data.Total)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "push-on-tick", resp.Data.Scenarios[0].Name)
}

func TestTestCommandFailingScenario(t *testing.T) {
	dir := t.TempDir()
	writeScenario(t, dir, "wrong", `name: wrong
steps:
  - script: (print "hi")
assertions:
  - type: runs
    count: 5
`)

	out, err := testCommand(t, "json", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeTestFailed, resp.Error.Code)
}

func TestTestCommandLoadError(t *testing.T) {
	dir := t.TempDir()
	file := writeScenario(t, dir, "broken", "name: broken\nsteps: [\n")

	out, err := testCommand(t, "text", file)
	require.Error(t, err)
	assert.Contains(t, out, "failed to load scenario")
}

func TestTestCommandGoldenUpdateAndCompare(t *testing.T) {
	dir := t.TempDir()
	goldenDir := filepath.Join(dir, "golden")
	file := writeScenario(t, dir, "prints", printScenario)

	// Without a golden file the assertions decide.
	_, err := testCommand(t, "text", file, "--golden", goldenDir)
	require.NoError(t, err)

	_, err = testCommand(t, "text", file, "--golden", goldenDir, "--update")
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(goldenDir, "prints.golden"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"scenario_name":"prints"`)
	assert.Contains(t, string(data), `devices/test-device/stdout`)

	_, err = testCommand(t, "text", file, "--golden", goldenDir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(goldenDir, "prints.golden"), []byte(`{}`), 0644))
	out, err := testCommand(t, "text", file, "--golden", goldenDir)
	require.Error(t, err)
	assert.Contains(t, out, "does not match golden file")
}

func TestTestCommandUpdateRequiresGolden(t *testing.T) {
	_, err := testCommand(t, "text", t.TempDir(), "--update")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--update requires --golden")
}
