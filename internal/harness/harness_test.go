package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func TestRun_Scenarios(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		t.Run(name, func(t *testing.T) {
			result, err := Run(loadTestScenario(t, name))
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_Golden(t *testing.T) {
	for _, name := range []string{"push-on-tick", "retained-event"} {
		t.Run(name, func(t *testing.T) {
			result, err := RunWithGolden(t, loadTestScenario(t, name))
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_Deterministic(t *testing.T) {
	s := loadTestScenario(t, "armed-counter")

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	assert.Equal(t, first.Trace, second.Trace)
}

func TestRun_FailedAssertionsReported(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: wrong
description: every assertion is wrong
steps:
  - script: (print "a")
assertions:
  - type: runs
    count: 2
  - type: vm_state
    state: created
  - type: stdout_contains
    text: b
  - type: error_contains
    text: anything
  - type: outgoing_count
    event: x
    count: 1
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 5)
	assert.Contains(t, result.Errors[0], "Assertion failed: runs")
	assert.Contains(t, result.Errors[1], "Actual: destroyed")
	assert.Contains(t, result.Errors[2], `stdout output containing "b"`)
	assert.Contains(t, result.Errors[4], "devices/test-device/script")
}

func TestRun_CustomDevice(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: custom
description: output goes to the named device
device: lamp-3
steps:
  - script: (log "on")
assertions:
  - type: runs
    count: 1
`))
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	assert.Equal(t, []string{"on"}, result.Published("devices/lamp-3/log"))
}

func TestTraceSnapshot_Canonical(t *testing.T) {
	snap := TraceSnapshot{
		ScenarioName: "s",
		Trace:        []TraceEvent{{Seq: 1, Topic: "a/b", Payload: `{"k":1}`}},
	}
	got, err := snap.Canonical()
	require.NoError(t, err)
	assert.Equal(t, `{"scenario_name":"s","trace":[{"payload":"{\"k\":1}","seq":1,"topic":"a/b"}]}`, string(got))
}
