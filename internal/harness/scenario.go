package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultDevice is the device id used when a scenario names none.
const DefaultDevice = "test-device"

// DefaultPeer is the sender id of events delivered by a scenario.
const DefaultPeer = "peer"

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Device is the device id. Defaults to DefaultDevice.
	Device string `yaml:"device,omitempty"`

	// Runtime overrides the engine budgets. Zero values keep the defaults.
	Runtime RuntimeOverrides `yaml:"runtime,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions are checked after the last step.
	Assertions []Assertion `yaml:"assertions"`
}

// RuntimeOverrides adjusts engine bounds for a scenario.
type RuntimeOverrides struct {
	ArenaBytes int `yaml:"arena_bytes,omitempty"`
	MaxSteps   int `yaml:"max_steps,omitempty"`
	MaxDepth   int `yaml:"max_depth,omitempty"`
}

// Step is one scenario action. Exactly one of Script, Event and Tick is set.
type Step struct {
	// Script delivers code on the device's script topic.
	Script *string `yaml:"script,omitempty"`

	// Persist is the persist flag sent with Script.
	Persist bool `yaml:"persist,omitempty"`

	// Event delivers an event published by another device.
	Event *EventStep `yaml:"event,omitempty"`

	// Tick advances the clock and ticks the engine.
	Tick *TickStep `yaml:"tick,omitempty"`
}

// EventStep describes an incoming event.
type EventStep struct {
	ID       string `yaml:"id"`
	Value    int32  `yaml:"value"`
	Sender   string `yaml:"sender,omitempty"`
	Retained bool   `yaml:"retained,omitempty"`
}

// TickStep advances the manual clock by AdvanceMS, then ticks, Count times.
type TickStep struct {
	Count     int `yaml:"count"`
	AdvanceMS int `yaml:"advance_ms"`
}

// Assertion validates the state after a run.
type Assertion struct {
	// Type specifies the assertion type:
	// - "outgoing_count": Event was published exactly Count times
	// - "vm_state": engine state equals State
	// - "stdout_contains": some stdout line contains Text
	// - "error_contains": some error line contains Text
	// - "runs": the engine ran Count scripts
	// - "ignored": the engine ignored Count duplicate scripts
	Type string `yaml:"type"`

	// Event is the event id (outgoing_count).
	Event string `yaml:"event,omitempty"`

	// Count is the expected number (outgoing_count, runs, ignored).
	Count int `yaml:"count,omitempty"`

	// State is the expected engine state name (vm_state).
	State string `yaml:"state,omitempty"`

	// Text is the expected substring (stdout_contains, error_contains).
	Text string `yaml:"text,omitempty"`
}

// Assertion type constants.
const (
	AssertOutgoingCount  = "outgoing_count"
	AssertVMState        = "vm_state"
	AssertStdoutContains = "stdout_contains"
	AssertErrorContains  = "error_contains"
	AssertRuns           = "runs"
	AssertIgnored        = "ignored"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		set := 0
		if step.Script != nil {
			set++
		}
		if step.Event != nil {
			set++
			if step.Event.ID == "" {
				return fmt.Errorf("steps[%d].event: id is required", i)
			}
		}
		if step.Tick != nil {
			set++
			if step.Tick.Count < 1 {
				return fmt.Errorf("steps[%d].tick: count must be at least 1", i)
			}
			if step.Tick.AdvanceMS < 0 {
				return fmt.Errorf("steps[%d].tick: advance_ms must be non-negative", i)
			}
		}
		if set != 1 {
			return fmt.Errorf("steps[%d]: exactly one of script, event, tick is required", i)
		}
		if step.Persist && step.Script == nil {
			return fmt.Errorf("steps[%d]: persist only applies to script steps", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertOutgoingCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for outgoing_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for outgoing_count", index)
		}
	case AssertVMState:
		if a.State == "" {
			return fmt.Errorf("assertions[%d]: state is required for vm_state", index)
		}
	case AssertStdoutContains, AssertErrorContains:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for %s", index, a.Type)
		}
	case AssertRuns, AssertIgnored:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
