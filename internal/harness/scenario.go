package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/invsync/internal/command"
)

// Scenario defines a conformance test scenario.
// It seeds an authority, drives an engine through a list of steps and
// asserts on the resulting trace.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Rules overrides economy rules. It is validated like a rules file.
	Rules map[string]any `yaml:"rules,omitempty"`

	// Inventory seeds the authority. Items use the inventory JSON field
	// names; uids may be omitted and are then assigned in order from 1.
	Inventory []map[string]any `yaml:"inventory"`

	// Steps drive the engine in order.
	Steps []Step `yaml:"steps"`

	// SendFailures inject failures by 1-based send call.
	SendFailures []SendFailure `yaml:"send_failures,omitempty"`

	// ResyncFailures makes the first N snapshot fetches fail.
	ResyncFailures int `yaml:"resync_failures,omitempty"`

	// ResyncAttempts bounds fetches per recovery. Defaults to 3.
	ResyncAttempts int `yaml:"resync_attempts,omitempty"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is exactly one of a dispatch, a wait or a retry.
//
// Sends are held while steps run and released by wait, so every command
// dispatched between two waits is queued before the first of them is sent.
type Step struct {
	// Dispatch is the action to dispatch, with Args as its payload.
	Dispatch string         `yaml:"dispatch,omitempty"`
	Args     map[string]any `yaml:"args,omitempty"`

	// Expect is the expected dispatch outcome: queued (default) or
	// precondition.
	Expect string `yaml:"expect,omitempty"`

	// Wait releases held sends and blocks until the engine settles.
	Wait bool `yaml:"wait,omitempty"`

	// Retry invokes an explicit resync.
	Retry bool `yaml:"retry,omitempty"`
}

// SendFailure makes one send call fail.
type SendFailure struct {
	// Call is the 1-based send call index.
	Call int `yaml:"call"`

	// Error is transport or rejected.
	Error string `yaml:"error"`

	// Applied commits the command before failing, as if the response was
	// lost on the way back.
	Applied bool `yaml:"applied,omitempty"`
}

// Assertion validates the trace or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Action is used by sent_count.
	Action string `yaml:"action,omitempty"`

	// Actions is the expected send order (sent_order).
	Actions []string `yaml:"actions,omitempty"`

	// Kind is used by event_count.
	Kind string `yaml:"kind,omitempty"`

	// Kinds is the expected event order (event_order).
	Kinds []string `yaml:"kinds,omitempty"`

	// Count is the expected number of occurrences.
	Count int `yaml:"count,omitempty"`

	// UID selects the item for final_item and item_absent.
	UID int64 `yaml:"uid,omitempty"`

	// Expect holds expected item fields (final_item). Subset match.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Value is the expected synced_at.
	Value *int64 `yaml:"value,omitempty"`
}

// Assertion type constants.
const (
	AssertSentOrder  = "sent_order"
	AssertSentCount  = "sent_count"
	AssertEventOrder = "event_order"
	AssertEventCount = "event_count"
	AssertFinalItem  = "final_item"
	AssertSyncedAt   = "synced_at"
	AssertItemAbsent = "item_absent"
)

// Dispatch outcomes.
const (
	OutcomeQueued       = "queued"
	OutcomePrecondition = "precondition"
)

// Send failure kinds.
const (
	FailTransport = "transport"
	FailRejected  = "rejected"
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
	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml file in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	slices.Sort(paths)

	out := make([]*Scenario, 0, len(paths))
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		out = append(out, s)
	}
	return out, nil
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
	if s.ResyncFailures < 0 {
		return fmt.Errorf("resync_failures must be non-negative")
	}
	if s.ResyncAttempts < 0 {
		return fmt.Errorf("resync_attempts must be non-negative")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	seen := map[int]bool{}
	for i, f := range s.SendFailures {
		if f.Call < 1 {
			return fmt.Errorf("send_failures[%d]: call must be at least 1", i)
		}
		if seen[f.Call] {
			return fmt.Errorf("send_failures[%d]: call %d listed twice", i, f.Call)
		}
		seen[f.Call] = true
		if f.Error != FailTransport && f.Error != FailRejected {
			return fmt.Errorf("send_failures[%d]: error must be %q or %q", i, FailTransport, FailRejected)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step *Step) error {
	ops := 0
	if step.Dispatch != "" {
		ops++
	}
	if step.Wait {
		ops++
	}
	if step.Retry {
		ops++
	}
	if ops != 1 {
		return fmt.Errorf("steps[%d]: exactly one of dispatch, wait, retry is required", index)
	}

	if step.Dispatch == "" {
		if step.Args != nil || step.Expect != "" {
			return fmt.Errorf("steps[%d]: args and expect only apply to dispatch", index)
		}
		return nil
	}
	if !slices.Contains(command.Actions(), command.Action(step.Dispatch)) {
		return fmt.Errorf("steps[%d]: unknown action %q", index, step.Dispatch)
	}
	if step.Args == nil {
		return fmt.Errorf("steps[%d]: args is required (use empty map if no args)", index)
	}
	switch step.Expect {
	case "", OutcomeQueued, OutcomePrecondition:
	default:
		return fmt.Errorf("steps[%d]: unknown expect %q", index, step.Expect)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertSentOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for sent_order", index)
		}
	case AssertSentCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for sent_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for sent_count", index)
		}
	case AssertEventOrder:
		if len(a.Kinds) == 0 {
			return fmt.Errorf("assertions[%d]: kinds list is required for event_order", index)
		}
	case AssertEventCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for event_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for event_count", index)
		}
	case AssertFinalItem:
		if a.UID <= 0 {
			return fmt.Errorf("assertions[%d]: uid is required for final_item", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_item", index)
		}
	case AssertItemAbsent:
		if a.UID <= 0 {
			return fmt.Errorf("assertions[%d]: uid is required for item_absent", index)
		}
	case AssertSyncedAt:
		if a.Value == nil {
			return fmt.Errorf("assertions[%d]: value is required for synced_at", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q (known: %s)",
			index, a.Type, strings.Join(knownAssertionTypes(), ", "))
	}
	return nil
}
