package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultStart is the clock reading scenarios begin at unless they set start.
const DefaultStart int64 = 1_700_000_000_000

// Scenario is one deterministic run of the sync core.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Start is the initial clock reading in epoch ms (default DefaultStart).
	Start int64 `yaml:"start,omitempty"`

	// Online is the initial connectivity (default true).
	Online *bool `yaml:"online,omitempty"`

	// Capacity caps the medium size in bytes. Zero means unlimited.
	Capacity int64 `yaml:"capacity,omitempty"`

	// Schema enables the built-in per-kind schemas on save.
	Schema bool `yaml:"schema,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one action against the store, queue, coordinator or environment.
type Step struct {
	// Action selects the step; see the Step* constants.
	Action string `yaml:"action"`

	// Kind and ID address an entity (save, delete, corrupt).
	Kind string `yaml:"kind,omitempty"`
	ID   string `yaml:"id,omitempty"`

	// Data is the save payload.
	Data map[string]any `yaml:"data,omitempty"`

	// Verb, Resource and Payload describe an enqueued operation.
	Verb     string `yaml:"verb,omitempty"`
	Resource string `yaml:"resource,omitempty"`
	Payload  any    `yaml:"payload,omitempty"`

	// Ms is the clock advance.
	Ms int64 `yaml:"ms,omitempty"`

	// After is the number of deliveries to let through before failing.
	After int `yaml:"after,omitempty"`

	// Count is the number of deliveries to fail.
	Count int `yaml:"count,omitempty"`

	// Raw is the bytes written by corrupt and legacy.
	Raw string `yaml:"raw,omitempty"`

	// Expect checks the step outcome. Without it any error fails the scenario.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect specifies the expected outcome of one step.
type Expect struct {
	// Error is the expected error code (e.g. NOT_FOUND, VALIDATION).
	Error string `yaml:"error,omitempty"`

	// Result is a subset match against the step's result fields.
	Result map[string]any `yaml:"result,omitempty"`
}

// Step actions.
const (
	StepSave    = "save"
	StepDelete  = "delete"
	StepEnqueue = "enqueue"
	StepSync    = "sync"
	StepFail    = "fail"
	StepAdvance = "advance"
	StepOnline  = "online"
	StepOffline = "offline"
	StepRestart = "restart"
	StepCorrupt = "corrupt"
	StepLegacy  = "legacy"
	StepMigrate = "migrate"
)

// Assertion validates final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Kind and ID address an entity (entity, entity_absent, entity_count).
	Kind string `yaml:"kind,omitempty"`
	ID   string `yaml:"id,omitempty"`

	// Expect holds expected record fields (entity). Subset match.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected size (entity_count, queue_length, quarantined).
	Count int `yaml:"count,omitempty"`

	// Resources is the expected resource order (queue_order, delivered).
	Resources []string `yaml:"resources,omitempty"`
}

// Assertion types.
const (
	AssertEntity       = "entity"
	AssertEntityAbsent = "entity_absent"
	AssertEntityCount  = "entity_count"
	AssertQueueLength  = "queue_length"
	AssertQueueOrder   = "queue_order"
	AssertDelivered    = "delivered"
	AssertQuarantined  = "quarantined"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos surface as errors.
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
	decoder.KnownFields(true)
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
	if s.Capacity < 0 {
		return fmt.Errorf("capacity must be >= 0")
	}

	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("step %d (%s): %w", i, step.Action, err)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertion %d (%s): %w", i, a.Type, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	switch step.Action {
	case StepSave, StepDelete, StepCorrupt:
		if step.Kind == "" || step.ID == "" {
			return fmt.Errorf("kind and id are required")
		}
	case StepEnqueue:
		if step.Verb == "" || step.Resource == "" {
			return fmt.Errorf("verb and resource are required")
		}
	case StepAdvance:
		if step.Ms <= 0 {
			return fmt.Errorf("ms must be > 0")
		}
	case StepFail:
		if step.Count <= 0 || step.After < 0 {
			return fmt.Errorf("count must be > 0 and after >= 0")
		}
	case StepLegacy:
		if step.Raw == "" {
			return fmt.Errorf("raw is required")
		}
	case StepSync, StepOnline, StepOffline, StepRestart, StepMigrate:
	case "":
		return fmt.Errorf("action is required")
	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertEntity, AssertEntityAbsent:
		if a.Kind == "" || a.ID == "" {
			return fmt.Errorf("kind and id are required")
		}
	case AssertEntityCount:
		if a.Kind == "" {
			return fmt.Errorf("kind is required")
		}
	case AssertQueueLength, AssertQuarantined:
		if a.Count < 0 {
			return fmt.Errorf("count must be >= 0")
		}
	case AssertQueueOrder, AssertDelivered:
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
