package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/hoarder/internal/record"
)

// Scenario is a scripted sequence of store operations with expectations.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Steps run in order against a fresh store.
	Steps []Step `yaml:"steps"`

	// Assertions are checked after the last step.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one store operation.
type Step struct {
	// Op is one of the Op* constants.
	Op string `yaml:"op"`

	// Field selects the attribute set by create: code, localized or original.
	Field string `yaml:"field,omitempty"`

	// Value is the attribute value for create, the code for create_unique
	// and exists.
	Value string `yaml:"value,omitempty"`

	// As binds the identity returned by create or create_unique to an alias.
	As string `yaml:"as,omitempty"`

	// Ref names the target of update and delete. An unbound ref is used as
	// a literal identity, which lets scenarios address missing records.
	Ref string `yaml:"ref,omitempty"`

	// Code, Localized and Original are the full replacement values for update.
	Code      string `yaml:"code,omitempty"`
	Localized string `yaml:"localized,omitempty"`
	Original  string `yaml:"original,omitempty"`

	// Query is the search text.
	Query string `yaml:"query,omitempty"`

	// Expect is a bool for exists and create_unique, or the expected display
	// titles for search and list.
	Expect *Expect `yaml:"expect,omitempty"`

	// ExpectError names the error the step must fail with.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Step operations.
const (
	OpCreate       = "create"
	OpCreateUnique = "create_unique"
	OpUpdate       = "update"
	OpDelete       = "delete"
	OpExists       = "exists"
	OpSearch       = "search"
	OpList         = "list"
)

// Expected error names.
const (
	ErrorNotFound = "not_found"
)

// Expect holds either a boolean or a list of display titles.
type Expect struct {
	Bool   *bool
	Titles []string
	IsList bool
}

// UnmarshalYAML accepts a boolean scalar or a sequence of strings.
func (e *Expect) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var b bool
		if err := node.Decode(&b); err != nil {
			return fmt.Errorf("line %d: expect must be a bool or a list of titles", node.Line)
		}
		e.Bool = &b
	case yaml.SequenceNode:
		titles := []string{}
		if err := node.Decode(&titles); err != nil {
			return fmt.Errorf("line %d: expect list: %w", node.Line, err)
		}
		e.Titles = titles
		e.IsList = true
	default:
		return fmt.Errorf("line %d: expect must be a bool or a list of titles", node.Line)
	}
	return nil
}

// Assertion validates the state left behind by a scenario.
type Assertion struct {
	// Type specifies the assertion type:
	// - "final_state": display titles of every record, in insertion order
	// - "change_count": number of change batches delivered, initial included
	Type string `yaml:"type"`

	// Titles are the expected display titles (used by final_state).
	Titles []string `yaml:"titles,omitempty"`

	// Count is the expected number of batches (used by change_count).
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertFinalState  = "final_state"
	AssertChangeCount = "change_count"
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

// ParseScenario decodes a scenario from YAML bytes.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict decoding catches typos like "step:" vs "steps:"
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

	aliases := make(map[string]bool)
	for i, step := range s.Steps {
		if err := validateStep(i, step, aliases); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(i int, step Step, aliases map[string]bool) error {
	switch step.Op {
	case OpCreate:
		if _, err := record.ParseField(step.Field); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
		if step.Expect != nil {
			return fmt.Errorf("steps[%d]: expect is not supported for create", i)
		}
	case OpCreateUnique:
		if step.Expect != nil && step.Expect.Bool == nil {
			return fmt.Errorf("steps[%d]: expect must be a bool for create_unique", i)
		}
	case OpUpdate, OpDelete:
		if step.Ref == "" {
			return fmt.Errorf("steps[%d]: ref is required for %s", i, step.Op)
		}
		if step.Expect != nil {
			return fmt.Errorf("steps[%d]: expect is not supported for %s", i, step.Op)
		}
	case OpExists:
		if step.Expect == nil || step.Expect.Bool == nil {
			return fmt.Errorf("steps[%d]: expect must be a bool for exists", i)
		}
	case OpSearch, OpList:
		if step.Op == OpList && step.Query != "" {
			return fmt.Errorf("steps[%d]: query is not supported for list", i)
		}
		if step.Expect != nil && !step.Expect.IsList {
			return fmt.Errorf("steps[%d]: expect must be a list of titles for %s", i, step.Op)
		}
	case "":
		return fmt.Errorf("steps[%d]: op is required", i)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
	}

	if step.ExpectError != "" {
		if step.ExpectError != ErrorNotFound {
			return fmt.Errorf("steps[%d]: unknown expect_error %q", i, step.ExpectError)
		}
		if step.Op != OpUpdate && step.Op != OpDelete {
			return fmt.Errorf("steps[%d]: expect_error is only supported for update and delete", i)
		}
	}

	if step.As != "" {
		if step.Op != OpCreate && step.Op != OpCreateUnique {
			return fmt.Errorf("steps[%d]: as is only supported for create and create_unique", i)
		}
		if aliases[step.As] {
			return fmt.Errorf("steps[%d]: alias %q already bound", i, step.As)
		}
		aliases[step.As] = true
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	switch a.Type {
	case AssertFinalState:
		if a.Titles == nil {
			return fmt.Errorf("assertions[%d]: titles is required for final_state", index)
		}
	case AssertChangeCount:
		if a.Count < 1 {
			return fmt.Errorf("assertions[%d]: count must be at least 1 for change_count", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// createCount returns how many identities the scenario can consume.
func (s *Scenario) createCount() int {
	n := 0
	for _, step := range s.Steps {
		if step.Op == OpCreate || step.Op == OpCreateUnique {
			n++
		}
	}
	return n
}
