package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/syncbridge/internal/resolve"
)

// Scenario is one reconciliation run with expected outcome.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Low and High are snapshot files. Relative paths are resolved against
	// the scenario file's directory by LoadScenario.
	Low  string `yaml:"low"`
	High string `yaml:"high"`

	// Decision applies one side to every batch. When empty, Sides are
	// consumed one per changed batch.
	Decision            string   `yaml:"decision,omitempty"`
	Sides               []string `yaml:"sides,omitempty"`
	SharePrivateObjects bool     `yaml:"share_private_objects,omitempty"`

	// Answers are typed into private sharing prompts in order.
	Answers []string `yaml:"answers,omitempty"`

	// ExpectError is a substring the resolution error must contain.
	ExpectError string `yaml:"expect_error,omitempty"`

	Assertions []Assertion `yaml:"assertions"`
}

// Assertion checks one aspect of a Result.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Object is the object id (decision).
	Object string `yaml:"object,omitempty"`

	// Side, Mockify and Grants are checked when set (decision).
	Side    string `yaml:"side,omitempty"`
	Mockify *bool  `yaml:"mockify,omitempty"`
	Grants  *int   `yaml:"grants,omitempty"`

	// Count is the expected number (decision_count, skipped_batches).
	Count int `yaml:"count,omitempty"`

	// Objects is the exact expected id list (mockified, granted).
	Objects []string `yaml:"objects,omitempty"`
}

const (
	AssertDecision       = "decision"
	AssertDecisionCount  = "decision_count"
	AssertSkippedBatches = "skipped_batches"
	AssertMockified      = "mockified"
	AssertGranted        = "granted"
)

// LoadScenario reads a scenario file. Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	for _, p := range []*string{&scenario.Low, &scenario.High} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(base, *p)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Low == "" || s.High == "" {
		return fmt.Errorf("low and high snapshots are required")
	}
	for _, p := range []string{s.Low, s.High} {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return fmt.Errorf("snapshot file not found: %s", p)
		}
	}
	if s.Decision != "" {
		if _, err := resolve.ParseSide(s.Decision); err != nil {
			return fmt.Errorf("decision: %w", err)
		}
	}
	for i, side := range s.Sides {
		if _, err := resolve.ParseSide(side); err != nil {
			return fmt.Errorf("sides[%d]: %w", i, err)
		}
	}
	if len(s.Assertions) == 0 && s.ExpectError == "" {
		return fmt.Errorf("assertions list is required unless expect_error is set")
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertDecision:
		if a.Object == "" {
			return fmt.Errorf("assertions[%d]: object is required for decision", index)
		}
		if a.Side != "" {
			if _, err := resolve.ParseSide(a.Side); err != nil {
				return fmt.Errorf("assertions[%d]: %w", index, err)
			}
		}
	case AssertDecisionCount, AssertSkippedBatches:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertMockified, AssertGranted:
		if a.Objects == nil {
			return fmt.Errorf("assertions[%d]: objects is required for %s (use [] for none)", index, a.Type)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
