package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/aether/internal/ir"
)

// ResponseSnapshot captures every batch outcome of a scenario execution.
// It is serialized as canonical JSON for deterministic comparison.
type ResponseSnapshot struct {
	ScenarioName string         `json:"scenario_name"`
	Outcomes     []BatchOutcome `json:"outcomes"`
}

// MarshalGolden renders the canonical golden form of a result.
func MarshalGolden(scenarioName string, result *Result) ([]byte, error) {
	snap := ResponseSnapshot{
		ScenarioName: scenarioName,
		Outcomes:     result.Outcomes,
	}
	return ir.MarshalCanonical(snap)
}

// RunWithGolden executes a scenario and compares its responses against a
// golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if responses don't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := MarshalGolden(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
