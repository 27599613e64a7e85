package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/aether/internal/ir"
)

// Scenario defines a conformance test scenario.
// A scenario submits batches in order against a fresh store and asserts on
// each response and on the final exported state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Clock fixes the ingestion clock. Defaults to testutil.Epoch, frozen.
	Clock ClockSpec `yaml:"clock,omitempty"`

	// Batches are submitted in order. Each must carry request or raw.
	Batches []BatchStep `yaml:"batches"`

	// Assertions validate the final state.
	// Supported types: final_state, row_count, verdict_count
	Assertions []Assertion `yaml:"assertions"`
}

// ClockSpec configures the deterministic ingestion clock.
type ClockSpec struct {
	// Start is an RFC 3339 instant.
	Start string `yaml:"start,omitempty"`

	// Step is added after every reading, as a Go duration ("1s").
	Step string `yaml:"step,omitempty"`
}

// BatchStep is one submission.
type BatchStep struct {
	// Request is the batch body, written as YAML and sent as JSON.
	Request map[string]interface{} `yaml:"request,omitempty"`

	// Raw is sent verbatim. Used for bodies YAML cannot express.
	Raw string `yaml:"raw,omitempty"`

	// Expect specifies the expected response.
	// If nil, the batch is only required to be accepted by the gate.
	Expect *BatchExpect `yaml:"expect,omitempty"`
}

// BatchExpect specifies expected batch behavior.
type BatchExpect struct {
	// Error is the expected batch-level error code (e.g. SCHEMA_INVALID).
	// When set, no other field is checked.
	Error string `yaml:"error,omitempty"`

	// Statuses lists the verdict for every event, in order.
	Statuses []string `yaml:"statuses,omitempty"`

	Rejected  *int `yaml:"rejected,omitempty"`
	Duplicate *int `yaml:"duplicate,omitempty"`

	// NextSeqExpected is checked when set. Use absent_next_seq to assert
	// the field is missing.
	NextSeqExpected *int64 `yaml:"next_seq_expected,omitempty"`
	AbsentNextSeq   bool   `yaml:"absent_next_seq,omitempty"`

	// Results are subset matches on individual verdicts.
	Results []ResultExpect `yaml:"results,omitempty"`
}

// ResultExpect matches fields of one verdict. Empty fields are not checked.
type ResultExpect struct {
	Index   int    `yaml:"index"`
	Status  string `yaml:"status,omitempty"`
	Code    string `yaml:"code,omitempty"`
	Message string `yaml:"message,omitempty"`
}

// Assertion validates the final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "final_state": Query an exported table and verify expected values
	// - "row_count": Count rows of an exported table matching where
	// - "verdict_count": Count verdicts with a status across all batches
	Type string `yaml:"type"`

	// Table is the snapshot table name (final_state, row_count).
	Table string `yaml:"table,omitempty"`

	// Where specifies query filters (final_state, row_count).
	// All fields must match exactly.
	Where map[string]interface{} `yaml:"where,omitempty"`

	// Expect contains expected column values (final_state).
	// Subset match - only specified columns are validated.
	Expect map[string]interface{} `yaml:"expect,omitempty"`

	// Status is the verdict status (verdict_count).
	Status string `yaml:"status,omitempty"`

	// Count is the expected number of rows or verdicts.
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertFinalState   = "final_state"
	AssertRowCount     = "row_count"
	AssertVerdictCount = "verdict_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

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

// LoadDir loads every *.yaml and *.yml scenario in dir, sorted by file name.
func LoadDir(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// Body returns the bytes submitted for this step.
func (b BatchStep) Body() ([]byte, error) {
	if b.Raw != "" {
		return []byte(b.Raw), nil
	}
	data, err := json.Marshal(b.Request)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return data, nil
}

// parse returns the configured clock start and step.
func (c ClockSpec) parse(defaultStart time.Time) (time.Time, time.Duration, error) {
	start := defaultStart
	if c.Start != "" {
		t, err := time.Parse(time.RFC3339Nano, c.Start)
		if err != nil {
			return time.Time{}, 0, fmt.Errorf("clock.start: %w", err)
		}
		start = t
	}
	var step time.Duration
	if c.Step != "" {
		d, err := time.ParseDuration(c.Step)
		if err != nil {
			return time.Time{}, 0, fmt.Errorf("clock.step: %w", err)
		}
		step = d
	}
	return start, step, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Batches) == 0 {
		return fmt.Errorf("batches list is required and must be non-empty")
	}

	if _, _, err := s.Clock.parse(time.Time{}); err != nil {
		return err
	}

	for i, b := range s.Batches {
		if b.Request == nil && b.Raw == "" {
			return fmt.Errorf("batches[%d]: request or raw is required", i)
		}
		if b.Request != nil && b.Raw != "" {
			return fmt.Errorf("batches[%d]: request and raw are mutually exclusive", i)
		}
		if b.Expect == nil {
			continue
		}
		for _, st := range b.Expect.Statuses {
			if !validStatus(st) {
				return fmt.Errorf("batches[%d].expect: unknown status %q", i, st)
			}
		}
		for j, r := range b.Expect.Results {
			if r.Status != "" && !validStatus(r.Status) {
				return fmt.Errorf("batches[%d].expect.results[%d]: unknown status %q", i, j, r.Status)
			}
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validStatus(s string) bool {
	switch ir.VerdictStatus(s) {
	case ir.StatusAccepted, ir.StatusRejected, ir.StatusDuplicate:
		return true
	}
	return false
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertRowCount:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for row_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for row_count", index)
		}
	case AssertVerdictCount:
		if !validStatus(a.Status) {
			return fmt.Errorf("assertions[%d]: status must be ACCEPTED, REJECTED or DUPLICATE for verdict_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for verdict_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
