package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	path := writeScenario(t, `
name: test_scenario
description: "Test scenario for validation"
clock:
  start: "2025-03-01T09:00:00Z"
  step: 1s
batches:
  - request:
      seqStart: 3
      events:
        - eventId: e-1
          eventKey: k-1
          kind: BIND
          payload: { tagUid: TAG-1, zoneId: Z-1 }
    expect:
      statuses: [ACCEPTED]
      next_seq_expected: 4
assertions:
  - type: row_count
    table: bindings
    count: 1
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "Test scenario for validation", scenario.Description)
	assert.Equal(t, "1s", scenario.Clock.Step)
	require.Len(t, scenario.Batches, 1)
	assert.Len(t, scenario.Assertions, 1)
	assert.Equal(t, 3, scenario.Batches[0].Request["seqStart"])
	require.NotNil(t, scenario.Batches[0].Expect.NextSeqExpected)
	assert.Equal(t, int64(4), *scenario.Batches[0].Expect.NextSeqExpected)

	body, err := scenario.Batches[0].Body()
	require.NoError(t, err)
	assert.JSONEq(t, `{"seqStart":3,"events":[{"eventId":"e-1","eventKey":"k-1","kind":"BIND","payload":{"tagUid":"TAG-1","zoneId":"Z-1"}}]}`, string(body))
}

func TestLoadScenario_RawBody(t *testing.T) {
	path := writeScenario(t, `
name: raw
description: "Raw body"
batches:
  - raw: "{broken"
    expect:
      error: SCHEMA_INVALID
`)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	body, err := scenario.Batches[0].Body()
	require.NoError(t, err)
	assert.Equal(t, "{broken", string(body))
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := writeScenario(t, `
name: typo
description: "Typo in key"
batches:
  - request: { events: [] }
assertion:
  - type: row_count
    table: bindings
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestLoadScenario_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name: "missing name",
			content: `
description: "d"
batches: [{ request: { events: [] } }]
`,
			wantErr: "name is required",
		},
		{
			name: "missing description",
			content: `
name: n
batches: [{ request: { events: [] } }]
`,
			wantErr: "description is required",
		},
		{
			name: "no batches",
			content: `
name: n
description: d
`,
			wantErr: "batches list is required",
		},
		{
			name: "empty step",
			content: `
name: n
description: d
batches: [{ expect: { error: SCHEMA_INVALID } }]
`,
			wantErr: "batches[0]: request or raw is required",
		},
		{
			name: "request and raw",
			content: `
name: n
description: d
batches: [{ request: { events: [] }, raw: "{}" }]
`,
			wantErr: "mutually exclusive",
		},
		{
			name: "unknown status",
			content: `
name: n
description: d
batches: [{ request: { events: [] }, expect: { statuses: [MAYBE] } }]
`,
			wantErr: `unknown status "MAYBE"`,
		},
		{
			name: "bad step",
			content: `
name: n
description: d
clock: { step: soon }
batches: [{ request: { events: [] } }]
`,
			wantErr: "clock.step",
		},
		{
			name: "unknown assertion",
			content: `
name: n
description: d
batches: [{ request: { events: [] } }]
assertions: [{ type: trace_contains }]
`,
			wantErr: `unknown assertion type "trace_contains"`,
		},
		{
			name: "final_state without table",
			content: `
name: n
description: d
batches: [{ request: { events: [] } }]
assertions: [{ type: final_state, expect: { status: OPEN } }]
`,
			wantErr: "table is required for final_state",
		},
		{
			name: "final_state without expect",
			content: `
name: n
description: d
batches: [{ request: { events: [] } }]
assertions: [{ type: final_state, table: transactions }]
`,
			wantErr: "expect is required for final_state",
		},
		{
			name: "verdict_count bad status",
			content: `
name: n
description: d
batches: [{ request: { events: [] } }]
assertions: [{ type: verdict_count, status: LOST }]
`,
			wantErr: "status must be ACCEPTED, REJECTED or DUPLICATE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	valid := `
name: %s
description: d
batches: [{ request: { events: [] } }]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte(fmt.Sprintf(valid, "second")), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yml"), []byte(fmt.Sprintf(valid, "first")), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.yaml"), 0755))

	scenarios, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, scenarios, 2)
	assert.Equal(t, "first", scenarios[0].Name)
	assert.Equal(t, "second", scenarios[1].Name)
}

func TestLoadDir_NamesBadFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: x\n"), 0644))

	_, err := LoadDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.yaml")
}

func TestLoadDir_Missing(t *testing.T) {
	_, err := LoadDir("/nonexistent/scenarios")
	require.Error(t, err)
}

func TestBundledScenariosLoad(t *testing.T) {
	scenarios, err := LoadDir(filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, s := range scenarios {
		assert.False(t, names[s.Name], "duplicate scenario name %s", s.Name)
		names[s.Name] = true
	}
}
