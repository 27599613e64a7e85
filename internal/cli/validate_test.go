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

var (
	okFixtures  = filepath.Join("..", "schema", "testdata", "fixtures", "ok")
	badFixtures = filepath.Join("..", "schema", "testdata", "fixtures", "bad")
)

func executeValidate(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestValidateValidFixtures(t *testing.T) {
	out, err := executeValidate(t, "text", okFixtures)
	require.NoError(t, err)

	assert.Contains(t, out, "✓ ")
	assert.NotContains(t, out, "✗")
	assert.Contains(t, out, "0 failed")
}

func TestValidateValidFixturesJSON(t *testing.T) {
	out, err := executeValidate(t, "json", okFixtures)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "valid", resp.Data.Expect)
	assert.Positive(t, resp.Data.Total)
	assert.Equal(t, resp.Data.Total, resp.Data.Passed)
	for _, f := range resp.Data.Files {
		assert.True(t, f.Valid, f.Path)
		assert.Empty(t, f.Errors, f.Path)
	}
}

func TestValidateBadFixturesExpectInvalid(t *testing.T) {
	out, err := executeValidate(t, "text", "--expect", "invalid", badFixtures)
	require.NoError(t, err)
	assert.NotContains(t, out, "✗")
}

func TestValidateBadFixturesFail(t *testing.T) {
	out, err := executeValidate(t, "text", badFixtures)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ ")
	assert.Contains(t, out, "E201", "violations are listed under the file")
}

func TestValidateValidFixturesExpectInvalid(t *testing.T) {
	out, err := executeValidate(t, "text", "--expect", "invalid", filepath.Join(okFixtures, "empty.json"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "expected invalid, but document is valid")
}

func TestValidateMixedJSON(t *testing.T) {
	out, err := executeValidate(t, "json",
		filepath.Join(okFixtures, "empty.json"),
		filepath.Join(badFixtures, "missing-events.json"),
	)
	require.Error(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E201", resp.Error.Code)
	assert.Equal(t, 1, resp.Data.Passed)
	assert.Equal(t, 1, resp.Data.Failed)

	require.Len(t, resp.Data.Files, 2)
	assert.True(t, resp.Data.Files[0].Pass)
	assert.False(t, resp.Data.Files[1].Pass)
	assert.NotEmpty(t, resp.Data.Files[1].Errors)
}

func TestValidateMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"events": [`), 0644))

	out, err := executeValidate(t, "text", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "E200")
}

func TestValidateNonExistentPath(t *testing.T) {
	out, err := executeValidate(t, "text", "/nonexistent/directory/path")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E005]")
	assert.Contains(t, out, "not found")
}

func TestValidateEmptyDirectory(t *testing.T) {
	out, err := executeValidate(t, "text", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "no JSON files found")
}

func TestValidateBadExpectFlag(t *testing.T) {
	_, err := executeValidate(t, "text", "--expect", "maybe", okFixtures)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid --expect")
}

func TestValidateMissingArgs(t *testing.T) {
	_, err := executeValidate(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg")
}

func TestFindJSONFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0755))
	for _, name := range []string{"b.json", "a.json", "notes.txt", filepath.Join("nested", "c.JSON")} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(`{}`), 0644))
	}
	single := filepath.Join(dir, "notes.txt")

	files, err := FindJSONFiles([]string{single, dir})
	require.NoError(t, err)
	assert.Equal(t, []string{
		single,
		filepath.Join(dir, "a.json"),
		filepath.Join(dir, "b.json"),
		filepath.Join(dir, "nested", "c.JSON"),
	}, files)
}

func TestLoadBatchFiles(t *testing.T) {
	files, err := LoadBatchFiles([]string{filepath.Join(okFixtures, "empty.json")})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Contains(t, string(files[0].Data), "events")

	_, err = LoadBatchFiles([]string{"/nonexistent.json"})
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, ErrCodeNotFound, loadErr.Code)
}
