package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bwdedup/internal/dedup"
	"github.com/roach88/bwdedup/internal/ledger"
	"github.com/roach88/bwdedup/internal/testutil"
)

const sampleExport = `{
  "encrypted": false,
  "folders": [],
  "items": [
    {"id": "a", "name": "GitHub", "type": 1, "revisionDate": "2024-01-01T00:00:00Z",
     "login": {"username": "octo", "password": "pw", "uris": [{"uri": "https://github.com/login", "match": null}]}},
    {"id": "b", "name": "GitHub copy", "type": 1, "revisionDate": "2024-03-01T00:00:00Z",
     "login": {"username": "octo", "password": "pw", "uris": [{"uri": "https://github.com", "match": null}]}},
    {"id": "c", "name": "Mail", "type": 1,
     "login": {"username": "me", "password": "pw2", "uris": [{"uri": "https://mail.example", "match": null}]}}
  ]
}`

func init() {
	color.NoColor = true
}

// writeExport writes sampleExport into a fresh working directory and
// returns its path.
func writeExport(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	path := filepath.Join(dir, "vault.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleExport), 0o600))
	return path
}

func executeRun(t *testing.T, format string, args ...string) (string, string, error) {
	t.Helper()
	return executeRunWithLedger(t, format, nil, args...)
}

func executeRunWithLedger(t *testing.T, format string, ledgerOpts []ledger.Option, args ...string) (string, string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	cmd := newRunCommand(&RunOptions{
		RootOptions:   &RootOptions{Format: format},
		LedgerOptions: ledgerOpts,
	})
	cmd.SetOut(buf)
	cmd.SetErr(errBuf)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return buf.String(), errBuf.String(), err
}

func readItems(t *testing.T, path string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc struct {
		Items []map[string]any `json:"items"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc.Items
}

func TestRunCommandDefaults(t *testing.T) {
	input := writeExport(t)

	out, _, err := executeRun(t, "text", "-i", input)
	require.NoError(t, err)

	output := filepath.Join(filepath.Dir(input), "vault.dedup.json")
	assert.Contains(t, out, "Items: 3 -> 2 (removed 1)")
	assert.Contains(t, out, "Wrote "+output)

	items := readItems(t, output)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0]["id"])
	assert.Equal(t, "c", items[1]["id"])

	info, err := os.Stat(output)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestRunCommandKeepNewest(t *testing.T) {
	input := writeExport(t)
	output := filepath.Join(filepath.Dir(input), "out.json")

	_, _, err := executeRun(t, "text", "-i", input, "-o", output, "--keep", "NEWEST")
	require.NoError(t, err)

	items := readItems(t, output)
	require.Len(t, items, 2)
	assert.Equal(t, "b", items[0]["id"])
	assert.Equal(t, "c", items[1]["id"])
}

func TestRunCommandFullItemKeepsDistinctNames(t *testing.T) {
	input := writeExport(t)

	out, _, err := executeRun(t, "text", "-i", input, "--full-item", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Items: 3 -> 3 (removed 0)")
}

func TestRunCommandDryRunWritesNothing(t *testing.T) {
	input := writeExport(t)

	out, _, err := executeRun(t, "text", "-i", input, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Items: 3 -> 2 (removed 1)")
	assert.NotContains(t, out, "Wrote")

	_, err = os.Stat(filepath.Join(filepath.Dir(input), "vault.dedup.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestRunCommandOutputExists(t *testing.T) {
	input := writeExport(t)
	output := filepath.Join(filepath.Dir(input), "vault.dedup.json")
	require.NoError(t, os.WriteFile(output, []byte("keep me"), 0o600))

	out, _, err := executeRun(t, "text", "-i", input)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeOutputExists)

	data, readErr := os.ReadFile(output)
	require.NoError(t, readErr)
	assert.Equal(t, "keep me", string(data))

	_, _, err = executeRun(t, "text", "-i", input, "--force")
	require.NoError(t, err)
	assert.Len(t, readItems(t, output), 2)
}

func TestRunCommandOutputExistsCheckedBeforeInput(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "out.json")
	require.NoError(t, os.WriteFile(output, []byte("{}"), 0o600))

	out, _, err := executeRun(t, "json", "-i", filepath.Join(dir, "missing.json"), "-o", output)
	require.Error(t, err)

	var response CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, ErrCodeOutputExists, response.Error.Code)
}

func TestRunCommandInputErrors(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	invalid := filepath.Join(dir, "invalid.json")
	require.NoError(t, os.WriteFile(invalid, []byte(`{"folders": []}`), 0o600))

	tests := []struct {
		name  string
		input string
		code  string
	}{
		{"missing file", filepath.Join(dir, "missing.json"), ErrCodeInput},
		{"no items", invalid, ErrCodeParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := executeRun(t, "json", "-i", tt.input, "--dry-run")
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))

			var response CLIResponse
			require.NoError(t, json.Unmarshal([]byte(out), &response))
			assert.Equal(t, "error", response.Status)
			assert.Equal(t, tt.code, response.Error.Code)
		})
	}
}

func TestRunCommandInvalidKeep(t *testing.T) {
	input := writeExport(t)

	out, _, err := executeRun(t, "json", "-i", input, "--keep", "random", "--dry-run")
	require.Error(t, err)

	var response CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, ErrCodePolicy, response.Error.Code)
}

func TestRunCommandPolicyKeyAndFullItemExclusive(t *testing.T) {
	input := writeExport(t)

	_, _, err := executeRun(t, "text", "-i", input, "--policy-key", "name", "--full-item")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "full-item")
}

func TestRunCommandConfigFile(t *testing.T) {
	input := writeExport(t)
	require.NoError(t, os.WriteFile("config.toml", []byte(`
[dedup]
keep = "last"

[output]
pretty = true
`), 0o600))

	output := filepath.Join(filepath.Dir(input), "out.json")
	_, _, err := executeRun(t, "text", "-i", input, "-o", output)
	require.NoError(t, err)

	items := readItems(t, output)
	require.Len(t, items, 2)
	assert.Equal(t, "b", items[0]["id"])

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"items\": [")
}

func TestRunCommandFlagOverridesConfig(t *testing.T) {
	input := writeExport(t)
	require.NoError(t, os.WriteFile("config.toml", []byte("[dedup]\nkeep = \"last\"\n"), 0o600))

	output := filepath.Join(filepath.Dir(input), "out.json")
	_, _, err := executeRun(t, "text", "-i", input, "-o", output, "--keep", "first")
	require.NoError(t, err)
	assert.Equal(t, "a", readItems(t, output)[0]["id"])
}

func TestRunCommandBadConfig(t *testing.T) {
	input := writeExport(t)
	require.NoError(t, os.WriteFile("config.toml", []byte("[dedup]\nkepe = \"last\"\n"), 0o600))

	out, _, err := executeRun(t, "json", "-i", input, "--dry-run")
	require.Error(t, err)

	var response CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, ErrCodeConfig, response.Error.Code)
}

func TestRunCommandJSONOutput(t *testing.T) {
	input := writeExport(t)

	out, _, err := executeRun(t, "json", "-i", input, "--dry-run")
	require.NoError(t, err)

	var response struct {
		Status string     `json:"status"`
		Data   RunSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "ok", response.Status)
	assert.True(t, response.Data.DryRun)
	assert.Equal(t, 3, response.Data.Report.Total)
	assert.Equal(t, 1, response.Data.Report.Removed)
	require.Len(t, response.Data.Report.Groups, 1)
	assert.Equal(t, 0, response.Data.Report.Groups[0].Kept)
	assert.Equal(t, []int{1}, response.Data.Report.Groups[0].Discarded)
}

func TestRunCommandReport(t *testing.T) {
	input := writeExport(t)
	reportPath := filepath.Join(filepath.Dir(input), "report.json")

	_, _, err := executeRun(t, "text", "-i", input, "--dry-run", "--report", reportPath)
	require.NoError(t, err)

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	var report dedup.Report
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, 2, report.Kept)
	require.Len(t, report.Groups, 1)
}

func TestRunCommandReportExists(t *testing.T) {
	input := writeExport(t)
	reportPath := filepath.Join(filepath.Dir(input), "report.json")
	require.NoError(t, os.WriteFile(reportPath, []byte("old"), 0o600))

	out, _, err := executeRun(t, "json", "-i", input, "--dry-run", "--report", reportPath)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var response CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, ErrCodeOutputExists, response.Error.Code)

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))

	_, _, err = executeRun(t, "text", "-i", input, "--dry-run", "--report", reportPath, "--force")
	require.NoError(t, err)
	data, err = os.ReadFile(reportPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"groups"`)
}

func TestRunCommandIgnoredPolicyKey(t *testing.T) {
	input := writeExport(t)

	out, _, err := executeRun(t, "json", "-i", input, "--policy-key", "id", "--dry-run")
	require.Error(t, err)

	var response CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, ErrCodePolicy, response.Error.Code)
}

func TestRunCommandLedger(t *testing.T) {
	input := writeExport(t)
	ledgerPath := filepath.Join(filepath.Dir(input), "runs.db")
	opts := []ledger.Option{
		ledger.WithClock(testutil.NewDeterministicClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), time.Second)),
		ledger.WithIDGenerator(testutil.NewSequentialIDGenerator("")),
	}

	out, _, err := executeRunWithLedger(t, "json", opts, "-i", input, "--dry-run", "--ledger", ledgerPath)
	require.NoError(t, err)

	var response CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &response))
	assert.Equal(t, "run-0001", response.RunID)

	l, err := ledger.Open(ledgerPath)
	require.NoError(t, err)
	defer l.Close()

	run, err := l.ReadRun(t.Context(), "run-0001")
	require.NoError(t, err)
	assert.Equal(t, input, run.InputPath)
	assert.True(t, run.DryRun)
	assert.Equal(t, 1, run.Report.Removed)
}

func TestRunCommandRequiresInput(t *testing.T) {
	_, _, err := executeRun(t, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input")
}
