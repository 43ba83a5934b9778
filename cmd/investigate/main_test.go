package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diligence/internal/investigation/handler"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(bytes.NewBufferString(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func isolateEnv(t *testing.T) {
	t.Helper()
	registry := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(registry.Close)

	t.Setenv("ORACLE_API_KEY", "")
	t.Setenv("REDIS_URL", "")
	t.Setenv("SOURCES_OPENCORPORATES_URL", registry.URL)
	t.Setenv("SOURCES_COMPANIES_HOUSE_KEY", "")
	t.Setenv("SOURCES_OPENSANCTIONS_KEY", "")
	t.Setenv("SOURCES_WEB_SEARCH_KEY", "")
	t.Setenv("SOURCES_AVIATION_REGISTRY_URL", "")
}

func TestSectorsCommand(t *testing.T) {
	out, err := execute(t, "", "sectors")
	require.NoError(t, err)
	assert.Contains(t, out, "general")
	assert.Contains(t, out, "aviation")
	assert.Contains(t, out, "auto-detect")
}

func TestRunCommand_PrintsFallbackReport(t *testing.T) {
	isolateEnv(t)
	path := filepath.Join(t.TempDir(), "request.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: Skyline Charter LLC
jurisdiction: US
identifiers:
  aircraft_registration: N123AB
supplementary: Broker says the jet is held by a Delaware trust.
`), 0o600))

	out, err := execute(t, "", "run", "--file", path, "--sector", "private jet")
	require.NoError(t, err)

	var resp handler.InvestigationResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotNil(t, resp.Report)
	assert.True(t, resp.Report.Fallback)
	assert.Equal(t, "aviation", string(resp.Report.Leniency.Sector))
	assert.Equal(t, "private jet", resp.Subject.Sector)
	assert.Equal(t, "Skyline Charter LLC", resp.Subject.Name)
	assert.NotEmpty(t, resp.Sources)
}

func TestRunCommand_ReadsStdin(t *testing.T) {
	isolateEnv(t)
	out, err := execute(t, "name: Acme Holdings Ltd\n", "run", "-f", "-")
	require.NoError(t, err)
	assert.Contains(t, out, `"fallback": true`)
}

func TestRunCommand_RejectsInvalidRequest(t *testing.T) {
	isolateEnv(t)
	_, err := execute(t, "jurisdiction: GB\n", "run", "-f", "-")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")
}

func TestRunCommand_RequiresFile(t *testing.T) {
	_, err := execute(t, "", "run")
	require.Error(t, err)
}
