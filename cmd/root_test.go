// File: cmd/root_test.go
package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/macbridge/internal/observability"
)

// isolateEnv keeps the host environment and any local files out of a run.
func isolateEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	for _, key := range []string{"GEMINI_API_KEY", "GOOGLE_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "OPENAI_BASE_URL"} {
		t.Setenv(key, "")
	}
	t.Setenv("MACBRIDGE_BACKEND_ENV_FILE", filepath.Join(dir, "missing.env"))
	t.Setenv("MACBRIDGE_LOGGER_LEVEL", "error")

	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)
}

func run(t *testing.T, stdin string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	root := NewRootCmd()
	var out, errOut bytes.Buffer
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err = root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestRootCmd_ServesProtocolOnStdout(t *testing.T) {
	isolateEnv(t)
	t.Setenv("MACBRIDGE_BACKEND_REQUIRE_OSASCRIPT", "false")
	t.Setenv("MACBRIDGE_BACKEND_OSASCRIPT_PATH", filepath.Join(t.TempDir(), "no-osascript"))

	input := strings.Join([]string{
		`{"type":"action","action":{"type":"bogus"}}`,
		`{"type":"task","task":"open Safari"}`,
		`{"type":"nope"}`,
	}, "\n") + "\n"

	stdout, _, err := run(t, input)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(stdout, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, `{"type":"ready"}`, lines[0])
	assert.JSONEq(t, `{"success":false,"error":"Unknown action type: bogus"}`, lines[1])
	assert.JSONEq(t, `{"success":false,"error":"LLM not initialized"}`, lines[2])
	assert.JSONEq(t, `{"success":false,"error":"Unknown message type: nope"}`, lines[3])
}

func TestRootCmd_RequiresOsascript(t *testing.T) {
	isolateEnv(t)
	t.Setenv("MACBRIDGE_BACKEND_REQUIRE_OSASCRIPT", "true")
	t.Setenv("MACBRIDGE_BACKEND_OSASCRIPT_PATH", filepath.Join(t.TempDir(), "no-osascript"))

	stdout, _, err := run(t, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOsascriptUnavailable)
	assert.Empty(t, stdout)
}

func TestRootCmd_InvalidConfig(t *testing.T) {
	isolateEnv(t)
	t.Setenv("MACBRIDGE_AGENT_MAX_STEPS", "0")

	_, _, err := run(t, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_steps")
}

func TestRootCmd_MissingExplicitConfigFile(t *testing.T) {
	isolateEnv(t)
	_, _, err := run(t, "", "--config", filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestRootCmd_Version(t *testing.T) {
	stdout, _, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "macbridge version "+Version+"\n", stdout)

	stdout, _, err = run(t, "", "--version")
	require.NoError(t, err)
	assert.Contains(t, stdout, "macbridge version "+Version)
}

func TestActionsCmd_ListsVocabulary(t *testing.T) {
	stdout, _, err := run(t, "", "actions")
	require.NoError(t, err)
	assert.Equal(t, "apple_script\nclick\nopen_app\nscroll\ntype\n", stdout)
}
