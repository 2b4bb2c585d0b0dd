package cli

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/syncbridge/internal/ir"
	"github.com/roach88/syncbridge/internal/testutil"
)

// testNode is a node directory with a deterministic key and a config file.
type testNode struct {
	name   string
	db     string
	config string
	id     ir.Identity
}

// newTestNode writes a key derived from name and a config granting
// data_scientist to each of scientists.
func newTestNode(t *testing.T, name string, scientists ...ir.Identity) *testNode {
	t.Helper()
	dir := t.TempDir()
	n := &testNode{
		name:   name,
		db:     filepath.Join(dir, name+".db"),
		config: filepath.Join(dir, name+".yaml"),
		id:     testutil.Identity(name),
	}
	keyPath := filepath.Join(dir, name+".key")
	require.NoError(t, os.WriteFile(keyPath, []byte(hex.EncodeToString(testutil.Key(name).Seed())+"\n"), 0600))

	var roles strings.Builder
	for _, id := range scientists {
		fmt.Fprintf(&roles, "  %s: data_scientist\n", id)
	}
	cfg := fmt.Sprintf(`version: 1
database: %s
key_file: %s
node:
  name: %s
  id: node-%s
  route: ws://%s.test/sessions
default_role: guest
`, n.db, keyPath, name, name, name)
	if roles.Len() > 0 {
		cfg += "roles:\n" + roles.String()
	}
	require.NoError(t, os.WriteFile(n.config, []byte(cfg), 0644))
	return n
}

// run executes the root command as this node with JSON output.
func (n *testNode) run(t *testing.T, args ...string) (cliResult, error) {
	t.Helper()
	return runCLI(t, "", append([]string{"--config", n.config, "--format", "json"}, args...)...)
}

// mustRun is run that fails the test on error.
func (n *testNode) mustRun(t *testing.T, args ...string) cliResult {
	t.Helper()
	res, err := n.run(t, args...)
	require.NoError(t, err, "stdout: %s\nstderr: %s", res.stdout, res.stderr)
	return res
}

type cliResult struct {
	stdout string
	stderr string
}

// response decodes the JSON envelope, leaving Data raw.
func (r cliResult) response(t *testing.T) (status string, data json.RawMessage, cliErr *CLIError) {
	t.Helper()
	var env struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
		Error  *CLIError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &env), "stdout: %s", r.stdout)
	return env.Status, env.Data, env.Error
}

// decode unmarshals the envelope's data into v.
func (r cliResult) decode(t *testing.T, v any) {
	t.Helper()
	status, data, _ := r.response(t)
	require.Equal(t, "ok", status, "stdout: %s", r.stdout)
	require.NoError(t, json.Unmarshal(data, v))
}

// errorCode returns the code of an error envelope.
func (r cliResult) errorCode(t *testing.T) string {
	t.Helper()
	status, _, cliErr := r.response(t)
	require.Equal(t, "error", status, "stdout: %s", r.stdout)
	require.NotNil(t, cliErr)
	return cliErr.Code
}

func runCLI(t *testing.T, stdin string, args ...string) (cliResult, error) {
	t.Helper()
	cmd := NewRootCommand()
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return cliResult{stdout: stdout.String(), stderr: stderr.String()}, err
}
