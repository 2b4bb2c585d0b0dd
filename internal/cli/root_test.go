package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/syncbridge/internal/ir"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "syncbridge", cmd.Use)
	assert.Contains(t, cmd.Long, "leader")
}

func TestVersion(t *testing.T) {
	assert.Equal(t, ir.Version, NewRootCommand().Version)

	res, err := runCLI(t, "", "--version")
	require.NoError(t, err)
	assert.Equal(t, "syncbridge version "+ir.Version+"\n", res.stdout)

	res, err = runCLI(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "syncbridge "+ir.Version+" (schema 1)\n", res.stdout)

	var view VersionView
	res, err = runCLI(t, "", "--format", "json", "version")
	require.NoError(t, err)
	res.decode(t, &view)
	assert.Equal(t, VersionView{Version: ir.Version, Schema: ir.SchemaVersion}, view)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"keygen"},
		{"peer", "add"},
		{"peer", "list"},
		{"project", "create"},
		{"project", "list"},
		{"project", "get"},
		{"project", "sync"},
		{"project", "catch-up"},
		{"project", "add-event"},
		{"project", "broadcast"},
		{"project", "verify"},
		{"notifications"},
		{"serve"},
		{"diff"},
		{"resolve"},
		{"test"},
		{"version"},
	}

	for _, path := range commands {
		name := path[len(path)-1]
		t.Run(name, func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, name, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)

	for _, name := range []string{"db", "key", "name", "node-id", "route"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func TestResolveCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	resolveCmd, _, err := cmd.Find([]string{"resolve"})
	require.NoError(t, err)

	for _, name := range []string{"decision", "share-private", "apply", "session"} {
		assert.NotNil(t, resolveCmd.Flags().Lookup(name), name)
	}
}

func TestProjectCallerFlag(t *testing.T) {
	cmd := NewRootCommand()
	createCmd, _, err := cmd.Find([]string{"project", "create"})
	require.NoError(t, err)

	asFlag := createCmd.InheritedFlags().Lookup("as")
	require.NotNil(t, asFlag)
	assert.Equal(t, "", asFlag.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"peer", "list", "--format", "yaml"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "yaml"`)
}

func TestConfigFillsNodeFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "syncbridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`version: 1
database: /from/config.db
key_file: /from/config.key
node:
  name: alpha
  route: ws://alpha.test/sessions
`), 0644))

	opts := &RootOptions{ConfigPath: path, Database: "/from/flag.db"}
	require.NoError(t, opts.loadConfig())

	assert.Equal(t, "/from/flag.db", opts.Database, "flags win over the file")
	assert.Equal(t, "/from/config.key", opts.KeyFile)
	assert.Equal(t, "alpha", opts.NodeName)
	assert.Equal(t, "ws://alpha.test/sessions", opts.Route)
	assert.Empty(t, opts.NodeID)
}

func TestConfigValidationFailsCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "syncbridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 3\n"), 0644))

	cmd := NewRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--config", path, "peer", "list"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "unsupported version 3")
	assert.False(t, Reported(err))
}
