package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	// Collect subcommand names.
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{
		"import", "suggest", "mappings", "confirm", "reject", "edit", "add-mapping",
		"reconcile", "update-value", "summary", "status", "sessions", "runs", "serve", "migrate",
	}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "recon-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestReconcileCommand_Flags(t *testing.T) {
	flag := reconcileCmd.Flags().Lookup("mode")
	require.NotNil(t, flag, "reconcile command should have --mode flag")
	assert.Equal(t, "mapped", flag.DefValue)

	require.NotNil(t, reconcileCmd.Flags().Lookup("pair"))
	require.NotNil(t, reconcileCmd.Flags().Lookup("json"))
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range runsCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"list", "show", "records", "stats"} {
		assert.True(t, names[name], "expected runs subcommand %q not found", name)
	}
}
