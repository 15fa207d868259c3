package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-dms/odyssey-dms/internal/app"
	_ "github.com/odyssey-dms/odyssey-dms/testing"
)

func TestTestModeSkipsStartup(t *testing.T) {
	app.RefreshTestMode()
	assert.True(t, app.InTestMode())
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCommand()

	for _, path := range [][]string{
		{"serve"},
		{"access", "explain"},
		{"access", "invalidate"},
		{"jobs", "stats"},
		{"jobs", "trigger"},
	} {
		cmd, rest, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Empty(t, rest, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestExplainRejectsNonNumericUser(t *testing.T) {
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs([]string{"access", "explain", "alice"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid user id "alice"`)
}

func TestExplainFlags(t *testing.T) {
	cmd, _, err := newRootCommand().Find([]string{"access", "explain"})
	require.NoError(t, err)

	alias := cmd.Flags().Lookup("alias")
	require.NotNil(t, alias)
	assert.Equal(t, "d", alias.DefValue)
	require.NotNil(t, cmd.Flags().Lookup("json"))
}

func TestExitCode(t *testing.T) {
	assert.NoError(t, exitCode(0))
	err := exitCode(2)
	require.Error(t, err)
	assert.Equal(t, "exit status 2", err.Error())
}
