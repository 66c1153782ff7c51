package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "invsync", cmd.Use)
	assert.Contains(t, cmd.Long, "authoritative server inventory")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"serve", "seed", "dispatch", "snapshot", "log", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
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
}

func TestFlagDefaultsFromEnvironment(t *testing.T) {
	t.Setenv("INVSYNC_DB", "/tmp/from-env.db")
	t.Setenv("INVSYNC_USER", "alice")
	t.Setenv("INVSYNC_SERVER_URL", "http://authority:9000")

	cmd := NewRootCommand()

	serveCmd, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)
	assert.Equal(t, "/tmp/from-env.db", serveCmd.Flags().Lookup("db").DefValue)
	assert.Equal(t, "127.0.0.1:8080", serveCmd.Flags().Lookup("listen").DefValue)

	dispatchCmd, _, err := cmd.Find([]string{"dispatch"})
	require.NoError(t, err)
	assert.Equal(t, "alice", dispatchCmd.Flags().Lookup("user").DefValue)
	assert.Equal(t, "http://authority:9000", dispatchCmd.Flags().Lookup("server").DefValue)
	assert.Equal(t, "{}", dispatchCmd.Flags().Lookup("args").DefValue)
}

func TestInvalidEnvironment(t *testing.T) {
	t.Setenv("INVSYNC_RESYNC_ATTEMPTS", "0")

	cmd := NewRootCommand()
	cmd.SetArgs([]string{"log", "--db", t.TempDir() + "/x.db"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "RESYNC_ATTEMPTS")
}

func TestTestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	testCmd, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)

	updateFlag := testCmd.Flags().Lookup("update")
	require.NotNil(t, updateFlag)
	assert.Equal(t, "false", updateFlag.DefValue)

	require.NotNil(t, testCmd.Flags().Lookup("filter"))
	require.NotNil(t, testCmd.Flags().Lookup("golden"))
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "invalid", "log"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}
