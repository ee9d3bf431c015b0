package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func useTempDB(t *testing.T) {
	t.Helper()
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_FILE", filepath.Join(t.TempDir(), "cli.db"))
	t.Setenv("LOG_LEVEL", "error")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "steward "), out)
}

func TestUserCreateCommand(t *testing.T) {
	useTempDB(t)

	out, err := execute(t, "user", "create", "--email", "ops@example.com", "--name", "Ops", "--password", "long-enough-pw")
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(out))

	_, err = execute(t, "user", "create", "--email", "ops@example.com", "--password", "long-enough-pw")
	assert.Error(t, err)

	_, err = execute(t, "user", "create", "--email", "short@example.com", "--password", "short")
	assert.Error(t, err)
}

func TestCleanupCommand(t *testing.T) {
	useTempDB(t)

	out, err := execute(t, "cleanup", "--days", "30")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted 0 notifications")

	out, err = execute(t, "cleanup", "--days", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted 0 notifications")

	_, err = execute(t, "cleanup", "--days=-1")
	assert.Error(t, err)
}

func TestMigrateCommand(t *testing.T) {
	useTempDB(t)
	_, err := execute(t, "migrate")
	require.NoError(t, err)
}
