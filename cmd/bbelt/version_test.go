package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCmd(t *testing.T) {
	// GOAL: Verify version command prints build metadata
	//
	// TEST SCENARIO: Execute version → output contains version and commit defaults

	cmd := &cobra.Command{}
	cmd.AddCommand(versionCmd)

	output, err := executeCommand(cmd, "version")
	require.NoError(t, err, "version command MUST succeed")

	assert.Contains(t, output, "bbelt dev", "output MUST contain the version string")
	assert.Contains(t, output, "commit none", "output MUST contain the commit hash")
}

func TestVersionCmd_RejectsArgs(t *testing.T) {
	// GOAL: Verify version command rejects positional arguments
	//
	// TEST SCENARIO: Execute version with an extra argument → returns error

	cmd := &cobra.Command{}
	cmd.AddCommand(versionCmd)

	_, err := executeCommand(cmd, "version", "extra")
	assert.Error(t, err, "version with arguments MUST return error")
}

func TestFormatVersion(t *testing.T) {
	// GOAL: Verify formatVersion prefixes release versions with 'v'
	//
	// TEST SCENARIO: Format numeric and non-numeric versions → only digits get the prefix

	assert.Equal(t, "v1.2.3", formatVersion("1.2.3"), "numeric version MUST get v prefix")
	assert.Equal(t, "v0.5.0-rc1", formatVersion("0.5.0-rc1"), "prerelease version MUST get v prefix")
	assert.Equal(t, "dev", formatVersion("dev"), "dev version MUST stay unchanged")
	assert.Equal(t, "", formatVersion(""), "empty version MUST stay empty")
}
