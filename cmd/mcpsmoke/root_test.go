package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandHasTargetSubcommands(t *testing.T) {
	root := newRootCommand()

	var names []string
	for _, sub := range root.Commands() {
		names = append(names, sub.Name())
	}
	assert.Contains(t, names, "process")
	assert.Contains(t, names, "container")
	assert.Contains(t, names, "compose")
}

func TestRootOptionsOverrideConfig(t *testing.T) {
	opts := &rootOptions{host: "10.0.0.5", port: 9000}

	cfg, logger, err := opts.setup()
	require.NoError(t, err)
	require.NotNil(t, logger)

	assert.Equal(t, "10.0.0.5", cfg.Host)
	assert.Equal(t, 9000, cfg.Port)
}

func TestRootOptionsBadConfigFile(t *testing.T) {
	opts := &rootOptions{configPath: "does-not-exist.toml"}

	_, _, err := opts.setup()
	require.Error(t, err)
}
