package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentArgs(t *testing.T) {
	args, err := agentArgs("/opt/vmtrace/libvmtrace.so", "dotted_names=true", []string{"java", "-Xmx1g", "-jar", "app.jar"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"java",
		"-agentpath:/opt/vmtrace/libvmtrace.so=dotted_names=true",
		"-Xmx1g", "-jar", "app.jar",
	}, args)
}

func TestAgentArgsRelativePathNoOptions(t *testing.T) {
	args, err := agentArgs("libvmtrace.so", "", []string{"java"})
	require.NoError(t, err)

	abs, err := filepath.Abs("libvmtrace.so")
	require.NoError(t, err)

	assert.Equal(t, []string{"java", "-agentpath:" + abs}, args)
}

func TestAgentArgsNoCommand(t *testing.T) {
	_, err := agentArgs("libvmtrace.so", "", nil)
	assert.ErrorIs(t, err, errNoCommand)
}

func TestLaunchMissingAgent(t *testing.T) {
	_, err := launch(context.Background(), filepath.Join(t.TempDir(), "missing.so"), "", []string{"java"})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLaunchExitCode(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}

	dir := t.TempDir()

	agent := filepath.Join(dir, "libvmtrace.so")
	require.NoError(t, os.WriteFile(agent, nil, 0o644))

	java := filepath.Join(dir, "java")
	require.NoError(t, os.WriteFile(java, []byte("#!/bin/sh\nexit 3\n"), 0o755))

	code, err := launch(context.Background(), agent, "", []string{java, "-version"})
	require.NoError(t, err)
	assert.Equal(t, 3, code)
}
