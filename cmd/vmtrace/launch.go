package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"golang.org/x/sys/unix"
)

var errNoCommand = errors.New("no java command given")

// agentArgs inserts -agentpath right after the java executable so that it is
// parsed as a JVM option rather than a program argument.
func agentArgs(agent, options string, command []string) ([]string, error) {
	if len(command) == 0 {
		return nil, errNoCommand
	}

	path, err := filepath.Abs(agent)
	if err != nil {
		return nil, fmt.Errorf("agent path: %w", err)
	}

	flag := "-agentpath:" + path
	if options != "" {
		flag += "=" + options
	}

	args := make([]string, 0, len(command)+1)
	args = append(args, command[0], flag)

	return append(args, command[1:]...), nil
}

// launch runs the JVM with inherited stdio and returns its exit code.
func launch(ctx context.Context, agent, options string, command []string) (int, error) {
	if _, err := os.Stat(agent); err != nil {
		return 0, fmt.Errorf("agent: %w", err)
	}

	args, err := agentArgs(agent, options, command)
	if err != nil {
		return 0, err
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Cancel = func() error {
		return cmd.Process.Signal(unix.SIGTERM)
	}

	err = cmd.Run()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}

	if err != nil {
		return 0, fmt.Errorf("run: %w", err)
	}

	return 0, nil
}
