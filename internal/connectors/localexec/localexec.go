// Package localexec provides a local command executor with an allowlist.
package localexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/jeromebarre/get-obs/internal/connectors"
)

// DefaultTools is the allowlist of collaborators looked up on PATH.
var DefaultTools = []string{"wget", "tar", "cp"}

// LocalExec implements the Connector interface for local command execution.
type LocalExec struct {
	tools   map[string]bool
	binDirs []string
}

// New creates a LocalExec that runs the given tools from PATH and any
// executable located directly inside one of binDirs.
func New(tools []string, binDirs ...string) *LocalExec {
	l := &LocalExec{tools: make(map[string]bool, len(tools))}
	for _, t := range tools {
		l.tools[t] = true
	}
	for _, d := range binDirs {
		if abs, err := filepath.Abs(d); err == nil {
			l.binDirs = append(l.binDirs, abs)
		}
	}
	return l
}

// Name returns the connector identifier.
func (l *LocalExec) Name() string {
	return "localexec"
}

// IsAllowed checks if a command is in the allowlist.
func (l *LocalExec) IsAllowed(name string) bool {
	if !strings.ContainsRune(name, os.PathSeparator) {
		return l.tools[name]
	}

	abs, err := filepath.Abs(name)
	if err != nil {
		return false
	}
	dir := filepath.Dir(abs)
	for _, d := range l.binDirs {
		if dir == d {
			return true
		}
	}
	return false
}

// Execute runs a command if it's in the allowlist.
func (l *LocalExec) Execute(ctx context.Context, cmd connectors.Command) (*connectors.ExecResult, error) {
	if !l.IsAllowed(cmd.Name) {
		return nil, fmt.Errorf("command not allowed: %s", cmd.Name)
	}

	slog.Info("exec", "cmd", cmd.Redacted().String())

	execCmd := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	if cmd.Dir != "" {
		execCmd.Dir = cmd.Dir
	}
	if len(cmd.Env) > 0 {
		execCmd.Env = append(os.Environ(), cmd.Env...)
	}
	execCmd.Stdin = cmd.Stdin

	var stdout, stderr bytes.Buffer
	execCmd.Stdout = &stdout
	execCmd.Stderr = &stderr

	err := execCmd.Run()

	exitCode := 0
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			exitCode = exitError.ExitCode()
		} else {
			return nil, fmt.Errorf("exec error: %w", err)
		}
	}

	return &connectors.ExecResult{
		Command:  cmd.Name,
		Args:     cmd.Args,
		ExitCode: exitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}
