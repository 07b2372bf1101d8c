// Package connectors defines how getobs runs external collaborators.
package connectors

import (
	"context"
	"io"
	"strings"
)

// Command is one external process invocation.
type Command struct {
	Name  string    `json:"name"`
	Args  []string  `json:"args"`
	Dir   string    `json:"dir,omitempty"`
	Env   []string  `json:"env,omitempty"`
	Stdin io.Reader `json:"-"`
}

// String renders the command for logs and dry runs.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Name)
	for _, a := range c.Args {
		if a == "" || strings.ContainsAny(a, " \t*?,\"'") {
			a = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// Redacted returns a copy with Authorization header values masked, for logs and the ledger.
func (c Command) Redacted() Command {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		if strings.HasPrefix(a, "Authorization:") {
			a = "Authorization: ***"
		}
		args[i] = a
	}
	c.Args = args
	return c
}

// ExecResult holds the result of a command execution.
type ExecResult struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exit_code"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// Success reports a zero exit code.
func (r *ExecResult) Success() bool {
	return r != nil && r.ExitCode == 0
}

// Connector defines the interface for executing commands.
type Connector interface {
	// Name returns the connector identifier.
	Name() string

	// Execute runs a command and returns the result.
	// A non-zero exit is reported through ExecResult, not as an error.
	Execute(ctx context.Context, cmd Command) (*ExecResult, error)

	// IsAllowed checks if a command is allowed to execute.
	IsAllowed(name string) bool
}
