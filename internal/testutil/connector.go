// Package testutil provides fakes shared by package tests.
package testutil

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jeromebarre/get-obs/internal/connectors"
)

// FakeConnector records commands and simulates the collaborators' file effects:
// wget creates one file per accepted pattern (or the -O target) and honours
// -nc, tar consumes stdin and drops a .nc file, and any other executable
// writes its -o output.
type FakeConnector struct {
	mu        sync.Mutex
	commands  []connectors.Command
	exitCodes map[string]int
	skipFiles map[string]bool
	execError error
	downloads map[string]int
}

// NewFakeConnector creates a FakeConnector.
func NewFakeConnector() *FakeConnector {
	return &FakeConnector{
		exitCodes: make(map[string]int),
		skipFiles: make(map[string]bool),
		downloads: make(map[string]int),
	}
}

// Downloads returns how many times wget wrote a file with base name name.
func (f *FakeConnector) Downloads(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloads[name]
}

// SetExitCode makes commands whose base name is name exit with code.
func (f *FakeConnector) SetExitCode(name string, code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exitCodes[name] = code
}

// SkipFiles stops commands with base name name from producing files.
func (f *FakeConnector) SkipFiles(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.skipFiles[name] = true
}

// SetExecError makes every Execute fail to start.
func (f *FakeConnector) SetExecError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execError = err
}

// Name returns the connector identifier.
func (f *FakeConnector) Name() string {
	return "fake"
}

// IsAllowed allows everything.
func (f *FakeConnector) IsAllowed(name string) bool {
	return true
}

// Commands returns the recorded commands.
func (f *FakeConnector) Commands() []connectors.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]connectors.Command, len(f.commands))
	copy(out, f.commands)
	return out
}

// CommandsNamed returns recorded commands whose base name is name.
func (f *FakeConnector) CommandsNamed(name string) []connectors.Command {
	var out []connectors.Command
	for _, c := range f.Commands() {
		if filepath.Base(c.Name) == name {
			out = append(out, c)
		}
	}
	return out
}

// Execute implements connectors.Connector.
func (f *FakeConnector) Execute(ctx context.Context, cmd connectors.Command) (*connectors.ExecResult, error) {
	f.mu.Lock()
	f.commands = append(f.commands, cmd)
	name := filepath.Base(cmd.Name)
	code := f.exitCodes[name]
	skip := f.skipFiles[name]
	execErr := f.execError
	f.mu.Unlock()

	if execErr != nil {
		return nil, execErr
	}
	if cmd.Stdin != nil {
		io.Copy(io.Discard, cmd.Stdin)
	}
	if !skip && code == 0 {
		if err := f.simulate(name, cmd.Args); err != nil {
			return nil, err
		}
	}
	return &connectors.ExecResult{Command: cmd.Name, Args: cmd.Args, ExitCode: code}, nil
}

func (f *FakeConnector) simulate(name string, args []string) error {
	switch name {
	case "wget":
		if out := flagValue(args, "-O"); out != "" {
			return f.download(out, false)
		}
		dest, accept := flagValue(args, "-P"), flagValue(args, "-A")
		if dest == "" || accept == "" {
			return nil
		}
		noClobber := hasFlag(args, "-nc")
		for _, p := range strings.Split(accept, ",") {
			if err := f.download(filepath.Join(dest, strings.ReplaceAll(p, "*", "x")), noClobber); err != nil {
				return err
			}
		}
	case "tar":
		dir := flagValue(args, "-C")
		if dir != "" {
			return touch(filepath.Join(dir, "extracted.nc"))
		}
	case "cp":
		if len(args) < 2 {
			return nil
		}
		dest := args[len(args)-1]
		noClobber := hasFlag(args, "-n")
		for _, src := range args[:len(args)-1] {
			if strings.HasPrefix(src, "-") {
				continue
			}
			target := filepath.Join(dest, filepath.Base(src))
			if _, err := os.Stat(target); err == nil && noClobber {
				continue
			}
			if err := touch(target); err != nil {
				return err
			}
		}
	default:
		if out := flagValue(args, "-o"); out != "" {
			return touch(out)
		}
	}
	return nil
}

func (f *FakeConnector) download(path string, noClobber bool) error {
	if noClobber {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
	}
	if err := touch(path); err != nil {
		return err
	}
	f.mu.Lock()
	f.downloads[filepath.Base(path)]++
	f.mu.Unlock()
	return nil
}

func hasFlag(args []string, flag string) bool {
	for _, a := range args {
		if a == flag {
			return true
		}
	}
	return false
}

func flagValue(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func touch(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("fake mkdir: %w", err)
	}
	return os.WriteFile(path, []byte("fake"), 0644)
}
