package localexec

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/jeromebarre/get-obs/internal/connectors"
)

func TestIsAllowed(t *testing.T) {
	binDir := t.TempDir()
	exec := New(DefaultTools, binDir)

	tests := []struct {
		name    string
		allowed bool
	}{
		{"wget", true},
		{"tar", true},
		{"cp", true},
		{"rm", false},
		{"curl", false},
		{filepath.Join(binDir, "modis_aod2ioda.py"), true},
		{filepath.Join(binDir, "sub", "modis_aod2ioda.py"), false},
		{"/usr/bin/wget", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := exec.IsAllowed(tt.name)
			if got != tt.allowed {
				t.Errorf("IsAllowed(%s) = %v, want %v", tt.name, got, tt.allowed)
			}
		})
	}
}

func TestExecute_NotAllowed(t *testing.T) {
	exec := New(DefaultTools)

	_, err := exec.Execute(context.Background(), connectors.Command{Name: "rm", Args: []string{"-rf", "/"}})
	if err == nil {
		t.Error("Expected error for non-allowed command")
	}
}

func TestExecute_ExitCodeAndEnv(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script converter requires a unix shell")
	}
	binDir := t.TempDir()
	script := filepath.Join(binDir, "fake_converter.sh")
	body := "#!/bin/sh\necho \"path=$PYTHONPATH\"\nread line\necho \"in=$line\"\nexit 3\n"
	if err := os.WriteFile(script, []byte(body), 0755); err != nil {
		t.Fatal(err)
	}

	exec := New(nil, binDir)
	res, err := exec.Execute(context.Background(), connectors.Command{
		Name:  script,
		Env:   []string{"PYTHONPATH=/opt/ioda"},
		Stdin: strings.NewReader("hello\n"),
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if res.ExitCode != 3 || res.Success() {
		t.Errorf("expected exit code 3, got %d", res.ExitCode)
	}
	if !strings.Contains(res.Stdout, "path=/opt/ioda") || !strings.Contains(res.Stdout, "in=hello") {
		t.Errorf("unexpected stdout %q", res.Stdout)
	}
	if os.Getenv("PYTHONPATH") == "/opt/ioda" {
		t.Error("child environment leaked into the process")
	}
}

func TestName(t *testing.T) {
	exec := New(nil)
	if exec.Name() != "localexec" {
		t.Errorf("Expected name 'localexec', got %s", exec.Name())
	}
}

func TestCommandString(t *testing.T) {
	c := connectors.Command{Name: "wget", Args: []string{"-A", "a*.hdf,b*.hdf", "-P", "/tmp/ws"}}
	want := "wget -A 'a*.hdf,b*.hdf' -P /tmp/ws"
	if got := c.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestCommandRedacted(t *testing.T) {
	c := connectors.Command{Name: "wget", Args: []string{"--header", "Authorization: Bearer secret", "https://x"}}
	r := c.Redacted()
	if r.Args[1] != "Authorization: ***" {
		t.Errorf("header not masked: %q", r.Args[1])
	}
	if c.Args[1] != "Authorization: Bearer secret" {
		t.Error("Redacted must not modify the original command")
	}
	if strings.Contains(r.String(), "secret") {
		t.Errorf("rendered command leaks token: %s", r.String())
	}
}
