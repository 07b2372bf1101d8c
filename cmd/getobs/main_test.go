package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jeromebarre/get-obs/internal/driver"
	"github.com/jeromebarre/get-obs/internal/models"
	"github.com/jeromebarre/get-obs/internal/store"
)

func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	doc := `start date: "2021-08-01T00:00:00Z"
end date: "2021-08-01T06:00:00Z"
window length: 3H
platform: Terra
instrument: MODIS
observable: AOD
path ioda out: ` + filepath.Join(dir, "out") + `
path build: ` + filepath.Join(dir, "build") + `
clean: true
cache: true
path work: ` + filepath.Join(dir, "work") + `
path credentials: ` + filepath.Join(dir, "creds") + `
ledger: none
`
	path := filepath.Join(dir, "getobs.yaml")
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path, dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestWindowsCommand(t *testing.T) {
	path, _ := writeConfig(t)

	out, err := execute(t, "windows", "-i", path)
	if err != nil {
		t.Fatalf("windows failed: %v", err)
	}
	for _, want := range []string{"STAMP", "2021080101", "2021080104", "2021-08-01T03:00:00Z"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if lines := strings.Count(strings.TrimSpace(out), "\n"); lines != 2 {
		t.Errorf("expected header and 2 windows, got %d lines", lines+1)
	}
}

func TestPlanCommand(t *testing.T) {
	path, dir := writeConfig(t)
	if err := os.MkdirAll(filepath.Join(dir, "creds"), 0700); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(dir, "creds", "eosdis_token"), []byte("secret"), 0600)

	out, err := execute(t, "plan", "-i", path)
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	if got := strings.Count(out, "wget"); got != 72 {
		t.Errorf("expected 72 fetch commands, got %d", got)
	}
	if strings.Contains(out, "secret") {
		t.Error("plan output leaks the token")
	}
	if _, err := os.Stat(filepath.Join(dir, "work")); !os.IsNotExist(err) {
		t.Error("plan must not create the workspace")
	}
}

func TestRunCommandRejectsBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(path, []byte("platform: Terra\n"), 0644)

	_, err := execute(t, "run", "-i", path, "--no-prompt")
	if err == nil || !strings.Contains(err.Error(), "start date") {
		t.Errorf("expected missing key error, got %v", err)
	}
}

func TestHistoryCommand(t *testing.T) {
	ledger := filepath.Join(t.TempDir(), "ledger.db")

	out, err := execute(t, "history", "--ledger", ledger)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if !strings.Contains(out, "No runs found") {
		t.Errorf("unexpected output: %s", out)
	}

	s, err := store.New(ledger)
	if err != nil {
		t.Fatal(err)
	}
	day := time.Date(2021, 8, 1, 0, 0, 0, 0, time.UTC)
	run, _ := s.CreateRun("VIIRS", "NOAA-20", "AOD", day, day.Add(6*time.Hour))
	s.RecordWindow(&models.WindowResult{
		RunID:  run.ID,
		Window: models.Window{Start: day, End: day.Add(3 * time.Hour), Center: day.Add(90 * time.Minute)},
		Errors: []string{"conversion failure: viirs_aod2ioda.py exited 1"},
		Status: models.WindowStatusFailed,
	})
	s.FinishRun(run.ID, models.RunStatusFailed, 1, 1)
	s.Close()

	out, err = execute(t, "history", "--ledger", ledger)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if !strings.Contains(out, run.ID[:8]) || !strings.Contains(out, "VIIRS") {
		t.Errorf("run not listed:\n%s", out)
	}

	out, err = execute(t, "history", "show", run.ID[:8], "--ledger", ledger)
	if err != nil {
		t.Fatalf("history show failed: %v", err)
	}
	if !strings.Contains(out, "2021080101") || !strings.Contains(out, "exited 1") {
		t.Errorf("unexpected show output:\n%s", out)
	}
}

func TestHistoryDisabledLedger(t *testing.T) {
	if _, err := execute(t, "history", "--ledger", "none"); err == nil {
		t.Error("expected error for disabled ledger")
	}
}

func TestPrintSummary(t *testing.T) {
	day := time.Date(2021, 8, 1, 0, 0, 0, 0, time.UTC)
	r := &driver.Report{
		RunID:      "0123456789abcdef",
		Instrument: "MODIS",
		Platform:   "Terra",
		Observable: "AOD",
		Windows: []models.WindowResult{
			{Window: models.Window{Center: day.Add(90 * time.Minute)}, Requests: 36, Outputs: []string{"a.nc"}, Status: models.WindowStatusOK},
			{Window: models.Window{Center: day.Add(270 * time.Minute)}, Requests: 36, Errors: []string{"boom"}, Status: models.WindowStatusFailed},
		},
	}

	var buf bytes.Buffer
	printSummary(&buf, r)
	out := buf.String()
	for _, want := range []string{"MODIS Terra AOD", "2021080101", "2021080104", "boom", "2 windows, 1 failed, run 01234567"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}
