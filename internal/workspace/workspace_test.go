package workspace

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestManager(t *testing.T, clean bool) *Manager {
	t.Helper()
	root := t.TempDir()
	return New(root, "Terra", "MODIS", "AOD", filepath.Join(root, "out"), clean)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestName(t *testing.T) {
	if got := Name("NOAA-20", "VIIRS", "AOD"); got != "tmp_NOAA-20_VIIRS_AOD" {
		t.Errorf("Name() = %s", got)
	}
}

func TestPrepareCreatesWorkspaceAndOutput(t *testing.T) {
	m := newTestManager(t, false)

	if err := m.Prepare(false); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if !exists(m.Dir()) {
		t.Error("workspace was not created")
	}
	if !exists(m.OutputDir()) {
		t.Error("output dir was not created")
	}

	// Idempotent
	if err := m.Prepare(false); err != nil {
		t.Fatalf("second Prepare failed: %v", err)
	}
}

func TestPrepareCleanPurgesPreviousContents(t *testing.T) {
	m := newTestManager(t, true)

	if err := m.Prepare(false); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	stale := filepath.Join(m.Dir(), "stale.hdf")
	if err := os.WriteFile(stale, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := m.Prepare(false); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if exists(stale) {
		t.Error("stale file survived a cleaning prepare")
	}
	if !exists(m.Dir()) {
		t.Error("workspace should be recreated after purge")
	}
}

func TestPrepareWithoutCleanKeepsContents(t *testing.T) {
	m := newTestManager(t, false)
	m.Prepare(false)
	kept := filepath.Join(m.Dir(), "kept.hdf")
	os.WriteFile(kept, []byte("x"), 0644)

	if err := m.Prepare(false); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if !exists(kept) {
		t.Error("file removed although cleaning is disabled")
	}
}

func TestPrepareLastCreatesNothing(t *testing.T) {
	m := newTestManager(t, true)

	if err := m.Prepare(true); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if exists(m.Dir()) {
		t.Error("terminal prepare must not create the workspace")
	}
	if !exists(m.OutputDir()) {
		t.Error("terminal prepare must still ensure the output dir")
	}

	m.Prepare(false)
	if err := m.Prepare(true); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if exists(m.Dir()) {
		t.Error("terminal prepare with cleaning should purge the workspace")
	}
}

func TestCleanupTwice(t *testing.T) {
	m := newTestManager(t, false)
	m.Prepare(false)

	if err := m.Cleanup(); err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if exists(m.Dir()) {
		t.Error("workspace still exists after Cleanup")
	}
	if err := m.Cleanup(); err != nil {
		t.Fatalf("second Cleanup failed: %v", err)
	}
}

func TestArenaMerge(t *testing.T) {
	m := newTestManager(t, false)
	m.Prepare(false)

	os.WriteFile(filepath.Join(m.Dir(), "a.tar"), []byte("old"), 0644)
	os.WriteFile(filepath.Join(m.Dir(), "stub.nc"), nil, 0644)

	arena, err := m.NewArena()
	if err != nil {
		t.Fatalf("NewArena failed: %v", err)
	}

	seeded, err := os.Stat(filepath.Join(arena, "a.tar"))
	if err != nil {
		t.Fatalf("existing file not seeded into arena: %v", err)
	}
	orig, _ := os.Stat(filepath.Join(m.Dir(), "a.tar"))
	if !os.SameFile(seeded, orig) {
		t.Error("seeded file should be a link to the workspace file")
	}
	if exists(filepath.Join(arena, "stub.nc")) {
		t.Error("zero-length files must not be seeded")
	}

	os.WriteFile(filepath.Join(arena, "b.tar"), []byte("b"), 0644)
	os.WriteFile(filepath.Join(arena, "stub.nc"), []byte("GOOD"), 0644)

	files, _ := m.Files("*.tar")
	if len(files) != 1 {
		t.Errorf("arena files leaked into Files before merge: %v", files)
	}

	if err := m.Merge(arena); err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if exists(arena) {
		t.Error("arena not removed after merge")
	}

	data, _ := os.ReadFile(filepath.Join(m.Dir(), "a.tar"))
	if string(data) != "old" {
		t.Errorf("existing file was clobbered: %q", data)
	}
	data, _ = os.ReadFile(filepath.Join(m.Dir(), "stub.nc"))
	if string(data) != "GOOD" {
		t.Errorf("zero-length file should be replaced, got %q", data)
	}

	files, err = m.Files("*.tar")
	if err != nil {
		t.Fatalf("Files failed: %v", err)
	}
	if len(files) != 2 {
		t.Errorf("expected 2 files after merge, got %v", files)
	}
}

func TestArenaDiscard(t *testing.T) {
	m := newTestManager(t, false)
	m.Prepare(false)

	os.WriteFile(filepath.Join(m.Dir(), "a.tar"), []byte("old"), 0644)
	arena, err := m.NewArena()
	if err != nil {
		t.Fatalf("NewArena failed: %v", err)
	}
	os.WriteFile(filepath.Join(arena, "partial.nc"), nil, 0644)

	if err := m.Discard(arena); err != nil {
		t.Fatalf("Discard failed: %v", err)
	}
	if exists(arena) || exists(filepath.Join(m.Dir(), "partial.nc")) {
		t.Error("discarded arena must leave nothing behind")
	}
	if data, _ := os.ReadFile(filepath.Join(m.Dir(), "a.tar")); string(data) != "old" {
		t.Errorf("discard touched a workspace file: %q", data)
	}
	if err := m.Discard(t.TempDir()); err == nil {
		t.Error("expected error discarding a directory that is not an arena")
	}
}

func TestHas(t *testing.T) {
	m := newTestManager(t, false)
	m.Prepare(false)

	os.WriteFile(filepath.Join(m.Dir(), "full.nc"), []byte("x"), 0644)
	os.WriteFile(filepath.Join(m.Dir(), "empty.nc"), nil, 0644)

	if !m.Has("full.nc") {
		t.Error("expected non-empty file to be reported")
	}
	if m.Has("empty.nc") || m.Has("missing.nc") {
		t.Error("empty or missing files must not be reported")
	}
}

func TestMergeRejectsForeignDir(t *testing.T) {
	m := newTestManager(t, false)
	m.Prepare(false)

	if err := m.Merge(t.TempDir()); err == nil {
		t.Error("expected error merging a directory that is not an arena")
	}
}
