// Package workspace owns the scratch directory a run downloads into.
package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jeromebarre/get-obs/internal/models"
)

const arenaPrefix = ".arena-"

// Manager handles the workspace and output directory lifecycle.
type Manager struct {
	dir       string
	outputDir string
	clean     bool

	// mu serializes arena seeding and merging.
	mu sync.Mutex
}

// Name returns the workspace directory name for a platform/instrument/observable triple.
func Name(platform, instrument, observable string) string {
	return "tmp_" + platform + "_" + instrument + "_" + observable
}

// New creates a Manager for the workspace under root.
func New(root, platform, instrument, observable, outputDir string, clean bool) *Manager {
	return &Manager{
		dir:       filepath.Join(root, Name(platform, instrument, observable)),
		outputDir: outputDir,
		clean:     clean,
	}
}

// Dir returns the workspace path.
func (m *Manager) Dir() string {
	return m.dir
}

// OutputDir returns the artifact directory.
func (m *Manager) OutputDir() string {
	return m.outputDir
}

// Prepare readies the workspace for a window.
//
// The output directory is ensured first. With cleaning enabled an existing
// workspace is purged. The workspace is then recreated unless isLast is set;
// isLast marks the terminal check after the final window and creates nothing.
func (m *Manager) Prepare(isLast bool) error {
	if err := os.MkdirAll(m.outputDir, 0755); err != nil {
		return fmt.Errorf("%w: create output dir: %v", models.ErrWorkspace, err)
	}

	exists, err := isDir(m.dir)
	if err != nil {
		return fmt.Errorf("%w: stat workspace: %v", models.ErrWorkspace, err)
	}

	if m.clean && exists {
		slog.Debug("purging workspace", "dir", m.dir)
		if err := os.RemoveAll(m.dir); err != nil {
			return fmt.Errorf("%w: purge workspace: %v", models.ErrWorkspace, err)
		}
		exists = false
	}

	if !exists && !isLast {
		if err := os.MkdirAll(m.dir, 0755); err != nil {
			return fmt.Errorf("%w: create workspace: %v", models.ErrWorkspace, err)
		}
	}
	return nil
}

// Cleanup removes the workspace tree. Calling it on a missing workspace is a no-op.
func (m *Manager) Cleanup() error {
	if err := os.RemoveAll(m.dir); err != nil {
		return fmt.Errorf("%w: remove workspace: %v", models.ErrWorkspace, err)
	}
	return nil
}

// NewArena creates an isolated fetch directory inside the workspace, seeded
// with hard links to the non-empty files already retrieved so no-clobber
// downloads skip them.
func (m *Manager) NewArena() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	arena := filepath.Join(m.dir, arenaPrefix+uuid.New().String())
	if err := os.MkdirAll(arena, 0755); err != nil {
		return "", fmt.Errorf("%w: create arena: %v", models.ErrWorkspace, err)
	}

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		os.RemoveAll(arena)
		return "", fmt.Errorf("%w: read workspace: %v", models.ErrWorkspace, err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), arenaPrefix) || !e.Type().IsRegular() {
			continue
		}
		if fi, err := e.Info(); err != nil || fi.Size() == 0 {
			continue
		}
		if err := os.Link(filepath.Join(m.dir, e.Name()), filepath.Join(arena, e.Name())); err != nil {
			slog.Debug("arena seed skipped", "file", e.Name(), "error", err)
		}
	}
	return arena, nil
}

// Merge moves the files an arena retrieved into the workspace and removes
// the arena. A non-empty workspace file is kept; a zero-length one is
// replaced. Seeded links are left in place.
func (m *Manager) Merge(arena string) error {
	if err := m.checkArena(arena); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := os.ReadDir(arena)
	if err != nil {
		return fmt.Errorf("%w: read arena: %v", models.ErrWorkspace, err)
	}
	for _, e := range entries {
		src := filepath.Join(arena, e.Name())
		dst := filepath.Join(m.dir, e.Name())
		if !replaceable(src, dst) {
			continue
		}
		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("%w: merge %s: %v", models.ErrWorkspace, e.Name(), err)
		}
	}
	if err := os.RemoveAll(arena); err != nil {
		return fmt.Errorf("%w: remove arena: %v", models.ErrWorkspace, err)
	}
	return nil
}

// Discard removes an arena without merging it.
func (m *Manager) Discard(arena string) error {
	if err := m.checkArena(arena); err != nil {
		return err
	}
	if err := os.RemoveAll(arena); err != nil {
		return fmt.Errorf("%w: remove arena: %v", models.ErrWorkspace, err)
	}
	return nil
}

// Has reports whether the workspace holds a non-empty file called name.
func (m *Manager) Has(name string) bool {
	fi, err := os.Stat(filepath.Join(m.dir, name))
	return err == nil && fi.Mode().IsRegular() && fi.Size() > 0
}

func (m *Manager) checkArena(arena string) error {
	if filepath.Dir(arena) != m.dir || !strings.HasPrefix(filepath.Base(arena), arenaPrefix) {
		return fmt.Errorf("%w: %s is not an arena of %s", models.ErrWorkspace, arena, m.dir)
	}
	return nil
}

// replaceable reports whether the arena file src should take dst's place.
func replaceable(src, dst string) bool {
	dfi, err := os.Lstat(dst)
	if os.IsNotExist(err) {
		return true
	}
	if err != nil || !dfi.Mode().IsRegular() {
		return false
	}
	sfi, err := os.Lstat(src)
	if err != nil || os.SameFile(sfi, dfi) {
		return false
	}
	return dfi.Size() == 0
}

// Files returns the sorted workspace files matching pattern, excluding arenas.
func (m *Manager) Files(pattern string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(m.dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("%w: glob %q: %v", models.ErrWorkspace, pattern, err)
	}

	files := matches[:0]
	for _, f := range matches {
		if strings.HasPrefix(filepath.Base(f), arenaPrefix) {
			continue
		}
		if fi, err := os.Stat(f); err == nil && !fi.IsDir() {
			files = append(files, f)
		}
	}
	sort.Strings(files)
	return files, nil
}

func isDir(path string) (bool, error) {
	fi, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return fi.IsDir(), nil
}
