// Package credential caches operator-supplied archive secrets on disk.
package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jeromebarre/get-obs/internal/models"
)

// Request describes what the operator is asked for.
type Request struct {
	// Text is shown to the operator.
	Text string
	// Key names the secret, derived from the cache file name (e.g. "eosdis_token").
	Key string
	// Secret masks terminal echo.
	Secret bool
}

// Prompter acquires a secret from outside the process.
type Prompter interface {
	Prompt(ctx context.Context, req Request) (string, error)
}

// Cache reads cached secrets and falls back to its Prompter.
type Cache struct {
	prompter Prompter
	mu       sync.Mutex
	prompts  int
}

// NewCache creates a Cache that prompts through p.
func NewCache(p Prompter) *Cache {
	return &Cache{prompter: p}
}

// Prompts returns how many times the operator was asked.
func (c *Cache) Prompts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prompts
}

// Obtain returns the secret cached at path, prompting when the cache is cold
// or caching is disabled. The cached content is returned verbatim.
func (c *Cache) Obtain(ctx context.Context, req Request, path string, cachingEnabled bool) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if req.Key == "" {
		req.Key = KeyFor(path)
	}

	if cachingEnabled {
		data, err := os.ReadFile(path)
		if err == nil {
			slog.Debug("using cached credential", "path", path)
			return string(data), nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: read %s: %v", models.ErrCredentialIO, path, err)
		}
	}

	value, err := c.prompter.Prompt(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: prompt for %s: %v", models.ErrCredentialIO, req.Key, err)
	}
	c.prompts++

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return "", fmt.Errorf("%w: create credential dir: %v", models.ErrCredentialIO, err)
	}
	if err := os.WriteFile(path, []byte(value), 0600); err != nil {
		return "", fmt.Errorf("%w: write %s: %v", models.ErrCredentialIO, path, err)
	}
	return value, nil
}

// KeyFor derives a secret key from a cache file path.
func KeyFor(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
