// Package sink writes published schema and description documents to an
// output destination.
package sink

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/beevik/etree"
)

// Sink receives exported documents. Implementations must be safe for
// concurrent calls.
type Sink interface {
	// WriteFile stores content at the relative slash-separated path.
	WriteFile(ctx context.Context, path string, content []byte) error
}

// WriteDocument serializes doc with two-space indentation and writes it to s.
func WriteDocument(ctx context.Context, s Sink, path string, doc *etree.Document) error {
	doc = doc.Copy()
	doc.Indent(2)
	b, err := doc.WriteToBytes()
	if err != nil {
		return fmt.Errorf("serialize %s: %w", path, err)
	}
	return s.WriteFile(ctx, path, b)
}

// Dir writes documents below a directory on the local filesystem.
type Dir struct {
	// Root is the base directory for all writes.
	Root string

	// Mode is the permission of written files. Zero means 0644.
	Mode os.FileMode

	// Overwrite replaces existing files. When false, writing an existing
	// path fails.
	Overwrite bool
}

// NewDir returns a Dir sink rooted at root that overwrites existing files.
func NewDir(root string) *Dir {
	return &Dir{Root: root, Mode: 0o644, Overwrite: true}
}

// WriteFile writes content through a temporary file renamed into place, so
// readers never observe a partial document.
func (d *Dir) WriteFile(ctx context.Context, path string, content []byte) error {
	if err := ValidatePath(path); err != nil {
		return fmt.Errorf("invalid path %q: %w", path, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	full := filepath.Join(d.Root, filepath.FromSlash(path))
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	mode := d.Mode
	if mode == 0 {
		mode = 0o644
	}

	tmp, err := os.CreateTemp(dir, ".soagw-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	name := tmp.Name()
	_, werr := tmp.Write(content)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := os.Chmod(name, mode); err != nil {
		_ = os.Remove(name)
		return fmt.Errorf("chmod %s: %w", path, err)
	}

	if d.Overwrite {
		if err := os.Rename(name, full); err != nil {
			_ = os.Remove(name)
			return fmt.Errorf("rename %s: %w", path, err)
		}
		return nil
	}
	// Link fails if the target exists.
	err = os.Link(name, full)
	_ = os.Remove(name)
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("file already exists: %q", path)
	}
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	return nil
}

// Memory keeps written documents in memory.
type Memory struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemory returns an empty Memory sink.
func NewMemory() *Memory {
	return &Memory{files: make(map[string][]byte)}
}

// WriteFile stores a copy of content.
func (m *Memory) WriteFile(ctx context.Context, path string, content []byte) error {
	if err := ValidatePath(path); err != nil {
		return fmt.Errorf("invalid path %q: %w", path, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[path] = append([]byte(nil), content...)
	return nil
}

// Get returns a copy of the content at path, or nil.
func (m *Memory) Get(path string) []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.files[path]
	if !ok {
		return nil
	}
	return append([]byte(nil), b...)
}

// Paths returns the written paths in sorted order.
func (m *Memory) Paths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.files))
	for p := range m.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// ValidatePath reports whether path is a clean relative slash-separated
// path that stays inside the sink root.
func ValidatePath(path string) error {
	if path == "" {
		return errors.New("path is empty")
	}
	if filepath.IsAbs(path) || strings.HasPrefix(path, "/") {
		return errors.New("absolute paths not allowed")
	}
	if len(path) >= 2 && path[1] == ':' {
		return errors.New("absolute paths not allowed")
	}
	for _, part := range strings.Split(path, "/") {
		if part == ".." {
			return errors.New("path traversal not allowed")
		}
	}
	if cleaned := filepath.ToSlash(filepath.Clean(path)); cleaned != path {
		return fmt.Errorf("path is not clean (expected %q, got %q)", cleaned, path)
	}
	return nil
}
