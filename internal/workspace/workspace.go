// Package workspace binds mutable state (failure log, settings, teams) to
// a workspace identity derived from a filesystem path (C11): a stable
// hash selects the mutable-state root, an MRU recent-paths list tracks
// switches, and a safe-mode flag refuses writes against a dirty
// version-control checkout.
package workspace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ctxloom/ctxloom/internal/jsonstore"
)

const recentCap = 10
const hashLength = 12

// GitStatus is the external collaborator consulted to decide safe-mode.
// It reports whether the checkout rooted at path has uncommitted changes.
// Implementations shell out to `git status --porcelain` or equivalent;
// that process wiring is outside this package.
type GitStatus interface {
	IsDirty(path string) (bool, error)
}

// Hash returns the stable workspace identifier for a canonical path: the
// first hashLength hex characters of its SHA-256 digest.
func Hash(path string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(path)))
	return hex.EncodeToString(sum[:])[:hashLength]
}

type doc struct {
	Version           int      `json:"version"`
	CurrentWorkspace  string   `json:"current_workspace"`
	RecentWorkspaces  []string `json:"recent_workspaces"`
	SafeMode          bool     `json:"safe_mode"`
}

// Current describes the active workspace.
type Current struct {
	Path string `json:"path"`
	Hash string `json:"hash"`
}

// Partitioner is the workspace partitioner. Switching is serialized
// behind mu; the recent-paths list and safe-mode flag are persisted
// atomically alongside the current path.
type Partitioner struct {
	mu   sync.Mutex
	path string
	doc  doc
	git  GitStatus
}

// Open loads (or initializes) the partitioner state at
// <dataRoot>/workspace.json. git may be nil, in which case safe-mode is
// never engaged.
func Open(dataRoot string, git GitStatus) (*Partitioner, error) {
	p := &Partitioner{path: filepath.Join(dataRoot, "workspace.json"), git: git}
	found, err := jsonstore.Read(p.path, &p.doc)
	if err != nil {
		return nil, fmt.Errorf("loading workspace state: %w", err)
	}
	if !found {
		p.doc = doc{Version: 1}
	}
	return p, nil
}

// GetCurrent returns the active workspace's path and hash.
func (p *Partitioner) GetCurrent() Current {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.doc.CurrentWorkspace == "" {
		return Current{}
	}
	return Current{Path: p.doc.CurrentWorkspace, Hash: Hash(p.doc.CurrentWorkspace)}
}

// Switch validates that path exists, recomputes its hash, pushes it to
// the front of the MRU recent list (capped), re-evaluates safe-mode, and
// persists atomically. Dependents (the failure log) pick up the new root
// lazily on their next read — Switch notifies no one directly.
func (p *Partitioner) Switch(path string) (Current, error) {
	clean := filepath.Clean(path)
	info, err := os.Stat(clean)
	if err != nil {
		return Current{}, fmt.Errorf("workspace path %q: %w", path, err)
	}
	if !info.IsDir() {
		return Current{}, fmt.Errorf("workspace path %q is not a directory", path)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.doc.CurrentWorkspace = clean
	p.doc.RecentWorkspaces = pushMRU(p.doc.RecentWorkspaces, clean, recentCap)

	safe := false
	if p.git != nil {
		dirty, err := p.git.IsDirty(clean)
		if err == nil {
			safe = dirty
		}
	}
	p.doc.SafeMode = safe

	if err := jsonstore.Write(p.path, &p.doc); err != nil {
		return Current{}, err
	}
	return Current{Path: clean, Hash: Hash(clean)}, nil
}

// Recent returns the MRU list of previously visited workspace paths.
func (p *Partitioner) Recent() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.doc.RecentWorkspaces))
	copy(out, p.doc.RecentWorkspaces)
	return out
}

// SafeMode reports whether the current workspace refuses mutating
// operations because its checkout is dirty.
func (p *Partitioner) SafeMode() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.SafeMode
}

func pushMRU(list []string, path string, cap int) []string {
	filtered := make([]string, 0, len(list))
	for _, existing := range list {
		if existing != path {
			filtered = append(filtered, existing)
		}
	}
	out := append([]string{path}, filtered...)
	if len(out) > cap {
		out = out[:cap]
	}
	return out
}
