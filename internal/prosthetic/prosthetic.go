// Package prosthetic stores corrective prompt fragments keyed by model
// (C5): a prompt fragment and an injection level the router folds into a
// model's system prompt once per turn. Content is updated out-of-band by
// a controller workflow not in scope here; this package only stores and
// serves it, treated as an injected dependency rather than something the
// router computes itself.
package prosthetic

import (
	"path/filepath"
	"sync"

	"github.com/ctxloom/ctxloom/internal/jsonstore"
)

// InjectionLevel controls how prescriptive a prosthetic fragment is; 1 is
// a gentle nudge, 3 rewrites behavior outright.
type InjectionLevel int

const (
	InjectionGentle       InjectionLevel = 1
	InjectionModerate     InjectionLevel = 2
	InjectionPrescriptive InjectionLevel = 3
)

// Fragment is a single stored corrective prompt fragment.
type Fragment struct {
	Text  string         `json:"text"`
	Level InjectionLevel `json:"level"`
}

type storeDoc struct {
	Version   int                 `json:"version"`
	Fragments map[string]Fragment `json:"fragments"`
}

// Store is the modelId → Fragment lookup the router consults at most once
// per turn per model.
type Store struct {
	mu   sync.RWMutex
	path string
	doc  storeDoc
}

// Open loads (or initializes) the prosthetic store at
// <dataRoot>/prosthetics.json.
func Open(dataRoot string) (*Store, error) {
	s := &Store{path: filepath.Join(dataRoot, "prosthetics.json")}
	found, err := jsonstore.Read(s.path, &s.doc)
	if err != nil {
		return nil, err
	}
	if !found || s.doc.Fragments == nil {
		s.doc = storeDoc{Version: 1, Fragments: map[string]Fragment{}}
	}
	return s, nil
}

// Get returns the fragment for modelID, if one is stored.
func (s *Store) Get(modelID string) (Fragment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.doc.Fragments[modelID]
	return f, ok
}

// Set stores (or replaces) the fragment for modelID.
func (s *Store) Set(modelID string, f Fragment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc.Fragments == nil {
		s.doc.Fragments = map[string]Fragment{}
	}
	s.doc.Fragments[modelID] = f
	return jsonstore.Write(s.path, &s.doc)
}

// Delete removes any stored fragment for modelID.
func (s *Store) Delete(modelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.doc.Fragments, modelID)
	return jsonstore.Write(s.path, &s.doc)
}

// Inject folds a model's fragment (if any) after base, its injection
// level deciding nothing about ordering — callers that need prescriptive
// fragments to dominate should check Level before calling Inject.
func Inject(base string, f Fragment, ok bool) string {
	if !ok || f.Text == "" {
		return base
	}
	return base + "\n\n" + f.Text
}
