package combo

import (
	"path/filepath"
	"sync"

	"github.com/ctxloom/ctxloom/internal/jsonstore"
)

type storeDoc struct {
	Version int               `json:"version"`
	Records map[string]Record `json:"records"`
}

// Store persists combo records to combo-results.json, adjacent to the
// capability registry.
type Store struct {
	mu   sync.RWMutex
	path string
	doc  storeDoc
}

// OpenStore loads (or initializes) the combo results store at
// <dataRoot>/combo-results.json.
func OpenStore(dataRoot string) (*Store, error) {
	s := &Store{path: filepath.Join(dataRoot, "combo-results.json")}
	found, err := jsonstore.Read(s.path, &s.doc)
	if err != nil {
		return nil, err
	}
	if !found || s.doc.Records == nil {
		s.doc = storeDoc{Version: 1, Records: map[string]Record{}}
	}
	return s, nil
}

// Save replaces any existing record for the same pair.
func (s *Store) Save(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc.Records == nil {
		s.doc.Records = map[string]Record{}
	}
	s.doc.Records[r.Key()] = r
	return jsonstore.Write(s.path, &s.doc)
}

// Get returns the stored record for a (main, executor) pair, if any.
func (s *Store) Get(mainID, executorID string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.doc.Records[Record{MainModelID: mainID, ExecutorModelID: executorID}.Key()]
	return r, ok
}

// All returns every stored combo record, sorted by overall score desc.
func (s *Store) All() []Record {
	s.mu.RLock()
	out := make([]Record, 0, len(s.doc.Records))
	for _, r := range s.doc.Records {
		out = append(out, r)
	}
	s.mu.RUnlock()
	SortByOverall(out)
	return out
}
