package workspace

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ctxloom/ctxloom/internal/jsonstore"
)

// Team is a saved main/executor routing preset scoped to a workspace, per
// C11's binding of mutable settings to workspace identity. Activating one
// team at a time determines which pairing the intent router uses for new
// turns in that workspace.
type Team struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	MainModelID     string    `json:"main_model_id"`
	ExecutorModelID string    `json:"executor_model_id"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type teamsDoc struct {
	Version int             `json:"version"`
	Teams   map[string]Team `json:"teams"`
}

// TeamStore persists the teams for one workspace hash at
// <dataRoot>/projects/<hash>/teams.json, the same per-workspace path
// convention the failure log uses.
type TeamStore struct {
	mu   sync.Mutex
	path string
	doc  teamsDoc
}

// OpenTeamStore loads (or initializes) the team store for workspaceHash.
func OpenTeamStore(dataRoot, workspaceHash string) (*TeamStore, error) {
	s := &TeamStore{path: filepath.Join(dataRoot, "projects", workspaceHash, "teams.json")}
	found, err := jsonstore.Read(s.path, &s.doc)
	if err != nil {
		return nil, fmt.Errorf("loading team store: %w", err)
	}
	if !found || s.doc.Teams == nil {
		s.doc = teamsDoc{Version: 1, Teams: map[string]Team{}}
	}
	return s, nil
}

// List returns every saved team.
func (s *TeamStore) List() []Team {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Team, 0, len(s.doc.Teams))
	for _, t := range s.doc.Teams {
		out = append(out, t)
	}
	return out
}

// Get returns one team by id.
func (s *TeamStore) Get(id string) (Team, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.doc.Teams[id]
	return t, ok
}

// Create saves a new team and returns it with a generated ID.
func (s *TeamStore) Create(name, mainModelID, executorModelID string) (Team, error) {
	now := time.Now().UTC()
	t := Team{
		ID:              uuid.NewString(),
		Name:            name,
		MainModelID:     mainModelID,
		ExecutorModelID: executorModelID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc.Teams == nil {
		s.doc.Teams = map[string]Team{}
	}
	s.doc.Teams[t.ID] = t
	if err := jsonstore.Write(s.path, &s.doc); err != nil {
		return Team{}, err
	}
	return t, nil
}

// Update replaces an existing team's name/model pairing, preserving its
// ID, Active flag, and CreatedAt.
func (s *TeamStore) Update(id, name, mainModelID, executorModelID string) (Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.doc.Teams[id]
	if !ok {
		return Team{}, fmt.Errorf("team %q not found", id)
	}
	existing.Name = name
	existing.MainModelID = mainModelID
	existing.ExecutorModelID = executorModelID
	existing.UpdatedAt = time.Now().UTC()
	s.doc.Teams[id] = existing
	if err := jsonstore.Write(s.path, &s.doc); err != nil {
		return Team{}, err
	}
	return existing, nil
}

// Delete removes a team. Deleting the active team leaves no team active.
func (s *TeamStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.doc.Teams, id)
	return jsonstore.Write(s.path, &s.doc)
}

// Activate marks id as the sole active team, deactivating any other.
func (s *TeamStore) Activate(id string) (Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.doc.Teams[id]
	if !ok {
		return Team{}, fmt.Errorf("team %q not found", id)
	}
	for key, t := range s.doc.Teams {
		if t.Active && key != id {
			t.Active = false
			s.doc.Teams[key] = t
		}
	}
	target.Active = true
	target.UpdatedAt = time.Now().UTC()
	s.doc.Teams[id] = target
	if err := jsonstore.Write(s.path, &s.doc); err != nil {
		return Team{}, err
	}
	return target, nil
}

// Active returns the currently active team, if any.
func (s *TeamStore) Active() (Team, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.doc.Teams {
		if t.Active {
			return t, true
		}
	}
	return Team{}, false
}
