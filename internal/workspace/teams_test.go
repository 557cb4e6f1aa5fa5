package workspace

import (
	"path/filepath"
	"testing"
)

func TestTeamStoreCreateUpdateActivate(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenTeamStore(dir, "abc123")
	if err != nil {
		t.Fatalf("OpenTeamStore: %v", err)
	}

	team, err := store.Create("fast loop", "gpt-4o", "local-qwen")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if team.ID == "" {
		t.Fatal("expected a generated ID")
	}

	other, err := store.Create("careful loop", "claude-opus", "claude-haiku")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, ok := store.Active(); ok {
		t.Fatal("expected no active team before Activate")
	}

	if _, err := store.Activate(team.ID); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	active, ok := store.Active()
	if !ok || active.ID != team.ID {
		t.Fatalf("expected %s active, got %+v (ok=%v)", team.ID, active, ok)
	}

	if _, err := store.Activate(other.ID); err != nil {
		t.Fatalf("Activate other: %v", err)
	}
	active, ok = store.Active()
	if !ok || active.ID != other.ID {
		t.Fatalf("expected %s active after switch, got %+v", other.ID, active)
	}
	first, _ := store.Get(team.ID)
	if first.Active {
		t.Fatal("expected first team to be deactivated")
	}

	updated, err := store.Update(other.ID, "renamed", "gpt-4o", "local-qwen")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Name != "renamed" || !updated.Active {
		t.Fatalf("update did not preserve Active flag or apply name: %+v", updated)
	}

	if err := store.Delete(team.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := store.Get(team.ID); ok {
		t.Fatal("expected deleted team to be gone")
	}

	reopened, err := OpenTeamStore(dir, "abc123")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if len(reopened.List()) != 1 {
		t.Fatalf("expected 1 team to persist, got %d", len(reopened.List()))
	}

	_ = filepath.Join(dir, "projects", "abc123", "teams.json")
}
