package server

import (
	"net/http"

	"github.com/ctxloom/ctxloom/internal/workspace"
)

type teamRequest struct {
	Name            string `json:"name"`
	MainModelID     string `json:"mainModelId"`
	ExecutorModelID string `json:"executorModelId"`
}

func (c *Core) currentTeamStore() (*workspace.TeamStore, error) {
	return c.teamStoreFor(c.currentWorkspaceHash())
}

func (c *Core) handleTeamsList(w http.ResponseWriter, r *http.Request) {
	store, err := c.currentTeamStore()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "opening team store", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"teams": store.List()})
}

func (c *Core) handleTeamsCreate(w http.ResponseWriter, r *http.Request) {
	var req teamRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.Name == "" || req.MainModelID == "" || req.ExecutorModelID == "" {
		writeError(w, http.StatusBadRequest, "name, mainModelId, and executorModelId are required", nil)
		return
	}
	store, err := c.currentTeamStore()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "opening team store", err.Error())
		return
	}
	team, err := store.Create(req.Name, req.MainModelID, req.ExecutorModelID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "creating team", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, team)
}

func (c *Core) handleTeamsUpdate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req teamRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	store, err := c.currentTeamStore()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "opening team store", err.Error())
		return
	}
	team, err := store.Update(id, req.Name, req.MainModelID, req.ExecutorModelID)
	if err != nil {
		writeError(w, http.StatusNotFound, "updating team", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, team)
}

func (c *Core) handleTeamsDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	store, err := c.currentTeamStore()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "opening team store", err.Error())
		return
	}
	if err := store.Delete(id); err != nil {
		writeError(w, http.StatusInternalServerError, "deleting team", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *Core) handleTeamsActivate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	store, err := c.currentTeamStore()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "opening team store", err.Error())
		return
	}
	team, err := store.Activate(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "activating team", err.Error())
		return
	}
	c.hub.Broadcast(EventSessionUpdated, map[string]any{"activeTeam": team})
	writeJSON(w, http.StatusOK, team)
}

func (c *Core) handleTeamsActive(w http.ResponseWriter, r *http.Request) {
	store, err := c.currentTeamStore()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "opening team store", err.Error())
		return
	}
	team, ok := store.Active()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"active": nil})
		return
	}
	writeJSON(w, http.StatusOK, team)
}
