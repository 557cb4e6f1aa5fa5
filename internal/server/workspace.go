package server

import (
	"net/http"
)

type workspaceCurrentResponse struct {
	Path string `json:"path"`
	Hash string `json:"hash"`
}

type workspaceSwitchRequest struct {
	Path string `json:"path"`
}

func (c *Core) handleWorkspaceCurrent(w http.ResponseWriter, r *http.Request) {
	if c.Workspace == nil {
		writeError(w, http.StatusServiceUnavailable, "workspace partitioner unavailable", nil)
		return
	}
	current := c.Workspace.GetCurrent()
	writeJSON(w, http.StatusOK, workspaceCurrentResponse{Path: current.Path, Hash: current.Hash})
}

func (c *Core) handleWorkspaceSwitch(w http.ResponseWriter, r *http.Request) {
	if c.Workspace == nil {
		writeError(w, http.StatusServiceUnavailable, "workspace partitioner unavailable", nil)
		return
	}
	var req workspaceSwitchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required", nil)
		return
	}
	current, err := c.Workspace.Switch(req.Path)
	if err != nil {
		writeError(w, http.StatusBadRequest, "switching workspace", err.Error())
		return
	}
	c.hub.Broadcast(EventSessionUpdated, map[string]any{"workspace": current})
	writeJSON(w, http.StatusOK, workspaceCurrentResponse{Path: current.Path, Hash: current.Hash})
}

func (c *Core) handleWorkspaceRecent(w http.ResponseWriter, r *http.Request) {
	if c.Workspace == nil {
		writeJSON(w, http.StatusOK, map[string]any{"recent": []string{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"recent": c.Workspace.Recent()})
}

func (c *Core) handleWorkspaceSafeMode(w http.ResponseWriter, r *http.Request) {
	if c.Workspace == nil {
		writeJSON(w, http.StatusOK, map[string]any{"safe_mode": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"safe_mode": c.Workspace.SafeMode()})
}
