package server

import "net/http"

// handleMCPRestart restarts the external tool subsystem collaborator.
// MCP may be nil in deployments that don't wire one; the request is then
// a no-op success, matching how Router/Capability/etc. degrade gracefully
// here rather than requiring every collaborator to be present.
func (c *Core) handleMCPRestart(w http.ResponseWriter, r *http.Request) {
	if c.MCP == nil {
		writeJSON(w, http.StatusOK, map[string]any{"restarted": false})
		return
	}
	if err := c.MCP.Restart(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "restarting mcp subsystem", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"restarted": true})
}
