// Package server implements ctxloomd's HTTP and WebSocket surface: a
// single stdlib net/http.ServeMux carrying every route, matching the
// teacher's gateway package's own choice of a plain mux plus a
// gorilla/websocket upgrade handler rather than a third-party router.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ctxloom/ctxloom/internal/agent/providers"
	"github.com/ctxloom/ctxloom/internal/capability"
	"github.com/ctxloom/ctxloom/internal/combo"
	"github.com/ctxloom/ctxloom/internal/config"
	"github.com/ctxloom/ctxloom/internal/failurelog"
	"github.com/ctxloom/ctxloom/internal/idemapper"
	"github.com/ctxloom/ctxloom/internal/intent"
	"github.com/ctxloom/ctxloom/internal/probe"
	"github.com/ctxloom/ctxloom/internal/prosthetic"
	"github.com/ctxloom/ctxloom/internal/workspace"
)

// MCPRestarter restarts the external tool subsystem collaborator. The
// subsystem's implementation is out of scope; Core only carries the call.
type MCPRestarter interface {
	Restart(ctx context.Context) error
}

// MCPRestarterFunc adapts a plain function to MCPRestarter.
type MCPRestarterFunc func(ctx context.Context) error

// Restart implements MCPRestarter.
func (f MCPRestarterFunc) Restart(ctx context.Context) error { return f(ctx) }

// Core is the single wiring record every handler closes over: the
// explicit, constructed-once-at-startup set of collaborators the spec's
// "singleton services" note describes, generalized from one component
// to all of them.
type Core struct {
	Config      *config.Config
	Logger      *slog.Logger
	Providers   *providers.Client
	Router      *intent.Router
	Workspace   *workspace.Partitioner
	Capability  *capability.Registry
	ComboStore  *combo.Store
	Exclusions  *combo.ExclusionTracker
	Prosthetics *prosthetic.Store
	Probes      *probe.Harness
	MCP         MCPRestarter
	RAGClient   *http.Client

	hub       *Hub
	startTime time.Time

	teamsMu sync.Mutex
	teams   map[string]*workspace.TeamStore

	logsMu sync.Mutex
	logs   map[string]*failurelog.Log

	httpServer   *http.Server
	httpListener net.Listener

	comboMu     sync.Mutex
	comboActive bool
	comboCancel context.CancelFunc

	mappingCacheOnce sync.Once
	mappingCache     *idemapper.TableCache
}

// NewCore builds a Core from its already-constructed collaborators.
// Router, Capability, ComboStore, Exclusions, Prosthetics and Probes may
// be nil; handlers that need them report a 503 rather than panic.
func NewCore(cfg *config.Config, logger *slog.Logger, providerClient *providers.Client, router *intent.Router, ws *workspace.Partitioner, capReg *capability.Registry, comboStore *combo.Store, exclusions *combo.ExclusionTracker, prostheticStore *prosthetic.Store, probes *probe.Harness, mcp MCPRestarter) *Core {
	if logger == nil {
		logger = slog.Default()
	}
	return &Core{
		Config:      cfg,
		Logger:      logger.With("component", "server"),
		Providers:   providerClient,
		Router:      router,
		Workspace:   ws,
		Capability:  capReg,
		ComboStore:  comboStore,
		Exclusions:  exclusions,
		Prosthetics: prostheticStore,
		Probes:      probes,
		MCP:         mcp,
		RAGClient:   &http.Client{Timeout: 30 * time.Second},
		hub:         newHub(),
		startTime:   time.Now(),
		teams:       map[string]*workspace.TeamStore{},
		logs:        map[string]*failurelog.Log{},
	}
}

// teamStoreFor returns (opening and caching if needed) the team store for
// the currently active workspace hash.
func (c *Core) teamStoreFor(hash string) (*workspace.TeamStore, error) {
	c.teamsMu.Lock()
	defer c.teamsMu.Unlock()
	if s, ok := c.teams[hash]; ok {
		return s, nil
	}
	s, err := workspace.OpenTeamStore(c.Config.Workspace.DataRoot, hash)
	if err != nil {
		return nil, err
	}
	c.teams[hash] = s
	return s, nil
}

// failureLogFor returns (opening and caching if needed) the failure log
// for the given workspace hash.
func (c *Core) failureLogFor(hash string) (*failurelog.Log, error) {
	c.logsMu.Lock()
	defer c.logsMu.Unlock()
	if l, ok := c.logs[hash]; ok {
		return l, nil
	}
	l, err := failurelog.Open(c.Config.Workspace.DataRoot, hash)
	if err != nil {
		return nil, err
	}
	c.logs[hash] = l
	return l, nil
}

// mappingTableFor returns the IDE tool mapping table for ide, loading
// and caching it through a TTL'd idemapper.TableCache (spec.md §5's
// "in-memory caches for model info and IDE mappings") rather than
// re-reading the mapping document off disk on every chat-completions
// request.
func (c *Core) mappingTableFor(ide idemapper.IDE) (idemapper.MappingTable, error) {
	c.mappingCacheOnce.Do(func() {
		c.mappingCache = idemapper.NewTableCache(c.Config.Workspace.DataRoot)
	})
	return c.mappingCache.Get(ide)
}

// currentWorkspaceHash resolves the active workspace's hash, falling
// back to the hash of the data root itself so the server is usable
// before any workspace switch has occurred.
func (c *Core) currentWorkspaceHash() string {
	if c.Workspace == nil {
		return workspace.Hash(c.Config.Workspace.DataRoot)
	}
	current := c.Workspace.GetCurrent()
	if current.Hash == "" {
		return workspace.Hash(c.Config.Workspace.DataRoot)
	}
	return current.Hash
}

func (c *Core) mux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", c.handleHealthz)

	mux.HandleFunc("POST /chat/completions", c.handleChatCompletions)
	mux.HandleFunc("POST /v1/chat/completions", c.handleChatCompletions)

	mux.HandleFunc("POST /api/rag/query", c.handleRAGQuery)

	mux.HandleFunc("GET /api/workspace/current", c.handleWorkspaceCurrent)
	mux.HandleFunc("POST /api/workspace/switch", c.handleWorkspaceSwitch)
	mux.HandleFunc("GET /api/workspace/recent", c.handleWorkspaceRecent)
	mux.HandleFunc("GET /api/workspace/safe-mode", c.handleWorkspaceSafeMode)

	mux.HandleFunc("GET /api/tooly/models", c.handleToolyModels)
	mux.HandleFunc("POST /api/tooly/combo-test/run", c.handleComboTestRun)
	mux.HandleFunc("POST /api/tooly/combo-test/stop", c.handleComboTestStop)
	mux.HandleFunc("POST /api/tooly/combo-test/context-test", c.handleComboContextTest)

	mux.HandleFunc("GET /api/teams", c.handleTeamsList)
	mux.HandleFunc("POST /api/teams", c.handleTeamsCreate)
	mux.HandleFunc("PUT /api/teams/{id}", c.handleTeamsUpdate)
	mux.HandleFunc("DELETE /api/teams/{id}", c.handleTeamsDelete)
	mux.HandleFunc("POST /api/teams/{id}/activate", c.handleTeamsActivate)
	mux.HandleFunc("GET /api/teams/active", c.handleTeamsActive)

	mux.HandleFunc("POST /api/mcp/restart", c.handleMCPRestart)

	mux.Handle("/ws", c.newWSHandler())

	return mux
}

// Start binds the listener and begins serving in a background goroutine,
// mirroring the teacher's startHTTPServer/Serve-in-a-goroutine idiom.
func (c *Core) Start(ctx context.Context) error {
	addr := c.Config.Server.Addr
	if addr == "" {
		addr = ":8787"
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("server listen: %w", err)
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           c.mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	c.httpServer = srv
	c.httpListener = listener

	go c.hub.run(ctx)

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.Logger.Error("http server error", "error", err)
		}
	}()

	c.Logger.Info("server started", "addr", addr)
	return nil
}

// Shutdown drains the WebSocket hub and gracefully stops the HTTP
// server, bounded by Config.Server.ShutdownTimeout.
func (c *Core) Shutdown(ctx context.Context) error {
	if c.httpServer == nil {
		return nil
	}
	timeout := c.Config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c.hub.closeAll()

	if err := c.httpServer.Shutdown(shutdownCtx); err != nil {
		c.Logger.Warn("server shutdown error", "error", err)
		return err
	}
	c.httpServer = nil
	c.httpListener = nil
	return nil
}

func (c *Core) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime_ms": time.Since(c.startTime).Milliseconds(),
	})
}
