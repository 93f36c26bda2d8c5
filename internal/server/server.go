// Package server assembles the event hub, agent runtime, workflow
// orchestrator, and request frontend into a single HTTP process. It is the
// runtime counterpart to the teacher's gateway.ManagedServer: a thin
// Start/Stop wrapper that cmd/nexus drives under signal.NotifyContext.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/internal/cache"
	"github.com/haasonsaas/nexus/internal/config"
	"github.com/haasonsaas/nexus/internal/frontend"
	"github.com/haasonsaas/nexus/internal/hub"
	"github.com/haasonsaas/nexus/internal/llmgateway"
	"github.com/haasonsaas/nexus/internal/memory"
	"github.com/haasonsaas/nexus/internal/observability"
	"github.com/haasonsaas/nexus/internal/runtime"
	"github.com/haasonsaas/nexus/internal/storage"
	"github.com/haasonsaas/nexus/internal/tools/files"
	"github.com/haasonsaas/nexus/internal/workflow"
)

// Server owns every long-lived component and the HTTP listener that
// exposes the event hub's websocket transport.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger

	stores  storage.StoreSet
	cache   *cache.Cache
	hub     *hub.Hub
	mem     *memory.Manager
	gateway *llmgateway.Gateway
	rt      *runtime.Runtime
	orch    *workflow.Orchestrator
	front   *frontend.Frontend

	httpServer *http.Server
}

// Config bundles the inputs New needs beyond the parsed config file.
type Config struct {
	Config *config.Config
	Logger *slog.Logger
}

// New constructs every component wired together per the loaded
// configuration but does not start accepting connections; call Start for
// that.
func New(c Config) (*Server, error) {
	if c.Config == nil {
		return nil, fmt.Errorf("server: config is required")
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := c.Config
	metrics := observability.NewMetrics()

	stores, err := newStoreSet(cfg)
	if err != nil {
		return nil, fmt.Errorf("server: storage: %w", err)
	}

	gw, err := llmgateway.New(cfg.LLM, metrics)
	if err != nil {
		stores.Close()
		return nil, fmt.Errorf("server: llm gateway: %w", err)
	}

	mem, err := memory.NewManager(&cfg.VectorMemory)
	if err != nil {
		stores.Close()
		return nil, fmt.Errorf("server: memory manager: %w", err)
	}

	c2 := cache.New(cfg.Cache, metrics)
	h := hub.New(cfg.Hub, metrics, logger)

	tools := newToolRegistry(cfg.Tools)

	rt := runtime.New(gw, tools, mem, stores.Messages, stores.Channels, h, metrics, logger)
	orch := workflow.New(cfg.Workflow, stores.Workflows, stores.Agents, rt, h, logger)
	front := frontend.New(stores.Channels, stores.Messages, stores.Agents, rt, orch, h, c2, logger)

	mux := http.NewServeMux()
	transport := hub.NewTransport(h, []string{"chat", "workflow"}, front.HandleInbound, logger)
	mux.Handle("/ws", transport)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	return &Server{
		cfg:     cfg,
		logger:  logger,
		stores:  stores,
		cache:   c2,
		hub:     h,
		mem:     mem,
		gateway: gw,
		rt:      rt,
		orch:    orch,
		front:   front,
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}, nil
}

func newStoreSet(cfg *config.Config) (storage.StoreSet, error) {
	if strings.TrimSpace(cfg.Database.URL) == "" {
		return storage.NewMemoryStores(), nil
	}
	dbConfig := storage.DefaultCockroachConfig()
	if cfg.Database.MaxConnections > 0 {
		dbConfig.MaxOpenConns = cfg.Database.MaxConnections
	}
	if cfg.Database.ConnMaxLifetime > 0 {
		dbConfig.ConnMaxLifetime = cfg.Database.ConnMaxLifetime
	}
	return storage.NewCockroachStoresFromDSN(cfg.Database.URL, dbConfig)
}

func newToolRegistry(cfg config.ToolsConfig) *agent.ToolRegistry {
	fcfg := files.Config{
		Workspace:    cfg.Workspace.Root,
		MaxReadBytes: int(cfg.Workspace.MaxFileBytes),
	}
	registry := agent.NewToolRegistry()
	registry.Register(files.NewReadTool(fcfg))
	registry.Register(files.NewWriteTool(fcfg))
	registry.Register(files.NewEditTool(fcfg))
	registry.Register(files.NewApplyPatchTool(fcfg))
	registry.Register(files.NewCreateDirectoryTool(fcfg))
	registry.Register(files.NewDeleteFileTool(fcfg))
	registry.Register(files.NewFileExistsTool(fcfg))
	registry.Register(files.NewListDirectoryTool(fcfg))
	return registry
}

// Start runs the HTTP listener until ctx is canceled or the listener
// fails. It blocks; callers typically run it in a goroutine and select on
// a reported error alongside ctx.Done().
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("server: listening", "addr", s.httpServer.Addr)
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Stop gracefully shuts down the HTTP listener and every owned component.
func (s *Server) Stop(ctx context.Context) error {
	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	s.hub.Close()
	if err := s.mem.Close(); err != nil {
		errs = append(errs, fmt.Errorf("memory close: %w", err))
	}
	if err := s.cache.Close(); err != nil {
		errs = append(errs, fmt.Errorf("cache close: %w", err))
	}
	if err := s.stores.Close(); err != nil {
		errs = append(errs, fmt.Errorf("storage close: %w", err))
	}
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	return fmt.Errorf("server: stop: %s", strings.Join(msgs, "; "))
}

// OpenMigrationDB opens a raw *sql.DB for schema migration commands,
// independent of the full store assembly New needs.
func OpenMigrationDB(cfg *config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.Database.URL) == "" {
		return nil, fmt.Errorf("server: database.url is required for migrations")
	}
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	dbConfig := storage.DefaultCockroachConfig()
	if cfg.Database.MaxConnections > 0 {
		dbConfig.MaxOpenConns = cfg.Database.MaxConnections
	}
	if cfg.Database.ConnMaxLifetime > 0 {
		dbConfig.ConnMaxLifetime = cfg.Database.ConnMaxLifetime
	}
	db.SetMaxOpenConns(dbConfig.MaxOpenConns)
	db.SetConnMaxLifetime(dbConfig.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), dbConfig.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// MigrationTimeout bounds a single migrate invocation.
const MigrationTimeout = 2 * time.Minute
