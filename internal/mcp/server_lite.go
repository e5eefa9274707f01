// The standalone server runs on an embedded SQLite store.

package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	litecfg "github.com/organ-waitlist-engine/internal/config"
	"github.com/organ-waitlist-engine/internal/domain"
	"github.com/organ-waitlist-engine/internal/litestore"
	"github.com/organ-waitlist-engine/internal/lock"
	"github.com/organ-waitlist-engine/internal/service"
)

// LiteServer is a standalone MCP server that requires no external databases.
// It keeps all engine state in a SQLite file under the data directory.
type LiteServer struct {
	config *litecfg.LiteConfig
	store  *litestore.Store
	engine *service.Engine
	server *Server
	actor  domain.Actor
	logger *logrus.Logger
}

// LiteServerOption is a functional option for LiteServer.
type LiteServerOption func(*LiteServer) error

// WithStore sets a custom SQLite store.
func WithStore(store *litestore.Store) LiteServerOption {
	return func(s *LiteServer) error {
		s.store = store
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) LiteServerOption {
	return func(s *LiteServer) error {
		s.logger = logger
		return nil
	}
}

// WithLiteActor attributes tool writes to actor instead of the system actor.
func WithLiteActor(actor domain.Actor) LiteServerOption {
	return func(s *LiteServer) error {
		if actor.ID == "" {
			return fmt.Errorf("actor id is required")
		}
		s.actor = actor
		return nil
	}
}

// NewLiteServer creates a standalone MCP server instance.
func NewLiteServer(ctx context.Context, cfg *litecfg.LiteConfig, opts ...LiteServerOption) (*LiteServer, error) {
	server := &LiteServer{
		config: cfg,
		actor:  domain.SystemActor,
	}

	for _, opt := range opts {
		if err := opt(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if server.logger == nil {
		logger, err := litecfg.NewLogger(cfg.LoggingConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		server.logger = logger
	}

	if server.store == nil {
		if err := cfg.EnsureDataDir(); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		store, err := litestore.Open(cfg.StoreDBPath(), server.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open store: %w", err)
		}
		server.store = store
	}

	if cfg.SeedFile != "" {
		if err := server.loadSeed(ctx, cfg.SeedFile); err != nil {
			server.store.Close()
			return nil, err
		}
	}

	engine, err := service.NewEngine(server.store, lock.NewLocal(), cfg.EngineConfig(), server.logger)
	if err != nil {
		server.store.Close()
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	server.engine = engine

	server.server = NewServer(engine, server.logger, WithActor(server.actor))
	server.registerStoreTools()

	server.logger.WithField("db_path", server.store.Path()).Info("Lite server initialized successfully")
	return server, nil
}

func (s *LiteServer) loadSeed(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()

	if _, err := s.store.LoadSeed(ctx, f); err != nil {
		return fmt.Errorf("failed to load seed file %s: %w", path, err)
	}
	return nil
}

// ExportMatchesParams defines parameters for the export_matches tool
type ExportMatchesParams struct {
	DonorOrganID string `json:"donor_organ_id,omitempty" jsonschema:"restrict the export to one donor organ"`
}

// ImportMatchesParams defines parameters for the import_matches tool
type ImportMatchesParams struct {
	Path string `json:"path" jsonschema:"path of a match export file"`
}

// TransferResult reports an export or import.
type TransferResult struct {
	Path     string `json:"path"`
	Imported int    `json:"imported,omitempty"`
	Skipped  int    `json:"skipped,omitempty"`
}

// registerStoreTools adds the match-history hand-off tools that only the
// SQLite store supports.
func (s *LiteServer) registerStoreTools() {
	mcp.AddTool(s.server.MCPServer(), &mcp.Tool{
		Name:        "export_matches",
		Description: "Write persisted match records to a versioned JSON file in the export directory.",
	}, s.handleExportMatches)

	mcp.AddTool(s.server.MCPServer(), &mcp.Tool{
		Name:        "import_matches",
		Description: "Load match records from an export file, skipping records already present.",
	}, s.handleImportMatches)
}

func (s *LiteServer) handleExportMatches(ctx context.Context, req *mcp.CallToolRequest, params ExportMatchesParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "export_matches").Info("Tool invoked")

	if err := os.MkdirAll(s.config.ExportDir(), 0o755); err != nil {
		return s.server.createErrorResult("Failed to create export directory", err), nil, nil
	}

	name := fmt.Sprintf("matches-%s.json", time.Now().UTC().Format("20060102T150405"))
	if params.DonorOrganID != "" {
		name = fmt.Sprintf("matches-%s-%s.json", params.DonorOrganID, time.Now().UTC().Format("20060102T150405"))
	}
	path := filepath.Join(s.config.ExportDir(), filepath.Base(name))

	f, err := os.Create(path)
	if err != nil {
		return s.server.createErrorResult("Failed to create export file", err), nil, nil
	}
	defer f.Close()

	if err := s.store.ExportMatches(ctx, f, params.DonorOrganID); err != nil {
		return s.server.engineErrorResult("export_matches", err), nil, nil
	}
	return nil, TransferResult{Path: path}, nil
}

func (s *LiteServer) handleImportMatches(ctx context.Context, req *mcp.CallToolRequest, params ImportMatchesParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "import_matches").Info("Tool invoked")

	if params.Path == "" {
		return s.server.createErrorResult("Missing required parameter", fmt.Errorf("path is required")), nil, nil
	}

	f, err := os.Open(params.Path)
	if err != nil {
		return s.server.createErrorResult("Failed to open import file", err), nil, nil
	}
	defer f.Close()

	imported, skipped, err := s.store.ImportMatches(ctx, f)
	if err != nil {
		return s.server.engineErrorResult("import_matches", err), nil, nil
	}
	return nil, TransferResult{Path: params.Path, Imported: imported, Skipped: skipped}, nil
}

// Start runs the lite MCP server over stdio.
func (s *LiteServer) Start(ctx context.Context) error {
	s.logger.Info("Starting organ waitlist MCP server (lite)...")

	if s.config.Transport != "" && s.config.Transport != "stdio" {
		return fmt.Errorf("unsupported transport %q", s.config.Transport)
	}
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Close cleans up server resources.
func (s *LiteServer) Close() error {
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.WithError(err).Error("Failed to close store")
			return err
		}
	}
	return nil
}

// Server returns the tool server, for in-process transports.
func (s *LiteServer) Server() *Server {
	return s.server
}

// Store returns the SQLite store for external access.
func (s *LiteServer) Store() *litestore.Store {
	return s.store
}
