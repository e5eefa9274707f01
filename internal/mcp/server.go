// Package mcp exposes the waitlist engine as Model Context Protocol tools,
// resources and prompts.
package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/organ-waitlist-engine/internal/domain"
	"github.com/organ-waitlist-engine/internal/service"
)

// Engine is the part of the waitlist engine reachable over MCP.
type Engine interface {
	RecomputePriority(ctx context.Context, actor domain.Actor, recipientID string) (*service.PriorityResult, error)
	RecomputeWaitlist(ctx context.Context, actor domain.Actor, organ domain.OrganType) (*service.WaitlistResult, error)
	RunMatching(ctx context.Context, actor domain.Actor, donorOrganID string) (*service.MatchingResult, error)
	SimulateMatching(ctx context.Context, actor domain.Actor, donor *domain.DonorOrgan) (*service.MatchingResult, error)
	ExplainCompatibility(ctx context.Context, donorOrganID, recipientID string) (*service.Explanation, error)
	ActiveWeights(ctx context.Context) (domain.WeightConfig, error)
	ListMatches(ctx context.Context, donorOrganID string) ([]domain.Match, error)
}

const (
	serverName    = "organ-waitlist-engine"
	serverVersion = "v1.0.0"
)

// Server registers the engine tools on an MCP SDK server.
type Server struct {
	engine    Engine
	actor     domain.Actor
	impl      mcp.Implementation
	timeout   time.Duration
	mcpServer *mcp.Server
	logger    *logrus.Logger
}

// ServerOption is a functional option for Server.
type ServerOption func(*Server)

// WithActor attributes writes made through the tools to actor.
func WithActor(actor domain.Actor) ServerOption {
	return func(s *Server) {
		s.actor = actor
	}
}

// WithImplementation overrides the name and version reported to clients.
func WithImplementation(name, version string) ServerOption {
	return func(s *Server) {
		if name != "" {
			s.impl.Name = name
		}
		if version != "" {
			s.impl.Version = version
		}
	}
}

// WithRequestTimeout bounds every tool call. Zero means no bound.
func WithRequestTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		s.timeout = d
	}
}

// NewServer creates an MCP server with every engine tool registered.
func NewServer(engine Engine, logger *logrus.Logger, opts ...ServerOption) *Server {
	server := &Server{
		engine: engine,
		actor:  domain.SystemActor,
		impl:   mcp.Implementation{Name: serverName, Version: serverVersion},
		logger: logger,
	}
	for _, opt := range opts {
		opt(server)
	}

	server.mcpServer = mcp.NewServer(&server.impl, nil)
	server.registerTools()
	server.registerResources()
	server.registerPrompts()

	return server
}

// MCPServer returns the underlying SDK server, for tests and extra tools.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}

// Run serves the tools over transport until ctx is cancelled or the peer
// disconnects.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	s.logger.WithField("actor", s.actor.String()).Info("Starting MCP server")

	if err := s.mcpServer.Run(ctx, transport); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "recompute_priority",
		Description: "Recompute and store the priority score of one waitlisted recipient, returning the per-factor breakdown.",
	}, bounded(s, s.handleRecomputePriority))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "recompute_waitlist",
		Description: "Recompute priority scores for every active recipient waiting for an organ type.",
	}, bounded(s, s.handleRecomputeWaitlist))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "run_matching",
		Description: "Rank the active waitlist against a stored donor organ, persist the top matches and notify coordinators.",
	}, bounded(s, s.handleRunMatching))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "simulate_matching",
		Description: "Rank the active waitlist against a hypothetical donor organ without writing anything.",
	}, bounded(s, s.handleSimulateMatching))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "explain_compatibility",
		Description: "Explain why a recipient is or is not compatible with a stored donor organ.",
	}, bounded(s, s.handleExplainCompatibility))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_matches",
		Description: "List persisted match records for a donor organ, newest pass first.",
	}, bounded(s, s.handleListMatches))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "active_weights",
		Description: "Show the priority weight configuration currently in effect.",
	}, bounded(s, s.handleActiveWeights))

	s.logger.WithField("tool_count", 7).Debug("Registered MCP tools")
}

// bounded applies the configured request timeout to a tool handler.
func bounded[In any](s *Server, h mcp.ToolHandlerFor[In, any]) mcp.ToolHandlerFor[In, any] {
	return func(ctx context.Context, req *mcp.CallToolRequest, params In) (*mcp.CallToolResult, any, error) {
		if s.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.timeout)
			defer cancel()
		}
		return h(ctx, req, params)
	}
}
