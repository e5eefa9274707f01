package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/organ-waitlist-engine/internal/domain"
	"github.com/organ-waitlist-engine/internal/middleware"
	"github.com/organ-waitlist-engine/internal/service"
)

// WaitlistEngine is the engine surface the HTTP facade exposes.
type WaitlistEngine interface {
	RecomputePriority(ctx context.Context, actor domain.Actor, recipientID string) (*service.PriorityResult, error)
	RecomputeWaitlist(ctx context.Context, actor domain.Actor, organ domain.OrganType) (*service.WaitlistResult, error)
	RunMatching(ctx context.Context, actor domain.Actor, donorOrganID string) (*service.MatchingResult, error)
	SimulateMatching(ctx context.Context, actor domain.Actor, donor *domain.DonorOrgan) (*service.MatchingResult, error)
	ExplainCompatibility(ctx context.Context, donorOrganID, recipientID string) (*service.Explanation, error)
	ActiveWeights(ctx context.Context) (domain.WeightConfig, error)
	SaveWeights(ctx context.Context, actor domain.Actor, w domain.WeightConfig) (domain.WeightConfig, error)
	ListMatches(ctx context.Context, donorOrganID string) ([]domain.Match, error)
	Health(ctx context.Context) error
}

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	engine        WaitlistEngine
	logger        *logrus.Logger
	router        *gin.Engine
	server        *http.Server
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, engine WaitlistEngine, logger *logrus.Logger) *Server {
	cfg := configManager.GetConfig()

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.SecurityHeaders())
	router.Use(corsMiddleware(cfg.Server.CORSOrigins))
	router.Use(middleware.Actor(cfg.Auth))
	router.Use(middleware.AuditLogger(logger))
	if cfg.RateLimit.Enabled {
		router.Use(middleware.RateLimit(middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)))
	}
	router.Use(middleware.RequestTimeout(cfg.Server.WriteTimeout))

	server := &Server{
		configManager: configManager,
		engine:        engine,
		logger:        logger,
		router:        router,
	}

	server.setupRoutes()

	return server
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if cfg.TLSEnabled {
			err = s.server.ListenAndServeTLS(cfg.CertFile, cfg.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	s.logger.WithField("addr", addr).Info("HTTP server listening")

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/recipients/:id/priority", s.handleRecomputePriority)
		v1.POST("/waitlist/:organ/priority", s.handleRecomputeWaitlist)
		v1.POST("/donor-organs/:id/matching", s.handleRunMatching)
		v1.GET("/donor-organs/:id/matches", s.handleListMatches)
		v1.GET("/donor-organs/:id/compatibility/:recipient_id", s.handleExplainCompatibility)
		v1.POST("/matching/simulate", s.handleSimulateMatching)
		v1.GET("/weights/active", s.handleActiveWeights)
		v1.PUT("/weights/active", s.handleSaveWeights)
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Correlation-ID"},
		ExposeHeaders: []string{"X-Correlation-ID"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}
