package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/organ-waitlist-engine/internal/domain"
	"github.com/organ-waitlist-engine/internal/middleware"
)

func (s *Server) handleHealth(c *gin.Context) {
	status, code := "healthy", http.StatusOK
	database := "ok"
	if err := s.engine.Health(c.Request.Context()); err != nil {
		status, code, database = "unhealthy", http.StatusServiceUnavailable, err.Error()
	}
	c.JSON(code, gin.H{
		"status":    status,
		"database":  database,
		"timestamp": time.Now().UTC(),
		"version":   Version,
	})
}

func (s *Server) handleRecomputePriority(c *gin.Context) {
	result, err := s.engine.RecomputePriority(c.Request.Context(), middleware.ActorFrom(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleRecomputeWaitlist(c *gin.Context) {
	organ, err := domain.ParseOrganType(c.Param("organ"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	result, err := s.engine.RecomputeWaitlist(c.Request.Context(), middleware.ActorFrom(c), organ)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleRunMatching(c *gin.Context) {
	result, err := s.engine.RunMatching(c.Request.Context(), middleware.ActorFrom(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleSimulateMatching(c *gin.Context) {
	var donor domain.DonorOrgan
	if err := c.ShouldBindJSON(&donor); err != nil {
		s.writeError(c, domain.NewValidationError("body", err.Error(), nil))
		return
	}
	if err := donor.Normalize(); err != nil {
		s.writeError(c, err)
		return
	}
	result, err := s.engine.SimulateMatching(c.Request.Context(), middleware.ActorFrom(c), &donor)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleListMatches(c *gin.Context) {
	matches, err := s.engine.ListMatches(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"donor_organ_id": c.Param("id"),
		"count":          len(matches),
		"matches":        matches,
	})
}

func (s *Server) handleExplainCompatibility(c *gin.Context) {
	explanation, err := s.engine.ExplainCompatibility(c.Request.Context(), c.Param("id"), c.Param("recipient_id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, explanation)
}

func (s *Server) handleActiveWeights(c *gin.Context) {
	weights, err := s.engine.ActiveWeights(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, weights)
}

func (s *Server) handleSaveWeights(c *gin.Context) {
	var w domain.WeightConfig
	if err := c.ShouldBindJSON(&w); err != nil {
		s.writeError(c, domain.NewValidationError("body", err.Error(), nil))
		return
	}
	saved, err := s.engine.SaveWeights(c.Request.Context(), middleware.ActorFrom(c), w)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, saved)
}

// writeError maps an engine error to its HTTP status and a standard error body.
// Internal failures are logged in full but reported generically.
func (s *Server) writeError(c *gin.Context, err error) {
	code := domain.CodeFor(err)
	status := statusFor(code)
	message := err.Error()

	var validation *domain.ValidationError
	details := ""
	if errors.As(err, &validation) {
		details = validation.Field
	}

	fields := logrus.Fields{
		"correlation_id": c.GetString(middleware.CorrelationIDKey),
		"code":           code,
		"error":          err,
	}
	if status >= http.StatusInternalServerError {
		s.logger.WithFields(fields).Error("Request failed")
		if code == domain.CodeInternalServer {
			message = "internal server error"
		}
	} else {
		s.logger.WithFields(fields).Debug("Request rejected")
	}

	c.AbortWithStatusJSON(status, domain.NewEngineError(code, message, details, c.GetString(middleware.CorrelationIDKey)))
}

func statusFor(code string) int {
	switch code {
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeInvalidInput:
		return http.StatusBadRequest
	case domain.CodeDataError:
		return http.StatusUnprocessableEntity
	case domain.CodePersistenceFailure:
		return http.StatusServiceUnavailable
	case domain.CodeRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
