package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/organ-waitlist-engine/internal/domain"
	"github.com/organ-waitlist-engine/pkg/abo"
)

// RecomputePriorityParams defines parameters for the recompute_priority tool
type RecomputePriorityParams struct {
	RecipientID string `json:"recipient_id" jsonschema:"identifier of the waitlisted recipient"`
}

// RecomputeWaitlistParams defines parameters for the recompute_waitlist tool
type RecomputeWaitlistParams struct {
	OrganType string `json:"organ_type" jsonschema:"organ the recipients wait for, e.g. kidney or liver"`
}

// RunMatchingParams defines parameters for the run_matching tool
type RunMatchingParams struct {
	DonorOrganID string `json:"donor_organ_id" jsonschema:"identifier of a stored donor organ"`
}

// SimulateMatchingParams describes a hypothetical donor organ.
type SimulateMatchingParams struct {
	DonorOrganID  string   `json:"donor_organ_id,omitempty" jsonschema:"optional label for the hypothetical organ"`
	OrganType     string   `json:"organ_type" jsonschema:"organ type, e.g. kidney or liver"`
	BloodType     string   `json:"blood_type" jsonschema:"donor ABO and Rh group, e.g. O- or AB+"`
	HLATyping     string   `json:"hla_typing,omitempty" jsonschema:"donor HLA typing, e.g. A*02:01 B*07:02 DR*15:01"`
	DonorAge      *int     `json:"donor_age,omitempty" jsonschema:"donor age in years"`
	DonorWeightKg *float64 `json:"donor_weight_kg,omitempty" jsonschema:"donor weight in kilograms"`
	DonorHeightCm *float64 `json:"donor_height_cm,omitempty" jsonschema:"donor height in centimetres"`
}

// ExplainCompatibilityParams defines parameters for the explain_compatibility tool
type ExplainCompatibilityParams struct {
	DonorOrganID string `json:"donor_organ_id" jsonschema:"identifier of a stored donor organ"`
	RecipientID  string `json:"recipient_id" jsonschema:"identifier of the recipient to evaluate"`
}

// ListMatchesParams defines parameters for the list_matches tool
type ListMatchesParams struct {
	DonorOrganID string `json:"donor_organ_id" jsonschema:"identifier of a stored donor organ"`
}

// ActiveWeightsParams is empty; the tool takes no arguments.
type ActiveWeightsParams struct{}

// MatchListResult is the list_matches payload.
type MatchListResult struct {
	DonorOrganID string         `json:"donor_organ_id"`
	Count        int            `json:"count"`
	Matches      []domain.Match `json:"matches"`
}

func (s *Server) handleRecomputePriority(ctx context.Context, req *mcp.CallToolRequest, params RecomputePriorityParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "recompute_priority").Info("Tool invoked")

	if params.RecipientID == "" {
		return s.createErrorResult("Missing required parameter", fmt.Errorf("recipient_id is required")), nil, nil
	}

	result, err := s.engine.RecomputePriority(ctx, s.actor, params.RecipientID)
	if err != nil {
		return s.engineErrorResult("recompute_priority", err), nil, nil
	}
	return nil, result, nil
}

func (s *Server) handleRecomputeWaitlist(ctx context.Context, req *mcp.CallToolRequest, params RecomputeWaitlistParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "recompute_waitlist").Info("Tool invoked")

	organ, err := domain.ParseOrganType(params.OrganType)
	if err != nil {
		return s.createErrorResult("Invalid parameter", err), nil, nil
	}

	result, err := s.engine.RecomputeWaitlist(ctx, s.actor, organ)
	if err != nil {
		return s.engineErrorResult("recompute_waitlist", err), nil, nil
	}
	return nil, result, nil
}

func (s *Server) handleRunMatching(ctx context.Context, req *mcp.CallToolRequest, params RunMatchingParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "run_matching").Info("Tool invoked")

	if params.DonorOrganID == "" {
		return s.createErrorResult("Missing required parameter", fmt.Errorf("donor_organ_id is required")), nil, nil
	}

	result, err := s.engine.RunMatching(ctx, s.actor, params.DonorOrganID)
	if err != nil {
		return s.engineErrorResult("run_matching", err), nil, nil
	}
	return nil, result, nil
}

func (s *Server) handleSimulateMatching(ctx context.Context, req *mcp.CallToolRequest, params SimulateMatchingParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "simulate_matching").Info("Tool invoked")

	donor := &domain.DonorOrgan{
		ID:            params.DonorOrganID,
		OrganType:     domain.OrganType(params.OrganType),
		BloodType:     abo.BloodType(params.BloodType),
		HLATyping:     params.HLATyping,
		DonorAge:      params.DonorAge,
		DonorWeightKg: params.DonorWeightKg,
		DonorHeightCm: params.DonorHeightCm,
	}
	if err := donor.Normalize(); err != nil {
		return s.createErrorResult("Invalid parameter", err), nil, nil
	}

	result, err := s.engine.SimulateMatching(ctx, s.actor, donor)
	if err != nil {
		return s.engineErrorResult("simulate_matching", err), nil, nil
	}
	return nil, result, nil
}

func (s *Server) handleExplainCompatibility(ctx context.Context, req *mcp.CallToolRequest, params ExplainCompatibilityParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "explain_compatibility").Info("Tool invoked")

	if params.DonorOrganID == "" || params.RecipientID == "" {
		return s.createErrorResult("Missing required parameter", fmt.Errorf("donor_organ_id and recipient_id are required")), nil, nil
	}

	explanation, err := s.engine.ExplainCompatibility(ctx, params.DonorOrganID, params.RecipientID)
	if err != nil {
		return s.engineErrorResult("explain_compatibility", err), nil, nil
	}
	return nil, explanation, nil
}

func (s *Server) handleListMatches(ctx context.Context, req *mcp.CallToolRequest, params ListMatchesParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "list_matches").Info("Tool invoked")

	if params.DonorOrganID == "" {
		return s.createErrorResult("Missing required parameter", fmt.Errorf("donor_organ_id is required")), nil, nil
	}

	matches, err := s.engine.ListMatches(ctx, params.DonorOrganID)
	if err != nil {
		return s.engineErrorResult("list_matches", err), nil, nil
	}
	return nil, MatchListResult{DonorOrganID: params.DonorOrganID, Count: len(matches), Matches: matches}, nil
}

func (s *Server) handleActiveWeights(ctx context.Context, req *mcp.CallToolRequest, params ActiveWeightsParams) (*mcp.CallToolResult, any, error) {
	s.logger.WithField("tool", "active_weights").Info("Tool invoked")

	weights, err := s.engine.ActiveWeights(ctx)
	if err != nil {
		return s.engineErrorResult("active_weights", err), nil, nil
	}
	return nil, weights, nil
}

// engineErrorResult logs an engine failure and reports it with its error code.
func (s *Server) engineErrorResult(tool string, err error) *mcp.CallToolResult {
	code := domain.CodeFor(err)
	entry := s.logger.WithFields(logrus.Fields{
		"tool":  tool,
		"code":  code,
		"error": err,
	})
	if code == domain.CodePersistenceFailure || code == domain.CodeInternalServer {
		entry.Error("Tool failed")
	} else {
		entry.Debug("Tool rejected request")
	}
	return s.createErrorResult(code, err)
}

// createErrorResult creates a standardized error result for tool calls
func (s *Server) createErrorResult(message string, err error) *mcp.CallToolResult {
	errorText := fmt.Sprintf("Error: %s", message)
	if err != nil {
		errorText += fmt.Sprintf(" - %v", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: errorText},
		},
		IsError: true,
	}
}
