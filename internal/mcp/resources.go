package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/organ-waitlist-engine/internal/domain"
)

const (
	weightsURI         = "waitlist://weights/active"
	donorMatchesPrefix = "waitlist://donor-organs/"
	donorMatchesSuffix = "/matches"
	jsonMIMEType       = "application/json"
)

func (s *Server) registerResources() {
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         weightsURI,
		Name:        "active_weights",
		Description: "Priority weight configuration currently in effect",
		MIMEType:    jsonMIMEType,
	}, s.readWeights)

	s.mcpServer.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: donorMatchesPrefix + "{donor_organ_id}" + donorMatchesSuffix,
		Name:        "donor_organ_matches",
		Description: "Persisted match records for a donor organ",
		MIMEType:    jsonMIMEType,
	}, s.readDonorMatches)
}

func (s *Server) readWeights(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	weights, err := s.engine.ActiveWeights(ctx)
	if err != nil {
		return nil, s.resourceError(req.Params.URI, err)
	}
	return jsonResource(req.Params.URI, weights)
}

func (s *Server) readDonorMatches(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := req.Params.URI
	donorID, ok := donorIDFromURI(uri)
	if !ok {
		return nil, mcp.ResourceNotFoundError(uri)
	}

	matches, err := s.engine.ListMatches(ctx, donorID)
	if err != nil {
		return nil, s.resourceError(uri, err)
	}
	return jsonResource(uri, MatchListResult{DonorOrganID: donorID, Count: len(matches), Matches: matches})
}

// donorIDFromURI extracts the donor organ id from a matches resource URI.
func donorIDFromURI(uri string) (string, bool) {
	if !strings.HasPrefix(uri, donorMatchesPrefix) || !strings.HasSuffix(uri, donorMatchesSuffix) {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(uri, donorMatchesPrefix), donorMatchesSuffix)
	if id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}

func (s *Server) resourceError(uri string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return mcp.ResourceNotFoundError(uri)
	}
	s.logger.WithError(err).WithField("uri", uri).Error("Resource read failed")
	return fmt.Errorf("%s: %w", domain.CodeFor(err), err)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	body, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding resource %s: %w", uri, err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{URI: uri, MIMEType: jsonMIMEType, Text: string(body)}},
	}, nil
}
