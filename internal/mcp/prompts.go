package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const reviewOfferPrompt = "review_match_offer"

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(&mcp.Prompt{
		Name:        reviewOfferPrompt,
		Title:       "Review a match offer",
		Description: "Walk a coordinator through the compatibility verdict for one donor organ and recipient",
		Arguments: []*mcp.PromptArgument{
			{Name: "donor_organ_id", Description: "identifier of a stored donor organ", Required: true},
			{Name: "recipient_id", Description: "identifier of the recipient being offered the organ", Required: true},
		},
	}, s.getReviewOfferPrompt)
}

func (s *Server) getReviewOfferPrompt(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	donorID := req.Params.Arguments["donor_organ_id"]
	recipientID := req.Params.Arguments["recipient_id"]
	if donorID == "" || recipientID == "" {
		return nil, fmt.Errorf("donor_organ_id and recipient_id are required")
	}

	explanation, err := s.engine.ExplainCompatibility(ctx, donorID, recipientID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", reviewOfferPrompt, err)
	}
	verdict, err := json.MarshalIndent(explanation, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding verdict: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Donor organ %s is being considered for recipient %s.\n", donorID, recipientID)
	fmt.Fprintf(&b, "The engine's verdict is %q", explanation.Verdict.Eligibility)
	if explanation.Verdict.Reason != "" {
		fmt.Fprintf(&b, " (reason: %s)", explanation.Verdict.Reason)
	}
	b.WriteString(".\n\n")
	b.WriteString("Summarize the blood type, HLA, size and crossmatch findings below for the transplant coordinator. ")
	b.WriteString("Point out anything that needs a clinical decision before the offer is accepted. ")
	b.WriteString("Do not change the verdict.\n\n")
	b.WriteString("```json\n")
	b.Write(verdict)
	b.WriteString("\n```\n")

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Match offer review for %s and %s", donorID, recipientID),
		Messages: []*mcp.PromptMessage{
			{Role: "user", Content: &mcp.TextContent{Text: b.String()}},
		},
	}, nil
}
