package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/ziadkadry99/hitl/internal/auth"
	"github.com/ziadkadry99/hitl/internal/engine"
	"github.com/ziadkadry99/hitl/internal/uncertainty"
)

// identity reads the caller from the user_id and roles arguments.
func identity(request mcp.CallToolRequest) (auth.Identity, error) {
	userID, err := request.RequireString("user_id")
	if err != nil || strings.TrimSpace(userID) == "" {
		return auth.Identity{}, auth.ErrMissingIdentity
	}
	id := auth.Identity{UserID: strings.TrimSpace(userID)}
	for _, role := range strings.Split(request.GetString("roles", ""), ",") {
		if role = strings.TrimSpace(role); role != "" {
			id.Roles = append(id.Roles, role)
		}
	}
	return id, nil
}

// interactionContext decodes the optional context object.
func interactionContext(request mcp.CallToolRequest) (uncertainty.Context, error) {
	var c uncertainty.Context
	raw, ok := request.GetArguments()["context"]
	if !ok || raw == nil {
		return c, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal(b, &c); err != nil {
		return c, fmt.Errorf("%w: context: %v", engine.ErrInvalidInput, err)
	}
	return c, nil
}

func (s *Server) result(tool string, v any, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		s.logger.Info("tool call failed", zap.String("tool", tool), zap.Error(err))
		return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", tool, err)), nil
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshaling result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

func (s *Server) handleAssessUncertainty(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := identity(request)
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: user_id"), nil
	}
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: text"), nil
	}
	c, err := interactionContext(request)
	if err != nil {
		return s.result("assess_uncertainty", nil, err)
	}
	a, err := s.engine.AssessUncertainty(ctx, id, engine.AssessRequest{Text: text, Context: c})
	return s.result("assess_uncertainty", a, err)
}

func (s *Server) handleVerifyWithEngagement(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := identity(request)
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: user_id"), nil
	}
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: text"), nil
	}
	c, err := interactionContext(request)
	if err != nil {
		return s.result("verify_with_engagement", nil, err)
	}
	res, err := s.engine.VerifyWithEngagement(ctx, id, engine.VerifyRequest{
		SessionID:           request.GetString("session_id", ""),
		Text:                text,
		Context:             c,
		EngagementThreshold: request.GetFloat("engagement_threshold", 0),
		Collaborators:       request.GetStringSlice("collaborators", nil),
	})
	return s.result("verify_with_engagement", res, err)
}

func (s *Server) handleClarificationRespond(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := identity(request)
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: user_id"), nil
	}
	sessionID, err := request.RequireString("clarification_session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: clarification_session_id"), nil
	}
	questionID, err := request.RequireString("question_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: question_id"), nil
	}
	text, err := request.RequireString("response_text")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: response_text"), nil
	}
	confidence, err := request.RequireFloat("confidence")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: confidence"), nil
	}
	res, err := s.engine.ClarificationRespond(ctx, id, engine.RespondRequest{
		SessionID:    sessionID,
		QuestionID:   questionID,
		ResponseText: text,
		Confidence:   &confidence,
	})
	return s.result("clarification_respond", res, err)
}

func (s *Server) handleClarificationStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := identity(request)
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: user_id"), nil
	}
	sessionID, err := request.RequireString("clarification_session_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: clarification_session_id"), nil
	}
	snap, err := s.engine.ClarificationStatus(ctx, id, sessionID)
	return s.result("clarification_status", snap, err)
}

func (s *Server) handleSimulateEngagement(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := identity(request)
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: user_id"), nil
	}
	text, err := request.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: text"), nil
	}
	c, err := interactionContext(request)
	if err != nil {
		return s.result("simulate_engagement", nil, err)
	}
	preview, err := s.engine.SimulateEngagement(ctx, id, engine.SimulateRequest{Text: text, Context: c})
	return s.result("simulate_engagement", preview, err)
}
