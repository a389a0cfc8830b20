package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/kopi/internal/assistant"
	"github.com/kalambet/kopi/internal/calc"
	"github.com/kalambet/kopi/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Assistant *assistant.Assistant
	Store     *storage.Store
}

// NewMCPServer creates an MCP server exposing the assistant's tools.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"kopi",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("kopi: coffee-shop assistant for arithmetic, drinkware products and outlet information."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("calculate",
			mcp.WithDescription("Evaluate an arithmetic expression with + - * / % ** and parentheses."),
			mcp.WithString("expression", mcp.Description("Expression to evaluate, e.g. 12 * (3 + 4)"), mcp.Required()),
		),
		mcpCalculate(deps),
	)

	s.AddTool(
		mcp.NewTool("query_outlets",
			mcp.WithDescription("Answer a question about outlet locations, opening hours, phone numbers or services."),
			mcp.WithString("query", mcp.Description("Question about outlets, e.g. opening hours in SS2"), mcp.Required()),
		),
		mcpQueryOutlets(deps),
	)

	s.AddTool(
		mcp.NewTool("search_products",
			mcp.WithDescription("Semantically search the drinkware catalogue."),
			mcp.WithString("query", mcp.Description("What the customer is looking for"), mcp.Required()),
			mcp.WithNumber("top_k", mcp.Description("Maximum number of products (default 3)")),
		),
		mcpSearchProducts(deps),
	)

	s.AddTool(
		mcp.NewTool("chat",
			mcp.WithDescription("Send one message to the assistant and get its reply. Pass session_id to continue a conversation."),
			mcp.WithString("message", mcp.Description("User message"), mcp.Required()),
			mcp.WithString("session_id", mcp.Description("Conversation id returned by an earlier call")),
		),
		mcpChat(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"kopi://interactions/recent",
			"Recent Interactions",
			mcp.WithResourceDescription("Last 10 chat turns with the action taken"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpCalculate(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		expr, err := req.RequireString("expression")
		if err != nil {
			return mcpError("expression is required"), nil
		}

		v, err := deps.Assistant.Calculate(expr)
		switch {
		case errors.Is(err, calc.ErrDivisionByZero):
			return mcpError("division by zero is not allowed"), nil
		case err != nil:
			return mcpError(fmt.Sprintf("invalid expression: %v", err)), nil
		}
		return mcpText(v.String()), nil
	}
}

func mcpQueryOutlets(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		res, err := deps.Assistant.QueryOutlets(ctx, query)
		if err != nil {
			return mcpError(toolFailure("outlet directory", err)), nil
		}
		if res.Blocked {
			return mcpText(res.Summary), nil
		}
		return mcpText(res.Summary + "\n\nSQL: " + res.Query.Display()), nil
	}
}

func mcpSearchProducts(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		topK := req.GetInt("top_k", 0)
		if topK > 20 {
			topK = 20
		}

		res, err := deps.Assistant.SearchProducts(ctx, query, topK)
		if err != nil {
			return mcpError(toolFailure("product search", err)), nil
		}
		return mcpText(res.Summary), nil
	}
}

func mcpChat(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		message, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}

		reply, err := deps.Assistant.Respond(ctx, req.GetString("session_id", ""), message)
		if err != nil {
			return mcpError(toolFailure("conversation memory", err)), nil
		}

		b, err := json.Marshal(map[string]any{
			"session_id": reply.SessionID,
			"reply":      reply.Text,
			"action":     reply.Decision.Action,
			"confidence": reply.Decision.Confidence,
		})
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal reply: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func toolFailure(what string, err error) string {
	switch {
	case errors.Is(err, assistant.ErrEmptyInput):
		return err.Error()
	case errors.Is(err, assistant.ErrUnavailable):
		return what + " is temporarily unavailable, please retry later"
	default:
		return what + " failed"
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		interactions, err := deps.Store.RecentInteractions(ctx, 10, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to get recent interactions: %w", err)
		}

		type interactionSummary struct {
			ID        string `json:"id"`
			SessionID string `json:"session_id"`
			CreatedAt string `json:"created_at"`
			Message   string `json:"message"`
			Action    string `json:"action"`
		}

		summaries := make([]interactionSummary, len(interactions))
		for i, ix := range interactions {
			msg := ix.UserText
			if utf8.RuneCountInString(msg) > 200 {
				runes := []rune(msg)
				msg = string(runes[:200]) + "..."
			}
			summaries[i] = interactionSummary{
				ID:        ix.ID,
				SessionID: ix.SessionID,
				CreatedAt: ix.CreatedAt.Format(time.RFC3339),
				Message:   msg,
				Action:    ix.Action,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal interactions: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
