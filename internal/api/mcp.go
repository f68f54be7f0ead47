package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/avelkin/applyq/internal/storage"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store   *storage.Store
	OwnerID string
}

// NewMCPServer creates an MCP server exposing the application queue to
// agent clients: approve leads, inspect the queue, retry failures.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"applyq",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("applyq — durable job application queue with automated form submission."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("approve_job",
			mcp.WithDescription("Approve a job lead for automated application. The lead is queued and applied to by the auto-apply drivers."),
			mcp.WithString("job_id", mcp.Description("Stable identifier of the job lead"), mcp.Required()),
			mcp.WithString("title", mcp.Description("Job title")),
			mcp.WithString("company", mcp.Description("Company name")),
			mcp.WithString("apply_url", mcp.Description("URL of the application form"), mcp.Required()),
			mcp.WithString("description", mcp.Description("Job description text")),
			mcp.WithNumber("match_score", mcp.Description("Relevance score assigned by the lead source")),
		),
		mcpApproveJob(deps),
	)

	s.AddTool(
		mcp.NewTool("queue_status",
			mcp.WithDescription("Return per-status counts of queued applications."),
		),
		mcpQueueStatus(deps),
	)

	s.AddTool(
		mcp.NewTool("list_queue",
			mcp.WithDescription("List queued applications, newest first."),
			mcp.WithNumber("limit", mcp.Description("Maximum number of entries (default 20)")),
		),
		mcpListQueue(deps),
	)

	s.AddTool(
		mcp.NewTool("retry_application",
			mcp.WithDescription("Re-queue a failed application attempt."),
			mcp.WithString("entry_id", mcp.Description("Queue entry identifier"), mcp.Required()),
		),
		mcpRetryApplication(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"applyq://stats",
			"Queue Statistics",
			mcp.WithResourceDescription("Per-status application counts as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceStats(deps),
	)

	return s
}

func mcpApproveJob(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jobID, err := req.RequireString("job_id")
		if err != nil {
			return mcpError("job_id is required"), nil
		}
		applyURL, err := req.RequireString("apply_url")
		if err != nil {
			return mcpError("apply_url is required"), nil
		}

		lead := storage.JobLead{
			ID:          jobID,
			Title:       req.GetString("title", ""),
			Company:     req.GetString("company", ""),
			ApplyURL:    applyURL,
			Description: req.GetString("description", ""),
			MatchScore:  req.GetFloat("match_score", 0),
		}

		entryID, err := deps.Store.Enqueue(deps.OwnerID, lead)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to enqueue: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Queued application %s for %q at %s", entryID, lead.Title, lead.Company)), nil
	}
}

func mcpQueueStatus(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		stats, err := deps.Store.Stats(deps.OwnerID)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to read stats: %v", err)), nil
		}
		b, err := json.Marshal(stats)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal stats: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpListQueue(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 20)
		if limit <= 0 {
			limit = 20
		}
		if limit > 100 {
			limit = 100
		}

		entries, err := deps.Store.ListByOwner(deps.OwnerID, limit)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to list queue: %v", err)), nil
		}
		if len(entries) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(entries)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal entries: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpRetryApplication(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		entryID, err := req.RequireString("entry_id")
		if err != nil {
			return mcpError("entry_id is required"), nil
		}

		ok, err := deps.Store.Retry(entryID)
		if err != nil || !ok {
			return mcpError(fmt.Sprintf("cannot retry entry %s: %v", entryID, err)), nil
		}
		return mcpText(fmt.Sprintf("Entry %s re-queued", entryID)), nil
	}
}

func mcpResourceStats(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		stats, err := deps.Store.Stats(deps.OwnerID)
		if err != nil {
			return nil, fmt.Errorf("failed to read stats: %w", err)
		}
		b, err := json.Marshal(stats)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal stats: %w", err)
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
