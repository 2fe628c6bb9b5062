// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the workspace and import tasks to LLM clients via stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/tabkeep/internal/jobs"
	"github.com/starford/tabkeep/internal/models"
	"github.com/starford/tabkeep/internal/storage"
	"github.com/starford/tabkeep/internal/tasks"
	"github.com/starford/tabkeep/internal/workspace"
)

const routesURI = "tabkeep://routes"

// Deps are the components the tools operate on.
type Deps struct {
	Workspace *workspace.Workspace
	Tasks     *tasks.Registry
	Pipeline  *jobs.Pipeline
	Uploads   storage.Provider
}

// Server wraps the MCP server with tabkeep tools.
type Server struct {
	mcp  *server.MCPServer
	deps Deps
	now  func() time.Time
}

// New creates a new MCP server with all tools registered.
func New(deps Deps, version string) *Server {
	s := &Server{deps: deps, now: time.Now}

	s.mcp = server.NewMCPServer(
		"tabkeep",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List import tasks. Buckets mirror the floating status panel: "+
			"processing (parsing or importing), recent (completed within the recent window), "+
			"attention (waiting for confirmation or failed), all."),
		mcp.WithString("bucket", mcp.Description("processing, recent, attention or all (default all)")),
	), s.listTasks)

	s.mcp.AddTool(mcp.NewTool("confirm_task",
		mcp.WithDescription("Confirm an import task waiting in preview so it gets committed."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Task id")),
	), s.confirmTask)

	s.mcp.AddTool(mcp.NewTool("dismiss_task",
		mcp.WithDescription("Permanently remove an import task record."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Task id")),
	), s.dismissTask)

	s.mcp.AddTool(mcp.NewTool("submit_import",
		mcp.WithDescription("Start an import from a CSV or XLSX file given as a base64 data URI "+
			"or an http(s) URL."),
		mcp.WithString("url", mcp.Required(), mcp.Description("data: URI or http(s) URL of the file")),
		mcp.WithString("filename", mcp.Description("File name; must end in .csv or .xlsx when the URL does not tell")),
		mcp.WithBoolean("auto_commit", mcp.Description("Commit without waiting for confirmation")),
	), s.submitImport)

	s.mcp.AddTool(mcp.NewTool("workspace",
		mcp.WithDescription("Return the open tabs, the active tab, the current location and retained pages."),
	), s.workspaceState)

	s.mcp.AddTool(mcp.NewTool("navigate",
		mcp.WithDescription("Navigate the workspace to a location, opening a tab for retained routes."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Location, e.g. /orders")),
	), s.navigate)

	s.mcp.AddTool(mcp.NewTool("close_tab",
		mcp.WithDescription("Close an open tab. The home tab cannot be closed."),
		mcp.WithString("key", mcp.Required(), mcp.Description("Route key of the tab")),
	), s.closeTab)

	s.mcp.AddResource(
		mcp.NewResource(routesURI, "Route table",
			mcp.WithResourceDescription("Configured routes with their keep-alive and home flags."),
			mcp.WithMIMEType("application/json"),
		),
		s.readRoutesResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) listTasks(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	bucket := req.GetString("bucket", "all")
	var list []models.Task
	switch bucket {
	case "all", "":
		list = s.deps.Tasks.List(tasks.Filter{})
	case "processing":
		list = s.deps.Tasks.Summarize(s.now()).Processing
	case "recent":
		list = s.deps.Tasks.Summarize(s.now()).RecentlyCompleted
	case "attention":
		list = s.deps.Tasks.Summarize(s.now()).NeedsAttention
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown bucket: %s", bucket)), nil
	}
	if len(list) == 0 {
		return mcp.NewToolResultText("no tasks"), nil
	}
	return jsonResult(list), nil
}

func (s *Server) confirmTask(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.deps.Pipeline.Confirm(id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	t, _ := s.deps.Tasks.Get(id)
	return jsonResult(t), nil
}

func (s *Server) dismissTask(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.deps.Pipeline.Dismiss(id); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("dismissed: %s", id)), nil
}

func (s *Server) workspaceState(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.deps.Workspace.State()), nil
}

func (s *Server) navigate(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	st, err := s.deps.Workspace.Dispatch(workspace.Action{Type: workspace.ActionNavigate, Path: path})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(st), nil
}

func (s *Server) closeTab(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	key, err := req.RequireString("key")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	st, err := s.deps.Workspace.Dispatch(workspace.Action{Type: workspace.ActionClose, Key: key})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(st), nil
}

func (s *Server) readRoutesResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	out, err := json.MarshalIndent(s.deps.Workspace.Routes().All(), "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      routesURI,
			MIMEType: "application/json",
			Text:     string(out),
		},
	}, nil
}
