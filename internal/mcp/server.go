package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/tracker/internal/issues"
	"github.com/joescharf/tracker/internal/models"
)

// Server exposes the issue operations as MCP tools.
type Server struct {
	issues  *issues.Service
	logger  *slog.Logger
	version string
}

// NewServer creates the MCP server wrapper.
func NewServer(svc *issues.Service, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{issues: svc, logger: logger, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("tracker", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.createIssueTool())
	srv.AddTool(s.queryIssuesTool())
	srv.AddTool(s.updateIssueTool())
	srv.AddTool(s.deleteIssueTool())

	return srv
}

// ServeStdio serves MCP over the given streams, blocking until ctx is cancelled or in closes.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	stdioServer := server.NewStdioServer(s.MCPServer())
	return stdioServer.Listen(ctx, in, out)
}

// outcome mirrors the HTTP body of update/delete results and domain errors.
type outcome struct {
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
	ID     string `json:"_id,omitempty"`
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// errorResult reports a failed operation. Domain errors carry the echoed id like the
// HTTP API does; anything else is logged and reported by message.
func (s *Server) errorResult(tool string, err error, id string) (*mcp.CallToolResult, error) {
	if !issues.IsDomainError(err) && !issues.IsInputError(err) {
		s.logger.Error("tool failed", "tool", tool, "error", err)
	}
	data, merr := json.Marshal(outcome{Error: err.Error(), ID: id})
	if merr != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultError(string(data)), nil
}

// issue_create
func (s *Server) createIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("issue_create",
		mcp.WithDescription("Create an issue in a project. Returns the created issue as JSON, including its _id, open flag and timestamps."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project name")),
		mcp.WithString(models.FieldIssueTitle, mcp.Required(), mcp.Description("Issue title")),
		mcp.WithString(models.FieldIssueText, mcp.Required(), mcp.Description("Issue description")),
		mcp.WithString(models.FieldCreatedBy, mcp.Required(), mcp.Description("Reporter")),
		mcp.WithString(models.FieldAssignedTo, mcp.Description("Assignee")),
		mcp.WithString(models.FieldStatusText, mcp.Description("Free-form status")),
	)
	return tool, s.handleCreateIssue
}

func (s *Server) handleCreateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := request.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: project"), nil
	}

	in := issues.CreateInput{
		IssueTitle: request.GetString(models.FieldIssueTitle, ""),
		IssueText:  request.GetString(models.FieldIssueText, ""),
		CreatedBy:  request.GetString(models.FieldCreatedBy, ""),
		AssignedTo: request.GetString(models.FieldAssignedTo, ""),
		StatusText: request.GetString(models.FieldStatusText, ""),
	}

	issue, err := s.issues.Create(ctx, project, in)
	if err != nil {
		return s.errorResult("issue_create", err, "")
	}
	return jsonResult(issue)
}

// issue_query
func (s *Server) queryIssuesTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("issue_query",
		mcp.WithDescription("List the issues of a project. Every optional argument is an exact-match filter; open accepts true/false and timestamps use RFC 3339."),
		mcp.WithString("project", mcp.Required(), mcp.Description("Project name")),
		mcp.WithString(models.FieldID, mcp.Description("Issue id")),
		mcp.WithString(models.FieldIssueTitle, mcp.Description("Title")),
		mcp.WithString(models.FieldIssueText, mcp.Description("Description")),
		mcp.WithString(models.FieldCreatedBy, mcp.Description("Reporter")),
		mcp.WithString(models.FieldAssignedTo, mcp.Description("Assignee")),
		mcp.WithString(models.FieldStatusText, mcp.Description("Status text")),
		mcp.WithString(models.FieldOpen, mcp.Description("Open flag: true or false")),
		mcp.WithString(models.FieldCreatedOn, mcp.Description("Creation time")),
		mcp.WithString(models.FieldUpdatedOn, mcp.Description("Last update time")),
	)
	return tool, s.handleQueryIssues
}

func (s *Server) handleQueryIssues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project, err := request.RequireString("project")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: project"), nil
	}

	params := make(map[string]string)
	for key, v := range request.GetArguments() {
		if key == "project" || v == nil {
			continue
		}
		params[key] = fmt.Sprint(v)
	}

	found, err := s.issues.Query(ctx, project, params)
	if err != nil {
		return s.errorResult("issue_query", err, "")
	}
	return jsonResult(found)
}

// issue_update
func (s *Server) updateIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("issue_update",
		mcp.WithDescription("Update fields of an issue by _id. Empty values are ignored. Returns {result, _id} or {error, _id}."),
		mcp.WithString(models.FieldID, mcp.Description("Issue id")),
		mcp.WithString(models.FieldIssueTitle, mcp.Description("New title")),
		mcp.WithString(models.FieldIssueText, mcp.Description("New description")),
		mcp.WithString(models.FieldCreatedBy, mcp.Description("New reporter")),
		mcp.WithString(models.FieldAssignedTo, mcp.Description("New assignee")),
		mcp.WithString(models.FieldStatusText, mcp.Description("New status text")),
		mcp.WithBoolean(models.FieldOpen, mcp.Description("Open flag")),
	)
	return tool, s.handleUpdateIssue
}

func (s *Server) handleUpdateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	fields := issues.Fields(request.GetArguments())
	if fields == nil {
		fields = issues.Fields{}
	}

	id, err := s.issues.Update(ctx, fields)
	if err != nil {
		return s.errorResult("issue_update", err, id)
	}
	return jsonResult(outcome{Result: "successfully updated", ID: id})
}

// issue_delete
func (s *Server) deleteIssueTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("issue_delete",
		mcp.WithDescription("Delete an issue by _id. Returns {result, _id} or {error, _id}."),
		mcp.WithString(models.FieldID, mcp.Description("Issue id")),
	)
	return tool, s.handleDeleteIssue
}

func (s *Server) handleDeleteIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString(models.FieldID, "")
	if err := s.issues.Delete(ctx, id); err != nil {
		return s.errorResult("issue_delete", err, id)
	}
	return jsonResult(outcome{Result: "successfully deleted", ID: id})
}
