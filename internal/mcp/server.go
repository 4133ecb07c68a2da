// Package mcp exposes the workflow catalog and engine as MCP tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"datagov-catalog/backend/internal/repository"
	"datagov-catalog/backend/internal/workflows"
	"datagov-catalog/backend/pkg/models"
)

type Server struct {
	mcpServer  *server.MCPServer
	catalog    *workflows.Catalog
	engine     *workflows.Engine
	executions repository.ExecutionStore
}

func NewServer(catalog *workflows.Catalog, engine *workflows.Engine, executions repository.ExecutionStore) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Governance Workflows",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		catalog:    catalog,
		engine:     engine,
		executions: executions,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_workflows",
			mcp.WithDescription("List workflow definitions"),
		),
		s.handleListWorkflows,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"execute_workflow",
			mcp.WithDescription("Manually execute a workflow against an entity"),
			mcp.WithString("workflow_id", mcp.Required(), mcp.Description("The ID of the workflow to execute")),
			mcp.WithString("entity_kind", mcp.Required(), mcp.Description("The entity kind (dataset, data_contract, data_product)")),
			mcp.WithString("entity_id", mcp.Required(), mcp.Description("The ID of the entity")),
		),
		s.handleExecuteWorkflow,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_executions",
			mcp.WithDescription("List recent workflow executions"),
			mcp.WithString("workflow_id", mcp.Description("Filter by workflow ID")),
		),
		s.handleListExecutions,
	)
}

func (s *Server) handleListWorkflows(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.catalog.List(ctx, nil)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list workflows: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(list)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleExecuteWorkflow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	workflowID, ok := args["workflow_id"].(string)
	if !ok || workflowID == "" {
		return mcp.NewToolResultError("Missing required parameter: workflow_id"), nil
	}
	entityKind, ok := args["entity_kind"].(string)
	if !ok || entityKind == "" {
		return mcp.NewToolResultError("Missing required parameter: entity_kind"), nil
	}
	entityID, ok := args["entity_id"].(string)
	if !ok || entityID == "" {
		return mcp.NewToolResultError("Missing required parameter: entity_id"), nil
	}

	workflow, err := s.catalog.Get(ctx, workflowID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load workflow: %v", err)), nil
	}

	execution, err := s.engine.Execute(ctx, workflow, &models.TriggerContext{
		Kind:       models.TriggerManual,
		EntityKind: models.EntityKind(entityKind),
		EntityID:   entityID,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to execute workflow: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(execution)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleListExecutions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := models.ExecutionFilter{Limit: 50}
	if args, ok := request.Params.Arguments.(map[string]interface{}); ok {
		if workflowID, ok := args["workflow_id"].(string); ok && workflowID != "" {
			filter.WorkflowID = &workflowID
		}
	}

	executions, err := s.executions.ListExecutions(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list executions: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(executions)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	// Use SSE server for /mcp/sse and /mcp/message endpoints
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		// Direct POST for tool calls
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	// SSE endpoints
	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
