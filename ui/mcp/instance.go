package mcp

import (
	"context"
	"fmt"

	domainInstance "github.com/AzielCF/az-wap-sales/domains/instance"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type InstanceHandler struct {
	service domainInstance.IInstanceManager
}

func InitMcpInstance(service domainInstance.IInstanceManager) *InstanceHandler {
	return &InstanceHandler{service: service}
}

func (h *InstanceHandler) AddInstanceTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(h.toolListInstances(), h.handleListInstances)
	mcpServer.AddTool(h.toolDestroyInstance(), h.handleDestroyInstance)
}

func (h *InstanceHandler) toolListInstances() mcp.Tool {
	return mcp.NewTool(
		"list_instances",
		mcp.WithDescription("List every managed WhatsApp instance with its label and connection state."),
		mcp.WithTitleAnnotation("List Instances"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
	)
}

func (h *InstanceHandler) handleListInstances(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_ = request
	list := h.service.List()
	resp := map[string]any{"instances": list}

	fallback := fmt.Sprintf("Found %d instances", len(list))
	return mcp.NewToolResultStructured(resp, fallback), nil
}

func (h *InstanceHandler) toolDestroyInstance() mcp.Tool {
	return mcp.NewTool(
		"destroy_instance",
		mcp.WithDescription("Disconnect and remove a WhatsApp instance. Pending replies for its senders are discarded."),
		mcp.WithTitleAnnotation("Destroy Instance"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("instance_id",
			mcp.Description("Identifier of the instance to remove."),
			mcp.Required(),
		),
	)
}

func (h *InstanceHandler) handleDestroyInstance(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	instanceID, err := request.RequireString("instance_id")
	if err != nil {
		return nil, err
	}

	if !h.service.Destroy(ctx, instanceID) {
		return mcp.NewToolResultError(fmt.Sprintf("unknown instance %s", instanceID)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Instance %s destroyed", instanceID)), nil
}
