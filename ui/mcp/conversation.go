package mcp

import (
	"context"
	"fmt"

	domainConversation "github.com/AzielCF/az-wap-sales/domains/conversation"
	"github.com/AzielCF/az-wap-sales/validations"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const historyLimit = 20

type ConversationHandler struct {
	service domainConversation.IConversationRouter
}

func InitMcpConversation(service domainConversation.IConversationRouter) *ConversationHandler {
	return &ConversationHandler{service: service}
}

func (h *ConversationHandler) AddConversationTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(h.toolGetConversation(), h.handleGetConversation)
	mcpServer.AddTool(h.toolSetConversationStatus(), h.handleSetConversationStatus)
}

func (h *ConversationHandler) toolGetConversation() mcp.Tool {
	return mcp.NewTool(
		"get_conversation",
		mcp.WithDescription("Get the status, assigned operator and recent messages of a customer conversation."),
		mcp.WithTitleAnnotation("Get Conversation"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("sender_id",
			mcp.Description("Customer phone number or JID."),
			mcp.Required(),
		),
	)
}

func (h *ConversationHandler) handleGetConversation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	senderID, err := request.RequireString("sender_id")
	if err != nil {
		return nil, err
	}

	state, err := h.service.GetState(ctx, senderID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	history, err := h.service.History(ctx, senderID, historyLimit)
	if err != nil {
		return nil, err
	}

	resp := map[string]any{"state": state, "history": history}
	fallback := fmt.Sprintf("Conversation with %s is %s (%d recent messages)", state.SenderID, state.Status, len(history))
	return mcp.NewToolResultStructured(resp, fallback), nil
}

func (h *ConversationHandler) toolSetConversationStatus() mcp.Tool {
	return mcp.NewTool(
		"set_conversation_status",
		mcp.WithDescription("Hand a conversation to a human operator or back to the bot. Only 'bot' conversations get automated replies."),
		mcp.WithTitleAnnotation("Set Conversation Status"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("sender_id",
			mcp.Description("Customer phone number or JID."),
			mcp.Required(),
		),
		mcp.WithString("status",
			mcp.Description("New conversation status."),
			mcp.Enum("bot", "human", "awaiting", "finished"),
			mcp.Required(),
		),
		mcp.WithString("operator_id",
			mcp.Description("Operator taking over the conversation, if any."),
		),
	)
}

func (h *ConversationHandler) handleSetConversationStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	senderID, err := request.RequireString("sender_id")
	if err != nil {
		return nil, err
	}
	status, err := request.RequireString("status")
	if err != nil {
		return nil, err
	}

	req := domainConversation.SetStatusRequest{
		Status:     domainConversation.Status(status),
		OperatorID: request.GetString("operator_id", ""),
	}
	if err := validations.ValidateSetStatus(ctx, req); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	state, err := h.service.SetStatus(ctx, senderID, req.Status, req.OperatorID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	fallback := fmt.Sprintf("Conversation with %s is now %s", state.SenderID, state.Status)
	return mcp.NewToolResultStructured(state, fallback), nil
}
