package rest

import (
	domainConversation "github.com/AzielCF/az-wap-sales/domains/conversation"
	"github.com/AzielCF/az-wap-sales/pkg/utils"
	"github.com/AzielCF/az-wap-sales/validations"
	"github.com/gofiber/fiber/v2"
)

const defaultHistoryLimit = 50

type Conversation struct {
	Service domainConversation.IConversationRouter
}

func InitRestConversation(app fiber.Router, service domainConversation.IConversationRouter) Conversation {
	handler := Conversation{Service: service}

	group := app.Group("/conversations")
	group.Get("/", handler.List)
	group.Get("/:sender", handler.Get)
	group.Put("/:sender/status", handler.SetStatus)
	group.Get("/:sender/history", handler.History)

	return handler
}

func (h *Conversation) List(c *fiber.Ctx) error {
	states, err := h.Service.ListStates(c.UserContext())
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Conversations retrieved",
		Results: states,
	})
}

func (h *Conversation) Get(c *fiber.Ctx) error {
	state, err := h.Service.GetState(c.UserContext(), c.Params("sender"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Conversation retrieved",
		Results: state,
	})
}

func (h *Conversation) SetStatus(c *fiber.Ctx) error {
	var request domainConversation.SetStatusRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	utils.PanicIfNeeded(validations.ValidateSetStatus(c.UserContext(), request))

	state, err := h.Service.SetStatus(c.UserContext(), c.Params("sender"), request.Status, request.OperatorID)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Conversation status updated",
		Results: state,
	})
}

func (h *Conversation) History(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultHistoryLimit)
	if limit <= 0 || limit > 500 {
		limit = defaultHistoryLimit
	}

	messages, err := h.Service.History(c.UserContext(), c.Params("sender"), limit)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Conversation history retrieved",
		Results: messages,
	})
}
