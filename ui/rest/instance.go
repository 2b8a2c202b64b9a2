package rest

import (
	domainInstance "github.com/AzielCF/az-wap-sales/domains/instance"
	pkgError "github.com/AzielCF/az-wap-sales/pkg/error"
	"github.com/AzielCF/az-wap-sales/pkg/utils"
	"github.com/AzielCF/az-wap-sales/validations"
	"github.com/gofiber/fiber/v2"
)

type Instance struct {
	Service domainInstance.IInstanceManager
}

func InitRestInstance(app fiber.Router, service domainInstance.IInstanceManager) Instance {
	handler := Instance{Service: service}

	group := app.Group("/instances")
	group.Get("/", handler.List)
	group.Post("/", handler.Create)
	group.Get("/:id", handler.Get)
	group.Delete("/:id", handler.Destroy)
	group.Get("/:id/qr", handler.QR)
	group.Post("/:id/enable", handler.Enable)
	group.Post("/:id/disable", handler.Disable)
	group.Post("/:id/reconnect", handler.Reconnect)
	group.Post("/:id/send", handler.Send)

	return handler
}

func (h *Instance) List(c *fiber.Ctx) error {
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Instances retrieved",
		Results: h.Service.List(),
	})
}

func (h *Instance) Create(c *fiber.Ctx) error {
	var request domainInstance.CreateInstanceRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	utils.PanicIfNeeded(validations.ValidateCreateInstance(c.UserContext(), request))

	inst, err := h.Service.Create(c.UserContext(), request.ID, request.Label)
	utils.PanicIfNeeded(err)

	return c.Status(fiber.StatusCreated).JSON(utils.ResponseData{
		Status:  fiber.StatusCreated,
		Code:    "SUCCESS",
		Message: "Instance created",
		Results: inst,
	})
}

func (h *Instance) Get(c *fiber.Ctx) error {
	inst, err := h.Service.Get(c.Params("id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Instance retrieved",
		Results: inst,
	})
}

func (h *Instance) Destroy(c *fiber.Ctx) error {
	id := c.Params("id")
	if !h.Service.Destroy(c.UserContext(), id) {
		utils.PanicIfNeeded(pkgError.UnknownInstanceError{InstanceID: id})
	}

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Instance destroyed",
	})
}

func (h *Instance) QR(c *fiber.Ctx) error {
	qr, err := h.Service.QR(c.Params("id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "QR code retrieved",
		Results: qr,
	})
}

func (h *Instance) Enable(c *fiber.Ctx) error {
	return h.setEnabled(c, true)
}

func (h *Instance) Disable(c *fiber.Ctx) error {
	return h.setEnabled(c, false)
}

func (h *Instance) setEnabled(c *fiber.Ctx, enabled bool) error {
	err := h.Service.SetEnabled(c.UserContext(), c.Params("id"), enabled)
	utils.PanicIfNeeded(err)

	message := "Instance disabled"
	if enabled {
		message = "Instance enabled"
	}
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: message,
	})
}

func (h *Instance) Reconnect(c *fiber.Ctx) error {
	err := h.Service.Reconnect(c.UserContext(), c.Params("id"))
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Reconnect requested",
	})
}

func (h *Instance) Send(c *fiber.Ctx) error {
	var request domainInstance.SendMessageRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	utils.PanicIfNeeded(validations.ValidateSendMessage(c.UserContext(), request))

	err = h.Service.Send(c.UserContext(), c.Params("id"), request.To, request.Text)
	utils.PanicIfNeeded(err)

	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Message sent",
	})
}
