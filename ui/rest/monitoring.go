package rest

import (
	"github.com/AzielCF/az-wap-sales/core/config"
	"github.com/AzielCF/az-wap-sales/instance/application"
	"github.com/AzielCF/az-wap-sales/pkg/botmonitor"
	"github.com/AzielCF/az-wap-sales/pkg/msgworker"
	"github.com/AzielCF/az-wap-sales/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

// MonitorSource exposes the runtime internals shown on the dashboard.
type MonitorSource interface {
	Events() *botmonitor.Monitor
	Workers() *msgworker.Pool
	Resources() *application.ResourceMonitor
	PendingBursts() int
	Capacity() (used, max int)
	SetCapacity(n int) error
}

type capacityRequest struct {
	MaxInstances int `json:"max_instances"`
}

type MonitoringHandler struct {
	source MonitorSource
}

// InitRestMonitoring registra los endpoints de monitoreo
func InitRestMonitoring(app fiber.Router, source MonitorSource) {
	h := &MonitoringHandler{source: source}

	g := app.Group("/monitor")
	g.Get("/stats", h.GetStats)
	g.Get("/workers", h.GetWorkerPoolStats)
	g.Get("/resources", h.GetResources)
	g.Post("/resources/run", h.RunResourceCheck)
	g.Put("/capacity", h.SetCapacity)
	g.Get("/settings", h.GetSettings)
}

// GetStats returns the pipeline counters and the recent event feed.
func (h *MonitoringHandler) GetStats(c *fiber.Ctx) error {
	used, max := h.source.Capacity()
	return c.JSON(fiber.Map{
		"events":         h.source.Events().GetStats(),
		"pending_bursts": h.source.PendingBursts(),
		"instances":      used,
		"max_instances":  max,
	})
}

func (h *MonitoringHandler) GetWorkerPoolStats(c *fiber.Ctx) error {
	pool := h.source.Workers()
	if pool == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Message worker pool not initialized",
		})
	}
	return c.JSON(pool.GetStats())
}

func (h *MonitoringHandler) GetResources(c *fiber.Ctx) error {
	return c.JSON(h.source.Resources().LastReport())
}

// RunResourceCheck forces a monitor cycle outside the schedule.
func (h *MonitoringHandler) RunResourceCheck(c *fiber.Ctx) error {
	return c.JSON(h.source.Resources().RunCycle(c.UserContext()))
}

func (h *MonitoringHandler) GetSettings(c *fiber.Ctx) error {
	return c.JSON(config.GetAllSettings())
}

func (h *MonitoringHandler) SetCapacity(c *fiber.Ctx) error {
	var request capacityRequest
	err := c.BodyParser(&request)
	utils.PanicIfNeeded(err)

	utils.PanicIfNeeded(h.source.SetCapacity(request.MaxInstances))

	used, max := h.source.Capacity()
	return c.JSON(utils.ResponseData{
		Status:  200,
		Code:    "SUCCESS",
		Message: "Capacity updated",
		Results: fiber.Map{"instances": used, "max_instances": max},
	})
}
