package rest

import (
	"context"
	"time"

	domainInstance "github.com/AzielCF/az-wap-sales/domains/instance"
	"github.com/AzielCF/az-wap-sales/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

// HealthCheck probes one dependency (database, valkey...).
type HealthCheck func(ctx context.Context) error

type Health struct {
	Instances domainInstance.IInstanceManager
	Checks    map[string]HealthCheck
}

func InitRestHealth(app fiber.Router, instances domainInstance.IInstanceManager, checks map[string]HealthCheck) Health {
	handler := Health{Instances: instances, Checks: checks}

	group := app.Group("/health")
	group.Get("/status", handler.GetStatus)

	return handler
}

type componentStatus struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

func (h *Health) GetStatus(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	healthy := true
	components := make(map[string]componentStatus, len(h.Checks))
	for name, check := range h.Checks {
		if err := check(ctx); err != nil {
			healthy = false
			components[name] = componentStatus{Error: err.Error()}
			continue
		}
		components[name] = componentStatus{Healthy: true}
	}

	connected := 0
	snapshots := h.Instances.List()
	for _, s := range snapshots {
		if s.Connected {
			connected++
		}
	}

	status := fiber.StatusOK
	code := "SUCCESS"
	if !healthy {
		status = fiber.StatusServiceUnavailable
		code = "UNHEALTHY"
	}
	return c.Status(status).JSON(utils.ResponseData{
		Status:  status,
		Code:    code,
		Message: "Health status retrieved",
		Results: fiber.Map{
			"components":          components,
			"instances":           len(snapshots),
			"connected_instances": connected,
		},
	})
}
