package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/swiftbus/booking-backend/internal/services"
)

// SweeperHandler exposes a manual trigger for the expiry sweep
type SweeperHandler struct {
	sweeperService *services.SweeperService
	logger         *logrus.Logger
}

// NewSweeperHandler creates a new SweeperHandler
func NewSweeperHandler(sweeperService *services.SweeperService, logger *logrus.Logger) *SweeperHandler {
	return &SweeperHandler{
		sweeperService: sweeperService,
		logger:         logger,
	}
}

// RunSweep runs one sweep pass immediately
// POST /api/v1/admin/sweeper/run (admin only)
func (h *SweeperHandler) RunSweep(c *gin.Context) {
	result := h.sweeperService.RunOnce(c.Request.Context())
	c.JSON(http.StatusOK, result)
}
