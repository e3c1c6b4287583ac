package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"live-session-service/internal/response"
	"live-session-service/internal/service"
)

type MaintenanceHandler struct {
	sweeper service.Sweeper
	logger  *zap.Logger
}

func NewMaintenanceHandler(sweeper service.Sweeper, logger *zap.Logger) *MaintenanceHandler {
	return &MaintenanceHandler{
		sweeper: sweeper,
		logger:  logger,
	}
}

// Sweep godoc
// @Summary Run the reaper now and report what it cleaned
// @Tags maintenance
// @Produce json
// @Success 200 {object} domain.SweepResult
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /maintenance/sweep [post]
func (h *MaintenanceHandler) Sweep(c *gin.Context) {
	result, err := h.sweeper.Sweep(c.Request.Context())
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	response.SendSuccess(c, http.StatusOK, result)
}
