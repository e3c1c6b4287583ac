package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"live-session-service/internal/domain"
	"live-session-service/internal/response"
	"live-session-service/internal/service"
)

type PresenceHandler struct {
	presenceService service.PresenceService
	logger          *zap.Logger
}

func NewPresenceHandler(presenceService service.PresenceService, logger *zap.Logger) *PresenceHandler {
	return &PresenceHandler{
		presenceService: presenceService,
		logger:          logger,
	}
}

// Heartbeat godoc
// @Summary Mark the calling designer online
// @Tags presence
// @Accept json
// @Produce json
// @Param request body domain.HeartbeatRequest false "Activity status"
// @Success 200 {object} domain.PresenceRecord
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /presence/heartbeat [post]
func (h *PresenceHandler) Heartbeat(c *gin.Context) {
	designerID, ok := currentUser(c)
	if !ok {
		return
	}

	req := domain.HeartbeatRequest{ActivityStatus: domain.ActivityAvailable}
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}
	if req.ActivityStatus == "" {
		req.ActivityStatus = domain.ActivityAvailable
	}
	if !req.ActivityStatus.Valid() {
		response.SendError(c, http.StatusBadRequest, response.ErrCodeValidation, "Invalid activityStatus")
		return
	}

	record, err := h.presenceService.Heartbeat(c.Request.Context(), designerID, req.ActivityStatus)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	response.SendSuccess(c, http.StatusOK, record)
}

// GoOffline godoc
// @Summary Mark the calling designer offline
// @Tags presence
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /presence/offline [post]
func (h *PresenceHandler) GoOffline(c *gin.Context) {
	designerID, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.presenceService.MarkOffline(c.Request.Context(), designerID); err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	response.SendSuccess(c, http.StatusOK, gin.H{"designerId": designerID.String(), "online": false})
}
