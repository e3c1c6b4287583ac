package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"live-session-service/internal/domain"
	"live-session-service/internal/response"
	"live-session-service/internal/service"
)

type AvailabilityHandler struct {
	availabilityService service.AvailabilityService
	logger              *zap.Logger
}

func NewAvailabilityHandler(availabilityService service.AvailabilityService, logger *zap.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{
		availabilityService: availabilityService,
		logger:              logger,
	}
}

// IsBookable godoc
// @Summary Check whether a designer can take a live session now
// @Tags availability
// @Produce json
// @Param designerId path string true "Designer ID"
// @Success 200 {object} domain.BookabilityResponse
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /designers/{designerId}/availability [get]
func (h *AvailabilityHandler) IsBookable(c *gin.Context) {
	designerID, ok := uuidParam(c, "designerId")
	if !ok {
		return
	}

	result, err := h.availabilityService.IsBookable(c.Request.Context(), designerID, time.Now().UTC())
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	response.SendSuccess(c, http.StatusOK, domain.BookabilityResponse{
		DesignerID: designerID.String(),
		Available:  result.Available,
		Reason:     result.Reason,
		InSchedule: result.InSchedule,
		IsOnline:   result.IsOnline,
	})
}

// GetSchedule godoc
// @Summary Get the caller's weekly windows, overrides and settings
// @Tags availability
// @Produce json
// @Success 200 {object} domain.ScheduleResponse
// @Security BearerAuth
// @Router /availability [get]
func (h *AvailabilityHandler) GetSchedule(c *gin.Context) {
	designerID, ok := currentUser(c)
	if !ok {
		return
	}

	schedule, err := h.availabilityService.GetSchedule(c.Request.Context(), designerID)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	response.SendSuccess(c, http.StatusOK, schedule)
}

// SetWeeklyWindow godoc
// @Summary Set the window for one day of the week
// @Tags availability
// @Accept json
// @Produce json
// @Param request body domain.SetWeeklyWindowRequest true "Weekly window"
// @Success 200 {object} domain.AvailabilityWindow
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /availability/windows [put]
func (h *AvailabilityHandler) SetWeeklyWindow(c *gin.Context) {
	designerID, ok := currentUser(c)
	if !ok {
		return
	}

	var req domain.SetWeeklyWindowRequest
	if !bindJSON(c, &req) {
		return
	}

	window, err := h.availabilityService.SetWeeklyWindow(c.Request.Context(), designerID, &req)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	response.SendSuccess(c, http.StatusOK, window)
}

// SetOverride godoc
// @Summary Open or close a specific date
// @Tags availability
// @Accept json
// @Produce json
// @Param request body domain.SetOverrideRequest true "Date override"
// @Success 200 {object} domain.SpecialDayOverride
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /availability/overrides [put]
func (h *AvailabilityHandler) SetOverride(c *gin.Context) {
	designerID, ok := currentUser(c)
	if !ok {
		return
	}

	var req domain.SetOverrideRequest
	if !bindJSON(c, &req) {
		return
	}

	override, err := h.availabilityService.SetOverride(c.Request.Context(), designerID, &req)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	response.SendSuccess(c, http.StatusOK, override)
}

// UpdateSettings godoc
// @Summary Update availability settings
// @Tags availability
// @Accept json
// @Produce json
// @Param request body domain.UpdateSettingsRequest true "Fields to change"
// @Success 200 {object} domain.AvailabilitySettings
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /availability/settings [put]
func (h *AvailabilityHandler) UpdateSettings(c *gin.Context) {
	designerID, ok := currentUser(c)
	if !ok {
		return
	}

	var req domain.UpdateSettingsRequest
	if !bindJSON(c, &req) {
		return
	}

	settings, err := h.availabilityService.UpdateSettings(c.Request.Context(), designerID, &req)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	response.SendSuccess(c, http.StatusOK, settings)
}
