package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"live-session-service/internal/domain"
	"live-session-service/internal/response"
	"live-session-service/internal/service"
)

type SessionHandler struct {
	sessionService service.LiveSessionService
	logger         *zap.Logger
}

func NewSessionHandler(sessionService service.LiveSessionService, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
		logger:         logger,
	}
}

// Release godoc
// @Summary End a live session
// @Description Either participant may call it. Releasing an ended session returns it unchanged.
// @Tags sessions
// @Accept json
// @Produce json
// @Param sessionId path string true "Session ID"
// @Param request body domain.ReleaseSessionRequest false "End reason"
// @Success 200 {object} domain.ActiveSession
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /sessions/{sessionId}/release [post]
func (h *SessionHandler) Release(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req domain.ReleaseSessionRequest
	if c.Request.ContentLength > 0 && !bindJSON(c, &req) {
		return
	}

	session, err := h.sessionService.Release(c.Request.Context(), userID, c.Param("sessionId"), req.Reason)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	response.SendSuccess(c, http.StatusOK, session)
}

// RecordActivity godoc
// @Summary Record activity so a long session is not reaped
// @Tags sessions
// @Param sessionId path string true "Session ID"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Security BearerAuth
// @Router /sessions/{sessionId}/activity [post]
func (h *SessionHandler) RecordActivity(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.sessionService.RecordActivity(c.Request.Context(), userID, c.Param("sessionId")); err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// JoinToken godoc
// @Summary Mint a media room token for a participant
// @Tags sessions
// @Produce json
// @Param sessionId path string true "Session ID"
// @Success 200 {object} domain.JoinTokenResponse
// @Failure 403 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Security BearerAuth
// @Router /sessions/{sessionId}/token [get]
func (h *SessionHandler) JoinToken(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	token, err := h.sessionService.JoinToken(c.Request.Context(), userID, c.Param("sessionId"))
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	response.SendSuccess(c, http.StatusOK, token)
}
