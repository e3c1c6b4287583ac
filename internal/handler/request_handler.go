package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"live-session-service/internal/domain"
	"live-session-service/internal/response"
	"live-session-service/internal/service"
)

type SessionRequestHandler struct {
	requestService service.SessionRequestService
	logger         *zap.Logger
}

func NewSessionRequestHandler(requestService service.SessionRequestService, logger *zap.Logger) *SessionRequestHandler {
	return &SessionRequestHandler{
		requestService: requestService,
		logger:         logger,
	}
}

// CreateRequest godoc
// @Summary Ask a designer for an immediate live session
// @Tags requests
// @Accept json
// @Produce json
// @Param request body domain.CreateSessionRequestRequest true "Designer to ask"
// @Success 201 {object} domain.SessionRequest
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Security BearerAuth
// @Router /requests [post]
func (h *SessionRequestHandler) CreateRequest(c *gin.Context) {
	customerID, ok := currentUser(c)
	if !ok {
		return
	}

	var req domain.CreateSessionRequestRequest
	if !bindJSON(c, &req) {
		return
	}
	designerID, err := uuid.Parse(req.DesignerID)
	if err != nil {
		response.SendError(c, http.StatusBadRequest, response.ErrCodeValidation, "Invalid designerId")
		return
	}

	created, err := h.requestService.RequestSession(c.Request.Context(), customerID, designerID, req.Message)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	response.SendSuccess(c, http.StatusCreated, created)
}

// RespondToRequest godoc
// @Summary Accept or reject a pending request
// @Tags requests
// @Accept json
// @Produce json
// @Param requestId path string true "Request ID"
// @Param request body domain.RespondToRequestRequest true "Decision"
// @Success 200 {object} domain.SessionRequest
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Security BearerAuth
// @Router /requests/{requestId}/respond [post]
func (h *SessionRequestHandler) RespondToRequest(c *gin.Context) {
	designerID, ok := currentUser(c)
	if !ok {
		return
	}
	requestID, ok := uuidParam(c, "requestId")
	if !ok {
		return
	}

	var req domain.RespondToRequestRequest
	if !bindJSON(c, &req) {
		return
	}

	updated, err := h.requestService.RespondToRequest(c.Request.Context(), designerID, requestID, req.Decision, req.Reason)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	response.SendSuccess(c, http.StatusOK, updated)
}

// GetRequest godoc
// @Summary Get a request addressed to or sent by the caller
// @Tags requests
// @Produce json
// @Param requestId path string true "Request ID"
// @Success 200 {object} domain.SessionRequest
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /requests/{requestId} [get]
func (h *SessionRequestHandler) GetRequest(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	requestID, ok := uuidParam(c, "requestId")
	if !ok {
		return
	}

	req, err := h.requestService.GetRequest(c.Request.Context(), userID, requestID)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	response.SendSuccess(c, http.StatusOK, req)
}

// ListPending godoc
// @Summary List pending requests for the calling designer
// @Tags requests
// @Produce json
// @Success 200 {array} domain.SessionRequest
// @Security BearerAuth
// @Router /requests/pending [get]
func (h *SessionRequestHandler) ListPending(c *gin.Context) {
	designerID, ok := currentUser(c)
	if !ok {
		return
	}

	reqs, err := h.requestService.ListPendingForDesigner(c.Request.Context(), designerID)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	response.SendSuccess(c, http.StatusOK, reqs)
}

// ListMine godoc
// @Summary List requests sent by the calling customer
// @Tags requests
// @Produce json
// @Success 200 {array} domain.SessionRequest
// @Security BearerAuth
// @Router /requests/mine [get]
func (h *SessionRequestHandler) ListMine(c *gin.Context) {
	customerID, ok := currentUser(c)
	if !ok {
		return
	}

	reqs, err := h.requestService.ListForCustomer(c.Request.Context(), customerID)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	response.SendSuccess(c, http.StatusOK, reqs)
}

// GetBusyState godoc
// @Summary Report whether a designer is occupied
// @Tags designers
// @Produce json
// @Param designerId path string true "Designer ID"
// @Success 200 {object} domain.BusyStateResponse
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /designers/{designerId}/busy [get]
func (h *SessionRequestHandler) GetBusyState(c *gin.Context) {
	designerID, ok := uuidParam(c, "designerId")
	if !ok {
		return
	}

	state, err := h.requestService.GetBusyState(c.Request.Context(), designerID)
	if err != nil {
		handleServiceError(c, h.logger, err)
		return
	}
	response.SendSuccess(c, http.StatusOK, state)
}
