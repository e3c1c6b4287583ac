package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"live-session-service/internal/domain"
	"live-session-service/internal/middleware"
	"live-session-service/internal/response"
	"live-session-service/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// MockSessionRequestService is a mock implementation of SessionRequestService
type MockSessionRequestService struct {
	RequestSessionFunc   func(ctx context.Context, customerID, designerID uuid.UUID, message string) (*domain.SessionRequest, error)
	RespondToRequestFunc func(ctx context.Context, actorID, requestID uuid.UUID, decision domain.Decision, reason *string) (*domain.SessionRequest, error)
	GetBusyStateFunc     func(ctx context.Context, designerID uuid.UUID) (*domain.BusyStateResponse, error)
	GetRequestFunc       func(ctx context.Context, actorID, requestID uuid.UUID) (*domain.SessionRequest, error)
}

func (m *MockSessionRequestService) RequestSession(ctx context.Context, customerID, designerID uuid.UUID, message string) (*domain.SessionRequest, error) {
	if m.RequestSessionFunc != nil {
		return m.RequestSessionFunc(ctx, customerID, designerID, message)
	}
	return nil, nil
}

func (m *MockSessionRequestService) RespondToRequest(ctx context.Context, actorID, requestID uuid.UUID, decision domain.Decision, reason *string) (*domain.SessionRequest, error) {
	if m.RespondToRequestFunc != nil {
		return m.RespondToRequestFunc(ctx, actorID, requestID, decision, reason)
	}
	return nil, nil
}

func (m *MockSessionRequestService) GetBusyState(ctx context.Context, designerID uuid.UUID) (*domain.BusyStateResponse, error) {
	if m.GetBusyStateFunc != nil {
		return m.GetBusyStateFunc(ctx, designerID)
	}
	return nil, nil
}

func (m *MockSessionRequestService) GetRequest(ctx context.Context, actorID, requestID uuid.UUID) (*domain.SessionRequest, error) {
	if m.GetRequestFunc != nil {
		return m.GetRequestFunc(ctx, actorID, requestID)
	}
	return nil, nil
}

func (m *MockSessionRequestService) ListPendingForDesigner(ctx context.Context, designerID uuid.UUID) ([]domain.SessionRequest, error) {
	return []domain.SessionRequest{}, nil
}

func (m *MockSessionRequestService) ListForCustomer(ctx context.Context, customerID uuid.UUID) ([]domain.SessionRequest, error) {
	return []domain.SessionRequest{}, nil
}

// MockLiveSessionService is a mock implementation of LiveSessionService
type MockLiveSessionService struct {
	ReleaseFunc        func(ctx context.Context, actorID uuid.UUID, sessionID, reason string) (*domain.ActiveSession, error)
	RecordActivityFunc func(ctx context.Context, actorID uuid.UUID, sessionID string) error
	JoinTokenFunc      func(ctx context.Context, actorID uuid.UUID, sessionID string) (*domain.JoinTokenResponse, error)
}

func (m *MockLiveSessionService) Release(ctx context.Context, actorID uuid.UUID, sessionID, reason string) (*domain.ActiveSession, error) {
	if m.ReleaseFunc != nil {
		return m.ReleaseFunc(ctx, actorID, sessionID, reason)
	}
	return nil, nil
}

func (m *MockLiveSessionService) RecordActivity(ctx context.Context, actorID uuid.UUID, sessionID string) error {
	if m.RecordActivityFunc != nil {
		return m.RecordActivityFunc(ctx, actorID, sessionID)
	}
	return nil
}

func (m *MockLiveSessionService) JoinToken(ctx context.Context, actorID uuid.UUID, sessionID string) (*domain.JoinTokenResponse, error) {
	if m.JoinTokenFunc != nil {
		return m.JoinTokenFunc(ctx, actorID, sessionID)
	}
	return nil, nil
}

// asUser stands in for the auth middleware.
func asUser(userID uuid.UUID) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID != uuid.Nil {
			c.Set(middleware.ContextUserID, userID)
		}
		c.Next()
	}
}

func doJSON(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		_ = json.NewEncoder(&buf).Encode(b)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, data interface{}) response.Envelope {
	t.Helper()
	var env response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	if data != nil && env.Data != nil {
		raw, err := json.Marshal(env.Data)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, data))
	}
	return env
}

func TestSessionRequestHandler_CreateRequest(t *testing.T) {
	customer, designer := uuid.New(), uuid.New()

	tests := []struct {
		name           string
		user           uuid.UUID
		body           interface{}
		serviceErr     error
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "created",
			user:           customer,
			body:           domain.CreateSessionRequestRequest{DesignerID: designer.String(), Message: "now?"},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "malformed body",
			user:           customer,
			body:           "not json",
			expectedStatus: http.StatusBadRequest,
			expectedCode:   response.ErrCodeValidation,
		},
		{
			name:           "designer id not a uuid",
			user:           customer,
			body:           map[string]string{"designerId": "designer-1"},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   response.ErrCodeValidation,
		},
		{
			name:           "refused",
			user:           customer,
			body:           domain.CreateSessionRequestRequest{DesignerID: designer.String()},
			serviceErr:     response.NewRefusalError(service.ReasonOffline),
			expectedStatus: http.StatusUnprocessableEntity,
			expectedCode:   response.ErrCodeRefused,
		},
		{
			name:           "unauthenticated",
			body:           domain.CreateSessionRequestRequest{DesignerID: designer.String()},
			expectedStatus: http.StatusUnauthorized,
			expectedCode:   response.ErrCodeUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := &MockSessionRequestService{
				RequestSessionFunc: func(ctx context.Context, customerID, designerID uuid.UUID, message string) (*domain.SessionRequest, error) {
					if tt.serviceErr != nil {
						return nil, tt.serviceErr
					}
					return &domain.SessionRequest{
						ID: uuid.New(), CustomerID: customerID, DesignerID: designerID,
						Status: domain.RequestStatusPending, Message: message,
					}, nil
				},
			}
			h := NewSessionRequestHandler(mockService, zap.NewNop())
			r := gin.New()
			r.POST("/requests", asUser(tt.user), h.CreateRequest)

			w := doJSON(r, http.MethodPost, "/requests", tt.body)

			assert.Equal(t, tt.expectedStatus, w.Code)
			var created domain.SessionRequest
			env := decodeEnvelope(t, w, &created)
			if tt.expectedCode != "" {
				require.NotNil(t, env.Error)
				assert.Equal(t, tt.expectedCode, env.Error.Code)
				return
			}
			assert.True(t, env.Success)
			assert.Equal(t, designer, created.DesignerID)
			assert.Equal(t, customer, created.CustomerID)
		})
	}
}

func TestSessionRequestHandler_RespondToRequest(t *testing.T) {
	designer, requestID := uuid.New(), uuid.New()

	t.Run("accept passes decision through", func(t *testing.T) {
		var got domain.Decision
		mockService := &MockSessionRequestService{
			RespondToRequestFunc: func(ctx context.Context, actorID, id uuid.UUID, decision domain.Decision, reason *string) (*domain.SessionRequest, error) {
				assert.Equal(t, designer, actorID)
				assert.Equal(t, requestID, id)
				got = decision
				return &domain.SessionRequest{ID: id, Status: domain.RequestStatusAccepted}, nil
			},
		}
		r := gin.New()
		r.POST("/requests/:requestId/respond", asUser(designer), NewSessionRequestHandler(mockService, zap.NewNop()).RespondToRequest)

		w := doJSON(r, http.MethodPost, "/requests/"+requestID.String()+"/respond", domain.RespondToRequestRequest{Decision: domain.DecisionAccept})

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, domain.DecisionAccept, got)
	})

	t.Run("conflict maps to 409", func(t *testing.T) {
		mockService := &MockSessionRequestService{
			RespondToRequestFunc: func(ctx context.Context, actorID, id uuid.UUID, decision domain.Decision, reason *string) (*domain.SessionRequest, error) {
				return nil, response.NewConflictError(service.ReasonInLiveSession)
			},
		}
		r := gin.New()
		r.POST("/requests/:requestId/respond", asUser(designer), NewSessionRequestHandler(mockService, zap.NewNop()).RespondToRequest)

		w := doJSON(r, http.MethodPost, "/requests/"+requestID.String()+"/respond", domain.RespondToRequestRequest{Decision: domain.DecisionAccept})

		assert.Equal(t, http.StatusConflict, w.Code)
		env := decodeEnvelope(t, w, nil)
		assert.Equal(t, service.ReasonInLiveSession, env.Error.Message)
	})

	t.Run("unknown decision is rejected by binding", func(t *testing.T) {
		r := gin.New()
		r.POST("/requests/:requestId/respond", asUser(designer), NewSessionRequestHandler(&MockSessionRequestService{}, zap.NewNop()).RespondToRequest)

		w := doJSON(r, http.MethodPost, "/requests/"+requestID.String()+"/respond", map[string]string{"decision": "maybe"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("bad request id", func(t *testing.T) {
		r := gin.New()
		r.POST("/requests/:requestId/respond", asUser(designer), NewSessionRequestHandler(&MockSessionRequestService{}, zap.NewNop()).RespondToRequest)

		w := doJSON(r, http.MethodPost, "/requests/nope/respond", domain.RespondToRequestRequest{Decision: domain.DecisionReject})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestSessionRequestHandler_GetBusyState(t *testing.T) {
	designer := uuid.New()
	mockService := &MockSessionRequestService{
		GetBusyStateFunc: func(ctx context.Context, designerID uuid.UUID) (*domain.BusyStateResponse, error) {
			return &domain.BusyStateResponse{DesignerID: designerID.String(), Busy: true, Reason: service.ReasonInLiveSession}, nil
		},
	}
	r := gin.New()
	r.GET("/designers/:designerId/busy", NewSessionRequestHandler(mockService, zap.NewNop()).GetBusyState)

	w := doJSON(r, http.MethodGet, "/designers/"+designer.String()+"/busy", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var state domain.BusyStateResponse
	decodeEnvelope(t, w, &state)
	assert.True(t, state.Busy)
	assert.Equal(t, designer.String(), state.DesignerID)
}

func TestSessionHandler(t *testing.T) {
	user := uuid.New()
	newRouter := func(svc *MockLiveSessionService) *gin.Engine {
		h := NewSessionHandler(svc, zap.NewNop())
		r := gin.New()
		r.POST("/sessions/:sessionId/release", asUser(user), h.Release)
		r.POST("/sessions/:sessionId/activity", asUser(user), h.RecordActivity)
		r.GET("/sessions/:sessionId/token", asUser(user), h.JoinToken)
		return r
	}

	t.Run("release without body", func(t *testing.T) {
		var gotReason string
		r := newRouter(&MockLiveSessionService{
			ReleaseFunc: func(ctx context.Context, actorID uuid.UUID, sessionID, reason string) (*domain.ActiveSession, error) {
				gotReason = reason
				return &domain.ActiveSession{SessionID: sessionID, Status: domain.SessionStatusEnded}, nil
			},
		})

		w := doJSON(r, http.MethodPost, "/sessions/ls_1/release", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, gotReason)
	})

	t.Run("release with reason", func(t *testing.T) {
		var gotReason string
		r := newRouter(&MockLiveSessionService{
			ReleaseFunc: func(ctx context.Context, actorID uuid.UUID, sessionID, reason string) (*domain.ActiveSession, error) {
				gotReason = reason
				return &domain.ActiveSession{SessionID: sessionID}, nil
			},
		})

		w := doJSON(r, http.MethodPost, "/sessions/ls_1/release", domain.ReleaseSessionRequest{Reason: "customer left"})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "customer left", gotReason)
	})

	t.Run("activity", func(t *testing.T) {
		r := newRouter(&MockLiveSessionService{})
		w := doJSON(r, http.MethodPost, "/sessions/ls_1/activity", nil)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("not a participant", func(t *testing.T) {
		r := newRouter(&MockLiveSessionService{
			JoinTokenFunc: func(ctx context.Context, actorID uuid.UUID, sessionID string) (*domain.JoinTokenResponse, error) {
				return nil, service.ErrNotParticipant
			},
		})
		w := doJSON(r, http.MethodGet, "/sessions/ls_1/token", nil)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestMapErrorCodeToHTTPStatus(t *testing.T) {
	cases := map[string]int{
		response.ErrCodeRefused:           http.StatusUnprocessableEntity,
		response.ErrCodeConflict:          http.StatusConflict,
		response.ErrCodeTransport:         http.StatusServiceUnavailable,
		response.ErrCodeNotFound:          http.StatusNotFound,
		response.ErrCodeValidation:        http.StatusBadRequest,
		response.ErrCodeUnauthorized:      http.StatusUnauthorized,
		response.ErrCodeForbidden:         http.StatusForbidden,
		response.ErrCodeRateLimited:       http.StatusTooManyRequests,
		response.ErrCodeInconsistentState: http.StatusInternalServerError,
		"SOMETHING_ELSE":                  http.StatusInternalServerError,
	}
	for code, status := range cases {
		assert.Equal(t, status, mapErrorCodeToHTTPStatus(code), code)
	}
}

func TestHandleServiceError_UnknownErrorIsInternal(t *testing.T) {
	r := gin.New()
	r.GET("/boom", func(c *gin.Context) {
		handleServiceError(c, zap.NewNop(), errors.New("disk on fire"))
	})

	w := doJSON(r, http.MethodGet, "/boom", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	env := decodeEnvelope(t, w, nil)
	assert.Equal(t, response.ErrCodeInternal, env.Error.Code)
	assert.NotContains(t, w.Body.String(), "disk on fire")
}
