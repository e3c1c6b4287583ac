package response

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestAppError_CodeSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("accept: %w", NewConflictError("designer is busy"))

	assert.Equal(t, ErrCodeConflict, CodeOf(err))
	assert.False(t, IsRetryable(err))
	assert.Equal(t, "", CodeOf(errors.New("plain")))
}

func TestAppError_IsMatchesCode(t *testing.T) {
	busy := NewConflictError("designer is busy")

	assert.True(t, errors.Is(fmt.Errorf("wrap: %w", busy), &AppError{Code: ErrCodeConflict}))
	assert.True(t, errors.Is(busy, NewConflictError("designer is busy")))
	assert.False(t, errors.Is(busy, NewRefusalError("offline")))
}

func TestTransportError_Unwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewTransportError("insert session", cause)

	assert.True(t, IsRetryable(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestSendError_Envelope(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	SendError(c, http.StatusConflict, ErrCodeConflict, "designer is busy")

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"success":false,"error":{"code":"CONFLICT","message":"designer is busy"}}`, w.Body.String())
}
