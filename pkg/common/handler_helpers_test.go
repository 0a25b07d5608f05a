package common_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gustavodarosa/KidGo/pkg/common"
	"github.com/gustavodarosa/KidGo/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestHandleServiceError(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		fallbackMsg    string
		expectHandled  bool
		expectStatus   int
		expectContains string
	}{
		{
			name:          "nil error returns false",
			err:           nil,
			fallbackMsg:   "failed",
			expectHandled: false,
		},
		{
			name:           "AppError is handled",
			err:            common.NewNotFoundError("session not found", nil),
			fallbackMsg:    "failed to get session",
			expectHandled:  true,
			expectStatus:   http.StatusNotFound,
			expectContains: "session not found",
		},
		{
			name:           "wrapped AppError is unwrapped",
			err:            fmt.Errorf("select: %w", common.NewConflictError("field already resolving", nil)),
			fallbackMsg:    "failed",
			expectHandled:  true,
			expectStatus:   http.StatusConflict,
			expectContains: "field already resolving",
		},
		{
			name:           "regular error uses fallback",
			err:            errors.New("loop closed"),
			fallbackMsg:    "failed to get session",
			expectHandled:  true,
			expectStatus:   http.StatusInternalServerError,
			expectContains: "failed to get session",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/test", nil)

			handled := common.HandleServiceError(c, tt.err, tt.fallbackMsg)
			assert.Equal(t, tt.expectHandled, handled)

			if tt.expectHandled {
				assert.Equal(t, tt.expectStatus, w.Code)
				assert.Contains(t, w.Body.String(), tt.expectContains)
			}
		})
	}
}

func TestAppErrorResponseCarriesRetryable(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/test", nil)

	common.AppErrorResponse(c, common.NewUnavailableError("route provider unavailable", nil).WithCode("route_transient"))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp common.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.False(t, resp.Success)
	assert.Equal(t, "route_transient", resp.Error.ErrorCode)
	assert.True(t, resp.Error.Retryable)
}

func TestResponseEchoesCorrelationID(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	c.Request = req.WithContext(logger.ContextWithCorrelationID(req.Context(), "req-42"))

	common.AcceptedResponse(c, gin.H{"ok": true})

	require.Equal(t, http.StatusAccepted, w.Code)
	var resp common.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "req-42", resp.RequestID)
}

func TestAppErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := common.NewInternalError("failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "boom", err.Error())
	assert.ErrorIs(t, common.NewNotFoundError("missing", nil), common.ErrNotFound)
}

func TestBindJSON(t *testing.T) {
	type TestRequest struct {
		Query string `json:"query" binding:"required"`
	}

	tests := []struct {
		name         string
		body         string
		expectOK     bool
		expectStatus int
	}{
		{
			name:     "valid JSON",
			body:     `{"query": "Escola"}`,
			expectOK: true,
		},
		{
			name:         "missing required field",
			body:         `{}`,
			expectOK:     false,
			expectStatus: http.StatusBadRequest,
		},
		{
			name:         "invalid JSON",
			body:         `{invalid}`,
			expectOK:     false,
			expectStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(tt.body))
			c.Request.Header.Set("Content-Type", "application/json")

			var req TestRequest
			ok := common.BindJSON(c, &req)
			assert.Equal(t, tt.expectOK, ok)

			if !tt.expectOK {
				assert.Equal(t, tt.expectStatus, w.Code)
			}
		})
	}
}

func TestHealthCheckWithDepsDegrades(t *testing.T) {
	router := gin.New()
	router.GET("/healthz", common.HealthCheckWithDeps("scheduler", "test", map[string]func() error{
		"redis": func() error { return nil },
		"nats":  func() error { return errors.New("not connected") },
	}))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp common.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "healthy", resp.Checks["redis"].Status)
	assert.Equal(t, "unhealthy", resp.Checks["nats"].Status)
}
