package common

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gustavodarosa/KidGo/pkg/logger"
	"go.uber.org/zap"
)

// HandleServiceError sends the response for a service error. It returns true
// if an error was handled, false when err is nil.
//
// Usage:
//
//	snapshot, err := h.manager.Snapshot(ctx, id)
//	if HandleServiceError(c, err, "failed to load session") {
//	    return
//	}
func HandleServiceError(c *gin.Context, err error, fallbackMessage string) bool {
	if err == nil {
		return false
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.Code >= http.StatusInternalServerError {
			_ = c.Error(err)
		}
		AppErrorResponse(c, appErr)
		return true
	}

	logger.ErrorContext(c.Request.Context(), fallbackMessage, zap.Error(err))
	_ = c.Error(err)

	ErrorResponse(c, http.StatusInternalServerError, fallbackMessage)
	return true
}

// BindJSON binds JSON request body and sends error response on failure.
// Returns true on success, false on failure (response already sent).
func BindJSON(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		ErrorResponse(c, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}
