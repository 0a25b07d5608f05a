package common

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gustavodarosa/KidGo/pkg/logger"
)

// Response is the envelope of every API response. RequestID echoes the
// correlation ID so clients can quote it when reporting a failure.
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *ErrorInfo  `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// ErrorInfo describes a failed request. Retryable tells the client the same
// request may succeed later.
type ErrorInfo struct {
	Code      int    `json:"code"`
	ErrorCode string `json:"error_code,omitempty"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

func respond(c *gin.Context, status int, data interface{}, info *ErrorInfo) {
	resp := Response{Success: info == nil, Data: data, Error: info}
	if c.Request != nil {
		resp.RequestID = logger.CorrelationIDFromContext(c.Request.Context())
	}
	c.JSON(status, resp)
}

// SuccessResponse writes 200 with data
func SuccessResponse(c *gin.Context, data interface{}) {
	respond(c, http.StatusOK, data, nil)
}

// AcceptedResponse acknowledges work whose result arrives on the event stream.
func AcceptedResponse(c *gin.Context, data interface{}) {
	respond(c, http.StatusAccepted, data, nil)
}

// CreatedResponse writes 201 with data
func CreatedResponse(c *gin.Context, data interface{}) {
	respond(c, http.StatusCreated, data, nil)
}

// ErrorResponse writes a bare error with the given status.
func ErrorResponse(c *gin.Context, statusCode int, message string) {
	respond(c, statusCode, nil, &ErrorInfo{Code: statusCode, Message: message})
}

// AppErrorResponse writes err with its status, code and retry hint.
func AppErrorResponse(c *gin.Context, err *AppError) {
	respond(c, err.Code, nil, &ErrorInfo{
		Code:      err.Code,
		ErrorCode: err.ErrorCode,
		Message:   err.Message,
		Retryable: err.Retryable,
	})
}
