// internal/api/response.go
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error codes carried in the response envelope.
const (
	ErrCodeValidation  = "VALIDATION_ERROR"
	ErrCodeNotFound    = "NOT_FOUND"
	ErrCodeQueueFull   = "QUEUE_FULL"
	ErrCodeUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeInternal    = "INTERNAL_ERROR"
)

// Response is the envelope every endpoint returns.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo describes a failed request.
type ErrorInfo struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
}

func success(c *gin.Context, status int, data any) {
	c.JSON(status, Response{Success: true, Data: data})
}

func failure(c *gin.Context, status int, code, message string) {
	c.JSON(status, Response{Error: &ErrorInfo{Code: code, Message: message}})
}

func validationFailure(c *gin.Context, err *ValidationError) {
	c.JSON(http.StatusBadRequest, Response{Error: &ErrorInfo{
		Code:    ErrCodeValidation,
		Message: err.Error(),
		Details: err.Details,
	}})
}
