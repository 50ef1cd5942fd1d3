package response

import (
	"github.com/gin-gonic/gin"

	"fieldops/pkg/apperror"
)

// Response represents a standard API response format
type Response struct {
	Status     string      `json:"status"`      // "success" or "error"
	StatusCode int         `json:"status_code"` // HTTP status code
	Data       interface{} `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Success returns a standard success response wrapping the data
func Success(statusCode int, data interface{}) Response {
	return Response{
		Status:     "success",
		StatusCode: statusCode,
		Data:       data,
	}
}

// Error returns a standard error response wrapping the error message
func Error(statusCode int, err string) Response {
	return Response{
		Status:     "error",
		StatusCode: statusCode,
		Error:      err,
	}
}

// RenderError writes an error response with the status mapped from the
// error's kind. Unknown kinds render as a generic 500 without leaking the
// internal message.
func RenderError(c *gin.Context, err error) {
	status := apperror.Status(err)
	message := err.Error()
	if apperror.KindOf(err) == apperror.KindUnknown {
		message = "internal server error"
	}
	c.JSON(status, Error(status, message))
}

// AbortWithError is RenderError plus request abortion, for middleware.
func AbortWithError(c *gin.Context, err error) {
	status := apperror.Status(err)
	message := err.Error()
	if apperror.KindOf(err) == apperror.KindUnknown {
		message = "internal server error"
	}
	c.AbortWithStatusJSON(status, Error(status, message))
}
