package response

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// ErrorBody is the error envelope shared by middleware and handlers
type ErrorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// Error builds an error envelope. The short error text is derived from code.
func Error(code, message string) ErrorBody {
	return ErrorBody{
		Error:   strings.ToLower(strings.ReplaceAll(code, "_", " ")),
		Code:    code,
		Message: message,
	}
}

// Abort writes an error envelope and stops the handler chain
func Abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, Error(code, message))
}
