// Package response implements the standardized JSON envelope shared with the
// CheckOut API: {success, message, data, error?}.
package response

import "github.com/gin-gonic/gin"

// Body is the envelope for every endpoint.
type Body struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
	Error   string `json:"error,omitempty"`
}

// OK writes a success envelope.
func OK(c *gin.Context, message string, data any) {
	c.JSON(200, Body{Success: true, Message: message, Data: data})
}

// Fail writes a failure envelope with the given status.
func Fail(c *gin.Context, status int, message, errMsg string) {
	c.JSON(status, Body{Success: false, Message: message, Error: errMsg})
}

// Abort writes a failure envelope and stops the handler chain.
func Abort(c *gin.Context, status int, message, errMsg string) {
	c.AbortWithStatusJSON(status, Body{Success: false, Message: message, Error: errMsg})
}
