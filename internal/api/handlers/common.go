package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/birdeye-sniper/sniper_service/internal/api/middleware"
)

// ErrorResponse is the error envelope of the ops API
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// getRequestID extracts request ID from context
func getRequestID(c *gin.Context) string {
	return c.GetString(middleware.KeyRequestID)
}

// respondError sends a standardized error response
func respondError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Code:      code,
		Message:   message,
		RequestID: getRequestID(c),
	})
}
