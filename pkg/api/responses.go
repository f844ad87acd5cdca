package api

import (
	"github.com/gin-gonic/gin"

	"github.com/heraldhq/herald/pkg/database"
	"github.com/heraldhq/herald/pkg/queue"
	"github.com/heraldhq/herald/pkg/services"
)

// InitiateConversationResponse is the success body for POST
// /initiate-conversation.
type InitiateConversationResponse struct {
	Status         string `json:"status"`
	RequestID      string `json:"request_id"`
	ConversationID string `json:"conversation_id"`
}

// ErrorResponse is the body for any error status.
type ErrorResponse struct {
	Status    string         `json:"status"`
	ErrorCode string         `json:"error_code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}

// HealthResponse aggregates database and worker-pool health.
type HealthResponse struct {
	Status   string                 `json:"status"`
	Version  string                 `json:"version"`
	Database *database.HealthStatus `json:"database"`
	Workers  *queue.PoolHealth      `json:"workers"`
}

// respondError writes the error envelope for an AppError.
func respondError(c *gin.Context, appErr *services.AppError) {
	c.JSON(appErr.Status, ErrorResponse{
		Status:    "error",
		ErrorCode: appErr.Code,
		Message:   appErr.Message,
		Details:   appErr.Details,
	})
}
