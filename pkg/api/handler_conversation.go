package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/heraldhq/herald/pkg/state"
)

// GetConversation handles GET /conversations/:conversation_id.
func (s *Server) GetConversation(c *gin.Context) {
	conversationID := c.Param("conversation_id")

	rec, err := s.conversations.Get(c.Request.Context(), conversationID)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Status:    "error",
				ErrorCode: "CONVERSATION_NOT_FOUND",
				Message:   "no conversation with id " + conversationID,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Status:    "error",
			ErrorCode: "INTERNAL_ERROR",
			Message:   "failed to load conversation",
		})
		return
	}

	c.JSON(http.StatusOK, rec)
}
