package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/heraldhq/herald/pkg/services"
)

// InitiateConversation handles POST /initiate-conversation.
func (s *Server) InitiateConversation(c *gin.Context) {
	var req InitiateConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, services.NewInvalidRequest(err.Error()))
		return
	}

	result, appErr := s.initiation.Initiate(c.Request.Context(), req.payload())
	if appErr != nil {
		respondError(c, appErr)
		return
	}

	c.JSON(http.StatusOK, InitiateConversationResponse{
		Status:         "success",
		RequestID:      result.RequestID,
		ConversationID: result.ConversationID,
	})
}
