package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/heraldhq/herald/pkg/database"
	"github.com/heraldhq/herald/pkg/version"
)

// GetHealth handles GET /health. Unhealthy dependencies degrade the overall
// status but the endpoint itself always answers.
func (s *Server) GetHealth(c *gin.Context) {
	resp := HealthResponse{
		Status:  "healthy",
		Version: version.Full(),
	}

	dbHealth, err := database.Health(c.Request.Context(), s.db.Pool())
	resp.Database = dbHealth
	if err != nil {
		resp.Status = "unhealthy"
	}

	if s.pool != nil {
		workers := s.pool.Health(c.Request.Context())
		resp.Workers = workers
		if !workers.IsHealthy {
			resp.Status = "unhealthy"
		}
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}
