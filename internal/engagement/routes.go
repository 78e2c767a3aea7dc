package engagement

import (
	"dm_go/pkg/instagram/stories"

	"github.com/gin-gonic/gin"
)

// SetupRoutes регистрирует маршруты прогрева.
func SetupRoutes(r *gin.RouterGroup, s *stories.Scheduler) {
	handler := NewHandler(s)
	r.POST("/toggle", handler.Toggle)
}
