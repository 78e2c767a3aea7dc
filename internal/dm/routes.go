package dm

import (
	"dm_go/pkg/config"
	"dm_go/pkg/instagram/browser"
	"dm_go/pkg/instagram/dmloop"
	"dm_go/pkg/instagram/messaging"
	"dm_go/pkg/instagram/ratelimit"
	"dm_go/pkg/storage"

	"github.com/gin-gonic/gin"
)

// SetupRoutes регистрирует маршруты рассылки.
func SetupRoutes(r *gin.RouterGroup, db *storage.DB, cfg *config.Config, runner *dmloop.Runner, sender *messaging.Sender, quota *ratelimit.Tracker, b *browser.Context) {
	handler := NewHandler(db, cfg, runner, sender, quota, b)
	r.POST("/start-loop", handler.StartLoop)
	r.POST("/stop-loop", handler.StopLoop)
	r.POST("/send", handler.Send)
}
