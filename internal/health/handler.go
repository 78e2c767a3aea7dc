// Package health отдаёт сводное состояние сервиса одним запросом.
package health

import (
	"dm_go/models"
	"dm_go/pkg/config"
	"dm_go/pkg/instagram/browser"
	"dm_go/pkg/instagram/dmloop"
	"dm_go/pkg/instagram/ratelimit"
	"dm_go/pkg/instagram/stories"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	Cfg     *config.Config
	Browser *browser.Context
	Runner  *dmloop.Runner
	Stories *stories.Scheduler
	Quota   *ratelimit.Tracker
}

func NewHandler(cfg *config.Config, b *browser.Context, runner *dmloop.Runner, s *stories.Scheduler, quota *ratelimit.Tracker) *Handler {
	return &Handler{Cfg: cfg, Browser: b, Runner: runner, Stories: s, Quota: quota}
}

// Status возвращает живость браузера, текущую сессию, состояние циклов
// и расход дневной квоты.
func (h *Handler) Status(c *gin.Context) {
	user := h.Browser.CurrentUser()

	var quota *models.QuotaInfo
	if user != "" {
		count, limit, date := h.Quota.GetCount(user)
		quota = &models.QuotaInfo{Count: count, Limit: limit, Date: date}
	}

	c.JSON(200, gin.H{
		"status":        "ok",
		"browser_alive": h.Browser.Alive(),
		"current_user":  user,
		"loop_running":  h.Runner.Running(),
		"story_viewing": h.Stories.Viewing(),
		"quota":         quota,
	})
}

// SetupRoutes регистрирует маршрут состояния на корневой группе.
func SetupRoutes(r *gin.Engine, cfg *config.Config, b *browser.Context, runner *dmloop.Runner, s *stories.Scheduler, quota *ratelimit.Tracker) {
	handler := NewHandler(cfg, b, runner, s, quota)
	r.GET("/health", handler.Status)
}
