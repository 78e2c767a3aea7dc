// Package engagement — HTTP-переключатель фонового прогрева аккаунта.
package engagement

import (
	"dm_go/internal/httputil"
	"dm_go/pkg/instagram/stories"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	Stories *stories.Scheduler
}

func NewHandler(s *stories.Scheduler) *Handler {
	return &Handler{Stories: s}
}

// Toggle включает или выключает прогрев командой start/stop.
func (h *Handler) Toggle(c *gin.Context) {
	var req struct {
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Status == "" {
		httputil.RespondError(c, 400, "требуется status: start или stop")
		return
	}

	msg, ok := h.Stories.Toggle(req.Status)
	if !ok {
		httputil.RespondError(c, 400, msg)
		return
	}
	httputil.RespondSuccess(c, msg)
}
