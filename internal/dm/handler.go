// Package dm — HTTP-обработчики рассылки: непрерывный цикл и разовая
// отправка.
package dm

import (
	"log"

	"dm_go/internal/httputil"
	"dm_go/pkg/config"
	"dm_go/pkg/instagram/browser"
	"dm_go/pkg/instagram/dmloop"
	"dm_go/pkg/instagram/messaging"
	"dm_go/pkg/instagram/ratelimit"
	"dm_go/pkg/storage"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	DB      *storage.DB
	Cfg     *config.Config
	Runner  *dmloop.Runner
	Sender  *messaging.Sender
	Quota   *ratelimit.Tracker
	Browser *browser.Context
}

func NewHandler(db *storage.DB, cfg *config.Config, runner *dmloop.Runner, sender *messaging.Sender, quota *ratelimit.Tracker, b *browser.Context) *Handler {
	return &Handler{DB: db, Cfg: cfg, Runner: runner, Sender: sender, Quota: quota, Browser: b}
}

// StartLoop запускает непрерывный цикл рассылки по аккаунту из
// конфигурации. Перед запуском проверяются БД и дневная квота, чтобы
// не поднимать браузер впустую.
func (h *Handler) StartLoop(c *gin.Context) {
	username := h.Cfg.LoginUsername
	if username == "" {
		httputil.RespondError(c, 400, "LOGIN_USERNAME не задан в окружении")
		return
	}
	if h.Runner.Running() {
		httputil.RespondError(c, 400, "цикл рассылки уже запущен")
		return
	}

	account, err := h.DB.GetAccountByUsername(username)
	if err != nil {
		log.Printf("[DM] ошибка чтения аккаунта %s: %v", username, err)
		httputil.RespondError(c, 500, "ошибка БД")
		return
	}
	if account == nil {
		httputil.RespondError(c, 404, "аккаунт не найден в таблице accounts")
		return
	}
	if !account.Active {
		httputil.RespondError(c, 400, "аккаунт выключен, установите active=true")
		return
	}

	if count, limit, _ := h.Quota.GetCount(username); count >= limit {
		log.Printf("[RATE LIMIT] %s уже исчерпал дневной лимит", username)
		httputil.RespondError(c, 429, "дневной лимит исчерпан")
		return
	}

	msg, ok := h.Runner.Start(username)
	if !ok {
		httputil.RespondError(c, 400, msg)
		return
	}
	httputil.RespondSuccess(c, msg)
}

// StopLoop запрашивает остановку цикла; текущая отправка дорабатывает.
func (h *Handler) StopLoop(c *gin.Context) {
	httputil.RespondSuccess(c, h.Runner.Stop())
}

// Send выполняет разовую отправку вне цикла. Квота и для неё закон;
// в ответ уходит остаток квоты, чтобы клиент видел расход.
func (h *Handler) Send(c *gin.Context) {
	var req struct {
		To      string `json:"to"`
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.To == "" || req.Message == "" {
		httputil.RespondError(c, 400, "требуются to и message")
		return
	}

	sender := h.Browser.CurrentUser()
	if sender == "" {
		httputil.RespondError(c, 400, "нет активной сессии, сначала выполните вход")
		return
	}
	if count, limit, _ := h.Quota.GetCount(sender); count >= limit {
		httputil.RespondError(c, 429, "дневной лимит исчерпан")
		return
	}

	result := h.Sender.SendMessage(c.Request.Context(), req.To, req.Message)
	if result.TempBlock {
		httputil.RespondError(c, 403, result.Err)
		return
	}
	if !result.Success {
		httputil.RespondError(c, 500, result.Err)
		return
	}

	h.Quota.TryIncrement(sender)
	count, limit, _ := h.Quota.GetCount(sender)
	c.JSON(200, gin.H{
		"success":            true,
		"from":               sender,
		"proxy":              h.Browser.CurrentProxy(),
		"message_count":      count,
		"messages_remaining": limit - count,
	})
}
