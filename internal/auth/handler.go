// Package auth — HTTP-обработчики входа в аккаунт и передачи 2FA-кодов.
package auth

import (
	"log"

	"dm_go/internal/httputil"
	"dm_go/pkg/config"
	"dm_go/pkg/instagram/browser"
	"dm_go/pkg/instagram/login"
	"dm_go/pkg/instagram/session"
	"dm_go/pkg/instagram/twofa"
	"dm_go/pkg/storage"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	DB       *storage.DB
	Cfg      *config.Config
	Browser  *browser.Context
	Sessions *session.Store
	Mailbox  *twofa.Mailbox
}

func NewHandler(db *storage.DB, cfg *config.Config, b *browser.Context, sessions *session.Store, mailbox *twofa.Mailbox) *Handler {
	return &Handler{DB: db, Cfg: cfg, Browser: b, Sessions: sessions, Mailbox: mailbox}
}

// Login выполняет вход по паре логин/пароль из тела запроса.
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || req.Password == "" {
		httputil.RespondError(c, 400, "требуются username и password")
		return
	}

	result := login.Login(c.Request.Context(), h.Browser, h.Sessions, h.Mailbox, req.Username, req.Password)
	if !result.Success {
		log.Printf("[AUTH] вход %s не удался: %s", req.Username, result.Message)
		httputil.RespondError(c, 500, result.Message)
		return
	}
	c.JSON(200, gin.H{
		"success": true,
		"message": result.Message,
		"user":    result.User,
		"proxy":   result.Proxy,
	})
}

// LoginFromDB выполняет вход по данным аккаунта из БД. Без username в
// теле запроса используется аккаунт из конфигурации.
func (h *Handler) LoginFromDB(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
	}
	_ = c.ShouldBindJSON(&req)

	username := req.Username
	if username == "" {
		username = h.Cfg.LoginUsername
	}
	if username == "" {
		httputil.RespondError(c, 400, "username не задан ни в запросе, ни в конфигурации")
		return
	}

	account, err := h.DB.GetAccountByUsername(username)
	if err != nil {
		log.Printf("[AUTH] ошибка чтения аккаунта %s: %v", username, err)
		httputil.RespondError(c, 500, "ошибка БД")
		return
	}
	if account == nil {
		httputil.RespondError(c, 404, "аккаунт не найден в БД")
		return
	}

	result := login.Login(c.Request.Context(), h.Browser, h.Sessions, h.Mailbox, account.Username, account.Password)
	if !result.Success {
		log.Printf("[AUTH] вход %s не удался: %s", username, result.Message)
		httputil.RespondError(c, 500, result.Message)
		return
	}
	c.JSON(200, gin.H{
		"success": true,
		"message": result.Message,
		"user":    result.User,
		"proxy":   result.Proxy,
	})
}

// SubmitTwoFactor кладёт код подтверждения в ящик, откуда его заберёт
// ожидающий процесс входа.
func (h *Handler) SubmitTwoFactor(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Code     string `json:"code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Code == "" {
		httputil.RespondError(c, 400, "требуется code")
		return
	}

	username := req.Username
	if username == "" {
		username = h.Cfg.LoginUsername
	}
	if username == "" {
		httputil.RespondError(c, 400, "username не задан ни в запросе, ни в конфигурации")
		return
	}

	h.Mailbox.Submit(username, req.Code)
	httputil.RespondSuccess(c, "код принят")
}
