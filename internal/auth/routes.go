package auth

import (
	"dm_go/pkg/config"
	"dm_go/pkg/instagram/browser"
	"dm_go/pkg/instagram/session"
	"dm_go/pkg/instagram/twofa"
	"dm_go/pkg/storage"

	"github.com/gin-gonic/gin"
)

// SetupRoutes регистрирует маршруты входа.
func SetupRoutes(r *gin.RouterGroup, db *storage.DB, cfg *config.Config, b *browser.Context, sessions *session.Store, mailbox *twofa.Mailbox) {
	handler := NewHandler(db, cfg, b, sessions, mailbox)
	r.POST("/login", handler.Login)
	r.POST("/login-from-db", handler.LoginFromDB)
	r.POST("/submit-2fa", handler.SubmitTwoFactor)
}
