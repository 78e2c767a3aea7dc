package httputil

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RespondError отправляет сообщение об ошибке в едином формате и прекращает обработку запроса.
// Используем AbortWithStatusJSON, чтобы последующие обработчики не выполнялись, даже если забыли вернуть управление.
func RespondError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": msg})
}

// RespondSuccess отвечает телом {success: true, message: …} —
// форма, которую ожидают все клиенты управляющего API.
func RespondSuccess(c *gin.Context, msg string) {
	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg})
}
