package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"

	"dm_go/internal/auth"
	"dm_go/internal/dm"
	"dm_go/internal/engagement"
	"dm_go/internal/health"
	"dm_go/pkg/config"
	"dm_go/pkg/instagram/browser"
	"dm_go/pkg/instagram/dmloop"
	"dm_go/pkg/instagram/login"
	"dm_go/pkg/instagram/messaging"
	"dm_go/pkg/instagram/ratelimit"
	"dm_go/pkg/instagram/session"
	"dm_go/pkg/instagram/stories"
	"dm_go/pkg/instagram/twofa"
	"dm_go/pkg/storage"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
)

func main() {
	cfg := config.Load()

	// Инициализация подключения к БД
	dbConn, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer dbConn.Close()

	// Проверка подключения
	if err := dbConn.Ping(); err != nil {
		log.Fatalf("Database ping failed: %v", err)
	}

	db := storage.NewDB(dbConn)
	sessions := session.NewStore(cfg.ProfilesDir)
	mailbox := twofa.NewMailbox()

	b, err := browser.New(cfg, db, sessions)
	if err != nil {
		log.Fatalf("Browser context init failed: %v", err)
	}

	quota := ratelimit.NewTracker(cfg.QuotaFile, db)

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	quota.StartCleanup(rootCtx)
	b.StartMonitor(rootCtx)

	sender := messaging.NewSender(b)
	warmup := stories.NewScheduler(b)

	loginFn := func(ctx context.Context, username, password string) (bool, string) {
		res := login.Login(ctx, b, sessions, mailbox, username, password)
		return res.Success, res.Message
	}
	sched := dmloop.NewScheduler(cfg, db, db, quota, sender, warmup, b, loginFn)
	runner := dmloop.NewRunner(sched)

	r := setupRouter(db, cfg, b, sessions, mailbox, runner, sender, quota, warmup)

	// Останавливаем браузер и сбрасываем квоту на диск при завершении.
	go func() {
		<-rootCtx.Done()
		log.Printf("[MAIN] получен сигнал завершения")
		runner.Stop()
		b.Shutdown()
		quota.Flush()
		os.Exit(0)
	}()

	log.Printf("Starting server on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// Настройка маршрутов
func setupRouter(db *storage.DB, cfg *config.Config, b *browser.Context, sessions *session.Store, mailbox *twofa.Mailbox, runner *dmloop.Runner, sender *messaging.Sender, quota *ratelimit.Tracker, warmup *stories.Scheduler) *gin.Engine {
	r := gin.Default()

	// Группа роутов для входа в аккаунт
	authGroup := r.Group("/auth")
	auth.SetupRoutes(authGroup, db, cfg, b, sessions, mailbox)

	// Группа роутов рассылки
	dmGroup := r.Group("/dm")
	dm.SetupRoutes(dmGroup, db, cfg, runner, sender, quota, b)

	// Группа роутов фонового прогрева
	engagementGroup := r.Group("/engagement")
	engagement.SetupRoutes(engagementGroup, warmup)

	// Сводное состояние сервиса
	health.SetupRoutes(r, cfg, b, runner, warmup, quota)

	// Логирование зарегистрированных роутов
	log.Printf("[ROUTER] Routes initialized:")
	log.Printf("[ROUTER] POST /auth/login")
	log.Printf("[ROUTER] POST /auth/login-from-db")
	log.Printf("[ROUTER] POST /auth/submit-2fa")
	log.Printf("[ROUTER] POST /dm/start-loop")
	log.Printf("[ROUTER] POST /dm/stop-loop")
	log.Printf("[ROUTER] POST /dm/send")
	log.Printf("[ROUTER] POST /engagement/toggle")
	log.Printf("[ROUTER] GET /health")

	return r
}
