// Package dmloop — планировщик рассылки: один проход обрабатывает пачку
// лидов из БД с учётом окна отправки, дневной квоты и вердикта бэкенда.
package dmloop

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"time"

	"dm_go/internal/common"
	"dm_go/models"
	"dm_go/pkg/config"
	"dm_go/pkg/instagram/messaging"
	"dm_go/pkg/instagram/schedule"
)

type accountStore interface {
	GetAccountByUsername(username string) (*models.Account, error)
}

type leadStore interface {
	GetPendingLeads(table string, limit int) ([]models.Lead, error)
	UpdateLeadStatus(table string, id int, status string, ts time.Time) error
}

type quotaTracker interface {
	GetCount(username string) (count, limit int, date string)
	TryIncrement(username string) bool
}

type messageSender interface {
	SendMessage(ctx context.Context, toUsername, message string) messaging.SendResult
}

// warmup — прогрев между отправками (пакет stories).
type warmup interface {
	Toggle(command string) (string, bool)
}

type browserState interface {
	Alive() bool
	CurrentUser() string
	CloseSession()
}

// LoginFunc выполняет вход, когда сессии нет или браузер умер.
type LoginFunc func(ctx context.Context, username, password string) (bool, string)

// Scheduler держит зависимости одного прохода рассылки. Временные
// функции вынесены в поля, чтобы тесты шли без реальных ожиданий.
type Scheduler struct {
	Cfg      *config.Config
	Accounts accountStore
	Leads    leadStore
	Quota    quotaTracker
	Sender   messageSender
	Warmup   warmup
	Browser  browserState
	Login    LoginFunc

	sleep         func(ctx context.Context, d time.Duration) error
	msUntilWindow func(timezone string) time.Duration
	randFloat     func() float64
	randMinutes   func(min, max int) int
}

func NewScheduler(cfg *config.Config, accounts accountStore, leads leadStore, quota quotaTracker, sender messageSender, warm warmup, b browserState, login LoginFunc) *Scheduler {
	return &Scheduler{
		Cfg:      cfg,
		Accounts: accounts,
		Leads:    leads,
		Quota:    quota,
		Sender:   sender,
		Warmup:   warm,
		Browser:  b,
		Login:    login,

		sleep:         common.Sleep,
		msUntilWindow: schedule.MsUntilSendingWindow,
		randFloat:     rand.Float64,
		randMinutes:   common.RandomMinutes,
	}
}

// sendIntervalWithJitter возвращает паузу между отправками в минутах:
// база ±10%, округлённая до одного знака.
func sendIntervalWithJitter(baseMinutes float64, randFloat func() float64) float64 {
	factor := 0.9 + randFloat()*0.2
	return math.Round(baseMinutes*factor*10) / 10
}

// RunCycle выполняет один проход: проверки аккаунта, окна и квоты, вход
// при необходимости, затем пачка лидов. running опрашивается между
// лидами и позволяет остановить проход извне.
func (s *Scheduler) RunCycle(ctx context.Context, username string, running func() bool) (models.CycleResult, error) {
	account, err := s.Accounts.GetAccountByUsername(username)
	if err != nil {
		return models.CycleResult{Message: "ошибка чтения аккаунта"}, err
	}
	if account == nil {
		log.Printf("[DMLOOP] аккаунт %s не найден в БД", username)
		return models.CycleResult{Message: "аккаунт не найден"}, nil
	}
	if !account.Active {
		log.Printf("[DMLOOP] аккаунт %s выключен, останавливаем цикл", username)
		return models.CycleResult{Success: true, StopLoop: true, Message: "цикл остановлен: аккаунт выключен"}, nil
	}

	table := account.TableName
	if table == "" {
		table = "leads"
	}
	intervalBase := account.SendIntervalMinutes
	if intervalBase <= 0 {
		intervalBase = s.Cfg.DefaultSendIntervalMin
	}

	// Окно отправки: вне 8:00-23:00 по поясу аккаунта спим до открытия.
	if wait := s.msUntilWindow(account.Timezone); wait > 0 {
		log.Printf("[DMLOOP] вне окна отправки, ждём %d мин до 8:00", int(math.Ceil(wait.Minutes())))
		if err := s.sleep(ctx, wait); err != nil {
			return models.CycleResult{Message: "ожидание окна прервано"}, err
		}
	}

	count, limit, _ := s.Quota.GetCount(username)
	if count >= limit {
		log.Printf("[RATE LIMIT] %s исчерпал дневной лимит (%d/%d)", username, count, limit)
		return models.CycleResult{Message: "дневной лимит исчерпан"}, nil
	}
	log.Printf("[RATE LIMIT] %s: использовано %d/%d за сегодня", username, count, limit)

	if s.Browser.CurrentUser() == "" || !s.Browser.Alive() {
		log.Printf("[DMLOOP] сессии нет или браузер мёртв, выполняем вход")
		ok, msg := s.Login(ctx, username, account.Password)
		if !ok {
			log.Printf("[DMLOOP] вход не удался: %s", msg)
			return models.CycleResult{Message: msg}, nil
		}
	}

	leads, err := s.Leads.GetPendingLeads(table, s.Cfg.LeadsPerCycle)
	if err != nil {
		log.Printf("[DMLOOP] ошибка выборки лидов: %v", err)
		return models.CycleResult{Message: "ошибка выборки лидов"}, err
	}
	if len(leads) == 0 {
		log.Printf("[DMLOOP] лидов для отправки нет")
		return models.CycleResult{Success: true, Message: "лидов нет"}, nil
	}
	log.Printf("[DMLOOP] к обработке %d лидов", len(leads))

	tempBlock := false

	for _, lead := range leads {
		if !running() {
			break
		}

		// Перед каждым лидом перечитываем аккаунт: оператор мог выключить
		// его в середине прохода.
		if check, err := s.Accounts.GetAccountByUsername(username); err == nil && check != nil && !check.Active {
			log.Printf("[DMLOOP] аккаунт %s выключили, останавливаем цикл", username)
			return models.CycleResult{Success: !tempBlock, TempBlock: tempBlock, StopLoop: true, Message: "цикл остановлен: аккаунт выключен"}, nil
		}

		// Окно могло закрыться между лидами (перевалило за 23:00).
		if wait := s.msUntilWindow(account.Timezone); wait > 0 {
			log.Printf("[DMLOOP] окно закрылось, ждём до 8:00 чтобы продолжить")
			if err := s.sleep(ctx, wait); err != nil {
				return models.CycleResult{Message: "ожидание окна прервано"}, err
			}
		}

		if count, limit, _ := s.Quota.GetCount(username); count >= limit {
			log.Printf("[RATE LIMIT] лимит достигнут, прерываем проход")
			break
		}

		log.Printf("[DMLOOP] отправляем сообщение @%s…", lead.Username)
		result := s.Sender.SendMessage(ctx, lead.Username, lead.Message)

		switch {
		case result.TempBlock:
			log.Printf("[DMLOOP] временная блокировка, останавливаем проход")
			tempBlock = true
			s.markFailed(table, lead.ID, result.Err)
		case result.Success:
			s.Quota.TryIncrement(username)
			if err := s.Leads.UpdateLeadStatus(table, lead.ID, models.LeadStatusSent, time.Now()); err != nil {
				log.Printf("[DMLOOP] не удалось пометить лид %d: %v", lead.ID, err)
			} else {
				log.Printf("[DMLOOP] лид %d помечен отправленным", lead.ID)
			}
			if err := s.idleBetweenSends(ctx, intervalBase); err != nil {
				return models.CycleResult{Message: "ожидание между отправками прервано"}, err
			}
		default:
			log.Printf("[DMLOOP] лид %d не отправлен: %s", lead.ID, result.Err)
			s.markFailed(table, lead.ID, result.Err)
		}

		if tempBlock {
			break
		}
	}

	if tempBlock {
		return models.CycleResult{TempBlock: true, Message: "временная блокировка Instagram"}, nil
	}
	return models.CycleResult{Success: true, Message: "проход завершён"}, nil
}

// idleBetweenSends — пауза после удачной отправки: несколько минут
// прогрева историями, затем джиттерный интервал между сообщениями.
func (s *Scheduler) idleBetweenSends(ctx context.Context, intervalBase float64) error {
	if s.Warmup != nil {
		log.Printf("[DMLOOP] включаем прогрев историями")
		s.Warmup.Toggle("start")

		warmMinutes := s.randMinutes(s.Cfg.DelayStoriesMin, s.Cfg.DelayStoriesMax)
		log.Printf("[DMLOOP] имитируем действия пользователя %d мин", warmMinutes)
		err := s.sleep(ctx, time.Duration(warmMinutes)*time.Minute)

		s.Warmup.Toggle("stop")
		log.Printf("[DMLOOP] прогрев остановлен")
		if err != nil {
			return err
		}
	}

	pause := sendIntervalWithJitter(intervalBase, s.randFloat)
	log.Printf("[DMLOOP] пауза %.1f мин до следующей отправки (база %.1f ±10%%)", pause, intervalBase)
	return s.sleep(ctx, time.Duration(pause*float64(time.Minute)))
}

func (s *Scheduler) markFailed(table string, id int, reason string) {
	if reason == "" {
		reason = "unknown"
	}
	status := fmt.Sprintf("not-send ( Error: %s )", reason)
	if err := s.Leads.UpdateLeadStatus(table, id, status, time.Now()); err != nil {
		log.Printf("[DMLOOP] не удалось пометить лид %d ошибкой: %v", id, err)
	}
}
