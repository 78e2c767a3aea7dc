package dmloop

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"dm_go/pkg/instagram/loop_mutex"
)

// Runner гоняет проходы планировщика непрерывно, пока рассылку не
// остановят: оператор, дневной лимит или временная блокировка.
type Runner struct {
	Sched *Scheduler

	mu       sync.Mutex
	username string
	cancel   context.CancelFunc
	running  atomic.Bool
}

func NewRunner(s *Scheduler) *Runner {
	return &Runner{Sched: s}
}

func (r *Runner) Running() bool { return r.running.Load() }

// Start запускает непрерывный цикл по аккаунту. Повторный запуск и
// параллельный цикл по тому же аккаунту отклоняются.
func (r *Runner) Start(username string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running.Load() {
		return "цикл рассылки уже запущен", false
	}
	if !loop_mutex.TryLock(username) {
		return "цикл по этому аккаунту уже идёт", false
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.username = username
	r.cancel = cancel
	r.running.Store(true)

	go r.run(ctx, cancel, username)
	log.Printf("[DMLOOP] непрерывный цикл рассылки запущен (%s)", username)
	return "цикл рассылки запущен", true
}

// Stop отменяет контекст цикла: идущие ожидания просыпаются, текущая
// отправка дорабатывает до конца.
func (r *Runner) Stop() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running.Load() {
		return "цикл рассылки не запущен"
	}
	r.cancel()
	log.Printf("[DMLOOP] запрошена остановка цикла рассылки")
	return "остановка цикла запрошена"
}

func (r *Runner) run(ctx context.Context, cancel context.CancelFunc, username string) {
	defer func() {
		// Контекст отменяется и при естественном завершении (блокировка,
		// лимит, выключенный аккаунт), иначе он утекает до вызова Stop.
		cancel()
		r.running.Store(false)
		loop_mutex.Unlock(username)
		log.Printf("[DMLOOP] цикл рассылки завершён")
	}()

	for ctx.Err() == nil {
		res, err := r.Sched.RunCycle(ctx, username, func() bool { return ctx.Err() == nil })
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Сбои БД и прочие неожиданности не убивают цикл: пауза и
			// новая попытка.
			log.Printf("[DMLOOP] проход упал: %v — повтор через 5 минут", err)
			if sleepErr := r.Sched.sleep(ctx, 5*time.Minute); sleepErr != nil {
				return
			}
			continue
		}

		if res.TempBlock {
			log.Printf("[DMLOOP] временная блокировка, закрываем сессию и останавливаемся")
			r.Sched.Browser.CloseSession()
			return
		}
		if res.StopLoop {
			return
		}
		log.Printf("[DMLOOP] проход завершён: %s", res.Message)

		if count, limit, _ := r.Sched.Quota.GetCount(username); count >= limit {
			log.Printf("[RATE LIMIT] лимит достигнут, цикл остановлен")
			return
		}

		log.Printf("[DMLOOP] ждём %d мин до следующего прохода", r.Sched.Cfg.WaitBetweenCyclesMin)
		wait := time.Duration(r.Sched.Cfg.WaitBetweenCyclesMin) * time.Minute
		if err := r.Sched.sleep(ctx, wait); err != nil {
			return
		}
	}
}
