// Package stories — фоновый прогрев аккаунта: лента, лайки, просмотр
// историй. Работает параллельно с рассылкой и уступает ей навигацию.
package stories

import (
	"log"
	"math/rand"
	"sync/atomic"
	"time"

	"dm_go/internal/common"
	"dm_go/pkg/instagram/browser"

	"github.com/go-rod/rod"
)

// Пауза между циклами действий, секунды.
const (
	cyclePauseMinSec = 40
	cyclePauseMaxSec = 90
)

// Сколько максимум ждём освобождения «занятости» другого действия,
// прежде чем продолжить несмотря на неё.
const actionLockTimeout = 15 * time.Second

type Scheduler struct {
	Browser *browser.Context

	// viewing — желаемое состояние (включён ли прогрев), переключается
	// из HTTP-обработчика. resilient гарантирует один внешний цикл.
	viewing    atomic.Bool
	resilient  atomic.Bool
	actionBusy atomic.Bool
}

func NewScheduler(b *browser.Context) *Scheduler {
	return &Scheduler{Browser: b}
}

func (s *Scheduler) Viewing() bool { return s.viewing.Load() }

// Toggle включает или выключает прогрев. Команда "stop" лишь снимает
// флаг: работающие действия замечают его на ближайшей проверке.
func (s *Scheduler) Toggle(command string) (string, bool) {
	switch command {
	case "start":
		if s.Browser.CurrentUser() == "" {
			return "нет активной сессии, сначала выполните вход", false
		}
		if s.viewing.Load() {
			return "прогрев уже запущен", true
		}
		s.viewing.Store(true)
		go s.resilientLoop()
		log.Printf("[STORIES] прогрев запущен")
		return "прогрев запущен", true
	case "stop":
		if !s.viewing.Load() {
			return "прогрев и так остановлен", true
		}
		s.viewing.Store(false)
		log.Printf("[STORIES] прогрев остановлен")
		return "прогрев остановлен", true
	default:
		return "неизвестная команда: " + command, false
	}
}

// resilientLoop переживает падения отдельных циклов: ошибка действия не
// должна убивать прогрев целиком. Одновременно работает только один
// экземпляр цикла.
func (s *Scheduler) resilientLoop() {
	if !s.resilient.CompareAndSwap(false, true) {
		return
	}
	defer s.resilient.Store(false)

	for s.viewing.Load() {
		if err := s.storyCycle(); err != nil {
			log.Printf("[STORIES] цикл завершился ошибкой: %v — пауза 5 минут", err)
			s.sleepChecked(5 * time.Minute)
		}
	}
	log.Printf("[STORIES] цикл прогрева завершён")
}

// storyCycle — один проход: домашняя страница, три действия в случайном
// порядке, пауза. Между действиями уважаем навигационную блокировку.
func (s *Scheduler) storyCycle() error {
	page := s.Browser.Page()
	if page == nil {
		s.sleepChecked(30 * time.Second)
		return nil
	}

	if err := s.goHome(page); err != nil {
		return err
	}

	actions := []func(*rod.Page){s.scrollFeed, s.likeRandomPosts, s.viewStories}
	rand.Shuffle(len(actions), func(i, j int) { actions[i], actions[j] = actions[j], actions[i] })

	for _, action := range actions {
		if !s.viewing.Load() {
			return nil
		}
		s.waitNavFree()
		s.withActionLock(func() { action(page) })
		common.RandomDelay(4000, 9000)
	}

	pause := time.Duration(cyclePauseMinSec+rand.Intn(cyclePauseMaxSec-cyclePauseMinSec)) * time.Second
	s.sleepChecked(pause)
	return nil
}

// withActionLock исключает наложение действий друг на друга. Если
// занятость не снимается за таймаут, продолжаем с предупреждением:
// зависшее действие не должно навсегда останавливать прогрев.
func (s *Scheduler) withActionLock(fn func()) {
	deadline := time.Now().Add(actionLockTimeout)
	for !s.actionBusy.CompareAndSwap(false, true) {
		if time.Now().After(deadline) {
			log.Printf("[STORIES] занятость действия не снялась за %s — продолжаем", actionLockTimeout)
			break
		}
		if !s.viewing.Load() {
			return
		}
		time.Sleep(time.Duration(100+rand.Intn(150)) * time.Millisecond)
	}
	defer s.actionBusy.Store(false)
	fn()
}

// waitNavFree ждёт, пока рассылка не освободит навигацию.
func (s *Scheduler) waitNavFree() {
	for s.Browser.NavBusy() {
		if !s.viewing.Load() {
			return
		}
		time.Sleep(time.Duration(200+rand.Intn(300)) * time.Millisecond)
	}
}

// sleepChecked спит дробно и просыпается раньше, если прогрев выключили.
func (s *Scheduler) sleepChecked(d time.Duration) {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if !s.viewing.Load() {
			return
		}
		time.Sleep(time.Second)
	}
}

func (s *Scheduler) goHome(page *rod.Page) error {
	info, err := page.Info()
	if err == nil && info.URL == "https://www.instagram.com/" {
		return nil
	}
	log.Printf("[STORIES] возвращаемся на главную")
	return s.Browser.Navigate(page, "https://www.instagram.com/")
}

// ---------- Действия ----------

// scrollFeed листает ленту с человеческими паузами.
func (s *Scheduler) scrollFeed(page *rod.Page) {
	steps := 3 + rand.Intn(4)
	log.Printf("[STORIES] листаем ленту (%d прокруток)", steps)
	for i := 0; i < steps; i++ {
		if !s.viewing.Load() {
			return
		}
		delta := 400 + rand.Intn(500)
		if _, err := page.Eval(`(dy) => window.scrollBy(0, dy)`, delta); err != nil {
			log.Printf("[STORIES] прокрутка не удалась: %v", err)
			return
		}
		common.RandomDelay(1500, 3500)
	}
}

// likeRandomPosts лайкает до двух постов из видимой части ленты.
func (s *Scheduler) likeRandomPosts(page *rod.Page) {
	likes := 1 + rand.Intn(2)
	log.Printf("[STORIES] ставим лайки (до %d)", likes)
	for i := 0; i < likes; i++ {
		if !s.viewing.Load() {
			return
		}
		res, err := page.Timeout(8*time.Second).Eval(`() => {
			const icons = Array.from(document.querySelectorAll("svg[aria-label='Like']"));
			const visible = icons.filter((el) => {
				const r = el.getBoundingClientRect();
				return r.top >= 0 && r.bottom <= window.innerHeight;
			});
			if (visible.length === 0) return false;
			const pick = visible[Math.floor(Math.random() * visible.length)];
			const btn = pick.closest("div[role='button'], button");
			if (!btn) return false;
			btn.click();
			return true;
		}`)
		if err != nil || !res.Value.Bool() {
			return
		}
		common.RandomDelay(2000, 5000)
	}
}

// viewStories открывает первую историю и смотрит несколько подряд,
// позволяя плееру листать их самостоятельно.
func (s *Scheduler) viewStories(page *rod.Page) {
	opened, err := page.Timeout(8*time.Second).Eval(`() => {
		const rings = Array.from(document.querySelectorAll("div[role='button']"))
			.filter((el) => el.querySelector("canvas") && el.querySelector("img"));
		if (rings.length === 0) return false;
		rings[0].click();
		return true;
	}`)
	if err != nil || !opened.Value.Bool() {
		log.Printf("[STORIES] доступных историй нет")
		return
	}

	count := 2 + rand.Intn(3)
	log.Printf("[STORIES] смотрим истории (%d)", count)
	for i := 0; i < count; i++ {
		if !s.viewing.Load() {
			break
		}
		common.RandomDelay(4000, 8000)
	}

	// Закрываем плеер, чтобы не оставлять его поверх ленты.
	_, _ = page.Timeout(5*time.Second).Eval(`() => {
		const close = document.querySelector("svg[aria-label='Close']");
		const btn = close && close.closest("div[role='button'], button");
		if (btn) btn.click();
	}`)
	common.RandomDelay(1000, 2000)
}
