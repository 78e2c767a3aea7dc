// Package ratelimit ведёт дневные счётчики отправленных сообщений.
// Счётчики переживают перезапуск процесса: каждая мутация атомарно
// переписывает JSON-файл (запись во временный файл + rename).
package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// AccountInfo отдаёт лимит и часовой пояс аккаунта. Значения читаются
// заново при каждом обращении: конфигурация в БД может измениться.
type AccountInfo interface {
	GetDailyMessageLimit(username string) int
	GetTimezoneByUsername(username string) string
}

// Record — счётчик за конкретный календарный день в поясе аккаунта.
// Счётчик никогда не уменьшается, только сбрасывается при смене даты.
type Record struct {
	Count int    `json:"count"`
	Date  string `json:"date"`
}

type Tracker struct {
	path     string
	accounts AccountInfo
	now      func() time.Time

	mu          sync.Mutex
	data        map[string]Record
	saving      bool
	pendingSave bool
}

// NewTracker поднимает счётчики с диска. Битый файл переименовывается
// с суффиксом времени, и трекер стартует с пустой картой — падать из-за
// повреждённого файла нельзя.
func NewTracker(path string, accounts AccountInfo) *Tracker {
	t := &Tracker{
		path:     path,
		accounts: accounts,
		now:      time.Now,
		data:     make(map[string]Record),
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[RATE LIMIT] не удалось прочитать %s: %v", path, err)
		}
		return t
	}

	if err := json.Unmarshal(raw, &t.data); err != nil {
		log.Printf("[RATE LIMIT] файл счётчиков повреждён: %v", err)
		aside := fmt.Sprintf("%s.corrupt-%d", path, t.now().Unix())
		if renameErr := os.Rename(path, aside); renameErr == nil {
			log.Printf("[RATE LIMIT] битый файл переименован в %s, начинаем заново", aside)
		}
		t.data = make(map[string]Record)
	}
	return t
}

func (t *Tracker) todayIn(timezone string) string {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}
	return t.now().In(loc).Format("2006-01-02")
}

// GetCount возвращает текущее состояние квоты аккаунта.
// Запись за прошлый день считается обнулённой, даже если ещё не вычищена.
func (t *Tracker) GetCount(username string) (count, limit int, date string) {
	limit = t.accounts.GetDailyMessageLimit(username)
	today := t.todayIn(t.accounts.GetTimezoneByUsername(username))

	t.mu.Lock()
	defer t.mu.Unlock()

	record, ok := t.data[username]
	if !ok || record.Date != today {
		return 0, limit, today
	}
	return record.Count, limit, record.Date
}

// TryIncrement атомарно проверяет лимит и увеличивает счётчик.
// Возвращает false, если дневной лимит уже исчерпан.
func (t *Tracker) TryIncrement(username string) bool {
	limit := t.accounts.GetDailyMessageLimit(username)
	today := t.todayIn(t.accounts.GetTimezoneByUsername(username))

	t.mu.Lock()
	record, ok := t.data[username]
	if !ok || record.Date != today {
		record = Record{Count: 0, Date: today}
	}
	if record.Count >= limit {
		t.mu.Unlock()
		return false
	}
	record.Count++
	t.data[username] = record
	count := record.Count
	t.scheduleSaveLocked()
	t.mu.Unlock()

	log.Printf("[RATE LIMIT] %s: %d/%d сообщений за %s", username, count, limit, today)
	return true
}

// scheduleSaveLocked запускает запись на диск. Пока одна запись идёт,
// новые запросы схлопываются в один отложенный (pendingSave): нам важна
// только последняя версия карты, а не очередь произвольной глубины.
// Вызывается строго под t.mu.
func (t *Tracker) scheduleSaveLocked() {
	if t.saving {
		t.pendingSave = true
		return
	}
	t.saving = true
	snapshot := make(map[string]Record, len(t.data))
	for k, v := range t.data {
		snapshot[k] = v
	}
	go t.write(snapshot)
}

func (t *Tracker) write(snapshot map[string]Record) {
	if err := writeFileAtomic(t.path, snapshot); err != nil {
		log.Printf("[RATE LIMIT] ошибка сохранения счётчиков: %v", err)
	}

	t.mu.Lock()
	t.saving = false
	if t.pendingSave {
		t.pendingSave = false
		t.scheduleSaveLocked()
	}
	t.mu.Unlock()
}

// writeFileAtomic пишет во временный файл и подменяет целевой через rename,
// чтобы при падении процесса на диске оставалась либо старая, либо новая версия.
func writeFileAtomic(path string, data map[string]Record) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Flush дожидается завершения всех записей. Используется при остановке
// сервиса и в тестах.
func (t *Tracker) Flush() {
	for {
		t.mu.Lock()
		idle := !t.saving && !t.pendingSave
		t.mu.Unlock()
		if idle {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// StartCleanup раз в час вычищает записи за прошедшие дни (по поясу
// каждого аккаунта), чтобы карта не росла бесконечно.
func (t *Tracker) StartCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.cleanup()
			}
		}
	}()
}

func (t *Tracker) cleanup() {
	// Пояса читаем до захвата мьютекса: обращение к БД не должно
	// блокировать инкременты.
	t.mu.Lock()
	usernames := make([]string, 0, len(t.data))
	for username := range t.data {
		usernames = append(usernames, username)
	}
	t.mu.Unlock()

	todays := make(map[string]string, len(usernames))
	for _, username := range usernames {
		todays[username] = t.todayIn(t.accounts.GetTimezoneByUsername(username))
	}

	t.mu.Lock()
	changed := false
	for username, record := range t.data {
		if today, ok := todays[username]; ok && record.Date != today {
			delete(t.data, username)
			changed = true
		}
	}
	if changed {
		t.scheduleSaveLocked()
	}
	t.mu.Unlock()
}
