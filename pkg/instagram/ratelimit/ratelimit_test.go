package ratelimit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// fakeAccounts подменяет чтение лимита и пояса из БД.
type fakeAccounts struct {
	limit int
	tz    string
}

func (f fakeAccounts) GetDailyMessageLimit(string) int   { return f.limit }
func (f fakeAccounts) GetTimezoneByUsername(string) string { return f.tz }

func newTestTracker(t *testing.T, limit int) (*Tracker, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "counts.json")
	tr := NewTracker(path, fakeAccounts{limit: limit, tz: "UTC"})
	return tr, path
}

func TestIncrementUpToLimit(t *testing.T) {
	tr, _ := newTestTracker(t, 3)

	for i := 0; i < 3; i++ {
		if !tr.TryIncrement("alice") {
			t.Fatalf("инкремент %d должен быть разрешён", i+1)
		}
	}
	if tr.TryIncrement("alice") {
		t.Fatal("инкремент сверх лимита должен быть запрещён")
	}

	count, limit, _ := tr.GetCount("alice")
	if count != 3 || limit != 3 {
		t.Fatalf("ожидали 3/3, получили %d/%d", count, limit)
	}
	tr.Flush()
}

func TestDayRolloverResetsCount(t *testing.T) {
	tr, _ := newTestTracker(t, 2)

	day1 := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return day1 }

	tr.TryIncrement("bob")
	tr.TryIncrement("bob")
	if tr.TryIncrement("bob") {
		t.Fatal("лимит за день исчерпан")
	}

	// Наступил следующий день в поясе аккаунта — первый вызов снова разрешён.
	tr.now = func() time.Time { return day1.AddDate(0, 0, 1) }
	if !tr.TryIncrement("bob") {
		t.Fatal("после смены даты счётчик должен обнулиться")
	}
	count, _, date := tr.GetCount("bob")
	if count != 1 || date != "2024-06-11" {
		t.Fatalf("ожидали 1 за 2024-06-11, получили %d за %s", count, date)
	}
	tr.Flush()
}

func TestPersistenceIsAtomic(t *testing.T) {
	tr, path := newTestTracker(t, 10)

	tr.TryIncrement("carol")
	tr.Flush()

	// После завершения записи временного файла остаться не должно.
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatal("временный файл не был переименован в целевой")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("файл счётчиков не записан: %v", err)
	}
	var data map[string]Record
	if err := json.Unmarshal(raw, &data); err != nil {
		t.Fatalf("файл счётчиков не парсится: %v", err)
	}
	if data["carol"].Count != 1 {
		t.Fatalf("на диске ожидали count=1, получили %+v", data["carol"])
	}
}

func TestReloadAfterRestart(t *testing.T) {
	tr, path := newTestTracker(t, 5)
	tr.TryIncrement("dave")
	tr.TryIncrement("dave")
	tr.Flush()

	// Симулируем перезапуск процесса: новый трекер над тем же файлом.
	tr2 := NewTracker(path, fakeAccounts{limit: 5, tz: "UTC"})
	count, _, _ := tr2.GetCount("dave")
	if count != 2 {
		t.Fatalf("после перезапуска ожидали 2, получили %d", count)
	}
}

func TestCorruptFileRenamedAside(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "counts.json")
	if err := os.WriteFile(path, []byte("{broken json"), 0o644); err != nil {
		t.Fatal(err)
	}

	tr := NewTracker(path, fakeAccounts{limit: 5, tz: "UTC"})
	count, _, _ := tr.GetCount("eve")
	if count != 0 {
		t.Fatalf("после битого файла ожидали пустую карту, получили %d", count)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, e := range entries {
		if strings.Contains(e.Name(), ".corrupt-") {
			found = true
		}
	}
	if !found {
		t.Fatal("битый файл должен быть переименован с суффиксом .corrupt-")
	}
}

func TestCleanupDropsStaleDays(t *testing.T) {
	tr, _ := newTestTracker(t, 5)

	day1 := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return day1 }
	tr.TryIncrement("frank")

	tr.now = func() time.Time { return day1.AddDate(0, 0, 2) }
	tr.cleanup()
	tr.Flush()

	tr.mu.Lock()
	_, ok := tr.data["frank"]
	tr.mu.Unlock()
	if ok {
		t.Fatal("запись за прошлый день должна быть вычищена")
	}
}
