// Package session хранит cookie-файлы аккаунтов, чтобы перезапускать
// браузер без повторной авторизации.
package session

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod/lib/proto"
)

// Store раскладывает сессии по каталогам profiles/<username>/session.json.
type Store struct {
	Dir string
}

func NewStore(dir string) *Store {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("[SESSION] не удалось создать каталог профилей %s: %v", dir, err)
	}
	return &Store{Dir: dir}
}

// document — формат файла на диске.
type document struct {
	Cookies []*proto.NetworkCookieParam `json:"cookies"`
	SavedAt time.Time                   `json:"savedAt"`
}

// ProfilePath возвращает каталог профиля браузера для аккаунта.
func (s *Store) ProfilePath(username string) string {
	return filepath.Join(s.Dir, username)
}

func (s *Store) sessionFile(username string) string {
	return filepath.Join(s.ProfilePath(username), "session.json")
}

// Load возвращает сохранённые cookie или nil. Ошибки чтения и разбора не
// пробрасываются: отсутствие сессии означает обычный логин по паролю.
// Ради обратной совместимости принимается и документ {cookies: […]},
// и голый массив cookie.
func (s *Store) Load(username string) []*proto.NetworkCookieParam {
	raw, err := os.ReadFile(s.sessionFile(username))
	if err != nil {
		return nil
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err == nil && len(doc.Cookies) > 0 {
		return doc.Cookies
	}

	var bare []*proto.NetworkCookieParam
	if err := json.Unmarshal(raw, &bare); err == nil && len(bare) > 0 {
		return bare
	}

	log.Printf("[SESSION] не удалось разобрать сессию %s, потребуется логин", username)
	return nil
}

// Save пересоздаёт каталог профиля и атомарно записывает документ сессии.
func (s *Store) Save(username string, cookies []*proto.NetworkCookieParam) {
	dir := s.ProfilePath(username)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("[SESSION] не удалось создать каталог %s: %v", dir, err)
		return
	}

	raw, err := json.MarshalIndent(document{Cookies: cookies, SavedAt: time.Now()}, "", "  ")
	if err != nil {
		log.Printf("[SESSION] ошибка сериализации сессии %s: %v", username, err)
		return
	}

	file := s.sessionFile(username)
	tmp := file + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		log.Printf("[SESSION] ошибка записи сессии %s: %v", username, err)
		return
	}
	if err := os.Rename(tmp, file); err != nil {
		log.Printf("[SESSION] ошибка подмены файла сессии %s: %v", username, err)
		return
	}
	log.Printf("[SESSION] сессия %s сохранена → %s", username, file)
}
