// Package twofa — почтовый ящик для кодов двухфакторной аутентификации.
// Код кладёт HTTP-обработчик, забирает — процесс входа, который в этот
// момент ждёт на странице подтверждения.
package twofa

import (
	"log"
	"sync"
)

type Mailbox struct {
	mu    sync.Mutex
	codes map[string]string
}

func NewMailbox() *Mailbox {
	return &Mailbox{codes: make(map[string]string)}
}

// Submit сохраняет код для аккаунта. Повторная отправка заменяет
// предыдущий код: актуален всегда последний.
func (m *Mailbox) Submit(username, code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[username] = code
	log.Printf("[2FA] код для %s принят", username)
}

// Take забирает код, удаляя его: один код обслуживает один вход.
func (m *Mailbox) Take(username string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	code, ok := m.codes[username]
	if ok {
		delete(m.codes, username)
	}
	return code, ok
}
