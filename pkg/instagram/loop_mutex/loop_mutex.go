// Package loop_mutex не допускает параллельных циклов рассылки по
// одному аккаунту. Захват неблокирующий: второй запуск получает отказ
// сразу, а не встаёт в очередь.
package loop_mutex

import (
	"log"
	"sync"
)

var (
	globalMu sync.Mutex
	locks    = make(map[string]*sync.Mutex)
)

func mutexFor(username string) *sync.Mutex {
	globalMu.Lock()
	defer globalMu.Unlock()
	m, ok := locks[username]
	if !ok {
		m = &sync.Mutex{}
		locks[username] = m
	}
	return m
}

// TryLock пытается захватить цикл аккаунта. false — цикл уже идёт.
func TryLock(username string) bool {
	ok := mutexFor(username).TryLock()
	if !ok {
		log.Printf("[MUTEX] цикл по аккаунту %s уже запущен", username)
	}
	return ok
}

// Unlock освобождает цикл аккаунта. Вызывать только после удачного TryLock.
func Unlock(username string) {
	mutexFor(username).Unlock()
}
