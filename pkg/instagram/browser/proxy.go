package browser

import (
	"fmt"
	"strings"
)

// Proxy — разобранный дескриптор прокси из колонки accounts.proxy.
// Формат строки: host:port[:user:pass].
type Proxy struct {
	Server   string
	Port     string
	Username string
	Password string
}

// Addr возвращает адрес для флага --proxy-server.
func (p *Proxy) Addr() string {
	return p.Server + ":" + p.Port
}

// HasAuth сообщает, требуется ли аутентификация на прокси.
func (p *Proxy) HasAuth() bool {
	return p.Username != "" && p.Password != ""
}

// ParseProxy разбирает строку прокси. Пустая строка — это «без прокси»,
// а не ошибка; ошибкой считается только строка без порта.
func ParseProxy(raw string) (*Proxy, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ":")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("некорректный формат прокси: %q", raw)
	}
	p := &Proxy{Server: parts[0], Port: parts[1]}
	if len(parts) > 2 {
		p.Username = parts[2]
	}
	if len(parts) > 3 {
		p.Password = parts[3]
	}
	return p, nil
}
