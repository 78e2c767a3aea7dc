// Package schedule отвечает за окно отправки сообщений:
// рассылка разрешена с 08:00 до 23:00 по часовому поясу аккаунта.
package schedule

import (
	"log"
	"time"
)

const (
	windowStartHour = 8
	windowEndHour   = 23 // эксклюзивно: до 22:59
)

// fallbackTimezone используется, когда пояс аккаунта не распознан.
const fallbackTimezone = "America/Argentina/Buenos_Aires"

func loadLocation(timezone string) *time.Location {
	loc, err := time.LoadLocation(timezone)
	if err == nil {
		return loc
	}
	log.Printf("[SCHEDULE] неизвестный часовой пояс %q, используем %s", timezone, fallbackTimezone)
	loc, err = time.LoadLocation(fallbackTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsInSendingWindow сообщает, попадает ли текущее локальное время в окно отправки.
func IsInSendingWindow(timezone string) bool {
	hour := time.Now().In(loadLocation(timezone)).Hour()
	return hour >= windowStartHour && hour < windowEndHour
}

// MsUntilSendingWindow возвращает, сколько ждать до открытия окна.
// Внутри окна возвращается 0. Функция вычисляется заново перед каждой
// отправкой: длинный цикл может пересечь границу окна.
func MsUntilSendingWindow(timezone string) time.Duration {
	return msUntilWindowAt(time.Now(), loadLocation(timezone))
}

// msUntilWindowAt — чистая часть расчёта, вынесена для тестов.
func msUntilWindowAt(now time.Time, loc *time.Location) time.Duration {
	local := now.In(loc)
	hour := local.Hour()

	if hour >= windowStartHour && hour < windowEndHour {
		return 0
	}

	year, month, day := local.Date()
	next := time.Date(year, month, day, windowStartHour, 0, 0, 0, loc)
	if hour >= windowEndHour {
		// После 23:00 ждём 08:00 следующего дня.
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(local)
}
