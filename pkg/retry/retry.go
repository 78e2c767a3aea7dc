// Package retry задаёт единую политику повторов для запусков браузера,
// ожиданий селекторов и кликов. Вместо разбросанных по коду циклов
// каждая точка вызова параметризует одну и ту же политику.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Policy описывает ограниченный повтор со случайной паузой между попытками.
type Policy struct {
	Attempts int
	MinDelay time.Duration
	MaxDelay time.Duration
}

// Default — политика для действий с DOM: три попытки с паузой 1-2 секунды.
var Default = Policy{Attempts: 3, MinDelay: time.Second, MaxDelay: 2 * time.Second}

// Do выполняет op до первого успеха. Между попытками выдерживается
// случайная пауза из диапазона политики; отмена контекста прерывает ожидание.
// Возвращается ошибка последней попытки.
func (p Policy) Do(ctx context.Context, op func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if i < attempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.delay()):
			}
		}
	}
	return fmt.Errorf("после %d попыток: %w", attempts, lastErr)
}

func (p Policy) delay() time.Duration {
	if p.MaxDelay <= p.MinDelay {
		return p.MinDelay
	}
	return p.MinDelay + time.Duration(rand.Int63n(int64(p.MaxDelay-p.MinDelay)))
}
