package common

import (
	"context"
	"math/rand"
	"time"
)

// WaitWithCancellation выполняет ожидание в случайном диапазоне секунд и
// регулярно проверяет контекст на отмену, чтобы не блокировать долгие задержки.
// Используем шаг в пять секунд, поэтому отмена срабатывает с точностью до шага.
func WaitWithCancellation(ctx context.Context, delayRange [2]int) error {
	delay := rand.Intn(delayRange[1]-delayRange[0]+1) + delayRange[0]
	return Sleep(ctx, time.Duration(delay)*time.Second)
}

// Sleep спит указанную длительность с теми же пятисекундными шагами проверки.
// Возвращает ошибку контекста, чтобы вызвать обработку прерывания выше по стеку.
func Sleep(ctx context.Context, d time.Duration) error {
	const step = 5 * time.Second
	for remaining := d; remaining > 0; {
		chunk := step
		if remaining < chunk {
			chunk = remaining
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(chunk):
		}
		remaining -= chunk
	}
	return nil
}

// RandomDelay — короткая пауза в диапазоне миллисекунд для имитации
// человеческого поведения. Контекст здесь не проверяем: диапазоны меньше
// шага отмены и задержка завершится раньше, чем отмена станет заметна.
func RandomDelay(minMs, maxMs int) {
	if maxMs <= minMs {
		time.Sleep(time.Duration(minMs) * time.Millisecond)
		return
	}
	d := minMs + rand.Intn(maxMs-minMs+1)
	time.Sleep(time.Duration(d) * time.Millisecond)
}

// RandomMinutes возвращает случайное число минут в диапазоне [min, max].
func RandomMinutes(min, max int) int {
	if max <= min {
		return min
	}
	return rand.Intn(max-min+1) + min
}
