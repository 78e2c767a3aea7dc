package messaging

import (
	"context"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Outcome — вердикт бэкенда Instagram по попытке открыть диалог.
// Интерфейс может выглядеть доступным, когда сервер уже отклонил
// действие, поэтому источником истины служит сетевой ответ, а не DOM.
type Outcome string

const (
	// TempBlock — HTTP 403: временная блокировка рассылки на уровне
	// платформы. Останавливает весь планировщик, не только эту отправку.
	TempBlock Outcome = "TEMP_BLOCK"
	// DmAllowed — HTTP 200: бэкенд разрешил диалог, можно печатать.
	DmAllowed Outcome = "DM_ALLOWED"
	// Unknown — подходящий ответ с другим статусом; считаем запретом.
	Unknown Outcome = "UNKNOWN"
	// NoResponse — подходящего ответа не было за отведённое время;
	// тоже считаем запретом, а не молчаливым разрешением.
	NoResponse Outcome = "NO_RESPONSE"
)

// Бэкенд-вызов, создающий новый диалог.
const dmBackendPath = "/direct_v2/create_group_thread/"

// Сколько ждём вердикт бэкенда после клика по кнопке сообщения.
const backendTimeout = 8 * time.Second

func matchesDmBackend(url string) bool {
	return strings.Contains(url, dmBackendPath)
}

func classifyStatus(status int) Outcome {
	switch status {
	case 403:
		return TempBlock
	case 200:
		return DmAllowed
	default:
		return Unknown
	}
}

// gateDecision переводит вердикт в результат отправки. Печатать текст
// разрешено только при DmAllowed; все остальные исходы закорачивают
// отправку структурированной ошибкой.
func gateDecision(outcome Outcome) (proceed bool, res SendResult) {
	switch outcome {
	case DmAllowed:
		return true, SendResult{}
	case TempBlock:
		return false, SendResult{
			TempBlock: true,
			Err:       "Instagram временно заблокировал отправку сообщений (403)",
		}
	default:
		return false, SendResult{Err: "бэкенд не подтвердил отправку (" + string(outcome) + ")"}
	}
}

// subscribeFunc доставляет сетевые ответы обработчику, пока тот не
// вернёт true или не истечёт контекст. Боевая реализация — поток
// событий DevTools, в тестах подставляется заглушка.
type subscribeFunc func(ctx context.Context, handle func(url string, status int) bool)

// listenForDmBackend взводит слушатель сетевых ответов и возвращает канал
// с единственным вердиктом. Слушатель обязан быть взведён ДО действия в
// интерфейсе, которое провоцирует вызов бэкенда, иначе ответ можно
// пропустить — тогда сработает таймаут и отправка будет запрещена.
func listenForDmBackend(page *rod.Page, timeout time.Duration) <-chan Outcome {
	return listenForVerdict(func(ctx context.Context, handle func(url string, status int) bool) {
		wait := page.Context(ctx).EachEvent(func(e *proto.NetworkResponseReceived) bool {
			return handle(e.Response.URL, e.Response.Status)
		})
		wait()
	}, timeout)
}

func listenForVerdict(subscribe subscribeFunc, timeout time.Duration) <-chan Outcome {
	ch := make(chan Outcome, 1)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	go func() {
		defer cancel()
		outcome := NoResponse
		subscribe(ctx, func(url string, status int) bool {
			if !matchesDmBackend(url) {
				return false
			}
			outcome = classifyStatus(status)
			return true
		})
		ch <- outcome
	}()

	return ch
}
