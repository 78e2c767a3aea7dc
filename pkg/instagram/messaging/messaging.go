// Package messaging отправляет личные сообщения через веб-интерфейс.
// Решение «можно ли отправлять» принимает не DOM, а сетевой вердикт
// бэкенда (sendgate.go); интерфейсные пути открытия диалога — деталь,
// не влияющая на контракт.
package messaging

import (
	"context"
	"log"
	"strings"
	"time"

	"dm_go/internal/common"
	"dm_go/pkg/instagram/browser"
	"dm_go/pkg/retry"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

// SendResult — итог одной попытки отправки.
type SendResult struct {
	Success   bool
	TempBlock bool
	Err       string
}

// Селектор поля ввода сообщения.
const messageInputSelector = `div[role='textbox'][aria-placeholder='Message...'][contenteditable='true']`

const optionsButtonSelector = `svg[aria-label='Options']`

type Sender struct {
	Browser *browser.Context
}

func NewSender(b *browser.Context) *Sender {
	return &Sender{Browser: b}
}

// SendMessage открывает профиль получателя, взводит слушатель бэкенда,
// кликает по кнопке сообщения и печатает текст только после одобрения.
func (s *Sender) SendMessage(ctx context.Context, toUsername, message string) SendResult {
	page := s.Browser.Page()
	if page == nil {
		log.Printf("[MESSAGING] браузер не инициализирован")
		return SendResult{Err: "браузер не инициализирован"}
	}

	log.Printf("[MESSAGING] открываем профиль %s", toUsername)
	if err := s.Browser.Navigate(page, "https://www.instagram.com/"+toUsername+"/"); err != nil {
		return SendResult{Err: "не удалось открыть профиль: " + err.Error()}
	}
	common.RandomDelay(3000, 5000)

	if userNotFound(page) {
		log.Printf("[MESSAGING] профиль %s недоступен или удалён", toUsername)
		return SendResult{Err: "пользователь не найден или удалён"}
	}

	state := followState(page)
	common.RandomDelay(2000, 4000)

	// Слушатель взводится строго до клика по кнопке сообщения:
	// иначе ответ бэкенда может прийти раньше подписки и потеряться.
	outcomeCh := listenForDmBackend(page, backendTimeout)

	var dmClicked bool
	switch state {
	case "requested":
		log.Printf("[MESSAGING] заявка на подписку висит — идём через меню Options")
		dmClicked = tryOptionsFlow(page)
	case "following", "followed":
		log.Printf("[MESSAGING] уже подписаны — пробуем публичную кнопку Message")
		dmClicked = tryPublicMessageFlow(page)
		if !dmClicked {
			dmClicked = tryOptionsFlow(page)
		}
	default:
		log.Printf("[MESSAGING] состояние подписки неизвестно — пробуем оба пути")
		dmClicked = tryPublicMessageFlow(page) || tryOptionsFlow(page)
	}

	if !dmClicked {
		log.Printf("[MESSAGING] кнопку Message найти не удалось")
		return SendResult{Err: "кнопка сообщения не найдена"}
	}

	return s.typeAndSend(page, outcomeCh, toUsername, message)
}

// typeAndSend дожидается вердикта бэкенда и лишь при разрешении ищет
// поле ввода и печатает текст.
func (s *Sender) typeAndSend(page *rod.Page, outcomeCh <-chan Outcome, toUsername, message string) SendResult {
	common.RandomDelay(1500, 2500)
	dismissNotificationPopup(page)

	log.Printf("[MESSAGING] ждём подтверждение бэкенда…")
	outcome := <-outcomeCh

	proceed, res := gateDecision(outcome)
	if !proceed {
		if res.TempBlock {
			log.Printf("[MESSAGING] обнаружена временная блокировка (403)")
		} else {
			log.Printf("[MESSAGING] бэкенд не одобрил отправку: %s", outcome)
		}
		return res
	}

	el, err := page.Timeout(8 * time.Second).Element(messageInputSelector)
	if err != nil {
		log.Printf("[MESSAGING] поле ввода не появилось после одобрения")
		return SendResult{Err: "поле ввода не найдено после одобрения"}
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return SendResult{Err: "не удалось кликнуть по полю ввода: " + err.Error()}
	}

	if err := browser.TypeLikeHuman(page, messageInputSelector, message); err != nil {
		return SendResult{Err: "не удалось напечатать сообщение: " + err.Error()}
	}
	common.RandomDelay(800, 1500)
	if err := page.Keyboard.Press(input.Enter); err != nil {
		return SendResult{Err: "не удалось отправить сообщение: " + err.Error()}
	}
	common.RandomDelay(2000, 3000)

	log.Printf("[MESSAGING] сообщение отправлено → %s", toUsername)
	return SendResult{Success: true}
}

// ---------- Вспомогательные проверки DOM ----------

func evalBool(page *rod.Page, timeout time.Duration, js string) bool {
	res, err := page.Timeout(timeout).Eval(js)
	if err != nil {
		return false
	}
	return res.Value.Bool()
}

// userNotFound распознаёт страницу удалённого или недоступного профиля.
func userNotFound(page *rod.Page) bool {
	common.RandomDelay(1500, 1700)
	return evalBool(page, 10*time.Second, `() => {
		const body = document.body ? document.body.innerText : "";
		if (body.includes("Sorry, this page isn't available")) return true;
		const spans = Array.from(document.querySelectorAll("span"));
		return spans.some((el) => {
			const txt = el.innerText.trim();
			return txt === "Profile isn't available" ||
				txt.includes("The link may be broken, or the profile may have been removed.");
		});
	}`)
}

// followState возвращает состояние кнопки подписки в шапке профиля:
// following / requested / followed (после клика) / unknown.
func followState(page *rod.Page) string {
	res, err := page.Timeout(8*time.Second).Eval(`() => {
		const btns = Array.from(document.querySelectorAll("header button, header div[role='button']"));
		const target = btns.find((b) => /follow|following|requested/i.test(b.innerText));
		return target ? target.innerText.trim().toLowerCase() : "";
	}`)
	if err != nil {
		return "unknown"
	}
	text := res.Value.Str()
	switch {
	case strings.Contains(text, "following"):
		return "following"
	case strings.Contains(text, "requested"):
		return "requested"
	case strings.Contains(text, "follow"):
		clicked := evalBool(page, 5*time.Second, `() => {
			const btns = Array.from(document.querySelectorAll("header button, header div[role='button']"));
			const b = btns.find((x) => /follow/i.test(x.innerText));
			if (b) { b.click(); return true; }
			return false;
		}`)
		if clicked {
			log.Printf("[MESSAGING] подписались на пользователя")
			common.RandomDelay(1500, 2500)
			return "followed"
		}
		return "unknown"
	default:
		return "unknown"
	}
}

// dismissNotificationPopup закрывает модалку «Turn on Notifications»,
// если она всплыла поверх диалога.
func dismissNotificationPopup(page *rod.Page) {
	common.RandomDelay(600, 800)
	clicked := evalBool(page, 5*time.Second, `() => {
		const texts = Array.from(document.querySelectorAll("h2, h3, h4, span, div"))
			.map((el) => (el.innerText || "").trim().toLowerCase());
		if (!texts.some((t) => t.includes("turn on notifications"))) return false;
		const buttons = Array.from(document.querySelectorAll('button, div[role="button"], a'));
		const target = buttons.find((b) => (b.innerText || "").trim().toLowerCase().includes("not now"));
		if (target) { target.click(); return true; }
		return false;
	}`)
	if clicked {
		common.RandomDelay(700, 900)
	}
}

// safeClick кликает по селектору с повторами по общей политике.
func safeClick(page *rod.Page, selector string, attempts int) bool {
	policy := retry.Policy{Attempts: attempts, MinDelay: time.Second, MaxDelay: 2 * time.Second}
	err := policy.Do(context.Background(), func() error {
		el, err := page.Timeout(5 * time.Second).Element(selector)
		if err != nil {
			return err
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return err
		}
		common.RandomDelay(1000, 2000)
		return nil
	})
	return err == nil
}

// tryPublicMessageFlow ищет публичную кнопку «Message» в шапке профиля.
func tryPublicMessageFlow(page *rod.Page) bool {
	log.Printf("[MESSAGING] ищем публичную кнопку Message…")
	if _, err := page.Timeout(15 * time.Second).Element("main"); err != nil {
		return false
	}
	common.RandomDelay(2000, 3000)

	for attempt := 1; attempt <= 3; attempt++ {
		clicked := evalBool(page, 5*time.Second, `() => {
			const btns = Array.from(document.querySelectorAll("div[role='button']"));
			const target = btns.find((b) => (b.innerText || "").trim().toLowerCase().includes("message"));
			if (target) { target.click(); return true; }
			return false;
		}`)
		if clicked {
			log.Printf("[MESSAGING] кнопка Message нажата (попытка %d)", attempt)
			common.RandomDelay(3000, 5000)
			return true
		}
		log.Printf("[MESSAGING] кнопка Message не найдена, перезагружаем страницу (попытка %d)", attempt)
		if err := page.Reload(); err == nil {
			_ = page.Timeout(30 * time.Second).WaitLoad()
		}
		common.RandomDelay(3000, 4000)
	}
	return false
}

// tryOptionsFlow открывает диалог через меню Options → Send message.
func tryOptionsFlow(page *rod.Page) bool {
	log.Printf("[MESSAGING] пробуем путь через Options…")
	if !safeClick(page, optionsButtonSelector, 2) {
		log.Printf("[MESSAGING] кнопка Options не найдена")
		return false
	}

	for attempt := 1; attempt <= 3; attempt++ {
		clicked := evalBool(page, 5*time.Second, `() => {
			const candidates = Array.from(document.querySelectorAll("button, div[role='button'], a"));
			const target = candidates.find((el) => {
				const txt = (el.innerText || "").trim().toLowerCase();
				return txt === "send message" || txt.includes("send message");
			});
			if (target) { target.click(); return true; }
			return false;
		}`)
		if clicked {
			log.Printf("[MESSAGING] пункт Send Message нажат (попытка %d)", attempt)
			common.RandomDelay(2500, 4000)
			return true
		}
		common.RandomDelay(800, 1500)
	}
	log.Printf("[MESSAGING] пункт Send Message не найден")
	return false
}
