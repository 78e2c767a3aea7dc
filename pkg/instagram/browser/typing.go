package browser

import (
	"log"
	"math/rand"
	"time"

	"dm_go/internal/common"

	"github.com/go-rod/rod"
)

// TypeLikeHuman печатает текст посимвольно со случайными паузами,
// имитируя живой набор. Поле предварительно очищается, чтобы не
// склеивать текст с остатками прошлых попыток.
func TypeLikeHuman(page *rod.Page, selector, text string) error {
	el, err := page.Timeout(15 * time.Second).Element(selector)
	if err != nil {
		log.Printf("[BROWSER] TypeLikeHuman: элемент %s не найден: %v", selector, err)
		return err
	}
	if err := el.WaitVisible(); err != nil {
		return err
	}

	_, err = el.Eval(`() => {
		this.focus();
		this.innerText = "";
		this.dispatchEvent(new InputEvent("input", { bubbles: true }));
	}`)
	if err != nil {
		return err
	}

	for _, ch := range text {
		if err := page.InsertText(string(ch)); err != nil {
			return err
		}
		time.Sleep(time.Duration(120+rand.Intn(80)) * time.Millisecond)
	}

	common.RandomDelay(500, 1000)
	return nil
}
