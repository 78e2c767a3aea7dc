// Package login выполняет вход в аккаунт: сначала пробует сохранённую
// сессию, затем форму логина, при необходимости проходит двухфакторное
// подтверждение кодом из почтового ящика twofa.
package login

import (
	"context"
	"fmt"
	"log"
	"time"

	"dm_go/internal/common"
	"dm_go/pkg/instagram/browser"
	"dm_go/pkg/instagram/session"
	"dm_go/pkg/instagram/twofa"
	"dm_go/pkg/retry"

	"github.com/go-rod/rod"
)

// Result — итог попытки входа.
type Result struct {
	Success bool
	Message string
	User    string
	Proxy   string
}

const (
	profileIconSelector = `img[alt*="profile picture"], [data-testid="user-avatar"]`
	twoFactorSelector   = `input[name="verificationCode"]`
)

// Сколько итераций и с каким шагом опрашиваем ящик 2FA-кодов.
const (
	twoFactorPollLimit = 60
	twoFactorPollMinMs = 2000
	twoFactorPollMaxMs = 2500
)

// Login поднимает браузер с сохранёнными cookie и проверяет, жива ли
// сессия. Если нет, заполняет форму логина и доводит вход до конца.
func Login(ctx context.Context, b *browser.Context, sessions *session.Store, mailbox *twofa.Mailbox, username, password string) Result {
	cookies := sessions.Load(username)
	if cookies != nil {
		log.Printf("[LOGIN] найдена сохранённая сессия %s", username)
	}

	err := retry.Default.Do(ctx, func() error {
		return b.Launch(ctx, username, cookies)
	})
	if err != nil {
		return Result{Message: "не удалось запустить браузер: " + err.Error()}
	}

	page := b.Page()
	if page == nil {
		return Result{Message: "браузер запущен без страницы"}
	}

	// Быстрый путь: cookie ещё живы и мы уже в ленте.
	if hasProfileIcon(page, 8*time.Second) {
		log.Printf("[LOGIN] сессия %s действительна, вход не требуется", username)
		b.SetCurrentUser(username)
		sessions.Save(username, b.Cookies())
		return Result{Success: true, Message: "вход по сохранённой сессии", User: username, Proxy: b.CurrentProxy()}
	}

	log.Printf("[LOGIN] сессия не подошла, входим по паролю")
	return loginWithPassword(ctx, b, sessions, mailbox, page, username, password)
}

func loginWithPassword(ctx context.Context, b *browser.Context, sessions *session.Store, mailbox *twofa.Mailbox, page *rod.Page, username, password string) Result {
	userSel, passSel, err := loginFieldSelectors(page)
	if err != nil {
		return Result{Message: "форма логина не появилась: " + err.Error()}
	}

	if err := browser.TypeLikeHuman(page, userSel, username); err != nil {
		return Result{Message: "не удалось ввести имя пользователя: " + err.Error()}
	}
	common.RandomDelay(800, 1500)
	if err := browser.TypeLikeHuman(page, passSel, password); err != nil {
		return Result{Message: "не удалось ввести пароль: " + err.Error()}
	}
	common.RandomDelay(1000, 2000)

	if err := clickLoginButton(page); err != nil {
		return Result{Message: "кнопка входа не найдена: " + err.Error()}
	}
	log.Printf("[LOGIN] форма отправлена, ждём результат…")
	common.RandomDelay(4000, 6000)

	if msg := detectLoginError(page); msg != "" {
		return Result{Message: msg}
	}

	// Дальше либо появится иконка профиля, либо поле кода 2FA.
	outcome := raceLoginOutcome(page, 15*time.Second)
	switch outcome {
	case "profile":
	case "2fa":
		if res := passTwoFactor(ctx, mailbox, page, username); !res.Success {
			return res
		}
	default:
		if msg := detectLoginError(page); msg != "" {
			return Result{Message: msg}
		}
		return Result{Message: "вход не подтвердился: ни ленты, ни запроса кода"}
	}

	if !hasProfileIcon(page, 6*time.Second) {
		return Result{Message: "вход не подтвердился после отправки формы"}
	}

	log.Printf("[LOGIN] вход %s выполнен", username)
	b.SetCurrentUser(username)
	sessions.Save(username, b.Cookies())
	return Result{Success: true, Message: "вход выполнен", User: username, Proxy: b.CurrentProxy()}
}

// loginFieldSelectors различает старую и новую вёрстку формы логина.
func loginFieldSelectors(page *rod.Page) (userSel, passSel string, err error) {
	if _, err := page.Timeout(20 * time.Second).Element(`input[name="username"], input[name="email"]`); err != nil {
		return "", "", err
	}
	res, err := page.Timeout(5 * time.Second).Eval(`() => !!document.querySelector('form#login_form')`)
	if err == nil && res.Value.Bool() {
		return `form#login_form input[name="username"]`, `form#login_form input[name="password"]`, nil
	}
	return `input[name="username"]`, `input[name="password"]`, nil
}

func clickLoginButton(page *rod.Page) error {
	res, err := page.Timeout(8*time.Second).Eval(`() => {
		const spans = Array.from(document.querySelectorAll("span"))
			.filter((el) => el.innerText.trim() === "Log in");
		for (const span of spans) {
			const btn = span.closest("div[role='none'], button");
			if (btn) { btn.click(); return true; }
		}
		const submit = document.querySelector("button[type='submit']");
		if (submit) { submit.click(); return true; }
		return false;
	}`)
	if err != nil {
		return err
	}
	if !res.Value.Bool() {
		return fmt.Errorf("кнопка Log in отсутствует на странице")
	}
	return nil
}

// detectLoginError распознаёт явные отказы: неверный пароль или
// несуществующий аккаунт.
func detectLoginError(page *rod.Page) string {
	res, err := page.Timeout(5*time.Second).Eval(`() => {
		const body = document.body ? document.body.innerText : "";
		if (body.includes("your password was incorrect") || body.includes("Sorry, your password was incorrect")) {
			return "password";
		}
		if (body.includes("The username you entered doesn't belong to an account")) {
			return "username";
		}
		return "";
	}`)
	if err != nil {
		return ""
	}
	switch res.Value.Str() {
	case "password":
		return "неверный пароль"
	case "username":
		return "аккаунт с таким именем не найден"
	default:
		return ""
	}
}

// raceLoginOutcome ждёт первый из двух исходов: иконка профиля или
// поле ввода кода подтверждения.
func raceLoginOutcome(page *rod.Page, timeout time.Duration) string {
	outcome := ""
	_, err := page.Timeout(timeout).Race().
		Element(profileIconSelector).MustHandle(func(*rod.Element) { outcome = "profile" }).
		Element(twoFactorSelector).MustHandle(func(*rod.Element) { outcome = "2fa" }).
		Do()
	if err != nil {
		return ""
	}
	return outcome
}

// passTwoFactor опрашивает почтовый ящик кодов, пока оператор не пришлёт
// код через HTTP, и вводит его на странице подтверждения.
func passTwoFactor(ctx context.Context, mailbox *twofa.Mailbox, page *rod.Page, username string) Result {
	log.Printf("[LOGIN] требуется код 2FA для %s, ждём отправки кода…", username)

	var code string
	for i := 0; i < twoFactorPollLimit; i++ {
		if err := ctx.Err(); err != nil {
			return Result{Message: "вход прерван: " + err.Error()}
		}
		if c, ok := mailbox.Take(username); ok {
			code = c
			break
		}
		common.RandomDelay(twoFactorPollMinMs, twoFactorPollMaxMs)
	}
	if code == "" {
		return Result{Message: "код 2FA не получен за отведённое время"}
	}

	log.Printf("[LOGIN] вводим код 2FA")
	if err := browser.TypeLikeHuman(page, twoFactorSelector, code); err != nil {
		return Result{Message: "не удалось ввести код 2FA: " + err.Error()}
	}
	common.RandomDelay(800, 1500)

	res, err := page.Timeout(8*time.Second).Eval(`() => {
		const btn = document.querySelector("button[type='button']");
		if (btn) { btn.click(); return true; }
		return false;
	}`)
	if err != nil || !res.Value.Bool() {
		return Result{Message: "кнопка подтверждения кода не найдена"}
	}
	common.RandomDelay(4000, 6000)
	return Result{Success: true}
}

// hasProfileIcon проверяет, видна ли иконка профиля, то есть вошли ли мы.
func hasProfileIcon(page *rod.Page, timeout time.Duration) bool {
	_, err := page.Timeout(timeout).Element(profileIconSelector)
	return err == nil
}
