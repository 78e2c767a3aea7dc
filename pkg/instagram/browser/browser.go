// Package browser владеет единственной на процесс парой браузер/страница
// и отвечает за её жизненный цикл: запуск, восстановление после сбоев и
// корректное завершение. Все записи состояния (новая страница, новый
// пользователь, новый прокси) происходят только внутри запуска или
// перезапуска; остальной код состояние только читает.
package browser

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"dm_go/internal/common"
	"dm_go/pkg/config"
	"dm_go/pkg/instagram/session"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
)

const instagramURL = "https://www.instagram.com"

// Селектор полей логина — по нему проверяем, что страница реально доступна.
const loginFieldSelector = `input[name="username"], input[name="email"]`

// accountProxySource отдаёт строку прокси аккаунта из БД.
type accountProxySource interface {
	GetProxyByUsername(username string) string
}

// instanceHeld гарантирует инвариант «одна живая сессия на процесс»:
// второй конструктор получает отказ, а не вторую копию состояния.
var instanceHeld atomic.Bool

// ErrAlreadyExists возвращается при попытке создать второй Context.
var ErrAlreadyExists = errors.New("браузерный контекст уже создан")

// Context — единственный владелец браузера и страницы.
type Context struct {
	cfg      *config.Config
	accounts accountProxySource
	sessions *session.Store

	launching   atomic.Bool
	relaunching atomic.Bool

	mu           sync.Mutex
	launcher     *launcher.Launcher
	browser      *rod.Browser
	page         *rod.Page
	currentUser  string
	currentProxy string

	// Навигации сериализуются между рассылкой и фоновой активностью:
	// нельзя начинать новый переход, пока идёт предыдущий.
	navMu   sync.Mutex
	navBusy atomic.Bool
}

// New создаёт контекст браузера. Повторный вызов при живом контексте
// возвращает ErrAlreadyExists.
func New(cfg *config.Config, accounts accountProxySource, sessions *session.Store) (*Context, error) {
	if !instanceHeld.CompareAndSwap(false, true) {
		return nil, ErrAlreadyExists
	}
	return &Context{cfg: cfg, accounts: accounts, sessions: sessions}, nil
}

// ---------- Чтение состояния ----------

func (c *Context) Page() *rod.Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page
}

func (c *Context) CurrentUser() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentUser
}

func (c *Context) CurrentProxy() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentProxy
}

// SetCurrentUser фиксирует пользователя после успешного логина.
func (c *Context) SetCurrentUser(username string) {
	c.mu.Lock()
	c.currentUser = username
	c.mu.Unlock()
}

// Alive проверяет, что страница жива: не закрыта и её фрейм отвечает.
// Любая ошибка трактуется как деградация, а не как повод падать.
func (c *Context) Alive() bool {
	page := c.Page()
	if page == nil {
		return false
	}
	_, err := page.Timeout(5 * time.Second).Eval(`() => true`)
	return err == nil
}

// NavBusy сообщает, идёт ли сейчас навигация. Фоновые действия ждут
// снятия флага перед началом работы со страницей.
func (c *Context) NavBusy() bool {
	return c.navBusy.Load()
}

// Cookies возвращает cookie текущей страницы. Мёртвая страница или
// отвалившийся фрейм дают пустой результат: это «нечего сохранять»,
// а не ошибка. Страница снимается один раз: параллельный перезапуск
// может обнулить c.page между проверкой и чтением.
func (c *Context) Cookies() []*proto.NetworkCookieParam {
	page := c.Page()
	if page == nil {
		log.Printf("[BROWSER] Cookies: страница недоступна, пропускаем")
		return nil
	}
	if _, err := page.Timeout(5 * time.Second).Eval(`() => true`); err != nil {
		log.Printf("[BROWSER] Cookies: фрейм не отвечает, пропускаем")
		return nil
	}
	cookies, err := page.Cookies(nil)
	if err != nil {
		log.Printf("[BROWSER] не удалось прочитать cookie: %v", err)
		return nil
	}
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, ck := range cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:     ck.Name,
			Value:    ck.Value,
			Domain:   ck.Domain,
			Path:     ck.Path,
			Secure:   ck.Secure,
			HTTPOnly: ck.HTTPOnly,
			SameSite: ck.SameSite,
			Expires:  ck.Expires,
		})
	}
	return params
}

// ---------- Запуск ----------

// Launch поднимает браузер для аккаунта. Параллельный вызов при уже
// идущем запуске молча отбрасывается (не ставится в очередь).
// Любая ошибка запуска уходит в Restart, процесс не падает.
func (c *Context) Launch(ctx context.Context, username string, cookies []*proto.NetworkCookieParam) error {
	if !c.launching.CompareAndSwap(false, true) {
		log.Printf("[BROWSER] запуск проигнорирован — другой запуск уже идёт")
		return nil
	}

	err := c.launch(ctx, username, cookies)
	c.launching.Store(false)

	if err != nil {
		log.Printf("[BROWSER] запуск для %s не удался: %v", username, err)
		if c.shouldSelfRestart() {
			go c.Restart(ctx, username, cookies)
		}
	}
	return err
}

// shouldSelfRestart разрешает самовосстановление из Launch только когда
// запуск не был частью идущего перезапуска: Restart сам планирует один
// повтор через 10 секунд, вторая цепочка повторов ему не нужна.
func (c *Context) shouldSelfRestart() bool {
	return !c.relaunching.Load()
}

func (c *Context) launch(ctx context.Context, username string, cookies []*proto.NetworkCookieParam) error {
	// Любой предыдущий браузер закрываем детерминированно, ошибки закрытия
	// не важны: процесс мог уже умереть сам.
	c.closeSession()

	// Прокси сбрасывается перед каждым запуском и выставляется заново
	// только если строка из БД разобралась.
	c.mu.Lock()
	c.currentProxy = ""
	c.mu.Unlock()

	proxyStr := c.accounts.GetProxyByUsername(username)
	proxy, err := ParseProxy(proxyStr)
	if err != nil {
		log.Printf("[BROWSER] %v — продолжаем без прокси", err)
		proxy = nil
	}

	l := launcher.New().
		Headless(c.cfg.Headless).
		UserDataDir(c.sessions.ProfilePath(username)).
		NoSandbox(true).
		Set("disable-dev-shm-usage").
		Set("disable-infobars").
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-web-security").
		Set("ignore-certificate-errors").
		Set("window-size", "1366,768")
	if c.cfg.BrowserBin != "" {
		l = l.Bin(c.cfg.BrowserBin)
	}
	if proxy != nil {
		l = l.Set(flags.ProxyServer, proxy.Addr())
		log.Printf("[BROWSER] используем прокси %s для %s", proxy.Addr(), username)
	}

	log.Printf("[BROWSER] запускаем браузер для %s (профиль: %s)", username, c.sessions.ProfilePath(username))
	controlURL, err := l.Launch()
	if err != nil {
		return err
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return err
	}

	pages, err := b.Pages()
	if err != nil {
		_ = b.Close()
		l.Kill()
		return err
	}
	var page *rod.Page
	if len(pages) > 0 {
		page = pages[0]
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: "about:blank"})
		if err != nil {
			_ = b.Close()
			l.Kill()
			return err
		}
	}

	if proxy != nil && proxy.HasAuth() {
		go func() {
			if authErr := b.HandleAuth(proxy.Username, proxy.Password)(); authErr != nil {
				log.Printf("[BROWSER] аутентификация прокси не удалась: %v", authErr)
			}
		}()
	}

	if len(cookies) > 0 {
		log.Printf("[BROWSER] восстанавливаем сохранённые cookie…")
		if err := page.SetCookies(cookies); err != nil {
			log.Printf("[BROWSER] не удалось применить cookie: %v", err)
		}
	}

	if err := page.Timeout(45 * time.Second).Navigate(instagramURL); err != nil {
		_ = b.Close()
		l.Kill()
		return err
	}
	_ = page.Timeout(45 * time.Second).WaitLoad()

	// Медленным прокси даём больше времени стабилизировать соединение.
	if proxy != nil {
		common.RandomDelay(4000, 4500)
	} else {
		common.RandomDelay(1000, 1200)
	}

	// Проверяем достижимость: ждём поля логина с одним повтором.
	if _, err := page.Timeout(20 * time.Second).Element(loginFieldSelector); err != nil {
		log.Printf("[BROWSER] поля логина не найдены — повторяем один раз…")
		common.RandomDelay(5000, 5500)
		if _, err := page.Timeout(15 * time.Second).Element(loginFieldSelector); err != nil {
			// Поля может не быть из-за живой сессии, поэтому только фиксируем.
			log.Printf("[BROWSER] поля логина так и не появились, возможно прокси слишком медленный")
		}
	}

	// Отвал фрейма сразу после загрузки — фатальная ошибка этой попытки.
	if _, err := page.Timeout(5 * time.Second).Eval(`() => true`); err != nil {
		_ = b.Close()
		l.Kill()
		return errors.New("фрейм отвалился сразу после навигации")
	}

	c.mu.Lock()
	c.launcher = l
	c.browser = b
	c.page = page
	c.currentUser = username
	if proxy != nil {
		c.currentProxy = proxyStr
	}
	c.mu.Unlock()

	log.Printf("[BROWSER] браузер готов для %s", username)
	return nil
}

// ---------- Восстановление ----------

// Restart перезапускает браузер. Одновременно идёт не больше одного
// перезапуска; при идущем запуске перезапуск тоже отбрасывается.
// Неудачный перезапуск планирует один повтор через 10 секунд, чтобы
// не устраивать шторм рестартов.
func (c *Context) Restart(ctx context.Context, username string, cookies []*proto.NetworkCookieParam) {
	if c.launching.Load() || !c.relaunching.CompareAndSwap(false, true) {
		log.Printf("[BROWSER] перезапуск проигнорирован — восстановление уже идёт")
		return
	}

	log.Printf("[BROWSER] пытаемся перезапустить браузер…")
	common.RandomDelay(2000, 4000)
	err := c.Launch(ctx, username, cookies)
	c.relaunching.Store(false)

	if err != nil {
		log.Printf("[BROWSER] перезапуск не удался: %v. Повтор через 10с…", err)
		time.AfterFunc(10*time.Second, func() {
			if ctx.Err() == nil {
				c.Restart(ctx, username, cookies)
			}
		})
		return
	}
	log.Printf("[BROWSER] браузер перезапущен")
}

// StartMonitor следит за живостью сессии периодической пробой. События
// обрыва соединения у DevTools нет, поэтому задержка обнаружения
// ограничена интервалом пробы (20 секунд).
func (c *Context) StartMonitor(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(20 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				user := c.CurrentUser()
				if user == "" || c.launching.Load() || c.relaunching.Load() {
					continue
				}
				if !c.Alive() {
					log.Printf("[BROWSER] сессия деградировала — перезапускаем…")
					go c.Restart(ctx, user, c.sessions.Load(user))
				}
			}
		}
	}()
}

// ---------- Навигация ----------

// Navigate выполняет переход с повторами и удерживает блокировку
// навигации: пока идёт один переход, второй не начинается.
func (c *Context) Navigate(page *rod.Page, url string) error {
	c.navMu.Lock()
	defer c.navMu.Unlock()
	c.navBusy.Store(true)
	defer c.navBusy.Store(false)

	backoff := 500
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if err := page.Timeout(30 * time.Second).Navigate(url); err != nil {
			lastErr = err
			log.Printf("[BROWSER] ошибка навигации (попытка %d): %v", attempt+1, err)
			common.RandomDelay(backoff, backoff+300)
			backoff *= 2
			continue
		}
		_ = page.Timeout(30 * time.Second).WaitLoad()
		return nil
	}
	return lastErr
}

// ---------- Завершение ----------

// closeSession закрывает браузер, игнорируя ошибки закрытия.
func (c *Context) closeSession() {
	c.mu.Lock()
	b := c.browser
	l := c.launcher
	c.browser = nil
	c.page = nil
	c.mu.Unlock()

	if b != nil {
		log.Printf("[BROWSER] закрываем существующий браузер…")
		if err := b.Close(); err != nil {
			log.Printf("[BROWSER] ошибка закрытия (игнорируем): %v", err)
		}
	}
	if l != nil {
		l.Kill()
	}
}

// CloseSession закрывает активную сессию (например после временной
// блокировки), не освобождая сам контекст.
func (c *Context) CloseSession() {
	c.closeSession()
	c.mu.Lock()
	c.currentUser = ""
	c.currentProxy = ""
	c.mu.Unlock()
}

// Shutdown — финальное закрытие при остановке процесса.
func (c *Context) Shutdown() {
	log.Printf("[BROWSER] получен сигнал завершения, закрываем браузер…")
	c.CloseSession()
	instanceHeld.Store(false)
}
