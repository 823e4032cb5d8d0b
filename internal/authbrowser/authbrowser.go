package authbrowser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"

	"social-login/internal/sociallogin"
)

type Options struct {
	ExecPath    string       // optional Chrome binary; empty => chromedp lookup
	UserDataDir string       // optional Chrome profile dir; empty => temp
	Logger      *slog.Logger // optional: route chromedp logs to slog
	Quiet       bool         // if true, suppress chromedp debug/log output
}

// Launcher starts a fresh Chrome process per Launch call.
type Launcher struct {
	opts Options
}

var _ sociallogin.Launcher = (*Launcher)(nil)

func NewLauncher(opts Options) *Launcher {
	return &Launcher{opts: opts}
}

func (l *Launcher) allocatorOptions(headless bool) []chromedp.ExecAllocatorOption {
	allocOpts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(sociallogin.ViewportWidth, sociallogin.ViewportHeight),
	}
	if headless {
		allocOpts = append(allocOpts, chromedp.Headless)
	} else {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}
	if l.opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(l.opts.ExecPath))
	}
	if l.opts.UserDataDir != "" {
		allocOpts = append(allocOpts, chromedp.UserDataDir(l.opts.UserDataDir))
	}
	return allocOpts
}

func (l *Launcher) contextOptions() []chromedp.ContextOption {
	var ctxOpts []chromedp.ContextOption
	if l.opts.Quiet {
		ctxOpts = append(ctxOpts,
			chromedp.WithLogf(func(string, ...any) {}),
			chromedp.WithDebugf(func(string, ...any) {}),
			chromedp.WithErrorf(func(string, ...any) {}),
		)
	} else if l.opts.Logger != nil {
		lg := l.opts.Logger
		ctxOpts = append(ctxOpts,
			chromedp.WithLogf(func(f string, a ...any) { lg.Info(fmt.Sprintf(f, a...)) }),
			chromedp.WithDebugf(func(f string, a ...any) { lg.Debug(fmt.Sprintf(f, a...)) }),
			chromedp.WithErrorf(func(f string, a ...any) { lg.Warn(fmt.Sprintf(f, a...)) }),
		)
	}
	return ctxOpts
}

// Launch starts Chrome and waits for its first tab. ctx bounds startup only:
// once Launch returns, the process outlives ctx and Browser.Close tears it
// down.
func (l *Launcher) Launch(ctx context.Context, opts sociallogin.LaunchOptions) (sociallogin.Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	actx, acancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), l.allocatorOptions(opts.Headless)...)
	bctx, bcancel := chromedp.NewContext(actx, l.contextOptions()...)

	// The first Run must use bctx itself, not a derived context, or the
	// browser dies with the derived context.
	stop := context.AfterFunc(ctx, bcancel)
	err := chromedp.Run(bctx)
	if !stop() {
		bcancel()
		acancel()
		return nil, fmt.Errorf("start chrome: %w", ctx.Err())
	}
	if err != nil {
		bcancel()
		acancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	return &Browser{ctx: bctx, cancel: bcancel, allocCancel: acancel}, nil
}

type Browser struct {
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc

	mu       sync.Mutex
	tabs     []context.CancelFunc
	once     sync.Once
	closeErr error
}

// NewPage opens a new tab in the browser.
func (b *Browser) NewPage(ctx context.Context) (sociallogin.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tctx, tcancel := chromedp.NewContext(b.ctx)
	b.mu.Lock()
	b.tabs = append(b.tabs, tcancel)
	b.mu.Unlock()

	// Enable network domain to fetch HttpOnly cookies
	if err := chromedp.Run(tctx, network.Enable()); err != nil {
		return nil, fmt.Errorf("open tab: %w", err)
	}
	return &Page{ctx: tctx}, nil
}

// Close shuts Chrome down gracefully, then releases the allocator. It is
// idempotent.
func (b *Browser) Close() error {
	b.once.Do(func() {
		b.mu.Lock()
		tabs := b.tabs
		b.mu.Unlock()
		for _, cancel := range tabs {
			cancel()
		}
		err := chromedp.Cancel(b.ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			b.closeErr = fmt.Errorf("close chrome: %w", err)
		}
		b.cancel()
		b.allocCancel()
	})
	return b.closeErr
}

// Page drives one tab.
type Page struct {
	ctx context.Context
}

// run executes actions on the tab, bounded by ctx's deadline and
// cancellation. A context failure is always reported through the returned
// error chain so callers can tell timeouts from other failures.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	rctx, cancel := context.WithCancel(p.ctx)
	defer cancel()
	if dl, ok := ctx.Deadline(); ok {
		var cancelDL context.CancelFunc
		rctx, cancelDL = context.WithDeadline(rctx, dl)
		defer cancelDL()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(rctx, actions...)
	if err == nil {
		return nil
	}
	if cerr := rctx.Err(); cerr != nil && !errors.Is(err, cerr) {
		return fmt.Errorf("%w (%v)", cerr, err)
	}
	return err
}

func (p *Page) SetViewport(ctx context.Context, width, height int) error {
	return p.run(ctx, chromedp.EmulateViewport(int64(width), int64(height)))
}

func (p *Page) Goto(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

// WaitForSelector waits for presence in the DOM, or for visibility when
// visible is set.
func (p *Page) WaitForSelector(ctx context.Context, selector string, visible bool) error {
	if visible {
		return p.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
	}
	return p.run(ctx, chromedp.WaitReady(selector, chromedp.ByQuery))
}

func (p *Page) Click(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

func (p *Page) Type(ctx context.Context, selector, text string) error {
	return p.run(ctx, chromedp.SendKeys(selector, text, chromedp.ByQuery))
}

func (p *Page) SetCookies(ctx context.Context, cookies []sociallogin.Cookie) error {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, toCookieParam(c))
	}
	return p.run(ctx, network.SetCookies(params))
}

func (p *Page) Cookies(ctx context.Context, urls ...string) ([]sociallogin.Cookie, error) {
	var cks []*network.Cookie
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cks, err = network.GetCookies().WithURLs(urls).Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("get cookies: %w", err)
	}
	return fromNetwork(cks), nil
}

func (p *Page) AllCookies(ctx context.Context) ([]sociallogin.Cookie, error) {
	var cks []*network.Cookie
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cks, err = storage.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("get all cookies: %w", err)
	}
	return fromNetwork(cks), nil
}

func fromNetwork(cks []*network.Cookie) []sociallogin.Cookie {
	out := make([]sociallogin.Cookie, 0, len(cks))
	for _, c := range cks {
		out = append(out, sociallogin.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			Size:     c.Size,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			Session:  c.Session,
			SameSite: c.SameSite.String(),
		})
	}
	return out
}

func toCookieParam(c sociallogin.Cookie) *network.CookieParam {
	p := &network.CookieParam{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Secure:   c.Secure,
		HTTPOnly: c.HTTPOnly,
		SameSite: network.CookieSameSite(c.SameSite),
	}
	if exp := c.ExpiresAt(); !exp.IsZero() {
		t := cdp.TimeSinceEpoch(exp.Truncate(time.Second))
		p.Expires = &t
	}
	return p
}
