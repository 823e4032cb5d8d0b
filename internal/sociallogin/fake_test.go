package sociallogin

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// fakeLauncher records every capability call in order. Selectors listed in
// missing never appear: waits on them block until the context expires.
type fakeLauncher struct {
	mu        sync.Mutex
	calls     []string
	missing   map[string]bool
	failOn    map[string]error // keyed by call prefix, e.g. "goto"
	urlJar    []Cookie
	allJar    []Cookie
	launches  int
	closes    int
	launchErr error
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{
		missing: map[string]bool{},
		failOn:  map[string]error{},
		urlJar: []Cookie{
			{Name: "session", Value: "abc", Domain: "id.example", Path: "/", Expires: -1, Session: true},
		},
		allJar: []Cookie{
			{Name: "session", Value: "abc", Domain: "id.example", Path: "/", Expires: -1, Session: true},
			{Name: "SID", Value: "g00g", Domain: ".google.com", Path: "/", Expires: 1893456000, Secure: true, HTTPOnly: true},
		},
	}
}

func (f *fakeLauncher) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	for prefix, err := range f.failOn {
		if strings.HasPrefix(call, prefix) {
			return err
		}
	}
	return nil
}

func (f *fakeLauncher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeLauncher) Launch(ctx context.Context, opts LaunchOptions) (Browser, error) {
	f.mu.Lock()
	f.launches++
	f.mu.Unlock()
	if err := f.record(fmt.Sprintf("launch(headless=%v)", opts.Headless)); err != nil {
		return nil, err
	}
	if f.launchErr != nil {
		return nil, f.launchErr
	}
	return &fakeBrowser{f: f}, nil
}

type fakeBrowser struct{ f *fakeLauncher }

func (b *fakeBrowser) NewPage(ctx context.Context) (Page, error) {
	if err := b.f.record("newPage"); err != nil {
		return nil, err
	}
	return &fakePage{f: b.f}, nil
}

func (b *fakeBrowser) Close() error {
	b.f.mu.Lock()
	b.f.closes++
	b.f.mu.Unlock()
	return b.f.record("close")
}

type fakePage struct{ f *fakeLauncher }

func (p *fakePage) SetViewport(ctx context.Context, width, height int) error {
	return p.f.record(fmt.Sprintf("setViewport(%dx%d)", width, height))
}

func (p *fakePage) Goto(ctx context.Context, url string) error {
	return p.f.record("goto(" + url + ")")
}

func (p *fakePage) WaitForSelector(ctx context.Context, selector string, visible bool) error {
	call := "waitForSelector(" + selector + ")"
	if visible {
		call = "waitForSelector(" + selector + ",visible)"
	}
	if err := p.f.record(call); err != nil {
		return err
	}
	if p.f.missing[selector] {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (p *fakePage) Click(ctx context.Context, selector string) error {
	return p.f.record("click(" + selector + ")")
}

func (p *fakePage) Type(ctx context.Context, selector, text string) error {
	return p.f.record("type(" + selector + "," + text + ")")
}

func (p *fakePage) SetCookies(ctx context.Context, cookies []Cookie) error {
	return p.f.record(fmt.Sprintf("setCookies(%d)", len(cookies)))
}

func (p *fakePage) Cookies(ctx context.Context, urls ...string) ([]Cookie, error) {
	if err := p.f.record("cookies(" + strings.Join(urls, ",") + ")"); err != nil {
		return nil, err
	}
	return append([]Cookie(nil), p.f.urlJar...), nil
}

func (p *fakePage) AllCookies(ctx context.Context) ([]Cookie, error) {
	if err := p.f.record("allCookies"); err != nil {
		return nil, err
	}
	return append([]Cookie(nil), p.f.allJar...), nil
}
