package sociallogin

import (
	"context"
	"time"
)

// LaunchOptions configures a single browser instance.
type LaunchOptions struct {
	Headless bool
}

// Launcher starts isolated browser instances. Each call must return a
// browser that shares no state with any other.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Browser, error)
}

// Browser is one running instance. Close must be safe to call after ctx
// passed to Launch is done.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page drives a single tab. Every wait honours the deadline of ctx; an
// expired deadline must be reported as (or wrap) context.DeadlineExceeded.
type Page interface {
	SetViewport(ctx context.Context, width, height int) error
	Goto(ctx context.Context, url string) error
	WaitForSelector(ctx context.Context, selector string, visible bool) error
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
	SetCookies(ctx context.Context, cookies []Cookie) error
	// Cookies returns the cookies that would be sent to any of urls.
	Cookies(ctx context.Context, urls ...string) ([]Cookie, error)
	// AllCookies returns every cookie in the browser, across all domains.
	AllCookies(ctx context.Context) ([]Cookie, error)
}

// Cookie mirrors the CDP Network.Cookie record.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"` // seconds since epoch; <= 0 for session cookies
	Size     int64   `json:"size"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	Session  bool    `json:"session"`
	SameSite string  `json:"sameSite,omitempty"`
}

// ExpiresAt returns the zero time for session cookies.
func (c Cookie) ExpiresAt() time.Time {
	if c.Session || c.Expires <= 0 {
		return time.Time{}
	}
	sec := int64(c.Expires)
	nsec := int64((c.Expires - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec)
}

// SessionResult is the output of one successful run.
type SessionResult struct {
	Cookies []Cookie `json:"cookies"`
}
