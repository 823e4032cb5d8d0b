package cookies

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/browserutils/kooky"
	_ "github.com/browserutils/kooky/browser/all" // register finders for major browsers
	"golang.org/x/net/publicsuffix"
)

// StoreCookie is an unexpired cookie read from a local browser profile.
type StoreCookie struct {
	Browser string // normalized family, see NormalizeBrowser
	Profile string
	File    string
	Cookie  *http.Cookie
}

// ReadStores reads unexpired cookies from the local browser stores.
// browser selects a family ("chrome") or one profile ("chrome:/path/to/Profile");
// "" reads every store found. Only cookies whose domain satisfies match are
// returned. The second result is the number of stores read.
func ReadStores(browser string, match func(domain string) bool) ([]StoreCookie, int, error) {
	stores := kooky.FindAllCookieStores()
	defer func() {
		for _, s := range stores {
			_ = s.Close()
		}
	}()

	want, wantProfilePath := "", ""
	if browser != "" {
		want, wantProfilePath = splitBrowserSpec(browser)
	}

	var (
		out  []StoreCookie
		read int
	)
	for _, s := range stores {
		family := NormalizeBrowser(s.Browser())
		if want != "" && family != want {
			continue
		}
		if wantProfilePath != "" && !samePath(s.FilePath(), wantProfilePath) &&
			!strings.Contains(strings.ToLower(s.FilePath()), strings.ToLower(wantProfilePath)) {
			continue
		}
		read++
		cc, _ := s.ReadCookies(kooky.Valid, kooky.FilterFunc(func(c *kooky.Cookie) bool {
			return match(c.Domain)
		}))
		for _, kc := range cc {
			hc := kc.Cookie
			out = append(out, StoreCookie{
				Browser: family,
				Profile: s.Profile(),
				File:    s.FilePath(),
				Cookie:  &hc,
			})
		}
	}
	if read == 0 {
		if want == "" {
			return nil, 0, errors.New("no browser cookie stores found")
		}
		return nil, 0, fmt.Errorf("no %s cookie stores found", want)
	}
	return out, read, nil
}

// ExtractFromBrowser loads the cookies a browser holds for the sites of urls
// ("chrome", "chromium", "edge", "brave", "opera", "firefox"; optionally
// "family:profile"). A site is the registrable domain of each URL, so
// cookies set on ".example.co.uk" are picked up for "id.example.co.uk" but
// other "co.uk" sites are not. The result is de-duplicated by
// domain/path/name; session cookies are kept.
func ExtractFromBrowser(browser string, urls ...string) ([]*http.Cookie, error) {
	if len(urls) == 0 {
		return nil, errors.New("at least one URL required")
	}
	var sites []string
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", raw, err)
		}
		host := u.Hostname()
		if host == "" {
			return nil, fmt.Errorf("invalid host in %q", raw)
		}
		sites = append(sites, siteOf(host))
	}

	found, _, err := ReadStores(browser, func(domain string) bool {
		return inSites(domain, sites)
	})
	if err != nil {
		return nil, err
	}

	var out []*http.Cookie
	seen := map[string]bool{}
	for _, sc := range found {
		key := DedupeKey(sc.Cookie)
		if !seen[key] {
			seen[key] = true
			out = append(out, sc.Cookie)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no cookies for %s found in %s", strings.Join(sites, ", "), NormalizeBrowser(browser))
	}
	return out, nil
}

// siteOf returns the registrable domain (eTLD+1) of host. IP literals and
// hosts without a public suffix, such as "localhost", are returned unchanged.
func siteOf(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if net.ParseIP(host) != nil {
		return host
	}
	site, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return site
}

// inSites reports whether a cookie domain is one of sites or below one.
func inSites(domain string, sites []string) bool {
	d := strings.ToLower(strings.TrimPrefix(domain, "."))
	for _, s := range sites {
		if d == s || strings.HasSuffix(d, "."+s) {
			return true
		}
	}
	return false
}

// splitBrowserSpec accepts "chrome" or "chrome:/path/to/Profile".
func splitBrowserSpec(spec string) (browser, profilePath string) {
	if i := strings.IndexByte(spec, ':'); i > 0 {
		return NormalizeBrowser(spec[:i]), spec[i+1:]
	}
	return NormalizeBrowser(spec), ""
}

func NormalizeBrowser(s string) string {
	if i := strings.IndexByte(s, ':'); i > 0 {
		s = s[:i]
	}
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "chrome", "google chrome":
		return "chrome"
	case "chromium":
		return "chromium"
	case "edge", "microsoft edge":
		return "edge"
	case "brave":
		return "brave"
	case "opera":
		return "opera"
	case "firefox":
		return "firefox"
	default:
		return "chrome"
	}
}

func samePath(a, b string) bool {
	ra := filepath.Clean(a)
	rb := filepath.Clean(b)
	if ea, err := filepath.EvalSymlinks(ra); err == nil {
		ra = ea
	}
	if eb, err := filepath.EvalSymlinks(rb); err == nil {
		rb = eb
	}
	return ra == rb
}

// DedupeKey identifies a cookie by its domain/path/name scope.
func DedupeKey(c *http.Cookie) string {
	return strings.ToLower(strings.TrimPrefix(c.Domain, ".")) + "\t" + c.Path + "\t" + c.Name
}
