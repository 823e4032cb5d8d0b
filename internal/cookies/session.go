package cookies

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"social-login/internal/sociallogin"
)

// Dump is the on-disk session file: { "cookies": [...] } plus provenance.
type Dump struct {
	Provider   string               `json:"provider,omitempty"`
	LoginURL   string               `json:"loginUrl,omitempty"`
	CapturedAt time.Time            `json:"capturedAt"`
	Cookies    []sociallogin.Cookie `json:"cookies"`
}

// WriteDump writes d as indented JSON, readable only by the owner.
func WriteDump(path string, d Dump) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

func ReadDump(path string) (Dump, error) {
	var d Dump
	b, err := os.ReadFile(path)
	if err != nil {
		return d, err
	}
	if err := json.Unmarshal(b, &d); err != nil {
		return d, fmt.Errorf("decode %s: %w", path, err)
	}
	return d, nil
}

func ToHTTP(cs []sociallogin.Cookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(cs))
	for _, c := range cs {
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
			Expires:  c.ExpiresAt(),
			SameSite: sameSiteFromString(c.SameSite),
		}
		out = append(out, hc)
	}
	return out
}

func FromHTTP(hs []*http.Cookie) []sociallogin.Cookie {
	out := make([]sociallogin.Cookie, 0, len(hs))
	for _, h := range hs {
		c := sociallogin.Cookie{
			Name:     h.Name,
			Value:    h.Value,
			Domain:   h.Domain,
			Path:     h.Path,
			Size:     int64(len(h.Name) + len(h.Value)),
			HTTPOnly: h.HttpOnly,
			Secure:   h.Secure,
			SameSite: SameSiteString(h.SameSite),
		}
		if h.Path == "" {
			c.Path = "/"
		}
		if h.Expires.IsZero() {
			c.Expires = -1
			c.Session = true
		} else {
			c.Expires = float64(h.Expires.Unix())
		}
		out = append(out, c)
	}
	return out
}

func SameSiteString(ss http.SameSite) string {
	switch ss {
	case http.SameSiteLaxMode:
		return "Lax"
	case http.SameSiteStrictMode:
		return "Strict"
	case http.SameSiteNoneMode:
		return "None"
	default:
		return ""
	}
}

func sameSiteFromString(s string) http.SameSite {
	switch strings.ToLower(s) {
	case "lax":
		return http.SameSiteLaxMode
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteDefaultMode
	}
}

// Jar builds a cookie jar holding cs. Each cookie is stored under a URL
// derived from its own domain and path, so cookies from several domains
// (an all-browser harvest) land where a browser would have put them.
func Jar(cs []sociallogin.Cookie) (*cookiejar.Jar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	for _, c := range cs {
		host := strings.TrimPrefix(c.Domain, ".")
		if host == "" {
			continue
		}
		scheme := "http"
		if c.Secure {
			scheme = "https"
		}
		u := &url.URL{Scheme: scheme, Host: host, Path: c.Path}
		hc := ToHTTP([]sociallogin.Cookie{c})
		// CDP marks domain cookies with a leading dot; the rest are host-only.
		if !strings.HasPrefix(c.Domain, ".") {
			hc[0].Domain = ""
		}
		jar.SetCookies(u, hc)
	}
	return jar, nil
}

// Verify sends one GET to target carrying the harvested cookies and returns
// the response status. Redirects are not followed, so a bounce back to a
// login page shows up as a 3xx.
func Verify(ctx context.Context, target string, cs []sociallogin.Cookie) (int, error) {
	jar, err := Jar(cs)
	if err != nil {
		return 0, err
	}
	httpc := &http.Client{
		Jar:     jar,
		Timeout: 15 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, fmt.Errorf("build verify request: %w", err)
	}
	resp, err := httpc.Do(req)
	if err != nil {
		return 0, fmt.Errorf("verify %s: %w", target, err)
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}
