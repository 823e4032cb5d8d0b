package authbrowser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-login/internal/sociallogin"
)

func TestCookieConversion(t *testing.T) {
	in := []*network.Cookie{{
		Name:     "SID",
		Value:    "v",
		Domain:   ".google.com",
		Path:     "/",
		Expires:  1893456000,
		Size:     4,
		HTTPOnly: true,
		Secure:   true,
		SameSite: network.CookieSameSiteLax,
	}}
	out := fromNetwork(in)
	require.Len(t, out, 1)
	assert.Equal(t, sociallogin.Cookie{
		Name: "SID", Value: "v", Domain: ".google.com", Path: "/",
		Expires: 1893456000, Size: 4, HTTPOnly: true, Secure: true, SameSite: "Lax",
	}, out[0])

	p := toCookieParam(out[0])
	assert.Equal(t, "SID", p.Name)
	assert.Equal(t, network.CookieSameSiteLax, p.SameSite)
	require.NotNil(t, p.Expires)
	assert.Equal(t, int64(1893456000), p.Expires.Time().Unix())

	session := toCookieParam(sociallogin.Cookie{Name: "s", Value: "1", Session: true, Expires: -1})
	assert.Nil(t, session.Expires)
}

func TestLaunchHonorsCallerDeadline(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a shell script stand-in for chrome")
	}
	// Never prints a DevTools URL, so startup only ends when ctx does.
	stall := filepath.Join(t.TempDir(), "chrome")
	require.NoError(t, os.WriteFile(stall, []byte("#!/bin/sh\nexec sleep 30\n"), 0o755))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	start := time.Now()
	b, err := NewLauncher(Options{ExecPath: stall, Quiet: true}).Launch(ctx, sociallogin.LaunchOptions{Headless: true})
	require.Error(t, err)
	assert.Nil(t, b)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func findChrome(t *testing.T) string {
	t.Helper()
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	t.Skip("no Chrome binary on PATH")
	return ""
}

const loginPage = `<!doctype html><html><body>
<button id="google-btn" onclick="location.href='/signin'">Sign in with Google</button>
</body></html>`

const signinPage = `<!doctype html><html><body>
<input type="email" id="email">
<div id="identifierNext" onclick="document.getElementById('pw').style.display='block'">Next</div>
<div id="pw" style="display:none">
  <input type="password" id="password">
  <div id="passwordNext" onclick="location.href='/done?u='+encodeURIComponent(document.getElementById('email').value)">Next</div>
</div>
</body></html>`

func newIdentityServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, loginPage)
	})
	mux.HandleFunc("/signin", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, signinPage)
	})
	mux.HandleFunc("/done", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc-" + r.URL.Query().Get("u"), Path: "/"})
		fmt.Fprint(w, `<!doctype html><html><body><div id="dashboard">ok</div></body></html>`)
	})
	return httptest.NewServer(mux)
}

func TestLauncherEndToEnd(t *testing.T) {
	execPath := findChrome(t)
	srv := newIdentityServer()
	defer srv.Close()

	runner := sociallogin.NewRunner(NewLauncher(Options{ExecPath: execPath, Quiet: true}))
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	res, err := runner.GoogleSocialLogin(ctx, sociallogin.LoginConfig{
		Username:          "u@example.com",
		Password:          "secret",
		LoginURL:          srv.URL + "/login",
		LoginSelector:     "#google-btn",
		PostLoginSelector: "#dashboard",
		Headless:          true,
		Timeout:           10 * time.Second,
	})
	require.NoError(t, err)
	require.Len(t, res.Cookies, 1)
	assert.Equal(t, "session", res.Cookies[0].Name)
	assert.Equal(t, "abc-u@example.com", res.Cookies[0].Value)
}

func TestLauncherElementTimeout(t *testing.T) {
	execPath := findChrome(t)
	srv := newIdentityServer()
	defer srv.Close()

	runner := sociallogin.NewRunner(NewLauncher(Options{ExecPath: execPath, Quiet: true}))
	_, err := runner.Run(context.Background(), sociallogin.Google, sociallogin.LoginConfig{
		Username:          "u",
		Password:          "p",
		LoginURL:          srv.URL + "/login",
		LoginSelector:     "#no-such-button",
		PostLoginSelector: "#dashboard",
		Headless:          true,
		Timeout:           time.Second,
	})
	assert.True(t, sociallogin.IsKind(err, sociallogin.KindElementTimeout), "got %v", err)
}
