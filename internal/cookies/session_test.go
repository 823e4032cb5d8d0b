package cookies

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-login/internal/sociallogin"
)

func TestWriteReadDump(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	in := Dump{
		Provider:   "google",
		LoginURL:   "https://id.example/login",
		CapturedAt: time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC),
		Cookies: []sociallogin.Cookie{
			{Name: "session", Value: "abc", Domain: "id.example", Path: "/", Expires: -1, Session: true},
		},
	}
	require.NoError(t, WriteDump(path, in))

	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())

	out, err := ReadDump(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestReadDumpErrors(t *testing.T) {
	_, err := ReadDump(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o600))
	_, err = ReadDump(bad)
	assert.Error(t, err)
}

func TestHTTPConversion(t *testing.T) {
	exp := time.Unix(1893456000, 0)
	hs := []*http.Cookie{
		{Name: "SID", Value: "x", Domain: ".google.com", Path: "/", Expires: exp, Secure: true, HttpOnly: true, SameSite: http.SameSiteNoneMode},
		{Name: "tmp", Value: "y", Domain: "id.example"},
	}
	cs := FromHTTP(hs)
	require.Len(t, cs, 2)
	assert.Equal(t, float64(1893456000), cs[0].Expires)
	assert.Equal(t, "None", cs[0].SameSite)
	assert.True(t, cs[1].Session)
	assert.Equal(t, "/", cs[1].Path)

	back := ToHTTP(cs)
	assert.Equal(t, exp.Unix(), back[0].Expires.Unix())
	assert.Equal(t, http.SameSiteNoneMode, back[0].SameSite)
	assert.True(t, back[1].Expires.IsZero())
}

func TestJarScopesByDomain(t *testing.T) {
	jar, err := Jar([]sociallogin.Cookie{
		{Name: "host", Value: "1", Domain: "id.example", Path: "/"},
		{Name: "parent", Value: "2", Domain: ".example.com", Path: "/"},
		{Name: "nodomain", Value: "3"},
	})
	require.NoError(t, err)

	names := func(raw string) []string {
		u, _ := url.Parse(raw)
		var out []string
		for _, c := range jar.Cookies(u) {
			out = append(out, c.Name)
		}
		return out
	}
	assert.Equal(t, []string{"host"}, names("http://id.example/app"))
	assert.Empty(t, names("http://sub.id.example/app"), "host-only cookie must not leak to subdomains")
	assert.Equal(t, []string{"parent"}, names("http://accounts.example.com/"))
}

func TestVerifySendsCookies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie("session"); err == nil && c.Value == "abc" {
			w.WriteHeader(http.StatusOK)
			return
		}
		http.Redirect(w, r, "/login", http.StatusFound)
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	good := []sociallogin.Cookie{{Name: "session", Value: "abc", Domain: u.Hostname(), Path: "/"}}

	code, err := Verify(context.Background(), srv.URL+"/me", good)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)

	code, err = Verify(context.Background(), srv.URL+"/me", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, code)
}

func TestNormalizeAndDedupe(t *testing.T) {
	assert.Equal(t, "edge", NormalizeBrowser(" Microsoft Edge "))
	assert.Equal(t, "chrome", NormalizeBrowser("netscape"))

	b, p := splitBrowserSpec("brave:/home/me/.config/Brave/Default")
	assert.Equal(t, "brave", b)
	assert.Equal(t, "/home/me/.config/Brave/Default", p)

	a := &http.Cookie{Name: "n", Domain: ".Example.com", Path: "/"}
	c := &http.Cookie{Name: "n", Domain: "example.com", Path: "/"}
	assert.Equal(t, DedupeKey(a), DedupeKey(c))
}

func TestSiteOfUsesPublicSuffixes(t *testing.T) {
	assert.Equal(t, "example.com", siteOf("accounts.example.com"))
	assert.Equal(t, "example.co.uk", siteOf("id.example.co.uk"))
	assert.Equal(t, "google.com", siteOf("Accounts.Google.com."))
	assert.Equal(t, "127.0.0.1", siteOf("127.0.0.1"))
	assert.Equal(t, "localhost", siteOf("localhost"))

	sites := []string{siteOf("id.example.co.uk"), siteOf("accounts.google.com")}
	assert.True(t, inSites(".example.co.uk", sites))
	assert.True(t, inSites("id.example.co.uk", sites))
	assert.True(t, inSites(".google.com", sites))
	assert.False(t, inSites(".other.co.uk", sites))
	assert.False(t, inSites("co.uk", sites))
	assert.False(t, inSites("notgoogle.com", sites))
}

func TestExtractFromBrowserRejectsBadInput(t *testing.T) {
	_, err := ExtractFromBrowser("chrome")
	require.Error(t, err)
	_, err = ExtractFromBrowser("chrome", "https:///nohost")
	require.Error(t, err)
}
