package sociallogin

import (
	"fmt"
	"strings"
)

type Provider string

const (
	Google Provider = "google"
	Asana  Provider = "asana"
)

// credentialForm describes the two-page identifier/password form a provider
// sends the user through after the social-login button is clicked.
type credentialForm struct {
	EmailInput     string
	IdentifierNext string
	PasswordInput  string
	PasswordNext   string
}

// googleForm is Google's account chooser. Asana delegates to it as well.
var googleForm = credentialForm{
	EmailInput:     `input[type="email"]`,
	IdentifierNext: "#identifierNext",
	PasswordInput:  `input[type="password"]`,
	PasswordNext:   "#passwordNext",
}

var forms = map[Provider]credentialForm{
	Google: googleForm,
	Asana:  googleForm,
}

// Providers lists the supported providers in a stable order.
func Providers() []Provider { return []Provider{Google, Asana} }

func ParseProvider(s string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := forms[p]; !ok {
		return "", fmt.Errorf("unknown provider %q (want google or asana)", s)
	}
	return p, nil
}

func (p Provider) String() string { return string(p) }

func (p Provider) form() (credentialForm, bool) {
	f, ok := forms[p]
	return f, ok
}

// identityURLs are the sites holding a provider's sign-in session, beyond
// the application's own login URL.
var identityURLs = map[Provider][]string{
	Google: {"https://accounts.google.com"},
	Asana:  {"https://accounts.google.com", "https://app.asana.com"},
}

// IdentityURLs lists the sites whose local browser cookies are worth
// seeding into a run for p.
func (p Provider) IdentityURLs() []string {
	return append([]string(nil), identityURLs[p]...)
}
