package sociallogin

import (
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
)

// DefaultTimeout bounds every wait-for-selector step when LoginConfig.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// LoginConfig is consumed once per run. Only Username and Password are
// validated up front; a missing selector surfaces later as an ElementTimeout.
type LoginConfig struct {
	Username             string        `json:"username" yaml:"username" env:"SOCIAL_LOGIN_USERNAME" validate:"required"`
	Password             string        `json:"password" yaml:"password" env:"SOCIAL_LOGIN_PASSWORD" validate:"required"`
	LoginURL             string        `json:"loginUrl" yaml:"login_url" env:"SOCIAL_LOGIN_URL"`
	LoginSelector        string        `json:"loginSelector" yaml:"login_selector" env:"SOCIAL_LOGIN_SELECTOR"`
	PostLoginSelector    string        `json:"postLoginSelector" yaml:"post_login_selector" env:"SOCIAL_LOGIN_POST_LOGIN_SELECTOR"`
	Headless             bool          `json:"headless" yaml:"headless" env:"SOCIAL_LOGIN_HEADLESS"`
	Logs                 bool          `json:"logs" yaml:"logs" env:"SOCIAL_LOGIN_LOGS"`
	GetAllBrowserCookies bool          `json:"getAllBrowserCookies" yaml:"get_all_browser_cookies" env:"SOCIAL_LOGIN_ALL_COOKIES"`
	Timeout              time.Duration `json:"-" yaml:"timeout" env:"SOCIAL_LOGIN_TIMEOUT"`

	// SeedCookies are set on the page before navigation.
	SeedCookies []Cookie `json:"seedCookies,omitempty" yaml:"-"`
}

var validate = validator.New()

// Validate fails with KindInvalidConfiguration when a credential is missing.
func (c LoginConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return newError(KindInvalidConfiguration, StepStart, "username or password missing for social login", err)
	}
	return nil
}

func (c LoginConfig) waitTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

// LogValue keeps the password out of structured logs.
func (c LoginConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("username", c.Username),
		slog.String("login_url", c.LoginURL),
		slog.String("login_selector", c.LoginSelector),
		slog.String("post_login_selector", c.PostLoginSelector),
		slog.Bool("headless", c.Headless),
		slog.Bool("all_cookies", c.GetAllBrowserCookies),
		slog.Duration("timeout", c.waitTimeout()),
		slog.Int("seed_cookies", len(c.SeedCookies)),
	)
}
