package sociallogin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Viewport used for every login page.
const (
	ViewportWidth  = 1280
	ViewportHeight = 800
)

type Step string

const (
	StepStart                Step = "start"
	StepValidated            Step = "validated"
	StepBrowserLaunched      Step = "browser_launched"
	StepNavigated            Step = "navigated"
	StepLoginTriggered       Step = "login_triggered"
	StepCredentialsSubmitted Step = "credentials_submitted"
	StepCookiesCollected     Step = "cookies_collected"
	StepClosed               Step = "closed"
	StepDone                 Step = "done"
)

// Event is published on every step transition. Err is set only on the
// StepClosed event of a failed run.
type Event struct {
	Provider Provider
	Step     Step
	Err      error
	Time     time.Time
}

var errEmptySelector = errors.New("empty selector never matches")

type Runner struct {
	launcher Launcher
	logger   *slog.Logger
	observe  func(Event)
}

type Option func(*Runner)

func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithObserver registers fn to receive step events. fn runs synchronously
// on the run's goroutine and must not block.
func WithObserver(fn func(Event)) Option {
	return func(r *Runner) { r.observe = fn }
}

func NewRunner(launcher Launcher, opts ...Option) *Runner {
	r := &Runner{
		launcher: launcher,
		logger:   slog.Default(),
		observe:  func(Event) {},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Runner) GoogleSocialLogin(ctx context.Context, cfg LoginConfig) (*SessionResult, error) {
	return r.Run(ctx, Google, cfg)
}

func (r *Runner) AsanaSocialLogin(ctx context.Context, cfg LoginConfig) (*SessionResult, error) {
	return r.Run(ctx, Asana, cfg)
}

// Run performs one login and returns the harvested cookies. The browser is
// closed before Run returns, whatever the outcome. Nothing is retried.
func (r *Runner) Run(ctx context.Context, provider Provider, cfg LoginConfig) (res *SessionResult, err error) {
	form, ok := provider.form()
	if !ok {
		return nil, newError(KindInvalidConfiguration, StepStart, fmt.Sprintf("unknown provider %q", provider), nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &session{
		runner:   r,
		provider: provider,
		cfg:      cfg,
		form:     form,
		log:      r.logger.With(slog.String("provider", provider.String())),
		step:     StepStart,
	}
	s.advance(StepValidated)

	browser, err := r.launcher.Launch(ctx, LaunchOptions{Headless: cfg.Headless})
	if err != nil {
		err = s.fail(KindAutomation, "launch browser", err)
		s.publish(StepClosed, err)
		return nil, err
	}
	s.advance(StepBrowserLaunched)

	defer func() {
		if cerr := browser.Close(); cerr != nil {
			if err == nil {
				res, err = nil, s.fail(KindAutomation, "close browser", cerr)
			} else {
				s.log.Warn("close browser after failed run", slog.String("err", cerr.Error()))
			}
		}
		s.publish(StepClosed, err)
		if err == nil {
			s.publish(StepDone, nil)
		}
	}()

	page, err := s.open(ctx, browser)
	if err != nil {
		return nil, err
	}
	if err := s.triggerLogin(ctx, page); err != nil {
		return nil, err
	}
	if err := s.submitCredentials(ctx, page); err != nil {
		return nil, err
	}
	cookies, err := s.collectCookies(ctx, page)
	if err != nil {
		return nil, err
	}
	return &SessionResult{Cookies: cookies}, nil
}

// session carries the state of one Run.
type session struct {
	runner   *Runner
	provider Provider
	cfg      LoginConfig
	form     credentialForm
	log      *slog.Logger
	step     Step
}

func (s *session) advance(step Step) {
	s.step = step
	s.log.Debug("social login step", slog.String("step", string(step)))
	s.publish(step, nil)
}

func (s *session) publish(step Step, err error) {
	s.runner.observe(Event{Provider: s.provider, Step: step, Err: err, Time: time.Now()})
}

func (s *session) fail(kind Kind, op string, cause error) error {
	return newError(kind, s.step, op, cause)
}

func (s *session) open(ctx context.Context, browser Browser) (Page, error) {
	page, err := browser.NewPage(ctx)
	if err != nil {
		return nil, s.fail(KindAutomation, "open page", err)
	}
	if err := page.SetViewport(ctx, ViewportWidth, ViewportHeight); err != nil {
		return nil, s.fail(KindAutomation, "set viewport", err)
	}
	if len(s.cfg.SeedCookies) > 0 {
		if err := page.SetCookies(ctx, s.cfg.SeedCookies); err != nil {
			return nil, s.fail(KindAutomation, "seed cookies", err)
		}
	}
	if err := page.Goto(ctx, s.cfg.LoginURL); err != nil {
		return nil, s.fail(KindNavigation, fmt.Sprintf("goto %q", s.cfg.LoginURL), err)
	}
	s.advance(StepNavigated)
	return page, nil
}

func (s *session) triggerLogin(ctx context.Context, page Page) error {
	if err := s.wait(ctx, page, s.cfg.LoginSelector, false); err != nil {
		return err
	}
	if err := s.click(ctx, page, s.cfg.LoginSelector); err != nil {
		return err
	}
	s.advance(StepLoginTriggered)
	return nil
}

func (s *session) submitCredentials(ctx context.Context, page Page) error {
	f := s.form
	if err := s.wait(ctx, page, f.EmailInput, false); err != nil {
		return err
	}
	if err := s.typeText(ctx, page, f.EmailInput, s.cfg.Username); err != nil {
		return err
	}
	if err := s.click(ctx, page, f.IdentifierNext); err != nil {
		return err
	}

	if err := s.wait(ctx, page, f.PasswordInput, true); err != nil {
		return err
	}
	if err := s.typeText(ctx, page, f.PasswordInput, s.cfg.Password); err != nil {
		return err
	}
	if err := s.wait(ctx, page, f.PasswordNext, true); err != nil {
		return err
	}
	if err := s.click(ctx, page, f.PasswordNext); err != nil {
		return err
	}
	s.advance(StepCredentialsSubmitted)
	return nil
}

func (s *session) collectCookies(ctx context.Context, page Page) ([]Cookie, error) {
	if err := s.wait(ctx, page, s.cfg.PostLoginSelector, false); err != nil {
		return nil, err
	}

	var (
		cookies []Cookie
		err     error
	)
	if s.cfg.GetAllBrowserCookies {
		cookies, err = page.AllCookies(ctx)
	} else {
		cookies, err = page.Cookies(ctx, s.cfg.LoginURL)
	}
	if err != nil {
		return nil, s.fail(KindAutomation, "get cookies", err)
	}
	s.advance(StepCookiesCollected)

	if s.cfg.Logs {
		s.logCookies(cookies)
	}
	return cookies, nil
}

func (s *session) logCookies(cookies []Cookie) {
	s.log.Info("cookies collected",
		slog.Int("count", len(cookies)),
		slog.Bool("all_domains", s.cfg.GetAllBrowserCookies),
	)
	for _, c := range cookies {
		s.log.Info("cookie",
			slog.String("name", c.Name),
			slog.String("value", c.Value),
			slog.String("domain", c.Domain),
			slog.String("path", c.Path),
			slog.Float64("expires", c.Expires),
			slog.Bool("secure", c.Secure),
			slog.Bool("http_only", c.HTTPOnly),
		)
	}
}

// wait bounds a single wait-for-selector by the configured timeout. Any
// deadline expiry while waiting is reported as an element timeout.
func (s *session) wait(ctx context.Context, page Page, selector string, visible bool) error {
	op := fmt.Sprintf("wait for %q", selector)
	if visible {
		op = fmt.Sprintf("wait for visible %q", selector)
	}
	if selector == "" {
		return s.fail(KindElementTimeout, op, errEmptySelector)
	}

	wctx, cancel := context.WithTimeout(ctx, s.cfg.waitTimeout())
	defer cancel()
	err := page.WaitForSelector(wctx, selector, visible)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return s.fail(KindElementTimeout, op, err)
	default:
		return s.fail(KindAutomation, op, err)
	}
}

func (s *session) click(ctx context.Context, page Page, selector string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.waitTimeout())
	defer cancel()
	if err := page.Click(ctx, selector); err != nil {
		return s.fail(KindAutomation, fmt.Sprintf("click %q", selector), err)
	}
	return nil
}

func (s *session) typeText(ctx context.Context, page Page, selector, text string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.waitTimeout())
	defer cancel()
	if err := page.Type(ctx, selector, text); err != nil {
		return s.fail(KindAutomation, fmt.Sprintf("type into %q", selector), err)
	}
	return nil
}
