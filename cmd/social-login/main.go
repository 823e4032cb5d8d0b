package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"social-login/internal/authbrowser"
	"social-login/internal/config"
	"social-login/internal/cookies"
	"social-login/internal/metrics"
	"social-login/internal/server"
	"social-login/internal/sociallogin"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load() // best-effort: .env is optional

	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	providerFlag := flag.String("provider", "", "provider to log in with (google, asana); overrides config")
	outPath := flag.String("out", "", "where to write harvested cookies; defaults to session_store_path")
	fromBrowser := flag.String("cookies-from-browser", "", "seed the session with cookies from a local browser, e.g. chrome or chrome:Profile 1")
	serve := flag.Bool("serve", false, "expose login runs over HTTP instead of running once")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", *configPath, err)
		os.Exit(1)
	}
	if *providerFlag != "" {
		cfg.Provider = *providerFlag
	}

	logger := config.NewLogger(cfg.LogLevel)

	launcher := authbrowser.NewLauncher(authbrowser.Options{
		ExecPath:    cfg.Browser.ExecPath,
		UserDataDir: cfg.Browser.UserDataDir,
		Quiet:       cfg.Browser.Quiet,
		Logger:      logger,
	})

	if *serve {
		os.Exit(runServer(cfg, launcher, logger))
	}
	os.Exit(runOnce(cfg, launcher, logger, *outPath, *fromBrowser))
}

func runOnce(cfg config.Config, launcher sociallogin.Launcher, logger *slog.Logger, out, fromBrowser string) int {
	provider, err := sociallogin.ParseProvider(cfg.Provider)
	if err != nil {
		logger.Error("invalid provider", slog.String("err", err.Error()))
		return 2
	}

	login := cfg.Login
	if fromBrowser != "" {
		// The app's own site plus the provider's identity sites, so an
		// existing Google session carries over.
		sites := provider.IdentityURLs()
		if login.LoginURL != "" {
			sites = append([]string{login.LoginURL}, sites...)
		}
		seeds, err := cookies.ExtractFromBrowser(fromBrowser, sites...)
		if err != nil {
			logger.Error("cookie import failed", slog.String("err", err.Error()))
		} else {
			login.SeedCookies = cookies.FromHTTP(seeds)
			logger.Info("imported cookies from browser",
				slog.String("browser", fromBrowser),
				slog.Int("count", len(seeds)),
				slog.Any("sites", sites),
			)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, cancelRun := context.WithTimeout(ctx, cfg.RunTimeout)
	defer cancelRun()

	runner := sociallogin.NewRunner(launcher, sociallogin.WithLogger(logger))
	logger.Info("social-login starting",
		slog.String("provider", provider.String()),
		slog.Any("config", login),
		slog.Duration("run_timeout", cfg.RunTimeout),
	)
	res, err := runner.Run(ctx, provider, login)
	if err != nil {
		logger.Error("login failed",
			slog.String("kind", string(sociallogin.KindOf(err))),
			slog.String("err", err.Error()),
		)
		return 1
	}

	if out == "" {
		out = cfg.SessionStorePath
	}
	dump := cookies.Dump{
		Provider:   provider.String(),
		LoginURL:   login.LoginURL,
		CapturedAt: time.Now().UTC(),
		Cookies:    res.Cookies,
	}
	if err := cookies.WriteDump(out, dump); err != nil {
		logger.Error("write session", slog.String("path", out), slog.String("err", err.Error()))
		return 1
	}
	logger.Info("session saved", slog.String("path", out), slog.Int("cookies", len(res.Cookies)))

	if cfg.VerifyURL != "" {
		status, err := cookies.Verify(ctx, cfg.VerifyURL, res.Cookies)
		if err != nil {
			logger.Warn("session verify failed", slog.String("url", cfg.VerifyURL), slog.String("err", err.Error()))
		} else {
			logger.Info("session verified", slog.String("url", cfg.VerifyURL), slog.Int("status", status))
		}
	}
	return 0
}

func runServer(cfg config.Config, launcher sociallogin.Launcher, logger *slog.Logger) int {
	srv := server.NewHTTPServer(cfg, launcher, metrics.New(), logger)
	defer srv.Close()

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	failed := make(chan struct{})
	done := make(chan struct{})
	go func() {
		logger.Info("HTTP server listening", slog.Int("port", cfg.Server.Port))
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", slog.String("err", err.Error()))
			close(failed)
		}
		close(done)
	}()

	// Graceful shutdown
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
	case <-failed:
		return 1
	}

	logger.Info("shutting down...")
	// In-flight runs are bounded by run_timeout; give them that long to finish.
	shCtx, shCancel := context.WithTimeout(context.Background(), cfg.RunTimeout+8*time.Second)
	defer shCancel()

	_ = httpSrv.Shutdown(shCtx)
	<-done
	logger.Info("bye")
	return 0
}
