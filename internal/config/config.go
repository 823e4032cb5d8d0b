package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"

	"social-login/internal/sociallogin"
)

type Config struct {
	LogLevel         string                  `yaml:"log_level" env:"SOCIAL_LOGIN_LOG_LEVEL"`
	Provider         string                  `yaml:"provider" env:"SOCIAL_LOGIN_PROVIDER"`
	Login            sociallogin.LoginConfig `yaml:"login"`
	Browser          BrowserConfig           `yaml:"browser"`
	RunTimeout       time.Duration           `yaml:"run_timeout" env:"SOCIAL_LOGIN_RUN_TIMEOUT"`
	SessionStorePath string                  `yaml:"session_store_path" env:"SOCIAL_LOGIN_SESSION_STORE"`
	VerifyURL        string                  `yaml:"verify_url" env:"SOCIAL_LOGIN_VERIFY_URL"`
	Server           ServerConfig            `yaml:"server"`
}

type BrowserConfig struct {
	ExecPath    string `yaml:"exec_path" env:"SOCIAL_LOGIN_CHROME_PATH"`
	UserDataDir string `yaml:"user_data_dir" env:"SOCIAL_LOGIN_USER_DATA_DIR"`
	Quiet       bool   `yaml:"quiet" env:"SOCIAL_LOGIN_CHROME_QUIET"`
}

type ServerConfig struct {
	Port int `yaml:"port" env:"SOCIAL_LOGIN_PORT"`
	// RatePerMinute limits POST /api/login across all clients.
	RatePerMinute int `yaml:"rate_per_minute" env:"SOCIAL_LOGIN_RATE_PER_MINUTE"`
}

func defaults() Config {
	return Config{
		LogLevel: "info",
		Provider: string(sociallogin.Google),
		Login: sociallogin.LoginConfig{
			Timeout: sociallogin.DefaultTimeout,
		},
		Browser:          BrowserConfig{Quiet: true},
		RunTimeout:       5 * time.Minute,
		SessionStorePath: "./data/session.json",
		Server: ServerConfig{
			Port:          8087,
			RatePerMinute: 6,
		},
	}
}

// Load reads path over the defaults, then applies SOCIAL_LOGIN_* environment
// overrides. Unset variables keep the file or default value. A missing file
// is not an error: credentials commonly come from the environment alone.
func Load(path string) (Config, error) {
	cfg := defaults()
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse yaml: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("read env: %w", err)
	}

	// Validation & normalization
	p, err := sociallogin.ParseProvider(cfg.Provider)
	if err != nil {
		return cfg, err
	}
	cfg.Provider = string(p)
	if cfg.Login.Timeout <= 0 {
		return cfg, errors.New("login.timeout must be > 0")
	}
	if cfg.RunTimeout < cfg.Login.Timeout {
		return cfg, errors.New("run_timeout must be >= login.timeout")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return cfg, errors.New("invalid port")
	}
	if cfg.Server.RatePerMinute < 1 {
		return cfg, errors.New("server.rate_per_minute must be >=1")
	}
	return cfg, nil
}

func NewLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	h := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(h)
}
