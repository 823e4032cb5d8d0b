package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"social-login/internal/config"
	"social-login/internal/metrics"
	"social-login/internal/sociallogin"
)

// HTTPServer exposes login runs to test suites that cannot drive a browser
// themselves. Only one run is in flight at a time.
type HTTPServer struct {
	launcher   sociallogin.Launcher
	metrics    *metrics.Metrics
	limiter    *rate.Limiter
	runTimeout time.Duration
	busy       atomic.Bool
	hub        *hub
	log        *slog.Logger
	mux        *http.ServeMux
}

func NewHTTPServer(cfg config.Config, launcher sociallogin.Launcher, m *metrics.Metrics, logger *slog.Logger) *HTTPServer {
	perMinute := cfg.Server.RatePerMinute
	s := &HTTPServer{
		launcher:   launcher,
		metrics:    m,
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute),
		runTimeout: cfg.RunTimeout,
		hub:        newHub(logger),
		log:        logger,
		mux:        http.NewServeMux(),
	}
	s.routes()
	go s.hub.run()
	return s
}

func (s *HTTPServer) Router() http.Handler { return s.mux }

// Close disconnects websocket clients.
func (s *HTTPServer) Close() { s.hub.stop() }

func (s *HTTPServer) routes() {
	s.mux.HandleFunc("GET /api/health", s.apiHealth)
	s.mux.HandleFunc("GET /api/providers", s.apiProviders)
	s.mux.HandleFunc("POST /api/login/{provider}", s.apiLogin)
	s.mux.HandleFunc("/ws", s.hub.serveWS)
	s.mux.Handle("GET /metrics", s.metrics.Handler())
}

func (s *HTTPServer) apiHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"busy": s.busy.Load(),
	})
}

func (s *HTTPServer) apiProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"providers": sociallogin.Providers()})
}

// loginRequest is a LoginConfig with a human-readable timeout ("45s").
type loginRequest struct {
	sociallogin.LoginConfig
	Timeout string `json:"timeout,omitempty"`
}

type loginResponse struct {
	RunID    string               `json:"runId"`
	Provider sociallogin.Provider `json:"provider"`
	Cookies  []sociallogin.Cookie `json:"cookies"`
}

type errorResponse struct {
	RunID string `json:"runId,omitempty"`
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Step  string `json:"step,omitempty"`
}

// POST /api/login/{provider} { "username": ..., "password": ..., "loginUrl": ... }
func (s *HTTPServer) apiLogin(w http.ResponseWriter, r *http.Request) {
	provider, err := sociallogin.ParseProvider(r.PathValue("provider"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "bad json"})
		return
	}
	cfg := req.LoginConfig
	if req.Timeout != "" {
		d, err := time.ParseDuration(req.Timeout)
		if err != nil || d <= 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "timeout must be a positive duration"})
			return
		}
		cfg.Timeout = d
	}

	// Busy is checked first so callers polling during a run do not spend
	// rate tokens.
	if !s.busy.CompareAndSwap(false, true) {
		writeJSON(w, http.StatusConflict, errorResponse{Error: "a login run is already in progress"})
		return
	}
	defer s.busy.Store(false)
	if !s.limiter.Allow() {
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "too many login runs"})
		return
	}

	runID := uuid.NewString()
	log := s.log.With(slog.String("run_id", runID))
	runner := sociallogin.NewRunner(s.launcher,
		sociallogin.WithLogger(log),
		sociallogin.WithObserver(func(ev sociallogin.Event) { s.observe(runID, ev) }),
	)

	ctx, cancel := context.WithTimeout(r.Context(), s.runTimeout)
	defer cancel()

	log.Info("login run starting", slog.String("provider", provider.String()), slog.Any("config", cfg))
	start := time.Now()
	res, err := runner.Run(ctx, provider, cfg)
	s.metrics.ObserveRun(provider, err, time.Since(start))
	if err != nil {
		log.Warn("login run failed", slog.String("err", err.Error()))
		writeRunError(w, runID, err)
		return
	}
	log.Info("login run done", slog.Int("cookies", len(res.Cookies)), slog.Duration("elapsed", time.Since(start)))
	writeJSON(w, http.StatusOK, loginResponse{RunID: runID, Provider: provider, Cookies: res.Cookies})
}

func (s *HTTPServer) observe(runID string, ev sociallogin.Event) {
	s.metrics.ObserveStep(ev)
	payload := map[string]any{
		"runId":    runID,
		"provider": ev.Provider,
		"step":     ev.Step,
		"timeISO":  ev.Time.UTC().Format(time.RFC3339Nano),
	}
	if ev.Err != nil {
		payload["error"] = ev.Err.Error()
	}
	s.hub.publish("step", payload)
}

func writeRunError(w http.ResponseWriter, runID string, err error) {
	resp := errorResponse{RunID: runID, Error: err.Error()}
	status := http.StatusBadGateway
	var runErr *sociallogin.Error
	if errors.As(err, &runErr) {
		resp.Kind = string(runErr.Kind)
		resp.Step = string(runErr.Step)
		switch runErr.Kind {
		case sociallogin.KindInvalidConfiguration:
			status = http.StatusBadRequest
		case sociallogin.KindElementTimeout:
			status = http.StatusGatewayTimeout
		}
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
