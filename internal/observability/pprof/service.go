// Package pprof serves the Go runtime profiling endpoints on a private
// HTTP listener, toggled from config.
package pprof

import (
	"context"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"sync"
	"time"

	logx "calbot/pkg/logx"
)

// Config controls the optional pprof HTTP endpoint.
type Config struct {
	Enabled bool
	Listen  string // default "127.0.0.1:6060"
	Token   string // required for non-loopback binds
}

// Service serves net/http/pprof behind an optional token. It is
// reload-safe: Apply starts, stops or rebinds the server to match cfg.
type Service struct {
	mu  sync.Mutex
	log logx.Logger

	srv  *http.Server
	ln   net.Listener
	addr string
	cfg  Config
}

func New(log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{log: log}
}

// Apply reconciles the running server with cfg.
func (s *Service) Apply(ctx context.Context, cfg Config) {
	cfg.Listen = strings.TrimSpace(cfg.Listen)
	if cfg.Listen == "" {
		cfg.Listen = "127.0.0.1:6060"
	}
	cfg.Token = strings.TrimSpace(cfg.Token)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !cfg.Enabled {
		s.stopLocked(ctx)
		s.cfg = cfg
		return
	}
	if s.srv != nil && s.cfg == cfg {
		return
	}
	s.stopLocked(ctx)
	s.cfg = cfg
	s.startLocked()
}

func (s *Service) startLocked() {
	cfg := s.cfg

	// A tokenless server must stay on loopback: pprof exposes heap contents.
	if cfg.Token == "" && !isLoopback(cfg.Listen) {
		s.log.Error("pprof refused: non-loopback listen without token",
			logx.String("addr", cfg.Listen))
		return
	}

	mux := http.NewServeMux()
	handle := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, withToken(cfg.Token, h))
	}
	handle("/debug/pprof/", hpprof.Index)
	handle("/debug/pprof/cmdline", hpprof.Cmdline)
	handle("/debug/pprof/profile", hpprof.Profile)
	handle("/debug/pprof/symbol", hpprof.Symbol)
	handle("/debug/pprof/trace", hpprof.Trace)

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		s.log.Warn("pprof listen failed", logx.String("addr", cfg.Listen), logx.Err(err))
		return
	}

	// No WriteTimeout: /debug/pprof/profile streams for its full duration.
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	s.srv = srv
	s.ln = ln
	s.addr = ln.Addr().String()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Warn("pprof server error", logx.Err(err))
		}
	}()
	s.log.Info("pprof listening", logx.String("addr", s.addr), logx.Bool("token_set", cfg.Token != ""))
}

// Stop shuts the server down. Safe when not running.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(ctx)
}

func (s *Service) stopLocked(ctx context.Context) {
	if s.srv == nil {
		return
	}
	srv, ln, addr := s.srv, s.ln, s.addr
	s.srv, s.ln, s.addr = nil, nil, ""

	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
	}
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Warn("pprof shutdown error", logx.Err(err))
	}
	if ln != nil {
		_ = ln.Close()
	}
	s.log.Info("pprof stopped", logx.String("addr", addr))
}

// Addr reports the bound address, empty when not running.
func (s *Service) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// withToken guards h: the token may arrive as ?token= or a bearer header.
func withToken(token string, h http.HandlerFunc) http.HandlerFunc {
	if token == "" {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") == token {
			h(w, r)
			return
		}
		const prefix = "Bearer "
		if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, prefix) &&
			strings.TrimSpace(strings.TrimPrefix(ah, prefix)) == token {
			h(w, r)
			return
		}
		w.Header().Set("WWW-Authenticate", "Bearer")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
