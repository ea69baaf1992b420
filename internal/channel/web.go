package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"triagebot/internal/domain"
	"triagebot/internal/metrics"
)

// StatusSource reports the state the health endpoints expose.
type StatusSource interface {
	Snapshot() domain.ChannelStatus
}

// Web serves the operational HTTP surface: liveness, bot status, and
// Prometheus metrics. It carries no chat traffic.
type Web struct {
	host    string
	port    int
	botName string
	version string
	status  StatusSource
	logger  *slog.Logger
	server  *http.Server
	started time.Time
}

type WebConfig struct {
	Host    string
	Port    int
	BotName string
	Version string
	Status  StatusSource
	Logger  *slog.Logger
}

func NewWeb(cfg WebConfig) *Web {
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.BotName == "" {
		cfg.BotName = "bot"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Web{
		host:    cfg.Host,
		port:    cfg.Port,
		botName: cfg.BotName,
		version: cfg.Version,
		status:  cfg.Status,
		logger:  cfg.Logger,
	}
}

func (w *Web) Name() string { return "web" }

// Start runs the HTTP server until the context is cancelled.
func (w *Web) Start(ctx context.Context, _ domain.MessageBus) error {
	w.started = time.Now()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /", w.handleRoot)
	mux.HandleFunc("GET /health", w.handleHealth)
	mux.HandleFunc("GET /bot/status", w.handleBotStatus)
	mux.Handle("GET /metrics", metrics.Collector.Handler())

	addr := fmt.Sprintf("%s:%d", w.host, w.port)
	w.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	w.logger.Info("health server started", "addr", "http://"+addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		w.server.Shutdown(shutdownCtx)
	}()

	if err := w.server.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (w *Web) Stop() error {
	if w.server != nil {
		return w.server.Close()
	}
	return nil
}

// Send is a no-op: this channel has no chat surface.
func (w *Web) Send(ctx context.Context, chatID string, content string) error {
	return nil
}

func (w *Web) handleRoot(rw http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(rw, r)
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{
		"service": w.botName,
		"version": w.version,
		"status":  "running",
	})
}

func (w *Web) handleHealth(rw http.ResponseWriter, _ *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]any{
		"status":         "healthy",
		"uptime_seconds": int64(time.Since(w.started).Seconds()),
	})
}

func (w *Web) handleBotStatus(rw http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"service": w.botName,
		"version": w.version,
	}
	if w.status != nil {
		snap := w.status.Snapshot()
		body["channel"] = snap
		if !snap.Running {
			writeJSON(rw, http.StatusServiceUnavailable, body)
			return
		}
	}
	writeJSON(rw, http.StatusOK, body)
}

func writeJSON(rw http.ResponseWriter, status int, body any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(body)
}
