package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"triagebot/internal/agent"
	"triagebot/internal/analysis"
	"triagebot/internal/bus"
	"triagebot/internal/channel"
	"triagebot/internal/config"
	"triagebot/internal/domain"
	"triagebot/internal/memory"
	"triagebot/internal/provider"
)

var (
	version    = "1.0.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	// A .env next to the binary keeps local runs simple; absence is fine.
	_ = godotenv.Load()

	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "triagebot",
		Short: "Telegram assistant with universal file analysis",
		Long:  "A Telegram chat assistant that answers questions, analyzes any file thrown at it, and delivers voice and document replies.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: ~/.triagebot/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(serveCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(configCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if _, err := os.Stat(cfgPath); err == nil {
				return fmt.Errorf("config already exists at %s", cfgPath)
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check config and reasoner health",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false, "err", err)
				cfg = config.Defaults()
			} else {
				logger.Info("config", "path", cfgPath, "loaded", true)
			}

			reasoner := newReasoner(cfg)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := reasoner.Healthy(ctx); err != nil {
				logger.Info("reasoner", "name", reasoner.Name(), "healthy", false, "err", err)
			} else {
				logger.Info("reasoner", "name", reasoner.Name(), "healthy", true)
			}
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. channels.web.port)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. channels.web.port 9000)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values (secrets masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, _ := json.MarshalIndent(config.Sanitize(cfg), "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the bot (Telegram polling + health server + agent loop)",
		Long:  "Starts the Telegram channel, the HTTP health endpoints, and the message loop. Press Ctrl+C to stop.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults with environment credentials", "path", cfgPath, "err", err)
		cfg = config.Defaults()
		// Defaults reference ${VAR} placeholders; expand them now.
		cfg.Channels.Telegram.Token = envExpand(cfg.Channels.Telegram.Token)
		cfg.Reasoner.APIKey = envExpand(cfg.Reasoner.APIKey)
	}
	if err := config.CheckRequired(cfg); err != nil {
		return err
	}

	if lvl := parseLogLevel(cfg.General.LogLevel); lvl != slog.LevelInfo {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	messageBus := bus.New(100, logger)

	var store agent.HistoryStore
	var memStore *memory.SQLiteStore
	if cfg.Memory.Enabled {
		memStore, err = memory.NewSQLiteStore(cfg.Memory.DBPath, logger)
		if err != nil {
			return fmt.Errorf("memory store: %w", err)
		}
		defer memStore.Close()
		store = memStore
	} else {
		logger.Info("memory disabled, running stateless")
	}

	reasoner := newReasoner(cfg)
	if err := reasoner.Healthy(ctx); err != nil {
		logger.Warn("reasoner unhealthy at startup", "err", err)
	} else {
		logger.Info("reasoner healthy", "name", reasoner.Name())
	}

	var synth domain.Synthesizer
	if cfg.Speech.Enabled {
		synth = provider.NewTTSProvider(provider.TTSConfig{
			Provider: cfg.Speech.Provider,
			APIBase:  cfg.Speech.APIBase,
			APIKey:   cfg.Speech.APIKey,
			Model:    cfg.Speech.Model,
			Voice:    cfg.Speech.Voice,
			Logger:   logger,
		})
	}

	var renderer domain.Renderer
	if cfg.Renderer.Enabled {
		renderer = provider.NewRenderService(provider.RenderConfig{
			APIBase: cfg.Renderer.APIBase,
			APIKey:  cfg.Renderer.APIKey,
			Logger:  logger,
		})
	}

	pipeline := analysis.NewPipeline(analysis.PipelineConfig{
		SniffWindow:     cfg.Analysis.SniffWindow,
		ByteBudget:      int64(cfg.Analysis.ByteBudget),
		Timeout:         time.Duration(cfg.Analysis.TimeoutSeconds) * time.Second,
		MaxSummaryChars: cfg.Analysis.MaxSummaryChars,
	}, logger)

	loop := agent.NewLoop(agent.LoopConfig{
		Reasoner:       reasoner,
		Synthesizer:    synth,
		Renderer:       renderer,
		Pipeline:       pipeline,
		Store:          store,
		Bus:            messageBus,
		Logger:         logger,
		BotName:        cfg.General.BotName,
		Version:        version,
		Concurrency:    cfg.General.MaxConcurrentMessages,
		HistoryLimit:   cfg.Memory.MaxHistoryPerConversation,
		RequestTimeout: time.Duration(cfg.General.RequestTimeoutSeconds) * time.Second,
	})
	go loop.Run(ctx)

	var channels []domain.Channel

	var telegramCh *channel.Telegram
	if cfg.Channels.Telegram.Enabled {
		telegramCh = channel.NewTelegram(channel.TelegramConfig{
			Token:     cfg.Channels.Telegram.Token,
			AllowFrom: cfg.Channels.Telegram.AllowFrom,
			ParseMode: cfg.Channels.Telegram.ParseMode,
			Logger:    logger,
		})
		channels = append(channels, telegramCh)
		logger.Info("telegram channel enabled")
	} else {
		logger.Info("telegram channel disabled")
	}

	if cfg.Channels.Web.Enabled {
		var status channel.StatusSource
		if telegramCh != nil {
			status = telegramCh
		}
		channels = append(channels, channel.NewWeb(channel.WebConfig{
			Host:    cfg.Channels.Web.Host,
			Port:    cfg.Channels.Web.Port,
			BotName: cfg.General.BotName,
			Version: version,
			Status:  status,
			Logger:  logger,
		}))
	}

	for _, ch := range channels {
		go func(c domain.Channel) {
			if err := c.Start(ctx, messageBus); err != nil {
				logger.Error("channel error", "channel", c.Name(), "err", err)
			}
		}(ch)
	}

	logger.Info("bot started. Press Ctrl+C to stop.")

	<-ctx.Done()
	logger.Info("shutting down...")

	const shutdownTimeout = 10 * time.Second
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, ch := range channels {
			if err := ch.Stop(); err != nil {
				logger.Warn("channel stop failed", "channel", ch.Name(), "err", err)
			}
		}
		messageBus.Close()
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
		return nil
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
		return fmt.Errorf("shutdown timed out")
	}
}

func newReasoner(cfg *config.Config) *provider.Groq {
	return provider.NewGroq(provider.GroqConfig{
		APIKey:       cfg.Reasoner.APIKey,
		APIBase:      cfg.Reasoner.APIBase,
		Model:        cfg.Reasoner.Model,
		SystemPrompt: cfg.Reasoner.SystemPrompt,
		MaxTokens:    cfg.Reasoner.MaxTokens,
		Logger:       logger,
	})
}

// envExpand resolves ${VAR} placeholders and clears any left unresolved.
func envExpand(s string) string {
	out := config.ExpandEnvVars(s)
	if strings.HasPrefix(out, "${") {
		return ""
	}
	return out
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
