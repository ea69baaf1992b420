package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			BotName:               "ATLAS",
			LogLevel:              "info",
			MaxConcurrentMessages: 5,
			RequestTimeoutSeconds: 120,
		},
		Reasoner: ReasonerConfig{
			APIBase:   "https://api.groq.com/openai/v1",
			APIKey:    "${GROQ_API_KEY}",
			Model:     "llama-3.3-70b-versatile",
			MaxTokens: 1024,
		},
		Speech: SpeechConfig{
			Enabled:  false,
			Provider: "openai",
			Model:    "tts-1",
			Voice:    "alloy",
		},
		Renderer: RendererConfig{
			Enabled: false,
		},
		Channels: ChannelsConfig{
			Telegram: TelegramConfig{
				Enabled:   true,
				Token:     "${TELEGRAM_BOT_TOKEN}",
				ParseMode: "Markdown",
			},
			Web: WebConfig{
				Enabled: true,
				Host:    "0.0.0.0",
				Port:    8000,
			},
		},
		Analysis: AnalysisConfig{
			SniffWindow:     4096,
			ByteBudget:      1 << 20,
			TimeoutSeconds:  30,
			MaxSummaryChars: 3500,
		},
		Memory: MemoryConfig{
			Enabled:                   true,
			DBPath:                    "~/.triagebot/memory.db",
			MaxHistoryPerConversation: 20,
		},
	}
}
