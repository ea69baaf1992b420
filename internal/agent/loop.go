// Package agent routes inbound messages: slash commands, file analysis, or
// a reasoner round-trip, each with bounded concurrency and per-request
// timeouts.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"triagebot/internal/analysis"
	"triagebot/internal/domain"
	"triagebot/internal/metrics"
)

const (
	defaultConcurrency    = 5
	defaultHistoryLimit   = 20
	defaultRequestTimeout = 120 * time.Second
)

// HistoryStore is the persistence surface the loop needs. A nil store
// disables history and analysis records without disabling the bot.
type HistoryStore interface {
	GetOrCreateConversation(ctx context.Context, chatKey string) (*domain.Conversation, error)
	AppendMessage(ctx context.Context, conversationID, role, content string) error
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]domain.MessageRecord, error)
	ClearMessages(ctx context.Context, conversationID string) error
	RecordAnalysis(ctx context.Context, rec domain.AnalysisRecord) error
	RecentAnalyses(ctx context.Context, chatKey string, limit int) ([]domain.AnalysisRecord, error)
}

// Loop is the core engine: receive message, triage it, respond. Every
// inbound message produces exactly one logical reply.
type Loop struct {
	reasoner domain.Reasoner
	synth    domain.Synthesizer
	renderer domain.Renderer
	pipeline *analysis.Pipeline
	store    HistoryStore
	bus      domain.MessageBus
	logger   *slog.Logger

	botName        string
	version        string
	started        time.Time
	concurrency    int
	historyLimit   int
	requestTimeout time.Duration
}

// LoopConfig holds all dependencies and tuning parameters for the loop.
type LoopConfig struct {
	Reasoner       domain.Reasoner
	Synthesizer    domain.Synthesizer
	Renderer       domain.Renderer
	Pipeline       *analysis.Pipeline
	Store          HistoryStore
	Bus            domain.MessageBus
	Logger         *slog.Logger
	BotName        string
	Version        string
	Concurrency    int
	HistoryLimit   int
	RequestTimeout time.Duration
}

func NewLoop(cfg LoopConfig) *Loop {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = defaultHistoryLimit
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.BotName == "" {
		cfg.BotName = "ATLAS"
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Loop{
		reasoner:       cfg.Reasoner,
		synth:          cfg.Synthesizer,
		renderer:       cfg.Renderer,
		pipeline:       cfg.Pipeline,
		store:          cfg.Store,
		bus:            cfg.Bus,
		logger:         cfg.Logger,
		botName:        cfg.BotName,
		version:        cfg.Version,
		started:        time.Now(),
		concurrency:    cfg.Concurrency,
		historyLimit:   cfg.HistoryLimit,
		requestTimeout: cfg.RequestTimeout,
	}
}

// Run consumes inbound messages and processes them with bounded concurrency.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("agent loop started", "concurrency", l.concurrency)

	sem := make(chan struct{}, l.concurrency)
	inbound := l.bus.Subscribe()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("agent loop stopping")
			return
		case msg, ok := <-inbound:
			if !ok {
				l.logger.Info("inbound channel closed, agent loop stopping")
				return
			}
			// Acquire a worker slot without losing sight of cancellation:
			// a saturated pool must not delay shutdown.
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				l.logger.Info("agent loop stopping")
				return
			}
			go func(m domain.InboundMessage) {
				defer func() { <-sem }()
				l.processMessage(ctx, m)
			}(msg)
		}
	}
}

// processMessage handles a single inbound message and sends the response
// back through the message bus.
func (l *Loop) processMessage(ctx context.Context, msg domain.InboundMessage) {
	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	ctx, cancel := context.WithTimeout(ctx, l.requestTimeout)
	defer cancel()

	l.logger.Info("processing message",
		"channel", msg.Channel,
		"sender", msg.SenderID,
		"content_len", len(msg.Content),
		"has_attachment", msg.Attachment != nil,
	)

	if msg.Attachment != nil {
		l.handleAttachment(ctx, msg)
		return
	}

	if cmd, ok := ParseCommand(msg.Content); ok {
		result := l.handleCommand(ctx, msg, cmd)
		l.reply(msg, domain.OutboundMessage{Content: result.Response, File: result.File})
		return
	}

	reply, err := l.chatWithHistory(ctx, msg, msg.Content)
	if err != nil {
		l.logger.Error("reasoner failed", "err", err)
		l.reply(msg, domain.OutboundMessage{Content: "I couldn't reach my reasoning backend. Please try again in a moment."})
		return
	}
	l.reply(msg, domain.OutboundMessage{Content: reply})
}

// handleAttachment runs the triage pipeline over the attached file. The
// user gets an immediate acknowledgement, then the report; a caption turns
// into a follow-up question answered with the report as context.
func (l *Loop) handleAttachment(ctx context.Context, msg domain.InboundMessage) {
	att := msg.Attachment
	l.reply(msg, domain.OutboundMessage{Content: fmt.Sprintf("Analyzing %s…", att.Name)})

	stream, err := att.Open(ctx)
	if err != nil {
		l.logger.Error("attachment open failed", "file", att.Name, "err", err)
		l.reply(msg, domain.OutboundMessage{Content: fmt.Sprintf("I couldn't download %s: %v", att.Name, err)})
		return
	}
	defer stream.Close()

	report := l.pipeline.Analyze(ctx, att.Name, att.Size, stream)
	l.recordAnalysis(ctx, msg, report)
	// Summaries carry file names, hashes, and raw snippets that trip
	// Markdown parsing, so the report goes out unformatted.
	l.reply(msg, domain.OutboundMessage{Content: report.Summary, Format: "plain"})

	caption := msg.Content
	if caption == "" {
		return
	}
	if _, isCmd := ParseCommand(caption); isCmd {
		return
	}

	prompt := fmt.Sprintf("The user sent a file. Analysis report:\n%s\n\nTheir question about it: %s", report.Summary, caption)
	answer, err := l.chatWithHistory(ctx, msg, prompt)
	if err != nil {
		l.logger.Error("caption reasoning failed", "err", err)
		return
	}
	l.reply(msg, domain.OutboundMessage{Content: answer})
}

func (l *Loop) recordAnalysis(ctx context.Context, msg domain.InboundMessage, report analysis.Report) {
	if l.store == nil {
		return
	}
	err := l.store.RecordAnalysis(ctx, domain.AnalysisRecord{
		ID:           report.RequestID,
		ChatKey:      chatKey(msg),
		FileName:     report.FileName,
		DeclaredSize: report.DeclaredSize,
		BytesRead:    report.Result.BytesRead,
		Category:     string(report.Result.Category),
		Truncated:    report.Result.Truncated,
		Summary:      report.Summary,
	})
	if err != nil {
		l.logger.Error("recording analysis failed", "file", report.FileName, "err", err)
	}
}

// chatWithHistory runs one reasoner round-trip with the persisted history
// and records both turns. Storage failures degrade to stateless chat.
func (l *Loop) chatWithHistory(ctx context.Context, msg domain.InboundMessage, prompt string) (string, error) {
	var history []domain.ChatTurn
	var convID string

	if l.store != nil {
		conv, err := l.store.GetOrCreateConversation(ctx, chatKey(msg))
		if err != nil {
			l.logger.Warn("conversation lookup failed, replying stateless", "err", err)
		} else {
			convID = conv.ID
			records, err := l.store.RecentMessages(ctx, convID, l.historyLimit)
			if err != nil {
				l.logger.Warn("history lookup failed, replying stateless", "err", err)
			}
			for _, r := range records {
				history = append(history, domain.ChatTurn{Role: r.Role, Content: r.Content})
			}
		}
	}

	reply, err := l.reasoner.Chat(ctx, history, prompt)
	if err != nil {
		return "", err
	}

	if convID != "" {
		if err := l.store.AppendMessage(ctx, convID, "user", prompt); err != nil {
			l.logger.Warn("persisting user turn failed", "err", err)
		}
		if err := l.store.AppendMessage(ctx, convID, "assistant", reply); err != nil {
			l.logger.Warn("persisting assistant turn failed", "err", err)
		}
	}
	return reply, nil
}

func (l *Loop) reply(msg domain.InboundMessage, out domain.OutboundMessage) {
	if out.Content == "" && out.File == nil {
		return
	}
	out.Channel = msg.Channel
	out.ChatID = msg.ChatID
	l.bus.SendOutbound(out)
}

// chatKey identifies a conversation across restarts: channel plus chat id.
func chatKey(msg domain.InboundMessage) string {
	return msg.Channel + ":" + msg.ChatID
}
