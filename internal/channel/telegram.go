// Package channel implements the delivery adapters: Telegram long polling
// for chat traffic and a small HTTP server for health and metrics.
package channel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"triagebot/internal/domain"
	"triagebot/internal/metrics"
)

const (
	telegramMaxMsgLen      = 4000
	telegramMaxSendRetries = 3
)

// Telegram implements domain.Channel over the Telegram Bot API with long
// polling. Attachments are handed to the agent as lazy streams so the file
// is only downloaded when the pipeline reads it.
type Telegram struct {
	token     string
	allowFrom []int64 // Allowed user IDs (empty = allow all)
	parseMode string

	bot    *tgbotapi.BotAPI
	bus    domain.MessageBus
	logger *slog.Logger

	mu         sync.Mutex
	username   string
	lastUpdate time.Time
	running    bool
}

type TelegramConfig struct {
	Token     string
	AllowFrom []string // User IDs as strings
	ParseMode string
	Logger    *slog.Logger
}

func NewTelegram(cfg TelegramConfig) *Telegram {
	var allowed []int64
	for _, s := range cfg.AllowFrom {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
			allowed = append(allowed, id)
		}
	}
	if cfg.ParseMode == "" {
		cfg.ParseMode = "Markdown"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Telegram{
		token:     cfg.Token,
		allowFrom: allowed,
		parseMode: cfg.ParseMode,
		logger:    cfg.Logger,
	}
}

func (t *Telegram) Name() string { return "telegram" }

// Snapshot reports the channel state for the health endpoints.
func (t *Telegram) Snapshot() domain.ChannelStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return domain.ChannelStatus{
		Name:       "telegram",
		Running:    t.running,
		Username:   t.username,
		LastUpdate: t.lastUpdate,
	}
}

// Start connects to Telegram and begins polling for updates.
func (t *Telegram) Start(ctx context.Context, bus domain.MessageBus) error {
	t.bus = bus

	bot, err := tgbotapi.NewBotAPI(t.token)
	if err != nil {
		return fmt.Errorf("telegram bot init: %w", err)
	}
	t.bot = bot
	t.mu.Lock()
	t.username = bot.Self.UserName
	t.running = true
	t.mu.Unlock()
	t.logger.Info("telegram bot connected",
		"username", bot.Self.UserName,
		"id", bot.Self.ID,
	)

	bus.OnOutbound("telegram", func(msg domain.OutboundMessage) {
		chatID, err := strconv.ParseInt(msg.ChatID, 10, 64)
		if err != nil {
			t.logger.Error("invalid chat ID for telegram outbound", "chatID", msg.ChatID, "err", err)
			return
		}
		if msg.File != nil {
			t.sendFile(chatID, msg.File)
		}
		if msg.Content != "" {
			t.sendMessageAs(chatID, msg.Content, t.parseModeFor(msg.Format))
		}
	})

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := bot.GetUpdatesChan(u)

	t.logger.Info("telegram polling started")

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("telegram channel stopping")
			bot.StopReceivingUpdates()
			t.mu.Lock()
			t.running = false
			t.mu.Unlock()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.mu.Lock()
			t.lastUpdate = time.Now()
			t.mu.Unlock()
			t.handleUpdate(update)
		}
	}
}

// Stop is a no-op: the bot stops when Start's context is cancelled.
// Calling StopReceivingUpdates twice panics.
func (t *Telegram) Stop() error {
	return nil
}

func (t *Telegram) Send(ctx context.Context, chatID string, content string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID: %w", err)
	}
	t.sendMessage(id, content)
	return nil
}

func (t *Telegram) handleUpdate(update tgbotapi.Update) {
	if update.Message == nil || update.Message.From == nil || update.Message.Chat == nil {
		return
	}

	msg := update.Message
	userID := msg.From.ID
	chatID := msg.Chat.ID

	if !t.isAllowed(userID) {
		t.logger.Warn("unauthorized telegram user",
			"user_id", userID,
			"username", msg.From.UserName,
		)
		t.sendMessage(chatID, "Unauthorized. Your user ID is not in the allow list.")
		return
	}

	attachment := t.extractAttachment(msg)
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = strings.TrimSpace(msg.Caption)
	}
	if text == "" && attachment == nil {
		return
	}

	t.logger.Info("telegram message received",
		"user_id", userID,
		"chat_id", chatID,
		"text_len", len(text),
		"has_attachment", attachment != nil,
	)
	metrics.MessagesTotal.Inc()

	typing := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	_, _ = t.bot.Send(typing)

	t.bus.Publish(domain.InboundMessage{
		Channel:    "telegram",
		ChatID:     strconv.FormatInt(chatID, 10),
		SenderID:   strconv.FormatInt(userID, 10),
		SenderName: msg.From.UserName,
		Content:    text,
		Attachment: attachment,
		Timestamp:  time.Unix(int64(msg.Date), 0),
	})
}

// extractAttachment maps whatever file kind the update carries to a single
// lazy attachment. Photos pick the largest rendition.
func (t *Telegram) extractAttachment(msg *tgbotapi.Message) *domain.Attachment {
	var fileID, name string
	var size int64

	switch {
	case msg.Document != nil:
		fileID = msg.Document.FileID
		name = msg.Document.FileName
		size = int64(msg.Document.FileSize)
	case len(msg.Photo) > 0:
		best := msg.Photo[len(msg.Photo)-1]
		fileID = best.FileID
		name = "photo.jpg"
		size = int64(best.FileSize)
	case msg.Audio != nil:
		fileID = msg.Audio.FileID
		name = msg.Audio.FileName
		if name == "" {
			name = "audio.mp3"
		}
		size = int64(msg.Audio.FileSize)
	case msg.Voice != nil:
		fileID = msg.Voice.FileID
		name = "voice.ogg"
		size = int64(msg.Voice.FileSize)
	case msg.Video != nil:
		fileID = msg.Video.FileID
		name = msg.Video.FileName
		if name == "" {
			name = "video.mp4"
		}
		size = int64(msg.Video.FileSize)
	case msg.VideoNote != nil:
		fileID = msg.VideoNote.FileID
		name = "video_note.mp4"
		size = int64(msg.VideoNote.FileSize)
	default:
		return nil
	}
	if name == "" {
		name = "file"
	}

	return &domain.Attachment{
		Name: name,
		Size: size,
		Open: func(ctx context.Context) (io.ReadCloser, error) {
			url, err := t.bot.GetFileDirectURL(fileID)
			if err != nil {
				return nil, fmt.Errorf("resolve telegram file: %w", err)
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return nil, err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return nil, fmt.Errorf("download telegram file: %w", err)
			}
			if resp.StatusCode != http.StatusOK {
				resp.Body.Close()
				return nil, fmt.Errorf("telegram file download: HTTP %d", resp.StatusCode)
			}
			return resp.Body, nil
		},
	}
}

func (t *Telegram) isAllowed(userID int64) bool {
	if len(t.allowFrom) == 0 {
		return true // Empty list = allow all
	}
	for _, id := range t.allowFrom {
		if id == userID {
			return true
		}
	}
	return false
}

// sendFile uploads a document or voice note from in-memory bytes.
func (t *Telegram) sendFile(chatID int64, file *domain.FileUpload) {
	payload := tgbotapi.FileBytes{Name: file.Name, Bytes: file.Data}

	var err error
	if file.Voice {
		voice := tgbotapi.NewVoice(chatID, payload)
		voice.Caption = file.Caption
		_, err = t.bot.Send(voice)
	} else {
		doc := tgbotapi.NewDocument(chatID, payload)
		doc.Caption = file.Caption
		_, err = t.bot.Send(doc)
	}
	if err != nil {
		t.logger.Error("telegram file send failed", "file", file.Name, "err", err)
		t.sendMessage(chatID, fmt.Sprintf("Could not deliver %s: %v", file.Name, err))
	}
}

// parseModeFor maps an outbound format hint to a Telegram parse mode. An
// empty hint keeps the configured default; "plain" and "text" disable
// formatting so content with literal underscores or brackets survives.
func (t *Telegram) parseModeFor(format string) string {
	switch strings.ToLower(format) {
	case "plain", "text":
		return ""
	case "markdown":
		return tgbotapi.ModeMarkdown
	case "html":
		return tgbotapi.ModeHTML
	default:
		return t.parseMode
	}
}

func (t *Telegram) sendMessage(chatID int64, text string) {
	t.sendMessageAs(chatID, text, t.parseMode)
}

func (t *Telegram) sendMessageAs(chatID int64, text, parseMode string) {
	// Telegram has a 4096 char limit per message
	const maxLen = telegramMaxMsgLen
	for len(text) > 0 {
		chunk := text
		if len(chunk) > maxLen {
			cutAt := strings.LastIndex(chunk[:maxLen], "\n")
			if cutAt < maxLen/2 {
				cutAt = maxLen
			}
			chunk = text[:cutAt]
			text = text[cutAt:]
		} else {
			text = ""
		}

		t.sendChunk(chatID, chunk, parseMode)
	}
}

// sendChunk sends a single message chunk with retry and rate limit handling.
// Strategy: try the parse mode first, on parse error fallback to plain text,
// then retry with backoff.
func (t *Telegram) sendChunk(chatID int64, text, parseMode string) {
	const maxRetries = telegramMaxSendRetries

	for attempt := 0; attempt <= maxRetries; attempt++ {
		msg := tgbotapi.NewMessage(chatID, text)
		if attempt == 0 && parseMode != "" {
			msg.ParseMode = parseMode
		}
		// On subsequent attempts: send as plain text (parse mode may be malformed).

		_, err := t.bot.Send(msg)
		if err == nil {
			return
		}

		errStr := err.Error()

		// Handle Telegram rate limiting (HTTP 429).
		if strings.Contains(errStr, "Too Many Requests") || strings.Contains(errStr, "429") {
			retryAfter := time.Duration(attempt+1) * 3 * time.Second
			t.logger.Warn("telegram rate limited, backing off",
				"retry_after", retryAfter, "attempt", attempt+1,
			)
			time.Sleep(retryAfter)
			continue
		}

		// Markdown parse error on first attempt: immediately retry as plain text.
		if attempt == 0 && msg.ParseMode != "" &&
			strings.Contains(errStr, "can't parse entities") {
			t.logger.Warn("telegram markdown parse error, retrying as plain text",
				"err", err, "parseMode", parseMode,
			)
			plainMsg := tgbotapi.NewMessage(chatID, text)
			if _, err2 := t.bot.Send(plainMsg); err2 == nil {
				return
			}
			// Plain also failed, fall through to backoff loop.
		}

		// Exponential backoff for other transient errors.
		if attempt < maxRetries {
			backoff := time.Duration(attempt+1) * time.Second
			t.logger.Warn("telegram send error, retrying", "err", err, "backoff", backoff)
			time.Sleep(backoff)
			continue
		}

		t.logger.Error("telegram send failed after retries", "err", err, "attempts", maxRetries+1)
	}
}
