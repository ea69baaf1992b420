package agent

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"triagebot/internal/domain"
)

// maxVoiceChars bounds what gets sent to speech synthesis; longer replies
// are cut at a sentence-ish boundary.
const maxVoiceChars = 1000

// Command is a parsed slash command with its argument remainder.
type Command struct {
	Name string
	Args string
}

// ParseCommand splits "/pdf some topic" into name and args. Returns false
// for anything that is not a slash command. A "/cmd@BotName" suffix is
// stripped the way Telegram group chats send it.
func ParseCommand(text string) (Command, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return Command{}, false
	}
	name, args, _ := strings.Cut(text[1:], " ")
	if name == "" {
		return Command{}, false
	}
	if at := strings.Index(name, "@"); at >= 0 {
		name = name[:at]
	}
	return Command{Name: strings.ToLower(name), Args: strings.TrimSpace(args)}, true
}

// CommandResult is the reply produced by a command handler.
type CommandResult struct {
	Response string
	File     *domain.FileUpload
	Handled  bool
}

// handleCommand dispatches a slash command. Unknown commands return a hint
// instead of silence: every inbound message gets a reply.
func (l *Loop) handleCommand(ctx context.Context, msg domain.InboundMessage, cmd Command) CommandResult {
	switch cmd.Name {
	case "start":
		return CommandResult{Handled: true, Response: fmt.Sprintf(
			"Hello! I'm %s.\n\nSend me any message and I'll answer. Send me a file and I'll analyze it.\n\nCommands:\n/voice <text> — spoken reply\n/pdf <topic> — generate a PDF\n/word <topic> — generate a Word document\n/excel <topic> — generate a spreadsheet\n/recent — recent file analyses\n/clear — forget this conversation\n/status — bot status\n/help — this message",
			l.botName)}
	case "help":
		return CommandResult{Handled: true, Response: fmt.Sprintf(
			"%s commands:\n/voice <text> — answer out loud\n/pdf <topic> — research a topic and deliver a PDF\n/word <topic> — deliver a Word document\n/excel <topic> — deliver a spreadsheet\n/recent — your recent file analyses\n/clear — clear conversation history\n/status — bot status\n/uptime — time since start\n/version — build version\n\nAnything else: just ask, or drop a file on me.",
			l.botName)}
	case "status":
		return CommandResult{Handled: true, Response: fmt.Sprintf(
			"%s is running.\nVersion: %s\nUptime: %s",
			l.botName, l.version, time.Since(l.started).Round(time.Second))}
	case "uptime":
		return CommandResult{Handled: true, Response: fmt.Sprintf("Up for %s", time.Since(l.started).Round(time.Second))}
	case "version":
		return CommandResult{Handled: true, Response: fmt.Sprintf("%s %s", l.botName, l.version)}
	case "clear":
		return l.commandClear(ctx, msg)
	case "recent":
		return l.commandRecent(ctx, msg)
	case "voice":
		return l.commandVoice(ctx, msg, cmd.Args)
	case "pdf":
		return l.commandRender(ctx, msg, domain.FormatPDF, cmd.Args)
	case "word":
		return l.commandRender(ctx, msg, domain.FormatWord, cmd.Args)
	case "excel":
		return l.commandRender(ctx, msg, domain.FormatExcel, cmd.Args)
	default:
		return CommandResult{Handled: true, Response: "Unknown command. Type /help for the list."}
	}
}

func (l *Loop) commandClear(ctx context.Context, msg domain.InboundMessage) CommandResult {
	if l.store == nil {
		return CommandResult{Handled: true, Response: "Nothing to clear: history is disabled."}
	}
	conv, err := l.store.GetOrCreateConversation(ctx, chatKey(msg))
	if err == nil {
		err = l.store.ClearMessages(ctx, conv.ID)
	}
	if err != nil {
		l.logger.Error("clear history failed", "err", err)
		return CommandResult{Handled: true, Response: "Could not clear the conversation, try again."}
	}
	return CommandResult{Handled: true, Response: "Conversation cleared."}
}

func (l *Loop) commandRecent(ctx context.Context, msg domain.InboundMessage) CommandResult {
	if l.store == nil {
		return CommandResult{Handled: true, Response: "No analysis history: storage is disabled."}
	}
	recs, err := l.store.RecentAnalyses(ctx, chatKey(msg), 5)
	if err != nil {
		l.logger.Error("recent analyses lookup failed", "err", err)
		return CommandResult{Handled: true, Response: "Could not load your analysis history."}
	}
	if len(recs) == 0 {
		return CommandResult{Handled: true, Response: "No files analyzed yet. Send me one!"}
	}

	var sb strings.Builder
	sb.WriteString("Recent analyses:\n")
	for _, r := range recs {
		fmt.Fprintf(&sb, "• %s — %s, %s", r.FileName, r.Category, humanize.IBytes(uint64(r.BytesRead)))
		if r.Truncated {
			sb.WriteString(" (truncated)")
		}
		fmt.Fprintf(&sb, ", %s\n", humanize.Time(r.CreatedAt))
	}
	return CommandResult{Handled: true, Response: strings.TrimRight(sb.String(), "\n")}
}

func (l *Loop) commandVoice(ctx context.Context, msg domain.InboundMessage, args string) CommandResult {
	if args == "" {
		return CommandResult{Handled: true, Response: "Usage: /voice <what to say>"}
	}
	if l.synth == nil {
		return CommandResult{Handled: true, Response: "Voice replies are not configured."}
	}

	reply, err := l.chatWithHistory(ctx, msg, args)
	if err != nil {
		l.logger.Error("voice reasoning failed", "err", err)
		return CommandResult{Handled: true, Response: "I couldn't think of an answer right now, try again."}
	}

	spoken := trimForSpeech(reply)
	audio, err := l.synth.Synthesize(ctx, spoken)
	if err != nil {
		l.logger.Error("speech synthesis failed", "err", err)
		// Degrade to text so the user still gets the answer.
		return CommandResult{Handled: true, Response: reply}
	}
	defer audio.Close()

	data, err := io.ReadAll(audio)
	if err != nil || len(data) == 0 {
		l.logger.Error("reading synthesized audio failed", "err", err)
		return CommandResult{Handled: true, Response: reply}
	}

	return CommandResult{
		Handled: true,
		File: &domain.FileUpload{
			Name:  "reply.mp3",
			Data:  data,
			Voice: true,
		},
	}
}

func (l *Loop) commandRender(ctx context.Context, msg domain.InboundMessage, format domain.DocumentFormat, topic string) CommandResult {
	if topic == "" {
		return CommandResult{Handled: true, Response: fmt.Sprintf("Usage: /%s <topic>", formatCommand(format))}
	}
	if l.renderer == nil {
		return CommandResult{Handled: true, Response: "Document generation is not configured."}
	}

	prompt := fmt.Sprintf("Write a well-structured document about: %s\n\nUse clear headings and full sentences. Plain text only.", topic)
	if format == domain.FormatExcel {
		prompt = fmt.Sprintf("Produce tabular data about: %s\n\nReturn rows of comma-separated values with a header row. No commentary.", topic)
	}
	body, err := l.chatWithHistory(ctx, msg, prompt)
	if err != nil {
		l.logger.Error("document reasoning failed", "format", format, "err", err)
		return CommandResult{Handled: true, Response: "I couldn't draft the document right now, try again."}
	}

	data, err := l.renderer.Render(ctx, format, topic, body)
	if err != nil {
		l.logger.Error("document render failed", "format", format, "err", err)
		// Degrade to the drafted text so the work is not lost.
		return CommandResult{Handled: true, Response: body}
	}

	return CommandResult{
		Handled: true,
		File: &domain.FileUpload{
			Name:    fileNameFor(topic, format),
			Caption: fmt.Sprintf("Here is your %s on %q", strings.ToUpper(string(format)), topic),
			Data:    data,
		},
	}
}

func formatCommand(format domain.DocumentFormat) string {
	switch format {
	case domain.FormatWord:
		return "word"
	case domain.FormatExcel:
		return "excel"
	default:
		return "pdf"
	}
}

// fileNameFor builds a safe filename from the topic and format.
func fileNameFor(topic string, format domain.DocumentFormat) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(topic) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			sb.WriteByte('_')
		}
		if sb.Len() >= 40 {
			break
		}
	}
	name := strings.Trim(sb.String(), "_")
	if name == "" {
		name = "document"
	}
	return name + "." + string(format)
}

// trimForSpeech cuts long replies at a sentence boundary so the synthesized
// audio stays short.
func trimForSpeech(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxVoiceChars {
		return s
	}
	cut := strings.LastIndexAny(s[:maxVoiceChars], ".!?")
	if cut < maxVoiceChars/2 {
		cut = maxVoiceChars - 1
	}
	return s[:cut+1]
}
