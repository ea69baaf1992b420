package domain

import (
	"context"
	"io"
	"time"
)

// Attachment is a file delivered by a channel. The byte stream is opened
// lazily so large files are never buffered before the analysis pipeline
// gets a chance to bound the read.
type Attachment struct {
	Name string
	Size int64 // declared size as reported by the transport; may be 0 or wrong
	Open func(ctx context.Context) (io.ReadCloser, error)
}

type InboundMessage struct {
	Channel    string
	ChatID     string
	SenderID   string
	SenderName string
	Content    string
	Attachment *Attachment // non-nil when the message carries a file
	Timestamp  time.Time
}

// FileUpload is an outbound attachment (rendered document or synthesized
// voice clip) delivered alongside or instead of text.
type FileUpload struct {
	Name    string
	Caption string
	Data    []byte
	Voice   bool // deliver as a voice note rather than a document
}

type OutboundMessage struct {
	Channel string
	ChatID  string
	Content string
	Format  string // rendering hint: text | markdown | html; empty keeps the channel default
	File    *FileUpload
}
