package domain

import (
	"context"
	"io"
)

// ChatTurn is one prior exchange replayed to the reasoner for context.
type ChatTurn struct {
	Role    string // user | assistant
	Content string
}

// Reasoner is the remote LLM reached over a request/response API.
type Reasoner interface {
	Name() string
	Chat(ctx context.Context, history []ChatTurn, prompt string) (string, error)
	Healthy(ctx context.Context) error
}

// Synthesizer converts text to a speech audio stream (MP3).
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (io.ReadCloser, error)
}

// DocumentFormat selects the output of the document renderer.
type DocumentFormat string

const (
	FormatPDF   DocumentFormat = "pdf"
	FormatWord  DocumentFormat = "docx"
	FormatExcel DocumentFormat = "xlsx"
)

// Renderer produces an office-document byte blob from a title and body.
// The encoding itself happens in an external service.
type Renderer interface {
	Render(ctx context.Context, format DocumentFormat, title, body string) ([]byte, error)
}
