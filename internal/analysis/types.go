// Package analysis implements the file triage pipeline: classify an inbound
// file from a capped byte prefix, pick an extraction strategy, bound the read
// with a byte and wall-clock budget, and aggregate a human-readable report.
package analysis

import "io"

// Category is the coarse classification of an inbound file. Exactly one
// category applies per file; Unknown is the fallback when sniffing is
// inconclusive.
type Category string

const (
	CategoryDocument    Category = "document"
	CategorySpreadsheet Category = "spreadsheet"
	CategoryImage       Category = "image"
	CategoryAudio       Category = "audio"
	CategoryVideo       Category = "video"
	CategoryArchive     Category = "archive"
	CategoryCode        Category = "code"
	CategoryDatabase    Category = "database"
	CategoryBinary      Category = "binary"
	CategoryUnknown     Category = "unknown"
)

// SourceFile is the (name, declared size, byte stream) tuple handed over by
// the delivery channel. The stream is consumed at most once and never
// retained past the analysis call.
type SourceFile struct {
	Name         string
	DeclaredSize int64
	Reader       io.Reader
}

// Result is the outcome of one extraction strategy run. Truncated is set
// whenever the byte stream was not read to completion.
type Result struct {
	Category    Category
	TextSnippet string
	Metadata    map[string]string
	Structure   []string
	Truncated   bool
	BytesRead   int64
}

// Report pairs the file identity with its extraction result and the
// rendered summary. Immutable after construction.
type Report struct {
	RequestID    string
	FileName     string
	DeclaredSize int64
	Result       Result
	Summary      string
}
