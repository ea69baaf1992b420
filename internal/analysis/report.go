package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
)

// DefaultMaxSummaryChars bounds the rendered summary so it fits comfortably
// inside a chat message.
const DefaultMaxSummaryChars = 3500

// Aggregator renders an extraction result into the human-readable summary
// that gets sent back to the user. Rendering is deterministic: the same
// result always produces the same summary.
type Aggregator struct {
	MaxSummaryChars int
}

// Summarize builds the report text for a single analyzed file.
func (a Aggregator) Summarize(fileName string, declaredSize int64, res Result) string {
	limit := a.MaxSummaryChars
	if limit <= 0 {
		limit = DefaultMaxSummaryChars
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "File: %s\n", fileName)
	fmt.Fprintf(&sb, "Category: %s\n", res.Category)
	if declaredSize > 0 {
		fmt.Fprintf(&sb, "Declared size: %s (%s bytes)\n",
			humanize.IBytes(uint64(declaredSize)), humanize.Comma(declaredSize))
	}
	fmt.Fprintf(&sb, "Analyzed: %s\n", humanize.IBytes(uint64(res.BytesRead)))
	if res.Truncated {
		sb.WriteString("Truncated: analysis covers the beginning of the file only\n")
	}
	if res.BytesRead == 0 {
		sb.WriteString("Empty file: no content to analyze\n")
	}

	for _, key := range sortedKeys(res.Metadata) {
		fmt.Fprintf(&sb, "%s: %s\n", metadataLabel(key), res.Metadata[key])
	}

	if len(res.Structure) > 0 {
		sb.WriteString("Contents:\n")
		for _, entry := range res.Structure {
			fmt.Fprintf(&sb, "  %s\n", entry)
		}
	}

	if res.TextSnippet != "" {
		fmt.Fprintf(&sb, "Preview:\n%s\n", res.TextSnippet)
	}

	return boundSummary(sb.String(), limit)
}

func sortedKeys(md map[string]string) []string {
	keys := make([]string, 0, len(md))
	for k := range md {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// metadataLabel turns a snake_case metadata key into a display label.
func metadataLabel(key string) string {
	words := strings.Split(key, "_")
	for i, w := range words {
		if w == "" {
			continue
		}
		if isInitialism(w) {
			words[i] = strings.ToUpper(w)
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func isInitialism(w string) bool {
	switch w {
	case "pdf", "mime", "sha256", "rtf", "id3", "hex", "xml", "csv", "url":
		return true
	}
	return false
}

func boundSummary(s string, limit int) string {
	s = strings.TrimRight(s, "\n")
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut] + "…"
}
