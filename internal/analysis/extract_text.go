package analysis

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

const maxSnippetChars = 500

// extractText is the Code strategy: try UTF-8, then UTF-16 with a BOM, and
// error out to the binary fallback when neither decodes.
func extractText(name string, data []byte) (Result, error) {
	if len(data) == 0 {
		return Result{}, nil
	}

	res, ok := tryText(data)
	if !ok {
		return Result{}, fmt.Errorf("content is not valid UTF-8 or UTF-16 text")
	}
	if lang := languageHint(name); lang != "" {
		res.Metadata["language"] = lang
	}
	return res, nil
}

// tryText is the best-effort decode every opaque strategy makes before
// settling for a digest: UTF-8 first, then BOM-prefixed UTF-16.
func tryText(data []byte) (Result, bool) {
	if looksText(data) {
		return textResult(data), true
	}
	if decoded, ok := decodeUTF16(data); ok {
		res := textResult([]byte(decoded))
		res.Metadata["encoding"] = "utf-16"
		return res, true
	}
	return Result{}, false
}

// looksText reports whether data decodes as UTF-8 without NUL bytes or an
// implausible share of control characters.
func looksText(data []byte) bool {
	if !utf8.Valid(data) {
		return false
	}
	control := 0
	for _, b := range data {
		if b == 0 {
			return false
		}
		if b < 0x20 && b != '\n' && b != '\r' && b != '\t' {
			control++
		}
	}
	return control*20 < len(data)+1
}

// decodeUTF16 decodes BOM-prefixed UTF-16 content.
func decodeUTF16(data []byte) (string, bool) {
	if len(data) < 2 || len(data)%2 != 0 {
		return "", false
	}
	var bigEndian bool
	switch {
	case data[0] == 0xFE && data[1] == 0xFF:
		bigEndian = true
	case data[0] == 0xFF && data[1] == 0xFE:
		bigEndian = false
	default:
		return "", false
	}
	units := make([]uint16, 0, (len(data)-2)/2)
	for i := 2; i+1 < len(data); i += 2 {
		if bigEndian {
			units = append(units, uint16(data[i])<<8|uint16(data[i+1]))
		} else {
			units = append(units, uint16(data[i+1])<<8|uint16(data[i]))
		}
	}
	return string(utf16.Decode(units)), true
}

// textResult summarizes decoded text: character and line counts plus a
// bounded preview.
func textResult(data []byte) Result {
	content := string(data)
	lines := strings.Count(content, "\n")
	if len(content) > 0 && !strings.HasSuffix(content, "\n") {
		lines++
	}
	return Result{
		TextSnippet: snippetOf(content),
		Metadata: map[string]string{
			"characters": strconv.Itoa(len(content)),
			"lines":      strconv.Itoa(lines),
		},
	}
}

// snippetOf bounds a preview to maxSnippetChars without splitting a rune.
func snippetOf(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxSnippetChars {
		return s
	}
	cut := maxSnippetChars
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}

var languageHints = map[string]string{
	".go": "go", ".py": "python", ".js": "javascript", ".ts": "typescript",
	".c": "c", ".h": "c", ".cpp": "c++", ".cc": "c++", ".java": "java",
	".rs": "rust", ".rb": "ruby", ".sh": "shell", ".php": "php",
	".html": "html", ".css": "css", ".json": "json", ".xml": "xml",
	".yaml": "yaml", ".yml": "yaml", ".sql": "sql", ".toml": "toml",
}

func languageHint(name string) string {
	return languageHints[strings.ToLower(filepath.Ext(name))]
}
