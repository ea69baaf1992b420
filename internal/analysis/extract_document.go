package analysis

import (
	"archive/zip"
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const docxContentLimit = 256 * 1024 // cap on word/document.xml read

var (
	pdfInfoTitle  = regexp.MustCompile(`/Title\s*\(([^)]{1,200})\)`)
	pdfInfoAuthor = regexp.MustCompile(`/Author\s*\(([^)]{1,200})\)`)
	pdfTextShow   = regexp.MustCompile(`\(([^()\\]{4,120})\)\s*Tj`)
	xmlCoreTitle  = regexp.MustCompile(`<dc:title>([^<]{1,200})</dc:title>`)
	xmlCoreAuthor = regexp.MustCompile(`<dc:creator>([^<]{1,200})</dc:creator>`)
)

// extractDocument handles PDF, office documents, and plain prose. Anything
// it cannot recognize errors out so the registry can fall back to a binary
// summary.
func extractDocument(name string, data []byte) (Result, error) {
	switch {
	case len(data) == 0:
		return Result{}, nil
	case bytes.HasPrefix(data, []byte("%PDF")):
		return extractPDF(data)
	case bytes.HasPrefix(data, []byte("PK\x03\x04")):
		return extractDocx(data)
	case bytes.HasPrefix(data, []byte(`{\rtf`)):
		return Result{
			Metadata:    map[string]string{"format": "rtf"},
			TextSnippet: snippetOf(stripRTF(data)),
		}, nil
	case looksText(data):
		return textResult(data), nil
	default:
		return Result{}, fmt.Errorf("unrecognized document encoding")
	}
}

// extractPDF pulls cheap metadata (version, page count, info dictionary)
// and a best-effort text preview from literal show operators. A header
// alone is not enough: without any object structure the file is treated as
// corrupt.
func extractPDF(data []byte) (Result, error) {
	if !bytes.Contains(data, []byte("endobj")) {
		return Result{}, fmt.Errorf("PDF header present but no object structure found")
	}

	md := map[string]string{"format": "pdf"}
	if line := data[:min(16, len(data))]; bytes.HasPrefix(line, []byte("%PDF-")) {
		if i := bytes.IndexAny(line, "\r\n"); i > 5 {
			md["pdf_version"] = string(line[5:i])
		}
	}
	if pages := countPDFPages(data); pages > 0 {
		md["pages"] = strconv.Itoa(pages)
	}
	if m := pdfInfoTitle.FindSubmatch(data); m != nil {
		md["title"] = string(m[1])
	}
	if m := pdfInfoAuthor.FindSubmatch(data); m != nil {
		md["author"] = string(m[1])
	}

	var preview strings.Builder
	for _, m := range pdfTextShow.FindAllSubmatch(data, 40) {
		if preview.Len() > 0 {
			preview.WriteByte(' ')
		}
		preview.Write(m[1])
		if preview.Len() >= maxSnippetChars {
			break
		}
	}

	return Result{Metadata: md, TextSnippet: snippetOf(preview.String())}, nil
}

// countPDFPages counts /Type /Page entries, excluding the /Pages tree node.
func countPDFPages(data []byte) int {
	count := 0
	for _, marker := range [][]byte{[]byte("/Type /Page"), []byte("/Type/Page")} {
		rest := data
		for {
			i := bytes.Index(rest, marker)
			if i < 0 {
				break
			}
			after := rest[i+len(marker):]
			if len(after) == 0 || after[0] != 's' {
				count++
			}
			rest = after
		}
	}
	return count
}

// extractDocx lists the office zip and strips a prose preview out of
// word/document.xml. Truncated or corrupt archives error out to the
// fallback path.
func extractDocx(data []byte) (Result, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Result{}, fmt.Errorf("office container: %w", err)
	}

	md := map[string]string{
		"format":  "office-openxml",
		"entries": strconv.Itoa(len(zr.File)),
	}
	var snippet string
	for _, f := range zr.File {
		switch f.Name {
		case "word/document.xml":
			content, err := readZipEntry(f, docxContentLimit)
			if err != nil {
				continue
			}
			snippet = snippetOf(stripXML(content))
		case "docProps/core.xml":
			content, err := readZipEntry(f, docxContentLimit)
			if err != nil {
				continue
			}
			if m := xmlCoreTitle.FindSubmatch(content); m != nil {
				md["title"] = string(m[1])
			}
			if m := xmlCoreAuthor.FindSubmatch(content); m != nil {
				md["author"] = string(m[1])
			}
		}
	}

	return Result{Metadata: md, TextSnippet: snippet}, nil
}

// stripXML drops tags and collapses whitespace, leaving the text runs.
func stripXML(data []byte) string {
	var sb strings.Builder
	inTag := false
	for _, b := range data {
		switch {
		case b == '<':
			inTag = true
			sb.WriteByte(' ')
		case b == '>':
			inTag = false
		case !inTag:
			sb.WriteByte(b)
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

// stripRTF removes control words and braces, keeping literal text.
func stripRTF(data []byte) string {
	var sb strings.Builder
	i := 0
	for i < len(data) {
		b := data[i]
		switch b {
		case '{', '}':
			i++
		case '\\':
			i++
			for i < len(data) && (isAlnum(data[i]) || data[i] == '-') {
				i++
			}
			if i < len(data) && data[i] == ' ' {
				i++
			}
		default:
			sb.WriteByte(b)
			i++
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

func isAlnum(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
