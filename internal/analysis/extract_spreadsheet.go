package analysis

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

const maxCSVRows = 10000 // row counting stops here; the window is bounded anyway

var xlsxSheetName = regexp.MustCompile(`<sheet[^>]*\bname="([^"]{1,100})"`)

// extractSpreadsheet handles CSV/TSV text, xlsx containers, and legacy OLE2
// workbooks (metadata only). Unrecognized content errors out to the binary
// fallback.
func extractSpreadsheet(name string, data []byte) (Result, error) {
	switch {
	case len(data) == 0:
		return Result{}, nil
	case bytes.HasPrefix(data, []byte("PK\x03\x04")):
		return extractXlsx(data)
	case bytes.HasPrefix(data, []byte{0xD0, 0xCF, 0x11, 0xE0}):
		// Legacy binary office container; listing sheets needs a full OLE2
		// parser, so report the format and stop there.
		return Result{Metadata: map[string]string{"format": "office-ole2"}}, nil
	case looksText(data):
		return extractDelimited(name, data)
	default:
		return Result{}, fmt.Errorf("unrecognized spreadsheet encoding")
	}
}

func extractDelimited(name string, data []byte) (Result, error) {
	comma := ','
	if strings.HasSuffix(strings.ToLower(name), ".tsv") {
		comma = '\t'
	}
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, maxCols := 0, 0
	var header []string
	for rows < maxCSVRows {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("csv parse: %w", err)
		}
		if rows == 0 {
			header = record
		}
		if len(record) > maxCols {
			maxCols = len(record)
		}
		rows++
	}

	md := map[string]string{
		"format":  "delimited",
		"rows":    strconv.Itoa(rows),
		"columns": strconv.Itoa(maxCols),
	}
	var snippet string
	if len(header) > 0 {
		snippet = snippetOf(strings.Join(header, " | "))
	}
	return Result{Metadata: md, TextSnippet: snippet}, nil
}

func extractXlsx(data []byte) (Result, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Result{}, fmt.Errorf("workbook container: %w", err)
	}

	md := map[string]string{
		"format":  "office-openxml",
		"entries": strconv.Itoa(len(zr.File)),
	}
	var sheets []string
	for _, f := range zr.File {
		if f.Name != "xl/workbook.xml" {
			continue
		}
		content, err := readZipEntry(f, docxContentLimit)
		if err != nil {
			continue
		}
		for _, m := range xlsxSheetName.FindAllSubmatch(content, -1) {
			sheets = append(sheets, string(m[1]))
		}
	}
	if len(sheets) > 0 {
		md["sheets"] = strconv.Itoa(len(sheets))
	}
	return Result{Metadata: md, Structure: sheets}, nil
}
