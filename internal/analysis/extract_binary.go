package analysis

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/gabriel-vasile/mimetype"
)

// binarySummary is the universal fallback: a digest and a header dump that
// work for any byte stream. Every parse failure in every strategy lands here.
func binarySummary(data []byte) Result {
	sum := sha256.Sum256(data)
	md := map[string]string{
		"sha256": hex.EncodeToString(sum[:]),
	}
	if n := min(32, len(data)); n > 0 {
		md["header_hex"] = hex.EncodeToString(data[:n])
	}
	return Result{Metadata: md}
}

// extractBinary summarizes content already classified as an executable or
// other opaque binary. Content that decodes as text still gets a preview.
func extractBinary(_ string, data []byte) (Result, error) {
	if len(data) == 0 {
		return Result{}, nil
	}
	if res, ok := tryText(data); ok {
		return res, nil
	}
	res := binarySummary(data)
	res.Metadata["mime"] = mimetype.Detect(data).String()
	switch {
	case bytes.HasPrefix(data, []byte("\x7FELF")):
		res.Metadata["format"] = "elf"
	case bytes.HasPrefix(data, []byte("MZ")):
		res.Metadata["format"] = "pe"
	case bytes.HasPrefix(data, []byte("\xCA\xFE\xBA\xBE")) || bytes.HasPrefix(data, []byte("\xCF\xFA\xED\xFE")):
		res.Metadata["format"] = "mach-o"
	case bytes.HasPrefix(data, []byte("\x00asm")):
		res.Metadata["format"] = "wasm"
	}
	return res, nil
}

// extractDatabase reads the SQLite file header. Files without the magic get
// a text-decode attempt (SQL dumps and CSV exports travel as .db too) before
// erroring out to the binary fallback.
func extractDatabase(_ string, data []byte) (Result, error) {
	if len(data) == 0 {
		return Result{}, nil
	}
	if !bytes.HasPrefix(data, []byte("SQLite format 3\x00")) {
		if res, ok := tryText(data); ok {
			return res, nil
		}
		return Result{}, fmt.Errorf("no SQLite header")
	}
	md := map[string]string{"format": "sqlite3"}
	if len(data) >= 32 {
		pageSize := int(binary.BigEndian.Uint16(data[16:18]))
		if pageSize == 1 {
			pageSize = 65536
		}
		md["page_size"] = strconv.Itoa(pageSize)
		md["page_count"] = strconv.FormatUint(uint64(binary.BigEndian.Uint32(data[28:32])), 10)
	}
	return Result{Metadata: md}, nil
}

// extractUnknown keeps unclassifiable content useful: text gets a preview,
// everything else gets the binary digest.
func extractUnknown(_ string, data []byte) (Result, error) {
	if len(data) == 0 {
		return Result{}, nil
	}
	if res, ok := tryText(data); ok {
		return res, nil
	}
	res := binarySummary(data)
	res.Metadata["mime"] = mimetype.Detect(data).String()
	return res, nil
}
