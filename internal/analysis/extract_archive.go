package analysis

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
)

const maxArchiveEntries = 50

// extractArchive lists zip, gzip, and tar contents from the bounded window.
// 7z and rar are recognized by header only. A window that matches no known
// container errors out to the binary fallback.
func extractArchive(_ string, data []byte) (Result, error) {
	switch {
	case len(data) == 0:
		return Result{}, nil
	case bytes.HasPrefix(data, []byte("PK\x03\x04")) || bytes.HasPrefix(data, []byte("PK\x05\x06")):
		return extractZip(data)
	case bytes.HasPrefix(data, []byte{0x1F, 0x8B}):
		return extractGzip(data)
	case bytes.HasPrefix(data, []byte("7z\xBC\xAF\x27\x1C")):
		return Result{Metadata: map[string]string{"format": "7z"}}, nil
	case bytes.HasPrefix(data, []byte("Rar!\x1A\x07")):
		return Result{Metadata: map[string]string{"format": "rar"}}, nil
	case bytes.HasPrefix(data, []byte("BZh")):
		return Result{Metadata: map[string]string{"format": "bzip2"}}, nil
	case bytes.HasPrefix(data, []byte{0xFD, '7', 'z', 'X', 'Z', 0x00}):
		return Result{Metadata: map[string]string{"format": "xz"}}, nil
	case isTar(data):
		return extractTar(data)
	default:
		return Result{}, fmt.Errorf("unrecognized archive container")
	}
}

func extractZip(data []byte) (Result, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Result{}, fmt.Errorf("zip listing: %w", err)
	}
	md := map[string]string{
		"format":      "zip",
		"entry_count": strconv.Itoa(len(zr.File)),
	}
	var entries []string
	for i, f := range zr.File {
		if i == maxArchiveEntries {
			entries = append(entries, fmt.Sprintf("… and %d more", len(zr.File)-maxArchiveEntries))
			break
		}
		entries = append(entries, fmt.Sprintf("%s (%s)", f.Name, humanize.IBytes(f.UncompressedSize64)))
	}
	return Result{Metadata: md, Structure: entries}, nil
}

func extractGzip(data []byte) (Result, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return Result{}, fmt.Errorf("gzip header: %w", err)
	}
	defer gz.Close()
	md := map[string]string{"format": "gzip"}
	if gz.Name != "" {
		md["original_name"] = gz.Name
	}
	// The stream may be a compressed tarball; peek at the first header.
	head := make([]byte, 512)
	if n, _ := io.ReadFull(gz, head); n == 512 && isTar(head[:n]) {
		md["inner_format"] = "tar"
	}
	return Result{Metadata: md}, nil
}

func extractTar(data []byte) (Result, error) {
	tr := tar.NewReader(bytes.NewReader(data))
	md := map[string]string{"format": "tar"}
	var entries []string
	count := 0
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Bounded windows routinely cut the stream mid-entry; report what
			// was listed before the cut.
			break
		}
		count++
		if count <= maxArchiveEntries {
			entries = append(entries, fmt.Sprintf("%s (%s)", hdr.Name, humanize.IBytes(uint64(hdr.Size))))
		}
	}
	if count == 0 {
		return Result{}, fmt.Errorf("tar listing: no readable headers")
	}
	if count > maxArchiveEntries {
		entries = append(entries, fmt.Sprintf("… and %d more", count-maxArchiveEntries))
	}
	md["entry_count"] = strconv.Itoa(count)
	return Result{Metadata: md, Structure: entries}, nil
}

// isTar checks the ustar magic at the fixed header offset.
func isTar(data []byte) bool {
	return len(data) >= 263 && bytes.Equal(data[257:262], []byte("ustar"))
}

// readZipEntry opens a single archive member and reads at most limit bytes.
func readZipEntry(f *zip.File, limit int) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	content, err := io.ReadAll(io.LimitReader(rc, int64(limit)))
	if err != nil {
		return nil, err
	}
	return content, nil
}
