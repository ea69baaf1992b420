package analysis

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultSniffWindow is the maximum prefix length inspected for magic
// markers. Only this much is ever read for classification.
const DefaultSniffWindow = 4096

// Sniffer classifies a file from a capped byte prefix, falling back to the
// filename extension when the prefix is inconclusive or empty. Same prefix
// and name always produce the same category.
type Sniffer struct {
	window int
}

func NewSniffer(window int) *Sniffer {
	if window <= 0 {
		window = DefaultSniffWindow
	}
	return &Sniffer{window: window}
}

// Window returns the prefix length the sniffer inspects.
func (s *Sniffer) Window() int { return s.window }

// Classify maps a file to its category. The prefix wins when it matches a
// concrete signature; extension decides for plain or unrecognized content.
func (s *Sniffer) Classify(name string, prefix []byte) Category {
	if len(prefix) > s.window {
		prefix = prefix[:s.window]
	}
	if len(prefix) > 0 {
		if cat := categoryForContent(name, prefix); cat != CategoryUnknown {
			return cat
		}
	}
	return categoryForExtension(name)
}

func categoryForContent(name string, prefix []byte) Category {
	m := mimetype.Detect(prefix)

	switch {
	case m.Is("application/pdf"),
		m.Is("application/msword"),
		m.Is("application/vnd.openxmlformats-officedocument.wordprocessingml.document"),
		m.Is("application/vnd.oasis.opendocument.text"),
		m.Is("text/rtf"),
		m.Is("application/epub+zip"):
		return CategoryDocument
	case m.Is("application/vnd.ms-excel"),
		m.Is("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"),
		m.Is("application/vnd.oasis.opendocument.spreadsheet"),
		m.Is("text/csv"),
		m.Is("text/tab-separated-values"):
		return CategorySpreadsheet
	case m.Is("application/zip"),
		m.Is("application/x-tar"),
		m.Is("application/gzip"),
		m.Is("application/x-7z-compressed"),
		m.Is("application/x-rar-compressed"),
		m.Is("application/x-bzip2"),
		m.Is("application/x-xz"):
		return CategoryArchive
	case m.Is("application/vnd.sqlite3"), m.Is("application/x-sqlite3"):
		return CategoryDatabase
	case m.Is("application/json"),
		m.Is("application/xml"), m.Is("text/xml"),
		m.Is("text/html"),
		m.Is("text/css"),
		m.Is("application/javascript"), m.Is("text/javascript"):
		return CategoryCode
	case m.Is("application/x-executable"),
		m.Is("application/x-sharedlib"),
		m.Is("application/x-mach-binary"),
		m.Is("application/vnd.microsoft.portable-executable"),
		m.Is("application/wasm"):
		return CategoryBinary
	}

	mime := m.String()
	switch {
	case strings.HasPrefix(mime, "image/"):
		return CategoryImage
	case strings.HasPrefix(mime, "audio/"):
		return CategoryAudio
	case strings.HasPrefix(mime, "video/"):
		return CategoryVideo
	}

	if m.Is("text/plain") {
		// Plain text: the extension decides between prose and source code.
		if cat := categoryForExtension(name); cat == CategoryCode {
			return CategoryCode
		}
		return CategoryDocument
	}

	// application/octet-stream is the detector's own fallback, i.e. no
	// signature matched. Anything else recognized but unmapped is a
	// concrete binary format.
	if m.Is("application/octet-stream") {
		return CategoryUnknown
	}
	return CategoryBinary
}

var extensionCategories = map[string]Category{
	".pdf": CategoryDocument, ".doc": CategoryDocument, ".docx": CategoryDocument,
	".odt": CategoryDocument, ".rtf": CategoryDocument, ".txt": CategoryDocument,
	".md": CategoryDocument, ".log": CategoryDocument, ".epub": CategoryDocument,

	".xls": CategorySpreadsheet, ".xlsx": CategorySpreadsheet, ".ods": CategorySpreadsheet,
	".csv": CategorySpreadsheet, ".tsv": CategorySpreadsheet,

	".jpg": CategoryImage, ".jpeg": CategoryImage, ".png": CategoryImage,
	".gif": CategoryImage, ".webp": CategoryImage, ".bmp": CategoryImage,
	".svg": CategoryImage, ".tif": CategoryImage, ".tiff": CategoryImage, ".ico": CategoryImage,

	".mp3": CategoryAudio, ".wav": CategoryAudio, ".ogg": CategoryAudio,
	".flac": CategoryAudio, ".m4a": CategoryAudio, ".opus": CategoryAudio, ".aac": CategoryAudio,

	".mp4": CategoryVideo, ".mkv": CategoryVideo, ".avi": CategoryVideo,
	".mov": CategoryVideo, ".webm": CategoryVideo, ".wmv": CategoryVideo,

	".zip": CategoryArchive, ".tar": CategoryArchive, ".gz": CategoryArchive,
	".tgz": CategoryArchive, ".7z": CategoryArchive, ".rar": CategoryArchive,
	".bz2": CategoryArchive, ".xz": CategoryArchive,

	".go": CategoryCode, ".py": CategoryCode, ".js": CategoryCode, ".ts": CategoryCode,
	".c": CategoryCode, ".h": CategoryCode, ".cpp": CategoryCode, ".cc": CategoryCode,
	".java": CategoryCode, ".rs": CategoryCode, ".rb": CategoryCode, ".sh": CategoryCode,
	".php": CategoryCode, ".html": CategoryCode, ".css": CategoryCode, ".json": CategoryCode,
	".xml": CategoryCode, ".yaml": CategoryCode, ".yml": CategoryCode, ".sql": CategoryCode,
	".toml": CategoryCode, ".ini": CategoryCode,

	".db": CategoryDatabase, ".sqlite": CategoryDatabase, ".sqlite3": CategoryDatabase,
	".mdb": CategoryDatabase,

	".exe": CategoryBinary, ".dll": CategoryBinary, ".so": CategoryBinary,
	".dylib": CategoryBinary, ".bin": CategoryBinary, ".o": CategoryBinary,
	".wasm": CategoryBinary, ".class": CategoryBinary,
}

func categoryForExtension(name string) Category {
	ext := strings.ToLower(filepath.Ext(name))
	if cat, ok := extensionCategories[ext]; ok {
		return cat
	}
	return CategoryUnknown
}
