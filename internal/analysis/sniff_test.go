package analysis

import (
	"bytes"
	"testing"
)

func TestSniffer_PrefixWinsOverExtension(t *testing.T) {
	s := NewSniffer(0)
	// A PDF header with a misleading image extension classifies as document.
	cat := s.Classify("photo.png", []byte("%PDF-1.7\n1 0 obj"))
	if cat != CategoryDocument {
		t.Fatalf("expected document, got %s", cat)
	}
}

func TestSniffer_PlainTextIsDocument(t *testing.T) {
	s := NewSniffer(0)
	cat := s.Classify("note.txt", []byte("hello"))
	if cat != CategoryDocument {
		t.Fatalf("expected document, got %s", cat)
	}
}

func TestSniffer_PlainTextWithCodeExtension(t *testing.T) {
	s := NewSniffer(0)
	cat := s.Classify("main.py", []byte("import os\nprint(os.getcwd())\n"))
	if cat != CategoryCode {
		t.Fatalf("expected code, got %s", cat)
	}
}

func TestSniffer_EmptyPrefixFallsBackToExtension(t *testing.T) {
	s := NewSniffer(0)
	tests := []struct {
		name string
		want Category
	}{
		{"report.xlsx", CategorySpreadsheet},
		{"song.mp3", CategoryAudio},
		{"clip.mp4", CategoryVideo},
		{"backup.tar", CategoryArchive},
		{"app.db", CategoryDatabase},
		{"tool.exe", CategoryBinary},
		{"mystery", CategoryUnknown},
	}
	for _, tt := range tests {
		if got := s.Classify(tt.name, nil); got != tt.want {
			t.Errorf("%s: expected %s, got %s", tt.name, tt.want, got)
		}
	}
}

func TestSniffer_MagicSignatures(t *testing.T) {
	s := NewSniffer(0)
	tests := []struct {
		name   string
		prefix []byte
		want   Category
	}{
		{"x", []byte("\x89PNG\r\n\x1a\n"), CategoryImage},
		{"x", []byte("SQLite format 3\x00"), CategoryDatabase},
		{"x", []byte("\x7FELF\x02\x01\x01"), CategoryBinary},
		{"x", []byte{0x1F, 0x8B, 0x08, 0x00}, CategoryArchive},
		{"x", []byte("fLaC\x00\x00\x00\x22"), CategoryAudio},
		{"x", []byte(`{"key": "value"}`), CategoryCode},
	}
	for _, tt := range tests {
		if got := s.Classify(tt.name, tt.prefix); got != tt.want {
			t.Errorf("prefix %q: expected %s, got %s", tt.prefix[:4], tt.want, got)
		}
	}
}

func TestSniffer_OctetStreamUsesExtension(t *testing.T) {
	s := NewSniffer(0)
	// High-entropy bytes with no signature: the detector falls back to
	// octet-stream and the extension decides.
	noise := []byte{0x01, 0x02, 0x83, 0xF4, 0x55, 0xA6, 0x07, 0xE8, 0x99, 0x0A}
	if got := s.Classify("data.docx", noise); got != CategoryDocument {
		t.Fatalf("expected document from extension, got %s", got)
	}
	if got := s.Classify("data", noise); got != CategoryUnknown {
		t.Fatalf("expected unknown, got %s", got)
	}
}

func TestSniffer_Deterministic(t *testing.T) {
	s := NewSniffer(0)
	prefix := []byte("%PDF-1.4\n")
	first := s.Classify("a.bin", prefix)
	for i := 0; i < 10; i++ {
		if got := s.Classify("a.bin", prefix); got != first {
			t.Fatalf("classification changed between calls: %s vs %s", first, got)
		}
	}
}

func TestSniffer_WindowCapsPrefix(t *testing.T) {
	s := NewSniffer(8)
	// Signature past the window must not influence classification.
	long := append(bytes.Repeat([]byte{'A'}, 8), []byte("%PDF-1.4")...)
	if got := s.Classify("x.txt", long); got != CategoryDocument {
		// Eight 'A' bytes are plain text, .txt maps to document.
		t.Fatalf("expected document, got %s", got)
	}
}
