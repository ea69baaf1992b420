package analysis

import (
	"strings"
	"testing"
)

func TestAggregator_BasicSummary(t *testing.T) {
	a := Aggregator{}
	res := Result{
		Category:    CategoryDocument,
		TextSnippet: "hello",
		Metadata:    map[string]string{"characters": "5", "lines": "1"},
		BytesRead:   5,
	}
	summary := a.Summarize("note.txt", 5, res)

	for _, want := range []string{"File: note.txt", "Category: document", "Characters: 5", "Preview:\nhello"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
	if strings.Contains(summary, "Truncated") {
		t.Error("complete analysis must not mention truncation")
	}
}

func TestAggregator_TruncationNote(t *testing.T) {
	a := Aggregator{}
	res := Result{Category: CategoryBinary, BytesRead: 1 << 20, Truncated: true}
	summary := a.Summarize("huge.bin", 10<<30, res)
	if !strings.Contains(summary, "Truncated:") {
		t.Fatalf("expected truncation note:\n%s", summary)
	}
	if !strings.Contains(summary, "10 GiB") {
		t.Fatalf("expected humanized declared size:\n%s", summary)
	}
}

func TestAggregator_EmptyFileNote(t *testing.T) {
	a := Aggregator{}
	summary := a.Summarize("empty.txt", 0, Result{Category: CategoryDocument})
	if !strings.Contains(summary, "Empty file") {
		t.Fatalf("expected empty-file note:\n%s", summary)
	}
}

func TestAggregator_Deterministic(t *testing.T) {
	a := Aggregator{}
	res := Result{
		Category:  CategoryArchive,
		Metadata:  map[string]string{"format": "zip", "entry_count": "3", "note": "x"},
		Structure: []string{"a.txt (1 B)", "b.txt (2 B)"},
		BytesRead: 128,
	}
	first := a.Summarize("bundle.zip", 128, res)
	for i := 0; i < 20; i++ {
		if got := a.Summarize("bundle.zip", 128, res); got != first {
			t.Fatal("summary rendering is not deterministic")
		}
	}
}

func TestAggregator_BoundedLength(t *testing.T) {
	a := Aggregator{MaxSummaryChars: 200}
	res := Result{
		Category:    CategoryCode,
		TextSnippet: strings.Repeat("long preview line\n", 50),
		BytesRead:   900,
	}
	summary := a.Summarize("big.go", 900, res)
	if len(summary) > 200+len("…") {
		t.Fatalf("summary exceeds bound: %d chars", len(summary))
	}
}

func TestAggregator_StructureListing(t *testing.T) {
	a := Aggregator{}
	res := Result{
		Category:  CategoryArchive,
		Metadata:  map[string]string{"format": "zip"},
		Structure: []string{"docs/readme.md (4 B)"},
		BytesRead: 64,
	}
	summary := a.Summarize("x.zip", 64, res)
	if !strings.Contains(summary, "Contents:\n  docs/readme.md (4 B)") {
		t.Fatalf("expected structure listing:\n%s", summary)
	}
}
