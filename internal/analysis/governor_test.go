package analysis

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func TestGovernor_SmallFileNotTruncated(t *testing.T) {
	g := Governor{ByteBudget: 1024}
	data, truncated, err := g.Gather(context.Background(), strings.NewReader("hello"), 5)
	if err != nil {
		t.Fatal(err)
	}
	if truncated {
		t.Fatal("small file should not be truncated")
	}
	if string(data) != "hello" {
		t.Fatalf("expected hello, got %q", data)
	}
}

func TestGovernor_ZeroByteStream(t *testing.T) {
	g := Governor{ByteBudget: 1024}
	data, truncated, err := g.Gather(context.Background(), strings.NewReader(""), 0)
	if err != nil {
		t.Fatal(err)
	}
	if truncated {
		t.Fatal("empty stream should not be truncated")
	}
	if len(data) != 0 {
		t.Fatalf("expected no data, got %d bytes", len(data))
	}
}

func TestGovernor_OversizedDeclaredReadsExactlyBudget(t *testing.T) {
	budget := int64(1 << 20)
	g := Governor{ByteBudget: budget}
	// Declared far beyond the budget: the read stops at the budget without a
	// probe and reports truncation.
	src := &countingReader{r: neverEnding{}}
	data, truncated, err := g.Gather(context.Background(), src, 10<<30)
	if err != nil {
		t.Fatal(err)
	}
	if !truncated {
		t.Fatal("expected truncation")
	}
	if int64(len(data)) != budget {
		t.Fatalf("expected exactly %d bytes, got %d", budget, len(data))
	}
	if src.n != budget {
		t.Fatalf("expected exactly %d bytes consumed from source, got %d", budget, src.n)
	}
}

func TestGovernor_LyingDeclaredSizeDetectedByProbe(t *testing.T) {
	g := Governor{ByteBudget: 16}
	// Declared within budget but the stream keeps going: the one-byte probe
	// catches it.
	_, truncated, err := g.Gather(context.Background(), strings.NewReader(strings.Repeat("x", 64)), 10)
	if err != nil {
		t.Fatal(err)
	}
	if !truncated {
		t.Fatal("expected truncation for stream exceeding its declared size")
	}
}

func TestGovernor_ProbeConsumesAtMostOneByteBeyondBudget(t *testing.T) {
	budget := int64(16)
	g := Governor{ByteBudget: budget}
	// Declared within budget but the stream outgrows it: the probe costs one
	// byte of source consumption and the extracted data stays at the budget.
	src := &countingReader{r: neverEnding{}}
	data, truncated, err := g.Gather(context.Background(), src, 10)
	if err != nil {
		t.Fatal(err)
	}
	if !truncated {
		t.Fatal("expected truncation")
	}
	if int64(len(data)) != budget {
		t.Fatalf("extracted data must stay within the budget, got %d bytes", len(data))
	}
	if src.n != budget+1 {
		t.Fatalf("expected %d bytes consumed (budget plus probe), got %d", budget+1, src.n)
	}
}

func TestGovernor_ExactBudgetFitNotTruncated(t *testing.T) {
	g := Governor{ByteBudget: 16}
	data, truncated, err := g.Gather(context.Background(), strings.NewReader(strings.Repeat("x", 16)), 16)
	if err != nil {
		t.Fatal(err)
	}
	if truncated {
		t.Fatal("a stream that exactly fills the budget and ends is complete")
	}
	if len(data) != 16 {
		t.Fatalf("expected 16 bytes, got %d", len(data))
	}
}

func TestGovernor_MidStreamErrorReturnsPartial(t *testing.T) {
	g := Governor{ByteBudget: 1024}
	src := io.MultiReader(strings.NewReader("partial"), errReader{})
	data, truncated, err := g.Gather(context.Background(), src, 100)
	if err == nil {
		t.Fatal("expected read error")
	}
	if !truncated {
		t.Fatal("partial read should be flagged truncated")
	}
	if string(data) != "partial" {
		t.Fatalf("expected partial data to survive, got %q", data)
	}
}

func TestGovernor_TimeoutYieldsPartialWithoutError(t *testing.T) {
	g := Governor{ByteBudget: 1 << 30, Timeout: 20 * time.Millisecond}
	src := &slowReader{delay: 5 * time.Millisecond}
	data, truncated, err := g.Gather(context.Background(), src, 1<<30)
	if err != nil {
		t.Fatalf("timeout must not surface as an error: %v", err)
	}
	if !truncated {
		t.Fatal("timed-out read should be truncated")
	}
	if len(data) == 0 {
		t.Fatal("expected partial data before the deadline")
	}
}

func TestGovernor_DefaultsApplied(t *testing.T) {
	g := Governor{}
	data, truncated, err := g.Gather(context.Background(), bytes.NewReader(make([]byte, 100)), 100)
	if err != nil || truncated {
		t.Fatalf("unexpected result: truncated=%v err=%v", truncated, err)
	}
	if len(data) != 100 {
		t.Fatalf("expected 100 bytes, got %d", len(data))
	}
}

// neverEnding always fills the buffer and never returns EOF.
type neverEnding struct{}

func (neverEnding) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 'z'
	}
	return len(p), nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

type slowReader struct {
	delay time.Duration
}

func (s *slowReader) Read(p []byte) (int, error) {
	time.Sleep(s.delay)
	if len(p) > 0 {
		p[0] = 'x'
		return 1, nil
	}
	return 0, nil
}
