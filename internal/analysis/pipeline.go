package analysis

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"triagebot/internal/metrics"
)

// PipelineConfig carries the tunable budgets for one pipeline instance.
// Zero values select the defaults.
type PipelineConfig struct {
	SniffWindow     int
	ByteBudget      int64
	Timeout         time.Duration
	MaxSummaryChars int
}

// Pipeline wires sniffing, governed extraction, and report aggregation into
// the single entry point the agent calls for every inbound file.
type Pipeline struct {
	sniffer    *Sniffer
	registry   *Registry
	aggregator Aggregator
	logger     *slog.Logger
}

func NewPipeline(cfg PipelineConfig, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	gov := Governor{
		ByteBudget: cfg.ByteBudget,
		Timeout:    cfg.Timeout,
	}
	return &Pipeline{
		sniffer:    NewSniffer(cfg.SniffWindow),
		registry:   NewRegistry(gov, logger),
		aggregator: Aggregator{MaxSummaryChars: cfg.MaxSummaryChars},
		logger:     logger,
	}
}

// Analyze runs the full triage for one file: peek a prefix for
// classification, extract under the byte and time budgets, and render the
// summary. The stream is consumed exactly once; the prefix is re-served to
// the extraction read. Analyze never fails: unreadable or unparseable
// content degrades to a binary summary inside the report.
func (p *Pipeline) Analyze(ctx context.Context, name string, declaredSize int64, src io.Reader) Report {
	start := time.Now()
	requestID := uuid.NewString()

	br := bufio.NewReaderSize(src, p.sniffer.Window())
	prefix, err := br.Peek(p.sniffer.Window())
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		p.logger.Warn("prefix read failed", "request_id", requestID, "file", name, "err", err)
	}

	category := p.sniffer.Classify(name, prefix)
	result := p.registry.Extract(ctx, category, SourceFile{
		Name:         name,
		DeclaredSize: declaredSize,
		Reader:       br,
	})
	summary := p.aggregator.Summarize(name, declaredSize, result)

	metrics.FilesAnalyzedTotal.Inc()
	if result.Truncated {
		metrics.FilesTruncatedTotal.Inc()
	}
	metrics.AnalysisLatency.Observe(time.Since(start).Seconds())

	p.logger.Info("file analyzed",
		"request_id", requestID,
		"file", name,
		"category", result.Category,
		"bytes_read", result.BytesRead,
		"truncated", result.Truncated,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	return Report{
		RequestID:    requestID,
		FileName:     name,
		DeclaredSize: declaredSize,
		Result:       result,
		Summary:      summary,
	}
}
