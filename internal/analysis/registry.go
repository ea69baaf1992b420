package analysis

import (
	"context"
	"fmt"
	"log/slog"
)

// ExtractFunc turns a bounded byte window into a structured result. A
// returned error means the content could not be parsed as the category;
// the registry converts it into a binary fallback, never a failure.
type ExtractFunc func(name string, data []byte) (Result, error)

// Registry maps each category to its extraction strategy and dispatches
// through the size governor. No strategy error or panic escapes Extract.
type Registry struct {
	governor   Governor
	strategies map[Category]ExtractFunc
	logger     *slog.Logger
}

func NewRegistry(gov Governor, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		governor: gov,
		logger:   logger,
		strategies: map[Category]ExtractFunc{
			CategoryDocument:    extractDocument,
			CategorySpreadsheet: extractSpreadsheet,
			CategoryImage:       extractImage,
			CategoryAudio:       extractAudio,
			CategoryVideo:       extractVideo,
			CategoryArchive:     extractArchive,
			CategoryCode:        extractText,
			CategoryDatabase:    extractDatabase,
			CategoryBinary:      extractBinary,
			CategoryUnknown:     extractUnknown,
		},
	}
}

// Extract runs the strategy for cat over a governed read of the file.
// Parse failures downgrade to a binary summary carrying a diagnostic note;
// Truncated reflects stream completeness, not parse success.
func (r *Registry) Extract(ctx context.Context, cat Category, file SourceFile) Result {
	data, truncated, readErr := r.governor.Gather(ctx, file.Reader, file.DeclaredSize)

	res := r.run(cat, file.Name, data)
	res.Category = cat
	res.BytesRead = int64(len(data))
	res.Truncated = res.Truncated || truncated
	if res.Metadata == nil {
		res.Metadata = map[string]string{}
	}
	if readErr != nil {
		res.Truncated = true
		addNote(res.Metadata, "stream ended early: "+readErr.Error())
	}
	return res
}

func (r *Registry) run(cat Category, name string, data []byte) Result {
	strategy, ok := r.strategies[cat]
	if !ok {
		strategy = extractUnknown
	}

	res, err := func() (res Result, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("strategy panic: %v", rec)
			}
		}()
		return strategy(name, data)
	}()
	if err != nil {
		r.logger.Warn("extraction failed, using binary fallback",
			"category", cat,
			"file", name,
			"err", err,
		)
		res = binarySummary(data)
		addNote(res.Metadata, fmt.Sprintf("could not parse as %s: %v", cat, err))
	}
	return res
}

func addNote(md map[string]string, note string) {
	if existing, ok := md["note"]; ok && existing != "" {
		md["note"] = existing + "; " + note
		return
	}
	md["note"] = note
}
