package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"triagebot/internal/domain"
	"triagebot/internal/metrics"
)

// maxRenderBytes caps how large a rendered document the service may hand
// back before it is rejected.
const maxRenderBytes = 32 << 20

// RenderService implements domain.Renderer against an HTTP document
// rendering service that turns titled text into pdf, docx, or xlsx bytes.
type RenderService struct {
	apiBase string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

type RenderConfig struct {
	APIBase string
	APIKey  string
	Timeout time.Duration
	Logger  *slog.Logger
}

func NewRenderService(cfg RenderConfig) *RenderService {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &RenderService{
		apiBase: cfg.APIBase,
		apiKey:  cfg.APIKey,
		client:  SharedHTTPClient(cfg.Timeout),
		logger:  cfg.Logger,
	}
}

type renderRequest struct {
	Format string `json:"format"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// Render asks the service for a document in the given format. Transient
// failures are retried with backoff.
func (r *RenderService) Render(ctx context.Context, format domain.DocumentFormat, title, body string) ([]byte, error) {
	switch format {
	case domain.FormatPDF, domain.FormatWord, domain.FormatExcel:
	default:
		return nil, fmt.Errorf("unsupported render format: %s", format)
	}

	payload, err := json.Marshal(renderRequest{
		Format: string(format),
		Title:  title,
		Body:   body,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	metrics.RendersTotal.Inc()
	resp, err := doWithRetry(ctx, r.client, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.apiBase+"/render", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if r.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+r.apiKey)
		}
		return req, nil
	}, r.logger)
	if err != nil {
		return nil, fmt.Errorf("render request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("render service %d: %s", resp.StatusCode, string(respBody))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRenderBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read rendered document: %w", err)
	}
	if len(data) > maxRenderBytes {
		return nil, fmt.Errorf("rendered document exceeds %d bytes", maxRenderBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("render service returned an empty document")
	}
	return data, nil
}
