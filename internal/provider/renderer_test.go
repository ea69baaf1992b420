package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"triagebot/internal/domain"
)

func TestRenderService_Render(t *testing.T) {
	pdf := []byte("%PDF-1.4 fake body")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/render" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req renderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Format != "pdf" || req.Title != "Report" {
			t.Errorf("unexpected request %+v", req)
		}
		w.Write(pdf)
	}))
	defer srv.Close()

	rs := NewRenderService(RenderConfig{APIBase: srv.URL, Logger: testLogger()})
	data, err := rs.Render(context.Background(), domain.FormatPDF, "Report", "body text")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, pdf) {
		t.Fatalf("unexpected document bytes: %q", data)
	}
}

func TestRenderService_UnsupportedFormat(t *testing.T) {
	rs := NewRenderService(RenderConfig{APIBase: "http://unused", Logger: testLogger()})
	if _, err := rs.Render(context.Background(), "pptx", "t", "b"); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestRenderService_EmptyDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rs := NewRenderService(RenderConfig{APIBase: srv.URL, Logger: testLogger()})
	if _, err := rs.Render(context.Background(), domain.FormatWord, "t", "b"); err == nil {
		t.Fatal("expected error for empty document")
	}
}
