package gemini_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/tomeglot/pkg/provider/llm/gemini"
)

// mockGenerateContentServer handles :generateContent requests, verifying the
// API key header and request body shape before returning the canned text.
func mockGenerateContentServer(t *testing.T, wantKey, response string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v1beta/models" {
			json.NewEncoder(w).Encode(map[string]any{
				"models": []map[string]any{
					{"name": "models/gemini-2.5-flash", "supportedGenerationMethods": []string{"generateContent", "countTokens"}},
					{"name": "models/gemini-2.0-flash-thinking-exp", "supportedGenerationMethods": []string{"generateContent"}},
					{"name": "models/embedding-001", "supportedGenerationMethods": []string{"embedContent"}},
				},
			})
			return
		}

		if got := r.Header.Get("x-goog-api-key"); got != wantKey {
			t.Errorf("x-goog-api-key: got %q, want %q", got, wantKey)
		}

		var req struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
			GenerationConfig struct {
				Temperature     float64 `json:"temperature"`
				MaxOutputTokens int     `json:"maxOutputTokens"`
			} `json:"generationConfig"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if len(req.Contents) != 1 || len(req.Contents[0].Parts) != 1 {
			t.Errorf("contents: got %+v, want single content with single part", req.Contents)
		}
		if req.GenerationConfig.Temperature != 0.7 {
			t.Errorf("temperature: got %v, want 0.7", req.GenerationConfig.Temperature)
		}
		if req.GenerationConfig.MaxOutputTokens != 2048 {
			t.Errorf("maxOutputTokens: got %d, want 2048", req.GenerationConfig.MaxOutputTokens)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{{"text": response}}}},
			},
		})
	}))
}

func TestNew_Validation(t *testing.T) {
	if _, err := gemini.New("", "gemini-2.5-flash"); err == nil {
		t.Error("expected error for empty api key, got nil")
	}
	if _, err := gemini.New("key", ""); err == nil {
		t.Error("expected error for empty model, got nil")
	}
}

func TestGenerate(t *testing.T) {
	srv := mockGenerateContentServer(t, "test-key", "raw gemini output")
	defer srv.Close()

	p, err := gemini.New("test-key", "gemini-2.5-flash", gemini.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := p.Generate(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "raw gemini output" {
		t.Errorf("response: got %q, want %q", got, "raw gemini output")
	}
}

func TestGenerate_NoCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"candidates": []any{}})
	}))
	defer srv.Close()

	p, err := gemini.New("k", "m", gemini.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Generate(context.Background(), "x"); err == nil {
		t.Fatal("expected error for empty candidates, got nil")
	}
}

func TestTranslate_ExtractsMarkers(t *testing.T) {
	srv := mockGenerateContentServer(t, "k", "<TRANSLATED>Hallo Welt.</TRANSLATED>")
	defer srv.Close()

	p, err := gemini.New("k", "gemini-2.5-flash", gemini.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := p.Translate(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != "Hallo Welt." {
		t.Errorf("text: got %q, want %q", got, "Hallo Welt.")
	}
}

// TestListModels verifies filtering: generateContent support is required and
// "thinking" variants are excluded.
func TestListModels(t *testing.T) {
	srv := mockGenerateContentServer(t, "k", "")
	defer srv.Close()

	p, err := gemini.New("k", "m", gemini.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := p.ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(got) != 1 || got[0] != "gemini-2.5-flash" {
		t.Errorf("models: got %v, want [gemini-2.5-flash]", got)
	}
}
