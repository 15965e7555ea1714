package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestServer(t *testing.T, content string) (*httptest.Server, *map[string]any) {
	t.Helper()
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"model":   "test",
			"message": map[string]any{"role": "assistant", "content": content},
			"done":    true,
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestNewClient(t *testing.T) {
	if _, err := NewClient("http://localhost:11434/api/chat"); err != nil {
		t.Errorf("Expected valid URL, got %v", err)
	}
	if _, err := NewClient("localhost"); err == nil {
		t.Error("Expected error for URL without scheme")
	}
}

func TestAnalyzeImage(t *testing.T) {
	srv, got := newTestServer(t, `{"primary":{"label":"dog","confidence":0.8,"box":{"x":0.2,"y":0.2,"w":0.5,"h":0.5},"cx":0.45,"cy":0.45},"description":"a dog","tags":["dog"]}`)

	c, err := NewClientWithHTTP(srv.URL, srv.Client())
	if err != nil {
		t.Fatal(err)
	}

	img := base64.StdEncoding.EncodeToString([]byte("fake-jpeg"))
	result, err := c.AnalyzeImage(context.Background(), "minicpm-v4", "locate", img)
	if err != nil {
		t.Fatalf("AnalyzeImage failed: %v", err)
	}
	if result.Primary.Label != "dog" {
		t.Errorf("Expected label dog, got %s", result.Primary.Label)
	}

	if (*got)["model"] != "minicpm-v4" {
		t.Errorf("Expected model in request, got %v", (*got)["model"])
	}
	if _, ok := (*got)["options"]; !ok {
		t.Error("Expected tuned options for minicpm-v4")
	}
}

func TestSimpleQuery(t *testing.T) {
	srv, _ := newTestServer(t, "A red square.")

	c, err := NewClientWithHTTP(srv.URL, srv.Client())
	if err != nil {
		t.Fatal(err)
	}

	text, err := c.SimpleQuery(context.Background(), "llava", "what is this?", "")
	if err != nil {
		t.Fatalf("SimpleQuery failed: %v", err)
	}
	if text != "A red square." {
		t.Errorf("Unexpected response %q", text)
	}
}

func TestAnalyzeImageBadBase64(t *testing.T) {
	c, err := NewClient("http://localhost:11434")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.AnalyzeImage(context.Background(), "m", "p", "%%%"); err == nil {
		t.Error("Expected error for invalid base64")
	}
}
