package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testClient(t *testing.T, dim int, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New("sk-test", "text-embedding-3-small", dim)
	c.baseURL = srv.URL
	return c
}

func TestEmbed_Success(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth string
	var gotReq embedRequest
	c := testClient(t, 3, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{0.1, 0.2, 0.3}}},
		})
	})

	vec, err := c.Embed(context.Background(), "disk pressure on node-3")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	if len(vec) != 3 || vec[0] != 0.1 {
		t.Errorf("vec = %v", vec)
	}
	if gotPath != "/embeddings" {
		t.Errorf("path = %q, want /embeddings", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotReq.Input != "disk pressure on node-3" || gotReq.Model != "text-embedding-3-small" {
		t.Errorf("request = %+v", gotReq)
	}
}

func TestEmbed_DimensionMismatch(t *testing.T) {
	t.Parallel()

	c := testClient(t, 384, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{0.1, 0.2}}},
		})
	})

	if _, err := c.Embed(context.Background(), "text"); err == nil {
		t.Fatal("Embed() error = nil, want dimension mismatch")
	}
}

func TestEmbed_APIError(t *testing.T) {
	t.Parallel()

	c := testClient(t, 3, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"invalid key"}}`, http.StatusUnauthorized)
	})

	if _, err := c.Embed(context.Background(), "text"); err == nil {
		t.Fatal("Embed() error = nil, want api error")
	}
}

func TestEmbed_EmptyData(t *testing.T) {
	t.Parallel()

	c := testClient(t, 3, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
	})

	if _, err := c.Embed(context.Background(), "text"); err == nil {
		t.Fatal("Embed() error = nil, want no-data error")
	}
}
