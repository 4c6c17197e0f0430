package toolkit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
)

func TestWebSearch(t *testing.T) {
	var got tavilyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"results": [
			{"title": "Go", "url": "https://go.dev", "content": "The Go language"},
			{"title": "Video", "url": "https://www.youtube.com/watch?v=1", "content": "a video"}
		]}`))
	}))
	defer srv.Close()

	ws := &WebSearch{APIKey: "key", URL: srv.URL}
	res, err := ws.Search(context.Background(), "golang", []string{"go.dev"})
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	want := []SearchResult{{Title: "Go", Href: "https://go.dev", Body: "The Go language"}}
	if !slices.Equal(res, want) {
		t.Errorf("results = %+v", res)
	}
	if got.MaxResults != DefaultMaxResults || got.Query != "golang" || !slices.Equal(got.IncludeDomains, []string{"go.dev"}) {
		t.Errorf("request = %+v", got)
	}
}

func TestWebSearch_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := (&WebSearch{APIKey: "key", URL: srv.URL}).Search(context.Background(), "q", nil)
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("err = %v", err)
	}
}

func TestWebSearch_NoKey(t *testing.T) {
	if _, err := (&WebSearch{}).Search(context.Background(), "q", nil); err == nil {
		t.Error("expected error without api key")
	}
}

func TestWebSearch_Tool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results": [{"title": "T", "url": "https://x", "content": "C"}]}`))
	}))
	defer srv.Close()

	tool := (&WebSearch{APIKey: "key", URL: srv.URL}).Tool()
	if tool.Name != "web_search" {
		t.Errorf("Name = %q", tool.Name)
	}
	v, err := tool.NewFuncCall(`{"query": "x"}`).Invoke(context.Background())
	if err != nil {
		t.Fatalf("Invoke error: %v", err)
	}
	if res, ok := v.([]SearchResult); !ok || len(res) != 1 || res[0].Href != "https://x" {
		t.Errorf("result = %#v", v)
	}
	if _, err := tool.NewFuncCall(`{}`).Invoke(context.Background()); err == nil {
		t.Error("expected error for empty query")
	}
}
