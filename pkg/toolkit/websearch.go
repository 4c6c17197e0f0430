package toolkit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/haivivi/agentkit/pkg/genx"
)

const (
	DefaultSearchURL  = "https://api.tavily.com/search"
	DefaultMaxResults = 7
)

// SearchResult is one normalized web search hit.
type SearchResult struct {
	Title string `json:"title"`
	Href  string `json:"href"`
	Body  string `json:"body"`
}

// WebSearch queries the Tavily search API.
type WebSearch struct {
	APIKey     string
	URL        string
	MaxResults int
	HTTPClient *http.Client
}

type tavilyRequest struct {
	Query          string   `json:"query"`
	MaxResults     int      `json:"max_results"`
	IncludeDomains []string `json:"include_domains,omitempty"`
}

type tavilyResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search returns results for query, optionally restricted to domains.
// Video results from youtube.com are dropped.
func (w *WebSearch) Search(ctx context.Context, query string, domains []string) ([]SearchResult, error) {
	if w.APIKey == "" {
		return nil, errors.New("toolkit: web search api key is not set")
	}
	url := w.URL
	if url == "" {
		url = DefaultSearchURL
	}
	n := w.MaxResults
	if n <= 0 {
		n = DefaultMaxResults
	}
	body, err := json.Marshal(tavilyRequest{Query: query, MaxResults: n, IncludeDomains: domains})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+w.APIKey)

	hc := w.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("toolkit: web search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("toolkit: web search: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var tr tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("toolkit: decode web search response: %w", err)
	}
	results := make([]SearchResult, 0, len(tr.Results))
	for _, r := range tr.Results {
		if strings.Contains(r.URL, "youtube.com") {
			continue
		}
		results = append(results, SearchResult{Title: r.Title, Href: r.URL, Body: r.Content})
	}
	return results, nil
}

type webSearchArg struct {
	Query   string   `json:"query" jsonschema:"a detailed search instruction with the key topics, goals and context of the request"`
	Domains []string `json:"domains,omitempty" jsonschema:"optional list of domains to restrict the search to"`
}

// Tool exposes Search as the web_search tool.
func (w *WebSearch) Tool() *genx.FuncTool {
	return genx.MustNewFuncTool[webSearchArg]("web_search",
		"Search the web. Returns a list of results with title, href and body.",
		genx.InvokeFunc[webSearchArg](func(ctx context.Context, _ *genx.FuncCall, arg webSearchArg) (any, error) {
			if arg.Query == "" {
				return nil, errors.New("query is required")
			}
			return w.Search(ctx, arg.Query, arg.Domains)
		}))
}
