// Package tavily is a client for the Tavily search, crawl and extract API.
package tavily

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"coderag/internal/domain"
)

const maxErrorBodyBytes = 8 * 1024

var ErrMissingAPIKey = errors.New("tavily api key is not configured")

type APIError struct {
	StatusCode int
	Body       string
}

func (e APIError) Error() string {
	return fmt.Sprintf("tavily returned %d: %s", e.StatusCode, e.Body)
}

// Config configures the Tavily client.
type Config struct {
	BaseURL   string
	APIKeyEnv string

	SearchDepth    string
	MaxResults     int
	IncludeDomains []string

	CrawlLimit   int
	CrawlDepth   int
	CrawlBreadth int
	SelectPaths  []string

	ExtractDepth string
}

// Client talks to the Tavily HTTP API. It implements domain.Searcher,
// domain.Crawler and domain.Extractor.
type Client struct {
	apiKey     string
	baseURL    string
	cfg        Config
	httpClient *http.Client
}

// NewClient resolves the API key from the environment and returns a client.
func NewClient(cfg Config, httpClient *http.Client) (*Client, error) {
	key := strings.TrimSpace(os.Getenv(cfg.APIKeyEnv))
	if key == "" {
		return nil, fmt.Errorf("%w (env %s)", ErrMissingAPIKey, cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.tavily.com"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 180 * time.Second}
	}
	return &Client{
		apiKey:     key,
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		cfg:        cfg,
		httpClient: httpClient,
	}, nil
}

type searchRequest struct {
	Query          string   `json:"query"`
	SearchDepth    string   `json:"search_depth,omitempty"`
	MaxResults     int      `json:"max_results,omitempty"`
	IncludeDomains []string `json:"include_domains,omitempty"`
}

type searchResponse struct {
	Results []struct {
		Title   string   `json:"title"`
		URL     string   `json:"url"`
		Content string   `json:"content"`
		Score   *float64 `json:"score"`
	} `json:"results"`
}

// Search runs a single query.
func (c *Client) Search(ctx context.Context, query string) ([]domain.SearchDoc, error) {
	req := searchRequest{
		Query:          query,
		SearchDepth:    c.cfg.SearchDepth,
		MaxResults:     c.cfg.MaxResults,
		IncludeDomains: c.cfg.IncludeDomains,
	}
	var resp searchResponse
	if err := c.post(ctx, "/search", req, &resp); err != nil {
		return nil, err
	}
	docs := make([]domain.SearchDoc, 0, len(resp.Results))
	for _, r := range resp.Results {
		if strings.TrimSpace(r.URL) == "" {
			continue
		}
		docs = append(docs, domain.SearchDoc{Title: r.Title, URL: r.URL, Content: r.Content, Score: r.Score})
	}
	return docs, nil
}

type crawlRequest struct {
	URL           string   `json:"url"`
	Limit         int      `json:"limit,omitempty"`
	MaxDepth      int      `json:"max_depth,omitempty"`
	MaxBreadth    int      `json:"max_breadth,omitempty"`
	ExtractDepth  string   `json:"extract_depth,omitempty"`
	AllowExternal bool     `json:"allow_external"`
	SelectPaths   []string `json:"select_paths,omitempty"`
}

type pagesResponse struct {
	Results []struct {
		URL        string `json:"url"`
		RawContent string `json:"raw_content"`
	} `json:"results"`
	FailedResults []struct {
		URL   string `json:"url"`
		Error string `json:"error"`
	} `json:"failed_results"`
}

// Crawl walks baseURL and returns the pages that carried content.
// The caller bounds the call with ctx.
func (c *Client) Crawl(ctx context.Context, baseURL string) ([]domain.CrawlDoc, error) {
	req := crawlRequest{
		URL:          baseURL,
		Limit:        c.cfg.CrawlLimit,
		MaxDepth:     c.cfg.CrawlDepth,
		MaxBreadth:   c.cfg.CrawlBreadth,
		ExtractDepth: c.cfg.ExtractDepth,
		SelectPaths:  c.cfg.SelectPaths,
	}
	var resp pagesResponse
	if err := c.post(ctx, "/crawl", req, &resp); err != nil {
		return nil, err
	}
	docs := make([]domain.CrawlDoc, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.RawContent == "" {
			continue
		}
		docs = append(docs, domain.CrawlDoc{URL: r.URL, Content: r.RawContent})
	}
	return docs, nil
}

type extractRequest struct {
	URLs         []string `json:"urls"`
	ExtractDepth string   `json:"extract_depth,omitempty"`
}

// Extract fetches the raw content of urls in one request.
func (c *Client) Extract(ctx context.Context, urls []string) (domain.ExtractBatch, error) {
	var resp pagesResponse
	if err := c.post(ctx, "/extract", extractRequest{URLs: urls, ExtractDepth: c.cfg.ExtractDepth}, &resp); err != nil {
		return domain.ExtractBatch{}, err
	}
	var batch domain.ExtractBatch
	for _, r := range resp.Results {
		if r.RawContent == "" {
			continue
		}
		batch.Results = append(batch.Results, domain.CrawlDoc{URL: r.URL, Content: r.RawContent})
	}
	for _, f := range resp.FailedResults {
		batch.Failed = append(batch.Failed, domain.FailedExtraction{URL: f.URL, Error: f.Error})
	}
	return batch, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode tavily %s request: %w", path, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build tavily request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request tavily %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode tavily %s response: %w", path, err)
	}
	return nil
}
