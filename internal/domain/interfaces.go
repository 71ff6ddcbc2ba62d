package domain

import (
	"context"
	"errors"
)

// ErrAborted is returned by a Console when the user cancels input.
var ErrAborted = errors.New("input aborted")

// ChatModel produces a completion for a role-tagged message history.
type ChatModel interface {
	Complete(ctx context.Context, messages []Message, opts ...Option) (string, error)
}

// Searcher runs a single web search query.
type Searcher interface {
	Search(ctx context.Context, query string) ([]SearchDoc, error)
}

// Crawler walks a base URL and returns the pages it collected.
type Crawler interface {
	Crawl(ctx context.Context, baseURL string) ([]CrawlDoc, error)
}

// Extractor fetches the full content of a batch of URLs.
// A batch-level error means no URL in the batch was extracted.
type Extractor interface {
	Extract(ctx context.Context, urls []string) (ExtractBatch, error)
}

// Embedder converts texts into vectors, one per input, in input order.
type Embedder interface {
	Name() string
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// Preparer is implemented by embedders that must see the whole corpus
// before embedding any part of it.
type Preparer interface {
	Prepare(corpus []string) error
}

// Console is the interactive surface the pipeline talks to the user through.
type Console interface {
	Ask(ctx context.Context, prompt string) (string, error)
	ShowSummary(summary RunSummary)
	Say(text string)
}

// Options are per-call generation settings for a ChatModel.
type Options struct {
	Temperature *float64
	MaxTokens   int
	Model       string
	JSONObject  bool
}

// Option mutates Options.
type Option func(*Options)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Options) { o.Temperature = &t }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(o *Options) { o.MaxTokens = n }
}

// WithModel overrides the configured model for one call.
func WithModel(model string) Option {
	return func(o *Options) { o.Model = model }
}

// WithJSONObject asks the model to reply with a single JSON object.
func WithJSONObject() Option {
	return func(o *Options) { o.JSONObject = true }
}

// ApplyOptions folds opts into a fresh Options value.
func ApplyOptions(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
