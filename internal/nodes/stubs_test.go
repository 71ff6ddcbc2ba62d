package nodes

import (
	"context"
	"errors"
	"sync"

	"coderag/internal/domain"
)

// scriptedModel replies based on the system prompt of each call.
type scriptedModel struct {
	mu      sync.Mutex
	replies map[string]string
	err     error
	calls   [][]domain.Message
	opts    []domain.Options
}

func (m *scriptedModel) Complete(_ context.Context, msgs []domain.Message, opts ...domain.Option) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, msgs)
	m.opts = append(m.opts, domain.ApplyOptions(opts...))
	if m.err != nil {
		return "", m.err
	}
	if len(msgs) == 0 {
		return "", errors.New("no messages")
	}
	reply, ok := m.replies[msgs[0].Content]
	if !ok {
		return "", errors.New("unexpected prompt")
	}
	return reply, nil
}

type stubConsole struct {
	answers  []string
	askErr   error
	said     []string
	summary  []domain.RunSummary
	prompted []string
}

func (c *stubConsole) Ask(_ context.Context, prompt string) (string, error) {
	c.prompted = append(c.prompted, prompt)
	if c.askErr != nil {
		return "", c.askErr
	}
	if len(c.answers) == 0 {
		return "", nil
	}
	a := c.answers[0]
	c.answers = c.answers[1:]
	return a, nil
}

func (c *stubConsole) ShowSummary(s domain.RunSummary) { c.summary = append(c.summary, s) }

func (c *stubConsole) Say(text string) { c.said = append(c.said, text) }

type mapSearcher map[string][]domain.SearchDoc

func (m mapSearcher) Search(_ context.Context, q string) ([]domain.SearchDoc, error) {
	return m[q], nil
}

type mapCrawler map[string][]domain.CrawlDoc

func (m mapCrawler) Crawl(_ context.Context, u string) ([]domain.CrawlDoc, error) {
	return m[u], nil
}

type echoExtractor struct{ err error }

func (e echoExtractor) Extract(_ context.Context, urls []string) (domain.ExtractBatch, error) {
	if e.err != nil {
		return domain.ExtractBatch{}, e.err
	}
	var b domain.ExtractBatch
	for _, u := range urls {
		b.Results = append(b.Results, domain.CrawlDoc{URL: u, Content: "body " + u})
	}
	return b, nil
}

type constEmbedder struct {
	vectors map[string][]float64
	err     error
}

func (e constEmbedder) Name() string { return "const" }

func (e constEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float64, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		if v, ok := e.vectors[t]; ok {
			out[i] = v
		} else {
			out[i] = []float64{0, 1}
		}
	}
	return out, nil
}

func ptr(f float64) *float64 { return &f }
