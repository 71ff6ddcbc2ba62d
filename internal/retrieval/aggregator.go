// Package retrieval fans out search, crawl and extract calls and merges
// their results.
package retrieval

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"coderag/internal/docs"
	"coderag/internal/domain"
)

// MaxExtractBatch is the most URLs the provider accepts per extract call.
const MaxExtractBatch = 20

var (
	ErrNothingToExtract = errors.New("nothing to extract")
	ErrAllBatchesFailed = errors.New("every extract batch failed")
)

// Config tunes the aggregator.
type Config struct {
	CrawlTimeout time.Duration
	BatchSize    int
}

// Aggregator coordinates the retrieval collaborators.
type Aggregator struct {
	searcher  domain.Searcher
	crawler   domain.Crawler
	extractor domain.Extractor
	cfg       Config
	log       *zap.Logger
}

func NewAggregator(s domain.Searcher, c domain.Crawler, e domain.Extractor, cfg Config, log *zap.Logger) *Aggregator {
	if cfg.CrawlTimeout <= 0 {
		cfg.CrawlTimeout = 150 * time.Second
	}
	if cfg.BatchSize < 1 || cfg.BatchSize > MaxExtractBatch {
		cfg.BatchSize = MaxExtractBatch
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{searcher: s, crawler: c, extractor: e, cfg: cfg, log: log}
}

// Search runs every query concurrently. A failing query is logged and
// contributes no documents. Results are flattened in query order.
func (a *Aggregator) Search(ctx context.Context, queries []string) []domain.SearchDoc {
	perQuery := make([][]domain.SearchDoc, len(queries))
	var g errgroup.Group
	for i, q := range queries {
		g.Go(func() error {
			res, err := a.searcher.Search(ctx, q)
			if err != nil {
				a.log.Warn("search query failed", zap.String("query", q), zap.Error(err))
				return nil
			}
			perQuery[i] = res
			return nil
		})
	}
	_ = g.Wait()

	var out []domain.SearchDoc
	for _, res := range perQuery {
		out = append(out, res...)
	}
	a.log.Info("search finished", zap.Int("queries", len(queries)), zap.Int("docs", len(out)))
	return out
}

// Crawl walks every target concurrently, each bounded by the crawl
// timeout. Failures contribute nothing and empty pages are dropped.
func (a *Aggregator) Crawl(ctx context.Context, targets []string) []domain.CrawlDoc {
	perTarget := make([][]domain.CrawlDoc, len(targets))
	var g errgroup.Group
	for i, target := range targets {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, a.cfg.CrawlTimeout)
			defer cancel()
			pages, err := a.crawler.Crawl(cctx, target)
			if err != nil {
				a.log.Warn("crawl failed", zap.String("url", target), zap.Error(err))
				return nil
			}
			perTarget[i] = pages
			return nil
		})
	}
	_ = g.Wait()

	var out []domain.CrawlDoc
	for _, pages := range perTarget {
		for _, p := range pages {
			if p.Content == "" {
				continue
			}
			out = append(out, p)
		}
	}
	a.log.Info("crawl finished", zap.Int("targets", len(targets)), zap.Int("pages", len(out)))
	return out
}

// ExtractResult is the merged outcome of an extraction pass.
type ExtractResult struct {
	Documents []domain.RawDoc
	Failed    []domain.FailedExtraction
}

// Extract dedups crawled pages by filename, keeps pages that already hold
// raw content, and fetches the rest in concurrent batches. Documents that
// were ready come first, followed by extracted documents in batch
// completion order.
func (a *Aggregator) Extract(ctx context.Context, crawled []domain.CrawlDoc) (ExtractResult, error) {
	part := docs.Dedup(crawled)
	a.log.Info("extract queued",
		zap.Int("ready", len(part.Ready)),
		zap.Int("queued", len(part.Queue)),
	)
	if len(part.Ready) == 0 && len(part.Queue) == 0 {
		return ExtractResult{}, ErrNothingToExtract
	}

	res := ExtractResult{Documents: part.Ready}
	var (
		mu      sync.Mutex
		batches int
		failed  int
	)
	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(part.Queue); start += a.cfg.BatchSize {
		batch := part.Queue[start:min(start+a.cfg.BatchSize, len(part.Queue))]
		batches++
		g.Go(func() error {
			out, err := a.extractor.Extract(gctx, batch)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				a.log.Error("extract batch failed", zap.Int("urls", len(batch)), zap.Error(err))
				failed++
				for _, u := range batch {
					res.Failed = append(res.Failed, domain.FailedExtraction{URL: u, Error: err.Error()})
				}
				return nil
			}
			for _, d := range out.Results {
				if d.Content == "" {
					continue
				}
				res.Documents = append(res.Documents, domain.RawDoc{URL: docs.ToBlob(d.URL), Content: d.Content})
			}
			res.Failed = append(res.Failed, out.Failed...)
			return nil
		})
	}
	_ = g.Wait()

	for _, f := range res.Failed {
		a.log.Info("extract failed", zap.String("url", f.URL), zap.String("error", f.Error))
	}
	success := len(res.Documents) - len(part.Ready)
	a.log.Info("extract finished",
		zap.Int("extracted", success),
		zap.Int("attempted", success+len(res.Failed)),
		zap.Int("documents", len(res.Documents)),
	)

	if batches > 0 && failed == batches && len(part.Ready) == 0 {
		return res, ErrAllBatchesFailed
	}
	return res, nil
}
