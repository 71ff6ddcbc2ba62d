package nodes

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"coderag/internal/domain"
	"coderag/internal/retrieval"
)

// Crawl collects pages below the selected targets.
type Crawl struct {
	agg *retrieval.Aggregator
	log *zap.Logger
}

func NewCrawl(agg *retrieval.Aggregator, log *zap.Logger) *Crawl {
	return &Crawl{agg: agg, log: named(log, "crawl")}
}

func (n *Crawl) Name() string { return "crawl" }

func (n *Crawl) Run(ctx context.Context, s domain.State) (domain.Update, error) {
	if len(s.CrawlTargets) == 0 {
		n.log.Warn("no crawl targets")
		return domain.Update{}, nil
	}
	pages := n.agg.Crawl(ctx, s.CrawlTargets)
	if pages == nil {
		pages = []domain.CrawlDoc{}
	}
	return domain.Update{CrawlResults: pages}, nil
}

// Extract turns crawled pages into deduplicated reference documents.
type Extract struct {
	agg *retrieval.Aggregator
	log *zap.Logger
}

func NewExtract(agg *retrieval.Aggregator, log *zap.Logger) *Extract {
	return &Extract{agg: agg, log: named(log, "extract")}
}

func (n *Extract) Name() string { return "extract" }

// Run degrades to an empty update when the crawl left nothing to extract.
// Every batch failing with no ready documents fails the stage.
func (n *Extract) Run(ctx context.Context, s domain.State) (domain.Update, error) {
	res, err := n.agg.Extract(ctx, s.CrawlResults)
	switch {
	case errors.Is(err, retrieval.ErrNothingToExtract):
		n.log.Warn("no crawled files to extract")
		return domain.Update{}, nil
	case errors.Is(err, retrieval.ErrAllBatchesFailed):
		n.log.Error("every extract batch failed", zap.Int("failed", len(res.Failed)))
		return domain.Update{}, fmt.Errorf("extract: %w", err)
	case err != nil:
		return domain.Update{}, fmt.Errorf("extract: %w", err)
	}
	if len(res.Documents) == 0 {
		return domain.Update{}, nil
	}
	return domain.Update{ReferenceDocuments: res.Documents}, nil
}
