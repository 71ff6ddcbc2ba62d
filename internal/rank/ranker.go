// Package rank scores reference documents by embedding similarity to a
// draft solution and selects the best matches.
package rank

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"coderag/internal/chunker"
	"coderag/internal/domain"
)

// Strategy selects how a document is represented for ranking.
type Strategy string

const (
	// StrategyPrefix embeds the leading signature of each document.
	StrategyPrefix Strategy = "prefix"
	// StrategyChunks embeds overlapping windows of each document and
	// scores the document by its best window.
	StrategyChunks Strategy = "chunks"
)

// Config tunes the ranker.
type Config struct {
	Strategy       Strategy
	SignatureChars int
	BatchSize      int
	ChunkSize      int
	ChunkOverlap   int
}

// Ranker embeds documents alongside a reference text and scores them by
// cosine similarity to it.
type Ranker struct {
	embedder domain.Embedder
	cfg      Config
	chunker  *chunker.WindowChunker
	log      *zap.Logger
}

// Result is the outcome of a ranking pass. Draft is a copy of the
// reference with its signature and embedding set, or nil.
type Result struct {
	Documents []domain.RawDoc
	Draft     *domain.Draft
}

func New(embedder domain.Embedder, cfg Config, log *zap.Logger) *Ranker {
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyPrefix
	}
	if cfg.SignatureChars < 1 {
		cfg.SignatureChars = 8000
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 96
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Ranker{
		embedder: embedder,
		cfg:      cfg,
		chunker:  chunker.NewWindowChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		log:      log,
	}
}

// Rank embeds docs and the draft and returns copies of docs with
// signature, embedding and similarity set. Without a draft every
// similarity stays nil. Input documents are not modified.
func (r *Ranker) Rank(ctx context.Context, docs []domain.RawDoc, draft *domain.Draft) (Result, error) {
	if len(docs) == 0 && draft == nil {
		return Result{}, nil
	}
	if r.cfg.Strategy == StrategyChunks {
		return r.rankChunks(ctx, docs, draft)
	}

	out := make([]domain.RawDoc, len(docs))
	signatures := make([]string, 0, len(docs)+1)
	for i, d := range docs {
		out[i] = d
		out[i].Signature = Signature(d.Content, r.cfg.SignatureChars)
		out[i].Similarity = nil
		signatures = append(signatures, out[i].Signature)
	}
	anchor := r.anchor(draft)
	if anchor != nil {
		signatures = append(signatures, anchor.Signature)
	}

	vectors, err := r.embed(ctx, signatures)
	if err != nil {
		return Result{}, err
	}
	if anchor != nil {
		anchor.Embedding = vectors[len(vectors)-1]
		vectors = vectors[:len(vectors)-1]
	}
	for i := range out {
		out[i].Embedding = vectors[i]
		if anchor != nil {
			if sim, ok := Cosine(anchor.Embedding, vectors[i]); ok {
				out[i].Similarity = &sim
			}
		}
	}
	r.logRanking(out, anchor != nil)
	return Result{Documents: out, Draft: anchor}, nil
}

func (r *Ranker) anchor(draft *domain.Draft) *domain.Draft {
	if draft == nil {
		return nil
	}
	d := *draft
	d.Signature = Signature(d.Content, r.cfg.SignatureChars)
	d.Embedding = nil
	return &d
}

func (r *Ranker) rankChunks(ctx context.Context, docs []domain.RawDoc, draft *domain.Draft) (Result, error) {
	type span struct{ start, end int }
	var (
		chunks []chunker.Chunk
		texts  []string
	)
	spans := make([]span, len(docs))
	for i, d := range docs {
		spans[i].start = len(texts)
		for _, ch := range r.chunker.Split(d.URL, d.Content) {
			chunks = append(chunks, ch)
			texts = append(texts, ch.Text)
		}
		spans[i].end = len(texts)
	}
	anchor := r.anchor(draft)
	if anchor != nil {
		texts = append(texts, anchor.Signature)
	}

	vectors, err := r.embed(ctx, texts)
	if err != nil {
		return Result{}, err
	}
	if anchor != nil {
		anchor.Embedding = vectors[len(vectors)-1]
	}

	out := make([]domain.RawDoc, len(docs))
	for i, d := range docs {
		out[i] = d
		out[i].Similarity = nil
		out[i].Signature = ""
		out[i].Embedding = nil
		best := -1
		for j := spans[i].start; j < spans[i].end; j++ {
			if out[i].Embedding == nil {
				out[i].Signature, out[i].Embedding = texts[j], vectors[j]
			}
			if anchor == nil {
				continue
			}
			sim, ok := Cosine(anchor.Embedding, vectors[j])
			if !ok {
				continue
			}
			if out[i].Similarity == nil || sim > *out[i].Similarity {
				out[i].Similarity = &sim
				out[i].Signature, out[i].Embedding = texts[j], vectors[j]
				best = j
			}
		}
		if best >= 0 {
			r.log.Debug("best chunk",
				zap.String("chunk_id", chunks[best].ID),
				zap.String("url", chunks[best].Source),
				zap.Int("index", chunks[best].Index),
				zap.Int("chunks", spans[i].end-spans[i].start),
				zap.Float64("similarity", *out[i].Similarity),
			)
		}
	}
	r.logRanking(out, anchor != nil)
	return Result{Documents: out, Draft: anchor}, nil
}

// embed requests vectors in concurrent batches and preserves input order.
func (r *Ranker) embed(ctx context.Context, texts []string) ([][]float64, error) {
	vectors := make([][]float64, len(texts))
	if len(texts) == 0 {
		return vectors, nil
	}
	if p, ok := r.embedder.(domain.Preparer); ok {
		if err := p.Prepare(texts); err != nil {
			return nil, fmt.Errorf("prepare embedder: %w", err)
		}
	}
	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < len(texts); start += r.cfg.BatchSize {
		end := min(start+r.cfg.BatchSize, len(texts))
		g.Go(func() error {
			batch, err := r.embedder.EmbedBatch(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("embed batch %d-%d: %w", start, end, err)
			}
			if len(batch) != end-start {
				return fmt.Errorf("embed batch %d-%d: got %d vectors", start, end, len(batch))
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (r *Ranker) logRanking(docs []domain.RawDoc, hasReference bool) {
	r.log.Info("embedded reference documents",
		zap.Int("docs", len(docs)),
		zap.Bool("draft", hasReference),
		zap.String("strategy", string(r.cfg.Strategy)),
	)
	for _, d := range Ordered(docs) {
		fields := []zap.Field{zap.String("url", d.URL)}
		if d.Similarity != nil {
			fields = append(fields, zap.Float64("similarity", *d.Similarity))
		}
		r.log.Debug("ranked", fields...)
	}
}
