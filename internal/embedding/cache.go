// Package embedding holds embedder decorators shared by every backend.
package embedding

import (
	"context"
	"crypto/sha256"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"coderag/internal/domain"
)

// Cached memoizes vectors by text so files seen in an earlier cycle are
// not embedded again. Only misses reach the wrapped embedder, in one call.
type Cached struct {
	inner domain.Embedder
	cache *lru.Cache[[sha256.Size]byte, []float64]
}

// NewCached wraps inner with an LRU cache holding up to size vectors.
func NewCached(inner domain.Embedder, size int) (*Cached, error) {
	c, err := lru.New[[sha256.Size]byte, []float64](size)
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}
	return &Cached{inner: inner, cache: c}, nil
}

func (c *Cached) Name() string { return c.inner.Name() }

// Len reports the number of cached vectors.
func (c *Cached) Len() int { return c.cache.Len() }

// Prepare forwards to the wrapped embedder when it needs the corpus.
// A new vocabulary invalidates every cached vector.
func (c *Cached) Prepare(corpus []string) error {
	p, ok := c.inner.(domain.Preparer)
	if !ok {
		return nil
	}
	c.cache.Purge()
	return p.Prepare(corpus)
}

func (c *Cached) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	keys := make([][sha256.Size]byte, len(texts))
	var (
		missing []string
		slots   [][]int
		index   = make(map[[sha256.Size]byte]int)
	)
	for i, t := range texts {
		keys[i] = sha256.Sum256([]byte(t))
		if v, ok := c.cache.Get(keys[i]); ok {
			out[i] = v
			continue
		}
		if j, ok := index[keys[i]]; ok {
			slots[j] = append(slots[j], i)
			continue
		}
		index[keys[i]] = len(missing)
		missing = append(missing, t)
		slots = append(slots, []int{i})
	}
	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := c.inner.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("embedding cache: got %d vectors for %d inputs", len(vecs), len(missing))
	}
	for j, v := range vecs {
		for _, i := range slots[j] {
			out[i] = v
		}
		c.cache.Add(keys[slots[j][0]], v)
	}
	return out, nil
}
