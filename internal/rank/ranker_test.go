package rank

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"coderag/internal/domain"
)

// stubEmbedder maps a text to a vector by looking up its first rune.
type stubEmbedder struct {
	mu      sync.Mutex
	vectors map[rune][]float64
	batches []int
	seen    []string
	err     error
}

func (s *stubEmbedder) Name() string { return "stub" }

func (s *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, len(texts))
	s.seen = append(s.seen, texts...)
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		r := []rune(t)
		if len(r) == 0 {
			out[i] = []float64{0, 0}
			continue
		}
		v, ok := s.vectors[r[0]]
		if !ok {
			v = []float64{0, 0}
		}
		out[i] = v
	}
	return out, nil
}

func ptr(f float64) *float64 { return &f }

func TestSignatureCountsRunes(t *testing.T) {
	assert.Equal(t, "héll", Signature("héllo", 4))
	assert.Equal(t, "abc", Signature("abc", 8000))
	assert.Equal(t, "", Signature("abc", 0))
	long := strings.Repeat("x", 9000)
	assert.Len(t, Signature(long, 8000), 8000)
}

func TestCosineBounds(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
		ok   bool
	}{
		{"identical", []float64{1, 2, 3}, []float64{1, 2, 3}, 1, true},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1, true},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0, true},
		{"zero norm", []float64{0, 0}, []float64{1, 1}, 0, false},
		{"length mismatch", []float64{1}, []float64{1, 1}, 0, false},
		{"empty", nil, nil, 0, false},
		{"large", []float64{1e200, 1e200}, []float64{1e200, 1e200}, 1, true},
		{"tiny", []float64{1e-200, 1e-200}, []float64{1e-200, 1e-200}, 1, true},
		{"tiny uneven", []float64{1e-170, 2e-170}, []float64{1e-170, 2e-170}, 1, true},
		{"mixed scale", []float64{1e-300, 0}, []float64{1e300, 0}, 1, true},
		{"subnormal", []float64{5e-324}, []float64{-1}, -1, true},
		{"infinite", []float64{math.Inf(1), 1}, []float64{1, 1}, 0, false},
		{"nan", []float64{math.NaN(), 1}, []float64{1, 1}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Cosine(tt.a, tt.b)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.InDelta(t, tt.want, got, 1e-9)
				assert.GreaterOrEqual(t, got, -1.0)
				assert.LessOrEqual(t, got, 1.0)
			}
			assert.False(t, math.IsNaN(got))
		})
	}
}

func TestTopK(t *testing.T) {
	docs := []domain.RawDoc{
		{URL: "a", Similarity: ptr(0.5)},
		{URL: "b"},
		{URL: "c", Similarity: ptr(0.9)},
		{URL: "d", Similarity: ptr(0.5)},
		{URL: "e", Similarity: ptr(0.1)},
	}

	assert.Equal(t, []string{"c", "a", "d"}, URLs(TopK(docs, 3)))
	assert.Equal(t, []string{"c", "a", "d", "e"}, URLs(TopK(docs, 10)))
	assert.Empty(t, TopK(docs, 0))
	assert.Empty(t, TopK(nil, 3))
}

func TestTopKFallsBackToInputOrder(t *testing.T) {
	docs := []domain.RawDoc{{URL: "a"}, {URL: "b"}, {URL: "c"}, {URL: "d"}}
	assert.Equal(t, []string{"a", "b", "c"}, URLs(TopK(docs, 3)))
}

func TestRankingStability(t *testing.T) {
	docs := []domain.RawDoc{
		{URL: "x", Similarity: ptr(0.7)},
		{URL: "y", Similarity: ptr(0.7)},
		{URL: "z", Similarity: ptr(0.7)},
	}
	for i := 0; i < 5; i++ {
		assert.Equal(t, []string{"x", "y", "z"}, URLs(TopK(docs, 3)))
	}
}

func TestOrderedPutsUnscoredLast(t *testing.T) {
	docs := []domain.RawDoc{{URL: "n"}, {URL: "lo", Similarity: ptr(-0.2)}, {URL: "hi", Similarity: ptr(0.8)}}
	assert.Equal(t, []string{"hi", "lo", "n"}, URLs(Ordered(docs)))
}

func TestRankScoresAgainstDraft(t *testing.T) {
	emb := &stubEmbedder{vectors: map[rune][]float64{
		'a': {1, 0},
		'b': {0, 1},
		'z': {0, 0},
		'd': {1, 0},
	}}
	r := New(emb, Config{SignatureChars: 4, BatchSize: 96}, nil)
	docs := []domain.RawDoc{
		{URL: "u1", Content: "aaaaaaa"},
		{URL: "u2", Content: "bbbb"},
		{URL: "u3", Content: "zzz"},
	}

	res, err := r.Rank(context.Background(), docs, &domain.Draft{Content: "draft code"})
	require.NoError(t, err)

	require.Len(t, res.Documents, 3)
	assert.Equal(t, "aaaa", res.Documents[0].Signature)
	assert.InDelta(t, 1.0, *res.Documents[0].Similarity, 1e-9)
	assert.InDelta(t, 0.0, *res.Documents[1].Similarity, 1e-9)
	assert.Nil(t, res.Documents[2].Similarity, "zero vector has no similarity")
	require.NotNil(t, res.Draft)
	assert.Equal(t, "draf", res.Draft.Signature)
	assert.Equal(t, []float64{1, 0}, res.Draft.Embedding)
	assert.Equal(t, "draf", emb.seen[len(emb.seen)-1], "draft signature goes last")
	assert.Empty(t, docs[0].Signature, "input must not be mutated")
}

func TestRankBatchesPreserveOrder(t *testing.T) {
	vectors := map[rune][]float64{}
	docs := make([]domain.RawDoc, 0, 250)
	for i := 0; i < 250; i++ {
		r := rune('A' + i)
		vectors[r] = []float64{float64(i + 1), 1}
		docs = append(docs, domain.RawDoc{URL: string(r), Content: string(r)})
	}
	emb := &stubEmbedder{vectors: vectors}
	r := New(emb, Config{BatchSize: 96}, nil)

	res, err := r.Rank(context.Background(), docs, nil)
	require.NoError(t, err)

	assert.ElementsMatch(t, []int{96, 96, 58}, emb.batches)
	for i, d := range res.Documents {
		assert.Equal(t, float64(i+1), d.Embedding[0])
		assert.Nil(t, d.Similarity)
	}
	assert.Nil(t, res.Draft)
}

func TestRankPropagatesEmbeddingError(t *testing.T) {
	emb := &stubEmbedder{err: errors.New("quota")}
	r := New(emb, Config{}, nil)
	_, err := r.Rank(context.Background(), []domain.RawDoc{{URL: "u", Content: "a"}}, &domain.Draft{Content: "d"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota")
}

func TestRankNothingToDo(t *testing.T) {
	emb := &stubEmbedder{}
	res, err := New(emb, Config{}, nil).Rank(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Documents)
	assert.Empty(t, emb.batches)
}

func TestRankChunksUsesBestWindow(t *testing.T) {
	emb := &stubEmbedder{vectors: map[rune][]float64{
		'a': {0, 1},
		'b': {1, 0},
		'd': {1, 0},
	}}
	core, logs := observer.New(zapcore.DebugLevel)
	r := New(emb, Config{Strategy: StrategyChunks, ChunkSize: 4, ChunkOverlap: 0}, zap.New(core))
	docs := []domain.RawDoc{{URL: "u", Content: "aaaabbbb"}}

	res, err := r.Rank(context.Background(), docs, &domain.Draft{Content: "draft"})
	require.NoError(t, err)

	require.Len(t, res.Documents, 1)
	assert.InDelta(t, 1.0, *res.Documents[0].Similarity, 1e-9)
	assert.Equal(t, "bbbb", res.Documents[0].Signature)

	best := logs.FilterMessage("best chunk").All()
	require.Len(t, best, 1)
	fields := best[0].ContextMap()
	assert.Equal(t, "u", fields["url"])
	assert.Equal(t, int64(1), fields["index"])
	assert.Equal(t, int64(2), fields["chunks"])
	assert.True(t, strings.HasSuffix(fields["chunk_id"].(string), ":1"))
}
