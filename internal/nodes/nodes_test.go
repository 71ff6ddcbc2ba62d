package nodes

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coderag/internal/domain"
	"coderag/internal/rank"
	"coderag/internal/retrieval"
)

func TestPlannerParsesOutlineAndQueries(t *testing.T) {
	model := &scriptedModel{replies: map[string]string{
		plannerPrompt: `{"solution_outline":" 1. parse 2. sort ","search_queries":["go sort slice"," ","heap sort go"]}`,
	}}
	p := NewPlanner(model, 0.3, nil)

	u, err := p.Run(context.Background(), domain.NewState("sort numbers"))
	require.NoError(t, err)

	require.NotNil(t, u.Plan)
	assert.Equal(t, "1. parse 2. sort", u.Plan.Outline)
	assert.Equal(t, []string{"go sort slice", "heap sort go"}, u.Plan.Queries)
	require.Len(t, u.Messages, 1)
	assert.Equal(t, domain.RoleAssistant, u.Messages[0].Role)
	require.Len(t, model.calls, 1)
	assert.Equal(t, "sort numbers", model.calls[0][1].Content)
	require.NotNil(t, model.opts[0].Temperature)
	assert.InDelta(t, 0.3, *model.opts[0].Temperature, 1e-9)
	assert.True(t, model.opts[0].JSONObject)
}

func TestPlannerRejects(t *testing.T) {
	tests := []struct {
		name  string
		state domain.State
		reply string
	}{
		{"empty conversation", domain.State{}, `{}`},
		{"last is assistant", domain.NewState("p").Apply(domain.Update{Messages: []domain.Message{domain.Assistant("x")}}), `{}`},
		{"blank problem", domain.NewState("   "), `{}`},
		{"too many queries", domain.NewState("p"), `{"solution_outline":"o","search_queries":["a","b","c","d"]}`},
		{"missing outline", domain.NewState("p"), `{"search_queries":["a"]}`},
		{"not json", domain.NewState("p"), `sure, here you go`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &scriptedModel{replies: map[string]string{plannerPrompt: tt.reply}}
			_, err := NewPlanner(model, 0.3, nil).Run(context.Background(), tt.state)
			assert.Error(t, err)
		})
	}
}

func TestSearchNode(t *testing.T) {
	agg := retrieval.NewAggregator(mapSearcher{
		"a": {{URL: "https://github.com/o/a"}},
		"b": {{URL: "https://github.com/o/b"}},
	}, nil, nil, retrieval.Config{}, nil)
	n := NewSearch(agg, nil)

	s := domain.NewState("p").Apply(domain.Update{Plan: &domain.Plan{Queries: []string{"a", "b"}}})
	u, err := n.Run(context.Background(), s)
	require.NoError(t, err)
	assert.Len(t, u.SearchResults, 2)

	u, err = n.Run(context.Background(), domain.NewState("p"))
	require.NoError(t, err)
	assert.True(t, u.IsZero())
}

func TestFilterSelectsTargets(t *testing.T) {
	model := &scriptedModel{replies: map[string]string{
		filterPrompt: `{"selected_urls":["https://github.com/o/r/tree/main/src "]}`,
	}}
	s := domain.NewState("p").Apply(domain.Update{
		Plan:          &domain.Plan{Outline: "o"},
		SearchResults: []domain.SearchDoc{{Title: "T", URL: "https://github.com/o/r/blob/main/src/a.go", Score: ptr(0.8)}},
	})

	u, err := NewFilter(model, 0.2, nil).Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://github.com/o/r/tree/main/src"}, u.CrawlTargets)
	listing := model.calls[0][3].Content
	assert.Contains(t, listing, "[01] score=0.80  https://github.com/o/r/blob/main/src/a.go  T")
}

func TestFilterErrors(t *testing.T) {
	model := &scriptedModel{replies: map[string]string{filterPrompt: `{"selected_urls":[]}`}}
	f := NewFilter(model, 0.2, nil)

	_, err := f.Run(context.Background(), domain.NewState("p"))
	assert.Error(t, err, "no search results")

	s := domain.NewState("p").Apply(domain.Update{SearchResults: []domain.SearchDoc{{URL: "u"}}})
	_, err = f.Run(context.Background(), s)
	assert.Error(t, err, "empty selection")
}

func TestDrafterUsesLatestProblem(t *testing.T) {
	model := &scriptedModel{replies: map[string]string{drafterPrompt: "```go\npackage main\n```"}}
	s := domain.NewState("first problem").Apply(domain.Update{
		Messages: []domain.Message{domain.Assistant("old"), domain.Human("second problem")},
		Plan:     &domain.Plan{Outline: "outline"},
	})

	u, err := NewDrafter(model, 0.2, nil).Run(context.Background(), s)
	require.NoError(t, err)
	require.NotNil(t, u.Draft)
	assert.Equal(t, "package main", u.Draft.Content)
	assert.Equal(t, "second problem", model.calls[0][1].Content)
}

func TestDrafterNeedsOutline(t *testing.T) {
	model := &scriptedModel{replies: map[string]string{drafterPrompt: "code"}}
	_, err := NewDrafter(model, 0.2, nil).Run(context.Background(), domain.NewState("p"))
	assert.Error(t, err)
}

func TestCrawlAndExtractNodes(t *testing.T) {
	agg := retrieval.NewAggregator(nil, mapCrawler{
		"https://github.com/o/r": {
			{URL: "https://github.com/o/r/blob/main/a.py", Content: "page"},
			{URL: "https://github.com/o/r/raw/main/b.py", Content: "B"},
		},
	}, echoExtractor{}, retrieval.Config{}, nil)

	s := domain.NewState("p").Apply(domain.Update{CrawlTargets: []string{"https://github.com/o/r"}})
	cu, err := NewCrawl(agg, nil).Run(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, cu.CrawlResults, 2)

	eu, err := NewExtract(agg, nil).Run(context.Background(), s.Apply(cu))
	require.NoError(t, err)
	require.Len(t, eu.ReferenceDocuments, 2)
	assert.Equal(t, "https://github.com/o/r/blob/main/b.py", eu.ReferenceDocuments[0].URL)
	assert.Equal(t, "https://github.com/o/r/blob/main/a.py", eu.ReferenceDocuments[1].URL)
	assert.Equal(t, "body https://github.com/o/r/raw/main/a.py", eu.ReferenceDocuments[1].Content)
}

func TestExtractNodeNothingToExtract(t *testing.T) {
	agg := retrieval.NewAggregator(nil, nil, echoExtractor{}, retrieval.Config{}, nil)

	u, err := NewExtract(agg, nil).Run(context.Background(), domain.NewState("p"))
	require.NoError(t, err)
	assert.True(t, u.IsZero())
}

func TestExtractNodeFailsWhenEveryBatchFails(t *testing.T) {
	agg := retrieval.NewAggregator(nil, nil, echoExtractor{err: errors.New("down")}, retrieval.Config{}, nil)
	s := domain.NewState("p").Apply(domain.Update{CrawlResults: []domain.CrawlDoc{{URL: "https://github.com/o/r/blob/main/a.py"}}})

	u, err := NewExtract(agg, nil).Run(context.Background(), s)
	require.ErrorIs(t, err, retrieval.ErrAllBatchesFailed)
	assert.True(t, u.IsZero())
}

func TestExtractNodeKeepsReadyDocsWhenBatchesFail(t *testing.T) {
	agg := retrieval.NewAggregator(nil, nil, echoExtractor{err: errors.New("down")}, retrieval.Config{}, nil)
	s := domain.NewState("p").Apply(domain.Update{CrawlResults: []domain.CrawlDoc{
		{URL: "https://github.com/o/r/raw/main/b.py", Content: "B"},
		{URL: "https://github.com/o/r/blob/main/a.py", Content: "page"},
	}})

	u, err := NewExtract(agg, nil).Run(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, u.ReferenceDocuments, 1)
	assert.Equal(t, "https://github.com/o/r/blob/main/b.py", u.ReferenceDocuments[0].URL)
}

func TestRankNode(t *testing.T) {
	emb := constEmbedder{vectors: map[string][]float64{"draft": {0, 1}, "close": {0, 2}, "far": {1, 0}}}
	n := NewRank(rank.New(emb, rank.Config{}, nil), nil)
	s := domain.NewState("p").Apply(domain.Update{
		Draft:              &domain.Draft{Content: "draft"},
		ReferenceDocuments: []domain.RawDoc{{URL: "f", Content: "far"}, {URL: "c", Content: "close"}},
	})

	u, err := n.Run(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, u.ReferenceDocuments, 2)
	assert.InDelta(t, 0.0, *u.ReferenceDocuments[0].Similarity, 1e-9)
	assert.InDelta(t, 1.0, *u.ReferenceDocuments[1].Similarity, 1e-9)
	assert.Equal(t, []float64{0, 1}, u.Draft.Embedding)
}

func TestRankNodeEmbeddingErrorIsFatal(t *testing.T) {
	n := NewRank(rank.New(constEmbedder{err: errors.New("quota")}, rank.Config{}, nil), nil)
	s := domain.NewState("p").Apply(domain.Update{Draft: &domain.Draft{Content: "d"}})
	_, err := n.Run(context.Background(), s)
	assert.Error(t, err)

	u, err := n.Run(context.Background(), domain.NewState("p"))
	require.NoError(t, err)
	assert.True(t, u.IsZero())
}

func TestRefinerCitesTopDocuments(t *testing.T) {
	model := &scriptedModel{replies: map[string]string{refinerPrompt: "final code"}}
	long := strings.Repeat("x", 9000)
	s := domain.NewState("p").Apply(domain.Update{
		Draft: &domain.Draft{Content: "draft"},
		ReferenceDocuments: []domain.RawDoc{
			{URL: "a", Content: "A", Similarity: ptr(0.1)},
			{URL: "b", Content: long, Similarity: ptr(0.9)},
			{URL: "c", Content: "C"},
			{URL: "d", Content: "D", Similarity: ptr(0.5)},
			{URL: "e", Content: "E", Similarity: ptr(0.3)},
		},
	})

	u, err := NewRefiner(model, 0.15, 3, 8000, nil).Run(context.Background(), s)
	require.NoError(t, err)

	require.NotNil(t, u.FinalResult)
	assert.Equal(t, "final code", u.FinalResult.Content)
	assert.Equal(t, []string{"b", "d", "e"}, u.FinalResult.Sources)
	assert.Equal(t, domain.StatusRefined, u.Status)
	examples := model.calls[0][3].Content
	assert.Contains(t, examples, "[1] b\n")
	assert.Contains(t, examples, strings.Repeat("x", 7970)+" …")
	assert.NotContains(t, examples, strings.Repeat("x", 7971))
}

func TestRefinerWithoutScores(t *testing.T) {
	model := &scriptedModel{replies: map[string]string{refinerPrompt: "code"}}
	s := domain.NewState("p").Apply(domain.Update{
		Draft:              &domain.Draft{Content: "draft"},
		ReferenceDocuments: []domain.RawDoc{{URL: "a"}, {URL: "b"}, {URL: "c"}, {URL: "d"}},
	})
	u, err := NewRefiner(model, 0.15, 3, 8000, nil).Run(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, u.FinalResult.Sources)

	_, err = NewRefiner(model, 0.15, 3, 8000, nil).Run(context.Background(), domain.NewState("p"))
	assert.Error(t, err, "missing draft")
}

func TestClip(t *testing.T) {
	assert.Equal(t, "short", clip("short", 8000))
	out := clip(strings.Repeat("é", 100), 40)
	assert.Equal(t, strings.Repeat("é", 10)+" …", out)
}

func TestSummarize(t *testing.T) {
	s := domain.State{
		SearchResults:      make([]domain.SearchDoc, 4),
		CrawlResults:       make([]domain.CrawlDoc, 2),
		ReferenceDocuments: []domain.RawDoc{{URL: "n"}, {URL: "a", Similarity: ptr(0.2)}, {URL: "b", Similarity: ptr(0.7)}},
		FinalResult:        &domain.FinalResult{Content: "code", Sources: []string{"b"}},
	}
	sum := Summarize(s)
	assert.Equal(t, 4, sum.SearchCount)
	assert.Equal(t, 2, sum.CrawlCount)
	assert.Equal(t, 3, sum.ReferenceCount)
	assert.Equal(t, "code", sum.Solution)
	assert.Equal(t, []domain.ScoredSource{{URL: "b", Similarity: 0.7}, {URL: "a", Similarity: 0.2}}, sum.Ranked)
}
