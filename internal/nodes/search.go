package nodes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"coderag/internal/domain"
	"coderag/internal/llm"
	"coderag/internal/retrieval"
)

// Search runs the planned queries.
type Search struct {
	agg *retrieval.Aggregator
	log *zap.Logger
}

func NewSearch(agg *retrieval.Aggregator, log *zap.Logger) *Search {
	return &Search{agg: agg, log: named(log, "search")}
}

func (n *Search) Name() string { return "search" }

func (n *Search) Run(ctx context.Context, s domain.State) (domain.Update, error) {
	if s.Plan == nil || len(s.Plan.Queries) == 0 {
		n.log.Warn("no search queries")
		return domain.Update{}, nil
	}
	docs := n.agg.Search(ctx, s.Plan.Queries)
	if docs == nil {
		docs = []domain.SearchDoc{}
	}
	return domain.Update{SearchResults: docs}, nil
}

type filterReply struct {
	SelectedURLs []string `json:"selected_urls" validate:"min=1,max=3,dive,required"`
}

// Filter asks the model to pick the folders worth crawling.
type Filter struct {
	llm         domain.ChatModel
	temperature float64
	log         *zap.Logger
}

func NewFilter(model domain.ChatModel, temperature float64, log *zap.Logger) *Filter {
	return &Filter{llm: model, temperature: temperature, log: named(log, "filter")}
}

func (n *Filter) Name() string { return "filter" }

func (n *Filter) Run(ctx context.Context, s domain.State) (domain.Update, error) {
	if len(s.SearchResults) == 0 {
		return domain.Update{}, errors.New("no search results to filter")
	}
	problem, err := problemOf(s)
	if err != nil {
		return domain.Update{}, err
	}
	outline := ""
	if s.Plan != nil {
		outline = s.Plan.Outline
	}

	raw, err := n.llm.Complete(ctx, []domain.Message{
		domain.System(filterPrompt),
		domain.Human(problem),
		domain.Assistant("Solution outline:\n" + outline),
		domain.Human(formatSearchResults(s.SearchResults)),
	}, domain.WithTemperature(n.temperature), domain.WithJSONObject())
	if err != nil {
		return domain.Update{}, fmt.Errorf("filter completion: %w", err)
	}

	var reply filterReply
	if err := llm.DecodeJSON(raw, &reply); err != nil {
		return domain.Update{}, fmt.Errorf("filter reply: %w", err)
	}
	targets := make([]string, 0, len(reply.SelectedURLs))
	for _, u := range reply.SelectedURLs {
		targets = append(targets, strings.TrimSpace(u))
	}
	n.log.Info("selected crawl targets", zap.Strings("urls", targets))

	return domain.Update{
		CrawlTargets: targets,
		Messages:     []domain.Message{domain.Assistant(raw)},
	}, nil
}

func formatSearchResults(docs []domain.SearchDoc) string {
	var b strings.Builder
	for i, d := range docs {
		score := "-"
		if d.Score != nil {
			score = fmt.Sprintf("%.2f", *d.Score)
		}
		fmt.Fprintf(&b, "[%02d] score=%s  %s  %s\n", i+1, score, d.URL, d.Title)
	}
	return strings.TrimRight(b.String(), "\n")
}
