package nodes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"coderag/internal/domain"
	"coderag/internal/llm"
	"coderag/internal/rank"
)

// Refiner polishes the draft using the best-matching reference documents.
type Refiner struct {
	llm          domain.ChatModel
	temperature  float64
	topK         int
	exampleChars int
	log          *zap.Logger
}

func NewRefiner(model domain.ChatModel, temperature float64, topK, exampleChars int, log *zap.Logger) *Refiner {
	if topK < 1 {
		topK = 3
	}
	if exampleChars < 1 {
		exampleChars = 8000
	}
	return &Refiner{
		llm:          model,
		temperature:  temperature,
		topK:         topK,
		exampleChars: exampleChars,
		log:          named(log, "refiner"),
	}
}

func (n *Refiner) Name() string { return "refine" }

func (n *Refiner) Run(ctx context.Context, s domain.State) (domain.Update, error) {
	problem, err := problemOf(s)
	if err != nil {
		return domain.Update{}, err
	}
	if s.Draft == nil || strings.TrimSpace(s.Draft.Content) == "" {
		return domain.Update{}, errors.New("missing draft")
	}
	top := rank.TopK(s.ReferenceDocuments, n.topK)
	n.log.Info("selected examples", zap.Int("documents", len(s.ReferenceDocuments)), zap.Strings("top", rank.URLs(top)))

	raw, err := n.llm.Complete(ctx, []domain.Message{
		domain.System(refinerPrompt),
		domain.Human(problem),
		domain.Assistant("Current draft code:\n```\n" + strings.TrimSpace(s.Draft.Content) + "\n```"),
		domain.Assistant("Reference examples (full text below). Improve the draft; cite a URL above reused blocks.\n\n" +
			n.examples(top)),
	}, domain.WithTemperature(n.temperature))
	if err != nil {
		return domain.Update{}, fmt.Errorf("refiner completion: %w", err)
	}
	code := llm.StripFences(raw)
	if code == "" {
		return domain.Update{}, errors.New("refiner returned empty content")
	}
	n.log.Info("refined", zap.Int("chars", len(code)))

	return domain.Update{
		FinalResult: &domain.FinalResult{Content: code, Sources: rank.URLs(top)},
		Messages:    []domain.Message{domain.Assistant(code)},
		Status:      domain.StatusRefined,
	}, nil
}

func (n *Refiner) examples(top []domain.RawDoc) string {
	if len(top) == 0 {
		return "(no examples)"
	}
	parts := make([]string, 0, len(top))
	for i, d := range top {
		parts = append(parts, fmt.Sprintf("[%d] %s\n%s", i+1, d.URL, clip(d.Content, n.exampleChars)))
	}
	return strings.Join(parts, "\n\n")
}
