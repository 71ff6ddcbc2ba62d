package nodes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"coderag/internal/domain"
	"coderag/internal/llm"
)

// Drafter writes a first-pass solution used as the ranking anchor.
type Drafter struct {
	llm         domain.ChatModel
	temperature float64
	log         *zap.Logger
}

func NewDrafter(model domain.ChatModel, temperature float64, log *zap.Logger) *Drafter {
	return &Drafter{llm: model, temperature: temperature, log: named(log, "drafter")}
}

func (n *Drafter) Name() string { return "draft" }

func (n *Drafter) Run(ctx context.Context, s domain.State) (domain.Update, error) {
	problem, err := problemOf(s)
	if err != nil {
		return domain.Update{}, err
	}
	if s.Plan == nil || strings.TrimSpace(s.Plan.Outline) == "" {
		return domain.Update{}, errors.New("missing solution outline")
	}

	raw, err := n.llm.Complete(ctx, []domain.Message{
		domain.System(drafterPrompt),
		domain.Human(problem),
		domain.Assistant("Solution outline:\n" + strings.TrimSpace(s.Plan.Outline)),
	}, domain.WithTemperature(n.temperature))
	if err != nil {
		return domain.Update{}, fmt.Errorf("drafter completion: %w", err)
	}
	code := llm.StripFences(raw)
	if code == "" {
		return domain.Update{}, errors.New("drafter returned empty content")
	}
	n.log.Info("drafted", zap.Int("chars", len(code)))

	return domain.Update{
		Draft:    &domain.Draft{Content: code},
		Messages: []domain.Message{domain.Assistant(code)},
	}, nil
}
