// Package nodes holds the pipeline stages. Each stage reads a snapshot of
// the shared state and returns a partial update.
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

type planReply struct {
	SolutionOutline string   `json:"solution_outline" validate:"required"`
	SearchQueries   []string `json:"search_queries" validate:"max=3"`
}

// Planner turns the latest user problem into an outline and search queries.
type Planner struct {
	llm         domain.ChatModel
	temperature float64
	log         *zap.Logger
}

func NewPlanner(model domain.ChatModel, temperature float64, log *zap.Logger) *Planner {
	return &Planner{llm: model, temperature: temperature, log: named(log, "planner")}
}

func (p *Planner) Name() string { return "plan" }

func (p *Planner) Run(ctx context.Context, s domain.State) (domain.Update, error) {
	last, ok := s.LastMessage()
	if !ok {
		return domain.Update{}, errors.New("conversation is empty")
	}
	if last.Role != domain.RoleHuman {
		return domain.Update{}, fmt.Errorf("expected last message from human, got %s", last.Role)
	}
	problem := strings.TrimSpace(last.Content)
	if problem == "" {
		return domain.Update{}, errors.New("user problem is empty")
	}

	raw, err := p.llm.Complete(ctx, []domain.Message{
		domain.System(plannerPrompt),
		domain.Human(problem),
	}, domain.WithTemperature(p.temperature), domain.WithJSONObject())
	if err != nil {
		return domain.Update{}, fmt.Errorf("planner completion: %w", err)
	}

	var reply planReply
	if err := llm.DecodeJSON(raw, &reply); err != nil {
		return domain.Update{}, fmt.Errorf("planner reply: %w", err)
	}
	plan := &domain.Plan{Outline: strings.TrimSpace(reply.SolutionOutline)}
	for _, q := range reply.SearchQueries {
		if q = strings.TrimSpace(q); q != "" {
			plan.Queries = append(plan.Queries, q)
		}
	}
	p.log.Info("planned", zap.String("outline", clip(plan.Outline, 500)), zap.Strings("queries", plan.Queries))

	return domain.Update{
		Plan:     plan,
		Messages: []domain.Message{domain.Assistant(raw)},
	}, nil
}

func named(log *zap.Logger, name string) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log.Named(name)
}

// clip truncates text to limit runes, marking the cut with " …".
func clip(text string, limit int) string {
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	keep := limit - 30
	if keep < 0 {
		keep = 0
	}
	return string(r[:keep]) + " …"
}

// problemOf returns the latest human message, which is the problem the
// current cycle is solving.
func problemOf(s domain.State) (string, error) {
	m, ok := s.LastHuman()
	if !ok || strings.TrimSpace(m.Content) == "" {
		return "", errors.New("no user problem in conversation")
	}
	return strings.TrimSpace(m.Content), nil
}
