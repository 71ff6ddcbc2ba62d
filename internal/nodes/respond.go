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

// DefaultGoodbye closes a session when the user has nothing more to ask.
const DefaultGoodbye = "Glad I could help, good luck!"

const followUpQuestion = "Anything else I can help with?"

type followUpReply struct {
	Status  string `json:"status" validate:"required,oneof=continue done"`
	Problem string `json:"problem" validate:"required_if=Status continue"`
	Goodbye string `json:"goodbye"`
}

// Responder shows the cycle's result and decides whether to loop.
type Responder struct {
	llm         domain.ChatModel
	console     domain.Console
	temperature float64
	log         *zap.Logger
}

func NewResponder(model domain.ChatModel, console domain.Console, temperature float64, log *zap.Logger) *Responder {
	return &Responder{llm: model, console: console, temperature: temperature, log: named(log, "responder")}
}

func (n *Responder) Name() string { return "respond" }

func (n *Responder) Run(ctx context.Context, s domain.State) (domain.Update, error) {
	n.console.ShowSummary(Summarize(s))

	input, err := n.console.Ask(ctx, followUpQuestion)
	if errors.Is(err, domain.ErrAborted) {
		return n.finish(nil, DefaultGoodbye, nil), nil
	}
	if err != nil {
		return domain.Update{}, fmt.Errorf("read follow-up: %w", err)
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return n.finish(nil, DefaultGoodbye, nil), nil
	}

	previous := ""
	if s.FinalResult != nil {
		previous = clip(strings.TrimSpace(s.FinalResult.Content), 3000)
	}
	raw, err := n.llm.Complete(ctx, []domain.Message{
		domain.System(followUpPrompt),
		domain.Assistant("Here is the code that was previously produced:\n```\n" + previous + "\n```"),
		domain.Human(input),
	}, domain.WithTemperature(n.temperature), domain.WithJSONObject())
	if err != nil {
		return domain.Update{}, fmt.Errorf("follow-up completion: %w", err)
	}

	reply, err := parseFollowUp(raw)
	if err != nil {
		n.log.Error("invalid follow-up reply", zap.Error(err))
		msg := "[follow-up error] " + err.Error()
		n.console.Say(msg)
		return domain.Update{
			Status:   domain.StatusDone,
			Messages: []domain.Message{domain.Assistant(msg)},
		}, nil
	}
	n.log.Info("follow-up decided", zap.String("status", string(reply.Status)))

	if reply.Status == domain.StatusContinue {
		return domain.Update{
			Status:   domain.StatusContinue,
			FollowUp: reply,
			Messages: []domain.Message{domain.Assistant(raw), domain.Human(reply.Problem)},
		}, nil
	}
	goodbye := reply.Goodbye
	if goodbye == "" {
		goodbye = DefaultGoodbye
	}
	reply.Goodbye = goodbye
	return n.finish([]domain.Message{domain.Assistant(raw)}, goodbye, reply), nil
}

func (n *Responder) finish(prefix []domain.Message, goodbye string, reply *domain.FollowUp) domain.Update {
	n.console.Say(goodbye)
	return domain.Update{
		Status:   domain.StatusDone,
		FollowUp: reply,
		Messages: append(prefix, domain.Assistant(goodbye)),
	}
}

func parseFollowUp(raw string) (*domain.FollowUp, error) {
	var reply followUpReply
	if err := llm.DecodeJSON(raw, &reply); err != nil {
		return nil, err
	}
	status, err := domain.ParseRunStatus(reply.Status)
	if err != nil {
		return nil, err
	}
	problem := strings.TrimSpace(reply.Problem)
	if status == domain.StatusContinue && problem == "" {
		return nil, errors.New("problem required when status is continue")
	}
	return &domain.FollowUp{Status: status, Problem: problem, Goodbye: strings.TrimSpace(reply.Goodbye)}, nil
}

// Summarize builds the console recap of the current cycle.
func Summarize(s domain.State) domain.RunSummary {
	sum := domain.RunSummary{
		SearchCount:    len(s.SearchResults),
		CrawlCount:     len(s.CrawlResults),
		ReferenceCount: len(s.ReferenceDocuments),
	}
	if s.FinalResult != nil {
		sum.Solution = s.FinalResult.Content
		sum.Sources = s.FinalResult.Sources
	}
	for _, d := range rank.Ordered(s.ReferenceDocuments) {
		if d.Similarity == nil {
			break
		}
		sum.Ranked = append(sum.Ranked, domain.ScoredSource{URL: d.URL, Similarity: *d.Similarity})
	}
	return sum
}
