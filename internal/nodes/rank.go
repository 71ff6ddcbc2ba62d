package nodes

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"coderag/internal/domain"
	"coderag/internal/rank"
)

// Rank scores the reference documents against the draft.
type Rank struct {
	ranker *rank.Ranker
	log    *zap.Logger
}

func NewRank(r *rank.Ranker, log *zap.Logger) *Rank {
	return &Rank{ranker: r, log: named(log, "rank")}
}

func (n *Rank) Name() string { return "rank" }

func (n *Rank) Run(ctx context.Context, s domain.State) (domain.Update, error) {
	if len(s.ReferenceDocuments) == 0 && s.Draft == nil {
		n.log.Warn("nothing to rank")
		return domain.Update{}, nil
	}
	res, err := n.ranker.Rank(ctx, s.ReferenceDocuments, s.Draft)
	if err != nil {
		return domain.Update{}, fmt.Errorf("rank: %w", err)
	}
	return domain.Update{ReferenceDocuments: res.Documents, Draft: res.Draft}, nil
}
