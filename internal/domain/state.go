package domain

import (
	"errors"
	"fmt"
)

// State is the shared record the pipeline stages read from and the
// orchestrator writes to. Conversation and Status live for the whole
// session; every other field is scoped to a single cycle.
type State struct {
	Conversation []Message
	Status       RunStatus

	Plan               *Plan
	SearchResults      []SearchDoc
	CrawlTargets       []string
	CrawlResults       []CrawlDoc
	ReferenceDocuments []RawDoc
	Draft              *Draft
	FinalResult        *FinalResult
	FollowUp           *FollowUp
}

// NewState returns the initial state for a session opened with problem.
func NewState(problem string) State {
	return State{
		Conversation: []Message{Human(problem)},
		Status:       StatusNew,
	}
}

// Update is a partial state change returned by a stage. Nil pointers,
// nil slices and an empty Status leave the current value untouched.
// Messages are appended to the conversation.
type Update struct {
	Messages []Message
	Status   RunStatus

	Plan               *Plan
	SearchResults      []SearchDoc
	CrawlTargets       []string
	CrawlResults       []CrawlDoc
	ReferenceDocuments []RawDoc
	Draft              *Draft
	FinalResult        *FinalResult
	FollowUp           *FollowUp
}

// IsZero reports whether u carries no change.
func (u Update) IsZero() bool {
	return len(u.Messages) == 0 && u.Status == "" &&
		u.Plan == nil && u.SearchResults == nil && u.CrawlTargets == nil &&
		u.CrawlResults == nil && u.ReferenceDocuments == nil &&
		u.Draft == nil && u.FinalResult == nil && u.FollowUp == nil
}

// Apply returns s with u merged in. s itself is not modified.
func (s State) Apply(u Update) State {
	if len(u.Messages) > 0 {
		conv := make([]Message, 0, len(s.Conversation)+len(u.Messages))
		conv = append(conv, s.Conversation...)
		s.Conversation = append(conv, u.Messages...)
	}
	if u.Status != "" {
		s.Status = u.Status
	}
	if u.Plan != nil {
		s.Plan = u.Plan
	}
	if u.SearchResults != nil {
		s.SearchResults = u.SearchResults
	}
	if u.CrawlTargets != nil {
		s.CrawlTargets = u.CrawlTargets
	}
	if u.CrawlResults != nil {
		s.CrawlResults = u.CrawlResults
	}
	if u.ReferenceDocuments != nil {
		s.ReferenceDocuments = u.ReferenceDocuments
	}
	if u.Draft != nil {
		s.Draft = u.Draft
	}
	if u.FinalResult != nil {
		s.FinalResult = u.FinalResult
	}
	if u.FollowUp != nil {
		s.FollowUp = u.FollowUp
	}
	return s
}

// ResetCycle clears every cycle-scoped field.
func (s State) ResetCycle() State {
	return State{Conversation: s.Conversation, Status: s.Status}
}

// ErrDirtyCycle is returned when cycle-scoped state survives a reset.
var ErrDirtyCycle = errors.New("cycle-scoped state not cleared")

// ValidateCycleReset checks that no cycle-scoped field carries data.
func (s State) ValidateCycleReset() error {
	var dirty []string
	if s.Plan != nil {
		dirty = append(dirty, "plan")
	}
	if len(s.SearchResults) > 0 {
		dirty = append(dirty, "search_results")
	}
	if len(s.CrawlTargets) > 0 {
		dirty = append(dirty, "crawl_targets")
	}
	if len(s.CrawlResults) > 0 {
		dirty = append(dirty, "crawl_results")
	}
	if len(s.ReferenceDocuments) > 0 {
		dirty = append(dirty, "reference_documents")
	}
	if s.Draft != nil {
		dirty = append(dirty, "draft")
	}
	if s.FinalResult != nil {
		dirty = append(dirty, "final_result")
	}
	if s.FollowUp != nil {
		dirty = append(dirty, "follow_up")
	}
	if len(dirty) > 0 {
		return fmt.Errorf("%w: %v", ErrDirtyCycle, dirty)
	}
	return nil
}

// LastHuman returns the most recent human message, if any.
func (s State) LastHuman() (Message, bool) {
	for i := len(s.Conversation) - 1; i >= 0; i-- {
		if s.Conversation[i].Role == RoleHuman {
			return s.Conversation[i], true
		}
	}
	return Message{}, false
}

// LastMessage returns the final conversation entry, if any.
func (s State) LastMessage() (Message, bool) {
	if len(s.Conversation) == 0 {
		return Message{}, false
	}
	return s.Conversation[len(s.Conversation)-1], true
}
