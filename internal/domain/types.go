package domain

import "fmt"

// Role tags a conversation message.
type Role string

const (
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one entry of the conversation.
type Message struct {
	Role    Role
	Content string
}

// Human returns a human message.
func Human(content string) Message { return Message{Role: RoleHuman, Content: content} }

// Assistant returns an assistant message.
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// System returns a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// Plan is the outline and search queries produced for one cycle.
type Plan struct {
	Outline string
	Queries []string
}

// SearchDoc is a raw search hit.
type SearchDoc struct {
	Title   string
	URL     string
	Content string
	Score   *float64
}

// CrawlDoc is a page collected by a crawl or an extraction.
type CrawlDoc struct {
	URL     string
	Content string
}

// RawDoc is a reference document. URL is always in viewable form.
type RawDoc struct {
	URL        string
	Content    string
	Signature  string
	Embedding  []float64
	Similarity *float64
}

// FailedExtraction records a URL the extractor could not fetch.
type FailedExtraction struct {
	URL   string
	Error string
}

// ExtractBatch is the outcome of extracting one batch of URLs.
type ExtractBatch struct {
	Results []CrawlDoc
	Failed  []FailedExtraction
}

// Draft is the first-pass solution used as the ranking anchor.
type Draft struct {
	Content   string
	Signature string
	Embedding []float64
}

// FinalResult is the refined, citation-backed answer of a cycle.
type FinalResult struct {
	Content    string
	Sources    []string
	Reflection string
}

// FollowUp is the interpreted user reply after a cycle.
type FollowUp struct {
	Status  RunStatus
	Problem string
	Goodbye string
}

// RunStatus is the closed set of pipeline statuses.
type RunStatus string

const (
	StatusNew      RunStatus = "new"
	StatusRefined  RunStatus = "refined"
	StatusContinue RunStatus = "continue"
	StatusDone     RunStatus = "done"
)

// ParseRunStatus validates s against the closed status set.
func ParseRunStatus(s string) (RunStatus, error) {
	switch st := RunStatus(s); st {
	case StatusNew, StatusRefined, StatusContinue, StatusDone:
		return st, nil
	default:
		return "", fmt.Errorf("unknown run status %q", s)
	}
}

// ScoredSource is a reference URL with its similarity to the draft.
type ScoredSource struct {
	URL        string
	Similarity float64
}

// RunSummary is what the console renders at the end of a cycle.
type RunSummary struct {
	SearchCount    int
	CrawlCount     int
	ReferenceCount int
	Solution       string
	Sources        []string
	Ranked         []ScoredSource
}
