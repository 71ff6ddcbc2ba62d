package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"coderag/internal/domain"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true)
	questionStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	mutedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	solutionStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	sayStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// maxRanked caps the ranked list printed in a summary.
const maxRanked = 10

func renderSummary(s domain.RunSummary) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Run summary"))
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render(fmt.Sprintf(
		"search results: %d  crawled pages: %d  reference documents: %d",
		s.SearchCount, s.CrawlCount, s.ReferenceCount,
	)))
	b.WriteString("\n")

	if len(s.Ranked) > 0 {
		b.WriteString("\n")
		b.WriteString(headerStyle.Render("Ranked references"))
		b.WriteString("\n")
		cited := make(map[string]bool, len(s.Sources))
		for _, u := range s.Sources {
			cited[u] = true
		}
		for i, r := range s.Ranked {
			if i == maxRanked {
				b.WriteString(mutedStyle.Render(fmt.Sprintf("  … %d more", len(s.Ranked)-maxRanked)))
				b.WriteString("\n")
				break
			}
			line := fmt.Sprintf("%2d. %.3f  %s", i+1, r.Similarity, r.URL)
			if cited[r.URL] {
				line = highlightStyle.Render(line)
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(headerStyle.Render("Solution"))
	b.WriteString("\n")
	solution := strings.TrimSpace(s.Solution)
	if solution == "" {
		solution = mutedStyle.Render("(no solution produced)")
	}
	b.WriteString(solutionStyle.Render(solution))

	if len(s.Sources) > 0 {
		b.WriteString("\n")
		b.WriteString(headerStyle.Render("Sources"))
		for _, u := range s.Sources {
			b.WriteString("\n  - ")
			b.WriteString(u)
		}
	}
	return b.String()
}

func renderSay(text string) string {
	return sayStyle.Render(strings.TrimSpace(text))
}
