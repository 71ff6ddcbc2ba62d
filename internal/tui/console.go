// Package tui is the terminal console: Bubble Tea prompts for user input
// and Lip Gloss rendering for run summaries.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"coderag/internal/domain"
)

// Console implements domain.Console on a terminal.
type Console struct {
	in  io.Reader
	out io.Writer

	// serializes prompts and output so a summary never interleaves with
	// an active prompt
	mu sync.Mutex
}

// New returns a console reading from in and writing to out. Nil values
// fall back to the process stdin and stdout.
func New(in io.Reader, out io.Writer) *Console {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	return &Console{in: in, out: out}
}

// Ask shows prompt and blocks until the user submits a line. Ctrl+C,
// Ctrl+D and Esc return domain.ErrAborted.
func (c *Console) Ask(ctx context.Context, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := tea.NewProgram(newPrompt(prompt),
		tea.WithContext(ctx),
		tea.WithInput(c.in),
		tea.WithOutput(c.out),
	)
	final, err := p.Run()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if errors.Is(err, tea.ErrProgramKilled) {
			return "", domain.ErrAborted
		}
		return "", fmt.Errorf("prompt: %w", err)
	}
	m, ok := final.(promptModel)
	if !ok {
		return "", fmt.Errorf("prompt: unexpected model %T", final)
	}
	if m.aborted {
		return "", domain.ErrAborted
	}
	return m.Value(), nil
}

// ShowSummary prints the recap of a finished cycle.
func (c *Console) ShowSummary(s domain.RunSummary) {
	c.print(renderSummary(s))
}

// Say prints an assistant message.
func (c *Console) Say(text string) {
	c.print(renderSay(text))
}

func (c *Console) print(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, text)
}
