package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// promptModel is the Bubble Tea model behind a single Ask: one line of
// input, submitted with Enter, abandoned with Ctrl+C, Ctrl+D or Esc.
type promptModel struct {
	question  string
	input     textinput.Model
	submitted bool
	aborted   bool
}

func newPrompt(question string) promptModel {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type and press Enter (empty to finish)"
	ti.Focus()
	ti.CharLimit = 0
	return promptModel{question: question, input: ti}
}

// Init starts the cursor blink.
func (m promptModel) Init() tea.Cmd { return textinput.Blink }

// Update handles key events and forwards the rest to the text input.
func (m promptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.input.Width = max(20, msg.Width-lipgloss.Width(m.input.Prompt)-1)
		return m, nil
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD, tea.KeyEsc:
			m.aborted = true
			return m, tea.Quit
		case tea.KeyEnter:
			m.submitted = true
			m.input.Blur()
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the question above the input line. Once the prompt is
// closed the answer stays on screen without the cursor.
func (m promptModel) View() string {
	question := questionStyle.Render(m.question)
	switch {
	case m.aborted:
		return question + "\n" + mutedStyle.Render("(cancelled)") + "\n"
	case m.submitted:
		return question + "\n" + m.input.Prompt + m.Value() + "\n"
	}
	return question + "\n" + m.input.View()
}

// Value is the trimmed text entered so far.
func (m promptModel) Value() string { return strings.TrimSpace(m.input.Value()) }
