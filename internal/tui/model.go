// Package tui is the terminal chat front end.
package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"codeqa/internal/service"
)

const (
	trimmedNotice = "(Conversation history was trimmed to prevent token overflow.)"
	clearedNotice = "Conversation history cleared."
	failedNotice  = "Sorry, something went wrong. Please wait and try again."
)

// AssistantPort is the TUI-facing subset of service.Assistant.
type AssistantPort interface {
	Ask(ctx context.Context, key, query string) (service.Reply, error)
	Clear(ctx context.Context, key string) (bool, error)
}

type entry struct {
	role string // "you", "assistant" or "system"
	text string
}

type answerMsg struct {
	reply service.Reply
	err   error
}

type clearedMsg struct{ err error }

// Model is the Bubble Tea model for the chat window.
type Model struct {
	ctx        context.Context
	assistant  AssistantPort
	sessionKey string

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer

	transcript []entry
	waiting    bool
	ready      bool
	status     string
}

// New creates a chat model bound to one conversation key.
func New(ctx context.Context, assistant AssistantPort, sessionKey string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about the codebase (/clear, /exit)"
	ti.Focus()
	ti.CharLimit = 4096

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	renderer, _ := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(80))

	return Model{
		ctx:        ctx,
		assistant:  assistant,
		sessionKey: sessionKey,
		input:      ti,
		viewport:   viewport.New(0, 0),
		spinner:    sp,
		renderer:   renderer,
		status:     "Ready.",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, bh := transcriptBoxStyle.GetFrameSize()
		_, ih := inputBoxStyle.GetFrameSize()
		reserved := 2 + ih + 1 + bh // header, status, input box, spacer
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved)
		m.input.Width = max(10, msg.Width-6)
		if m.renderer != nil {
			m.renderer, _ = glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(max(20, msg.Width-8)))
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if msg.Type == tea.KeyEnter {
			return m.submit()
		}

	case spinner.TickMsg:
		if m.waiting {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case answerMsg:
		m.waiting = false
		if msg.err != nil {
			m.transcript = append(m.transcript, entry{role: "system", text: failedNotice})
			m.status = "Error: " + msg.err.Error()
		} else {
			m.transcript = append(m.transcript, entry{role: "assistant", text: msg.reply.Text})
			if msg.reply.Trimmed {
				m.transcript = append(m.transcript, entry{role: "system", text: trimmedNotice})
			}
			m.status = "Ready."
		}
		m.refresh()
		return m, nil

	case clearedMsg:
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.transcript = []entry{{role: "system", text: clearedNotice}}
			m.status = "Ready."
		}
		m.refresh()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	q := strings.TrimSpace(m.input.Value())
	if q == "" || m.waiting {
		return m, nil
	}
	m.input.Reset()
	switch strings.ToLower(q) {
	case "/exit", "/quit":
		return m, tea.Quit
	case "/clear":
		return m, m.clear()
	}
	m.transcript = append(m.transcript, entry{role: "you", text: q})
	m.waiting = true
	m.status = "Thinking..."
	m.refresh()
	return m, tea.Batch(m.spinner.Tick, m.ask(q))
}

func (m Model) ask(q string) tea.Cmd {
	ctx, assistant, key := m.ctx, m.assistant, m.sessionKey
	return func() tea.Msg {
		reply, err := assistant.Ask(ctx, key, q)
		return answerMsg{reply: reply, err: err}
	}
}

func (m Model) clear() tea.Cmd {
	ctx, assistant, key := m.ctx, m.assistant, m.sessionKey
	return func() tea.Msg {
		_, err := assistant.Clear(ctx, key)
		return clearedMsg{err: err}
	}
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("codeqa")
	status := m.status
	if m.waiting {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" +
		transcriptBoxStyle.Render(m.viewport.View()) + "\n" +
		inputBoxStyle.Render(m.input.View()) + "\n" +
		statusStyle.Render(status)
}

func (m Model) renderTranscript() string {
	if len(m.transcript) == 0 {
		return "Ask a question about the codebase."
	}
	var b strings.Builder
	for _, e := range m.transcript {
		switch e.role {
		case "you":
			b.WriteString(userStyle.Render("You: ") + e.text + "\n\n")
		case "assistant":
			b.WriteString(assistantStyle.Render("Assistant:") + "\n" + m.renderMarkdown(e.text) + "\n")
		default:
			b.WriteString(noticeStyle.Render(e.text) + "\n\n")
		}
	}
	return b.String()
}

func (m Model) renderMarkdown(text string) string {
	if m.renderer == nil {
		return text + "\n"
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return text + "\n"
	}
	return out
}

// Transcript returns the rendered conversation as plain role-prefixed lines.
func (m Model) Transcript() []string {
	out := make([]string, len(m.transcript))
	for i, e := range m.transcript {
		out[i] = e.role + ": " + e.text
	}
	return out
}

var (
	headerStyle        = lipgloss.NewStyle().Bold(true)
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	userStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	noticeStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
)
