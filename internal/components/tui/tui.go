// Package tui is the Lab Router form for the terminal.
package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/MahdiBaghbani/labrouter-go/internal/components/labform"
)

type focus int

const (
	focusToken focus = iota
	focusPrompt
	focusButton
	focusCount
)

// settledMsg carries the outcome of one submit back into Update.
type settledMsg struct{ event labform.Event }

// Styles holds the view's lipgloss styles.
type Styles struct {
	Title  lipgloss.Style
	Label  lipgloss.Style
	Button lipgloss.Style
	Active lipgloss.Style
	Busy   lipgloss.Style
	Error  lipgloss.Style
	Help   lipgloss.Style
}

// DefaultStyles returns the standard palette.
func DefaultStyles() Styles {
	return Styles{
		Title:  lipgloss.NewStyle().Bold(true).MarginBottom(1),
		Label:  lipgloss.NewStyle().Bold(true),
		Button: lipgloss.NewStyle().Padding(0, 2).Border(lipgloss.RoundedBorder()),
		Active: lipgloss.NewStyle().Padding(0, 2).Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Bold(true),
		Busy:   lipgloss.NewStyle().Faint(true),
		Error:  lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		Help:   lipgloss.NewStyle().Faint(true),
	}
}

// Model is a bubbletea model over one labform.State.
type Model struct {
	ctx      context.Context
	resolver labform.Resolver
	state    labform.State

	token   textinput.Model
	prompt  textinput.Model
	spinner spinner.Model
	focus   focus

	title  string
	styles Styles
}

// New builds the model. token pre-fills the token field.
func New(ctx context.Context, r labform.Resolver, title, token string) Model {
	ti := textinput.New()
	ti.Placeholder = "API token"
	ti.Width = 48
	ti.SetValue(token)
	ti.Focus()

	pi := textinput.New()
	pi.Placeholder = "e.g. a DNS lab on AWS"
	pi.CharLimit = 0 // unlimited
	pi.Width = 48

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	if title == "" {
		title = "Instruqt Lab Router"
	}

	return Model{
		ctx:      ctx,
		resolver: r,
		state:    labform.State{Token: token},
		token:    ti,
		prompt:   pi,
		spinner:  sp,
		title:    title,
		styles:   DefaultStyles(),
	}
}

// State returns the form state.
func (m Model) State() labform.State { return m.state }

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles keys, the spinner, and settled submits.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "tab", "down":
			m.setFocus((m.focus + 1) % focusCount)
			return m, nil
		case "shift+tab", "up":
			m.setFocus((m.focus + focusCount - 1) % focusCount)
			return m, nil
		case "enter":
			return m.submit()
		}

	case settledMsg:
		m.state = labform.Reduce(m.state, msg.event)
		return m, nil

	case spinner.TickMsg:
		if !m.state.Loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m.updateInputs(msg)
}

func (m *Model) setFocus(f focus) {
	m.focus = f
	m.token.Blur()
	m.prompt.Blur()
	switch f {
	case focusToken:
		m.token.Focus()
	case focusPrompt:
		m.prompt.Focus()
	}
}

func (m Model) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.focus {
	case focusToken:
		m.token, cmd = m.token.Update(msg)
		if v := m.token.Value(); v != m.state.Token {
			m.state = labform.Reduce(m.state, labform.TokenChanged{Value: v})
		}
	case focusPrompt:
		m.prompt, cmd = m.prompt.Update(msg)
		if v := m.prompt.Value(); v != m.state.Prompt {
			m.state = labform.Reduce(m.state, labform.PromptChanged{Value: v})
		}
	}
	return m, cmd
}

// submit starts one request unless one is already in flight.
func (m Model) submit() (tea.Model, tea.Cmd) {
	if !m.state.CanSubmit() {
		return m, nil
	}
	m.state = labform.Reduce(m.state, labform.SubmitStarted{})

	ctx, r := m.ctx, m.resolver
	token, prompt := m.state.Token, m.state.Prompt
	resolve := func() tea.Msg {
		res, err := r.Resolve(ctx, token, prompt)
		return settledMsg{event: labform.Settle(res, err)}
	}
	return m, tea.Batch(m.spinner.Tick, resolve)
}

// Hyperlink wraps text in an OSC 8 hyperlink to url. Control characters in
// either argument are dropped so they cannot end the sequence early.
func Hyperlink(url, text string) string {
	return "\x1b]8;;" + stripControl(url, "") + "\x1b\\" + stripControl(text, "") + "\x1b]8;;\x1b\\"
}

// stripControl removes C0 and C1 control characters except those in keep.
func stripControl(s, keep string) string {
	return strings.Map(func(r rune) rune {
		if (r < 0x20 || r == 0x7f || (r >= 0x80 && r <= 0x9f)) && !strings.ContainsRune(keep, r) {
			return -1
		}
		return r
	}, s)
}

// View renders the form.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render(m.title))
	b.WriteString("\n")
	b.WriteString(m.styles.Label.Render("Token"))
	b.WriteString("\n")
	b.WriteString(m.token.View())
	b.WriteString("\n\n")
	b.WriteString(m.styles.Label.Render("Prompt"))
	b.WriteString("\n")
	b.WriteString(m.prompt.View())
	b.WriteString("\n\n")

	if m.state.Loading {
		b.WriteString(m.styles.Busy.Render(m.spinner.View() + " " + m.state.ButtonLabel()))
	} else if m.focus == focusButton {
		b.WriteString(m.styles.Active.Render(m.state.ButtonLabel()))
	} else {
		b.WriteString(m.styles.Button.Render(m.state.ButtonLabel()))
	}
	b.WriteString("\n\n")

	if res := m.state.Result; res != nil {
		b.WriteString("Invite: ")
		b.WriteString(Hyperlink(res.InviteURL, res.InviteURL))
		b.WriteString("\n\n")
	}
	if m.state.Error != "" {
		b.WriteString(m.styles.Error.Render(stripControl(m.state.Error, "\n")))
		b.WriteString("\n\n")
	}

	b.WriteString(m.styles.Help.Render("tab/↑/↓ move • enter submit • esc quit"))
	b.WriteString("\n")
	return b.String()
}
