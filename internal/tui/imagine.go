// Package tui holds the bubbletea models behind the terminal clients.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dmorgan81/beamshim/internal/image"
	"github.com/dmorgan81/beamshim/internal/prompt"
)

// UpdateMsg carries a session update into the program.
type UpdateMsg prompt.Update

// Imagine is a prompt box whose debounced value is turned into an image.
type Imagine struct {
	input   textinput.Model
	session *prompt.Session
	updates chan prompt.Update
	last    prompt.Update
}

var _ tea.Model = (*Imagine)(nil)

func NewImagine(ctx context.Context, gen image.Generator, opts ...prompt.Option) *Imagine {
	updates := make(chan prompt.Update, 16)
	// the view reads the session directly, so an update dropped on a full
	// buffer only delays a redraw
	observe := func(u prompt.Update) {
		select {
		case updates <- u:
		default:
		}
	}

	ti := textinput.New()
	ti.Placeholder = "Describe an image"
	ti.Width = 60
	ti.Focus()

	return &Imagine{
		input:   ti,
		session: prompt.NewSession(ctx, gen, append(opts, prompt.WithObserver(observe))...),
		updates: updates,
	}
}

// Close stops the session. Call it after the program exits.
func (m *Imagine) Close() {
	m.session.Close()
}

func (m *Imagine) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForUpdate())
}

func (m *Imagine) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		u, ok := <-m.updates
		if !ok {
			return nil
		}
		return UpdateMsg(u)
	}
}

func (m *Imagine) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case UpdateMsg:
		m.last = prompt.Update(msg)
		return m, m.waitForUpdate()
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		}
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if value := m.input.Value(); value != before {
		m.session.SetText(value)
	}
	return m, cmd
}

func (m *Imagine) View() string {
	var b strings.Builder
	b.WriteString(styles.Title.Render("Imagine") + "\n\n")
	b.WriteString(m.input.View() + "\n\n")

	switch {
	case m.session.Pending():
		fmt.Fprintf(&b, "%s\n", styles.Muted.Render(fmt.Sprintf("generating %q...", m.session.Debounced())))
	case m.session.Debounced() != "":
		fmt.Fprintf(&b, "%s\n", styles.Muted.Render(fmt.Sprintf("last prompt %q", m.session.Debounced())))
	}

	if ref := m.session.Image(); ref != "" {
		b.WriteString(styles.Box.Render(ref) + "\n")
	}
	if err := m.session.Err(); err != nil {
		b.WriteString(styles.Error.Render("Error: "+err.Error()) + "\n")
	}
	b.WriteString("\n" + styles.Muted.Render("esc: quit"))
	return b.String()
}

// Image is the currently displayed image reference.
func (m *Imagine) Image() string {
	return m.session.Image()
}
