package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dmorgan81/beamshim/internal/deploy"
	"github.com/samber/lo"
)

type loadedMsg struct{ err error }

type invokedMsg struct {
	id  string
	err error
}

// Deployments lists deployments in a table; enter invokes the selected row.
type Deployments struct {
	ctx     context.Context
	browser *deploy.Browser
	table   table.Model
	busy    string
}

var _ tea.Model = (*Deployments)(nil)

func NewDeployments(ctx context.Context, browser *deploy.Browser) *Deployments {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Name", Width: 24},
			{Title: "Id", Width: 38},
			{Title: "Type", Width: 22},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	return &Deployments{ctx: ctx, browser: browser, table: t}
}

func (m *Deployments) Init() tea.Cmd {
	return m.load()
}

func (m *Deployments) load() tea.Cmd {
	m.busy = "loading deployments..."
	return func() tea.Msg {
		return loadedMsg{m.browser.Load(m.ctx)}
	}
}

func (m *Deployments) invoke(id string) tea.Cmd {
	m.busy = "calling " + id + "..."
	return func() tea.Msg {
		return invokedMsg{id, m.browser.Invoke(m.ctx, id)}
	}
}

func (m *Deployments) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadedMsg:
		m.busy = ""
		m.table.SetRows(lo.Map(m.browser.Rows(), func(r deploy.Row, _ int) table.Row {
			return table.Row{r.Name, r.ID, r.Type}
		}))
		return m, nil
	case invokedMsg:
		m.busy = ""
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		case "r":
			if m.busy == "" {
				return m, m.load()
			}
			return m, nil
		case "enter":
			row := m.table.SelectedRow()
			if row == nil || m.busy != "" {
				return m, nil
			}
			return m, m.invoke(row[1])
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Deployments) View() string {
	var b strings.Builder
	b.WriteString(styles.Title.Render("Deployments") + "\n\n")
	b.WriteString(m.table.View() + "\n")
	if m.busy != "" {
		b.WriteString(styles.Muted.Render(m.busy) + "\n")
	}
	if err := m.browser.Err(); err != nil {
		b.WriteString(styles.Error.Render("Error: "+err.Error()) + "\n")
	}
	if resp := m.browser.LastResponse(); resp != "" {
		b.WriteString("\n" + styles.Title.Render("API Response") + "\n")
		b.WriteString(styles.Box.Render(resp) + "\n")
	}
	b.WriteString("\n" + styles.Muted.Render("enter: call  r: reload  q: quit"))
	return b.String()
}
