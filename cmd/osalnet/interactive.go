package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/osal"
	"github.com/wippyai/osal/resource"
)

const maxActivity = 8

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	eventStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	activityStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	tableStyles = func() table.Styles {
		s := table.DefaultStyles()
		s.Header = s.Header.Bold(true).Foreground(lipgloss.Color("#7D56F4"))
		s.Selected = s.Selected.
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))
		return s
	}()
)

// eventSink forwards registry events to the UI. Events are dropped when
// the UI falls behind; the table is rebuilt from a snapshot anyway.
type eventSink chan resource.Event

func (s eventSink) OnResourceEvent(e resource.Event) {
	select {
	case s <- e:
	default:
	}
}

type eventMsg resource.Event

type activityMsg string

type doneMsg struct {
	err error
}

type inspectorModel struct {
	err       error
	o         *osal.OSAL
	events    eventSink
	activity  chan string
	done      chan error
	cancel    context.CancelFunc
	lastEvent string
	mode      string
	lines     []string
	filter    textinput.Model
	table     table.Model
	filtering bool
	finished  bool
}

func newInspectorModel(o *osal.OSAL, mode string, cancel context.CancelFunc) *inspectorModel {
	columns := []table.Column{
		{Title: "ID", Width: 14},
		{Title: "Name", Width: 36},
		{Title: "Type", Width: 9},
		{Title: "Domain", Width: 6},
		{Title: "State", Width: 26},
		{Title: "Creator", Width: 8},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	t.SetStyles(tableStyles)

	ti := textinput.New()
	ti.Prompt = "filter: "
	ti.Placeholder = "name substring"
	ti.Width = 30

	return &inspectorModel{
		o:        o,
		mode:     mode,
		cancel:   cancel,
		events:   make(eventSink, 64),
		activity: make(chan string, 64),
		done:     make(chan error, 1),
		table:    t,
		filter:   ti,
	}
}

func (m *inspectorModel) report(format string, args ...any) {
	select {
	case m.activity <- fmt.Sprintf(format, args...):
	default:
	}
}

func (m *inspectorModel) Init() tea.Cmd {
	m.refresh()
	return tea.Batch(m.waitEvent, m.waitActivity, m.waitDone)
}

func (m *inspectorModel) waitEvent() tea.Msg {
	return eventMsg(<-m.events)
}

func (m *inspectorModel) waitActivity() tea.Msg {
	return activityMsg(<-m.activity)
}

func (m *inspectorModel) waitDone() tea.Msg {
	return doneMsg{err: <-m.done}
}

func (m *inspectorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.filtering {
			switch msg.String() {
			case "enter", "esc":
				m.filtering = false
				m.filter.Blur()
				m.table.Focus()
				m.refresh()
				return m, nil
			}
			var cmd tea.Cmd
			m.filter, cmd = m.filter.Update(msg)
			m.refresh()
			return m, cmd
		}

		switch msg.String() {
		case "ctrl+c", "q":
			m.cancel()
			return m, tea.Quit

		case "/":
			m.filtering = true
			m.table.Blur()
			m.filter.Focus()
			return m, textinput.Blink

		case "c":
			m.closeSelected()
			return m, nil
		}

	case eventMsg:
		e := resource.Event(msg)
		if e.Type == resource.EventCreated || e.Type == resource.EventDestroyed || e.Type == resource.EventRenamed {
			m.lastEvent = e.Type.String() + " " + e.ID.String()
		}
		m.refresh()
		return m, m.waitEvent

	case activityMsg:
		m.lines = append(m.lines, string(msg))
		if len(m.lines) > maxActivity {
			m.lines = m.lines[len(m.lines)-maxActivity:]
		}
		return m, m.waitActivity

	case doneMsg:
		m.finished = true
		m.err = msg.err
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// refresh rebuilds the table from a registry snapshot.
func (m *inspectorModel) refresh() {
	needle := strings.TrimSpace(m.filter.Value())

	var rows []table.Row
	for _, p := range m.o.Sockets.List() {
		if needle != "" && !strings.Contains(p.Name, needle) {
			continue
		}
		rows = append(rows, table.Row{
			p.ID.String(),
			p.Name,
			p.Type.String(),
			p.Domain.String(),
			p.State.String(),
			strconv.FormatUint(uint64(p.Creator), 10),
		})
	}
	m.table.SetRows(rows)
}

// closeSelected closes the highlighted socket, looked up by name so the
// registry validates it is still the same record.
func (m *inspectorModel) closeSelected() {
	row := m.table.SelectedRow()
	if row == nil {
		return
	}
	name := row[1]
	if name == "" {
		m.report("selected socket has no name")
		return
	}
	id, err := m.o.Sockets.GetIDByName(name)
	if err != nil {
		m.report("lookup %q: %v", name, err)
		return
	}
	if err := m.o.Sockets.Close(id); err != nil {
		m.report("close %s: %v", id, err)
		return
	}
	m.report("closed %s", id)
}

func (m *inspectorModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("osalnet"))
	b.WriteString(" ")
	b.WriteString(m.mode)
	b.WriteString(" • backend ")
	b.WriteString(m.o.Sockets.Backend().Name())
	b.WriteString(fmt.Sprintf(" • %d sockets", m.o.Registry.Count(resource.TypeStream)))
	b.WriteString("\n\n")

	b.WriteString(m.table.View())
	b.WriteString("\n")
	if m.filtering || m.filter.Value() != "" {
		b.WriteString(m.filter.View())
		b.WriteString("\n")
	}
	if m.lastEvent != "" {
		b.WriteString(eventStyle.Render("last event: " + m.lastEvent))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	for _, line := range m.lines {
		b.WriteString(activityStyle.Render(line))
		b.WriteString("\n")
	}

	if m.finished {
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(helpStyle.Render(m.mode + " finished"))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("↑/↓ select • / filter • c close socket • q quit"))
	return b.String()
}

// runInteractive runs the selected mode in the background and shows the
// live socket table until the user quits.
func runInteractive(ctx context.Context, o *osal.OSAL, opts options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := newInspectorModel(o, opts.mode, cancel)
	o.Registry.Subscribe(model.events)
	defer o.Registry.Unsubscribe(model.events)

	modeDone := make(chan error, 1)
	go func() {
		err := runMode(ctx, o, opts, model.report)
		modeDone <- err
		model.done <- err
	}()

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, uiErr := p.Run()

	cancel()
	modeErr := <-modeDone
	if uiErr != nil && ctx.Err() == nil {
		return uiErr
	}
	return modeErr
}
