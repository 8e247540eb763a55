package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aristath/pmdispatch/internal/session"
)

// SessionLister is the read side of the session registry.
type SessionLister interface {
	List(ctx context.Context) ([]session.Record, error)
}

// sessionsLoadedMsg carries a fresh registry snapshot.
type sessionsLoadedMsg struct {
	records []session.Record
	err     error
}

// SessionsPaneModel is a full-screen overlay listing the session registry.
type SessionsPaneModel struct {
	lister  SessionLister
	records []session.Record
	err     error
	visible bool
	width   int
	height  int
}

// NewSessionsPaneModel creates the sessions overlay. lister may be nil.
func NewSessionsPaneModel(lister SessionLister) SessionsPaneModel {
	return SessionsPaneModel{lister: lister}
}

// Load returns a command reading the registry.
func (m SessionsPaneModel) Load() tea.Cmd {
	if m.lister == nil {
		return nil
	}
	lister := m.lister
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		recs, err := lister.List(ctx)
		return sessionsLoadedMsg{records: recs, err: err}
	}
}

// Update handles messages for the sessions overlay.
func (m SessionsPaneModel) Update(msg tea.Msg) (SessionsPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case sessionsLoadedMsg:
		m.records = msg.records
		m.err = msg.err
	case tea.KeyMsg:
		if msg.String() == KeyRefresh {
			return m, m.Load()
		}
	}
	return m, nil
}

// View renders the registry as a table.
func (m SessionsPaneModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Sessions"))
	b.WriteString("\n\n")

	switch {
	case m.err != nil:
		b.WriteString(StyleStatusFailed.Render(fmt.Sprintf("Error: %v", m.err)))
	case len(m.records) == 0:
		b.WriteString(StyleStatusPending.Render("No sessions recorded."))
	default:
		b.WriteString(StyleHeader.Render(fmt.Sprintf("%-18s %-38s %6s  %-20s  %s", "AGENT", "SESSION", "TASKS", "LAST RESUMED", "LAST TASK")))
		b.WriteString("\n")
		for _, r := range m.records {
			b.WriteString(fmt.Sprintf("%-18s %-38s %6d  %-20s  %s\n",
				r.Agent, r.Token, r.TasksCompleted, r.LastResumed.Local().Format("2006-01-02 15:04:05"), r.LastTask))
		}
	}

	b.WriteString("\n\n")
	b.WriteString(StyleHelp.Render("r: refresh | s/esc: close"))

	return StyleFocusedBorder.
		Width(max(m.width-2, 20)).
		Height(max(m.height-2, 5)).
		Render(b.String())
}

// SetVisible shows or hides the overlay.
func (m *SessionsPaneModel) SetVisible(visible bool) {
	m.visible = visible
}

// IsVisible reports whether the overlay is shown.
func (m SessionsPaneModel) IsVisible() bool {
	return m.visible
}

// SetSize updates the overlay dimensions.
func (m *SessionsPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}
