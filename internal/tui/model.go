// Package tui renders a live view of running dispatches.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/pmdispatch/internal/events"
)

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneDispatches PaneID = iota
	PaneBatch
	paneCount
)

// DoneMsg tells the view that the watched work has finished.
type DoneMsg struct{}

// Model is the root Bubble Tea model for the TUI.
type Model struct {
	dispatchPane DispatchPaneModel
	batchPane    BatchPaneModel
	sessionsPane SessionsPaneModel
	focusedPane  PaneID
	eventSub     <-chan events.Event
	width        int
	height       int
	quitting     bool
	showSessions bool
}

// New creates a new TUI model subscribed to every event on the bus.
// sessions backs the sessions overlay and may be nil.
func New(eventBus *events.EventBus, sessions SessionLister) Model {
	return Model{
		dispatchPane: NewDispatchPaneModel(),
		batchPane:    NewBatchPaneModel(),
		sessionsPane: NewSessionsPaneModel(sessions),
		focusedPane:  PaneDispatches,
		eventSub:     eventBus.SubscribeAll(256),
	}
}

// Init initializes the model and returns the initial command.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.eventSub)
}

// waitForEvent returns a command that waits for the next event from the event bus.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil // bus closed
		}
		return event
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.showSessions {
			switch msg.String() {
			case KeySessions, KeyEsc:
				m.showSessions = false
				m.sessionsPane.SetVisible(false)
			case KeyCtrlC:
				m.quitting = true
				return m, tea.Quit
			default:
				var cmd tea.Cmd
				m.sessionsPane, cmd = m.sessionsPane.Update(msg)
				cmds = append(cmds, cmd)
			}
			return m, tea.Batch(cmds...)
		}

		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			return m, tea.Quit

		case KeySessions:
			m.showSessions = true
			m.sessionsPane.SetVisible(true)
			cmds = append(cmds, m.sessionsPane.Load())

		case KeyTab:
			m.focusedPane = (m.focusedPane + 1) % paneCount
			m.updateFocusStates()

		case KeyShiftTab:
			m.focusedPane = (m.focusedPane + paneCount - 1) % paneCount
			m.updateFocusStates()

		case KeyPane1:
			m.focusedPane = PaneDispatches
			m.updateFocusStates()

		case KeyPane2:
			m.focusedPane = PaneBatch
			m.updateFocusStates()

		default:
			if m.focusedPane == PaneDispatches {
				var cmd tea.Cmd
				m.dispatchPane, cmd = m.dispatchPane.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()
		m.sessionsPane.SetSize(msg.Width, msg.Height)

	case sessionsLoadedMsg:
		var cmd tea.Cmd
		m.sessionsPane, cmd = m.sessionsPane.Update(msg)
		cmds = append(cmds, cmd)

	case tickMsg:
		var cmd tea.Cmd
		m.dispatchPane, cmd = m.dispatchPane.Update(msg)
		cmds = append(cmds, cmd)

	case events.DispatchStartedEvent, events.NarrationEvent, events.CompactionEvent,
		events.DispatchSucceededEvent, events.DispatchFailedEvent:
		var cmd tea.Cmd
		m.dispatchPane, cmd = m.dispatchPane.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.eventSub))

	case events.BatchStartedEvent, events.BatchProgressEvent:
		var cmd tea.Cmd
		m.batchPane, cmd = m.batchPane.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.eventSub))

	case DoneMsg:
		m.batchPane, _ = m.batchPane.Update(msg)
	}

	return m, tea.Batch(cmds...)
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}
	if m.showSessions {
		return m.sessionsPane.View()
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top, m.dispatchPane.View(), m.batchPane.View())
	return lipgloss.JoinVertical(lipgloss.Left, body, HelpView())
}

// computeLayout calculates pane dimensions and updates all child models.
func (m *Model) computeLayout() {
	leftWidth := (m.width * 70) / 100
	rightWidth := m.width - leftWidth
	availableHeight := m.height - 1

	m.dispatchPane.SetSize(leftWidth, availableHeight)
	m.batchPane.SetSize(rightWidth, availableHeight)
	m.updateFocusStates()
}

func (m *Model) updateFocusStates() {
	m.dispatchPane.SetFocused(m.focusedPane == PaneDispatches)
	m.batchPane.SetFocused(m.focusedPane == PaneBatch)
}
