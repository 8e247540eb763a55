package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/pmdispatch/internal/events"
)

// DispatchState is what the pane knows about one dispatch.
type DispatchState struct {
	ID        string
	Agent     string
	Task      string
	Status    string // "running", "succeeded", "failed"
	Resumed   bool
	Output    []string
	StartTime time.Time
	Elapsed   time.Duration
	CostUSD   float64
}

// Label is the list entry for the dispatch.
func (d *DispatchState) Label() string {
	return d.Agent + " " + d.Task
}

// DispatchPaneModel lists dispatches and shows the selected one's narration.
type DispatchPaneModel struct {
	dispatches  map[string]*DispatchState
	order       []string
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
	updateTag   int
}

// NewDispatchPaneModel creates an empty dispatch pane.
func NewDispatchPaneModel() DispatchPaneModel {
	return DispatchPaneModel{
		dispatches: make(map[string]*DispatchState),
		viewport:   viewport.New(0, 0),
	}
}

type tickMsg struct {
	tag int
}

// Update handles messages for the dispatch pane.
func (m DispatchPaneModel) Update(msg tea.Msg) (DispatchPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if !m.focused {
			break
		}
		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.order)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		default:
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.DispatchStartedEvent:
		if _, exists := m.dispatches[msg.ID]; exists {
			break
		}
		d := &DispatchState{
			ID:        msg.ID,
			Agent:     msg.Agent,
			Task:      msg.Task,
			Status:    "running",
			Resumed:   msg.Resumed,
			StartTime: msg.Timestamp,
		}
		if msg.Resumed {
			d.Output = append(d.Output, "[resuming previous session]")
		}
		m.dispatches[msg.ID] = d
		m.order = append(m.order, msg.ID)
		if len(m.order) == 1 {
			m.selectedIdx = 0
			m.updateViewportContent()
		}

	case events.NarrationEvent:
		d, exists := m.dispatches[msg.ID]
		if !exists {
			break
		}
		if text := strings.TrimSpace(msg.Text); text != "" {
			d.Output = append(d.Output, text)
		}
		for _, tool := range msg.Tools {
			d.Output = append(d.Output, "tool: "+tool)
		}
		return m, m.scheduleRefresh(msg.ID)

	case events.CompactionEvent:
		if d, exists := m.dispatches[msg.ID]; exists {
			d.Output = append(d.Output, "[context compacted]")
			return m, m.scheduleRefresh(msg.ID)
		}

	case events.DispatchSucceededEvent:
		if d, exists := m.dispatches[msg.ID]; exists {
			d.Status = "succeeded"
			d.Elapsed = msg.Elapsed
			d.CostUSD = msg.CostUSD
			d.Output = append(d.Output, fmt.Sprintf("\n[Succeeded in %v, $%.4f]", msg.Elapsed.Round(time.Second), msg.CostUSD))
			if m.selectedID() == msg.ID {
				m.updateViewportContent()
			}
		}

	case events.DispatchFailedEvent:
		if d, exists := m.dispatches[msg.ID]; exists {
			d.Status = "failed"
			d.Elapsed = msg.Elapsed
			d.Output = append(d.Output, fmt.Sprintf("\n[Failed (%s): %v]", msg.Kind, msg.Err))
			if m.selectedID() == msg.ID {
				m.updateViewportContent()
			}
		}

	case tickMsg:
		if msg.tag == m.updateTag {
			m.updateViewportContent()
		}
	}

	return m, cmd
}

// scheduleRefresh debounces viewport redraws while narration streams in.
func (m *DispatchPaneModel) scheduleRefresh(id string) tea.Cmd {
	if m.selectedID() != id {
		return nil
	}
	m.updateTag++
	tag := m.updateTag
	return tea.Tick(50*time.Millisecond, func(time.Time) tea.Msg {
		return tickMsg{tag: tag}
	})
}

// View renders the dispatch pane.
func (m DispatchPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	listWidth := 32
	viewportWidth := m.width - listWidth - 4

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		m.renderList(listWidth),
		lipgloss.NewStyle().
			Width(viewportWidth).
			Height(m.height-2).
			Render(m.viewport.View()),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

func (m DispatchPaneModel) renderList(width int) string {
	var b strings.Builder

	title := StyleTitle.Render("Dispatches")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.order) == 0 {
		b.WriteString(StyleStatusPending.Render("Waiting..."))
	}
	for i, id := range m.order {
		d := m.dispatches[id]
		name := d.Label()
		if len(name) > width-4 {
			name = name[:width-7] + "..."
		}
		line := fmt.Sprintf("%s %s", StatusIcon(d.Status), name)
		if i == m.selectedIdx {
			line = StyleSelected.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 2).
		Render(b.String())
}

// StatusIcon returns a styled status indicator.
func StatusIcon(status string) string {
	switch status {
	case "running":
		return StyleStatusRunning.Render("●")
	case "succeeded":
		return StyleStatusComplete.Render("✓")
	case "failed":
		return StyleStatusFailed.Render("✗")
	default:
		return StyleStatusPending.Render("○")
	}
}

// Selected returns the selected dispatch, or nil.
func (m DispatchPaneModel) Selected() *DispatchState {
	return m.dispatches[m.selectedID()]
}

func (m DispatchPaneModel) selectedID() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.order) {
		return m.order[m.selectedIdx]
	}
	return ""
}

func (m *DispatchPaneModel) updateViewportContent() {
	d := m.Selected()
	if d == nil {
		m.viewport.SetContent("Waiting for dispatches...")
		return
	}
	m.viewport.SetContent(strings.Join(d.Output, "\n"))
	m.viewport.GotoBottom()
}

func (m *DispatchPaneModel) resizeViewport() {
	m.viewport.Width = max(m.width-32-4, 10)
	m.viewport.Height = max(m.height-4, 5)
}

// SetSize updates the pane dimensions.
func (m *DispatchPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *DispatchPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
