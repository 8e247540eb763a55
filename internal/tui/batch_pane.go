package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/pmdispatch/internal/events"
)

// BatchPaneModel shows the progress of the running batch.
type BatchPaneModel struct {
	batchID   string
	total     int
	succeeded int
	failed    int
	costUSD   float64
	elapsed   time.Duration
	done      bool
	width     int
	height    int
	focused   bool
}

// NewBatchPaneModel creates an empty batch pane.
func NewBatchPaneModel() BatchPaneModel {
	return BatchPaneModel{}
}

// Update handles messages for the batch pane.
func (m BatchPaneModel) Update(msg tea.Msg) (BatchPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case events.BatchStartedEvent:
		// A workflow runs several batches; counts restart per wave.
		m.batchID = msg.BatchID
		m.total = len(msg.Pairs)
		m.succeeded, m.failed = 0, 0

	case events.BatchProgressEvent:
		if msg.BatchID != m.batchID {
			break
		}
		m.total = msg.Total
		m.succeeded = msg.Succeeded
		m.failed = msg.Failed
		m.elapsed = msg.Elapsed
		m.costUSD = msg.CostUSD

	case DoneMsg:
		m.done = true
	}
	return m, nil
}

// View renders the batch pane.
func (m BatchPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := StyleTitle.Render("Batch")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	running := m.total - m.succeeded - m.failed
	b.WriteString(fmt.Sprintf("Total:     %d\n", m.total))
	b.WriteString(fmt.Sprintf("Succeeded: %s\n", StyleStatusComplete.Render(fmt.Sprintf("%d", m.succeeded))))
	b.WriteString(fmt.Sprintf("Running:   %s\n", StyleStatusRunning.Render(fmt.Sprintf("%d", running))))
	b.WriteString(fmt.Sprintf("Failed:    %s\n", StyleStatusFailed.Render(fmt.Sprintf("%d", m.failed))))
	b.WriteString(fmt.Sprintf("Cost:      $%.4f\n", m.costUSD))
	b.WriteString(fmt.Sprintf("Elapsed:   %v\n", m.elapsed.Round(time.Second)))
	b.WriteString("\n")

	if m.total > 0 {
		barWidth := min(m.width-4, 40)
		okWidth := (m.succeeded * barWidth) / m.total
		failedWidth := (m.failed * barWidth) / m.total
		restWidth := barWidth - okWidth - failedWidth

		bar := StyleStatusComplete.Render(strings.Repeat("=", max(0, okWidth)))
		bar += StyleStatusFailed.Render(strings.Repeat("!", max(0, failedWidth)))
		bar += StyleStatusPending.Render(strings.Repeat(".", max(0, restWidth)))
		b.WriteString(fmt.Sprintf("[%s]  %d/%d\n", bar, m.succeeded+m.failed, m.total))
	}

	if m.done {
		b.WriteString("\n")
		b.WriteString(StyleHelp.Render("Finished. Press q to exit."))
	}

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}
	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

// SetSize updates the pane dimensions.
func (m *BatchPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *BatchPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
