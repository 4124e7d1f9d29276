package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"

	"github.com/iconidentify/clipgif/internal/domain"
)

func (a *App) createEventsPanel() {
	a.eventsView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	a.eventsView.SetBorder(true).SetTitle(" Recent Events ")
}

// updateEvents renders hub messages, oldest at the top.
func (a *App) updateEvents() {
	st := a.getState()

	var b strings.Builder
	for i := len(st.events) - 1; i >= 0; i-- {
		b.WriteString(formatEvent(st.events[i]))
		b.WriteByte('\n')
	}
	if len(st.events) == 0 {
		b.WriteString("[gray]No events yet[white]\n")
	}
	a.eventsView.SetText(b.String())
	a.eventsView.ScrollToEnd()
}

func formatEvent(m domain.Message) string {
	job := ""
	if m.JobID != "" {
		job = " " + shortID(string(m.JobID))
	}
	text := tview.Escape(m.Text)
	if text == "" && m.Type == domain.MessageTypeProgress {
		text = string(m.Payload)
	}
	return fmt.Sprintf("[gray]%s[white] [%s]%-8s[white] %-8s%s %s",
		m.Timestamp.Format("15:04:05"), severityColor(m.Severity), m.Severity, m.Type, job, text)
}
