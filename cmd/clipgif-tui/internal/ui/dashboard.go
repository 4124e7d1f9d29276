package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/rivo/tview"

	"github.com/iconidentify/clipgif/internal/domain"
)

// createDashboardPanel creates the main dashboard panel.
func (a *App) createDashboardPanel() {
	a.queueBox = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	a.queueBox.SetBorder(true).SetTitle(" Queue ")

	a.activeBox = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	a.activeBox.SetBorder(true).SetTitle(" Tracked Jobs ")

	a.encodersBox = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	a.encodersBox.SetBorder(true).SetTitle(" Encoders ")

	topRow := tview.NewFlex().
		AddItem(a.queueBox, 0, 1, false).
		AddItem(a.encodersBox, 0, 1, false)

	a.dashboardView = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(topRow, 0, 1, false).
		AddItem(a.activeBox, 0, 2, false)
}

// updateDashboard redraws the dashboard from the last snapshot.
func (a *App) updateDashboard() {
	st := a.getState()
	if st.queue == nil {
		return
	}

	var q strings.Builder
	if st.queue.IsProcessing {
		q.WriteString("[green]Processing: Yes[white]\n")
	} else {
		q.WriteString("[white]Processing: Idle\n")
	}
	q.WriteString(fmt.Sprintf("[white::b]Waiting:[white] %d\n", st.queue.QueueLength))
	q.WriteString(fmt.Sprintf("[white::b]Total:[white]   %d\n\n", st.queue.TotalJobs))
	for _, s := range []domain.JobStatus{
		domain.JobStatusPending,
		domain.JobStatusProcessing,
		domain.JobStatusCompleted,
		domain.JobStatusFailed,
	} {
		q.WriteString(fmt.Sprintf("[%s]%-10s[white] %d\n", statusColor(s), s, st.queue.CountsByStatus[s]))
	}
	a.queueBox.SetText(q.String())

	var act strings.Builder
	if len(st.queue.ActiveJobs) == 0 {
		act.WriteString("[gray]No jobs awaiting completion[white]\n")
	}
	progress := make(map[domain.JobID]int, len(st.jobs))
	for _, j := range st.jobs {
		progress[j.ID] = j.Progress
	}
	for _, t := range st.queue.ActiveJobs {
		who := t.Context
		if who == "" {
			who = "-"
		}
		act.WriteString(fmt.Sprintf("%s  %-14s %s %3d%%  %s  [gray]%s[white]\n",
			shortID(string(t.JobID)), t.Kind, progressBar(progress[t.JobID], 20), progress[t.JobID],
			formatAge(time.Since(t.StartedAt)), who))
	}
	a.activeBox.SetText(act.String())

	var enc strings.Builder
	if len(st.encoders) == 0 {
		enc.WriteString("[gray]No encoder information[white]\n")
	}
	for _, e := range st.encoders {
		state := "[gray]unprobed"
		switch {
		case e.Checked && e.Usable:
			state = "[green]usable"
		case e.Checked:
			state = "[red]unusable"
		}
		enc.WriteString(fmt.Sprintf("[white::b]%-9s[white] %s[white]  quality %s, speed %s\n",
			e.Name, state, e.Characteristics.Quality, e.Characteristics.Speed))
		if e.Error != "" {
			enc.WriteString(fmt.Sprintf("          [red]%s[white]\n", e.Error))
		}
	}
	a.encodersBox.SetText(enc.String())
}
