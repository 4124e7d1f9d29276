package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/iconidentify/clipgif/internal/domain"
)

// jobFilters is the cycle order of the 'f' key.
var jobFilters = []domain.JobStatus{
	"",
	domain.JobStatusPending,
	domain.JobStatusProcessing,
	domain.JobStatusCompleted,
	domain.JobStatusFailed,
}

// createJobsPanel creates the jobs table.
func (a *App) createJobsPanel() {
	a.jobsTable = tview.NewTable().
		SetBorders(false).
		SetSelectable(true, false).
		SetFixed(1, 0)
	a.setJobsTitle()

	a.jobsTable.SetSelectedStyle(tcell.StyleDefault.
		Foreground(tcell.ColorWhite).
		Background(tcell.ColorDarkCyan))

	a.setJobsHeader()

	a.jobsTable.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() != tcell.KeyRune {
			return event
		}
		switch event.Rune() {
		case 'f', 'F':
			a.cycleJobFilter()
			return nil
		case 'c', 'C':
			row, _ := a.jobsTable.GetSelection()
			if row == 0 {
				return nil
			}
			ref := a.jobsTable.GetCell(row, 0).GetReference()
			if id, ok := ref.(domain.JobID); ok {
				go a.cancelJob(id)
			}
			return nil
		}
		return event
	})
}

func (a *App) setJobsTitle() {
	filter := "all"
	if a.jobFilter != "" {
		filter = string(a.jobFilter)
	}
	a.jobsTable.SetBorder(true).SetTitle(fmt.Sprintf(" Jobs [%s] - 'f' filter, 'c' cancel ", filter))
}

func (a *App) setJobsHeader() {
	headers := []string{"ID", "KIND", "STATUS", "PROGRESS", "STAGE", "AGE", "DETAIL"}
	for i, h := range headers {
		cell := tview.NewTableCell(h).
			SetTextColor(tcell.ColorYellow).
			SetSelectable(false).
			SetExpansion(1)
		if i == len(headers)-1 {
			cell.SetExpansion(3)
		}
		a.jobsTable.SetCell(0, i, cell)
	}
}

func (a *App) cycleJobFilter() {
	next := 0
	for i, f := range jobFilters {
		if f == a.jobFilter {
			next = (i + 1) % len(jobFilters)
			break
		}
	}
	a.jobFilter = jobFilters[next]
	a.setJobsTitle()
	go a.refreshStatus()
}

func (a *App) cancelJob(id domain.JobID) {
	ctx, cancel := context.WithTimeout(a.ctx, a.cfg.RequestTimeout)
	defer cancel()

	if err := a.api.Cancel(ctx, string(id)); err != nil {
		a.updateStatusBar(fmt.Sprintf("[red]Cancel %s failed: %v", shortID(string(id)), err))
		return
	}
	a.updateStatusBar(fmt.Sprintf("[yellow]Cancelled %s", shortID(string(id))))
	a.refreshStatus()
}

// updateJobsTable redraws the jobs table, keeping the selected row.
func (a *App) updateJobsTable() {
	st := a.getState()
	row, _ := a.jobsTable.GetSelection()

	a.jobsTable.Clear()
	a.setJobsHeader()

	for i, j := range st.jobs {
		detail := j.Message
		if j.Error != "" {
			detail = j.Error
		} else if j.Extraction != nil {
			detail = fmt.Sprintf("%d frames %dx%d", j.Extraction.FrameCount, j.Extraction.Dimensions.Width, j.Extraction.Dimensions.Height)
			if j.Extraction.Synthetic {
				detail += " (synthetic)"
			}
		} else if j.GIF != nil {
			m := j.GIF.Metadata
			detail = fmt.Sprintf("%s %dx%d via %s", formatBytes(int64(m.FileSizeBytes)), m.Width, m.Height, m.EncoderName)
		}

		r := i + 1
		a.jobsTable.SetCell(r, 0, tview.NewTableCell(shortID(string(j.ID))).SetReference(j.ID))
		a.jobsTable.SetCell(r, 1, tview.NewTableCell(string(j.Kind)))
		a.jobsTable.SetCell(r, 2, tview.NewTableCell(string(j.Status)).SetTextColor(tcellColor(j.Status)))
		a.jobsTable.SetCell(r, 3, tview.NewTableCell(fmt.Sprintf("%s %3d%%", progressBar(j.Progress, 10), j.Progress)))
		a.jobsTable.SetCell(r, 4, tview.NewTableCell(j.Stage))
		a.jobsTable.SetCell(r, 5, tview.NewTableCell(formatAge(time.Since(j.CreatedAt))))
		a.jobsTable.SetCell(r, 6, tview.NewTableCell(detail).SetExpansion(3))
	}

	if row > len(st.jobs) {
		row = len(st.jobs)
	}
	if row < 1 && len(st.jobs) > 0 {
		row = 1
	}
	a.jobsTable.Select(row, 0)
}
