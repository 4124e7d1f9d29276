package ui

import (
	"github.com/rivo/tview"
)

// createHelpPanel creates the help panel.
func (a *App) createHelpPanel() {
	a.helpView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	a.helpView.SetBorder(true).SetTitle(" Help ")

	helpText := `[yellow::b]clipgif TUI[white]

Monitors a clipgif server: the job queue, encoder backends and the
message hub.

[yellow::b]GLOBAL NAVIGATION[white]
[cyan]1[white] or [cyan]F1[white]     Dashboard      - Queue counts, tracked jobs, encoders
[cyan]2[white] or [cyan]F2[white]     Jobs           - Every job the queue retains
[cyan]3[white] or [cyan]F3[white]     Events         - Recent hub messages
[cyan]?[white]            Help           - This help screen
[cyan]r[white]            Refresh        - Poll the server now
[cyan]q[white]            Quit           - Exit the application
[cyan]Escape[white]       Dashboard      - Return to dashboard

[yellow::b]JOBS PANEL[white]
[cyan]f[white]            Cycle status filter (all, pending, processing, completed, failed)
[cyan]c[white]            Cancel the selected job

[yellow::b]ENVIRONMENT[white]
[cyan]CLIPGIF_SERVER[white]           Server base URL (default http://localhost:9848)
[cyan]CLIPGIF_API_KEY[white]          API key, falls back to API_KEY
[cyan]CLIPGIF_STATUS_REFRESH[white]   Poll interval (default 2s)
[cyan]CLIPGIF_REQUEST_TIMEOUT[white]  Per-request timeout (default 10s)
`

	a.helpView.SetText(helpText)
}
